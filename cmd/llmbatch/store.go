package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/llmbatch/internal/config"
	"github.com/phrazzld/llmbatch/internal/platform/jsonl"
	"github.com/phrazzld/llmbatch/internal/platform/postgres"
	"github.com/phrazzld/llmbatch/internal/store"
)

// openStore builds the configured record store. The returned function
// releases its resources.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.RecordStore, func(), error) {
	output := cfg.OutputFile()

	switch cfg.Driver {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, db, log); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Info("using postgres record store", "location", output)
		closeDB := func() {
			if err := db.Close(); err != nil {
				log.Error("failed to close database", "error", err)
			}
		}
		return postgres.NewRecordStore(db, output, postgres.WithIDField(cfg.IDKey)), closeDB, nil
	case "jsonl":
		log.Info("using jsonl record store", "path", output)
		return jsonl.NewFileRecordStore(output, jsonl.WithIDField(cfg.IDKey)), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}
