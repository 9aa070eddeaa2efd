// Package dataset loads batch input files into memory.
//
// Supported formats are newline-delimited JSON (.jsonl), its gzip variant
// (.jsonl.gz) and a single JSON array of objects (.json).
package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/phrazzld/llmbatch/internal/domain"
	"github.com/phrazzld/llmbatch/internal/platform/jsonl"
	"github.com/phrazzld/llmbatch/internal/platform/logger"
)

// DefaultConcurrency bounds how many files Load reads at once.
const DefaultConcurrency = 8

var (
	// ErrNoInput is returned when Load is called without any path.
	ErrNoInput = errors.New("no input files")

	// ErrUnsupportedFormat is returned for files that are neither JSON nor JSONL.
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
)

// Load reads every path concurrently and concatenates the items in the
// order the paths were given. Any unreadable file fails the whole load.
func Load(ctx context.Context, paths ...string) (domain.Dataset, error) {
	paths = normalize(paths)
	if len(paths) == 0 {
		return nil, ErrNoInput
	}

	parts := make([][]domain.Item, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultConcurrency)

	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			items, err := ReadFile(path)
			if err != nil {
				return err
			}
			parts[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int
	for _, p := range parts {
		total += len(p)
	}
	ds := make(domain.Dataset, 0, total)
	for _, p := range parts {
		ds = append(ds, p...)
	}

	logger.FromContext(ctx).Info("dataset loaded",
		"files", len(paths),
		"items", len(ds))
	return ds, nil
}

// ReadFile reads one dataset file, choosing the decoder by extension.
func ReadFile(path string) ([]domain.Item, error) {
	switch {
	case strings.HasSuffix(path, ".jsonl"), strings.HasSuffix(path, ".jsonl"+jsonl.GzipExt):
		items, err := jsonl.ReadFile[domain.Item](path)
		if err != nil {
			return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
		}
		return items, nil
	case strings.HasSuffix(path, ".json"):
		return readJSONArray(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// ConvertJSONToJSONL rewrites a JSON array file as newline-delimited JSON.
func ConvertJSONToJSONL(jsonPath, jsonlPath string) error {
	items, err := readJSONArray(jsonPath)
	if err != nil {
		return err
	}
	if err := jsonl.WriteFile(jsonlPath, items); err != nil {
		return fmt.Errorf("failed to write %s: %w", jsonlPath, err)
	}
	return nil
}

func readJSONArray(path string) ([]domain.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var items []domain.Item
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to decode dataset %s: %w", path, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode dataset %s: trailing data after array", path)
	}
	for i, item := range items {
		if item == nil {
			return nil, fmt.Errorf("failed to decode dataset %s: element %d is not an object", path, i)
		}
	}
	return items, nil
}

func normalize(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
