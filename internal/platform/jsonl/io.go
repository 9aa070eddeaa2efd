package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/phrazzld/llmbatch/internal/domain"
	"github.com/phrazzld/llmbatch/internal/store"
)

// GzipExt marks a compressed log or dataset. Compressed files are read-only.
const GzipExt = ".gz"

// Object is any named map type decoded from one JSON object per line.
type Object interface {
	~map[string]any
}

// IsCompressed reports whether path names a gzip-compressed file.
func IsCompressed(path string) bool {
	return strings.HasSuffix(path, GzipExt)
}

// ReadFile decodes every line of a .jsonl (or .jsonl.gz) file. Blank lines are
// ignored and the final line may omit its newline.
func ReadFile[T Object](path string) ([]T, error) {
	return readPath[T](path, false)
}

// ReadMap decodes path and indexes the rows by the canonical value of key.
// Later rows win when a key repeats.
func ReadMap(path, key string) (map[string]domain.Record, error) {
	rows, err := ReadFile[domain.Record](path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Record, len(rows))
	for i, row := range rows {
		id, err := row.ID(key)
		if err != nil {
			return nil, store.NewStoreError(path, "read", fmt.Sprintf("row %d", i+1), err)
		}
		out[id] = row
	}
	return out, nil
}

// WriteFile replaces path with rows, one JSON object per line, creating
// parent directories as needed.
func WriteFile[T Object](path string, rows []T) error {
	if IsCompressed(path) {
		return store.NewStoreError(path, "write", "compressed output", store.ErrReadOnly)
	}
	data, err := encode(rows)
	if err != nil {
		return store.NewStoreError(path, "write", "cannot encode rows", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return store.NewStoreError(path, "write", "cannot create directory", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return store.NewStoreError(path, "write", "cannot write file", err)
	}
	return nil
}

// AppendFile appends records to path under the log lock.
func AppendFile(ctx context.Context, path string, records []domain.Record) error {
	return NewFileRecordStore(path).Append(ctx, records)
}

func readPath[T Object](path string, strict bool) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, store.NewStoreError(path, "read", "cannot open file", err)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if IsCompressed(path) {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, store.NewStoreError(path, "read", "invalid gzip stream",
				fmt.Errorf("%w: %v", store.ErrMalformedRecord, err))
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}

	rows, err := decode[T](r, strict)
	if err != nil {
		var le *lineError
		if errors.As(err, &le) {
			return nil, store.NewStoreError(path, "read", fmt.Sprintf("line %d", le.line),
				fmt.Errorf("%w: %v", store.ErrMalformedRecord, le.err))
		}
		return nil, store.NewStoreError(path, "read", "cannot read file", err)
	}
	return rows, nil
}

type lineError struct {
	line int
	err  error
}

func (e *lineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.line, e.err)
}

var errTornLine = errors.New("unterminated final line")

// decode reads one JSON object per line. In strict mode a final line without
// a newline is rejected as a torn write.
func decode[T Object](r io.Reader, strict bool) ([]T, error) {
	br := bufio.NewReader(r)
	var rows []T
	for n := 1; ; n++ {
		line, err := br.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		eof := err != nil

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 {
			if eof && strict {
				return nil, &lineError{line: n, err: errTornLine}
			}
			row, derr := decodeObject[T](trimmed)
			if derr != nil {
				return nil, &lineError{line: n, err: derr}
			}
			rows = append(rows, row)
		}
		if eof {
			return rows, nil
		}
	}
}

func decodeObject[T Object](data []byte) (T, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var row T
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	if row == nil {
		return nil, errors.New("not a JSON object")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after object")
	}
	return row, nil
}

// encode renders rows as newline-terminated JSON objects.
func encode[T Object](rows []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, row := range rows {
		if row == nil {
			return nil, fmt.Errorf("%w: row %d is nil", store.ErrInvalidRecord, i)
		}
		if err := enc.Encode(row); err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", store.ErrInvalidRecord, i, err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeRecord decodes one JSON object, keeping numbers as json.Number.
func DecodeRecord(data []byte) (domain.Record, error) {
	return decodeObject[domain.Record](data)
}

// EncodeRecord encodes r as one newline-terminated JSON object.
func EncodeRecord(r domain.Record) ([]byte, error) {
	return encode([]domain.Record{r})
}
