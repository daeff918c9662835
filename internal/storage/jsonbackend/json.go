// Package jsonbackend stores runs as newline-delimited JSON, one run per line.
package jsonbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/FranksOps/vetter/internal/storage"
)

var _ storage.Backend = (*jsonBackend)(nil)

type jsonBackend struct {
	mu   sync.Mutex
	path string
	// w is append-only; queries read through their own handle.
	w *os.File
}

// New opens or creates the NDJSON file at filePath.
func New(filePath string) (storage.Backend, error) {
	w, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("jsonbackend: open %s: %w", filePath, err)
	}
	return &jsonBackend{path: filePath, w: w}, nil
}

func (b *jsonBackend) Save(ctx context.Context, run *storage.Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("jsonbackend: encode run %s: %w", run.ID, err)
	}
	line = append(line, '\n')

	b.mu.Lock()
	defer b.mu.Unlock()
	// One write per run keeps lines whole under O_APPEND.
	if _, err := b.w.Write(line); err != nil {
		return fmt.Errorf("jsonbackend: append run %s: %w", run.ID, err)
	}
	return nil
}

// Query streams every stored run through filter. NDJSON has no index, so the
// whole file is read on each call.
func (b *jsonBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Run, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, err := os.Open(b.path)
	if err != nil {
		return nil, fmt.Errorf("jsonbackend: open %s: %w", b.path, err)
	}
	defer r.Close()

	var matched []*storage.Run
	dec := json.NewDecoder(r)
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		run := new(storage.Run)
		err := dec.Decode(run)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("jsonbackend: decode record %d: %w", n, err)
		}
		if filter.Match(run) {
			matched = append(matched, run)
		}
	}
	return filter.Page(matched), nil
}

func (b *jsonBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.w.Close()
}
