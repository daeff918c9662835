package csvbackend

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/FranksOps/vetter/internal/model"
	"github.com/FranksOps/vetter/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

// headers defines the CSV column order
var headers = []string{
	"id",
	"topic",
	"country",
	"queries_json",
	"candidates_json",
	"result_json",
	"duration_ms",
	"created_at",
	"error",
}

// New creates a new CSV-backed storage.Backend.
func New(filePath string) (storage.Backend, error) {
	// Open file for appending, create if it doesn't exist
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("csvbackend: open %s: %w", filePath, err)
	}

	// Check if file is empty to write headers
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("csvbackend: stat: %w", err)
	}

	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: write header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: write header: %w", err)
		}
	}

	return &csvBackend{
		file: f,
	}, nil
}

func (b *csvBackend) Save(ctx context.Context, run *storage.Run) error {
	queriesJSON, err := json.Marshal(run.Queries)
	if err != nil {
		return fmt.Errorf("csvbackend: encode queries: %w", err)
	}
	candidatesJSON, err := json.Marshal(run.Candidates)
	if err != nil {
		return fmt.Errorf("csvbackend: encode candidates: %w", err)
	}
	var resultJSON []byte
	if run.Result != nil {
		if resultJSON, err = json.Marshal(run.Result); err != nil {
			return fmt.Errorf("csvbackend: encode result: %w", err)
		}
	}

	record := []string{
		run.ID,
		run.Topic,
		run.Country,
		string(queriesJSON),
		string(candidatesJSON),
		string(resultJSON),
		strconv.FormatInt(run.Duration.Milliseconds(), 10),
		run.CreatedAt.Format(time.RFC3339Nano),
		run.Error,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Ensure we're at the end of the file for appending (just in case)
	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("csvbackend: seek: %w", err)
	}

	w := csv.NewWriter(b.file)
	if err := w.Write(record); err != nil {
		return fmt.Errorf("csvbackend: write run: %w", err)
	}
	w.Flush()

	if err := w.Error(); err != nil {
		return fmt.Errorf("csvbackend: write run: %w", err)
	}

	return nil
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Run, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Seek to the beginning of the file to read all entries
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("csvbackend: seek: %w", err)
	}
	defer func() {
		// Restore pointer to end for writing
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)

	// Read headers
	_, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []*storage.Run{}, nil
		}
		return nil, fmt.Errorf("csvbackend: read header: %w", err)
	}

	var matched []*storage.Run

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvbackend: read row: %w", err)
		}

		if len(record) != len(headers) {
			continue // skip malformed rows
		}

		run, err := decodeRow(record)
		if err != nil {
			return nil, err
		}
		if filter.Match(run) {
			matched = append(matched, run)
		}
	}

	return filter.Page(matched), nil
}

func decodeRow(record []string) (*storage.Run, error) {
	durationMs, _ := strconv.ParseInt(record[6], 10, 64)
	createdAt, _ := time.Parse(time.RFC3339Nano, record[7])

	run := &storage.Run{
		ID:        record[0],
		Topic:     record[1],
		Country:   record[2],
		Duration:  time.Duration(durationMs) * time.Millisecond,
		CreatedAt: createdAt,
		Error:     record[8],
	}
	if err := json.Unmarshal([]byte(record[3]), &run.Queries); err != nil {
		return nil, fmt.Errorf("csvbackend: decode queries of %s: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(record[4]), &run.Candidates); err != nil {
		return nil, fmt.Errorf("csvbackend: decode candidates of %s: %w", run.ID, err)
	}
	if record[5] != "" {
		run.Result = &model.AggregateResult{}
		if err := json.Unmarshal([]byte(record[5]), run.Result); err != nil {
			return nil, fmt.Errorf("csvbackend: decode result of %s: %w", run.ID, err)
		}
	}
	return run, nil
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
