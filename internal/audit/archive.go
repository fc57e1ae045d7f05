// Package audit keeps a compressed record of every SQL batch a run executes.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arwahdevops/dbtyper/internal/typing"
)

// Entry is one recorded SQL batch.
type Entry struct {
	RunID        string     `json:"run_id"`
	Stream       string     `json:"stream,omitempty"`
	Step         string     `json:"step"`
	RecordedAt   time.Time  `json:"recorded_at"`
	Transactions [][]string `json:"transactions"`
}

// Uploader ships a finished archive somewhere durable.
type Uploader interface {
	Upload(ctx context.Context, localPath, key string) error
}

// Archive buffers entries for one run and writes them, snappy framed, one
// JSON document per line, when the run is flushed.
type Archive struct {
	runID    string
	dir      string
	prefix   string
	uploader Uploader
	logger   *zap.Logger

	mu      sync.Mutex
	entries []Entry
}

var _ typing.StatementRecorder = (*Archive)(nil)

// NewArchive stages archives in dir. uploader may be nil.
func NewArchive(dir, prefix string, uploader Uploader, logger *zap.Logger) *Archive {
	return &Archive{
		runID:    uuid.NewString(),
		dir:      dir,
		prefix:   prefix,
		uploader: uploader,
		logger:   logger.Named("audit"),
	}
}

func (a *Archive) RunID() string { return a.runID }

func (a *Archive) Record(stream typing.StreamID, step string, sql typing.SQL) {
	if sql.IsEmpty() {
		return
	}
	e := Entry{
		RunID:        a.runID,
		Stream:       stream.String(),
		Step:         step,
		RecordedAt:   time.Now().UTC(),
		Transactions: sql.Transactions,
	}
	a.mu.Lock()
	a.entries = append(a.entries, e)
	a.mu.Unlock()
}

// Len is the number of entries recorded so far.
func (a *Archive) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Flush writes the archive to disk and uploads it when an uploader is set.
// It returns the local path, or "" when nothing was recorded.
func (a *Archive) Flush(ctx context.Context) (string, error) {
	a.mu.Lock()
	entries := a.entries
	a.entries = nil
	a.mu.Unlock()
	if len(entries) == 0 {
		return "", nil
	}

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("create audit dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s.jsonl.sz", time.Now().UTC().Format("20060102T150405Z"), a.runID)
	path := filepath.Join(a.dir, name)
	if err := writeEntries(path, entries); err != nil {
		return "", err
	}
	a.logger.Info("Audit archive written", zap.String("path", path), zap.Int("entries", len(entries)))

	if a.uploader != nil {
		key := name
		if a.prefix != "" {
			key = a.prefix + "/" + name
		}
		if err := a.uploader.Upload(ctx, path, key); err != nil {
			return path, fmt.Errorf("upload audit archive: %w", err)
		}
		a.logger.Info("Audit archive uploaded", zap.String("key", key))
	}
	return path, nil
}

func writeEntries(path string, entries []Entry) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create audit archive: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close audit archive: %w", cerr)
		}
	}()

	w := snappy.NewBufferedWriter(f)
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encode audit entry: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("flush audit archive: %w", err)
	}
	return nil
}

// ReadArchive decodes an archive written by Flush.
func ReadArchive(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Entry
	dec := json.NewDecoder(bufio.NewReader(snappy.NewReader(f)))
	for {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("decode audit archive %s: %w", path, err)
		}
		out = append(out, e)
	}
}
