// Package checkpointfile persists run progress as an append-only JSON Lines
// file. Each line is either a completed record or a date failure tagged with
// the scope fingerprint of the run that wrote it; replaying the lines of one
// scope in order rebuilds that scope's checkpoint.
package checkpointfile

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/couchcryptid/flood-features-etl/internal/domain"
)

const (
	kindRecord  = "record"
	kindFailure = "failure"
)

type entry struct {
	Kind    string                     `json:"kind"`
	Scope   string                     `json:"scope"`
	Record  *domain.DailyFeatureRecord `json:"record,omitempty"`
	Failure *domain.DateFailure        `json:"failure,omitempty"`
}

// Store implements pipeline.CheckpointStore. Appends are serialized so
// concurrent workers never interleave lines.
type Store struct {
	path string
	mu   sync.Mutex
}

// New creates a store at path. The file is created on first save.
func New(path string) *Store {
	return &Store{path: path}
}

// Load replays the entries written under scope. Entries from other scopes,
// including untagged ones, are skipped.
func (s *Store) Load(ctx context.Context, scope string) (domain.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := domain.NewCheckpoint()
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return cp, nil
	}
	if err != nil {
		return cp, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return cp, err
		}
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return cp, fmt.Errorf("checkpoint %s line %d: %w", s.path, line, err)
		}
		valid := (e.Kind == kindRecord && e.Record != nil) || (e.Kind == kindFailure && e.Failure != nil)
		if !valid {
			return cp, fmt.Errorf("checkpoint %s line %d: unknown entry kind %q", s.path, line, e.Kind)
		}
		if e.Scope != scope {
			continue
		}
		if e.Kind == kindRecord {
			cp.Apply(*e.Record)
		} else {
			cp.ApplyFailure(*e.Failure)
		}
	}
	if err := sc.Err(); err != nil {
		return cp, fmt.Errorf("read checkpoint: %w", err)
	}
	return cp, nil
}

func (s *Store) SaveRecord(_ context.Context, scope string, rec domain.DailyFeatureRecord) error {
	return s.append(entry{Kind: kindRecord, Scope: scope, Record: &rec})
}

func (s *Store) SaveFailure(_ context.Context, scope string, f domain.DateFailure) error {
	return s.append(entry{Kind: kindFailure, Scope: scope, Failure: &f})
}

func (s *Store) append(e entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode checkpoint entry: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open checkpoint: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("append checkpoint: %w", err)
	}
	return f.Close()
}
