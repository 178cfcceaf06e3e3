package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps one JSON array per symbol, <dir>/<symbol>_history.json.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(symbol string) string {
	name := strings.ToLower(strings.TrimSpace(symbol))
	if name == "" {
		name = "default"
	}
	name = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(name)
	return filepath.Join(f.dir, name+"_history.json")
}

func (f *FileStore) Load(ctx context.Context, symbol string) (Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path(symbol))
	if errors.Is(err, os.ErrNotExist) {
		return Series{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return Series{}, nil
	}
	var s Series
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, f.path(symbol), err)
	}
	if s == nil {
		s = Series{}
	}
	return s, nil
}

// Save writes to a temp file and renames it over the target so a crash
// never leaves a half-written history.
func (f *FileStore) Save(ctx context.Context, symbol string, s Series) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil {
		s = Series{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	target := f.path(symbol)
	tmp, err := os.CreateTemp(f.dir, filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp history: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close history: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename history: %w", err)
	}
	return nil
}
