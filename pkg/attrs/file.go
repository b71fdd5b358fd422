package attrs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/frostime/sy-query-view/pkg/errors"
)

// FileStore is a file-based attribute store for CLI usage.
// Each element's attributes are stored as a JSON file in a config directory.
type FileStore struct {
	mu      sync.RWMutex
	baseDir string
}

// NewFileStore creates a new file-based store.
// If baseDir is empty, defaults to ~/.config/queryview/attrs/
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		baseDir = filepath.Join(home, ".config", "queryview", "attrs")
	}
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("create attrs dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) blockPath(id string) string {
	return filepath.Join(s.baseDir, id+".json")
}

func (s *FileStore) Read(ctx context.Context, id string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(id)
}

func (s *FileStore) read(id string) (map[string]string, error) {
	if err := errors.ValidateInstanceID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.blockPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read attrs file: %w", err)
	}
	var attrs map[string]string
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, fmt.Errorf("parse attrs: %w", err)
	}
	return clone(attrs), nil
}

func (s *FileStore) Write(ctx context.Context, id string, attrs map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.read(id)
	if err != nil {
		return err
	}
	if !merge(cur, attrs) {
		return nil
	}
	path := s.blockPath(id)
	if len(cur) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove attrs file: %w", err)
		}
		return nil
	}
	data, err := json.MarshalIndent(cur, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal attrs: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write attrs file: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// Path returns the base directory for attribute files.
func (s *FileStore) Path() string {
	return s.baseDir
}

var _ Store = (*FileStore)(nil)
