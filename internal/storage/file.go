package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps one <flow>_hash.txt file per flow in a directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create fingerprint dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(flowName string) string {
	return filepath.Join(s.dir, flowName+"_hash.txt")
}

func (s *FileStore) Fingerprint(_ context.Context, flowName string) (string, bool, error) {
	data, err := os.ReadFile(s.path(flowName))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read fingerprint for %s: %w", flowName, err)
	}
	fp := strings.TrimSpace(string(data))
	if fp == "" {
		return "", false, nil
	}
	return fp, true, nil
}

// SetFingerprint writes through a temp file and rename so readers never see
// a partial value.
func (s *FileStore) SetFingerprint(_ context.Context, flowName, fp string) error {
	tmp, err := os.CreateTemp(s.dir, flowName+"_*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write fingerprint for %s: %w", flowName, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(fp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write fingerprint for %s: %w", flowName, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path(flowName))
}

func (s *FileStore) Close() error { return nil }
