package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

type localStorage struct {
	fs   afero.Fs
	root string
}

// NewLocalStorage хранит объекты файлами под root.
func NewLocalStorage(fs afero.Fs, root string) Adapter {
	return &localStorage{fs: fs, root: root}
}

func (s *localStorage) resolvePath(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrEmptyKey
	}
	cleaned := filepath.Clean("/" + key)
	return filepath.Join(s.root, cleaned), nil
}

func (s *localStorage) Save(_ context.Context, key string, data []byte) error {
	p, err := s.resolvePath(key)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}
	return afero.WriteFile(s.fs, p, data, 0o600)
}

func (s *localStorage) Read(_ context.Context, key string) ([]byte, error) {
	p, err := s.resolvePath(key)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	return data, nil
}

func (s *localStorage) Remove(_ context.Context, key string) error {
	p, err := s.resolvePath(key)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
