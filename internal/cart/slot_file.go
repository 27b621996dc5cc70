package cart

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileSlots stores each session's cart as <dir>/<session>/<key>.json.
type FileSlots struct {
	dir string
	key string
}

// NewFileSlots creates dir if needed.
func NewFileSlots(dir, key string) (*FileSlots, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("cart file dir is required")
	}
	if key == "" {
		key = DefaultSlotKey
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create cart dir: %w", err)
	}
	return &FileSlots{dir: dir, key: key}, nil
}

func (f *FileSlots) Slot(sessionID string) Slot {
	return fileSlot{dir: f.dir, session: sessionID, key: f.key}
}

type fileSlot struct {
	dir     string
	session string
	key     string
}

func (s fileSlot) path() (string, error) {
	for _, part := range []string{s.session, s.key} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("invalid cart slot name %q", part)
		}
	}
	return filepath.Join(s.dir, s.session, s.key+".json"), nil
}

func (s fileSlot) Read(_ context.Context) ([]byte, error) {
	path, err := s.path()
	if err != nil {
		return nil, err
	}
	payload, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrSlotEmpty
	}
	return payload, err
}

// Write replaces the file atomically so a crash never leaves half a cart behind.
func (s fileSlot) Write(_ context.Context, payload []byte) error {
	path, err := s.path()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, s.key+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
