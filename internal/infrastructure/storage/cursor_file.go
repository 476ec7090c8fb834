package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileCursorStore keeps one JSON file per team member: {"cursor": "..."}
type FileCursorStore struct {
	dir string
}

type cursorFile struct {
	Cursor string `json:"cursor"`
}

// NewFileCursorStore creates the directory when needed
func NewFileCursorStore(dir string) (*FileCursorStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cursor dir: %w", err)
	}
	return &FileCursorStore{dir: dir}, nil
}

func (s *FileCursorStore) path(memberID string) string {
	return filepath.Join(s.dir, "cursor_"+strings.ReplaceAll(memberID, ":", "_")+".json")
}

// Load reads the cursor for member; ok is false when no file exists
func (s *FileCursorStore) Load(ctx context.Context, memberID string) (string, bool, error) {
	raw, err := os.ReadFile(s.path(memberID))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read cursor: %w", err)
	}
	var f cursorFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return "", false, fmt.Errorf("decode cursor: %w", err)
	}
	return f.Cursor, f.Cursor != "", nil
}

// Save writes the cursor through a temp file and rename
func (s *FileCursorStore) Save(ctx context.Context, memberID, cursor string) error {
	raw, err := json.Marshal(cursorFile{Cursor: cursor})
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".cursor-*")
	if err != nil {
		return fmt.Errorf("create temp cursor: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write cursor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cursor: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(memberID)); err != nil {
		return fmt.Errorf("replace cursor: %w", err)
	}
	return nil
}

// Delete removes the cursor file
func (s *FileCursorStore) Delete(ctx context.Context, memberID string) error {
	err := os.Remove(s.path(memberID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
