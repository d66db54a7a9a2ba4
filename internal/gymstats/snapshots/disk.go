package snapshots

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// DiskStore keeps one <key>.json file per snapshot in a directory. Used by the
// offline tooling, where no database is around.
type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshots dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

func (s *DiskStore) path(key string) string {
	return filepath.Join(s.dir, unsafeKeyChars.ReplaceAllString(key, "_")+".json")
}

func (s *DiskStore) Save(_ context.Context, key string, blob []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot %s: %w", key, err)
	}

	// rename keeps readers from ever seeing a half written file
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return fmt.Errorf("rename snapshot %s: %w", key, err)
	}
	return nil
}

func (s *DiskStore) Load(_ context.Context, key string) ([]byte, error) {
	blob, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", key, err)
	}
	return blob, nil
}
