// Package snapshots persists opaque model blobs, like ensemble snapshots and
// recalibrated weights, under a string key.
package snapshots

import (
	"context"
	"errors"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

//go:generate mockgen -source=$GOFILE -destination=../learning/mocks_test.go -package=learning_test

type Store interface {
	Save(ctx context.Context, key string, blob []byte) error
	// Load returns ErrSnapshotNotFound when nothing was saved under key.
	Load(ctx context.Context, key string) ([]byte, error)
}
