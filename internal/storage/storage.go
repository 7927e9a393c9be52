// Package storage defines the read-only object store used to fetch remote
// datasets.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Bucket       string
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// Object is an open object body together with the metadata read when it was
// opened. Callers must close Body.
type Object struct {
	Body io.ReadCloser
	Info ObjectInfo
}

// ObjectStore reads objects by bucket and key.
type ObjectStore interface {
	Open(ctx context.Context, bucket, key string) (Object, error)
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)
}
