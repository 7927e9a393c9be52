package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fqdata/fqdata/internal/storage"
)

// ErrObjectStoreNotConfigured is returned for s3:// descriptors when no
// object store endpoint is configured.
var ErrObjectStoreNotConfigured = errors.New("object store is not configured")

type ObjectStoreFetcher struct {
	Store storage.ObjectStore
}

func (f *ObjectStoreFetcher) Fetch(ctx context.Context, bucket, key, dest string) (int64, error) {
	if f == nil || f.Store == nil {
		return 0, ErrObjectStoreNotConfigured
	}
	obj, err := f.Store.Open(ctx, bucket, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return 0, fmt.Errorf("s3://%s/%s: %w", bucket, key, err)
		}
		return 0, err
	}
	defer obj.Body.Close()

	var written int64
	err = writeFileAtomic(dest, func(w io.Writer) error {
		n, err := io.Copy(w, obj.Body)
		written = n
		if err != nil {
			return fmt.Errorf("read s3://%s/%s: %w", bucket, key, err)
		}
		if obj.Info.Size > 0 && n != obj.Info.Size {
			return fmt.Errorf("read s3://%s/%s: got %d of %d bytes: %w", bucket, key, n, obj.Info.Size, io.ErrUnexpectedEOF)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}
