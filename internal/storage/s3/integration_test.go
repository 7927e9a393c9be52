//go:build integration

package s3

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fqdata/fqdata/internal/storage"
)

// Expects an object uploaded ahead of time, e.g. by the MinIO client:
//
//	mc cp standard.db local/fqdata-it/standard.db
func TestStoreReadsFromMinIO(t *testing.T) {
	endpoint := envOr("FQDATA_TEST_S3_ENDPOINT", "")
	if endpoint == "" {
		t.Skip("FQDATA_TEST_S3_ENDPOINT is not set")
	}

	store, err := New(Config{
		Endpoint:        endpoint,
		Region:          envOr("FQDATA_TEST_S3_REGION", "us-east-1"),
		AccessKeyID:     envOr("FQDATA_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey: envOr("FQDATA_TEST_S3_SECRET_KEY", "miniostorage"),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	bucket := envOr("FQDATA_TEST_S3_BUCKET", "fqdata-it")
	key := envOr("FQDATA_TEST_S3_KEY", "standard.db")

	stat, err := store.Stat(ctx, bucket, key)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	obj, err := store.Open(ctx, bucket, key)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	n, err := io.Copy(io.Discard, obj.Body)
	_ = obj.Body.Close()
	if err != nil {
		t.Fatalf("read object: %v", err)
	}
	if n != stat.Size || obj.Info.Size != stat.Size {
		t.Fatalf("read %d bytes, Open().Info.Size = %d, Stat().Size = %d", n, obj.Info.Size, stat.Size)
	}

	if _, err := store.Stat(ctx, bucket, key+".missing"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Stat() missing error = %v, want ErrObjectNotFound", err)
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
