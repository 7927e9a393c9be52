package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/fqdata/fqdata/internal/storage"
)

func TestOpenUsesPrefixAndNormalizedKey(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("datasets/prod", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	obj, err := store.Open(context.Background(), "bucket-a", "/fq/standard.db")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	body, _ := io.ReadAll(obj.Body)
	_ = obj.Body.Close()

	if fake.lastBucket != "bucket-a" {
		t.Fatalf("bucket = %q", fake.lastBucket)
	}
	if fake.lastKey != "datasets/prod/fq/standard.db" {
		t.Fatalf("key = %q", fake.lastKey)
	}
	if string(body) != "datasets/prod/fq/standard.db" {
		t.Fatalf("body = %q", string(body))
	}
	if obj.Info.Bucket != "bucket-a" || obj.Info.Size != int64(len(body)) {
		t.Fatalf("Info = %+v", obj.Info)
	}
}

func TestOpenRejectsPathTraversal(t *testing.T) {
	store, err := NewWithClient("", &fakeClient{})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if _, err := store.Open(context.Background(), "bucket-a", "../secrets.db"); err == nil {
		t.Fatal("expected path traversal validation error")
	}
}

func TestOpenRequiresBucket(t *testing.T) {
	store, err := NewWithClient("", &fakeClient{})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if _, err := store.Open(context.Background(), " ", "file.db"); err == nil {
		t.Fatal("expected bucket validation error")
	}
}

func TestOpenMapsMissingObject(t *testing.T) {
	store, err := NewWithClient("", &fakeClient{openErr: storage.ErrObjectNotFound})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if _, err := store.Open(context.Background(), "bucket-a", "missing.db"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Open() error = %v, want ErrObjectNotFound", err)
	}
}

func TestStatSetsBucket(t *testing.T) {
	store, err := NewWithClient("", &fakeClient{})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	info, err := store.Stat(context.Background(), "bucket-a", "file.db")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Bucket != "bucket-a" || info.Key != "file.db" || info.Size != 10 {
		t.Fatalf("Stat() = %+v", info)
	}
}

func TestParseEndpoint(t *testing.T) {
	endpoint, secure, err := parseEndpoint("https://minio.example.com", false)
	if err != nil {
		t.Fatalf("parseEndpoint() error = %v", err)
	}
	if endpoint != "minio.example.com" || !secure {
		t.Fatalf("endpoint/secure = %q/%v", endpoint, secure)
	}

	endpoint, secure, err = parseEndpoint("localhost:9000", true)
	if err != nil {
		t.Fatalf("parseEndpoint() error = %v", err)
	}
	if endpoint != "localhost:9000" || !secure {
		t.Fatalf("endpoint/secure = %q/%v", endpoint, secure)
	}
}

type fakeClient struct {
	lastBucket string
	lastKey    string
	openErr    error
}

func (f *fakeClient) Open(_ context.Context, bucket, key string) (storage.Object, error) {
	f.lastBucket = bucket
	f.lastKey = key
	if f.openErr != nil {
		return storage.Object{}, f.openErr
	}
	return storage.Object{
		Body: io.NopCloser(strings.NewReader(key)),
		Info: storage.ObjectInfo{Key: key, Size: int64(len(key))},
	}, nil
}

func (f *fakeClient) Stat(_ context.Context, _, key string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{Key: key, Size: 10, LastModified: time.Now().UTC()}, nil
}
