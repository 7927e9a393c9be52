package source

import (
	"path/filepath"
	"testing"
)

func TestParseClassifiesDescriptors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		kind Kind
	}{
		{name: "relative path", raw: "data/standard.db", kind: KindLocal},
		{name: "absolute path", raw: "/srv/data/standard.db", kind: KindLocal},
		{name: "file url", raw: "file:///srv/data/standard.db", kind: KindLocal},
		{name: "drive share", raw: "https://drive.google.com/file/d/1AbC_d-9/view?usp=sharing", kind: KindDrive},
		{name: "plain https", raw: "https://example.com/standard.db", kind: KindHTTP},
		{name: "google host without id", raw: "https://drive.google.com/drive/folders", kind: KindHTTP},
		{name: "object store", raw: "s3://datasets/fq/standard.db", kind: KindObjectStore},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			desc, err := Parse(tc.raw)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tc.raw, err)
			}
			if desc.Kind != tc.kind {
				t.Fatalf("Parse(%q).Kind = %q, want %q", tc.raw, desc.Kind, tc.kind)
			}
			if desc.Remote() == (tc.kind == KindLocal) {
				t.Fatalf("Parse(%q).Remote() = %v", tc.raw, desc.Remote())
			}
		})
	}
}

func TestParseDriveBuildsDownloadURL(t *testing.T) {
	desc, err := Parse("https://drive.google.com/file/d/1AbC_d-9/view?usp=sharing")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if desc.FileID != "1AbC_d-9" {
		t.Fatalf("FileID = %q", desc.FileID)
	}
	want := "https://drive.google.com/uc?confirm=t&export=download&id=1AbC_d-9"
	if desc.URL != want {
		t.Fatalf("URL = %q, want %q", desc.URL, want)
	}
}

func TestParseFileURLUsesPath(t *testing.T) {
	desc, err := Parse("file:///srv/data/standard.db")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if desc.Path != filepath.FromSlash("/srv/data/standard.db") {
		t.Fatalf("Path = %q", desc.Path)
	}
}

func TestParseObjectStore(t *testing.T) {
	desc, err := Parse("s3://datasets/fq/standard.db")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if desc.Bucket != "datasets" || desc.Key != "fq/standard.db" {
		t.Fatalf("bucket/key = %q/%q", desc.Bucket, desc.Key)
	}

	if _, err := Parse("s3://datasets"); err == nil {
		t.Fatal("expected error for locator without key")
	}
}

func TestParseRejectsEmpty(t *testing.T) {
	if _, err := Parse("   "); err == nil {
		t.Fatal("expected error for empty descriptor")
	}
}
