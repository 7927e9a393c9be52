// Package source classifies dataset descriptors and fetches remote datasets
// into a local cache file.
package source

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

type Kind string

const (
	KindLocal       Kind = "local"
	KindDrive       Kind = "drive"
	KindHTTP        Kind = "http"
	KindObjectStore Kind = "object_store"
)

// DriveDownloadBase is the endpoint used to download Google Drive files by id.
const DriveDownloadBase = "https://drive.google.com/uc"

var driveIDPattern = regexp.MustCompile(`/d/([a-zA-Z0-9_-]+)`)

// Descriptor is a parsed dataset locator.
type Descriptor struct {
	Raw  string
	Kind Kind
	// Path is set for KindLocal.
	Path string
	// URL is the download URL for KindDrive and KindHTTP.
	URL string
	// FileID is the Drive file id for KindDrive.
	FileID string
	// Bucket and Key are set for KindObjectStore.
	Bucket string
	Key    string
}

func (d Descriptor) Remote() bool {
	return d.Kind != KindLocal
}

// Parse classifies raw as a local path, a Google Drive share link, an
// http(s) URL or an s3://bucket/key locator.
func Parse(raw string) (Descriptor, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Descriptor{}, fmt.Errorf("descriptor is required")
	}

	lower := strings.ToLower(trimmed)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return parseHTTP(trimmed)
	case strings.HasPrefix(lower, "s3://"):
		return parseObjectStore(trimmed)
	case strings.HasPrefix(lower, "file://"):
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return Descriptor{}, fmt.Errorf("parse file URL %q: %w", trimmed, err)
		}
		return Descriptor{Raw: raw, Kind: KindLocal, Path: filepath.FromSlash(parsed.Path)}, nil
	default:
		return Descriptor{Raw: raw, Kind: KindLocal, Path: trimmed}, nil
	}
}

func parseHTTP(raw string) (Descriptor, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return Descriptor{}, fmt.Errorf("parse URL %q: %w", raw, err)
	}
	if parsed.Host == "" {
		return Descriptor{}, fmt.Errorf("URL %q has no host", raw)
	}

	if isGoogleHost(parsed.Hostname()) {
		if match := driveIDPattern.FindStringSubmatch(parsed.Path); match != nil {
			return Descriptor{
				Raw:    raw,
				Kind:   KindDrive,
				FileID: match[1],
				URL:    DriveDownloadURL(DriveDownloadBase, match[1]),
			}, nil
		}
	}
	return Descriptor{Raw: raw, Kind: KindHTTP, URL: parsed.String()}, nil
}

func parseObjectStore(raw string) (Descriptor, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return Descriptor{}, fmt.Errorf("parse object store URL %q: %w", raw, err)
	}
	bucket := strings.TrimSpace(parsed.Host)
	key := strings.TrimPrefix(parsed.Path, "/")
	if bucket == "" || key == "" {
		return Descriptor{}, fmt.Errorf("object store locator %q must be s3://bucket/key", raw)
	}
	return Descriptor{Raw: raw, Kind: KindObjectStore, Bucket: bucket, Key: key}, nil
}

// DriveDownloadURL builds the direct download URL for a Drive file id.
func DriveDownloadURL(base, fileID string) string {
	values := url.Values{}
	values.Set("export", "download")
	values.Set("confirm", "t")
	values.Set("id", fileID)
	return strings.TrimRight(base, "?") + "?" + values.Encode()
}

func isGoogleHost(host string) bool {
	host = strings.ToLower(host)
	return host == "drive.google.com" || host == "docs.google.com"
}
