package source

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

const maxErrorExcerpt = 512

// HTTPFetcher downloads datasets over http(s), including Drive download
// links.
type HTTPFetcher struct {
	Client *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}}
}

// Fetch downloads rawURL into dest. Drive answers with an HTML page instead
// of the file when the share is private or needs interactive confirmation;
// that is reported as an error for KindDrive.
func (f *HTTPFetcher) Fetch(ctx context.Context, kind Kind, rawURL, dest string) (int64, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorExcerpt))
		return 0, fmt.Errorf("download %s: status %d: %s", rawURL, resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}
	if kind == KindDrive && isHTML(resp.Header.Get("Content-Type")) {
		return 0, fmt.Errorf("download %s: drive returned an HTML page instead of the file; check that the share is public", rawURL)
	}

	var written int64
	err = writeFileAtomic(dest, func(w io.Writer) error {
		n, err := io.Copy(w, resp.Body)
		written = n
		if err != nil {
			return fmt.Errorf("download %s: %w", rawURL, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html"
}
