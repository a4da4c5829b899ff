package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hoard/internal/core"
)

// defaultFetchTimeout bounds a plain streamed fetch. Finite timeouts are
// mandatory: a hung transfer must never wedge a worker forever.
const defaultFetchTimeout = 30 * time.Second

// DirectStrategy streams the media URL straight to a local file over
// plain HTTP. It is the middle layer of the fallback chain: cheaper than
// an extractor, but only works for direct media links.
type DirectStrategy struct {
	client    *http.Client
	userAgent string
}

var _ core.Strategy = (*DirectStrategy)(nil)

// NewDirectStrategy creates a direct-fetch strategy. timeout <= 0 uses
// the default.
func NewDirectStrategy(timeout time.Duration, userAgent string) *DirectStrategy {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &DirectStrategy{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

func (s *DirectStrategy) Name() string { return "direct" }

// Wants accepts everything: a direct fetch is always worth a try.
func (s *DirectStrategy) Wants(core.Candidate) bool { return true }

// Attempt streams the media URL to a file inside workDir. HTTP statuses
// map onto the failure taxonomy: 403/404/410 are permanent, 429/5xx are
// transient, an HTML body where media was expected is permanent.
func (s *DirectStrategy) Attempt(ctx context.Context, c core.Candidate, workDir string) (string, error) {
	dir := filepath.Join(workDir, "direct")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating work dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.MediaURL, nil)
	if err != nil {
		return "", core.Permanent("invalid media URL", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	if c.SourcePage != "" {
		req.Header.Set("Referer", c.SourcePage)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", c.MediaURL, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return "", err
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "text/html") {
		return "", core.Permanent("response is an HTML page, not media", nil)
	}

	name := filenameFromURL(c.MediaURL, "download.bin")
	target := filepath.Join(dir, name)
	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("creating file: %w", err)
	}

	_, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		os.Remove(target)
		return "", fmt.Errorf("streaming %s: %w", c.MediaURL, copyErr)
	}
	if closeErr != nil {
		os.Remove(target)
		return "", fmt.Errorf("finalizing file: %w", closeErr)
	}

	return target, nil
}

// classifyStatus maps an HTTP status onto the failure taxonomy.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusForbidden:
		return core.Permanent("HTTP 403 Forbidden", nil)
	case status == http.StatusNotFound:
		return core.Permanent("HTTP 404 Not Found", nil)
	case status == http.StatusGone:
		return core.Permanent("HTTP 410 Gone", nil)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("HTTP 429 too many requests")
	case status >= 500:
		return fmt.Errorf("HTTP %d server error", status)
	default:
		return core.Permanent(fmt.Sprintf("HTTP %d", status), nil)
	}
}
