package app

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"hoard/internal/core"
)

// ListSource is a Discoverer backed by a plain list of URLs, either from
// CLI arguments or a text file (one URL per line, # starts a comment).
// Each URL becomes one candidate targeting destDir.
type ListSource struct {
	name    string
	urls    []string
	destDir string
}

var _ core.Discoverer = (*ListSource)(nil)

// NewListSource creates a discoverer over an in-memory URL list.
func NewListSource(name string, urls []string, destDir string) *ListSource {
	return &ListSource{name: name, urls: urls, destDir: destDir}
}

// NewListSourceFromFile reads a URL list file and returns a discoverer
// over its contents.
func NewListSourceFromFile(path, destDir string) (*ListSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening url list: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading url list: %w", err)
	}

	return &ListSource{name: "list:" + path, urls: urls, destDir: destDir}, nil
}

func (s *ListSource) Name() string { return s.name }

// Discover emits one candidate per URL that is not already recorded.
func (s *ListSource) Discover(ctx context.Context, session core.DiscoverySession) error {
	for _, u := range s.urls {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if session.IsDone(core.NamespaceWebsites, u, u) {
			continue
		}
		session.Emit(core.Candidate{
			SourcePage:   u,
			MediaURL:     u,
			DownloadPath: s.destDir,
		})
	}
	return nil
}
