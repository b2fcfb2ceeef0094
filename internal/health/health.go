// Package health backs the check command: source reachability and the state
// of the published files.
package health

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/snapetech/iptvextract/internal/httpclient"
)

// SourceResult is the outcome of probing one source.
type SourceResult struct {
	URL     string
	Status  int
	Latency time.Duration
	Err     error
}

// checkSource fetches url (GET; some hosts reject HEAD) and discards the
// body. Only a 200 counts as healthy.
func checkSource(ctx context.Context, client *http.Client, url string) (int, error) {
	if url == "" {
		return 0, fmt.Errorf("no source URL configured")
	}
	if client == nil {
		client = httpclient.WithTimeout(15 * time.Second)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("source unreachable: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("source returned HTTP %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// CheckSources probes each URL in turn.
func CheckSources(ctx context.Context, client *http.Client, urls []string) []SourceResult {
	out := make([]SourceResult, 0, len(urls))
	for _, u := range urls {
		start := time.Now()
		status, err := checkSource(ctx, client, u)
		out = append(out, SourceResult{URL: u, Status: status, Latency: time.Since(start), Err: err})
	}
	return out
}

// CheckArtifacts verifies that the published playlist and guide exist and
// start like an M3U playlist and an XMLTV document.
func CheckArtifacts(playlistPath, guidePath string) error {
	if err := checkPrefix(playlistPath, func(line string) bool { return strings.HasPrefix(line, "#EXTM3U") }); err != nil {
		return fmt.Errorf("playlist: %w", err)
	}
	if err := checkPrefix(guidePath, func(line string) bool {
		return strings.HasPrefix(line, "<?xml") || strings.HasPrefix(line, "<tv")
	}); err != nil {
		return fmt.Errorf("guide: %w", err)
	}
	return nil
}

func checkPrefix(path string, ok func(firstLine string) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
		if line == "" {
			continue
		}
		if !ok(line) {
			return fmt.Errorf("%s: unexpected content", path)
		}
		return nil
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%s: empty file", path)
}
