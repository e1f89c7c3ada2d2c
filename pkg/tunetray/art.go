package tunetray

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const (
	// size ceiling applied to both local and remote art sources
	maxArtBytes = 10 * 1024 * 1024

	artRequestTimeout = 10 * time.Second
	artConnectTimeout = 5 * time.Second
	artMaxRedirects   = 3
)

// ArtResult is the completion message for one background art fetch. Data is
// nil when the source was rejected, oversize or unreadable; that renders as
// "no art", never as an error.
type ArtResult struct {
	BusName string
	URL     string
	Data    []byte

	generation uint64
}

// ArtFetcher resolves album art references. file:// paths are canonicalized
// and restricted to an allow-list of known-safe directories; http(s) sources
// go through a pooled client with timeouts and a redirect cap.
type ArtFetcher struct {
	logger *zap.SugaredLogger
	client *retryablehttp.Client

	allowedDirs []string

	results chan ArtResult

	mu          sync.Mutex
	generations map[string]uint64
}

// NewArtFetcher builds a fetcher with the default allow-list: the user's
// cache and config directories, the system temp directory and the session
// runtime directory (players drop downloaded covers in all four)
func NewArtFetcher(logger *zap.SugaredLogger) *ArtFetcher {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil
	client.HTTPClient = &http.Client{
		Timeout: artRequestTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: artConnectTimeout,
			}).DialContext,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= artMaxRedirects {
				return fmt.Errorf("stopped after %d redirects", artMaxRedirects)
			}
			return nil
		},
	}

	var allowed []string
	if dir, err := os.UserCacheDir(); err == nil {
		allowed = append(allowed, dir)
	}
	if dir, err := os.UserConfigDir(); err == nil {
		allowed = append(allowed, dir)
	}
	allowed = append(allowed, os.TempDir())
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		allowed = append(allowed, dir)
	}

	return &ArtFetcher{
		logger:      logger.Named("art"),
		client:      client,
		allowedDirs: allowed,
		results:     make(chan ArtResult, 8),
		generations: make(map[string]uint64),
	}
}

// Results returns the channel completion messages are delivered on
func (f *ArtFetcher) Results() <-chan ArtResult {
	return f.results
}

// FetchAsync dispatches a background fetch whose completion arrives on
// Results. A later dispatch for the same player supersedes earlier ones:
// stale completions carry an old generation and are dropped by Stale.
func (f *ArtFetcher) FetchAsync(busName, url string) {
	f.mu.Lock()
	f.generations[busName]++
	generation := f.generations[busName]
	f.mu.Unlock()

	go func() {
		data, err := f.Fetch(url)
		if err != nil {
			f.logger.Debugw("Art fetch yielded no art", "url", url, "error", err)
			data = nil
		}

		result := ArtResult{
			BusName:    busName,
			URL:        url,
			Data:       data,
			generation: generation,
		}

		select {
		case f.results <- result:
		default:
			f.logger.Debugw("Art results channel full, dropping", "url", url)
		}
	}()
}

// Stale reports whether a result has been superseded by a newer dispatch
// for the same player
func (f *ArtFetcher) Stale(result ArtResult) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return result.generation != f.generations[result.BusName]
}

// Fetch synchronously resolves one art reference
func (f *ArtFetcher) Fetch(url string) ([]byte, error) {
	switch {
	case strings.HasPrefix(url, "file://"):
		return f.fetchFile(strings.TrimPrefix(url, "file://"))
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		return f.fetchHTTP(url)
	default:
		return nil, fmt.Errorf("unsupported art url scheme: %s", url)
	}
}

var errOutsideAllowList = errors.New("path outside allowed directories")

// fetchFile canonicalizes the path and refuses anything outside the
// allow-list before touching the file contents
func (f *ArtFetcher) fetchFile(path string) ([]byte, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve art path: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return nil, fmt.Errorf("canonicalize art path: %w", err)
	}

	if !f.pathAllowed(resolved) {
		return nil, fmt.Errorf("%w: %s", errOutsideAllowList, resolved)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat art file: %w", err)
	}
	if info.Size() > maxArtBytes {
		return nil, fmt.Errorf("art file too large: %d bytes", info.Size())
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("read art file: %w", err)
	}

	return data, nil
}

func (f *ArtFetcher) pathAllowed(resolved string) bool {
	for _, dir := range f.allowedDirs {
		canonical, err := filepath.EvalSymlinks(dir)
		if err != nil {
			canonical = dir
		}
		prefix := strings.TrimSuffix(canonical, string(filepath.Separator)) + string(filepath.Separator)
		if strings.HasPrefix(resolved, prefix) {
			return true
		}
	}
	return false
}

func (f *ArtFetcher) fetchHTTP(url string) ([]byte, error) {
	req, err := retryablehttp.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create art request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch art: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected art response status: %d", resp.StatusCode)
	}

	// read one byte past the ceiling to tell "exactly at the limit" apart
	// from "over it"
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read art body: %w", err)
	}
	if len(data) > maxArtBytes {
		return nil, fmt.Errorf("art download too large: more than %d bytes", maxArtBytes)
	}

	f.logger.Debugw("Fetched art", "url", url, "bytes", len(data))

	return data, nil
}
