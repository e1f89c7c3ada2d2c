package tunetray

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func newTestArtFetcher(t *testing.T, allowedDirs ...string) *ArtFetcher {
	t.Helper()
	f := NewArtFetcher(zap.NewNop().Sugar())
	f.allowedDirs = allowedDirs
	return f
}

func TestArtFetchFileFromAllowedDirectory(t *testing.T) {
	dir := t.TempDir()
	want := []byte("\x89PNG fake cover bytes")
	path := filepath.Join(dir, "cover.png")
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatal(err)
	}

	f := newTestArtFetcher(t, dir)

	got, err := f.Fetch("file://" + path)
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Error("fetched bytes differ from file contents")
	}
}

func TestArtFetchFileOutsideAllowListIsRejected(t *testing.T) {
	f := newTestArtFetcher(t, t.TempDir())

	_, err := f.Fetch("file:///etc/passwd")
	if err == nil {
		t.Fatal("expected path outside the allow-list to be rejected")
	}
	if !errors.Is(err, errOutsideAllowList) {
		t.Errorf("expected allow-list rejection, got: %v", err)
	}
}

func TestArtFetchFileSymlinkEscapeIsRejected(t *testing.T) {
	allowed := t.TempDir()
	outside := t.TempDir()

	secret := filepath.Join(outside, "secret.png")
	if err := os.WriteFile(secret, []byte("outside"), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(allowed, "cover.png")
	if err := os.Symlink(secret, link); err != nil {
		t.Skipf("symlinks not supported here: %v", err)
	}

	f := newTestArtFetcher(t, allowed)

	// the link lives inside the allowed directory, but its target does not
	if _, err := f.Fetch("file://" + link); !errors.Is(err, errOutsideAllowList) {
		t.Errorf("expected symlink escape to be rejected, got: %v", err)
	}
}

func TestArtFetchFileMissingIsAnError(t *testing.T) {
	dir := t.TempDir()
	f := newTestArtFetcher(t, dir)

	if _, err := f.Fetch("file://" + filepath.Join(dir, "nope.png")); err == nil {
		t.Fatal("expected missing file to error")
	}
}

func TestArtFetchHTTPSuccess(t *testing.T) {
	want := []byte("jpeg-ish payload")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(want)
	}))
	defer server.Close()

	f := newTestArtFetcher(t)

	got, err := f.Fetch(server.URL)
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Error("fetched bytes differ from server response")
	}
}

func TestArtFetchHTTPOversizeBodyIsRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chunk := strings.Repeat("x", 1024*1024)
		for i := 0; i < 11; i++ {
			w.Write([]byte(chunk))
		}
	}))
	defer server.Close()

	f := newTestArtFetcher(t)

	if _, err := f.Fetch(server.URL); err == nil {
		t.Fatal("expected body over the size ceiling to be rejected")
	}
}

func TestArtFetchHTTPNon200IsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := newTestArtFetcher(t)

	if _, err := f.Fetch(server.URL); err == nil {
		t.Fatal("expected non-200 response to error")
	}
}

func TestArtFetchUnsupportedScheme(t *testing.T) {
	f := newTestArtFetcher(t)

	if _, err := f.Fetch("ftp://example.com/cover.png"); err == nil {
		t.Fatal("expected unsupported scheme to error")
	}
}

func TestArtStaleDropsSupersededResults(t *testing.T) {
	f := newTestArtFetcher(t)

	f.mu.Lock()
	f.generations["spotify"] = 2
	f.mu.Unlock()

	superseded := ArtResult{BusName: "spotify", generation: 1}
	current := ArtResult{BusName: "spotify", generation: 2}
	otherPlayer := ArtResult{BusName: "vlc", generation: 0}

	if !f.Stale(superseded) {
		t.Error("result from an older dispatch must be stale")
	}
	if f.Stale(current) {
		t.Error("result from the latest dispatch must not be stale")
	}
	// dispatches for one player never invalidate another player's fetch
	if f.Stale(otherPlayer) {
		t.Error("unrelated player's result must not be stale")
	}
}

func TestArtFetchAsyncDeliversResult(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cover.png")
	if err := os.WriteFile(path, []byte("cover"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := newTestArtFetcher(t, dir)
	f.FetchAsync("spotify", "file://"+path)

	result := <-f.Results()
	if result.BusName != "spotify" {
		t.Errorf("unexpected bus identifier %q", result.BusName)
	}
	if string(result.Data) != "cover" {
		t.Errorf("unexpected payload %q", result.Data)
	}
	if f.Stale(result) {
		t.Error("freshly delivered result must not be stale")
	}
}

func TestArtFetchAsyncRejectionDeliversNilData(t *testing.T) {
	f := newTestArtFetcher(t, t.TempDir())
	f.FetchAsync("spotify", "file:///etc/passwd")

	result := <-f.Results()
	if result.Data != nil {
		t.Error("rejected fetch must deliver nil data, signalling no art")
	}
}
