package update

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPSource_KeelManifest(t *testing.T) {
	var gotAuth, gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"version": "v1.4.0",
			"download_url": "https://example.com/app-1.4.0.zip",
			"checksum": "sha256:abc123",
			"release_notes": "Bug fixes",
			"published_at": "2026-05-01T10:00:00Z"
		}`)
	}))
	defer server.Close()

	rel, err := NewHTTPSource(server.URL).WithToken("secret").Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}

	if rel.Version != "v1.4.0" || rel.DownloadURL != "https://example.com/app-1.4.0.zip" {
		t.Errorf("Latest() = %+v", rel)
	}
	if rel.Checksum != "sha256:abc123" || rel.Notes != "Bug fixes" {
		t.Errorf("Latest() = %+v", rel)
	}
	if rel.PublishedAt.IsZero() {
		t.Error("PublishedAt not parsed")
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotAgent != userAgent {
		t.Errorf("User-Agent = %q", gotAgent)
	}
}

func TestHTTPSource_GitHubRelease(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"tag_name": "v2.1.0",
			"body": "notes",
			"zipball_url": "%[1]s/zipball/v2.1.0",
			"assets": [
				{"name": "app-2.1.0-darwin-arm64.tar.gz", "browser_download_url": "%[1]s/dl/darwin"},
				{"name": "app-2.1.0.zip", "browser_download_url": "%[1]s/dl/generic"},
				{"name": "app-2.1.0-linux-amd64.tar.gz", "browser_download_url": "%[1]s/dl/linux"},
				{"name": "checksums.txt", "browser_download_url": "%[1]s/dl/checksums.txt"}
			]
		}`, server.URL)
	})
	mux.HandleFunc("/dl/checksums.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "aaaa  app-2.1.0-darwin-arm64.tar.gz\nbbbb  app-2.1.0-linux-amd64.tar.gz\ncccc  app-2.1.0.zip\n")
	})

	tests := []struct {
		name     string
		platform Platform
		wantURL  string
		wantSum  string
	}{
		{"matching platform", Platform{OS: "linux", Arch: "amd64"}, "/dl/linux", "bbbb"},
		{"other platform", Platform{OS: "windows", Arch: "amd64"}, "/dl/generic", "cccc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewHTTPSource(server.URL + "/releases/latest").WithPlatform(tt.platform)
			rel, err := src.Latest(context.Background())
			if err != nil {
				t.Fatalf("Latest() error = %v", err)
			}
			if rel.Version != "v2.1.0" || rel.Notes != "notes" {
				t.Errorf("Latest() = %+v", rel)
			}
			if rel.DownloadURL != server.URL+tt.wantURL {
				t.Errorf("DownloadURL = %s, want %s", rel.DownloadURL, server.URL+tt.wantURL)
			}
			if rel.Checksum != tt.wantSum {
				t.Errorf("Checksum = %q, want %q", rel.Checksum, tt.wantSum)
			}
		})
	}
}

func TestHTTPSource_GitHubZipballFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"tag_name": "v3.0.0", "zipball_url": "https://api.github.com/repos/o/r/zipball/v3.0.0", "assets": []}`)
	}))
	defer server.Close()

	rel, err := NewHTTPSource(server.URL).Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if rel.DownloadURL != "https://api.github.com/repos/o/r/zipball/v3.0.0" {
		t.Errorf("DownloadURL = %s", rel.DownloadURL)
	}
	if rel.Checksum != "" {
		t.Errorf("Checksum = %q, want none", rel.Checksum)
	}
}

func TestHTTPSource_NotFoundNotRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewHTTPSource(server.URL).WithRetries(3).Latest(context.Background())
	var herr *HTTPStatusError
	if !errors.As(err, &herr) || herr.StatusCode != http.StatusNotFound {
		t.Fatalf("Latest() error = %v, want 404 status error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestHTTPSource_RetriesServerError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"version": "1.0.1", "download_url": "https://example.com/a.zip"}`)
	}))
	defer server.Close()

	rel, err := NewHTTPSource(server.URL).WithRetries(2).Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if rel.Version != "1.0.1" || calls != 2 {
		t.Errorf("Latest() = %+v after %d calls", rel, calls)
	}
}

func TestHTTPSource_MalformedPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>maintenance</html>"},
		{"missing version", `{"download_url": "https://example.com/a.zip"}`},
		{"blank version", `{"version": "  "}`},
		{"missing download_url", `{"version": "2.0.0", "release_notes": "new"}`},
		{"blank download_url", `{"version": "2.0.0", "download_url": " "}`},
		{"github release without assets", `{"tag_name": "v2.0.0", "assets": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			_, err := NewHTTPSource(server.URL).WithRetries(2).Latest(context.Background())
			if !errors.Is(err, errMalformedPayload) {
				t.Errorf("Latest() error = %v, want errMalformedPayload", err)
			}
		})
	}
}

func TestHTTPSource_Identity(t *testing.T) {
	src := NewHTTPSource("https://updates.example.com/latest.json")
	if src.Identity() != "https://updates.example.com/latest.json" {
		t.Errorf("Identity() = %s", src.Identity())
	}
}

func TestIsArchiveName(t *testing.T) {
	for name, want := range map[string]bool{
		"app.zip":     true,
		"APP.ZIP":     true,
		"app.tar.gz":  true,
		"app.tgz":     true,
		"app.tar":     false,
		"checksums":   false,
		"app.zip.sig": false,
	} {
		if got := isArchiveName(name); got != want {
			t.Errorf("isArchiveName(%q) = %v, want %v", name, got, want)
		}
	}
	if !strings.HasPrefix(userAgent, "keel") {
		t.Errorf("userAgent = %s", userAgent)
	}
}
