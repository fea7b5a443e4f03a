package update

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func TestNewHTTPDownloader(t *testing.T) {
	downloader := NewHTTPDownloader()

	if downloader.client == nil {
		t.Error("HTTP client should not be nil")
	}
}

func TestHTTPDownloaderDownload_Success(t *testing.T) {
	testContent := []byte("release archive content")

	var gotAuth, gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAgent = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(testContent)
	}))
	defer server.Close()

	dstPath := filepath.Join(t.TempDir(), "artifact.zip")

	downloader := NewHTTPDownloader().WithToken("s3cret")
	if err := downloader.Download(context.Background(), server.URL, dstPath); err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	content, err := os.ReadFile(dstPath)
	if err != nil {
		t.Fatalf("Failed to read downloaded file: %v", err)
	}
	if string(content) != string(testContent) {
		t.Errorf("Content mismatch: got %s, want %s", content, testContent)
	}
	if gotAuth != "Bearer s3cret" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotAgent != userAgent {
		t.Errorf("User-Agent = %q, want %q", gotAgent, userAgent)
	}
	if _, err := os.Stat(dstPath + ".part"); !os.IsNotExist(err) {
		t.Error("temporary download file left behind")
	}
}

func TestHTTPDownloaderDownload_HTTPError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dstPath := filepath.Join(t.TempDir(), "artifact.zip")

	downloader := NewHTTPDownloader().WithRetries(3)
	err := downloader.Download(context.Background(), server.URL, dstPath)
	if err == nil {
		t.Fatal("Expected error for 404 response")
	}

	// client errors are not retried
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("server called %d times, want 1", n)
	}
	if _, err := os.Stat(dstPath); !os.IsNotExist(err) {
		t.Error("File should not exist after failed download")
	}
}

func TestHTTPDownloaderDownload_RetriesTransient(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	dstPath := filepath.Join(t.TempDir(), "artifact.zip")

	downloader := NewHTTPDownloader().WithRetries(2)
	if err := downloader.Download(context.Background(), server.URL, dstPath); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("server called %d times, want 2", n)
	}
}

func TestHTTPDownloaderDownload_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	downloader := NewHTTPDownloader()
	err := downloader.Download(context.Background(), url, filepath.Join(t.TempDir(), "artifact.zip"))
	if err == nil {
		t.Error("Expected error for closed server")
	}
}

func TestHTTPDownloaderDownload_InvalidDestination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("test"))
	}))
	defer server.Close()

	downloader := NewHTTPDownloader()
	err := downloader.Download(context.Background(), server.URL, "/invalid/path/that/does/not/exist")
	if err == nil {
		t.Error("Expected error for invalid destination path")
	}
}

func TestCalculateSHA256(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "test.txt")
	testContent := []byte("hello world")

	if err := os.WriteFile(testFile, testContent, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	checksum, err := calculateSHA256(testFile)
	if err != nil {
		t.Fatalf("calculateSHA256() error = %v", err)
	}

	sum := sha256.Sum256(testContent)
	expected := hex.EncodeToString(sum[:])

	if checksum != expected {
		t.Errorf("Checksum mismatch: got %s, want %s", checksum, expected)
	}
}

func TestCalculateSHA256_FileNotFound(t *testing.T) {
	_, err := calculateSHA256("/path/that/does/not/exist")
	if err == nil {
		t.Error("Expected error for non-existent file")
	}
}

func TestParseChecksums(t *testing.T) {
	checksums := `abc123  file1.zip
malformed
def456 *file2.tar.gz
onlyonefield
789fed  file3.tgz`

	result := parseChecksums(strings.NewReader(checksums))

	expected := map[string]string{
		"file1.zip":    "abc123",
		"file2.tar.gz": "def456",
		"file3.tgz":    "789fed",
	}

	if len(result) != len(expected) {
		t.Errorf("Expected %d checksums, got %d", len(expected), len(result))
	}
	for filename, checksum := range expected {
		if result[filename] != checksum {
			t.Errorf("Checksum mismatch for %s: got %s, want %s", filename, result[filename], checksum)
		}
	}
}

func writeArtifact(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app-1.1.0.zip")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	return path
}

func TestVerifyChecksum(t *testing.T) {
	content := []byte("archive content")
	file := writeArtifact(t, content)

	s256 := sha256.Sum256(content)
	s512 := sha512.Sum512(content)
	hex256 := hex.EncodeToString(s256[:])
	hex512 := hex.EncodeToString(s512[:])

	tests := []struct {
		name     string
		checksum string
		wantErr  string
	}{
		{name: "bare sha256", checksum: hex256},
		{name: "prefixed sha256", checksum: "sha256:" + hex256},
		{name: "upper case", checksum: strings.ToUpper(hex256)},
		{name: "sha512", checksum: "sha512:" + hex512},
		{name: "mismatch", checksum: strings.Repeat("0", 64), wantErr: "mismatch"},
		{name: "not hex", checksum: "sha256:zzzz", wantErr: "not hex"},
		{name: "unknown algorithm", checksum: "md5:" + hex256, wantErr: "unsupported"},
		{name: "empty", checksum: "  ", wantErr: "empty"},
	}

	downloader := NewHTTPDownloader()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := downloader.VerifyChecksum(file, tt.checksum)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("VerifyChecksum() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("VerifyChecksum() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestVerifyChecksum_FileNotFound(t *testing.T) {
	downloader := NewHTTPDownloader()
	err := downloader.VerifyChecksum(filepath.Join(t.TempDir(), "missing.zip"), strings.Repeat("a", 64))
	if err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestGetFilename(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{
			name: "unix path",
			path: "/tmp/test/file.bin",
			want: "file.bin",
		},
		{
			name: "simple filename",
			path: "file.bin",
			want: "file.bin",
		},
		{
			name: "nested path",
			path: "a/b/c/d/file.bin",
			want: "file.bin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := getFilename(tt.path)
			if got != tt.want {
				t.Errorf("getFilename(%s) = %s, want %s", tt.path, got, tt.want)
			}
		})
	}
}
