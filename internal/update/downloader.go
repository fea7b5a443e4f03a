package update

import (
	"bufio"
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// HTTPDownloader downloads artifacts over HTTP
type HTTPDownloader struct {
	client  *http.Client
	token   string
	retries int
}

// NewHTTPDownloader creates a new HTTP downloader
func NewHTTPDownloader() *HTTPDownloader {
	return &HTTPDownloader{
		client: &http.Client{},
	}
}

// WithToken sets an optional bearer token sent with every request
func (d *HTTPDownloader) WithToken(token string) *HTTPDownloader {
	d.token = token
	return d
}

// WithRetries sets how many times a transient failure is retried
func (d *HTTPDownloader) WithRetries(n int) *HTTPDownloader {
	d.retries = n
	return d
}

// Download downloads a file from url to dst. dst is written under a
// temporary name and renamed only once the body was fully received.
func (d *HTTPDownloader) Download(ctx context.Context, url string, dst string) error {
	log.Debugf("starting download from %s", url)

	op := func() error {
		return permanentUnlessTransient(d.downloadOnce(ctx, url, dst))
	}
	notify := func(err error, wait time.Duration) {
		log.Warnf("download failed, retrying after %v: %v", wait, err)
	}
	if err := backoff.RetryNotify(op, newBackoff(ctx, d.retries), notify); err != nil {
		return err
	}

	log.Infof("downloaded %s to %s", url, dst)
	return nil
}

func (d *HTTPDownloader) downloadOnce(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &HTTPStatusError{URL: url, StatusCode: resp.StatusCode}
	}

	tmp := dst + ".part"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create destination file %q: %w", dst, err))
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write response body to file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return backoff.Permanent(fmt.Errorf("failed to close %q: %w", tmp, err))
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return backoff.Permanent(fmt.Errorf("failed to move download into place: %w", err))
	}
	return nil
}

// VerifyChecksum compares the file's digest with checksum, which is a hex
// digest optionally prefixed by "sha256:" or "sha512:" (sha256 if absent).
func (d *HTTPDownloader) VerifyChecksum(file, checksum string) error {
	algo, want, err := splitChecksum(checksum)
	if err != nil {
		return err
	}

	got, err := calculateDigest(file, algo)
	if err != nil {
		return fmt.Errorf("failed to hash %s: %w", getFilename(file), err)
	}

	if !strings.EqualFold(got, want) {
		return fmt.Errorf("checksum mismatch for %s: expected %s, got %s", getFilename(file), want, got)
	}
	return nil
}

// parseChecksums reads sha256sum-style lines; malformed lines are skipped
func parseChecksums(r io.Reader) map[string]string {
	sums := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		// sha256sum marks binary mode with a leading '*'
		sums[strings.TrimPrefix(fields[1], "*")] = fields[0]
	}
	return sums
}

func splitChecksum(checksum string) (string, string, error) {
	checksum = strings.TrimSpace(checksum)
	algo, digest := "sha256", checksum
	if i := strings.IndexByte(checksum, ':'); i >= 0 {
		algo, digest = strings.ToLower(checksum[:i]), checksum[i+1:]
	}

	if digest == "" {
		return "", "", fmt.Errorf("empty checksum")
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", "", fmt.Errorf("checksum is not hex encoded: %q", digest)
	}
	switch algo {
	case "sha256", "sha512":
		return algo, digest, nil
	default:
		return "", "", fmt.Errorf("unsupported checksum algorithm %q", algo)
	}
}

// calculateSHA256 returns the hex sha256 digest of a file
func calculateSHA256(path string) (string, error) {
	return calculateDigest(path, "sha256")
}

func calculateDigest(path, algo string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	var h hash.Hash
	switch algo {
	case "sha512":
		h = sha512.New()
	default:
		h = sha256.New()
	}

	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// getFilename returns the last element of a path
func getFilename(path string) string {
	return filepath.Base(path)
}
