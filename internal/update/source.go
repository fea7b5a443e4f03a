package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// maxManifestSize bounds the metadata payload read from the remote source
const maxManifestSize = 1 << 20

// errMalformedPayload marks metadata that decoded but is unusable
var errMalformedPayload = errors.New("malformed release payload")

// HTTPSource fetches release metadata from an HTTP endpoint.
// It understands the keel manifest and the GitHub "latest release" document.
type HTTPSource struct {
	url      string
	token    string // Optional bearer token
	retries  int
	platform Platform
	client   *http.Client
}

// manifest covers both accepted payload shapes
type manifest struct {
	// keel manifest
	Version      string    `json:"version"`
	DownloadURL  string    `json:"download_url"`
	Checksum     string    `json:"checksum"`
	ReleaseNotes string    `json:"release_notes"`
	PublishedAt  time.Time `json:"published_at"`

	// GitHub release
	TagName    string `json:"tag_name"`
	Body       string `json:"body"`
	ZipballURL string `json:"zipball_url"`
	Assets     []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

// NewHTTPSource creates a source for the given metadata URL
func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{
		url:      url,
		platform: Detect(),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithToken sets an optional bearer token
func (s *HTTPSource) WithToken(token string) *HTTPSource {
	s.token = token
	return s
}

// WithTimeout sets the per-request timeout
func (s *HTTPSource) WithTimeout(d time.Duration) *HTTPSource {
	s.client.Timeout = d
	return s
}

// WithPlatform overrides the platform used to pick release assets
func (s *HTTPSource) WithPlatform(p Platform) *HTTPSource {
	s.platform = p
	return s
}

// WithRetries sets how many times a transient failure is retried
func (s *HTTPSource) WithRetries(n int) *HTTPSource {
	s.retries = n
	return s
}

// Identity returns the metadata URL
func (s *HTTPSource) Identity() string {
	return s.url
}

// Latest fetches the newest release
func (s *HTTPSource) Latest(ctx context.Context) (Release, error) {
	var m *manifest
	op := func() error {
		var err error
		m, err = s.fetchManifest(ctx)
		if err != nil {
			log.Debugf("fetching release metadata from %s: %v", s.url, err)
		}
		return permanentUnlessTransient(err)
	}
	if err := backoff.Retry(op, newBackoff(ctx, s.retries)); err != nil {
		return Release{}, err
	}

	if m.TagName != "" && m.Version == "" {
		return s.fromGitHub(ctx, m)
	}
	if strings.TrimSpace(m.Version) == "" {
		return Release{}, fmt.Errorf("%w: missing version", errMalformedPayload)
	}
	if strings.TrimSpace(m.DownloadURL) == "" {
		return Release{}, fmt.Errorf("%w: missing download_url", errMalformedPayload)
	}
	return Release{
		Version:     m.Version,
		DownloadURL: m.DownloadURL,
		Checksum:    m.Checksum,
		Notes:       m.ReleaseNotes,
		PublishedAt: m.PublishedAt,
	}, nil
}

// fetchManifest performs one GET of the metadata URL
func (s *HTTPSource) fetchManifest(ctx context.Context) (*manifest, error) {
	body, err := s.get(ctx, s.url, "application/json")
	if err != nil {
		return nil, err
	}

	var m manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: %v", errMalformedPayload, err))
	}
	return &m, nil
}

// fromGitHub maps a GitHub release onto a Release
func (s *HTTPSource) fromGitHub(ctx context.Context, m *manifest) (Release, error) {
	rel := Release{
		Version: m.TagName,
		Notes:   m.Body,
	}

	var checksumURL, assetName string
	best := 0
	for _, asset := range m.Assets {
		if asset.Name == "checksums.txt" {
			checksumURL = asset.BrowserDownloadURL
			continue
		}
		if score := s.platform.AssetScore(asset.Name); score > best {
			best = score
			rel.DownloadURL = asset.BrowserDownloadURL
			assetName = asset.Name
		}
	}
	if rel.DownloadURL == "" {
		rel.DownloadURL = m.ZipballURL
	}
	if rel.DownloadURL == "" {
		return Release{}, fmt.Errorf("%w: release %s has no downloadable asset", errMalformedPayload, m.TagName)
	}

	if checksumURL != "" && assetName != "" {
		body, err := s.get(ctx, checksumURL, "text/plain")
		if err != nil {
			return Release{}, fmt.Errorf("failed to fetch checksums: %w", err)
		}
		sums := parseChecksums(strings.NewReader(string(body)))
		rel.Checksum = sums[assetName]
	}

	return rel, nil
}

func (s *HTTPSource) get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// isArchiveName returns true for artifact names keel can apply
func isArchiveName(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".zip") ||
		strings.HasSuffix(lower, ".tar.gz") ||
		strings.HasSuffix(lower, ".tgz")
}
