package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"icsfilter/internal/config"
	appLog "icsfilter/internal/log"
)

// FetchResult is a downloaded calendar body.
type FetchResult struct {
	URL       string
	Body      []byte
	FromCache bool // served from the local copy, not the response body
}

// validators are the HTTP cache validators remembered for one feed.
type validators struct {
	ETag         string    `yaml:"etag,omitempty"`
	LastModified string    `yaml:"last_modified,omitempty"`
	SavedAt      time.Time `yaml:"saved_at"`
}

// feedCache is the on-disk copy of one feed: its last good body and the
// validators that came with it.
type feedCache struct {
	dir string
}

func (c feedCache) bodyPath() string { return filepath.Join(c.dir, "body.ics") }
func (c feedCache) metaPath() string { return filepath.Join(c.dir, "validators.yaml") }

// load returns whatever is cached. Missing or unreadable files yield zero
// values; the cache is an optimization only.
func (c feedCache) load() (validators, []byte) {
	var v validators
	if data, err := os.ReadFile(c.metaPath()); err == nil {
		if yaml.Unmarshal(data, &v) != nil {
			v = validators{}
		}
	}
	body, _ := os.ReadFile(c.bodyPath())
	return v, body
}

// store replaces the cached body, then its validators.
func (c feedCache) store(v validators, body []byte) error {
	if err := config.WriteFileAtomic(c.bodyPath(), body, 0o600); err != nil {
		return err
	}
	v.SavedAt = time.Now().UTC()
	data, err := yaml.Marshal(&v)
	if err != nil {
		return err
	}
	return config.WriteFileAtomic(c.metaPath(), data, 0o600)
}

// Fetcher downloads calendar feeds with conditional GETs. A failed request
// is not retried; the previously cached body is served instead, if any.
type Fetcher struct {
	client *http.Client
	root   string
}

// NewFetcher returns a Fetcher caching feeds under cacheDir.
func NewFetcher(cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "icsfilter-cache")
	}
	return &Fetcher{
		client: &http.Client{Timeout: 15 * time.Second},
		root:   cacheDir,
	}
}

// Fetch downloads rawURL. Every failure is wrapped in ErrAcquisition.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (FetchResult, error) {
	res, err := f.get(ctx, rawURL)
	if err != nil {
		return FetchResult{}, fmt.Errorf("%w: %s: %v", ErrAcquisition, redactURL(rawURL), err)
	}
	return res, nil
}

func (f *Fetcher) cacheFor(rawURL string) feedCache {
	sum := sha256.Sum256([]byte(rawURL))
	return feedCache{dir: filepath.Join(f.root, hex.EncodeToString(sum[:8]))}
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (FetchResult, error) {
	if rawURL == "" {
		return FetchResult{}, errors.New("no source URL")
	}
	safe := redactURL(rawURL)
	cache := f.cacheFor(rawURL)
	known, cached := cache.load()

	// fallback serves the cached body in place of a failed response.
	fallback := func(cause error) (FetchResult, error) {
		if len(cached) == 0 {
			return FetchResult{}, cause
		}
		appLog.Error("feed unavailable, serving cached copy", cause, "url", safe)
		return FetchResult{URL: rawURL, Body: cached, FromCache: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if known.ETag != "" {
		req.Header.Set("If-None-Match", known.ETag)
	}
	if known.LastModified != "" {
		req.Header.Set("If-Modified-Since", known.LastModified)
	}

	appLog.Debug("feed request", "url", safe, "etag", known.ETag)
	resp, err := f.client.Do(req)
	if err != nil {
		return fallback(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		if len(cached) == 0 {
			return FetchResult{}, errors.New("304 Not Modified with nothing cached")
		}
		appLog.Info("feed unchanged", "url", safe)
		return FetchResult{URL: rawURL, Body: cached, FromCache: true}, nil

	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fallback(err)
		}
		fresh := validators{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := cache.store(fresh, body); err != nil {
			appLog.Error("feed cache not updated", err, "url", safe)
		}
		appLog.Info("feed downloaded", "url", safe, "bytes", len(body))
		return FetchResult{URL: rawURL, Body: body}, nil

	default:
		return fallback(fmt.Errorf("unexpected status %s", resp.Status))
	}
}

// ReadDocument reads a local calendar file. Failures wrap ErrAcquisition.
func ReadDocument(path string) ([]byte, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAcquisition, err)
	}
	return body, nil
}

// redactURL reduces a feed URL to scheme and host for logging; feed paths
// and queries tend to embed access tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
