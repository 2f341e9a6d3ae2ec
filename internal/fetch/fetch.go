// Package fetch downloads schedule and calendar sources over HTTP with a
// disk cache keyed by URL.
package fetch

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

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	appLog "vocsched/internal/log"
)

var (
	ErrEmptyURL     = errors.New("fetch: source URL is empty")
	ErrNotModified  = errors.New("fetch: 304 Not Modified without cached body")
	ErrUnexpectedOK = errors.New("fetch: unexpected status")
)

// Source is one remote document.
type Source struct {
	ID  string
	URL string
}

// Result is the body of a source, fresh or from cache.
type Result struct {
	Source    Source
	Body      []byte
	FromCache bool
}

// cacheEntry is the HTTP validator state stored next to a cached body.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher issues conditional GETs (ETag, Last-Modified) and falls back to
// the last good body on network errors and non-OK responses.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher returns a Fetcher that caches under cacheDir. A nil client
// gets a 15s timeout.
func NewFetcher(cacheDir string, client *http.Client) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/cache"
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, cacheDir: cacheDir}
}

// FetchAll fetches every source. Failed sources are logged and returned as
// errors; the results only hold sources that produced a body.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) ([]Result, []error) {
	results := make([]Result, 0, len(sources))
	var errs []error

	for _, src := range sources {
		res, err := f.FetchOne(ctx, src)
		if err != nil {
			appLog.Error("fetch failed", err, "id", src.ID, "url", RedactURL(src.URL))
			errs = append(errs, fmt.Errorf("%s: %w", src.ID, err))
			continue
		}
		results = append(results, res)
	}
	return results, errs
}

// FetchOne fetches a single source.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (Result, error) {
	if src.URL == "" {
		return Result{}, ErrEmptyURL
	}

	dir := f.cachePath(src.URL)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Result{}, err
	}
	meta, _ := loadMeta(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, "body"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return Result{}, err
	}
	if len(cached) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("fetch start", "id", src.ID, "url", RedactURL(src.URL))
	fromCache := Result{Source: src, Body: cached, FromCache: true}

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cached) > 0 {
			appLog.Warn("fetch network error, using cached body", "id", src.ID, "url", RedactURL(src.URL), "err", err)
			return fromCache, nil
		}
		return Result{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return Result{}, err
		}
		entry := cacheEntry{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := saveCache(dir, entry, body); err != nil {
			appLog.Error("fetch cache save failed", err, "id", src.ID, "url", RedactURL(src.URL))
		}
		appLog.Info("fetch success", "id", src.ID, "url", RedactURL(src.URL), "bytes", len(body))
		return Result{Source: src, Body: body}, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return Result{}, ErrNotModified
		}
		appLog.Debug("fetch not modified", "id", src.ID, "url", RedactURL(src.URL))
		return fromCache, nil

	default:
		if len(cached) > 0 {
			appLog.Warn("fetch non-OK, using cached body", "id", src.ID, "url", RedactURL(src.URL), "status", resp.StatusCode)
			return fromCache, nil
		}
		return Result{}, fmt.Errorf("%w: %s", ErrUnexpectedOK, resp.Status)
	}
}

func (f *Fetcher) cachePath(u string) string {
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadMeta(dir string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

// saveCache writes the body before the metadata so that metadata never
// refers to a missing body.
func saveCache(dir string, meta cacheEntry, body []byte) error {
	if err := os.WriteFile(filepath.Join(dir, "body"), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(&meta, jsontext.WithIndent("  "))
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o600)
}

// RedactURL keeps scheme and host only; feed URLs often carry tokens.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
