package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchOneUsesETag(t *testing.T) {
	var hits, conditional atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(`{"schedule": {}}`))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	src := Source{ID: "main", URL: srv.URL + "/schedule.json"}

	first, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, `{"schedule": {}}`, string(first.Body))

	second, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)

	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(1), conditional.Load())
}

func TestFetchOneFallsBackToCache(t *testing.T) {
	fail := atomic.Bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("BEGIN:VCALENDAR"))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	src := Source{ID: "feed", URL: srv.URL + "/feed.ics?token=secret"}

	_, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)

	fail.Store(true)
	res, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, "BEGIN:VCALENDAR", string(res.Body))
}

func TestFetchOneErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/stale":
			w.WriteHeader(http.StatusNotModified)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	ctx := context.Background()

	_, err := f.FetchOne(ctx, Source{ID: "empty"})
	assert.ErrorIs(t, err, ErrEmptyURL)

	_, err = f.FetchOne(ctx, Source{ID: "stale", URL: srv.URL + "/stale"})
	assert.ErrorIs(t, err, ErrNotModified)

	_, err = f.FetchOne(ctx, Source{ID: "missing", URL: srv.URL + "/missing"})
	assert.ErrorIs(t, err, ErrUnexpectedOK)
}

func TestFetchAllCollectsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok" {
			_, _ = w.Write([]byte("ok"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	results, errs := f.FetchAll(context.Background(), []Source{
		{ID: "a", URL: srv.URL + "/ok"},
		{ID: "b", URL: srv.URL + "/gone"},
	})
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Source.ID)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrUnexpectedOK)
	assert.Contains(t, errs[0].Error(), "b:")
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://cal.example/...(redacted)", RedactURL("https://cal.example/private/x.ics?token=abc"))
	assert.Equal(t, "...(redacted)", RedactURL("not a url"))
}
