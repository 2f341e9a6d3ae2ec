package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vocsched/internal/config"
	"vocsched/internal/metrics"
	"vocsched/internal/pipeline"
	"vocsched/internal/schedule"
)

func artifacts(t *testing.T) *pipeline.Artifacts {
	t.Helper()
	s, err := schedule.FromTemplate(schedule.Template{Name: "Lounge", Congress: 32, StartDay: 27, Days: 1})
	require.NoError(t, err)
	return &pipeline.Artifacts{
		Schedule:    s,
		JSON:        []byte(`{"schedule": {}}`),
		XML:         []byte(`<schedule/>`),
		ICS:         []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"),
		GeneratedAt: time.Date(2015, 12, 1, 10, 0, 0, 0, time.UTC),
		Imported:    2,
		Rejected:    []pipeline.Rejection{{Source: "lounge", Title: "Too early", Err: schedule.ErrDayOutOfRange}},
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestArtifactsUnavailableBeforePublish(t *testing.T) {
	s := NewServer(config.DefaultConfig(), nil, nil)
	h := s.Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code)
	for _, p := range []string{"/schedule.json", "/schedule.xml", "/schedule.ics"} {
		assert.Equal(t, http.StatusServiceUnavailable, get(t, h, p).Code, p)
	}
}

func TestServesPublishedArtifacts(t *testing.T) {
	s := NewServer(config.DefaultConfig(), nil, nil)
	s.Publish(artifacts(t))
	h := s.Handler()

	cases := map[string]struct{ body, contentType string }{
		"/schedule.json": {`{"schedule": {}}`, "application/json"},
		"/schedule.xml":  {`<schedule/>`, "application/xml"},
		"/schedule.ics":  {"BEGIN:VCALENDAR", "text/calendar"},
	}
	for path, want := range cases {
		rec := get(t, h, path)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Body.String(), want.body)
		assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), want.contentType), path)
		assert.NotEmpty(t, rec.Header().Get("Last-Modified"))
	}

	req := httptest.NewRequest(http.MethodGet, "/schedule.xml", nil)
	req.Header.Set("If-Modified-Since", time.Date(2015, 12, 2, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
}

func TestStatus(t *testing.T) {
	s := NewServer(config.DefaultConfig(), nil, nil)
	rec := get(t, s.Handler(), "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ready": false`)

	s.Publish(artifacts(t))
	s.Fail(errors.New("upstream down"))
	body := get(t, s.Handler(), "/api/status").Body.String()
	assert.Contains(t, body, `"ready": true`)
	assert.Contains(t, body, `"acronym": "32C3-lounge"`)
	assert.Contains(t, body, `"imported": 2`)
	assert.Contains(t, body, `"title": "Too early"`)
	assert.Contains(t, body, `"last_error": "upstream down"`)
}

func TestRefresh(t *testing.T) {
	var calls int
	var s *Server
	s = NewServer(config.DefaultConfig(), nil, func(ctx context.Context) error {
		calls++
		if calls > 1 {
			return errors.New("boom")
		}
		s.Publish(artifacts(t))
		return nil
	})
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ready": true`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "boom")

	none := NewServer(config.DefaultConfig(), nil, nil).Handler()
	rec = httptest.NewRecorder()
	none.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "voc", Password: "secret"}
	s := NewServer(cfg, metrics.New(), nil)
	s.Publish(artifacts(t))
	h := s.Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code)
	rec := get(t, h, "/schedule.json")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.SetBasicAuth("voc", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "vocsched_runs_total")
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ListenAndServe(ctx, "127.0.0.1:0", http.NotFoundHandler()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
