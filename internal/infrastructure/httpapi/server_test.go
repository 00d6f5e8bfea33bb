package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PatchRadar/internal/config"
	"PatchRadar/internal/usecase"
)

type stubRunner struct {
	calls int
}

func (r *stubRunner) RunCycle(_ context.Context, now time.Time) usecase.CycleReport {
	r.calls++
	return usecase.CycleReport{
		StartedAt: now,
		TasksRun:  []string{"discoverGames", "fetchContent"},
		Timings:   map[string]int64{"discoverGames": 3, "fetchContent": 12},
		Errors:    map[string]string{"discoverGames": "directory unavailable"},
		Results:   map[string]any{"fetchContent": map[string]int{"admitted": 2}},
	}
}

type ctxRunner struct {
	err         error
	hasDeadline bool
}

func (r *ctxRunner) RunCycle(ctx context.Context, now time.Time) usecase.CycleReport {
	r.err = ctx.Err()
	_, r.hasDeadline = ctx.Deadline()
	return usecase.CycleReport{StartedAt: now}
}

func newTestServer(runner CycleRunner) *Server {
	return NewServer(config.ServerConfig{
		CronSecret:         "s3cret",
		TrustedHeader:      "X-Vercel-Cron",
		TrustedHeaderValue: "1",
	}, runner, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("patchradar_up 1\n"))
	}), nil)
}

func TestCronTriggerAuthorization(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		method string
		header map[string]string
		want   int
	}{
		{"bearer secret", http.MethodGet, map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
		{"post with bearer", http.MethodPost, map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
		{"trusted header", http.MethodGet, map[string]string{"X-Vercel-Cron": "1"}, http.StatusOK},
		{"wrong secret", http.MethodGet, map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"secret without scheme", http.MethodGet, map[string]string{"Authorization": "s3cret"}, http.StatusUnauthorized},
		{"wrong header value", http.MethodGet, map[string]string{"X-Vercel-Cron": "0"}, http.StatusUnauthorized},
		{"anonymous", http.MethodGet, nil, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			runner := &stubRunner{}
			srv := newTestServer(runner)

			req := httptest.NewRequest(tc.method, "/api/cron", nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tc.want, rec.Code)
			if tc.want == http.StatusOK {
				assert.Equal(t, 1, runner.calls)
			} else {
				assert.Zero(t, runner.calls)
			}
		})
	}
}

func TestCronTriggerReportsTaskErrorsInBody(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubRunner{})
	req := httptest.NewRequest(http.MethodGet, "/api/cron", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		TasksRun []string          `json:"tasksRun"`
		Timings  map[string]int64  `json:"timings"`
		Errors   map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"discoverGames", "fetchContent"}, body.TasksRun)
	assert.Equal(t, int64(12), body.Timings["fetchContent"])
	assert.Equal(t, "directory unavailable", body.Errors["discoverGames"])
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubRunner{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "patchradar_up 1")
}

func TestCronTriggerOutlivesDisconnectedClient(t *testing.T) {
	t.Parallel()

	runner := &ctxRunner{}
	srv := newTestServer(runner)

	reqCtx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/cron", nil).WithContext(reqCtx)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, runner.err)
	assert.True(t, runner.hasDeadline)
}
