package routes

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	scs "github.com/alexedwards/scs/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tom2tomtomtom/airwave/cache"
	"github.com/tom2tomtomtom/airwave/internal/auth"
	"github.com/tom2tomtomtom/airwave/internal/catalog"
	"github.com/tom2tomtomtom/airwave/internal/jobs"
	"github.com/tom2tomtomtom/airwave/internal/secrets"
)

type fakeQueue struct {
	tasks []*asynq.Task
}

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Queue: jobs.QueueWarm}, nil
}

type testServer struct {
	handler http.Handler
	token   string
	signer  auth.Signer
}

func newTestServer(t *testing.T, queue Enqueuer, configure ...func(*ServerOptions)) *testServer {
	t.Helper()
	box, err := secrets.New("test-master-key")
	require.NoError(t, err)

	fetcher := cache.NewFetcher(cache.Instrument(cache.NewMemoryStore()))
	svc := catalog.NewService(catalog.NewMemoryRepository(), fetcher, box, zerolog.Nop())
	warmer := cache.NewWarmer(fetcher, zerolog.Nop(), cache.DefaultWarmupConfig())

	reg := prometheus.NewRegistry()
	reg.MustRegister(cache.NewCollector("api", fetcher))

	signer := auth.NewSigner("0123456789abcdef")
	opts := ServerOptions{
		Sess:    scs.New(),
		Catalog: svc,
		Signer:  signer,
		Warm:    jobs.NewWarmHandler(svc, warmer, zerolog.Nop()),
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:  zerolog.Nop(),
	}
	if queue != nil {
		opts.Queue = queue
	}
	for _, fn := range configure {
		fn(&opts)
	}
	s := New(opts)
	return &testServer{handler: s.Handler(), token: signer.Issue("ops", time.Hour), signer: signer}
}

func (ts *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Authorization", "Bearer "+ts.token)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestHealthzReportsFailedCheck(t *testing.T) {
	ts := newTestServer(t, nil, func(o *ServerOptions) {
		o.Checks = map[string]HealthCheck{
			"redis": func(context.Context) error { return errors.New("connection refused") },
		}
	})
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis unavailable")
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestHealthzPassingChecks(t *testing.T) {
	var called bool
	ts := newTestServer(t, nil, func(o *ServerOptions) {
		o.Checks = map[string]HealthCheck{
			"postgres": func(context.Context) error { called = true; return nil },
		}
	})
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestAPIRequiresAuth(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, target := range []string{"/api/clients", "/cache/stats"} {
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}
}

func TestClientsCachedAndInvalidatedOnWrite(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/clients", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/clients", "")
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))

	rec = ts.do(t, http.MethodPost, "/api/clients", `{"name":"Acme Corp","social_token":"ig-123"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[catalog.Client](t, rec)
	assert.Equal(t, "acme-corp", created.Slug)
	assert.True(t, created.HasSocialToken)
	assert.NotContains(t, rec.Body.String(), "ig-123")

	rec = ts.do(t, http.MethodGet, "/api/clients", "")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Len(t, decode[[]catalog.Client](t, rec), 1)

	path := "/api/clients/" + created.ID.String()
	rec = ts.do(t, http.MethodGet, path, "")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	rec = ts.do(t, http.MethodGet, path, "")
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))

	rec = ts.do(t, http.MethodPut, path, `{"name":"Acme Global"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, path, "")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, "Acme Global", decode[catalog.Client](t, rec).Name)

	rec = ts.do(t, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSocialTokenReveal(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/clients", `{"name":"Acme","social_token":"ig-123"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[catalog.Client](t, rec)

	rec = ts.do(t, http.MethodGet, "/api/clients/"+created.ID.String()+"/social-token", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "ig-123", decode[map[string]string](t, rec)["social_token"])

	// the list payload still omits it
	rec = ts.do(t, http.MethodGet, "/api/clients", "")
	assert.NotContains(t, rec.Body.String(), "ig-123")

	assert.Equal(t, http.StatusNotFound,
		ts.do(t, http.MethodGet, "/api/clients/"+uuid.NewString()+"/social-token", "").Code)
	assert.Equal(t, http.StatusBadRequest,
		ts.do(t, http.MethodGet, "/api/clients/bad/social-token", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/clients/"+created.ID.String()+"/social-token", nil)
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestClientErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/clients/not-a-uuid", "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/clients", `{"name":`).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/clients", `{"name":"  "}`).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/clients", `{"name":"x","extra":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/assets?client_id=bad", "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/api/clients/6f1c1b52-3b5e-4d0f-9a57-0d3c2c1d2e3f", "").Code)
}

func TestInvalidateByPattern(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/clients", `{"name":"Acme"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	c := decode[catalog.Client](t, rec)

	rec = ts.do(t, http.MethodPost, "/api/assets", `{"client_id":"`+c.ID.String()+`","name":"Hero","type":"image","url":"https://cdn.example.com/hero.png"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	ts.do(t, http.MethodGet, "/api/clients", "")
	ts.do(t, http.MethodGet, "/api/clients/"+c.ID.String(), "")
	ts.do(t, http.MethodGet, "/api/assets", "")

	rec = ts.do(t, http.MethodPost, "/cache/invalidate?pattern=clients", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pattern":"clients","removed":2}`, rec.Body.String())

	assert.Equal(t, "MISS", ts.do(t, http.MethodGet, "/api/clients", "").Header().Get("X-Cache"))
	assert.Equal(t, "HIT", ts.do(t, http.MethodGet, "/api/assets", "").Header().Get("X-Cache"))

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/cache/invalidate", "").Code)
}

func TestCacheStatsAndClear(t *testing.T) {
	ts := newTestServer(t, nil)

	ts.do(t, http.MethodGet, "/api/campaigns", "")
	ts.do(t, http.MethodGet, "/api/campaigns", "")

	rec := ts.do(t, http.MethodGet, "/cache/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[cache.Stats](t, rec)
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.Equal(t, int64(1), st.Loads)
	assert.Equal(t, 1, st.Size)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/cache", "").Code)
	assert.Equal(t, "MISS", ts.do(t, http.MethodGet, "/api/campaigns", "").Header().Get("X-Cache"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(t, http.MethodGet, "/api/clients", "")

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `airwave_cache_misses_total{cache="api"} 1`)
}

func TestWarmEnqueuesTask(t *testing.T) {
	q := &fakeQueue{}
	ts := newTestServer(t, q)

	rec := ts.do(t, http.MethodPost, "/cache/warm", `{"resources":["clients","assets"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"task_id":"task-1","queue":"warm","targets":2}`, rec.Body.String())

	require.Len(t, q.tasks, 1)
	assert.Equal(t, jobs.TaskWarmCache, q.tasks[0].Type())
	var p jobs.WarmPayload
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &p))
	assert.Equal(t, []string{"clients", "assets"}, p.Resources)

	rec = ts.do(t, http.MethodPost, "/cache/warm", `{"resources":["posts"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, q.tasks, 1)
}

func TestWarmInlineWithoutQueue(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/cache/warm", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"targets":3}`, rec.Body.String())

	assert.Equal(t, "HIT", ts.do(t, http.MethodGet, "/api/clients", "").Header().Get("X-Cache"))
	assert.Equal(t, "HIT", ts.do(t, http.MethodGet, "/api/campaigns", "").Header().Get("X-Cache"))
}

func TestLoginSession(t *testing.T) {
	ts := newTestServer(t, nil)

	form := url.Values{"token": {ts.signer.Issue("ops", time.Hour)}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"subject":"ops"}`, rec.Body.String())

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	req = httptest.NewRequest(http.MethodGet, "/api/clients", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	form = url.Values{"token": {"forged.token"}}
	req = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
