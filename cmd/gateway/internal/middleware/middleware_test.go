package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zaptest"

	"github.com/fleetworks/fleet-api/internal/auth"
	"github.com/fleetworks/fleet-api/internal/policy"
	"github.com/fleetworks/fleet-api/internal/tracing"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func asUser(r *http.Request, id int64) *http.Request {
	return r.WithContext(auth.WithUser(r.Context(), &auth.UserContext{UserID: id, CompanyID: 1, Role: auth.RoleAdmin}))
}

func TestRateLimiter(t *testing.T) {
	_, client := newRedis(t)
	rl := NewRateLimiter(client, 2, zaptest.NewLogger(t))
	rl.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 30, 0, time.UTC) }
	handler := rl.Middleware(okHandler(t))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/trips", nil), 7))
		codes = append(codes, rec.Code)
		if i == 2 {
			assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
			assert.Equal(t, "30", rec.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/trips", nil), 8))
	assert.Equal(t, http.StatusOK, rec.Code, "limits are per user")
}

func TestRateLimiterFailsOpen(t *testing.T) {
	mr, client := newRedis(t)
	mr.Close()
	handler := NewRateLimiter(client, 1, zaptest.NewLogger(t)).Middleware(okHandler(t))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/trips", nil), 7))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiterSkipsAnonymous(t *testing.T) {
	mr, client := newRedis(t)
	handler := NewRateLimiter(client, 1, zaptest.NewLogger(t)).Middleware(okHandler(t))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/up", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, mr.Keys())
}

func TestIdempotencyReplaysPost(t *testing.T) {
	_, client := newRedis(t)
	var calls atomic.Int32
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":` + strconv.Itoa(int(n)) + `}}`))
	})
	handler := NewIdempotencyMiddleware(client, zaptest.NewLogger(t)).Middleware(next)

	send := func(userID int64, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/trips", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, asUser(req, userID))
		return rec
	}

	first := send(1, `{"a":1}`)
	second := send(1, `{"a":1}`)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Cached"))
	assert.Equal(t, int32(1), calls.Load())

	send(2, `{"a":1}`)
	assert.Equal(t, int32(2), calls.Load(), "keys are scoped to the user")
	send(1, `{"a":2}`)
	assert.Equal(t, int32(3), calls.Load(), "a different body is a different request")
}

func TestIdempotencyIgnoresFailures(t *testing.T) {
	_, client := newRedis(t)
	var calls atomic.Int32
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	})
	handler := NewIdempotencyMiddleware(client, zaptest.NewLogger(t)).Middleware(next)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/trips", strings.NewReader(`{}`))
		req.Header.Set("Idempotency-Key", "k")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, int32(2), calls.Load())
}

type fakeEngine struct {
	decision *policy.Decision
	err      error
	last     *policy.Input
}

func (f *fakeEngine) Evaluate(_ context.Context, in *policy.Input) (*policy.Decision, error) {
	f.last = in
	return f.decision, f.err
}

func (f *fakeEngine) Mode() policy.Mode { return policy.ModeEnforce }

func TestPolicyRequire(t *testing.T) {
	cases := []struct {
		name   string
		engine *fakeEngine
		code   int
		body   string
	}{
		{"allowed", &fakeEngine{decision: &policy.Decision{Allow: true}}, http.StatusOK, ""},
		{"denied", &fakeEngine{decision: &policy.Decision{Allow: false, Reason: "Only admins can delete drivers."}},
			http.StatusForbidden, "Only admins can delete drivers."},
		{"fail closed", &fakeEngine{decision: &policy.Decision{Allow: false}, err: errors.New("boom")},
			http.StatusForbidden, "This action is unauthorized."},
		{"fail open", &fakeEngine{decision: &policy.Decision{Allow: true}, err: errors.New("boom")}, http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pm := NewPolicyMiddleware(tc.engine, zaptest.NewLogger(t))
			handler := pm.Require("drivers", policy.ActionDelete)(okHandler(t))

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodDelete, "/api/drivers/1", nil)
			req = req.WithContext(auth.WithUser(req.Context(), &auth.UserContext{UserID: 4, CompanyID: 1, Role: auth.RoleManager}))
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tc.code, rec.Code)
			if tc.body != "" {
				assert.Contains(t, rec.Body.String(), tc.body)
			}
			require.NotNil(t, tc.engine.last)
			assert.Equal(t, "manager", tc.engine.last.Role)
			assert.Equal(t, "drivers", tc.engine.last.Resource)
			assert.Equal(t, "delete", tc.engine.last.Action)
		})
	}
}

func TestPolicyRequiresUser(t *testing.T) {
	pm := NewPolicyMiddleware(&fakeEngine{decision: &policy.Decision{Allow: true}}, zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	pm.Require("vehicles", policy.ActionList)(okHandler(t)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/vehicles", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCORS(t *testing.T) {
	var reached bool
	handler := CORS([]string{"https://app.fleet.test"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/vehicles", nil)
	req.Header.Set("Origin", "https://app.fleet.test")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, reached, "preflight is answered by the middleware")
	assert.Equal(t, "https://app.fleet.test", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, PUT, PATCH, DELETE, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(http.MethodGet, "/api/vehicles", nil)
	req.Header.Set("Origin", "https://evil.test")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.True(t, reached)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestTracingSetsTraceHeader(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	tracing.SetTracer(tp.Tracer("test"))

	tm := NewTracingMiddleware(zaptest.NewLogger(t))
	mux := http.NewServeMux()
	mux.Handle("GET /api/trips/{id}", tm.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/trips/4", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", rec.Header().Get("X-Trace-ID"))
}

func TestStatusRecorderDefaults(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	assert.Equal(t, http.StatusOK, rec.code())
	_, _ = rec.Write([]byte("x"))
	rec.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusOK, rec.code(), "first status wins")
}
