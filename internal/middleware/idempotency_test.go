package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mmeshcher/flysure/internal/model"
)

func idempotentRequest(caller model.Address, key string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/policies/1/claim", nil)
	if key != "" {
		r.Header.Set(IdempotencyHeader, key)
	}
	return r.WithContext(WithCaller(r.Context(), caller))
}

func TestIdempotency_ReplaysResponse(t *testing.T) {
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1}`))
	})
	h := NewIdempotency().Middleware(next)

	first := httptest.NewRecorder()
	h.ServeHTTP(first, idempotentRequest(testCaller, "k1"))
	require.Equal(t, http.StatusCreated, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, idempotentRequest(testCaller, "k1"))

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, `{"id":1}`, second.Body.String())
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
}

func TestIdempotency_KeyScopedByCaller(t *testing.T) {
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})
	h := NewIdempotency().Middleware(next)

	other := model.MustParseAddress("0x4000000000000000000000000000000000000004")
	h.ServeHTTP(httptest.NewRecorder(), idempotentRequest(testCaller, "k1"))
	h.ServeHTTP(httptest.NewRecorder(), idempotentRequest(other, "k1"))

	assert.Equal(t, 2, calls)
}

func TestIdempotency_WithoutKey(t *testing.T) {
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	})
	h := NewIdempotency().Middleware(next)

	h.ServeHTTP(httptest.NewRecorder(), idempotentRequest(testCaller, ""))
	h.ServeHTTP(httptest.NewRecorder(), idempotentRequest(testCaller, ""))

	assert.Equal(t, 2, calls)
}

func TestIdempotency_ServerErrorIsNotCached(t *testing.T) {
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "Insufficient contract balance for payout", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	h := NewIdempotency().Middleware(next)

	first := httptest.NewRecorder()
	h.ServeHTTP(first, idempotentRequest(testCaller, "k1"))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, idempotentRequest(testCaller, "k1"))

	assert.Equal(t, http.StatusServiceUnavailable, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, 2, calls)
}

func TestIdempotency_InFlight(t *testing.T) {
	idem := NewIdempotency()

	var inner *httptest.ResponseRecorder
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = httptest.NewRecorder()
		idem.Middleware(http.NotFoundHandler()).ServeHTTP(inner, idempotentRequest(testCaller, "k1"))
		w.WriteHeader(http.StatusOK)
	})

	idem.Middleware(next).ServeHTTP(httptest.NewRecorder(), idempotentRequest(testCaller, "k1"))

	require.NotNil(t, inner)
	assert.Equal(t, http.StatusConflict, inner.Code)
}

func TestIdempotency_PanicReleasesKey(t *testing.T) {
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			panic("ledger store unavailable")
		}
		w.WriteHeader(http.StatusOK)
	})
	h := chimw.Recoverer(NewIdempotency().Middleware(next))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, idempotentRequest(testCaller, "k1"))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, idempotentRequest(testCaller, "k1"))

	assert.Equal(t, http.StatusInternalServerError, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, 2, calls)
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	RequestLogger(zap.New(core))(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ledger", nil))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(http.StatusTeapot), entries[0].ContextMap()["status"])
	assert.Equal(t, "/api/ledger", entries[0].ContextMap()["uri"])
}
