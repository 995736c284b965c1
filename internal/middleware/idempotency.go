package middleware

import (
	"bytes"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/mmeshcher/flysure/pkg/api"
)

// IdempotencyHeader задаёт заголовок с ключом идемпотентности запроса.
const IdempotencyHeader = api.HeaderIdempotencyKey

const (
	idempotencyTTL     = 24 * time.Hour
	idempotencyCleanup = 10 * time.Minute
	maxIdempotencyKey  = 255
)

type storedResponse struct {
	inFlight    bool
	status      int
	contentType string
	body        []byte
}

// Idempotency повторяет сохранённый ответ на запрос с уже встречавшимся
// Idempotency-Key. Ключ действует в пределах вызывающего и маршрута.
// Должен стоять после AuthMiddleware.
type Idempotency struct {
	cache *cache.Cache
}

// NewIdempotency создаёт middleware с хранением ответов в памяти процесса.
func NewIdempotency() *Idempotency {
	return &Idempotency{cache: cache.New(idempotencyTTL, idempotencyCleanup)}
}

// Middleware оборачивает изменяющий обработчик.
func (i *Idempotency) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(IdempotencyHeader)
		if key == "" || r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxIdempotencyKey {
			http.Error(w, "Idempotency-Key is too long", http.StatusBadRequest)
			return
		}

		caller, _ := GetCallerFromContext(r.Context())
		cacheKey := caller.String() + " " + r.Method + " " + r.URL.Path + " " + key

		if err := i.cache.Add(cacheKey, &storedResponse{inFlight: true}, cache.DefaultExpiration); err != nil {
			cached, found := i.cache.Get(cacheKey)
			if !found {
				http.Error(w, "request with this Idempotency-Key is in progress", http.StatusConflict)
				return
			}
			resp := cached.(*storedResponse)
			if resp.inFlight {
				http.Error(w, "request with this Idempotency-Key is in progress", http.StatusConflict)
				return
			}
			replay(w, resp)
			return
		}

		stored := false
		// Паника обработчика не должна оставлять ключ занятым.
		defer func() {
			if !stored {
				i.cache.Delete(cacheKey)
			}
		}()

		rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if rec.status >= http.StatusInternalServerError {
			return
		}
		i.cache.Set(cacheKey, &storedResponse{
			status:      rec.status,
			contentType: rec.Header().Get("Content-Type"),
			body:        rec.body.Bytes(),
		}, cache.DefaultExpiration)
		stored = true
	})
}

func replay(w http.ResponseWriter, resp *storedResponse) {
	if resp.contentType != "" {
		w.Header().Set("Content-Type", resp.contentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(resp.status)
	_, _ = w.Write(resp.body)
}

type recordingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recordingWriter) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recordingWriter) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}
