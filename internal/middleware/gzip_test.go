package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoHandler возвращает тело запроса с тем же Content-Type и статусом из
// заголовка X-Status.
func echoHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	w.Header().Set("Content-Type", r.Header.Get("Content-Type"))
	status := http.StatusOK
	if r.Header.Get("X-Status") == "409" {
		status = http.StatusConflict
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func gzipBytes(t *testing.T, s string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return &buf
}

func readBody(t *testing.T, res *http.Response) string {
	t.Helper()
	var r io.Reader = res.Body
	if res.Header.Get("Content-Encoding") == "gzip" {
		gr, err := gzip.NewReader(res.Body)
		require.NoError(t, err)
		defer gr.Close()
		r = gr
	}
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(b)
}

func TestGzipMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		contentType    string
		acceptGzip     bool
		gzipRequest    bool
		status         string
		wantStatus     int
		wantCompressed bool
	}{
		{
			name:           "policy json is compressed",
			body:           `{"id":1,"flight_id":"TK1234","status":"ACTIVE"}`,
			contentType:    "application/json",
			acceptGzip:     true,
			wantStatus:     http.StatusOK,
			wantCompressed: true,
		},
		{
			name:           "plain text is compressed",
			body:           "ok",
			contentType:    "text/plain; charset=utf-8",
			acceptGzip:     true,
			wantStatus:     http.StatusOK,
			wantCompressed: true,
		},
		{
			name:        "binary content is left as is",
			body:        "raw",
			contentType: "application/octet-stream",
			acceptGzip:  true,
			wantStatus:  http.StatusOK,
		},
		{
			name:        "client without gzip support",
			body:        `{"policy_id":3}`,
			contentType: "application/json",
			wantStatus:  http.StatusOK,
		},
		{
			name:        "rejection reason is not compressed",
			body:        "Policy is not active",
			contentType: "text/plain; charset=utf-8",
			acceptGzip:  true,
			status:      "409",
			wantStatus:  http.StatusConflict,
		},
		{
			name:           "gzipped request body",
			body:           `{"spender":"0x5000000000000000000000000000000000000005","amount":"25"}`,
			contentType:    "application/json",
			acceptGzip:     true,
			gzipRequest:    true,
			wantStatus:     http.StatusOK,
			wantCompressed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = strings.NewReader(tt.body)
			if tt.gzipRequest {
				body = gzipBytes(t, tt.body)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/token/approve", body)
			req.Header.Set("Content-Type", tt.contentType)
			if tt.acceptGzip {
				req.Header.Set("Accept-Encoding", "gzip")
			}
			if tt.gzipRequest {
				req.Header.Set("Content-Encoding", "gzip")
			}
			if tt.status != "" {
				req.Header.Set("X-Status", tt.status)
			}

			w := httptest.NewRecorder()
			GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			assert.Equal(t, tt.wantStatus, res.StatusCode)
			assert.Equal(t, tt.contentType, res.Header.Get("Content-Type"))
			if tt.wantCompressed {
				assert.Equal(t, "gzip", res.Header.Get("Content-Encoding"))
			} else {
				assert.Empty(t, res.Header.Get("Content-Encoding"))
			}
			assert.Equal(t, tt.body, readBody(t, res))
		})
	}
}

func TestGzipMiddleware_InvalidRequestBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/policies", strings.NewReader("not gzip"))
	req.Header.Set("Content-Encoding", "gzip")

	w := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid gzip body")
}
