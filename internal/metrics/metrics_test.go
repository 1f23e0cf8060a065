package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareAndCounters(t *testing.T) {
	m := New()

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bkt/objects/batch", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	m.CountObject("download", ResultOK)
	m.CountObject("upload", ResultMultipart)

	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	assert.Contains(t, body, `lfsgate_http_requests_total{code="418",method="POST"} 1`)
	assert.Contains(t, body, `lfsgate_batch_objects_total{operation="download",result="ok"} 1`)
	assert.Contains(t, body, `lfsgate_batch_objects_total{operation="upload",result="multipart"} 1`)
}
