package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInstrumentHandler_UsesRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/forms/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := InstrumentHandler(mux)

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "GET /api/v1/forms/{id}", "404"))
	for _, id := range []string{"a", "b", "c"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/forms/"+id, nil))
	}
	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "GET /api/v1/forms/{id}", "404"))
	assert.Equal(t, 3.0, after-before)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.GreaterOrEqual(t, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "unmatched", "404")), 1.0)
}

func TestRecorders(t *testing.T) {
	before := testutil.ToFloat64(submissions.WithLabelValues("invalid"))
	RecordSubmission("invalid")
	assert.Equal(t, 1.0, testutil.ToFloat64(submissions.WithLabelValues("invalid"))-before)

	SetActiveSessions(4)
	assert.Equal(t, 4.0, testutil.ToFloat64(activeSessions))

	RecordSessionOpened("")
	assert.GreaterOrEqual(t, testutil.ToFloat64(sessionsOpened.WithLabelValues("unknown")), 1.0)
}

func TestHandler_Exposition(t *testing.T) {
	RecordPayment("redirect")

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "visakal_form_payments_executed_total"))
}
