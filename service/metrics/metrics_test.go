package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordDonationOperation(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordDonationOperation("donate", 0.2, nil)
	m.RecordDonationOperation("donate", 0.1, errors.New("boom"))
	m.RecordDonationOperation("donate", 0.1, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.donationOperationsTotal.WithLabelValues("donate", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.donationOperationsTotal.WithLabelValues("donate", "error")))
}

func TestRecordRPCCall(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRPCCall("query", "success", "testnet", 0.05)
	m.RecordRPCError("tx", "UNKNOWN_TRANSACTION")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.nearRPCCallsTotal.WithLabelValues("query", "success", "testnet")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.nearRPCErrorsTotal.WithLabelValues("tx", "UNKNOWN_TRANSACTION")))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus string
	}{
		{
			name:       "implicit ok",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) },
			wantStatus: "2xx",
		},
		{
			name: "explicit not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			wantStatus: "4xx",
		},
		{
			name: "bad gateway",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantStatus: "5xx",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMetrics(prometheus.NewRegistry())
			h := HTTPMetricsMiddleware(m, "/test")(tt.handler)

			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

			assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/test", http.MethodGet, tt.wantStatus)))
		})
	}
}

func TestHTTPMetricsMiddleware_NilMetrics(t *testing.T) {
	called := false
	h := HTTPMetricsMiddleware(nil, "/test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.True(t, called)
}

func TestStatusCodeToString(t *testing.T) {
	assert.Equal(t, "2xx", statusCodeToString(201))
	assert.Equal(t, "3xx", statusCodeToString(302))
	assert.Equal(t, "4xx", statusCodeToString(422))
	assert.Equal(t, "5xx", statusCodeToString(502))
	assert.Equal(t, "unknown", statusCodeToString(99))
}
