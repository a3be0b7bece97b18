package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/coord/pkg/metrics"
)

func newCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Name:      "test_total",
		Help:      "test counter",
	}, []string{"outcome"})
}

func TestRegister_ReturnsExisting(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	first := metrics.Register(reg, newCounter())
	second := metrics.Register(reg, newCounter())

	assert.Same(t, first, second)
}

func TestRegister_NilRegistry(t *testing.T) {
	t.Parallel()

	c := newCounter()
	assert.Same(t, c, metrics.Register[*prometheus.CounterVec](nil, c))
}

func TestHandler(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics.Register(reg, newCounter()).WithLabelValues("ok").Inc()

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `coord_test_total{outcome="ok"} 1`)
}
