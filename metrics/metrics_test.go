package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordConversion(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordConversion("JavaArchive", 2, 10*time.Millisecond, nil)
	m.RecordConversion("JavaArchive", 0, time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConversionsTotal.WithLabelValues("JavaArchive", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConversionsTotal.WithLabelValues("JavaArchive", "error")))
}

func TestRecordDerivation(t *testing.T) {
	m := New(nil)

	m.RecordDerivation("web.xml", 5, nil)
	m.RecordDerivation("web.xml", 3, nil)
	m.RecordDerivation("web.xml", 0, errors.New("bad xml"))

	assert.Equal(t, 8.0, testutil.ToFloat64(m.DerivedArtifacts.WithLabelValues("web.xml")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DerivationsTotal.WithLabelValues("web.xml", "error")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordConversion("x", 1, time.Second, nil)
		m.RecordDerivation("x", 1, nil)
		m.RecordQuery(time.Second, nil)
		m.RecordIngest(nil)
		m.RecordStored("memory", 1)
	})
}

func TestHandler(t *testing.T) {
	m := New(nil)
	m.RecordQuery(5*time.Millisecond, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "artificer_queries_total"))
}
