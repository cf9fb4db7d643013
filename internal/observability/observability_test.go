package observability

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSONWithServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(NewLogger(LogConfig{Level: "info", Output: &buf, ServiceName: "worker"}), "pipeline")

	logger.Debug().Msg("hidden")
	logger.Info().Str("capture_id", "abc").Msg("capture done")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "worker", entry["service"])
	assert.Equal(t, "pipeline", entry["component"])
	assert.Equal(t, "abc", entry["capture_id"])
	assert.Equal(t, "capture done", entry["message"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("nonsense"))
}

func TestMetrics(t *testing.T) {
	before := testutil.ToFloat64(UploadsTotal.WithLabelValues("created"))
	RecordUpload("created")
	assert.Equal(t, before+1, testutil.ToFloat64(UploadsTotal.WithLabelValues("created")))

	SetQueueDepth(3, 2, 1, 10, 4)
	assert.Equal(t, float64(3), testutil.ToFloat64(QueueDepth.WithLabelValues("waiting")))
	assert.Equal(t, float64(4), testutil.ToFloat64(QueueDepth.WithLabelValues("failed")))

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "capture_inbox_queue_jobs")
}
