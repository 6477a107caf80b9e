package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/LeoVS09/simple-yield-farm/internal/observability"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerTo_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLoggerTo(&buf, "core", "warn", "")

	logger.Info().Msg("hidden")
	logger.Warn().Uint64("shares", 7).Msg("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "core", line["component"])
	assert.Equal(t, "shown", line["message"])
	assert.Equal(t, float64(7), line["shares"])
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, observability.ParseLogLevel("DEBUG"))
	assert.Equal(t, zerolog.ErrorLevel, observability.ParseLogLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, observability.ParseLogLevel("verbose"))
}

func TestNewMetrics_IsolatedRegistries(t *testing.T) {
	// Registering twice against fresh registries must not panic
	m1 := observability.NewMetrics(prometheus.NewRegistry())
	m2 := observability.NewMetrics(prometheus.NewRegistry())

	m1.CoreEventsApplied.WithLabelValues("Deposit").Inc()
	m1.SetVaultStats(15, 10, 3, 12, 1.5)
	m1.SetChannelMetrics("persist", 5, 10)

	assert.Equal(t, float64(1), testutil.ToFloat64(m1.CoreEventsApplied.WithLabelValues("Deposit")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m2.CoreEventsApplied.WithLabelValues("Deposit")))
	assert.Equal(t, 1.5, testutil.ToFloat64(m1.VaultSharePrice))
	assert.Equal(t, 0.5, testutil.ToFloat64(m1.ChannelUtilization.WithLabelValues("persist")))
}

func TestHealthChecker(t *testing.T) {
	h := observability.NewHealthChecker()

	rec := httptest.NewRecorder()
	h.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.SetReady(true)
	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	h.AddCheck("postgres", func(context.Context) error { return errors.New("connection refused") })
	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}
