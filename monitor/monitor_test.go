package monitor

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMonitorIsSafe(t *testing.T) {
	var m *Monitor
	m.IncOnlinePlayers()
	m.DecOnlinePlayers()
	m.SetActiveRooms(3)
	m.IncMessagesReceived()
	m.ObserveMessageLatency(time.Millisecond)
	m.IncMatchesStarted()
	m.IncMatchesFinished("draw")
	m.IncTurnTimeouts()
	m.IncRejectedActions("PASS_TURN")
	assert.Nil(t, m.Metrics())
}

func TestCounters(t *testing.T) {
	m := NewMonitor("domino", prometheus.NewRegistry())

	m.IncOnlinePlayers()
	m.IncOnlinePlayers()
	m.DecOnlinePlayers()
	m.SetActiveRooms(4)
	m.IncMatchesStarted()
	m.IncMatchesFinished("emptied hand")
	m.IncMatchesFinished("emptied hand")
	m.IncTurnTimeouts()
	m.IncRejectedActions("PLAY_PIECE")

	metrics := m.Metrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OnlinePlayers))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.ActiveRooms))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MatchesStarted))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.MatchesFinished.WithLabelValues("emptied hand")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TurnTimeouts))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RejectedActions.WithLabelValues("PLAY_PIECE")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMonitor("domino", nil)
	m.IncMessagesReceived()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "domino_messages_received_total 1"))
}
