package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New()
	m.RecordSpam("rapid_spam")
	m.RecordSpam("rapid_spam")
	m.RecordModeration("ban", nil)
	m.RecordModeration("ban", errors.New("boom"))
	m.SetTempChannels(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SpamDetections.WithLabelValues("rapid_spam")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModerationActions.WithLabelValues("ban", "failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.TempChannels))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordSpam("x")
	m.StartInteraction("command")()
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.RecordTicket("cs", "opened")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `guildkeeper_tickets_total{event="opened",type="cs"} 1`))
}
