package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLaneKind(t *testing.T) {
	assert.Equal(t, "user", LaneKind("user:42"))
	assert.Equal(t, "main", LaneKind("main"))
	assert.Equal(t, "default", LaneKind(""))
	assert.Equal(t, ":x", LaneKind(":x"))
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, g.Write(&pb))
	return pb.GetGauge().GetValue()
}

func TestQueueDepthSumsLanesOfOneKind(t *testing.T) {
	m := newModuleMetrics()

	m.setLaneDepth("user:1", 2)
	m.setLaneDepth("user:2", 3)
	assert.Equal(t, 5.0, gaugeValue(t, m.queueSize.WithLabelValues("user")))

	m.setLaneDepth("user:1", 0)
	assert.Equal(t, 3.0, gaugeValue(t, m.queueSize.WithLabelValues("user")))
	assert.Len(t, m.laneDepths, 1)

	m.setLaneDepth("user:2", 0)
	assert.Equal(t, 0.0, gaugeValue(t, m.queueSize.WithLabelValues("user")))
	assert.Empty(t, m.laneDepths)
}

func TestRecordersExposeMetrics(t *testing.T) {
	RecordQueueEnqueue("user:7", 1)
	RecordQueueCompletion("user:7", 10*time.Millisecond, true, 0)
	SetActiveSessions(2)
	RecordDialogueOutcome("recorded")
	RecordLedgerAppend(5*time.Millisecond, true)
	RecordSchedulerRun("weekly_report", "ok", time.Second)
	RecordSchedulerRun("weekly_report", "skipped", 0)
	SetReportRecordCount(4)
	RecordInbound("telegram", "text")
	RecordReplyError("telegram")

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, name := range []string{
		"feedbackbot_queue_enqueued_total",
		"feedbackbot_queue_completed_total",
		"feedback_active_sessions 2",
		`feedback_dialogue_outcomes_total{outcome="recorded"}`,
		`feedbackbot_ledger_appends_total{status="success"}`,
		`feedbackbot_scheduler_runs_total{status="skipped",task="weekly_report"}`,
		"feedbackbot_report_last_record_count 4",
		`feedbackbot_inbound_messages_total{channel="telegram",kind="text"}`,
		`feedbackbot_reply_errors_total{channel="telegram"}`,
	} {
		assert.Contains(t, body, name)
	}
	assert.NotContains(t, body, `lane="user:7"`)
}
