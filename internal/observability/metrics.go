package observability

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "feedbackbot"

type moduleMetrics struct {
	queueSize    *prometheus.GaugeVec
	enqueueTotal *prometheus.CounterVec
	dequeueTotal *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec

	activeSessions   prometheus.Gauge
	dialogueOutcomes *prometheus.CounterVec

	ledgerAppendTotal    *prometheus.CounterVec
	ledgerAppendDuration prometheus.Histogram

	schedulerRunsTotal    *prometheus.CounterVec
	schedulerRunDuration  *prometheus.HistogramVec
	reportRecordsObserved prometheus.Gauge

	inboundMessagesTotal *prometheus.CounterVec
	replyErrorsTotal     *prometheus.CounterVec

	// per-lane depth, summed into queueSize by lane kind
	lanesMu    sync.Mutex
	laneDepths map[string]int
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func newModuleMetrics() *moduleMetrics {
	return &moduleMetrics{
		queueSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Events waiting in the command queue by lane kind.",
		}, []string{"lane"}),
		enqueueTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "enqueued_total",
			Help:      "Events enqueued by lane kind.",
		}, []string{"lane"}),
		dequeueTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "completed_total",
			Help:      "Events completed by lane kind and status.",
		}, []string{"lane", "status"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "task_duration_seconds",
			Help:      "Time spent handling one event.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"lane"}),

		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "feedback_active_sessions",
			Help: "Users currently asked for feedback.",
		}),
		dialogueOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedback_dialogue_outcomes_total",
			Help: "Handled dialogue events by outcome.",
		}, []string{"outcome"}),

		ledgerAppendTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "appends_total",
			Help:      "Ledger row appends by status.",
		}, []string{"status"}),
		ledgerAppendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "append_duration_seconds",
			Help:      "Latency of one ledger append.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		}),

		schedulerRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Scheduled task firings by task and status.",
		}, []string{"task", "status"}),
		schedulerRunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "run_duration_seconds",
			Help:      "Duration of executed task firings.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task"}),
		reportRecordsObserved: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "last_record_count",
			Help:      "Records in the most recent report window.",
		}),

		inboundMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Inbound chat messages by channel and kind.",
		}, []string{"channel", "kind"}),
		replyErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reply_errors_total",
			Help:      "Replies that could not be delivered, by channel.",
		}, []string{"channel"}),

		laneDepths: make(map[string]int),
	}
}

func (m *moduleMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.queueSize, m.enqueueTotal, m.dequeueTotal, m.taskDuration,
		m.activeSessions, m.dialogueOutcomes,
		m.ledgerAppendTotal, m.ledgerAppendDuration,
		m.schedulerRunsTotal, m.schedulerRunDuration, m.reportRecordsObserved,
		m.inboundMessagesTotal, m.replyErrorsTotal,
	}
}

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		metricsInst = newModuleMetrics()
		prometheus.MustRegister(metricsInst.collectors()...)
	})
	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler serves the default registry.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

// LaneKind maps a queue lane to its metric label. Per-user lanes
// ("user:42") collapse to "user".
func LaneKind(lane string) string {
	if kind, _, ok := strings.Cut(lane, ":"); ok && kind != "" {
		return kind
	}
	if lane == "" {
		return "default"
	}
	return lane
}

// setLaneDepth records one lane's depth and republishes the kind total.
func (m *moduleMetrics) setLaneDepth(lane string, depth int) {
	kind := LaneKind(lane)

	m.lanesMu.Lock()
	if depth > 0 {
		m.laneDepths[lane] = depth
	} else {
		delete(m.laneDepths, lane)
	}
	total := 0
	for l, d := range m.laneDepths {
		if LaneKind(l) == kind {
			total += d
		}
	}
	m.lanesMu.Unlock()

	m.queueSize.WithLabelValues(kind).Set(float64(total))
}

func RecordQueueEnqueue(lane string, queueSize int) {
	m := getMetrics()
	m.enqueueTotal.WithLabelValues(LaneKind(lane)).Inc()
	m.setLaneDepth(lane, queueSize)
}

func SetQueueSize(lane string, queueSize int) {
	getMetrics().setLaneDepth(lane, queueSize)
}

func RecordQueueCompletion(lane string, duration time.Duration, success bool, queueSize int) {
	m := getMetrics()
	kind := LaneKind(lane)
	m.dequeueTotal.WithLabelValues(kind, statusLabel(success)).Inc()
	m.taskDuration.WithLabelValues(kind).Observe(duration.Seconds())
	m.setLaneDepth(lane, queueSize)
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordDialogueOutcome(outcome string) {
	getMetrics().dialogueOutcomes.WithLabelValues(outcome).Inc()
}

func RecordLedgerAppend(duration time.Duration, success bool) {
	m := getMetrics()
	m.ledgerAppendTotal.WithLabelValues(statusLabel(success)).Inc()
	m.ledgerAppendDuration.Observe(duration.Seconds())
}

// RecordSchedulerRun records one firing; status is "ok", "error" or "skipped".
func RecordSchedulerRun(task string, status string, duration time.Duration) {
	m := getMetrics()
	m.schedulerRunsTotal.WithLabelValues(task, status).Inc()
	if status != "skipped" {
		m.schedulerRunDuration.WithLabelValues(task).Observe(duration.Seconds())
	}
}

func SetReportRecordCount(count int) {
	getMetrics().reportRecordsObserved.Set(float64(count))
}

// RecordInbound counts a message; kind is "command" or "text".
func RecordInbound(channel string, kind string) {
	getMetrics().inboundMessagesTotal.WithLabelValues(channel, kind).Inc()
}

func RecordReplyError(channel string) {
	getMetrics().replyErrorsTotal.WithLabelValues(channel).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
