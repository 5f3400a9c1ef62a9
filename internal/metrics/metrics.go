package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "peer_match"

// Metrics holds the counters for matching runs, consent submissions, reminder sweeps and deliveries.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	runs             *prometheus.CounterVec
	matchesCreated   prometheus.Counter
	consents         *prometheus.CounterVec
	remindersSwept   prometheus.Counter
	deliveries       *prometheus.CounterVec
	scoringDurations prometheus.Histogram

	registerOnce sync.Once
}

func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{}
	m.Register(registry)
	return m
}

// Register registers the counters with registry. Subsequent calls are no-ops.
func (m *Metrics) Register(registry prometheus.Registerer) {
	if m == nil || registry == nil {
		return
	}

	m.registerOnce.Do(func() {
		factory := promauto.With(registry)

		m.runs = factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_runs_total",
			Help:      "Total number of matching runs by outcome",
		}, []string{"outcome"})

		m.matchesCreated = factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_created_total",
			Help:      "Total number of pending matches created",
		})

		m.consents = factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consent_submissions_total",
			Help:      "Total number of consent submissions by resulting status",
		}, []string{"status"})

		m.remindersSwept = factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_sent_total",
			Help:      "Total number of reminder events marked sent",
		})

		m.deliveries = factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Total number of outbound message delivery attempts by kind and result",
		}, []string{"kind", "result"})

		m.scoringDurations = factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scoring_duration_seconds",
			Help:      "Duration of the scoring and selection step of a matching run",
			Buckets:   prometheus.DefBuckets,
		})
	})
}

func (m *Metrics) IncRun(outcome string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AddMatchesCreated(n int) {
	if m == nil || m.matchesCreated == nil || n <= 0 {
		return
	}
	m.matchesCreated.Add(float64(n))
}

func (m *Metrics) IncConsent(status string) {
	if m == nil || m.consents == nil {
		return
	}
	m.consents.WithLabelValues(status).Inc()
}

func (m *Metrics) IncReminderSent() {
	if m == nil || m.remindersSwept == nil {
		return
	}
	m.remindersSwept.Inc()
}

func (m *Metrics) IncDelivery(kind string, ok bool) {
	if m == nil || m.deliveries == nil {
		return
	}
	result := "sent"
	if !ok {
		result = "failed"
	}
	m.deliveries.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveScoring(seconds float64) {
	if m == nil || m.scoringDurations == nil {
		return
	}
	m.scoringDurations.Observe(seconds)
}
