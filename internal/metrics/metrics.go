package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the bot's collectors on a private registry so tests can
// create as many instances as they need.
type Metrics struct {
	registry *prometheus.Registry

	SpamDetections    *prometheus.CounterVec
	ModerationActions *prometheus.CounterVec
	Tickets           *prometheus.CounterVec
	TempChannels      prometheus.Gauge
	Interactions      *prometheus.HistogramVec
	ErrorsLogged      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SpamDetections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildkeeper_spam_detections_total",
				Help: "Spam detections by tier",
			},
			[]string{"tier"},
		),
		ModerationActions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildkeeper_moderation_actions_total",
				Help: "Moderation actions by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		Tickets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildkeeper_tickets_total",
				Help: "Ticket lifecycle events by ticket type",
			},
			[]string{"type", "event"},
		),
		TempChannels: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "guildkeeper_tempvoice_channels",
				Help: "Temporary voice channels currently registered",
			},
		),
		Interactions: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "guildkeeper_interaction_duration_seconds",
				Help:    "Time spent handling interactions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		ErrorsLogged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildkeeper_errors_logged_total",
				Help: "Errors reported through the error log, by delivery outcome",
			},
			[]string{"outcome"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SpamDetections,
		m.ModerationActions,
		m.Tickets,
		m.TempChannels,
		m.Interactions,
		m.ErrorsLogged,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordSpam(tier string) {
	if m == nil {
		return
	}
	m.SpamDetections.WithLabelValues(tier).Inc()
}

func (m *Metrics) RecordModeration(action string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.ModerationActions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) RecordTicket(ticketType, event string) {
	if m == nil {
		return
	}
	m.Tickets.WithLabelValues(ticketType, event).Inc()
}

func (m *Metrics) SetTempChannels(count int) {
	if m == nil {
		return
	}
	m.TempChannels.Set(float64(count))
}

func (m *Metrics) RecordError(outcome string) {
	if m == nil {
		return
	}
	m.ErrorsLogged.WithLabelValues(outcome).Inc()
}

// StartInteraction returns a function that observes the elapsed time for kind.
func (m *Metrics) StartInteraction(kind string) func() {
	if m == nil {
		return func() {}
	}
	timer := prometheus.NewTimer(m.Interactions.WithLabelValues(kind))
	return func() {
		timer.ObserveDuration()
	}
}
