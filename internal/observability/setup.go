package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/iamwavecut/emojibot"

var (
	Registry = prometheus.NewRegistry()

	creditedPointsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emojibot_credited_points_total",
			Help: "Total number of emoji points credited",
		},
		[]string{"scope"},
	)

	spamDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emojibot_spam_decisions_total",
			Help: "Spam guard decisions by outcome",
		},
		[]string{"decision"},
	)

	sweepDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emojibot_sweep_deleted_total",
			Help: "Stale daily records removed by the sweeper",
		},
		[]string{"kind"},
	)

	updateProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "emojibot_update_processing_duration_seconds",
			Help:    "Time spent processing updates",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		creditedPointsTotal,
		spamDecisionsTotal,
		sweepDeletedTotal,
		updateProcessingDuration,
	)
}

// Init installs the process tracer provider and returns its shutdown func.
func Init(_ context.Context) (func(context.Context) error, error) {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// RecordCredit counts points credited to a user and their group.
func RecordCredit(points int64) {
	if points <= 0 {
		return
	}
	creditedPointsTotal.WithLabelValues("user").Add(float64(points))
	creditedPointsTotal.WithLabelValues("group").Add(float64(points))
}

func RecordSpamDecision(decision string) {
	spamDecisionsTotal.WithLabelValues(decision).Inc()
}

func RecordSweep(kind string, deleted int64) {
	if deleted <= 0 {
		return
	}
	sweepDeletedTotal.WithLabelValues(kind).Add(float64(deleted))
}

// StartUpdateProcessing returns a function to record update processing duration
func StartUpdateProcessing() func(status string) {
	timer := prometheus.NewTimer(nil)
	return func(status string) {
		updateProcessingDuration.WithLabelValues(status).Observe(timer.ObserveDuration().Seconds())
	}
}
