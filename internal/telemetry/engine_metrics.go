package internaltelemetry

import (
	"go.opentelemetry.io/otel/metric"
)

// EngineMetrics holds all the metric instruments for the transaction engine.
type EngineMetrics struct {
	TxnsBegunCounter     metric.Int64Counter
	TxnsCommittedCounter metric.Int64Counter
	TxnsAbortedCounter   metric.Int64Counter
	ReadsServedCounter   metric.Int64Counter
	ReadsQueuedCounter   metric.Int64Counter
	WritesAppliedCounter metric.Int64Counter
	SitesDownUpDown      metric.Int64UpDownCounter
	ValidationHistogram  metric.Int64Histogram
}

// NewEngineMetrics creates and registers all the metrics for the engine.
func NewEngineMetrics(meter metric.Meter) (*EngineMetrics, error) {
	txnsBegunCounter, err := meter.Int64Counter(
		"sukunadb.engine.txns_begun_total",
		metric.WithDescription("Total number of transactions begun."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	txnsCommittedCounter, err := meter.Int64Counter(
		"sukunadb.engine.txns_committed_total",
		metric.WithDescription("Total number of transactions committed."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	txnsAbortedCounter, err := meter.Int64Counter(
		"sukunadb.engine.txns_aborted_total",
		metric.WithDescription("Total number of transactions aborted, labeled by reason."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	readsServedCounter, err := meter.Int64Counter(
		"sukunadb.engine.reads_served_total",
		metric.WithDescription("Total number of snapshot reads served."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	readsQueuedCounter, err := meter.Int64Counter(
		"sukunadb.engine.reads_queued_total",
		metric.WithDescription("Total number of reads parked waiting for a site recovery."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	writesAppliedCounter, err := meter.Int64Counter(
		"sukunadb.engine.writes_applied_total",
		metric.WithDescription("Total number of per-site version appends at commit."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	sitesDownUpDown, err := meter.Int64UpDownCounter(
		"sukunadb.engine.sites_down",
		metric.WithDescription("Number of sites currently down."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	validationHistogram, err := meter.Int64Histogram(
		"sukunadb.engine.validation.duration",
		metric.WithDescription("The latency of commit-time validation."),
		metric.WithUnit("us"),
	)
	if err != nil {
		return nil, err
	}

	return &EngineMetrics{
		TxnsBegunCounter:     txnsBegunCounter,
		TxnsCommittedCounter: txnsCommittedCounter,
		TxnsAbortedCounter:   txnsAbortedCounter,
		ReadsServedCounter:   readsServedCounter,
		ReadsQueuedCounter:   readsQueuedCounter,
		WritesAppliedCounter: writesAppliedCounter,
		SitesDownUpDown:      sitesDownUpDown,
		ValidationHistogram:  validationHistogram,
	}, nil
}
