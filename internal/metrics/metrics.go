package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/doridoridoriand/connwatch/internal/config"
	"github.com/doridoridoriand/connwatch/internal/health"
	"github.com/doridoridoriand/connwatch/internal/ping"
	"github.com/doridoridoriand/connwatch/internal/state"
)

const namespace = "connwatch"

var (
	targetLabels = []string{"target", "address", "group"}

	targetUpDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "target", "up"),
		"1 if the target is connected, 0 if disconnected. Absent while the target has no data.",
		targetLabels, nil)
	targetDelayDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "target", "aggregate_delay_ms"),
		"Mean delay over the target's health window.",
		targetLabels, nil)
	targetFailuresDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "target", "window_failures"),
		"Failed, timed out or errored probes in the target's health window.",
		targetLabels, nil)
	targetOutcomesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "target", "outcomes_total"),
		"Probe outcomes by status since startup.",
		append(append([]string(nil), targetLabels...), "status"), nil)

	targetsTotalDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "targets_total"),
		"Number of configured targets.",
		nil, nil)
	targetsByConditionDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "targets"),
		"Number of targets per condition.",
		[]string{"condition"}, nil)
	overallDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "overall_connected"),
		"1 if no target is disconnected.",
		nil, nil)
)

var conditions = []health.Condition{
	health.ConditionFast,
	health.ConditionSlow,
	health.ConditionDead,
	health.ConditionNoData,
}

// Collector exports the latest published snapshot. It never blocks the
// aggregator: every scrape reads one immutable snapshot.
type Collector struct {
	mode   config.MetricsMode
	source state.Source
}

// NewCollector constructs a collector for mode. An empty mode selects per-target.
func NewCollector(mode config.MetricsMode, source state.Source) *Collector {
	if mode == "" {
		mode = config.MetricsModePerTarget
	}
	return &Collector{mode: mode, source: source}
}

func (c *Collector) perTarget() bool {
	return c.mode == config.MetricsModePerTarget || c.mode == config.MetricsModeBoth
}

func (c *Collector) aggregated() bool {
	return c.mode == config.MetricsModeAggregated || c.mode == config.MetricsModeBoth
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	if c.perTarget() {
		ch <- targetUpDesc
		ch <- targetDelayDesc
		ch <- targetFailuresDesc
		ch <- targetOutcomesDesc
	}
	if c.aggregated() {
		ch <- targetsTotalDesc
		ch <- targetsByConditionDesc
		ch <- overallDesc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap, ok := c.source.Latest()
	if !ok {
		return
	}
	if c.aggregated() {
		collectAggregated(ch, snap)
	}
	if c.perTarget() {
		collectPerTarget(ch, snap)
	}
}

func collectAggregated(ch chan<- prometheus.Metric, snap state.Snapshot) {
	counts := make(map[health.Condition]int, len(conditions))
	for _, t := range snap.Targets {
		counts[t.Classification.Condition]++
	}
	ch <- prometheus.MustNewConstMetric(targetsTotalDesc, prometheus.GaugeValue, float64(len(snap.Targets)))
	for _, cond := range conditions {
		ch <- prometheus.MustNewConstMetric(targetsByConditionDesc, prometheus.GaugeValue, float64(counts[cond]), string(cond))
	}
	ch <- prometheus.MustNewConstMetric(overallDesc, prometheus.GaugeValue, boolValue(snap.Overall == health.LinkConnected))
}

func collectPerTarget(ch chan<- prometheus.Metric, snap state.Snapshot) {
	for _, t := range snap.Targets {
		labels := []string{t.Name, t.Address, t.Group}
		cls := t.Classification
		if cls.Link != health.LinkUnknown {
			ch <- prometheus.MustNewConstMetric(targetUpDesc, prometheus.GaugeValue, boolValue(cls.Link == health.LinkConnected), labels...)
		}
		if ms, ok := cls.AggregateDelayMillis(); ok {
			ch <- prometheus.MustNewConstMetric(targetDelayDesc, prometheus.GaugeValue, ms, labels...)
		}
		ch <- prometheus.MustNewConstMetric(targetFailuresDesc, prometheus.GaugeValue, float64(cls.FailureCount), labels...)

		for status, n := range map[ping.Status]uint64{
			ping.StatusSuccess: t.Counts.Success,
			ping.StatusFailed:  t.Counts.Failed,
			ping.StatusTimeout: t.Counts.Timeout,
			ping.StatusError:   t.Counts.Error,
		} {
			ch <- prometheus.MustNewConstMetric(targetOutcomesDesc, prometheus.CounterValue, float64(n), t.Name, t.Address, t.Group, string(status))
		}
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
