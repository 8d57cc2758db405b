package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/doridoridoriand/connwatch/internal/config"
	"github.com/doridoridoriand/connwatch/internal/health"
	"github.com/doridoridoriand/connwatch/internal/ping"
)

var (
	baseTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	targets  = []config.TargetConfig{
		{Name: "gateway", Address: "192.0.2.1", Group: "lan"},
		{Name: "internet", Address: "198.51.100.1", Group: "wan"},
	}
)

func outcome(target string, seq int, status ping.Status, delayMs int) ping.Outcome {
	out := ping.Outcome{
		Target:     target,
		Address:    "192.0.2.1",
		ObservedAt: baseTime.Add(time.Duration(seq) * time.Second),
		Status:     status,
	}
	if status == ping.StatusSuccess && delayMs >= 0 {
		out.Delay = time.Duration(delayMs) * time.Millisecond
		out.HasDelay = true
	}
	return out
}

func newTestAggregator(t *testing.T) (*Aggregator, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	return NewAggregator(targets, health.DefaultThresholds(), 5, zap.New(core)), logs
}

func TestAggregatorLatestBeforeFirstOutcome(t *testing.T) {
	a, _ := newTestAggregator(t)
	_, ok := a.Latest()
	require.False(t, ok)
}

func TestAggregatorAppliesOutcomes(t *testing.T) {
	a, _ := newTestAggregator(t)

	var snap Snapshot
	for i, ms := range []int{50, 60, 70, 80, 90} {
		var ok bool
		snap, ok = a.apply(outcome("gateway", i, ping.StatusSuccess, ms))
		require.True(t, ok)
	}

	require.Equal(t, uint64(5), snap.Seq)
	require.Equal(t, health.LinkConnected, snap.Overall)
	require.Len(t, snap.Targets, 2)
	require.Equal(t, "gateway", snap.Targets[0].Name)
	require.Equal(t, "internet", snap.Targets[1].Name)

	gw := snap.Targets[0]
	require.Equal(t, health.ConditionFast, gw.Classification.Condition)
	require.Equal(t, 70*time.Millisecond, gw.Classification.AggregateDelay)
	require.Len(t, gw.Window, 5)
	require.Equal(t, uint64(5), gw.Counts.Success)
	require.Equal(t, "lan", gw.Group)

	inet := snap.Targets[1]
	require.False(t, inet.Probed())
	require.Equal(t, health.ConditionNoData, inet.Classification.Condition)
}

func TestAggregatorFailureDominanceDisconnects(t *testing.T) {
	a, _ := newTestAggregator(t)

	seq := []ping.Outcome{
		outcome("internet", 0, ping.StatusFailed, -1),
		outcome("internet", 1, ping.StatusTimeout, -1),
		outcome("internet", 2, ping.StatusSuccess, 100),
		outcome("internet", 3, ping.StatusSuccess, 100),
		outcome("internet", 4, ping.StatusSuccess, 100),
	}
	var snap Snapshot
	for _, out := range seq {
		snap, _ = a.apply(out)
	}

	inet, ok := snap.Target("internet")
	require.True(t, ok)
	require.Equal(t, health.ConditionDead, inet.Classification.Condition)
	require.Equal(t, 2, inet.Classification.FailureCount)
	require.Equal(t, health.LinkDisconnected, snap.Overall)
	require.Equal(t, uint64(1), inet.Counts.Failed)
	require.Equal(t, uint64(1), inet.Counts.Timeout)
	require.Equal(t, uint64(5), inet.Counts.Total())
}

func TestAggregatorDropsUnknownTarget(t *testing.T) {
	a, logs := newTestAggregator(t)

	_, ok := a.apply(outcome("mystery", 0, ping.StatusSuccess, 10))
	require.False(t, ok)
	require.Equal(t, uint64(1), a.Dropped())
	require.Equal(t, 1, logs.FilterMessage("dropping outcome for unknown target").Len())
}

func TestAggregatorDropsOutOfOrderOutcome(t *testing.T) {
	a, _ := newTestAggregator(t)

	_, ok := a.apply(outcome("gateway", 5, ping.StatusSuccess, 10))
	require.True(t, ok)
	_, ok = a.apply(outcome("gateway", 4, ping.StatusSuccess, 10))
	require.False(t, ok)
	require.Equal(t, uint64(1), a.Dropped())

	// Equal timestamps are not a reordering.
	_, ok = a.apply(outcome("gateway", 5, ping.StatusSuccess, 10))
	require.True(t, ok)
}

func TestAggregatorLogsOutcomeRecord(t *testing.T) {
	a, logs := newTestAggregator(t)

	a.apply(outcome("gateway", 0, ping.StatusSuccess, 40))
	a.apply(outcome("gateway", 1, ping.StatusFailed, -1))

	entries := logs.FilterMessage("probe outcome").All()
	require.Len(t, entries, 2)

	first := entries[0]
	require.Equal(t, zapcore.InfoLevel, first.Level)
	fields := first.ContextMap()
	require.Equal(t, "gateway", fields["target"])
	require.Equal(t, "success", fields["status"])
	require.Equal(t, float64(40), fields["delay_ms"])
	require.Equal(t, "fast", fields["condition"])
	require.Equal(t, float64(40), fields["aggregate_delay_ms"])
	require.Equal(t, "0/5", fields["failures"])

	second := entries[1]
	require.Equal(t, zapcore.WarnLevel, second.Level)
	fields = second.ContextMap()
	require.Nil(t, fields["delay_ms"])
	require.Equal(t, "1/5", fields["failures"])
}

func TestAggregatorRunPublishes(t *testing.T) {
	a, _ := newTestAggregator(t)
	sub := a.Subscribe()

	in := make(chan ping.Outcome)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, in) }()

	in <- outcome("gateway", 0, ping.StatusSuccess, 10)

	select {
	case snap := <-sub:
		require.Equal(t, uint64(1), snap.Seq)
	case <-time.After(time.Second):
		t.Fatalf("expected a published snapshot")
	}

	latest, ok := a.Latest()
	require.True(t, ok)
	require.Equal(t, uint64(1), latest.Seq)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	_, open := <-sub
	require.False(t, open)
}

func TestAggregatorRunStopsOnClosedInput(t *testing.T) {
	a, _ := newTestAggregator(t)
	in := make(chan ping.Outcome)
	close(in)
	require.NoError(t, a.Run(context.Background(), in))

	_, open := <-a.Subscribe()
	require.False(t, open)
}

func TestSubscribeCoalesces(t *testing.T) {
	a, _ := newTestAggregator(t)
	sub := a.Subscribe()

	for i := 0; i < 3; i++ {
		a.safeApply(outcome("gateway", i, ping.StatusSuccess, 10))
	}

	snap := <-sub
	require.Equal(t, uint64(3), snap.Seq)
	select {
	case extra := <-sub:
		t.Fatalf("expected intermediate snapshots to be coalesced, got seq %d", extra.Seq)
	default:
	}
}

func TestSubscribeReplaysLatest(t *testing.T) {
	a, _ := newTestAggregator(t)
	a.safeApply(outcome("gateway", 0, ping.StatusSuccess, 10))

	snap := <-a.Subscribe()
	require.Equal(t, uint64(1), snap.Seq)
}

func TestPublishedSnapshotsAreImmutable(t *testing.T) {
	a, _ := newTestAggregator(t)
	first, _ := a.apply(outcome("gateway", 0, ping.StatusSuccess, 10))
	a.apply(outcome("gateway", 1, ping.StatusFailed, -1))

	require.Len(t, first.Targets[0].Window, 1)
	require.Equal(t, ping.StatusSuccess, first.Targets[0].LastStatus)
}
