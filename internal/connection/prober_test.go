// Package connection provides unit tests for the health prober.
package connection

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MainListActivity/cuckoox-google-sub012/internal/models"
)

func TestClassifyLatency(t *testing.T) {
	cases := []struct {
		latency time.Duration
		want    models.HealthStatus
	}{
		{10 * time.Millisecond, models.HealthHealthy},
		{99 * time.Millisecond, models.HealthHealthy},
		{100 * time.Millisecond, models.HealthDegraded},
		{999 * time.Millisecond, models.HealthDegraded},
		{time.Second, models.HealthUnhealthy},
		{30 * time.Second, models.HealthUnhealthy},
	}
	for _, tc := range cases {
		if got := ClassifyLatency(tc.latency); got != tc.want {
			t.Errorf("ClassifyLatency(%v) = %s, want %s", tc.latency, got, tc.want)
		}
	}
}

func TestProbeSkippedWhileNotConnected(t *testing.T) {
	store := NewStateStore()

	var pings, failures atomic.Int32
	prober := NewProber(DefaultProberConfig(), store,
		func(ctx context.Context) (time.Duration, error) {
			pings.Add(1)
			return time.Millisecond, nil
		},
		func(time.Duration, models.HealthStatus) {},
		func(error) { failures.Add(1) },
	)

	prober.ProbeOnce(context.Background())

	if pings.Load() != 0 {
		t.Error("Expected no ping while disconnected")
	}
	if failures.Load() != 0 {
		t.Error("Expected no failure report while disconnected")
	}
}

func TestProbeRecordsLatencyAndHealth(t *testing.T) {
	store := NewStateStore()
	store.Update(func(state *models.UnifiedConnectionState) {
		state.Connection.Status = models.StatusConnected
	})

	var gotLatency time.Duration
	var gotHealth models.HealthStatus
	prober := NewProber(DefaultProberConfig(), store,
		func(ctx context.Context) (time.Duration, error) {
			return 250 * time.Millisecond, nil
		},
		func(latency time.Duration, health models.HealthStatus) {
			gotLatency = latency
			gotHealth = health
		},
		func(error) { t.Error("Unexpected failure report") },
	)

	prober.ProbeOnce(context.Background())

	if gotLatency != 250*time.Millisecond {
		t.Errorf("Unexpected latency: %v", gotLatency)
	}
	if gotHealth != models.HealthDegraded {
		t.Errorf("Expected degraded health, got %s", gotHealth)
	}
}

func TestProbeFailureIsReported(t *testing.T) {
	store := NewStateStore()
	store.Update(func(state *models.UnifiedConnectionState) {
		state.Connection.Status = models.StatusConnected
	})

	var failures atomic.Int32
	prober := NewProber(DefaultProberConfig(), store,
		func(ctx context.Context) (time.Duration, error) {
			return 0, errors.New("probe timed out")
		},
		func(time.Duration, models.HealthStatus) { t.Error("Unexpected success report") },
		func(error) { failures.Add(1) },
	)

	prober.ProbeOnce(context.Background())

	if failures.Load() != 1 {
		t.Errorf("Expected 1 failure report, got %d", failures.Load())
	}
}

func TestProberStartStop(t *testing.T) {
	store := NewStateStore()
	prober := NewProber(&ProberConfig{Interval: time.Millisecond, Timeout: time.Millisecond},
		store,
		func(ctx context.Context) (time.Duration, error) { return time.Millisecond, nil },
		func(time.Duration, models.HealthStatus) {},
		func(error) {},
	)

	prober.Start(context.Background())
	if !prober.IsRunning() {
		t.Fatal("Expected prober running after Start")
	}

	// Second start is a no-op.
	prober.Start(context.Background())

	prober.Stop()
	if prober.IsRunning() {
		t.Error("Expected prober stopped after Stop")
	}

	// Second stop is a no-op.
	prober.Stop()
}
