package connection

import (
	"context"
	"sync"
	"time"

	"github.com/MainListActivity/cuckoox-google-sub012/internal/logging"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/models"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/observability"
)

const (
	defaultProbeInterval = 30 * time.Second
	defaultProbeTimeout  = 5 * time.Second

	healthyLatency  = 100 * time.Millisecond
	degradedLatency = time.Second
)

// ProberConfig holds health probe tunables.
type ProberConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// DefaultProberConfig returns the default probe schedule.
func DefaultProberConfig() *ProberConfig {
	return &ProberConfig{
		Interval: defaultProbeInterval,
		Timeout:  defaultProbeTimeout,
	}
}

// Prober issues periodic lightweight round-trips against the remote
// transport and classifies the measured latency. Probe failures are routed
// to the reconnection supervisor via onFailure.
type Prober struct {
	store *StateStore

	ping      func(ctx context.Context) (time.Duration, error)
	onResult  func(latency time.Duration, health models.HealthStatus)
	onFailure func(err error)

	interval time.Duration
	timeout  time.Duration

	mu        sync.Mutex
	isRunning bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewProber creates a health prober. ping performs the round-trip; the two
// callbacks hand results back to the manager, the store's single writer.
func NewProber(config *ProberConfig, store *StateStore,
	ping func(ctx context.Context) (time.Duration, error),
	onResult func(time.Duration, models.HealthStatus),
	onFailure func(error)) *Prober {
	if config == nil {
		config = DefaultProberConfig()
	}
	return &Prober{
		store:     store,
		ping:      ping,
		onResult:  onResult,
		onFailure: onFailure,
		interval:  config.Interval,
		timeout:   config.Timeout,
	}
}

// ClassifyLatency buckets a probe round-trip time.
func ClassifyLatency(latency time.Duration) models.HealthStatus {
	switch {
	case latency < healthyLatency:
		return models.HealthHealthy
	case latency < degradedLatency:
		return models.HealthDegraded
	default:
		return models.HealthUnhealthy
	}
}

// Start launches the probe loop.
func (p *Prober) Start(ctx context.Context) {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop(ctx, p.stopCh)
}

// Stop halts the probe loop and waits for it to finish.
func (p *Prober) Stop() {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
}

// IsRunning reports whether the probe loop is active.
func (p *Prober) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isRunning
}

// loop probes on a fixed interval until stopped.
func (p *Prober) loop(ctx context.Context, stopCh chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			p.ProbeOnce(ctx)
		}
	}
}

// ProbeOnce performs a single health probe. Probing while not connected is
// skipped entirely; it has no effect and is not an error.
func (p *Prober) ProbeOnce(ctx context.Context) {
	if p.store.Status() != models.StatusConnected {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	latency, err := p.ping(probeCtx)
	if err != nil {
		observability.ProbeFailures.Inc()
		logging.Warn("Health probe failed", map[string]interface{}{
			"error": err.Error(),
		})
		p.onFailure(err)
		return
	}

	observability.ProbeLatency.Observe(latency.Seconds())
	p.onResult(latency, ClassifyLatency(latency))
}
