package poller

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sparkw/Singularity/pkg/metrics"
)

// Pass is one unit of periodic work. A pass failure is dropped and retried on
// the next tick; correctness relies on idempotent convergence across passes,
// not on any single pass succeeding.
type Pass func(ctx context.Context) error

// Poller drives one named pass on a fixed interval
type Poller struct {
	name     string
	interval time.Duration
	pass     Pass
	stopCh   chan struct{}
	logger   zerolog.Logger
}

// New creates a poller for the given pass
func New(name string, interval time.Duration, pass Pass, logger zerolog.Logger) *Poller {
	return &Poller{
		name:     name,
		interval: interval,
		pass:     pass,
		stopCh:   make(chan struct{}),
		logger:   logger.With().Str("component", "poller").Str("pass", name).Logger(),
	}
}

// Start begins the poll loop
func (p *Poller) Start() {
	go p.run()
}

// Stop stops the poll loop
func (p *Poller) Stop() {
	close(p.stopCh)
}

func (p *Poller) run() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// first pass runs immediately so startup does not wait a full interval
	// for the initial sync
	p.runOnce()

	for {
		select {
		case <-ticker.C:
			p.runOnce()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Poller) runOnce() {
	passID := uuid.New().String()
	logger := p.logger.With().Str("passId", passID).Logger()
	start := time.Now()

	if err := p.pass(context.Background()); err != nil {
		metrics.PollerPassesTotal.WithLabelValues(p.name, "error").Inc()
		logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("pass failed; will retry on next tick")
		return
	}

	metrics.PollerPassesTotal.WithLabelValues(p.name, "ok").Inc()
	logger.Debug().Dur("elapsed", time.Since(start)).Msg("pass complete")
}
