package lifecycle

import (
	"log/slog"
	"time"
)

// Option configures the Supervisor
type Option func(*Supervisor)

// WithSyncer sets the Syncer implementation
func WithSyncer(syncer Syncer) Option {
	return func(s *Supervisor) {
		s.syncer = syncer
	}
}

// WithResyncInterval sets the periodic resync interval
func WithResyncInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		s.resyncInterval = d
	}
}

// WithBackOffPeriod sets the maximum error backoff delay
func WithBackOffPeriod(d time.Duration) Option {
	return func(s *Supervisor) {
		s.backOffPeriod = d
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m Metrics) Option {
	return func(s *Supervisor) {
		s.metrics = m
	}
}

// WithLogger sets the logger used by the supervisor
func WithLogger(log *slog.Logger) Option {
	return func(s *Supervisor) {
		s.log = log
	}
}
