package launch

import (
	"context"
	"log/slog"
)

// EventPublisher receives component lifecycle events.
//
// Event types:
//   - provisioning: environment setup started
//   - provisioned: environment ready
//   - starting: component is launching
//   - ready: component passed its readiness check
//   - stopping: component received a stop request
//   - stopped: component shut down cleanly
//   - crashed: component exited unexpectedly
//   - unhealthy: component failed a health check
type EventPublisher interface {
	// PublishEvent reports a lifecycle event for a component
	PublishEvent(ctx context.Context, component, eventType, message string, metadata map[string]string)
}

// NoopEventPublisher discards all events
type NoopEventPublisher struct{}

// PublishEvent does nothing
func (NoopEventPublisher) PublishEvent(ctx context.Context, component, eventType, message string, metadata map[string]string) {
}

// LogEventPublisher writes lifecycle events to a structured logger
type LogEventPublisher struct {
	log *slog.Logger
}

// NewLogEventPublisher creates an event publisher backed by log
func NewLogEventPublisher(log *slog.Logger) *LogEventPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &LogEventPublisher{log: log}
}

// PublishEvent logs the event with its metadata as attributes
func (p *LogEventPublisher) PublishEvent(ctx context.Context, component, eventType, message string, metadata map[string]string) {
	attrs := make([]any, 0, 4+2*len(metadata))
	attrs = append(attrs, "component", component, "event", eventType)
	for k, v := range metadata {
		attrs = append(attrs, k, v)
	}
	p.log.InfoContext(ctx, message, attrs...)
}
