package broker

import "log/slog"

// NoopPublisher stands in for the live client when the broker is
// unreachable at startup. The HTTP surface stays up and queue rows keep
// accumulating; dispatch commands are logged and dropped, so the cell
// resumes by restarting the dispatcher once the broker is back.
type NoopPublisher struct {
	logger *slog.Logger
}

// NewNoopPublisher returns a publisher that drops everything.
func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopPublisher{logger: logger}
}

// Publish logs the skipped message and reports success.
func (p *NoopPublisher) Publish(topic string, payload []byte) error {
	p.logger.Warn("Broker unavailable, dropping publish", "topic", topic, "payload_bytes", len(payload))
	return nil
}

// Connected is always false; there is no broker behind this publisher.
func (p *NoopPublisher) Connected() bool { return false }

// Close is a no-op; it exists so callers can treat both publishers alike.
func (p *NoopPublisher) Close() {}
