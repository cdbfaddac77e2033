package dispatch

import (
	"context"
	"log/slog"

	"github.com/pillcell/dispatcher/pkg/broker"
	"github.com/pillcell/dispatcher/pkg/models"
	"github.com/pillcell/dispatcher/pkg/store"
)

// Consumer routes classified broker messages into the dispatch core and
// keeps the audit log of acks, unknowns, and parse errors. Its OnMessage
// is the broker client's inbound handler.
type Consumer struct {
	store      *store.Store
	readiness  *Tracker
	joiner     *Joiner
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewConsumer wires the consumer to the core.
func NewConsumer(s *store.Store, readiness *Tracker, joiner *Joiner, dispatcher *Dispatcher, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{store: s, readiness: readiness, joiner: joiner, dispatcher: dispatcher, logger: logger}
}

// OnMessage classifies and handles one inbound publish. Broker callbacks
// carry no context; handling is bounded by the local database.
func (c *Consumer) OnMessage(topic string, payload []byte) {
	ctx := context.Background()
	msg := broker.Classify(topic, payload)
	messagesTotal.WithLabelValues(string(msg.Kind)).Inc()

	switch msg.Kind {
	case broker.KindAck:
		c.handleAck(ctx, msg)

	case broker.KindCompletion:
		if msg.NodeID == nil || !models.ValidNode(*msg.NodeID) || msg.QueueID == nil {
			c.recordStray(ctx, models.EventAckUnknown, msg,
				"Completion missing node or queue identity")
			return
		}
		c.joiner.HandleCompletion(ctx, msg)

	case broker.KindNodeState:
		c.handleState(ctx, msg)

	case broker.KindVision:
		c.joiner.HandleVision(ctx, msg)

	case broker.KindUnknown:
		c.recordStray(ctx, models.EventAckUnknown, msg, "Unclassifiable message")

	case broker.KindParseError:
		c.recordStray(ctx, models.EventAckParseError, msg, "Unparseable payload")
	}
}

func (c *Consumer) handleAck(ctx context.Context, msg broker.Message) {
	kind := models.EventAckAccepted
	if !msg.Accepted {
		kind = models.EventAckRejected
	}
	if err := c.store.AppendEvent(ctx, msg.QueueID, kind, string(msg.Payload)); err != nil {
		c.logger.Error("Failed to record ack", "topic", msg.Topic, "error", err)
		return
	}
	if msg.Accepted {
		c.logger.Debug("Command acknowledged", "topic", msg.Topic, "queue_id", msg.QueueID)
	} else {
		// A rejected command is audit-worthy but intentionally does not
		// fail the queue: the node's completion (or silence) decides.
		c.logger.Warn("Command rejected by node", "topic", msg.Topic, "queue_id", msg.QueueID)
	}
}

func (c *Consumer) handleState(ctx context.Context, msg broker.Message) {
	if msg.NodeID == nil || !models.ValidNode(*msg.NodeID) {
		c.recordStray(ctx, models.EventAckUnknown, msg, "State message without a node id")
		return
	}
	if err := c.readiness.HandleState(ctx, *msg.NodeID, msg.Online, msg.Ready, msg.Uptime); err != nil {
		c.logger.Error("Failed to record node state", "node_id", *msg.NodeID, "error", err)
		return
	}
	// A state edge may have completed the dispatch gate.
	c.dispatcher.Dispatch(ctx)
}

// recordStray appends an audit event for a message the core cannot act
// on. The message is then dropped; nothing upstream retries.
func (c *Consumer) recordStray(ctx context.Context, kind string, msg broker.Message, why string) {
	c.logger.Warn(why, "topic", msg.Topic, "kind", msg.Kind)
	if err := c.store.AppendEvent(ctx, msg.QueueID, kind, string(msg.Payload)); err != nil {
		c.logger.Error("Failed to record stray message", "topic", msg.Topic, "error", err)
	}
}
