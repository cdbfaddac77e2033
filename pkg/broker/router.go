package broker

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Kind classifies an inbound broker message.
type Kind string

const (
	// KindAck is a node acknowledging (or rejecting) a command.
	KindAck Kind = "ack"
	// KindCompletion is a node reporting it finished its part of a queue.
	KindCompletion Kind = "completion"
	// KindNodeState is a liveness/readiness heartbeat.
	KindNodeState Kind = "node_state"
	// KindVision is a standalone pill-count report from the camera.
	KindVision Kind = "vision"
	// KindUnknown is a syntactically valid payload matching no rule.
	KindUnknown Kind = "unknown"
	// KindParseError is a payload that is not a JSON object.
	KindParseError Kind = "parse_error"
)

// Message is one classified inbound publish. Only the fields relevant to
// its Kind are populated.
type Message struct {
	Topic   string
	Payload []byte
	Kind    Kind

	// NodeID is the decimal last segment of the topic, nil when the
	// segment is not a number (the vision camera publishes under a name).
	NodeID *int

	// QueueID is the payload's queue_id when present and numeric.
	QueueID *int64

	// Accepted is set for acks.
	Accepted bool

	// Status is the raw status string on completions; empty means the
	// node reported plain done.
	Status string

	// Detected is the reported pill count on completions and vision
	// reports: nil when absent, -1 when present but not a number.
	Detected *int

	// Online, Ready and Uptime are set for node-state messages.
	Online bool
	Ready  bool
	Uptime int64
}

// Classify parses one inbound publish. The rules run in order and the
// first match wins:
//
//  1. an "accepted" key makes it an ack;
//  2. done == 1 makes it a completion;
//  3. a "ready" or "online" key makes it node state;
//  4. a "count_detected" key makes it a standalone vision report;
//  5. anything else is unknown.
//
// Payloads that do not decode to a JSON object come back as parse errors;
// the caller records them and drops the message.
func Classify(topic string, payload []byte) Message {
	msg := Message{Topic: topic, Payload: payload, NodeID: nodeIDFromTopic(topic)}

	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil || doc == nil {
		msg.Kind = KindParseError
		return msg
	}
	msg.QueueID = asInt64(doc["queue_id"])

	if raw, ok := doc["accepted"]; ok {
		msg.Kind = KindAck
		msg.Accepted = truthy(raw)
		return msg
	}
	if isOne(doc["done"]) {
		msg.Kind = KindCompletion
		msg.Status = asString(doc["status"])
		msg.Detected = detectedCount(doc, "detected", "count_detected")
		return msg
	}
	if _, ok := doc["ready"]; ok {
		return classifyState(msg, doc)
	}
	if _, ok := doc["online"]; ok {
		return classifyState(msg, doc)
	}
	if _, ok := doc["count_detected"]; ok {
		msg.Kind = KindVision
		msg.Detected = detectedCount(doc, "count_detected")
		return msg
	}
	msg.Kind = KindUnknown
	return msg
}

func classifyState(msg Message, doc map[string]any) Message {
	msg.Kind = KindNodeState
	msg.Online = truthy(doc["online"])
	msg.Ready = truthy(doc["ready"])
	if uptime, ok := doc["uptime"].(float64); ok {
		msg.Uptime = int64(uptime)
	}
	return msg
}

// nodeIDFromTopic parses the last topic segment as a decimal node id.
func nodeIDFromTopic(topic string) *int {
	idx := strings.LastIndexByte(topic, '/')
	if idx < 0 || idx == len(topic)-1 {
		return nil
	}
	id, err := strconv.Atoi(topic[idx+1:])
	if err != nil {
		return nil
	}
	return &id
}

// detectedCount reads the first present key as a pill count. A value that
// is present but not an integral number maps to -1, which downstream
// verification treats as an automatic shortfall.
func detectedCount(doc map[string]any, keys ...string) *int {
	for _, key := range keys {
		raw, ok := doc[key]
		if !ok {
			continue
		}
		bad := -1
		f, ok := raw.(float64)
		if !ok || f != float64(int(f)) {
			return &bad
		}
		n := int(f)
		return &n
	}
	return nil
}

func asInt64(v any) *int64 {
	f, ok := v.(float64)
	if !ok || f != float64(int64(f)) {
		return nil
	}
	n := int64(f)
	return &n
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// truthy mirrors how the nodes historically encoded flags: 1/0 numbers,
// booleans, or non-empty strings.
func truthy(v any) bool {
	switch value := v.(type) {
	case bool:
		return value
	case float64:
		return value != 0
	case string:
		return value != ""
	default:
		return false
	}
}

// isOne matches done == 1, the completion marker. Booleans count: some
// node firmware sends true instead of 1.
func isOne(v any) bool {
	switch value := v.(type) {
	case bool:
		return value
	case float64:
		return value == 1
	default:
		return false
	}
}
