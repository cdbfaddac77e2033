package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyAck(t *testing.T) {
	msg := Classify("disp/ack/1", []byte(`{"queue_id":7,"accepted":1}`))
	assert.Equal(t, KindAck, msg.Kind)
	assert.True(t, msg.Accepted)
	require.NotNil(t, msg.NodeID)
	assert.Equal(t, 1, *msg.NodeID)
	require.NotNil(t, msg.QueueID)
	assert.Equal(t, int64(7), *msg.QueueID)

	msg = Classify("disp/ack/2", []byte(`{"queue_id":7,"accepted":0}`))
	assert.Equal(t, KindAck, msg.Kind)
	assert.False(t, msg.Accepted)
}

func TestClassifyCompletion(t *testing.T) {
	msg := Classify("disp/evt/2", []byte(`{"queue_id":3,"done":1,"status":"timeout"}`))
	assert.Equal(t, KindCompletion, msg.Kind)
	assert.Equal(t, "timeout", msg.Status)
	require.NotNil(t, msg.NodeID)
	assert.Equal(t, 2, *msg.NodeID)
	require.NotNil(t, msg.QueueID)
	assert.Equal(t, int64(3), *msg.QueueID)
	assert.Nil(t, msg.Detected)
}

func TestClassifyCompletionDetectedCount(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    *int
	}{
		{name: "detected key", payload: `{"done":1,"detected":3}`, want: intPtr(3)},
		{name: "count_detected fallback", payload: `{"done":1,"count_detected":4}`, want: intPtr(4)},
		{name: "detected wins over count_detected", payload: `{"done":1,"detected":2,"count_detected":9}`, want: intPtr(2)},
		{name: "non-numeric maps to -1", payload: `{"done":1,"detected":"three"}`, want: intPtr(-1)},
		{name: "fractional maps to -1", payload: `{"done":1,"detected":2.5}`, want: intPtr(-1)},
		{name: "absent stays nil", payload: `{"done":1}`, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Classify("disp/evt/2", []byte(tt.payload))
			require.Equal(t, KindCompletion, msg.Kind)
			if tt.want == nil {
				assert.Nil(t, msg.Detected)
				return
			}
			require.NotNil(t, msg.Detected)
			assert.Equal(t, *tt.want, *msg.Detected)
		})
	}
}

func TestClassifyDoneMarker(t *testing.T) {
	// done must equal 1; other values fall through the rules.
	msg := Classify("disp/evt/1", []byte(`{"done":0,"status":"success"}`))
	assert.Equal(t, KindUnknown, msg.Kind)

	msg = Classify("disp/evt/1", []byte(`{"done":2}`))
	assert.Equal(t, KindUnknown, msg.Kind)

	// Some firmware sends a boolean.
	msg = Classify("disp/evt/1", []byte(`{"done":true}`))
	assert.Equal(t, KindCompletion, msg.Kind)
}

func TestClassifyNodeState(t *testing.T) {
	msg := Classify("disp/state/1", []byte(`{"online":1,"ready":0,"uptime":3600}`))
	assert.Equal(t, KindNodeState, msg.Kind)
	assert.True(t, msg.Online)
	assert.False(t, msg.Ready)
	assert.Equal(t, int64(3600), msg.Uptime)

	// Either key alone is enough.
	msg = Classify("disp/state/2", []byte(`{"ready":1}`))
	assert.Equal(t, KindNodeState, msg.Kind)
	assert.True(t, msg.Ready)
	assert.False(t, msg.Online)
}

func TestClassifyVision(t *testing.T) {
	msg := Classify("disp/vision/cam", []byte(`{"count_detected":4}`))
	assert.Equal(t, KindVision, msg.Kind)
	assert.Nil(t, msg.NodeID, "non-numeric topic suffix carries no node id")
	require.NotNil(t, msg.Detected)
	assert.Equal(t, 4, *msg.Detected)
	assert.Nil(t, msg.QueueID)

	msg = Classify("disp/vision/cam", []byte(`{"count_detected":4,"queue_id":12}`))
	require.NotNil(t, msg.QueueID)
	assert.Equal(t, int64(12), *msg.QueueID)
}

func TestClassifyRuleOrder(t *testing.T) {
	// "accepted" beats the completion marker.
	msg := Classify("disp/ack/1", []byte(`{"accepted":1,"done":1}`))
	assert.Equal(t, KindAck, msg.Kind)

	// done beats state keys.
	msg = Classify("disp/evt/1", []byte(`{"done":1,"ready":1}`))
	assert.Equal(t, KindCompletion, msg.Kind)

	// state keys beat count_detected.
	msg = Classify("disp/state/2", []byte(`{"ready":1,"count_detected":3}`))
	assert.Equal(t, KindNodeState, msg.Kind)
}

func TestClassifyUnknownAndParseErrors(t *testing.T) {
	msg := Classify("disp/evt/1", []byte(`{"hello":"world"}`))
	assert.Equal(t, KindUnknown, msg.Kind)

	for _, payload := range []string{`not json`, `[1,2,3]`, `"text"`, `null`, ``} {
		msg := Classify("disp/evt/1", []byte(payload))
		assert.Equal(t, KindParseError, msg.Kind, "payload %q", payload)
	}
}

func TestNodeIDFromTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  *int
	}{
		{topic: "disp/evt/1", want: intPtr(1)},
		{topic: "disp/evt/2", want: intPtr(2)},
		{topic: "disp/evt/02", want: intPtr(2)},
		{topic: "disp/vision/cam", want: nil},
		{topic: "disp/evt/1a", want: nil},
		{topic: "disp/evt/", want: nil},
		{topic: "noslash", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got := nodeIDFromTopic(tt.topic)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func intPtr(v int) *int { return &v }
