// Package broker handles the MQTT side of the cell: topic layout, inbound
// message classification, and the paho client the dispatcher publishes
// through.
package broker

import (
	"fmt"
	"strings"
)

// Topics builds the cell's topic names under one configurable root.
//
// Layout (root defaults to "disp"):
//
//	{root}/cmd/{n}     dispatcher → node n: dispense / deliver commands
//	{root}/ack/{n}     node n → dispatcher: command acknowledgements
//	{root}/evt/{n}     node n → dispatcher: completion reports
//	{root}/state/{n}   node n → dispatcher: liveness and readiness
//	{root}/vision/{x}  camera x → dispatcher: standalone pill counts
type Topics struct {
	root string
}

// NewTopics returns a Topics rooted at root ("disp" when empty).
func NewTopics(root string) Topics {
	root = strings.Trim(root, "/")
	if root == "" {
		root = "disp"
	}
	return Topics{root: root}
}

// Root returns the configured topic root.
func (t Topics) Root() string { return t.root }

// Command returns the command topic for one node.
func (t Topics) Command(nodeID int) string {
	return fmt.Sprintf("%s/cmd/%d", t.root, nodeID)
}

// Subscriptions returns the wildcard filters covering everything the
// nodes and the vision camera publish. Classification is payload-driven
// (see Classify), so the filters only need to be wide enough.
func (t Topics) Subscriptions() []string {
	return []string{
		t.root + "/ack/+",
		t.root + "/evt/+",
		t.root + "/state/+",
		t.root + "/vision/+",
	}
}
