package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatcher_broker_messages_total",
		Help: "Inbound broker messages by classified kind.",
	}, []string{"kind"})

	completionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatcher_completions_total",
		Help: "Completion reports by node and join result.",
	}, []string{"node", "result"})

	queuesFinalizedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatcher_queues_finalized_total",
		Help: "Queues that reached a terminal status.",
	}, []string{"status"})

	queuesDispatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatcher_queues_dispatched_total",
		Help: "Queues claimed and sent to the nodes.",
	})

	publishErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatcher_publish_errors_total",
		Help: "Dispatch command publishes that failed or timed out.",
	})

	nodeReadyGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dispatcher_node_ready",
		Help: "Last reported readiness per node (1 ready, 0 not).",
	}, []string{"node"})

	pendingQueuesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatcher_pending_queues",
		Help: "Queues waiting for dispatch, sampled by the watchdog.",
	})
)
