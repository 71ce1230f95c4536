// Package metrics exposes engine state as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/somaflow/somaflow/wf"
)

func init() {
	prometheus.MustRegister(nodeStates)
	prometheus.MustRegister(inFlight)
	prometheus.MustRegister(submissions)
}

var nodeStates = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "somaflow",
		Subsystem: "nodes",
		Name:      "state_count",
		Help:      "Number of workflow nodes in each state.",
	},
	[]string{"workflow", "state"},
)

var inFlight = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "somaflow",
		Subsystem: "scheduler",
		Name:      "in_flight",
		Help:      "Number of nodes dispatched to each resource.",
	},
	[]string{"resource"},
)

var submissions = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "somaflow",
		Subsystem: "workflows",
		Name:      "submitted_total",
		Help:      "Total number of workflows submitted.",
	},
)

// SetNodeStates records the per-state node counts of a workflow.
func SetNodeStates(workflowID string, counts map[wf.State]int) {
	for name, st := range wf.StateValue {
		nodeStates.WithLabelValues(workflowID, name).Set(float64(counts[st]))
	}
}

// ClearWorkflow drops the metrics of a deleted workflow.
func ClearWorkflow(workflowID string) {
	for name := range wf.StateValue {
		nodeStates.DeleteLabelValues(workflowID, name)
	}
}

// SetInFlight records the number of dispatched nodes on a resource.
func SetInFlight(resource string, n int) {
	inFlight.WithLabelValues(resource).Set(float64(n))
}

// IncSubmitted counts a workflow submission.
func IncSubmitted() {
	submissions.Inc()
}
