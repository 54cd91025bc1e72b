package record

import "github.com/prometheus/client_golang/prometheus"

var DanglingEntries = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "grocery",
	Subsystem: "record",
	Name:      "dangling_index_entries_total",
	Help:      "Index entries skipped by ListOwned because the record is gone or has another owner.",
}, []string{"collection"})

var RepairActions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "grocery",
	Subsystem: "record",
	Name:      "repair_actions_total",
}, []string{"collection", "action"})

// RegisterMetrics registers the record metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(DanglingEntries, RepairActions)
}
