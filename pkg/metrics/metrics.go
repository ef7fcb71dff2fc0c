// Package metrics exposes Prometheus collectors for the service. Collectors
// are registered on the default registry and served from /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UploadsStarted counts upload leases created, by bucket.
	UploadsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "genbu",
		Subsystem: "upload",
		Name:      "leases_started_total",
		Help:      "Number of upload leases created.",
	}, []string{"bucket"})

	// UploadsFinished counts successful multipart finalizations.
	UploadsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "genbu",
		Subsystem: "upload",
		Name:      "leases_finished_total",
		Help:      "Number of upload leases finalized successfully.",
	}, []string{"bucket"})

	// UploadsFailed counts failed finalizations, by reason.
	UploadsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "genbu",
		Subsystem: "upload",
		Name:      "leases_failed_total",
		Help:      "Number of upload finalizations that failed.",
	}, []string{"reason"})

	// UploadBytes counts bytes reserved by accepted upload requests.
	UploadBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "genbu",
		Subsystem: "upload",
		Name:      "bytes_total",
		Help:      "Bytes reserved by accepted upload requests.",
	}, []string{"bucket"})

	// LeasesPruned counts expired leases removed by the pruner.
	LeasesPruned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "genbu",
		Subsystem: "upload",
		Name:      "leases_pruned_total",
		Help:      "Number of expired upload leases pruned.",
	})

	// WOPIRequests counts WOPI operations, by operation and outcome.
	WOPIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "genbu",
		Subsystem: "wopi",
		Name:      "requests_total",
		Help:      "Number of WOPI operations processed.",
	}, []string{"operation", "outcome"})

	// LockConflicts counts lock operations rejected because another live
	// lock was held.
	LockConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "genbu",
		Subsystem: "wopi",
		Name:      "lock_conflicts_total",
		Help:      "Number of lock operations rejected due to a conflicting lock.",
	})
)
