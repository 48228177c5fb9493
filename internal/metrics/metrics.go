// Package metrics exposes the scheduler's Prometheus instrumentation:
// per-operation request/error counts, latency histograms, and a live
// gauge of each device's operational status.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OpRequests counts every orchestrator entry point call, by outcome.
	OpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lrsd_op_requests_total",
		Help: "Orchestrator operation calls, by operation and result.",
	}, []string{"op", "result"})

	// OpDuration tracks how long each orchestrator entry point takes.
	OpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lrsd_op_duration_seconds",
		Help:    "Orchestrator operation latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// DeviceStatus is a 0/1 gauge, one series per (device, status) pair,
	// letting a dashboard show the current state of every drive.
	DeviceStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lrsd_device_status",
		Help: "1 if the device is currently in this operational status, else 0.",
	}, []string{"device", "family", "status"})

	// MediumFreeBytes tracks free space on every medium the cache has seen.
	MediumFreeBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lrsd_medium_free_bytes",
		Help: "Last-observed free space on a medium, in bytes.",
	}, []string{"medium", "family"})
)

// ObserveOp records one orchestrator call's outcome and latency.
func ObserveOp(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	OpRequests.WithLabelValues(op, result).Inc()
	OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// SetDeviceStatus records a device's current status, zeroing its other
// possible statuses so exactly one series reads 1 per device at a time.
func SetDeviceStatus(device, family string, allStatuses []string, current string) {
	for _, st := range allStatuses {
		v := 0.0
		if st == current {
			v = 1.0
		}
		DeviceStatus.WithLabelValues(device, family, st).Set(v)
	}
}
