// Package metrics registers the Prometheus collectors the simulation and
// HTTP layers report to, following the teacher's pattern of package-level
// collectors registered in an init().
package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// TickLatency measures time between Vehicle Manager ticks.
	TickLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ridesim_tick_latency_seconds",
		Help:    "Time between vehicle manager ticks.",
		Buckets: prometheus.DefBuckets,
	})

	// VehicleUpdateDuration measures time spent stepping a single vehicle.
	VehicleUpdateDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ridesim_vehicle_update_duration_seconds",
		Help:    "Duration spent updating an individual vehicle.",
		Buckets: prometheus.DefBuckets,
	})

	// OpenVehicleQueueDepth tracks the Ride Matcher's open vehicle queue.
	OpenVehicleQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ridesim_open_vehicle_queue_depth",
		Help: "Number of vehicles currently waiting for a passenger match.",
	})

	// OpenPassengerQueueDepth tracks the Ride Matcher's open passenger queue.
	OpenPassengerQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ridesim_open_passenger_queue_depth",
		Help: "Number of passengers currently waiting for a vehicle match.",
	})

	// PendingArrivalDepth tracks matched-but-not-yet-arrived vehicles.
	PendingArrivalDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ridesim_pending_arrival_depth",
		Help: "Number of vehicles matched to a passenger but not yet arrived at pickup.",
	})

	// VehicleFailures observes consecutive match-failure counts at the
	// point they're reset (drop-off) or escalated into cooldown.
	VehicleFailures = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ridesim_vehicle_consecutive_failures",
		Help:    "Consecutive match failures observed per vehicle before reset or cooldown.",
		Buckets: prometheus.LinearBuckets(0, 1, 10),
	})

	goroutines = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ridesim_goroutine_count",
		Help: "Number of goroutines running in the simulation process.",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	// APILatency measures HTTP handler duration, labeled like the teacher's
	// middleware-level histogram.
	APILatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ridesim_api_latency_seconds",
		Help:    "Time spent serving HTTP handlers.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		TickLatency,
		VehicleUpdateDuration,
		OpenVehicleQueueDepth,
		OpenPassengerQueueDepth,
		PendingArrivalDepth,
		VehicleFailures,
		goroutines,
		APILatency,
	)
}
