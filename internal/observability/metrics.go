package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesCreatedTotal    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridelink", Name: "rides_created_total", Help: "Total rides requested"})
	MatchesTotal         = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridelink", Name: "matches_total", Help: "Total rides matched to a driver"})
	AcceptConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridelink", Name: "accept_conflicts_total", Help: "Accept attempts that lost the race"})
	SweepCancelsTotal    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridelink", Name: "sweep_cancels_total", Help: "Rides cancelled by the search timeout sweep"})
	TransfersTotal       = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridelink", Name: "transfers_total", Help: "Completed ledger transfers"})
	DriversOnline        = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ridelink", Name: "drivers_online", Help: "Drivers currently online"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridelink", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ridelink",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
