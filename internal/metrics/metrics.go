// Package metrics defines the Prometheus collectors exposed at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LayerRebuilds counts teardown+setup cycles by layer set ("resources", "route", "stops").
	LayerRebuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tour_map_layer_rebuilds_total",
		Help: "Total number of map layer rebuilds by layer set.",
	}, []string{"layers"})

	// RouteRequests counts routing requests by outcome: ok, error, superseded, skipped.
	RouteRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tour_route_requests_total",
		Help: "Total number of route requests by outcome.",
	}, []string{"outcome"})

	// ReadinessPolls counts readiness gate checks that found the map not ready.
	ReadinessPolls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tour_map_readiness_polls_total",
		Help: "Total number of readiness gate polls that found the map not ready.",
	})

	// ActiveSessions is the number of live map sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tour_map_sessions_active",
		Help: "Number of live map sessions.",
	})

	// UpstreamRequests counts calls to the resource and route services by status class.
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tour_upstream_requests_total",
		Help: "Total number of upstream requests by service and result.",
	}, []string{"service", "result"})

	// CacheLookups counts point query cache lookups by result: hit, miss, error.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tour_points_cache_lookups_total",
		Help: "Total number of point query cache lookups by result.",
	}, []string{"result"})

	// BusEventsDropped counts change events skipped because a subscriber was full.
	BusEventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tour_bus_events_dropped_total",
		Help: "Total number of change events dropped for slow subscribers by resource.",
	}, []string{"resource"})
)
