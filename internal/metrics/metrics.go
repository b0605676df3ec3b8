// v1
// internal/metrics/metrics.go

// Package metrics exposes Prometheus instrumentation for the recommender
// service. Helpers keep call sites terse and label values consistent.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recommendations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommender",
		Name:      "recommendations_total",
		Help:      "Recommendations served, by selection mode (explore, exploit, fallback).",
	}, []string{"mode"})

	windowResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommender",
		Name:      "window_resolutions_total",
		Help:      "Monitoring window resolutions, by outcome (accepted, overridden, superseded, cancelled).",
	}, []string{"outcome"})

	activeWindows = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "recommender",
		Name:      "active_windows",
		Help:      "Monitoring windows currently armed.",
	})

	epsilon = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "recommender",
		Name:      "exploration_rate",
		Help:      "Current shared epsilon.",
	})

	persistenceSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommender",
		Name:      "persistence_saves_total",
		Help:      "Snapshot save attempts, by result (ok, retry, dropped).",
	}, []string{"result"})

	saveQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "recommender",
		Name:      "persistence_queue_depth",
		Help:      "Snapshots waiting in the save queue.",
	})

	eventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommender",
		Name:      "events_consumed_total",
		Help:      "Thermostat events consumed, by type and result (ok, skipped).",
	}, []string{"type", "result"})

	activityPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommender",
		Name:      "activity_published_total",
		Help:      "Activity records published, by result (ok, dropped, fail).",
	}, []string{"result"})

	roomLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommender",
		Name:      "room_lookups_total",
		Help:      "Room category lookups, by result (hit, miss, fallback).",
	}, []string{"result"})
)

func IncRecommendation(mode string)       { recommendations.WithLabelValues(mode).Inc() }
func IncWindowResolution(outcome string)  { windowResolutions.WithLabelValues(outcome).Inc() }
func SetActiveWindows(n int)              { activeWindows.Set(float64(n)) }
func SetEpsilon(v float64)                { epsilon.Set(v) }
func IncPersistenceSave(result string)    { persistenceSaves.WithLabelValues(result).Inc() }
func SetSaveQueueDepth(n int)             { saveQueueDepth.Set(float64(n)) }
func IncEventConsumed(typ, result string) { eventsConsumed.WithLabelValues(typ, result).Inc() }
func IncActivityPublished(result string)  { activityPublished.WithLabelValues(result).Inc() }
func IncRoomLookup(result string)         { roomLookups.WithLabelValues(result).Inc() }
