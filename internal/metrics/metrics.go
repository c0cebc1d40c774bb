// Package metrics метрики Prometheus сервиса
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "linktracker"

var (
	ClicksRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "clicks_recorded_total",
		Help:      "Clicks persisted together with the counter increment.",
	})

	ClickPersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "click_persist_failures_total",
		Help:      "Clicks dropped after all persistence attempts; the redirect was still served.",
	})

	// EnrichmentDegraded считает случаи, когда поле клика заменено на Unknown
	EnrichmentDegraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enrichment_degraded_total",
		Help:      "Click enrichment steps that fell back to a default value.",
	}, []string{"stage", "reason"})

	LinksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "links_created_total",
		Help:      "Short links created.",
	})

	ShortIDCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "shortid_collisions_total",
		Help:      "Short id draws rejected by the uniqueness constraint.",
	})
)
