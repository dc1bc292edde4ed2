// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pixelplan"

var (
	ThumbnailsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "thumbnails_generated_total",
		Help:      "Thumbnails generated and recorded, by size.",
	}, []string{"size"})

	// ThumbnailFailures reasons: decode, encode, storage, insert, race.
	ThumbnailFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "thumbnail_failures_total",
		Help:      "Thumbnail sizes that were not recorded, by reason.",
	}, []string{"reason"})

	ThumbnailGenerationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "thumbnail_generation_seconds",
		Help:      "Wall time of one thumbnail generation pass for an image.",
		Buckets:   prometheus.DefBuckets,
	})

	LinksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "links_created_total",
		Help:      "Expirable links issued.",
	})

	// LinkResolutions results: live, not_found.
	LinkResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "link_resolutions_total",
		Help:      "Expirable link lookups, by result.",
	}, []string{"result"})
)
