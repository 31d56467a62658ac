package metrics

import (
	"fmt"

	"contrib.go.opencensus.io/exporter/stackdriver"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	CounterUpdateChecks    = stats.Int64("update_checks", "Number of update checks", "1")
	CounterUpdatesFound    = stats.Int64("updates_available", "Number of checks that found a newer release", "1")
	CounterFetchFailures   = stats.Int64("release_fetch_failures", "Number of failed release fetches", "1")
	CounterReleaseCacheHit = stats.Int64("release_cache_hits", "Number of releases served from the transient store", "1")
	CounterPurges          = stats.Int64("purges", "Number of purged pending update entries", "1")

	TagPlugin = tag.MustNewKey("plugin")
)

var views = []*view.View{
	{
		Name:        "update_checks",
		Measure:     CounterUpdateChecks,
		Description: "Number of update checks",
		TagKeys:     []tag.Key{TagPlugin},
		Aggregation: view.Count(),
	},
	{
		Name:        "updates_available",
		Measure:     CounterUpdatesFound,
		Description: "Number of checks that found a newer release",
		TagKeys:     []tag.Key{TagPlugin},
		Aggregation: view.Count(),
	},
	{
		Name:        "release_fetch_failures",
		Measure:     CounterFetchFailures,
		Description: "Number of failed release fetches",
		TagKeys:     []tag.Key{TagPlugin},
		Aggregation: view.Count(),
	},
	{
		Name:        "release_cache_hits",
		Measure:     CounterReleaseCacheHit,
		Description: "Number of releases served from the transient store",
		TagKeys:     []tag.Key{TagPlugin},
		Aggregation: view.Count(),
	},
	{
		Name:        "purges",
		Measure:     CounterPurges,
		Description: "Number of purged pending update entries",
		Aggregation: view.Count(),
	},
}

func RegisterViews() error {
	return view.Register(views...)
}

func NewExporter(projectID, stage string) (*stackdriver.Exporter, error) {
	err := RegisterViews()
	if err != nil {
		return nil, err
	}
	exporter, err := stackdriver.NewExporter(stackdriver.Options{
		ProjectID:    projectID,
		MetricPrefix: fmt.Sprintf("plugin-updater/%s", stage),
	})
	if err != nil {
		return nil, err
	}
	err = exporter.StartMetricsExporter()
	if err != nil {
		return nil, err
	}
	return exporter, nil
}
