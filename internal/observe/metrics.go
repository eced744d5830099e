// Package observe provides application-wide observability primitives for
// Kinoforge: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// installs a Prometheus exporter bridge on the default Prometheus registry;
// this package serves no HTTP /metrics endpoint itself. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Kinoforge metrics.
const meterName = "github.com/MrWong99/kinoforge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// RemoteRequestDuration tracks remote-API call latency. Use with
	// attributes: attribute.String("endpoint", ...), attribute.String("method", ...)
	RemoteRequestDuration metric.Float64Histogram

	// BulkJobDuration tracks the wall-clock duration of a bulk image or audio
	// generation run, from submit to terminal status.
	BulkJobDuration metric.Float64Histogram

	// PreflightDuration tracks how long preflight validation takes to
	// produce a blocker list for a project.
	PreflightDuration metric.Float64Histogram

	// VideoBuildDuration tracks wall-clock time from build submission to a
	// terminal (completed, failed or cancelled) status.
	VideoBuildDuration metric.Float64Histogram

	// ChatEditParseDuration tracks how long Step A/B/C (parse, normalize,
	// classify) takes for one chat-edit message.
	ChatEditParseDuration metric.Float64Histogram

	// --- Counters ---

	// RemoteRequests counts remote-API calls. Use with attributes:
	//   attribute.String("endpoint", ...), attribute.String("status", ...)
	RemoteRequests metric.Int64Counter

	// RemoteRetries counts retry attempts of remote-API calls recorded via
	// [Metrics.RecordRemoteRetry], keyed by endpoint. pkg/restclient does not
	// retry and does not record this counter.
	RemoteRetries metric.Int64Counter

	// ChatEditParses counts chat-edit messages classified by parse mode
	// (regex vs ai) and resulting decision mode.
	//   attribute.String("parse_mode", ...), attribute.String("decision", ...)
	ChatEditParses metric.Int64Counter

	// SceneRebakes counts scenes whose comic render was invalidated by an
	// applied chat-edit patch.
	SceneRebakes metric.Int64Counter

	// --- Error counters ---

	// RemoteErrors counts remote-API errors by endpoint and error class.
	RemoteErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveBulkJobs tracks the number of bulk image/audio jobs currently
	// in flight across all open projects.
	ActiveBulkJobs metric.Int64UpDownCounter

	// ActiveVideoBuilds tracks the number of video builds currently
	// queued or rendering.
	ActiveVideoBuilds metric.Int64UpDownCounter

	// OpenProjects tracks the number of projects with an open tab in the
	// current session.
	OpenProjects metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for interactive remote-API round trips. buildLatencyBuckets below covers
// the much longer render/bulk-job tail.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// buildLatencyBuckets spans the minutes-long tail of bulk generation and
// video-build jobs rather than the sub-second interactive range above.
var buildLatencyBuckets = []float64{
	1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RemoteRequestDuration, err = m.Float64Histogram("kinoforge.remote.request.duration",
		metric.WithDescription("Latency of remote-API calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BulkJobDuration, err = m.Float64Histogram("kinoforge.bulk_job.duration",
		metric.WithDescription("Wall-clock duration of a bulk image or audio generation run."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(buildLatencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PreflightDuration, err = m.Float64Histogram("kinoforge.preflight.duration",
		metric.WithDescription("Latency of preflight validation for a project."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.VideoBuildDuration, err = m.Float64Histogram("kinoforge.video_build.duration",
		metric.WithDescription("Wall-clock time from video build submission to a terminal status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(buildLatencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChatEditParseDuration, err = m.Float64Histogram("kinoforge.chat_edit.parse.duration",
		metric.WithDescription("Latency of parsing and classifying one chat-edit message."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.RemoteRequests, err = m.Int64Counter("kinoforge.remote.requests",
		metric.WithDescription("Total remote-API requests by endpoint and status."),
	); err != nil {
		return nil, err
	}
	if met.RemoteRetries, err = m.Int64Counter("kinoforge.remote.retries",
		metric.WithDescription("Total retry attempts of remote-API calls."),
	); err != nil {
		return nil, err
	}
	if met.ChatEditParses, err = m.Int64Counter("kinoforge.chat_edit.parses",
		metric.WithDescription("Total chat-edit messages by parse mode and decision."),
	); err != nil {
		return nil, err
	}
	if met.SceneRebakes, err = m.Int64Counter("kinoforge.scene.rebakes",
		metric.WithDescription("Total scenes invalidated for comic rebake by an applied patch."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.RemoteErrors, err = m.Int64Counter("kinoforge.remote.errors",
		metric.WithDescription("Total remote-API errors by endpoint and error class."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveBulkJobs, err = m.Int64UpDownCounter("kinoforge.active_bulk_jobs",
		metric.WithDescription("Number of bulk image/audio jobs currently in flight."),
	); err != nil {
		return nil, err
	}
	if met.ActiveVideoBuilds, err = m.Int64UpDownCounter("kinoforge.active_video_builds",
		metric.WithDescription("Number of video builds currently queued or rendering."),
	); err != nil {
		return nil, err
	}
	if met.OpenProjects, err = m.Int64UpDownCounter("kinoforge.open_projects",
		metric.WithDescription("Number of projects with an open tab in the current session."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("kinoforge.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordRemoteRequest is a convenience method that records a remote-API
// request counter increment with the standard attribute set.
func (m *Metrics) RecordRemoteRequest(ctx context.Context, endpoint, status string) {
	m.RemoteRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.String("status", status),
		),
	)
}

// RecordRemoteRetry is a convenience method that records a retry-attempt
// counter increment for the given endpoint.
func (m *Metrics) RecordRemoteRetry(ctx context.Context, endpoint string) {
	m.RemoteRetries.Add(ctx, 1,
		metric.WithAttributes(attribute.String("endpoint", endpoint)),
	)
}

// RecordChatEditParse is a convenience method that records a chat-edit parse
// counter increment with the standard attribute set.
func (m *Metrics) RecordChatEditParse(ctx context.Context, parseMode, decision string) {
	m.ChatEditParses.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("parse_mode", parseMode),
			attribute.String("decision", decision),
		),
	)
}

// RecordRemoteError is a convenience method that records a remote-API error
// counter increment.
func (m *Metrics) RecordRemoteError(ctx context.Context, endpoint, class string) {
	m.RemoteErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.String("class", class),
		),
	)
}
