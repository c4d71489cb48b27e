package sessionstate

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/sessionstate/pkg/sessionstate/observability"
)

// ID lengths in hex characters.
const (
	sessionIDLength    = 12
	checkpointIDLength = 8
	artifactIDLength   = 12
)

// maxIDAttempts bounds retries after a generated ID collides.
const maxIDAttempts = 5

// IDGenerator returns a new random identifier of n characters.
type IDGenerator func(n int) string

// NewHexID derives an n-character lowercase hex ID from a random UUID.
// n is capped at 32.
func NewHexID(n int) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(id) {
		n = len(id)
	}
	return id[:n]
}

// options holds configuration shared by every component.
type options struct {
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	now     func() time.Time
	newID   IDGenerator
}

func defaultOptions() options {
	return options{
		logger:  slog.New(slog.DiscardHandler),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
		now:     time.Now,
		newID:   NewHexID,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a component.
type Option func(*options)

// WithLogger sets the structured logger.
// Default: discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
// Default: observability.NoopMetrics.
//
// Example:
//
//	m := sessionstate.New(st, sessionstate.WithMetrics(observability.NewMetricsRecorder()))
func WithMetrics(metrics observability.MetricsRecorder) Option {
	return func(o *options) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// WithSpans sets the span manager.
// Default: observability.NoopSpanManager.
func WithSpans(spans observability.SpanManager) Option {
	return func(o *options) {
		if spans != nil {
			o.spans = spans
		}
	}
}

// WithClock sets the time source for created_at and updated_at.
// Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator sets the ID source.
// Default: NewHexID.
func WithIDGenerator(gen IDGenerator) Option {
	return func(o *options) {
		if gen != nil {
			o.newID = gen
		}
	}
}

func (o *options) timestamp() time.Time {
	return o.now().UTC()
}

// track starts a span for op and returns a function that records the
// outcome as a metric, a span status and, on failure, a log line.
func (o *options) track(ctx context.Context, op, sessionID string) (context.Context, func(error)) {
	ctx, span := o.spans.StartOperationSpan(ctx, op, sessionID)
	elapsed := observability.TimedOperation()
	return ctx, func(err error) {
		o.metrics.RecordOperation(ctx, op, elapsed(), err)
		observability.LogOperationError(o.logger, op, sessionID, err)
		o.spans.EndSpanWithError(span, err)
	}
}
