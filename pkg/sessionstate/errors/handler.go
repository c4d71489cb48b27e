package errors

import (
	"context"
	"log/slog"
	"time"
)

// Handler retries transient store failures and reports the ones it gives up on.
type Handler struct {
	retry  RetryConfig
	logger *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// NewHandler creates a new error handler with the given options.
func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{
		retry:  DefaultRetry,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) HandlerOption {
	return func(h *Handler) {
		h.retry = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Execute runs fn, retrying transient failures.
func (h *Handler) Execute(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := ExecuteWithValue(ctx, h, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// ExecuteWithValue runs fn with retry handling and returns its value.
func ExecuteWithValue[T any](
	ctx context.Context,
	h *Handler,
	op string,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	cfg := h.retry
	hook := cfg.OnRetry
	cfg.OnRetry = func(attempt int, err error, backoff time.Duration) {
		h.logger.Warn("retrying store operation",
			slog.String("operation", op),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()),
		)
		if hook != nil {
			hook(attempt, err, backoff)
		}
	}

	result := WithRetryContext(ctx, cfg, fn)
	if result.Err != nil && result.Attempts > 1 && IsRetryable(result.Err) {
		h.logger.Error("store retries exhausted",
			slog.String("operation", op),
			slog.Int("attempts", result.Attempts),
			slog.Duration("elapsed", result.Duration),
			slog.String("error", result.Err.Error()),
		)
	}
	return result.Value, result.Err
}
