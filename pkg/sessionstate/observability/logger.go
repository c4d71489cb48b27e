// Package observability provides logging, metrics and tracing hooks for the
// session and checkpoint managers.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
// Every logging helper accepts a nil logger.
package observability

import (
	"log/slog"
	"time"
)

// LogSessionCreated logs creation of a session.
func LogSessionCreated(logger *slog.Logger, sessionID, workflow string) {
	if logger == nil {
		return
	}
	logger.Info("session created",
		slog.String("session_id", sessionID),
		slog.String("workflow", workflow),
	)
}

// LogSessionUpdated logs a session update and which fields it touched.
func LogSessionUpdated(logger *slog.Logger, sessionID string, fields []string) {
	if logger == nil {
		return
	}
	logger.Debug("session updated",
		slog.String("session_id", sessionID),
		slog.Any("fields", fields),
	)
}

// LogStatusChange logs a status transition.
func LogStatusChange(logger *slog.Logger, sessionID, from, to string) {
	if logger == nil || from == to {
		return
	}
	logger.Info("session status changed",
		slog.String("session_id", sessionID),
		slog.String("from", from),
		slog.String("to", to),
	)
}

// LogCheckpointSaved logs checkpoint creation.
func LogCheckpointSaved(logger *slog.Logger, sessionID, checkpointID, phase string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("session_id", sessionID),
		slog.String("checkpoint_id", checkpointID),
		slog.String("phase", phase),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogCheckpointRestored logs an explicit rollback to a checkpoint.
func LogCheckpointRestored(logger *slog.Logger, sessionID, checkpointID, phase string) {
	if logger == nil {
		return
	}
	logger.Info("checkpoint restored",
		slog.String("session_id", sessionID),
		slog.String("checkpoint_id", checkpointID),
		slog.String("phase", phase),
	)
}

// LogRecovered logs the outcome of a recovery. An empty resumeFrom means the
// session had no checkpoint and starts from the beginning.
func LogRecovered(logger *slog.Logger, sessionID, previousStatus, resumeFrom string) {
	if logger == nil {
		return
	}
	if resumeFrom == "" {
		logger.Info("session recovered without checkpoint",
			slog.String("session_id", sessionID),
			slog.String("previous_status", previousStatus),
		)
		return
	}
	logger.Info("session recovered",
		slog.String("session_id", sessionID),
		slog.String("previous_status", previousStatus),
		slog.String("resume_from", resumeFrom),
	)
}

// LogArtifactRecorded logs a new artifact ledger entry.
func LogArtifactRecorded(logger *slog.Logger, sessionID, name, path, checksum string) {
	if logger == nil {
		return
	}
	logger.Debug("artifact recorded",
		slog.String("session_id", sessionID),
		slog.String("name", name),
		slog.String("path", path),
		slog.String("checksum", checksum),
	)
}

// LogRetention logs a retention sweep.
func LogRetention(logger *slog.Logger, days, deleted int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("retention sweep completed",
		slog.Int("days", days),
		slog.Int("sessions_deleted", deleted),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogOperationError logs a failed manager operation.
func LogOperationError(logger *slog.Logger, op, sessionID string, err error) {
	if logger == nil || err == nil {
		return
	}
	logger.Error("operation failed",
		slog.String("operation", op),
		slog.String("session_id", sessionID),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	elapsed := done()
func TimedOperation() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}

// Milliseconds converts a duration to fractional milliseconds for logging.
func Milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
