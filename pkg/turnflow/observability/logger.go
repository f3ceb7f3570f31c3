package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger returns a logger that stamps run_id, node_id, and
// attempt on every record, for handing to node functions.
func EnrichLogger(logger *slog.Logger, runID, nodeID string, attempt int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With("run_id", runID, "node_id", nodeID, "attempt", attempt)
}

// All Log helpers tolerate a nil logger so call sites need no guards.

func LogRunStart(logger *slog.Logger, runID string) {
	if logger == nil {
		return
	}
	logger.Info("graph run starting", "run_id", runID)
}

func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, nodeCount int) {
	if logger == nil {
		return
	}
	logger.Info("graph run completed",
		"run_id", runID,
		"duration_ms", durationMs,
		"nodes_executed", nodeCount)
}

// LogRunSuspended records a run parking at a node to wait for input.
func LogRunSuspended(logger *slog.Logger, runID, nodeID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("graph run suspended",
		"run_id", runID,
		"node_id", nodeID,
		"duration_ms", durationMs)
}

func LogRunError(logger *slog.Logger, runID string, err error, durationMs float64, lastNode string) {
	if logger == nil {
		return
	}
	logger.Error("graph run failed",
		"run_id", runID,
		"error", err.Error(),
		"duration_ms", durationMs,
		"last_node", lastNode)
}

// Node lifecycle events log at Debug; failures at Error.

func LogNodeStart(logger *slog.Logger, nodeID string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting", "node_id", nodeID)
}

func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed", "node_id", nodeID, "duration_ms", durationMs)
}

func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed", "node_id", nodeID, "error", err.Error())
}

func LogSnapshot(logger *slog.Logger, nodeID string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("snapshot saved", "node_id", nodeID, "size_bytes", sizeBytes)
}

// LogSnapshotError records a snapshot failure. Snapshots are best
// effort, so this logs at Warn and the run continues.
func LogSnapshotError(logger *slog.Logger, nodeID string, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("snapshot failed",
		"node_id", nodeID,
		"operation", op,
		"error", err.Error())
}

// TimedOperation starts a timer. The returned function reports the
// elapsed milliseconds each time it is called.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
