package sync

import (
	"context"
	"strconv"

	"github.com/matheus3301/wppgw/internal/store"
	"go.uber.org/zap"
)

// Checkpoint keys.
const (
	CheckpointHistoryProgress = "history_progress"
	CheckpointLastConnected   = "last_connected"
)

// Reconciler manages history sync checkpoints.
type Reconciler struct {
	db     *store.DB
	logger *zap.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(db *store.DB, logger *zap.Logger) *Reconciler {
	return &Reconciler{db: db, logger: logger}
}

// UpdateCheckpoint updates a sync checkpoint value.
func (r *Reconciler) UpdateCheckpoint(ctx context.Context, key, value string) error {
	return r.db.SetState(ctx, key, value)
}

// GetCheckpoint retrieves a sync checkpoint value, "" when unset.
func (r *Reconciler) GetCheckpoint(ctx context.Context, key string) (string, error) {
	v, _, err := r.db.GetState(ctx, key)
	return v, err
}

// HistoryProgress returns the last recorded history sync percentage.
func (r *Reconciler) HistoryProgress(ctx context.Context) int {
	v, err := r.GetCheckpoint(ctx, CheckpointHistoryProgress)
	if err != nil {
		r.logger.Warn("failed to read history progress", zap.Error(err))
		return 0
	}
	n, _ := strconv.Atoi(v)
	return n
}
