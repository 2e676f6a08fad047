package postgres

import (
	"context"

	"sales-dashboard/internal/domain/health"
	"sales-dashboard/internal/ports"
)

// MonitorLogRepo writes the webhook monitor history.
type MonitorLogRepo struct{}

// NewMonitorLogRepo constructs a new MonitorLogRepo.
func NewMonitorLogRepo() ports.MonitorLogRepository {
	return &MonitorLogRepo{}
}

// InsertStatusChange appends one row to webhook_status_log.
func (r *MonitorLogRepo) InsertStatusChange(ctx context.Context, change health.StatusChange) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO webhook_status_log (old_status, new_status, error_count, timestamp)
		VALUES ($1, $2, $3, $4)
	`, string(change.Old), string(change.New), change.ErrorCount, change.Timestamp.UTC())
	return err
}

// InsertError appends one row to webhook_errors.
func (r *MonitorLogRepo) InsertError(ctx context.Context, record health.ErrorRecord) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO webhook_errors (error_type, message, retry_count, timestamp)
		VALUES ($1, $2, $3, $4)
	`, string(record.Type), record.Message, record.RetryCount, record.Timestamp.UTC())
	return err
}
