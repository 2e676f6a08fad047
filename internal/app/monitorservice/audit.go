package monitorservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"sales-dashboard/internal/domain/health"
	"sales-dashboard/internal/ports"
	"sales-dashboard/internal/shared/contracts"
	"sales-dashboard/internal/shared/rabbitmq"
)

// RepositoryAudit writes monitor history to the database.
type RepositoryAudit struct {
	uow  ports.UnitOfWork
	repo ports.MonitorLogRepository
}

// NewRepositoryAudit stores history through repo, one transaction per record.
func NewRepositoryAudit(uow ports.UnitOfWork, repo ports.MonitorLogRepository) *RepositoryAudit {
	return &RepositoryAudit{uow: uow, repo: repo}
}

func (a *RepositoryAudit) RecordStatusChange(ctx context.Context, change health.StatusChange) error {
	return a.uow.WithinTx(ctx, func(txCtx context.Context) error {
		return a.repo.InsertStatusChange(txCtx, change)
	})
}

func (a *RepositoryAudit) RecordError(ctx context.Context, record health.ErrorRecord) error {
	return a.uow.WithinTx(ctx, func(txCtx context.Context) error {
		return a.repo.InsertError(txCtx, record)
	})
}

// PublisherAudit fans status changes out to subscribers. Errors are not published.
type PublisherAudit struct {
	publisher ports.Publisher
}

// NewPublisherAudit publishes status changes through publisher.
func NewPublisherAudit(publisher ports.Publisher) *PublisherAudit {
	return &PublisherAudit{publisher: publisher}
}

func (a *PublisherAudit) RecordStatusChange(_ context.Context, change health.StatusChange) error {
	body, err := json.Marshal(contracts.NewStatusChangeMessage(change))
	if err != nil {
		return fmt.Errorf("marshal status change: %w", err)
	}
	return a.publisher.Publish(rabbitmq.StatusFanout, "", body, 0)
}

func (a *PublisherAudit) RecordError(context.Context, health.ErrorRecord) error {
	return nil
}

// MultiAudit records to every audit in order and joins their errors.
type MultiAudit []ports.MonitorAudit

func (m MultiAudit) RecordStatusChange(ctx context.Context, change health.StatusChange) error {
	var errs []error
	for _, a := range m {
		if err := a.RecordStatusChange(ctx, change); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiAudit) RecordError(ctx context.Context, record health.ErrorRecord) error {
	var errs []error
	for _, a := range m {
		if err := a.RecordError(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
