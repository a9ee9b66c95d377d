/**
 * @description
 * Lifecycle actions on budget alerts: acknowledge, resolve, dismiss, and the
 * escalation side-channel. Every action validates the state machine before
 * touching the store and returns the refreshed alert. The store persists each
 * status change together with its immutable history row.
 *
 * State machine:
 *   active -> acknowledged -> resolved
 *   active -> resolved
 *   active -> dismissed
 * resolved and dismissed are terminal; any action on them fails with
 * InvalidStateTransitionError. Escalation never changes the status.
 *
 * @dependencies
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For escalation event publication.
 */

package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/edumitra/csr-service/internal/domain"
	"github.com/edumitra/csr-service/internal/store"
	"github.com/edumitra/csr-service/pkg/rabbitmq"
	"github.com/google/uuid"
)

// AlertLifecycleService applies operator actions to alerts.
type AlertLifecycleService struct {
	repo     store.Repository
	producer rabbitmq.Publisher
	logger   *slog.Logger
	now      func() time.Time
}

// NewAlertLifecycleService creates a new lifecycle service instance.
func NewAlertLifecycleService(repo store.Repository, producer rabbitmq.Publisher, logger *slog.Logger) *AlertLifecycleService {
	return &AlertLifecycleService{repo: repo, producer: producer, logger: logger, now: time.Now}
}

func (s *AlertLifecycleService) load(ctx context.Context, alertID uuid.UUID) (*domain.BudgetAlert, error) {
	alert, err := s.repo.FindBudgetAlertByID(ctx, alertID)
	if err != nil {
		if errors.Is(err, store.ErrAlertNotFound) {
			return nil, &domain.NotFoundError{Entity: "alert", ID: alertID.String()}
		}
		return nil, err
	}
	return alert, nil
}

// Acknowledge moves an active alert to acknowledged.
func (s *AlertLifecycleService) Acknowledge(ctx context.Context, alertID, actorID uuid.UUID, notes string) (*domain.BudgetAlert, error) {
	alert, err := s.load(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if !alert.CanAcknowledge() {
		return nil, &domain.InvalidStateTransitionError{Entity: "alert", From: string(alert.Status), Action: "acknowledge"}
	}

	ack := domain.Acknowledgment{By: actorID, At: s.now().UTC(), Notes: notes}
	if err := s.repo.AcknowledgeBudgetAlert(ctx, alertID, ack); err != nil {
		if errors.Is(err, store.ErrAlertStateStale) {
			return nil, &domain.ConflictError{Resource: "alert", Reason: "state changed concurrently"}
		}
		return nil, err
	}
	return s.load(ctx, alertID)
}

// Resolve closes an active or acknowledged alert. Resolving frees the dedup
// key so a later threshold crossing can re-trigger.
func (s *AlertLifecycleService) Resolve(ctx context.Context, alertID, actorID uuid.UUID, notes string) (*domain.BudgetAlert, error) {
	alert, err := s.load(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if !alert.CanResolve() {
		return nil, &domain.InvalidStateTransitionError{Entity: "alert", From: string(alert.Status), Action: "resolve"}
	}

	res := domain.Resolution{By: actorID, At: s.now().UTC(), Notes: notes}
	if err := s.repo.ResolveBudgetAlert(ctx, alertID, res); err != nil {
		if errors.Is(err, store.ErrAlertStateStale) {
			return nil, &domain.ConflictError{Resource: "alert", Reason: "state changed concurrently"}
		}
		return nil, err
	}
	return s.load(ctx, alertID)
}

// Dismiss closes an active alert without resolution details.
func (s *AlertLifecycleService) Dismiss(ctx context.Context, alertID, actorID uuid.UUID, notes string) (*domain.BudgetAlert, error) {
	alert, err := s.load(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if !alert.CanDismiss() {
		return nil, &domain.InvalidStateTransitionError{Entity: "alert", From: string(alert.Status), Action: "dismiss"}
	}

	if err := s.repo.DismissBudgetAlert(ctx, alertID, actorID, s.now().UTC(), notes); err != nil {
		if errors.Is(err, store.ErrAlertStateStale) {
			return nil, &domain.ConflictError{Resource: "alert", Reason: "state changed concurrently"}
		}
		return nil, err
	}
	return s.load(ctx, alertID)
}

// Escalate bumps the escalation side-channel without changing status.
// Allowed from active or acknowledged only.
func (s *AlertLifecycleService) Escalate(ctx context.Context, alertID, actorID uuid.UUID, targets []uuid.UUID, reason string) (*domain.BudgetAlert, error) {
	alert, err := s.load(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if !alert.CanEscalate() {
		return nil, &domain.InvalidStateTransitionError{Entity: "alert", From: string(alert.Status), Action: "escalate"}
	}

	if _, err := s.repo.EscalateBudgetAlert(ctx, alertID, actorID, s.now().UTC(), targets, reason); err != nil {
		if errors.Is(err, store.ErrAlertStateStale) {
			return nil, &domain.ConflictError{Resource: "alert", Reason: "state changed concurrently"}
		}
		return nil, err
	}

	if s.producer != nil {
		event := rabbitmq.BudgetAlertEvent{
			AlertID:             alert.ID,
			OrganizationID:      alert.OrganizationID,
			CampaignID:          alert.CampaignID,
			AlertType:           string(alert.AlertType),
			ThresholdPercentage: alert.ThresholdPercentage,
			Severity:            string(alert.Severity),
			Timestamp:           s.now().UTC(),
		}
		if err := s.producer.PublishBudgetAlertEvent(ctx, event); err != nil {
			s.logger.Warn("escalation event publish failed", "alert_id", alert.ID, "error", err)
		}
	}
	return s.load(ctx, alertID)
}

// List returns the organization's alerts with optional filters.
func (s *AlertLifecycleService) List(ctx context.Context, organizationID uuid.UUID, opts store.AlertListOptions) ([]domain.BudgetAlert, error) {
	if organizationID == uuid.Nil {
		return nil, domain.NewValidationError("organization_id", "an explicit organization context is required")
	}
	return s.repo.ListBudgetAlerts(ctx, organizationID, opts)
}

// Get returns one alert with its history.
func (s *AlertLifecycleService) Get(ctx context.Context, alertID uuid.UUID) (*domain.BudgetAlert, error) {
	return s.load(ctx, alertID)
}
