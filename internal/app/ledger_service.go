/**
 * @description
 * This file contains the ledger business logic for the csr-service. The
 * LedgerService orchestrates appends to the append-only spend ledger,
 * forward-only status transitions, reversals, and the read-side spend
 * aggregation consumed by dashboards and the threshold engine.
 *
 * Key features:
 * - Append validates input, requires an explicit existing organization, and
 *   retries a bounded number of times when the store reports a concurrent
 *   append race before surfacing ConflictError.
 * - Completed movements are published to RabbitMQ as spend events for the
 *   notification pipeline; publish failures are logged, never propagated.
 *
 * @dependencies
 * - context, errors, log/slog, time: Standard Go libraries.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publication.
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

// maxAppendRetries bounds the retry-with-reread loop on append conflicts.
const maxAppendRetries = 3

// LedgerService provides the core ledger operations.
type LedgerService struct {
	repo     store.Repository
	producer rabbitmq.Publisher
	logger   *slog.Logger
}

// NewLedgerService creates a new ledger service instance.
func NewLedgerService(repo store.Repository, producer rabbitmq.Publisher, logger *slog.Logger) *LedgerService {
	return &LedgerService{repo: repo, producer: producer, logger: logger}
}

// Append records a new immutable ledger entry and returns it with computed
// running balances. Concurrent appends for the same organization are
// serialized by the store; a conflict that survives the bounded retries
// surfaces as ConflictError.
func (s *LedgerService) Append(ctx context.Context, entry domain.NewLedgerEntry) (*domain.LedgerEntry, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	exists, err := s.repo.OrganizationExists(ctx, entry.OrganizationID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &domain.NotFoundError{Entity: "organization", ID: entry.OrganizationID.String()}
	}
	if entry.CampaignID != nil {
		campaign, err := s.repo.FindCampaignByID(ctx, *entry.CampaignID)
		if err != nil {
			if errors.Is(err, store.ErrCampaignNotFound) {
				return nil, &domain.NotFoundError{Entity: "campaign", ID: entry.CampaignID.String()}
			}
			return nil, err
		}
		if campaign.OrganizationID != entry.OrganizationID {
			return nil, domain.NewValidationError("campaign_id", "campaign belongs to a different organization")
		}
	}

	var created *domain.LedgerEntry
	for attempt := 1; ; attempt++ {
		created, err = s.repo.AppendLedgerEntry(ctx, &entry)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrLedgerConflict) {
			return nil, err
		}
		if attempt >= maxAppendRetries {
			return nil, &domain.ConflictError{Resource: "ledger", Reason: "concurrent appends exhausted retries"}
		}
		s.logger.Warn("ledger append conflict, retrying",
			"organization_id", entry.OrganizationID, "attempt", attempt)
	}

	if created.Status == domain.LedgerStatusCompleted {
		s.publishSpend(ctx, created)
	}
	return created, nil
}

// Reverse appends a correcting entry that undoes the referenced completed
// entry. The original is never mutated; the new entry flips the direction and
// carries an adjustment category with a reference back to the original.
func (s *LedgerService) Reverse(ctx context.Context, entryID uuid.UUID, description string) (*domain.LedgerEntry, error) {
	original, err := s.repo.FindLedgerEntryByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, store.ErrLedgerEntryNotFound) {
			return nil, &domain.NotFoundError{Entity: "ledger entry", ID: entryID.String()}
		}
		return nil, err
	}
	if original.Status != domain.LedgerStatusCompleted {
		return nil, &domain.InvalidStateTransitionError{Entity: "ledger entry", From: string(original.Status), Action: "reverse"}
	}
	if original.ReversalOf != nil {
		return nil, domain.NewValidationError("entry_id", "reversal entries cannot be reversed")
	}

	direction := domain.DirectionInbound
	if original.Direction == domain.DirectionInbound {
		direction = domain.DirectionOutbound
	}
	return s.Append(ctx, domain.NewLedgerEntry{
		OrganizationID: original.OrganizationID,
		CampaignID:     original.CampaignID,
		Amount:         original.Amount,
		PointsAmount:   original.PointsAmount,
		Category:       domain.CategoryAdjustment,
		Direction:      direction,
		Description:    description,
		ReversalOf:     &original.ID,
	})
}

// Complete moves a pending/processing entry into the balance chain.
func (s *LedgerService) Complete(ctx context.Context, entryID uuid.UUID) (*domain.LedgerEntry, error) {
	var completed *domain.LedgerEntry
	var err error
	for attempt := 1; ; attempt++ {
		completed, err = s.repo.CompleteLedgerEntry(ctx, entryID)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrLedgerEntryNotFound) {
			return nil, &domain.NotFoundError{Entity: "ledger entry", ID: entryID.String()}
		}
		if errors.Is(err, store.ErrStatusNotAdvanced) {
			return nil, &domain.InvalidStateTransitionError{Entity: "ledger entry", From: "terminal", Action: "complete"}
		}
		if !errors.Is(err, store.ErrLedgerConflict) {
			return nil, err
		}
		if attempt >= maxAppendRetries {
			return nil, &domain.ConflictError{Resource: "ledger", Reason: "concurrent completion exhausted retries"}
		}
	}
	s.publishSpend(ctx, completed)
	return completed, nil
}

// Fail marks a pending/processing entry as failed or cancelled. Balances are
// untouched because the entry never joined the chain.
func (s *LedgerService) Fail(ctx context.Context, entryID uuid.UUID, to domain.LedgerStatus) error {
	if to != domain.LedgerStatusFailed && to != domain.LedgerStatusCancelled {
		return domain.NewValidationError("status", "only failed or cancelled are accepted")
	}
	entry, err := s.repo.FindLedgerEntryByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, store.ErrLedgerEntryNotFound) {
			return &domain.NotFoundError{Entity: "ledger entry", ID: entryID.String()}
		}
		return err
	}
	if err := s.repo.MarkLedgerEntryStatus(ctx, entryID, entry.Status, to); err != nil {
		if errors.Is(err, store.ErrStatusNotAdvanced) {
			return &domain.InvalidStateTransitionError{Entity: "ledger entry", From: string(entry.Status), Action: string(to)}
		}
		return err
	}
	return nil
}

// SummarizeSpend aggregates outbound completed entries for the organization.
// Pure read-side aggregation; no side effects.
func (s *LedgerService) SummarizeSpend(ctx context.Context, organizationID uuid.UUID, filter domain.SpendFilter) (*domain.SpendSummary, error) {
	if organizationID == uuid.Nil {
		return nil, domain.NewValidationError("organization_id", "an explicit organization context is required")
	}
	return s.repo.SummarizeSpend(ctx, organizationID, filter)
}

// ListEntries returns the organization's ledger, newest first.
func (s *LedgerService) ListEntries(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error) {
	if organizationID == uuid.Nil {
		return nil, domain.NewValidationError("organization_id", "an explicit organization context is required")
	}
	return s.repo.ListLedgerEntries(ctx, organizationID, limit, offset)
}

// FundCampaign records an inbound funding movement against a campaign and
// refreshes the campaign's stored spend figures from the ledger.
func (s *LedgerService) FundCampaign(ctx context.Context, organizationID, campaignID uuid.UUID, amount, pointsAmount int64, description string) (*domain.LedgerEntry, error) {
	entry, err := s.Append(ctx, domain.NewLedgerEntry{
		OrganizationID: organizationID,
		CampaignID:     &campaignID,
		Amount:         amount,
		PointsAmount:   pointsAmount,
		Category:       domain.CategoryFunding,
		Direction:      domain.DirectionInbound,
		Description:    description,
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.RecomputeCampaignSpend(ctx, campaignID); err != nil {
		// The stored figures are an optimization; the ledger remains correct.
		s.logger.Warn("campaign spend recompute failed after funding",
			"campaign_id", campaignID, "error", err)
	}
	return entry, nil
}

// AdvanceCampaign moves a campaign one stage forward through the workflow.
// Archiving is allowed from any stage; everything else is strictly sequential.
func (s *LedgerService) AdvanceCampaign(ctx context.Context, organizationID, campaignID uuid.UUID, to domain.CampaignStatus) (*domain.Campaign, error) {
	campaign, err := s.repo.FindCampaignByID(ctx, campaignID)
	if err != nil {
		if errors.Is(err, store.ErrCampaignNotFound) {
			return nil, &domain.NotFoundError{Entity: "campaign", ID: campaignID.String()}
		}
		return nil, err
	}
	if campaign.OrganizationID != organizationID {
		return nil, &domain.NotFoundError{Entity: "campaign", ID: campaignID.String()}
	}
	if !domain.CanAdvanceCampaign(campaign.Status, to) {
		return nil, &domain.InvalidStateTransitionError{Entity: "campaign", From: string(campaign.Status), Action: string(to)}
	}
	if err := s.repo.AdvanceCampaignStatus(ctx, campaignID, campaign.Status, to); err != nil {
		if errors.Is(err, store.ErrStatusNotAdvanced) {
			return nil, &domain.ConflictError{Resource: "campaign", Reason: "stage changed concurrently"}
		}
		return nil, err
	}
	return s.repo.FindCampaignByID(ctx, campaignID)
}

func (s *LedgerService) publishSpend(ctx context.Context, entry *domain.LedgerEntry) {
	if s.producer == nil {
		return
	}
	event := rabbitmq.SpendEvent{
		EntryID:        entry.ID,
		OrganizationID: entry.OrganizationID,
		CampaignID:     entry.CampaignID,
		Amount:         entry.Amount,
		PointsAmount:   entry.PointsAmount,
		Direction:      string(entry.Direction),
		Category:       string(entry.Category),
		Timestamp:      time.Now().UTC(),
	}
	if err := s.producer.PublishSpendEvent(ctx, event); err != nil {
		s.logger.Warn("spend event publish failed", "entry_id", entry.ID, "error", err)
	}
}
