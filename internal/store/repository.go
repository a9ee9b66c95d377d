/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all data access operations required by the csr-service. Defining an
 * interface decouples the ledger/alerting business logic from the PostgreSQL
 * implementation and lets the app-layer tests run against stubs.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/edumitra/csr-service/internal/domain"
	"github.com/google/uuid"
)

// EngagementTotals are the raw activity sums for one reporting window. The
// app layer derives lift by comparing two windows.
type EngagementTotals struct {
	ActiveStudents int64
	Sessions       int64
	XPEarned       int64
	MoodCheckIns   int64
}

// AlertListOptions controls filtering and pagination for alert listings.
type AlertListOptions struct {
	CampaignID *uuid.UUID
	Status     domain.AlertStatus
	Severity   domain.AlertSeverity
	Limit      int
	Offset     int
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Organization methods
	OrganizationExists(ctx context.Context, organizationID uuid.UUID) (bool, error)
	ListOrganizationIDs(ctx context.Context) ([]uuid.UUID, error)

	// Ledger methods. AppendLedgerEntry computes running balances inside a
	// transaction serialized per organization; callers never supply balances.
	AppendLedgerEntry(ctx context.Context, entry *domain.NewLedgerEntry) (*domain.LedgerEntry, error)
	FindLedgerEntryByID(ctx context.Context, entryID uuid.UUID) (*domain.LedgerEntry, error)
	ListLedgerEntries(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error)
	CompleteLedgerEntry(ctx context.Context, entryID uuid.UUID) (*domain.LedgerEntry, error)
	MarkLedgerEntryStatus(ctx context.Context, entryID uuid.UUID, from, to domain.LedgerStatus) error
	SummarizeSpend(ctx context.Context, organizationID uuid.UUID, filter domain.SpendFilter) (*domain.SpendSummary, error)

	// Campaign methods
	FindCampaignByID(ctx context.Context, campaignID uuid.UUID) (*domain.Campaign, error)
	FindScannableCampaigns(ctx context.Context, organizationID uuid.UUID) ([]domain.Campaign, error)
	AdvanceCampaignStatus(ctx context.Context, campaignID uuid.UUID, from, to domain.CampaignStatus) error
	RecomputeCampaignSpend(ctx context.Context, campaignID uuid.UUID) (*domain.Budget, error)

	// Alert methods. InsertBudgetAlert returns inserted=false when the
	// storage-layer dedup constraint rejected the row. Lifecycle updates
	// persist the status change and its history row atomically, and
	// EscalateBudgetAlert increments the level in storage and returns the
	// level it landed on.
	InsertBudgetAlert(ctx context.Context, alert *domain.BudgetAlert) (inserted bool, err error)
	FindBudgetAlertByID(ctx context.Context, alertID uuid.UUID) (*domain.BudgetAlert, error)
	FindOpenAlertThresholds(ctx context.Context, organizationID, campaignID uuid.UUID, alertType domain.AlertType) (map[int]bool, error)
	ListBudgetAlerts(ctx context.Context, organizationID uuid.UUID, opts AlertListOptions) ([]domain.BudgetAlert, error)
	AcknowledgeBudgetAlert(ctx context.Context, alertID uuid.UUID, ack domain.Acknowledgment) error
	ResolveBudgetAlert(ctx context.Context, alertID uuid.UUID, res domain.Resolution) error
	DismissBudgetAlert(ctx context.Context, alertID, by uuid.UUID, at time.Time, notes string) error
	EscalateBudgetAlert(ctx context.Context, alertID, by uuid.UUID, at time.Time, targets []uuid.UUID, reason string) (int, error)
	ListAlertHistory(ctx context.Context, alertID uuid.UUID) ([]domain.HistoryEntry, error)

	// KPI read-model methods. All tolerate empty collections by returning
	// zeroed metrics, never errors.
	CoverageForPeriod(ctx context.Context, organizationID uuid.UUID, region string, from, to time.Time) (*domain.CoverageMetrics, error)
	EngagementForPeriod(ctx context.Context, organizationID uuid.UUID, region string, from, to time.Time) (*EngagementTotals, error)
	CertificatesForPeriod(ctx context.Context, organizationID uuid.UUID, region string, from, to time.Time) (*domain.CertificateMetrics, error)
	CompetencyCoverage(ctx context.Context, organizationID uuid.UUID, region string, from, to time.Time) (*domain.CompetencyMetrics, error)
}
