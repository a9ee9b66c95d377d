/**
 * @description
 * The threshold alert engine detects budget-threshold crossings per campaign
 * and constructs deduplicated alert records. Scanning and persistence are
 * deliberately separate: ScanThresholds returns unsaved alerts so a scan can
 * be run speculatively, and PersistAlerts relies on the storage-layer dedup
 * index to stay race-safe when two scans overlap.
 *
 * @dependencies
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For alert event publication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edumitra/csr-service/internal/domain"
	"github.com/edumitra/csr-service/internal/store"
	"github.com/edumitra/csr-service/pkg/rabbitmq"
	"github.com/google/uuid"
)

// thresholdCheckpoints are the fixed percentages of total budget at which
// alerts are raised, evaluated in ascending order.
var thresholdCheckpoints = []int{80, 90, 95, 100}

// recommendedActions are fixed per severity.
var recommendedActions = map[domain.AlertSeverity]string{
	domain.SeverityMedium:   "Review upcoming spend commitments against the remaining budget.",
	domain.SeverityHigh:     "Pause discretionary spend and confirm remaining budget with finance.",
	domain.SeverityCritical: "Freeze campaign spend immediately and request a budget revision.",
}

// AlertEngine scans campaigns for threshold crossings.
type AlertEngine struct {
	repo     store.Repository
	producer rabbitmq.Publisher
	logger   *slog.Logger
}

// NewAlertEngine creates a new threshold alert engine.
func NewAlertEngine(repo store.Repository, producer rabbitmq.Publisher, logger *slog.Logger) *AlertEngine {
	return &AlertEngine{repo: repo, producer: producer, logger: logger}
}

func severityForCheckpoint(checkpoint int) domain.AlertSeverity {
	switch {
	case checkpoint >= 95:
		return domain.SeverityCritical
	case checkpoint >= 90:
		return domain.SeverityHigh
	default:
		return domain.SeverityMedium
	}
}

// ScanThresholds resolves the target campaign set (one campaign, or every
// active/pilot/rollout campaign of the organization), compares spend against
// each checkpoint, and returns the new, unsaved alerts. Every satisfied and
// undetected checkpoint emits in the same scan: a campaign that jumps from
// 70% to 97% spend yields alerts at 80, 90 and 95, not only the highest.
func (e *AlertEngine) ScanThresholds(ctx context.Context, organizationID uuid.UUID, campaignID *uuid.UUID) ([]domain.BudgetAlert, error) {
	if organizationID == uuid.Nil {
		return nil, domain.NewValidationError("organization_id", "an explicit organization context is required")
	}

	var campaigns []domain.Campaign
	if campaignID != nil {
		campaign, err := e.repo.FindCampaignByID(ctx, *campaignID)
		if err != nil {
			if errors.Is(err, store.ErrCampaignNotFound) {
				return nil, &domain.NotFoundError{Entity: "campaign", ID: campaignID.String()}
			}
			return nil, err
		}
		if campaign.OrganizationID != organizationID {
			return nil, &domain.NotFoundError{Entity: "campaign", ID: campaignID.String()}
		}
		campaigns = []domain.Campaign{*campaign}
	} else {
		found, err := e.repo.FindScannableCampaigns(ctx, organizationID)
		if err != nil {
			return nil, err
		}
		campaigns = found
	}

	var newAlerts []domain.BudgetAlert
	for i := range campaigns {
		alerts, err := e.scanCampaign(ctx, &campaigns[i])
		if err != nil {
			return nil, err
		}
		newAlerts = append(newAlerts, alerts...)
	}
	return newAlerts, nil
}

func (e *AlertEngine) scanCampaign(ctx context.Context, campaign *domain.Campaign) ([]domain.BudgetAlert, error) {
	totalBudget := campaign.Budget.TotalBudget
	if totalBudget == 0 {
		// Division by zero guard: unbudgeted campaigns emit nothing.
		return nil, nil
	}

	summary, err := e.repo.SummarizeSpend(ctx, campaign.OrganizationID, domain.SpendFilter{CampaignID: &campaign.ID})
	if err != nil {
		return nil, err
	}
	spendPercentage := float64(summary.TotalAmount) / float64(totalBudget) * 100

	openWarnings, err := e.repo.FindOpenAlertThresholds(ctx, campaign.OrganizationID, campaign.ID, domain.AlertThresholdWarning)
	if err != nil {
		return nil, err
	}
	openExceeded, err := e.repo.FindOpenAlertThresholds(ctx, campaign.OrganizationID, campaign.ID, domain.AlertBudgetExceeded)
	if err != nil {
		return nil, err
	}

	var alerts []domain.BudgetAlert
	for _, checkpoint := range thresholdCheckpoints {
		if spendPercentage < float64(checkpoint) {
			continue
		}
		alertType := domain.AlertThresholdWarning
		open := openWarnings
		if checkpoint >= 100 {
			alertType = domain.AlertBudgetExceeded
			open = openExceeded
		}
		if open[checkpoint] {
			continue
		}

		severity := severityForCheckpoint(checkpoint)
		alerts = append(alerts, domain.BudgetAlert{
			OrganizationID:      campaign.OrganizationID,
			CampaignID:          campaign.ID,
			AlertType:           alertType,
			ThresholdPercentage: checkpoint,
			Severity:            severity,
			Status:              domain.AlertStatusActive,
			Message: fmt.Sprintf("Campaign %q has spent %d of its %d paise budget (%.1f%%), crossing the %d%% checkpoint",
				campaign.Title, summary.TotalAmount, totalBudget, spendPercentage, checkpoint),
			RecommendedAction: recommendedActions[severity],
			SpendAmount:       summary.TotalAmount,
			BudgetAmount:      totalBudget,
		})
	}
	return alerts, nil
}

// PersistAlerts inserts the scanned alerts and returns the ones that actually
// landed. An alert rejected by the dedup index is a concurrent scan's win,
// not an error. Each persisted alert is published to the notification
// side-channel; publish failures are logged and ignored.
func (e *AlertEngine) PersistAlerts(ctx context.Context, alerts []domain.BudgetAlert) ([]domain.BudgetAlert, error) {
	var persisted []domain.BudgetAlert
	for i := range alerts {
		alert := alerts[i]
		inserted, err := e.repo.InsertBudgetAlert(ctx, &alert)
		if err != nil {
			return persisted, err
		}
		if !inserted {
			e.logger.Info("duplicate alert skipped by dedup index",
				"campaign_id", alert.CampaignID, "threshold", alert.ThresholdPercentage)
			continue
		}
		persisted = append(persisted, alert)
		e.publishAlert(ctx, &alert)
	}
	return persisted, nil
}

// ScanAndPersist runs a scan and persists its results, the path used by the
// on-demand API call and the scheduled job.
func (e *AlertEngine) ScanAndPersist(ctx context.Context, organizationID uuid.UUID, campaignID *uuid.UUID) ([]domain.BudgetAlert, error) {
	alerts, err := e.ScanThresholds(ctx, organizationID, campaignID)
	if err != nil {
		return nil, err
	}
	return e.PersistAlerts(ctx, alerts)
}

func (e *AlertEngine) publishAlert(ctx context.Context, alert *domain.BudgetAlert) {
	if e.producer == nil {
		return
	}
	event := rabbitmq.BudgetAlertEvent{
		AlertID:             alert.ID,
		OrganizationID:      alert.OrganizationID,
		CampaignID:          alert.CampaignID,
		AlertType:           string(alert.AlertType),
		ThresholdPercentage: alert.ThresholdPercentage,
		Severity:            string(alert.Severity),
		Timestamp:           time.Now().UTC(),
	}
	if err := e.producer.PublishBudgetAlertEvent(ctx, event); err != nil {
		e.logger.Warn("budget alert event publish failed", "alert_id", alert.ID, "error", err)
	}
}
