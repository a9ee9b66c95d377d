/**
 * @description
 * This file defines the BudgetAlert domain model and its lifecycle state
 * machine. An alert records a detected budget-threshold crossing (or anomaly)
 * for a campaign, carries acknowledgment/resolution sub-records, an escalation
 * side-channel, and an append-only history of actions taken on it.
 *
 * @notes
 * - At most one active-or-acknowledged alert may exist per
 *   (organization, campaign, alertType, thresholdPercentage) tuple. The store
 *   enforces this with a partial unique index; the scan-then-insert path is
 *   not relied on alone.
 * - Alerts are never deleted, only status-closed. resolved and dismissed are
 *   terminal states.
 */

package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AlertType classifies what triggered the alert.
type AlertType string

const (
	AlertThresholdWarning AlertType = "threshold_warning"
	AlertBudgetExceeded   AlertType = "budget_exceeded"
	AlertLowBalance       AlertType = "low_balance"
	AlertUnusualSpending  AlertType = "unusual_spending"
	AlertApprovalRequired AlertType = "approval_required"
)

// AlertSeverity grades how urgent the alert is.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
	AlertStatusDismissed    AlertStatus = "dismissed"
)

// Acknowledgment records who acknowledged the alert and when.
type Acknowledgment struct {
	By    uuid.UUID `json:"by"`
	At    time.Time `json:"at"`
	Notes string    `json:"notes,omitempty"`
}

// Resolution records who resolved the alert and when.
type Resolution struct {
	By    uuid.UUID `json:"by"`
	At    time.Time `json:"at"`
	Notes string    `json:"notes,omitempty"`
}

// Escalation is a side-channel that does not change the alert status.
type Escalation struct {
	IsEscalated bool        `json:"is_escalated"`
	Level       int         `json:"level"`
	EscalatedTo []uuid.UUID `json:"escalated_to,omitempty"`
}

// HistoryEntry is one immutable row in the alert's action log.
type HistoryEntry struct {
	Action string    `json:"action"`
	Actor  uuid.UUID `json:"actor"`
	At     time.Time `json:"at"`
	Detail string    `json:"detail,omitempty"`
}

// BudgetAlert represents a detected threshold crossing or anomaly for a
// campaign. Maps to the `budget_alerts` table; History maps to
// `budget_alert_history`.
type BudgetAlert struct {
	ID                  uuid.UUID       `json:"id"`
	OrganizationID      uuid.UUID       `json:"organization_id"`
	CampaignID          uuid.UUID       `json:"campaign_id"`
	AlertType           AlertType       `json:"alert_type"`
	ThresholdPercentage int             `json:"threshold_percentage"`
	Severity            AlertSeverity   `json:"severity"`
	Status              AlertStatus     `json:"status"`
	Message             string          `json:"message"`
	RecommendedAction   string          `json:"recommended_action"`
	SpendAmount         int64           `json:"spend_amount"`  // in paise, at detection time
	BudgetAmount        int64           `json:"budget_amount"` // in paise
	Acknowledgment      *Acknowledgment `json:"acknowledgment,omitempty"`
	Resolution          *Resolution     `json:"resolution,omitempty"`
	Escalation          Escalation      `json:"escalation"`
	History             []HistoryEntry  `json:"history,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// DedupKey identifies "the same alert" for deduplication purposes.
func (a *BudgetAlert) DedupKey() string {
	return fmt.Sprintf("%s:%s:%s:%d", a.OrganizationID, a.CampaignID, a.AlertType, a.ThresholdPercentage)
}

// IsTerminal reports whether no further lifecycle action is permitted.
func (a *BudgetAlert) IsTerminal() bool {
	return a.Status == AlertStatusResolved || a.Status == AlertStatusDismissed
}

// CanAcknowledge is valid only from active.
func (a *BudgetAlert) CanAcknowledge() bool {
	return a.Status == AlertStatusActive
}

// CanResolve is valid from active or acknowledged.
func (a *BudgetAlert) CanResolve() bool {
	return a.Status == AlertStatusActive || a.Status == AlertStatusAcknowledged
}

// CanDismiss is valid only from active.
func (a *BudgetAlert) CanDismiss() bool {
	return a.Status == AlertStatusActive
}

// CanEscalate is allowed from active or acknowledged; escalation never moves
// the status.
func (a *BudgetAlert) CanEscalate() bool {
	return a.Status == AlertStatusActive || a.Status == AlertStatusAcknowledged
}
