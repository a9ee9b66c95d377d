/**
 * @description
 * This file defines the Campaign read model used by the ledger and alerting
 * core. The campaign workflow itself (wizard steps, approvals, reports) lives
 * in other services; this service only needs the budget envelope, the stage
 * enum, and the forward-only stage transition guard.
 *
 * @notes
 * - Derived budget figures (remaining, spend percentage) are methods, never
 *   stored columns. The ledger is the source of truth for spend; the stored
 *   SpentBudget is an optimization refreshed by RecomputeCampaignSpend.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// CampaignStatus is the workflow stage of a campaign.
type CampaignStatus string

const (
	CampaignDraft        CampaignStatus = "draft"
	CampaignScope        CampaignStatus = "scope"
	CampaignTemplate     CampaignStatus = "template"
	CampaignPilot        CampaignStatus = "pilot"
	CampaignBudgetReview CampaignStatus = "budget_review"
	CampaignApproval     CampaignStatus = "approval"
	CampaignActive       CampaignStatus = "active"
	CampaignRollout      CampaignStatus = "rollout"
	CampaignCompleted    CampaignStatus = "completed"
	CampaignArchived     CampaignStatus = "archived"
)

// campaignStageOrder positions each stage in the forward-only workflow.
var campaignStageOrder = map[CampaignStatus]int{
	CampaignDraft:        0,
	CampaignScope:        1,
	CampaignTemplate:     2,
	CampaignPilot:        3,
	CampaignBudgetReview: 4,
	CampaignApproval:     5,
	CampaignActive:       6,
	CampaignRollout:      7,
	CampaignCompleted:    8,
	CampaignArchived:     9,
}

// CanAdvanceCampaign reports whether moving from one stage to another is a
// legal forward transition. Archiving is allowed from any stage.
func CanAdvanceCampaign(from, to CampaignStatus) bool {
	fromOrder, okFrom := campaignStageOrder[from]
	toOrder, okTo := campaignStageOrder[to]
	if !okFrom || !okTo {
		return false
	}
	if to == CampaignArchived {
		return from != CampaignArchived
	}
	return toOrder == fromOrder+1
}

// ScannableCampaignStatuses are the stages the threshold engine considers when
// scanning a whole organization.
var ScannableCampaignStatuses = []CampaignStatus{CampaignActive, CampaignPilot, CampaignRollout}

// Budget is the campaign's money and HealCoins envelope, embedded in Campaign.
type Budget struct {
	TotalBudget     int64 `json:"total_budget"`     // in paise
	AllocatedBudget int64 `json:"allocated_budget"` // in paise
	SpentBudget     int64 `json:"spent_budget"`     // in paise, ledger-derived
	PointsTotal     int64 `json:"points_total"`     // HealCoins
	PointsSpent     int64 `json:"points_spent"`     // HealCoins
}

// Remaining is the derived money headroom. Never stored.
func (b Budget) Remaining() int64 { return b.TotalBudget - b.SpentBudget }

// PointsRemaining is the derived HealCoins headroom. Never stored.
func (b Budget) PointsRemaining() int64 { return b.PointsTotal - b.PointsSpent }

// SpendPercentage returns spend as a percentage of the total budget, or 0 for
// a zero budget so callers never divide by zero.
func (b Budget) SpendPercentage() float64 {
	if b.TotalBudget == 0 {
		return 0
	}
	return float64(b.SpentBudget) / float64(b.TotalBudget) * 100
}

// Campaign is the campaign read model for the ledger/alerting core.
type Campaign struct {
	ID             uuid.UUID      `json:"id"`
	OrganizationID uuid.UUID      `json:"organization_id"`
	Title          string         `json:"title"`
	Status         CampaignStatus `json:"status"`
	Budget         Budget         `json:"budget"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
