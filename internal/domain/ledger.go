/**
 * @description
 * This file defines the core ledger domain models for the csr-service. A
 * LedgerEntry is the immutable record of any money or HealCoins movement for
 * an organization's CSR budget. Running balances are carried on every entry
 * and derived from the most recent prior completed entry for the same
 * organization.
 *
 * @notes
 * - Monetary amounts are stored as `int64` in paise (the smallest currency
 *   unit) to avoid floating-point inaccuracies with financial data.
 * - HealCoins are the platform-internal reward currency, tracked in parallel
 *   with monetary amounts on every entry.
 * - Entries are append-only. Corrections are new adjustment/reversal entries
 *   that reference the original; past entries are never edited or deleted.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// LedgerCategory classifies what a ledger entry was for.
type LedgerCategory string

const (
	CategoryFunding     LedgerCategory = "funding"
	CategoryRewards     LedgerCategory = "rewards"
	CategoryAdmin       LedgerCategory = "admin"
	CategoryOperational LedgerCategory = "operational"
	CategoryRefund      LedgerCategory = "refund"
	CategoryAdjustment  LedgerCategory = "adjustment"
	CategoryFee         LedgerCategory = "fee"
)

// LedgerDirection indicates whether an entry adds to or draws from the
// organization's balance.
type LedgerDirection string

const (
	DirectionInbound  LedgerDirection = "inbound"
	DirectionOutbound LedgerDirection = "outbound"
)

// LedgerStatus is the processing state of an entry. Transitions are
// forward-only: pending -> processing -> completed, or -> failed/cancelled.
// A reversed entry references the original rather than mutating it.
type LedgerStatus string

const (
	LedgerStatusPending    LedgerStatus = "pending"
	LedgerStatusProcessing LedgerStatus = "processing"
	LedgerStatusCompleted  LedgerStatus = "completed"
	LedgerStatusFailed     LedgerStatus = "failed"
	LedgerStatusCancelled  LedgerStatus = "cancelled"
	LedgerStatusReversed   LedgerStatus = "reversed"
)

// ValidLedgerCategory reports whether c is a known category.
func ValidLedgerCategory(c LedgerCategory) bool {
	switch c {
	case CategoryFunding, CategoryRewards, CategoryAdmin, CategoryOperational,
		CategoryRefund, CategoryAdjustment, CategoryFee:
		return true
	}
	return false
}

// ValidLedgerDirection reports whether d is a known direction.
func ValidLedgerDirection(d LedgerDirection) bool {
	return d == DirectionInbound || d == DirectionOutbound
}

// canTransitionLedgerStatus encodes the forward-only status machine.
func canTransitionLedgerStatus(from, to LedgerStatus) bool {
	switch from {
	case LedgerStatusPending:
		return to == LedgerStatusProcessing || to == LedgerStatusCompleted ||
			to == LedgerStatusFailed || to == LedgerStatusCancelled
	case LedgerStatusProcessing:
		return to == LedgerStatusCompleted || to == LedgerStatusFailed ||
			to == LedgerStatusCancelled
	}
	return false
}

// CanTransitionLedgerStatus is the exported guard used by the service layer
// before persisting a status change.
func CanTransitionLedgerStatus(from, to LedgerStatus) bool {
	return canTransitionLedgerStatus(from, to)
}

// LedgerEntry is one atomic, immutable record of money/HealCoins moving in or
// out of an organization's budget. Maps directly to the `ledger_entries` table.
type LedgerEntry struct {
	ID                   uuid.UUID       `json:"id"`
	OrganizationID       uuid.UUID       `json:"organization_id"`
	CampaignID           *uuid.UUID      `json:"campaign_id,omitempty"`
	Amount               int64           `json:"amount"`        // in paise
	PointsAmount         int64           `json:"points_amount"` // HealCoins
	Category             LedgerCategory  `json:"category"`
	Direction            LedgerDirection `json:"direction"`
	Status               LedgerStatus    `json:"status"`
	RunningBalance       int64           `json:"running_balance"`        // in paise
	PointsRunningBalance int64           `json:"points_running_balance"` // HealCoins
	Description          string          `json:"description"`
	ReversalOf           *uuid.UUID      `json:"reversal_of,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// SignedAmount returns the amount with the direction applied: positive for
// inbound, negative for outbound.
func (e *LedgerEntry) SignedAmount() int64 {
	if e.Direction == DirectionOutbound {
		return -e.Amount
	}
	return e.Amount
}

// SignedPoints returns the points amount with the direction applied.
func (e *LedgerEntry) SignedPoints() int64 {
	if e.Direction == DirectionOutbound {
		return -e.PointsAmount
	}
	return e.PointsAmount
}

// NextRunningBalances applies a completed entry's signed amounts to the prior
// running balances. An organization with no completed entries starts from
// zero, so its first inbound entry carries its own amount as the balance.
func NextRunningBalances(balance, points int64, e *LedgerEntry) (int64, int64) {
	return balance + e.SignedAmount(), points + e.SignedPoints()
}

// NewLedgerEntry is the DTO for appending a ledger entry. Running balances are
// computed by the store, never supplied by the caller.
type NewLedgerEntry struct {
	OrganizationID uuid.UUID       `json:"organization_id"`
	CampaignID     *uuid.UUID      `json:"campaign_id,omitempty"`
	Amount         int64           `json:"amount"`
	PointsAmount   int64           `json:"points_amount"`
	Category       LedgerCategory  `json:"category"`
	Direction      LedgerDirection `json:"direction"`
	Status         LedgerStatus    `json:"status,omitempty"` // defaults to completed
	Description    string          `json:"description"`
	ReversalOf     *uuid.UUID      `json:"reversal_of,omitempty"`
}

// Validate checks input constraints before the entry reaches the store.
func (n *NewLedgerEntry) Validate() error {
	if n.OrganizationID == uuid.Nil {
		return NewValidationError("organization_id", "an explicit organization context is required")
	}
	if n.Amount <= 0 {
		return NewValidationError("amount", "must be greater than zero")
	}
	if n.PointsAmount < 0 {
		return NewValidationError("points_amount", "must not be negative")
	}
	if !ValidLedgerCategory(n.Category) {
		return NewValidationError("category", "unknown ledger category")
	}
	if !ValidLedgerDirection(n.Direction) {
		return NewValidationError("direction", "must be inbound or outbound")
	}
	if n.Status != "" && n.Status != LedgerStatusCompleted && n.Status != LedgerStatusPending {
		return NewValidationError("status", "new entries start as completed or pending")
	}
	return nil
}

// SpendFilter narrows a spend summary query. Zero values mean "no filter".
type SpendFilter struct {
	CampaignID *uuid.UUID
	Category   LedgerCategory
	From       time.Time
	To         time.Time
	GroupBy    string // "" or "category"
}

// SpendSummary is the aggregate over outbound completed entries.
type SpendSummary struct {
	TotalAmount      int64                    `json:"total_amount"`
	TotalPoints      int64                    `json:"total_points"`
	TransactionCount int64                    `json:"transaction_count"`
	ByCategory       map[LedgerCategory]int64 `json:"by_category,omitempty"`
}
