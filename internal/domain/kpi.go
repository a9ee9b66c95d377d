/**
 * @description
 * This file defines the KPI snapshot read models: the cached, point-in-time
 * bundle of coverage/engagement/budget/certificate/competency metrics served
 * to dashboards and report generators. A snapshot is fully reconstructible
 * from the ledger and the student-activity tables; it is never authoritative.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// PeriodType selects the reporting window of a KPI snapshot.
type PeriodType string

const (
	PeriodWeek    PeriodType = "week"
	PeriodMonth   PeriodType = "month"
	PeriodQuarter PeriodType = "quarter"
	PeriodYear    PeriodType = "year"
)

// ResolvePeriod maps a period type to its concrete date range, anchored at
// now. Unknown values fall back to month.
//   - week: trailing 7 days
//   - month: first of the current month to now
//   - quarter: trailing 3 months
//   - year: trailing 12 months
func ResolvePeriod(p PeriodType, now time.Time) (start, end time.Time) {
	end = now
	switch p {
	case PeriodWeek:
		start = now.AddDate(0, 0, -7)
	case PeriodQuarter:
		start = now.AddDate(0, -3, 0)
	case PeriodYear:
		start = now.AddDate(-1, 0, 0)
	default:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	}
	return start, end
}

// CoverageMetrics describes schools and students reached in the period.
type CoverageMetrics struct {
	SchoolsReached  int64            `json:"schools_reached"`
	StudentsReached int64            `json:"students_reached"`
	ByRegion        map[string]int64 `json:"by_region,omitempty"`
	ByGrade         map[string]int64 `json:"by_grade,omitempty"`
}

// EngagementMetrics describes student activity in the period, with a lift
// comparison against the immediately preceding period of equal length.
type EngagementMetrics struct {
	ActiveStudents int64   `json:"active_students"`
	Sessions       int64   `json:"sessions"`
	XPEarned       int64   `json:"xp_earned"`
	MoodCheckIns   int64   `json:"mood_check_ins"`
	LiftPercentage float64 `json:"lift_percentage"`
}

// BudgetMetrics summarizes spend for the period plus an estimated platform fee.
type BudgetMetrics struct {
	TotalSpent       int64                    `json:"total_spent"`  // in paise
	PointsSpent      int64                    `json:"points_spent"` // HealCoins
	TransactionCount int64                    `json:"transaction_count"`
	EstimatedFees    int64                    `json:"estimated_fees"` // in paise
	ByCategory       map[LedgerCategory]int64 `json:"by_category,omitempty"`
}

// CertificateMetrics counts certificates issued in the period.
type CertificateMetrics struct {
	TotalIssued int64            `json:"total_issued"`
	ByType      map[string]int64 `json:"by_type,omitempty"`
}

// CompetencyMetrics describes NEP competency coverage.
type CompetencyMetrics struct {
	CompetenciesCovered int64              `json:"competencies_covered"`
	CompetenciesTotal   int64              `json:"competencies_total"`
	CoverageByGrade     map[string]float64 `json:"coverage_by_grade,omitempty"`
}

// CoveragePercentage is derived, never stored; 0 when the catalogue is empty.
func (c CompetencyMetrics) CoveragePercentage() float64 {
	if c.CompetenciesTotal == 0 {
		return 0
	}
	return float64(c.CompetenciesCovered) / float64(c.CompetenciesTotal) * 100
}

// EngagementLift computes the period-over-period lift percentage. A zero
// baseline yields 0, never NaN or Inf.
func EngagementLift(current, baseline int64) float64 {
	if baseline == 0 {
		return 0
	}
	return float64(current-baseline) / float64(baseline) * 100
}

// KPISnapshot is the cached bundle keyed by (organization, period, region).
type KPISnapshot struct {
	OrganizationID uuid.UUID          `json:"organization_id"`
	PeriodType     PeriodType         `json:"period_type"`
	Region         string             `json:"region,omitempty"`
	PeriodStart    time.Time          `json:"period_start"`
	PeriodEnd      time.Time          `json:"period_end"`
	Coverage       CoverageMetrics    `json:"coverage"`
	Engagement     EngagementMetrics  `json:"engagement"`
	Budget         BudgetMetrics      `json:"budget"`
	Certificates   CertificateMetrics `json:"certificates"`
	Competencies   CompetencyMetrics  `json:"competencies"`
	CalculatedAt   time.Time          `json:"calculated_at"`
}
