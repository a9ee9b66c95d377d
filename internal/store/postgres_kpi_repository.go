/**
 * @description
 * PostgreSQL implementation of the KPI read-model queries. Each method sums
 * or counts one slice of the student-activity data for a reporting window.
 * Empty collections produce zeroed metrics via COALESCE, never errors; the
 * app layer treats any query error as fatal for the whole snapshot.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/edumitra/csr-service/internal/domain"
	"github.com/google/uuid"
)

// CoverageForPeriod counts schools and students reached in the window, with
// regional and grade breakdowns. An empty region means all regions.
func (r *PostgresRepository) CoverageForPeriod(ctx context.Context, organizationID uuid.UUID, region string, from, to time.Time) (*domain.CoverageMetrics, error) {
	conditions := "a.organization_id = $1 AND a.occurred_at >= $2 AND a.occurred_at < $3"
	args := []interface{}{organizationID, from, to}
	if region != "" {
		args = append(args, region)
		conditions += fmt.Sprintf(" AND s.region = $%d", len(args))
	}

	metrics := &domain.CoverageMetrics{}
	query := `
		SELECT COALESCE(COUNT(DISTINCT s.id), 0), COALESCE(COUNT(DISTINCT a.student_id), 0)
		FROM student_activity a
		JOIN schools s ON s.id = a.school_id
		WHERE ` + conditions
	if err := r.db.QueryRow(ctx, query, args...).Scan(&metrics.SchoolsReached, &metrics.StudentsReached); err != nil {
		return nil, fmt.Errorf("coverage totals: %w", err)
	}

	regionQuery := `
		SELECT s.region, COUNT(DISTINCT a.student_id)
		FROM student_activity a
		JOIN schools s ON s.id = a.school_id
		WHERE ` + conditions + `
		GROUP BY s.region
	`
	rows, err := r.db.Query(ctx, regionQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("coverage by region: %w", err)
	}
	defer rows.Close()
	metrics.ByRegion = make(map[string]int64)
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		metrics.ByRegion[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	gradeQuery := `
		SELECT a.grade, COUNT(DISTINCT a.student_id)
		FROM student_activity a
		JOIN schools s ON s.id = a.school_id
		WHERE ` + conditions + `
		GROUP BY a.grade
	`
	gradeRows, err := r.db.Query(ctx, gradeQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("coverage by grade: %w", err)
	}
	defer gradeRows.Close()
	metrics.ByGrade = make(map[string]int64)
	for gradeRows.Next() {
		var key string
		var count int64
		if err := gradeRows.Scan(&key, &count); err != nil {
			return nil, err
		}
		metrics.ByGrade[key] = count
	}
	return metrics, gradeRows.Err()
}

// EngagementForPeriod sums the raw activity signals for one window. The app
// layer calls this twice (current window and equal-length baseline) to derive
// the lift.
func (r *PostgresRepository) EngagementForPeriod(ctx context.Context, organizationID uuid.UUID, region string, from, to time.Time) (*EngagementTotals, error) {
	conditions := "a.organization_id = $1 AND a.occurred_at >= $2 AND a.occurred_at < $3"
	args := []interface{}{organizationID, from, to}
	if region != "" {
		args = append(args, region)
		conditions += fmt.Sprintf(" AND s.region = $%d", len(args))
	}

	totals := &EngagementTotals{}
	query := `
		SELECT
			COALESCE(COUNT(DISTINCT a.student_id), 0),
			COALESCE(COUNT(*), 0),
			COALESCE(SUM(a.xp_earned), 0),
			COALESCE(SUM(CASE WHEN a.activity_type = 'mood_check_in' THEN 1 ELSE 0 END), 0)
		FROM student_activity a
		JOIN schools s ON s.id = a.school_id
		WHERE ` + conditions
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&totals.ActiveStudents, &totals.Sessions, &totals.XPEarned, &totals.MoodCheckIns,
	)
	if err != nil {
		return nil, fmt.Errorf("engagement totals: %w", err)
	}
	return totals, nil
}

// CertificatesForPeriod counts certificates issued in the window by type.
func (r *PostgresRepository) CertificatesForPeriod(ctx context.Context, organizationID uuid.UUID, region string, from, to time.Time) (*domain.CertificateMetrics, error) {
	conditions := "c.organization_id = $1 AND c.issued_at >= $2 AND c.issued_at < $3"
	args := []interface{}{organizationID, from, to}
	if region != "" {
		args = append(args, region)
		conditions += fmt.Sprintf(" AND c.region = $%d", len(args))
	}

	metrics := &domain.CertificateMetrics{}
	query := `
		SELECT c.certificate_type, COUNT(*)
		FROM certificates c
		WHERE ` + conditions + `
		GROUP BY c.certificate_type
	`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("certificates by type: %w", err)
	}
	defer rows.Close()

	metrics.ByType = make(map[string]int64)
	for rows.Next() {
		var certType string
		var count int64
		if err := rows.Scan(&certType, &count); err != nil {
			return nil, err
		}
		metrics.ByType[certType] = count
		metrics.TotalIssued += count
	}
	return metrics, rows.Err()
}

// CompetencyCoverage reports how many NEP competencies the organization's
// activity touched in the window against the full catalogue, per grade.
func (r *PostgresRepository) CompetencyCoverage(ctx context.Context, organizationID uuid.UUID, region string, from, to time.Time) (*domain.CompetencyMetrics, error) {
	metrics := &domain.CompetencyMetrics{}
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM nep_competencies").Scan(&metrics.CompetenciesTotal); err != nil {
		return nil, fmt.Errorf("competency catalogue size: %w", err)
	}

	conditions := "a.organization_id = $1 AND a.occurred_at >= $2 AND a.occurred_at < $3 AND a.competency_id IS NOT NULL"
	args := []interface{}{organizationID, from, to}
	if region != "" {
		args = append(args, region)
		conditions += fmt.Sprintf(" AND s.region = $%d", len(args))
	}

	query := `
		SELECT COALESCE(COUNT(DISTINCT a.competency_id), 0)
		FROM student_activity a
		JOIN schools s ON s.id = a.school_id
		WHERE ` + conditions
	if err := r.db.QueryRow(ctx, query, args...).Scan(&metrics.CompetenciesCovered); err != nil {
		return nil, fmt.Errorf("competencies covered: %w", err)
	}

	gradeQuery := `
		SELECT a.grade,
		       COUNT(DISTINCT a.competency_id)::float / GREATEST((SELECT COUNT(*) FROM nep_competencies), 1) * 100
		FROM student_activity a
		JOIN schools s ON s.id = a.school_id
		WHERE ` + conditions + `
		GROUP BY a.grade
	`
	rows, err := r.db.Query(ctx, gradeQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("competency coverage by grade: %w", err)
	}
	defer rows.Close()

	metrics.CoverageByGrade = make(map[string]float64)
	for rows.Next() {
		var grade string
		var pct float64
		if err := rows.Scan(&grade, &pct); err != nil {
			return nil, err
		}
		metrics.CoverageByGrade[grade] = pct
	}
	return metrics, rows.Err()
}
