/**
 * @description
 * PostgreSQL implementation of the budget-alert portion of the Repository
 * interface: insertion with storage-level deduplication, guarded lifecycle
 * updates that commit the status change and its history row in a single
 * transaction, and the append-only history log.
 *
 * Dedup is enforced by a partial unique index (see db/schema.sql):
 *
 *   CREATE UNIQUE INDEX budget_alerts_open_dedup
 *   ON budget_alerts (organization_id, campaign_id, alert_type, threshold_percentage)
 *   WHERE status IN ('active', 'acknowledged');
 *
 * so two concurrent scans can both pass the "no existing alert" check and
 * only one insert will land. The loser observes inserted=false, not an error.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edumitra/csr-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// isUniqueViolation detects a rejected insert on the dedup index.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// InsertBudgetAlert persists a newly detected alert. Returns inserted=false
// when an active/acknowledged alert already holds the dedup key.
func (r *PostgresRepository) InsertBudgetAlert(ctx context.Context, alert *domain.BudgetAlert) (bool, error) {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	query := `
		INSERT INTO budget_alerts (
			id, organization_id, campaign_id, alert_type, threshold_percentage,
			severity, status, message, recommended_action, spend_amount,
			budget_amount, escalation_level, escalated_to
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, '{}')
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		alert.ID, alert.OrganizationID, alert.CampaignID, alert.AlertType,
		alert.ThresholdPercentage, alert.Severity, alert.Status, alert.Message,
		alert.RecommendedAction, alert.SpendAmount, alert.BudgetAmount,
	).Scan(&alert.CreatedAt, &alert.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert budget alert: %w", err)
	}
	return true, nil
}

const alertColumns = `
	id, organization_id, campaign_id, alert_type, threshold_percentage,
	severity, status, message, recommended_action, spend_amount, budget_amount,
	acknowledged_by, acknowledged_at, acknowledged_notes,
	resolved_by, resolved_at, resolved_notes,
	escalation_level, escalated_to, created_at, updated_at
`

func scanBudgetAlert(row pgx.Row) (*domain.BudgetAlert, error) {
	var a domain.BudgetAlert
	var ackBy, resBy *uuid.UUID
	var ackAt, resAt *time.Time
	var ackNotes, resNotes *string
	var escalatedTo []uuid.UUID

	err := row.Scan(
		&a.ID, &a.OrganizationID, &a.CampaignID, &a.AlertType, &a.ThresholdPercentage,
		&a.Severity, &a.Status, &a.Message, &a.RecommendedAction, &a.SpendAmount,
		&a.BudgetAmount,
		&ackBy, &ackAt, &ackNotes,
		&resBy, &resAt, &resNotes,
		&a.Escalation.Level, &escalatedTo, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if ackBy != nil && ackAt != nil {
		a.Acknowledgment = &domain.Acknowledgment{By: *ackBy, At: *ackAt}
		if ackNotes != nil {
			a.Acknowledgment.Notes = *ackNotes
		}
	}
	if resBy != nil && resAt != nil {
		a.Resolution = &domain.Resolution{By: *resBy, At: *resAt}
		if resNotes != nil {
			a.Resolution.Notes = *resNotes
		}
	}
	a.Escalation.IsEscalated = a.Escalation.Level > 0
	a.Escalation.EscalatedTo = escalatedTo
	return &a, nil
}

// FindBudgetAlertByID retrieves one alert, including its history rows.
func (r *PostgresRepository) FindBudgetAlertByID(ctx context.Context, alertID uuid.UUID) (*domain.BudgetAlert, error) {
	query := "SELECT " + alertColumns + " FROM budget_alerts WHERE id = $1"
	alert, err := scanBudgetAlert(r.db.QueryRow(ctx, query, alertID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	history, err := r.ListAlertHistory(ctx, alertID)
	if err != nil {
		return nil, err
	}
	alert.History = history
	return alert, nil
}

// FindOpenAlertThresholds returns the checkpoint percentages that already
// have an active or acknowledged alert for the campaign and alert type.
func (r *PostgresRepository) FindOpenAlertThresholds(ctx context.Context, organizationID, campaignID uuid.UUID, alertType domain.AlertType) (map[int]bool, error) {
	query := `
		SELECT threshold_percentage
		FROM budget_alerts
		WHERE organization_id = $1 AND campaign_id = $2 AND alert_type = $3
		  AND status IN ('active', 'acknowledged')
	`
	rows, err := r.db.Query(ctx, query, organizationID, campaignID, alertType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	open := make(map[int]bool)
	for rows.Next() {
		var threshold int
		if err := rows.Scan(&threshold); err != nil {
			return nil, err
		}
		open[threshold] = true
	}
	return open, rows.Err()
}

// ListBudgetAlerts returns the organization's alerts, newest first.
func (r *PostgresRepository) ListBudgetAlerts(ctx context.Context, organizationID uuid.UUID, opts AlertListOptions) ([]domain.BudgetAlert, error) {
	conditions := "organization_id = $1"
	args := []interface{}{organizationID}
	if opts.CampaignID != nil {
		args = append(args, *opts.CampaignID)
		conditions += fmt.Sprintf(" AND campaign_id = $%d", len(args))
	}
	if opts.Status != "" {
		args = append(args, opts.Status)
		conditions += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if opts.Severity != "" {
		args = append(args, opts.Severity)
		conditions += fmt.Sprintf(" AND severity = $%d", len(args))
	}
	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, opts.Offset)
	query := "SELECT " + alertColumns + " FROM budget_alerts WHERE " + conditions +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []domain.BudgetAlert
	for rows.Next() {
		alert, err := scanBudgetAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *alert)
	}
	return alerts, rows.Err()
}

// appendAlertHistoryTx adds one immutable row to the alert's action log
// within the caller's transaction. History rows commit or roll back together
// with the status change they record.
func appendAlertHistoryTx(ctx context.Context, tx pgx.Tx, alertID uuid.UUID, entry domain.HistoryEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO budget_alert_history (alert_id, action, actor, at, detail)
		VALUES ($1, $2, $3, $4, $5)
	`, alertID, entry.Action, entry.Actor, entry.At, entry.Detail)
	return err
}

// AcknowledgeBudgetAlert records the acknowledgment and its history row in
// one transaction, guarded on the alert still being active. Zero rows means
// the state moved since it was read.
func (r *PostgresRepository) AcknowledgeBudgetAlert(ctx context.Context, alertID uuid.UUID, ack domain.Acknowledgment) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin acknowledge transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE budget_alerts
		SET status = 'acknowledged', acknowledged_by = $2, acknowledged_at = $3,
		    acknowledged_notes = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`, alertID, ack.By, ack.At, ack.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertStateStale
	}
	if err := appendAlertHistoryTx(ctx, tx, alertID, domain.HistoryEntry{
		Action: "acknowledged", Actor: ack.By, At: ack.At, Detail: ack.Notes,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ResolveBudgetAlert records the resolution from active or acknowledged.
func (r *PostgresRepository) ResolveBudgetAlert(ctx context.Context, alertID uuid.UUID, res domain.Resolution) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin resolve transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE budget_alerts
		SET status = 'resolved', resolved_by = $2, resolved_at = $3,
		    resolved_notes = $4, updated_at = NOW()
		WHERE id = $1 AND status IN ('active', 'acknowledged')
	`, alertID, res.By, res.At, res.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertStateStale
	}
	if err := appendAlertHistoryTx(ctx, tx, alertID, domain.HistoryEntry{
		Action: "resolved", Actor: res.By, At: res.At, Detail: res.Notes,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DismissBudgetAlert closes an active alert without resolution details.
func (r *PostgresRepository) DismissBudgetAlert(ctx context.Context, alertID, by uuid.UUID, at time.Time, notes string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin dismiss transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE budget_alerts
		SET status = 'dismissed', updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`, alertID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertStateStale
	}
	if err := appendAlertHistoryTx(ctx, tx, alertID, domain.HistoryEntry{
		Action: "dismissed", Actor: by, At: at, Detail: notes,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// EscalateBudgetAlert bumps the escalation side-channel without touching the
// lifecycle status. The level increment happens in SQL so concurrent
// escalations land distinct levels, and the returned level is the one the
// history row records.
func (r *PostgresRepository) EscalateBudgetAlert(ctx context.Context, alertID, by uuid.UUID, at time.Time, targets []uuid.UUID, reason string) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin escalate transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var level int
	err = tx.QueryRow(ctx, `
		UPDATE budget_alerts
		SET escalation_level = escalation_level + 1,
		    escalated_to = escalated_to || $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('active', 'acknowledged')
		RETURNING escalation_level
	`, alertID, targets).Scan(&level)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrAlertStateStale
		}
		return 0, err
	}
	if err := appendAlertHistoryTx(ctx, tx, alertID, domain.HistoryEntry{
		Action: "escalated", Actor: by, At: at,
		Detail: fmt.Sprintf("level %d: %s", level, reason),
	}); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return level, nil
}

// ListAlertHistory returns the alert's action log in insertion order.
func (r *PostgresRepository) ListAlertHistory(ctx context.Context, alertID uuid.UUID) ([]domain.HistoryEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT action, actor, at, detail
		FROM budget_alert_history
		WHERE alert_id = $1
		ORDER BY at, id
	`, alertID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []domain.HistoryEntry
	for rows.Next() {
		var h domain.HistoryEntry
		if err := rows.Scan(&h.Action, &h.Actor, &h.At, &h.Detail); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}
