/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface for organizations, ledger entries, and campaigns. It contains the
 * append path that computes running balances, the spend aggregation queries,
 * and the campaign budget recomputation.
 *
 * Concurrency notes:
 * - AppendLedgerEntry and CompleteLedgerEntry serialize per organization with
 *   `pg_advisory_xact_lock` keyed by the organization id, so the
 *   read-latest-balance + insert pair can never interleave for the same
 *   organization. Serialization failures surface as ErrLedgerConflict and are
 *   retried by the service layer.
 *
 * @dependencies
 * - context, errors, fmt: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/edumitra/csr-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrCampaignNotFound     = errors.New("campaign not found")
	ErrLedgerEntryNotFound  = errors.New("ledger entry not found")
	ErrAlertNotFound        = errors.New("budget alert not found")
	ErrLedgerConflict       = errors.New("concurrent ledger append detected")
	ErrAlertStateStale      = errors.New("alert state changed since read")
	ErrStatusNotAdvanced    = errors.New("status transition not applied")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// OrganizationExists reports whether the organization is known. Ledger appends
// require an explicit, existing organization; there is no fallback default.
func (r *PostgresRepository) OrganizationExists(ctx context.Context, organizationID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM organizations WHERE id = $1)", organizationID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// ListOrganizationIDs returns every known organization, for the scheduled
// threshold scan.
func (r *PostgresRepository) ListOrganizationIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, "SELECT id FROM organizations ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// isSerializationFailure detects Postgres serialization/deadlock errors that
// the service layer retries.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// lockOrganizationLedger takes the per-organization advisory lock for the
// lifetime of the surrounding transaction.
func lockOrganizationLedger(ctx context.Context, tx pgx.Tx, organizationID uuid.UUID) error {
	_, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", organizationID.String())
	return err
}

// latestCompletedBalances reads the running balances of the most recent
// completed entry for the organization. Ties on created_at break on id, which
// is monotonic within a creation timestamp for our UUIDv7-style inserts.
func latestCompletedBalances(ctx context.Context, tx pgx.Tx, organizationID uuid.UUID) (money int64, points int64, err error) {
	query := `
		SELECT running_balance, points_running_balance
		FROM ledger_entries
		WHERE organization_id = $1 AND status = 'completed'
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	err = tx.QueryRow(ctx, query, organizationID).Scan(&money, &points)
	if err == pgx.ErrNoRows {
		return 0, 0, nil
	}
	return money, points, err
}

// AppendLedgerEntry inserts a new immutable ledger entry, computing running
// balances from the latest completed entry for the same organization. An
// entry created as pending carries the pre-entry balances; they are
// recomputed when the entry completes.
func (r *PostgresRepository) AppendLedgerEntry(ctx context.Context, entry *domain.NewLedgerEntry) (*domain.LedgerEntry, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin append transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockOrganizationLedger(ctx, tx, entry.OrganizationID); err != nil {
		return nil, fmt.Errorf("lock organization ledger: %w", err)
	}

	balance, points, err := latestCompletedBalances(ctx, tx, entry.OrganizationID)
	if err != nil {
		if isSerializationFailure(err) {
			return nil, ErrLedgerConflict
		}
		return nil, fmt.Errorf("read latest balance: %w", err)
	}

	status := entry.Status
	if status == "" {
		status = domain.LedgerStatusCompleted
	}

	created := &domain.LedgerEntry{
		ID:             uuid.New(),
		OrganizationID: entry.OrganizationID,
		CampaignID:     entry.CampaignID,
		Amount:         entry.Amount,
		PointsAmount:   entry.PointsAmount,
		Category:       entry.Category,
		Direction:      entry.Direction,
		Status:         status,
		Description:    entry.Description,
		ReversalOf:     entry.ReversalOf,
	}
	created.RunningBalance = balance
	created.PointsRunningBalance = points
	if status == domain.LedgerStatusCompleted {
		created.RunningBalance, created.PointsRunningBalance = domain.NextRunningBalances(balance, points, created)
	}

	query := `
		INSERT INTO ledger_entries (
			id, organization_id, campaign_id, amount, points_amount, category,
			direction, status, running_balance, points_running_balance,
			description, reversal_of
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`
	err = tx.QueryRow(ctx, query,
		created.ID, created.OrganizationID, created.CampaignID, created.Amount,
		created.PointsAmount, created.Category, created.Direction, created.Status,
		created.RunningBalance, created.PointsRunningBalance, created.Description,
		created.ReversalOf,
	).Scan(&created.CreatedAt)
	if err != nil {
		if isSerializationFailure(err) {
			return nil, ErrLedgerConflict
		}
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isSerializationFailure(err) {
			return nil, ErrLedgerConflict
		}
		return nil, fmt.Errorf("commit ledger append: %w", err)
	}
	return created, nil
}

const ledgerEntryColumns = `
	id, organization_id, campaign_id, amount, points_amount, category,
	direction, status, running_balance, points_running_balance, description,
	reversal_of, created_at
`

func scanLedgerEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := row.Scan(
		&e.ID, &e.OrganizationID, &e.CampaignID, &e.Amount, &e.PointsAmount,
		&e.Category, &e.Direction, &e.Status, &e.RunningBalance,
		&e.PointsRunningBalance, &e.Description, &e.ReversalOf, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// FindLedgerEntryByID retrieves one ledger entry.
func (r *PostgresRepository) FindLedgerEntryByID(ctx context.Context, entryID uuid.UUID) (*domain.LedgerEntry, error) {
	query := "SELECT " + ledgerEntryColumns + " FROM ledger_entries WHERE id = $1"
	entry, err := scanLedgerEntry(r.db.QueryRow(ctx, query, entryID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrLedgerEntryNotFound
		}
		return nil, err
	}
	return entry, nil
}

// ListLedgerEntries returns the organization's entries, newest first.
func (r *PostgresRepository) ListLedgerEntries(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := "SELECT " + ledgerEntryColumns + `
		FROM ledger_entries
		WHERE organization_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, organizationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// CompleteLedgerEntry moves a pending/processing entry to completed and
// recomputes its running balances under the per-organization lock. The entry
// joins the balance chain at completion time.
func (r *PostgresRepository) CompleteLedgerEntry(ctx context.Context, entryID uuid.UUID) (*domain.LedgerEntry, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin complete transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := "SELECT " + ledgerEntryColumns + " FROM ledger_entries WHERE id = $1 FOR UPDATE"
	entry, err := scanLedgerEntry(tx.QueryRow(ctx, query, entryID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrLedgerEntryNotFound
		}
		return nil, err
	}
	if !domain.CanTransitionLedgerStatus(entry.Status, domain.LedgerStatusCompleted) {
		return nil, ErrStatusNotAdvanced
	}

	if err := lockOrganizationLedger(ctx, tx, entry.OrganizationID); err != nil {
		return nil, fmt.Errorf("lock organization ledger: %w", err)
	}
	balance, points, err := latestCompletedBalances(ctx, tx, entry.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("read latest balance: %w", err)
	}

	entry.Status = domain.LedgerStatusCompleted
	entry.RunningBalance, entry.PointsRunningBalance = domain.NextRunningBalances(balance, points, entry)

	_, err = tx.Exec(ctx, `
		UPDATE ledger_entries
		SET status = 'completed', running_balance = $2, points_running_balance = $3
		WHERE id = $1
	`, entry.ID, entry.RunningBalance, entry.PointsRunningBalance)
	if err != nil {
		if isSerializationFailure(err) {
			return nil, ErrLedgerConflict
		}
		return nil, fmt.Errorf("complete ledger entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isSerializationFailure(err) {
			return nil, ErrLedgerConflict
		}
		return nil, fmt.Errorf("commit ledger completion: %w", err)
	}
	return entry, nil
}

// MarkLedgerEntryStatus applies a forward-only status change that does not
// affect balances (failed/cancelled/processing). The WHERE guard makes the
// transition race-safe; zero rows means the entry moved on since it was read.
func (r *PostgresRepository) MarkLedgerEntryStatus(ctx context.Context, entryID uuid.UUID, from, to domain.LedgerStatus) error {
	if !domain.CanTransitionLedgerStatus(from, to) || to == domain.LedgerStatusCompleted {
		return ErrStatusNotAdvanced
	}
	tag, err := r.db.Exec(ctx,
		"UPDATE ledger_entries SET status = $3 WHERE id = $1 AND status = $2",
		entryID, from, to,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusNotAdvanced
	}
	return nil
}

// SummarizeSpend aggregates outbound completed entries for the organization,
// applying the optional campaign/category/date filters. Pure read-side
// aggregation; no side effects.
func (r *PostgresRepository) SummarizeSpend(ctx context.Context, organizationID uuid.UUID, filter domain.SpendFilter) (*domain.SpendSummary, error) {
	conditions := "organization_id = $1 AND direction = 'outbound' AND status = 'completed'"
	args := []interface{}{organizationID}

	if filter.CampaignID != nil {
		args = append(args, *filter.CampaignID)
		conditions += fmt.Sprintf(" AND campaign_id = $%d", len(args))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conditions += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conditions += fmt.Sprintf(" AND created_at < $%d", len(args))
	}

	summary := &domain.SpendSummary{}
	query := `
		SELECT COALESCE(SUM(amount), 0), COALESCE(SUM(points_amount), 0), COUNT(*)
		FROM ledger_entries
		WHERE ` + conditions
	err := r.db.QueryRow(ctx, query, args...).Scan(&summary.TotalAmount, &summary.TotalPoints, &summary.TransactionCount)
	if err != nil {
		return nil, fmt.Errorf("summarize spend: %w", err)
	}

	if filter.GroupBy == "category" {
		groupQuery := `
			SELECT category, COALESCE(SUM(amount), 0)
			FROM ledger_entries
			WHERE ` + conditions + `
			GROUP BY category
		`
		rows, err := r.db.Query(ctx, groupQuery, args...)
		if err != nil {
			return nil, fmt.Errorf("summarize spend by category: %w", err)
		}
		defer rows.Close()

		summary.ByCategory = make(map[domain.LedgerCategory]int64)
		for rows.Next() {
			var category domain.LedgerCategory
			var total int64
			if err := rows.Scan(&category, &total); err != nil {
				return nil, err
			}
			summary.ByCategory[category] = total
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return summary, nil
}

// FindCampaignByID retrieves a campaign with its budget envelope.
func (r *PostgresRepository) FindCampaignByID(ctx context.Context, campaignID uuid.UUID) (*domain.Campaign, error) {
	var c domain.Campaign
	query := `
		SELECT id, organization_id, title, status, total_budget, allocated_budget,
		       spent_budget, points_total, points_spent, created_at, updated_at
		FROM campaigns
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, campaignID).Scan(
		&c.ID, &c.OrganizationID, &c.Title, &c.Status,
		&c.Budget.TotalBudget, &c.Budget.AllocatedBudget, &c.Budget.SpentBudget,
		&c.Budget.PointsTotal, &c.Budget.PointsSpent, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	return &c, nil
}

// FindScannableCampaigns returns all campaigns of the organization in a stage
// the threshold engine considers (active, pilot, rollout).
func (r *PostgresRepository) FindScannableCampaigns(ctx context.Context, organizationID uuid.UUID) ([]domain.Campaign, error) {
	query := `
		SELECT id, organization_id, title, status, total_budget, allocated_budget,
		       spent_budget, points_total, points_spent, created_at, updated_at
		FROM campaigns
		WHERE organization_id = $1 AND status = ANY($2)
		ORDER BY created_at
	`
	statuses := make([]string, len(domain.ScannableCampaignStatuses))
	for i, s := range domain.ScannableCampaignStatuses {
		statuses[i] = string(s)
	}
	rows, err := r.db.Query(ctx, query, organizationID, statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []domain.Campaign
	for rows.Next() {
		var c domain.Campaign
		err := rows.Scan(
			&c.ID, &c.OrganizationID, &c.Title, &c.Status,
			&c.Budget.TotalBudget, &c.Budget.AllocatedBudget, &c.Budget.SpentBudget,
			&c.Budget.PointsTotal, &c.Budget.PointsSpent, &c.CreatedAt, &c.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// AdvanceCampaignStatus applies a guarded forward transition through the
// campaign workflow. Zero rows affected means the campaign is no longer in
// the expected stage.
func (r *PostgresRepository) AdvanceCampaignStatus(ctx context.Context, campaignID uuid.UUID, from, to domain.CampaignStatus) error {
	if !domain.CanAdvanceCampaign(from, to) {
		return ErrStatusNotAdvanced
	}
	tag, err := r.db.Exec(ctx,
		"UPDATE campaigns SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2",
		campaignID, from, to,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusNotAdvanced
	}
	return nil
}

// RecomputeCampaignSpend refreshes the campaign's stored spend figures from
// the ledger, which is the source of truth, and returns the fresh budget.
func (r *PostgresRepository) RecomputeCampaignSpend(ctx context.Context, campaignID uuid.UUID) (*domain.Budget, error) {
	var b domain.Budget
	query := `
		UPDATE campaigns c
		SET spent_budget = spend.amount, points_spent = spend.points, updated_at = NOW()
		FROM (
			SELECT COALESCE(SUM(amount), 0) AS amount, COALESCE(SUM(points_amount), 0) AS points
			FROM ledger_entries
			WHERE campaign_id = $1 AND direction = 'outbound' AND status = 'completed'
		) AS spend
		WHERE c.id = $1
		RETURNING c.total_budget, c.allocated_budget, c.spent_budget, c.points_total, c.points_spent
	`
	err := r.db.QueryRow(ctx, query, campaignID).Scan(
		&b.TotalBudget, &b.AllocatedBudget, &b.SpentBudget, &b.PointsTotal, &b.PointsSpent,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCampaignNotFound
		}
		return nil, fmt.Errorf("recompute campaign spend: %w", err)
	}
	return &b, nil
}
