/**
 * @description
 * The KPI snapshot service assembles the cached coverage/engagement/budget/
 * certificate/competency bundle served to dashboards and report generators.
 * The five read models are computed independently and in parallel, joined
 * before the cache is touched, and the whole snapshot fails if any one of
 * them fails — a partial snapshot is never cached or returned.
 *
 * @dependencies
 * - golang.org/x/sync/errgroup: Joins the parallel sub-computations and
 *   cancels the rest when one fails.
 * - internal/cache, internal/domain, internal/store: Cache abstraction,
 *   domain models, and data access.
 */

package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/edumitra/csr-service/internal/cache"
	"github.com/edumitra/csr-service/internal/domain"
	"github.com/edumitra/csr-service/internal/store"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultSnapshotTTL is how long a computed snapshot stays fresh.
const DefaultSnapshotTTL = 5 * time.Minute

// KPIService computes and caches KPI snapshots.
type KPIService struct {
	repo       store.Repository
	cache      cache.SnapshotCache
	ttl        time.Duration
	feeRateBps int64 // estimated platform fee, basis points of spend
	logger     *slog.Logger
	now        func() time.Time
}

// NewKPIService creates a new KPI snapshot service. A zero ttl falls back to
// DefaultSnapshotTTL.
func NewKPIService(repo store.Repository, snapshotCache cache.SnapshotCache, ttl time.Duration, feeRateBps int64, logger *slog.Logger) *KPIService {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &KPIService{
		repo:       repo,
		cache:      snapshotCache,
		ttl:        ttl,
		feeRateBps: feeRateBps,
		logger:     logger,
		now:        time.Now,
	}
}

func snapshotKey(periodType domain.PeriodType, region string, organizationID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:%s", periodType, region, organizationID)
}

// GetSnapshot returns the KPI bundle for the organization and period, serving
// from the cache unless the entry expired or forceRefresh is set.
func (s *KPIService) GetSnapshot(ctx context.Context, organizationID uuid.UUID, periodType domain.PeriodType, region string, forceRefresh bool) (*domain.KPISnapshot, error) {
	if organizationID == uuid.Nil {
		return nil, domain.NewValidationError("organization_id", "an explicit organization context is required")
	}
	switch periodType {
	case domain.PeriodWeek, domain.PeriodMonth, domain.PeriodQuarter, domain.PeriodYear:
	case "":
		periodType = domain.PeriodMonth
	default:
		return nil, domain.NewValidationError("period_type", "must be week, month, quarter or year")
	}

	key := snapshotKey(periodType, region, organizationID)
	if !forceRefresh {
		cached, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("snapshot cache read failed", "key", key, "error", err)
		} else if ok {
			return cached, nil
		}
	}

	snapshot, err := s.compute(ctx, organizationID, periodType, region)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, snapshot, s.ttl); err != nil {
		// A cold cache only costs recomputation; the snapshot itself is good.
		s.logger.Warn("snapshot cache write failed", "key", key, "error", err)
	}
	return snapshot, nil
}

// Invalidate drops the cached snapshot for the key, forcing the next read to
// recompute.
func (s *KPIService) Invalidate(ctx context.Context, organizationID uuid.UUID, periodType domain.PeriodType, region string) error {
	return s.cache.Invalidate(ctx, snapshotKey(periodType, region, organizationID))
}

func (s *KPIService) compute(ctx context.Context, organizationID uuid.UUID, periodType domain.PeriodType, region string) (*domain.KPISnapshot, error) {
	now := s.now()
	start, end := domain.ResolvePeriod(periodType, now)
	baselineStart := start.Add(-end.Sub(start))

	snapshot := &domain.KPISnapshot{
		OrganizationID: organizationID,
		PeriodType:     periodType,
		Region:         region,
		PeriodStart:    start,
		PeriodEnd:      end,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		coverage, err := s.repo.CoverageForPeriod(gctx, organizationID, region, start, end)
		if err != nil {
			return &domain.ComputationError{ReadModel: "coverage", Err: err}
		}
		snapshot.Coverage = *coverage
		return nil
	})

	g.Go(func() error {
		current, err := s.repo.EngagementForPeriod(gctx, organizationID, region, start, end)
		if err != nil {
			return &domain.ComputationError{ReadModel: "engagement", Err: err}
		}
		baseline, err := s.repo.EngagementForPeriod(gctx, organizationID, region, baselineStart, start)
		if err != nil {
			return &domain.ComputationError{ReadModel: "engagement baseline", Err: err}
		}
		snapshot.Engagement = domain.EngagementMetrics{
			ActiveStudents: current.ActiveStudents,
			Sessions:       current.Sessions,
			XPEarned:       current.XPEarned,
			MoodCheckIns:   current.MoodCheckIns,
			LiftPercentage: domain.EngagementLift(current.Sessions, baseline.Sessions),
		}
		return nil
	})

	g.Go(func() error {
		summary, err := s.repo.SummarizeSpend(gctx, organizationID, domain.SpendFilter{
			From: start, To: end, GroupBy: "category",
		})
		if err != nil {
			return &domain.ComputationError{ReadModel: "budget", Err: err}
		}
		snapshot.Budget = domain.BudgetMetrics{
			TotalSpent:       summary.TotalAmount,
			PointsSpent:      summary.TotalPoints,
			TransactionCount: summary.TransactionCount,
			EstimatedFees:    summary.TotalAmount * s.feeRateBps / 10000,
			ByCategory:       summary.ByCategory,
		}
		return nil
	})

	g.Go(func() error {
		certificates, err := s.repo.CertificatesForPeriod(gctx, organizationID, region, start, end)
		if err != nil {
			return &domain.ComputationError{ReadModel: "certificates", Err: err}
		}
		snapshot.Certificates = *certificates
		return nil
	})

	g.Go(func() error {
		competencies, err := s.repo.CompetencyCoverage(gctx, organizationID, region, start, end)
		if err != nil {
			return &domain.ComputationError{ReadModel: "competencies", Err: err}
		}
		snapshot.Competencies = *competencies
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	snapshot.CalculatedAt = now.UTC()
	return snapshot, nil
}
