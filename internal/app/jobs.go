/**
 * @description
 * Scheduled job implementations for the csr-service.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/edumitra/csr-service/internal/store"
)

// scanJobTimeout bounds one full-organization sweep.
const scanJobTimeout = 5 * time.Minute

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo   store.Repository
	engine *AlertEngine
	logger *slog.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(repo store.Repository, engine *AlertEngine, logger *slog.Logger) *Jobs {
	return &Jobs{repo: repo, engine: engine, logger: logger}
}

// RunThresholdScan sweeps every organization's scannable campaigns for
// budget-threshold crossings and persists any new alerts. One organization
// failing does not stop the sweep.
func (j *Jobs) RunThresholdScan() {
	j.logger.Info("starting threshold scan job")
	ctx, cancel := context.WithTimeout(context.Background(), scanJobTimeout)
	defer cancel()

	organizationIDs, err := j.repo.ListOrganizationIDs(ctx)
	if err != nil {
		j.logger.Error("failed to list organizations for threshold scan", "error", err)
		return
	}

	var created int
	for _, organizationID := range organizationIDs {
		alerts, err := j.engine.ScanAndPersist(ctx, organizationID, nil)
		if err != nil {
			j.logger.Error("threshold scan failed for organization",
				"organization_id", organizationID, "error", err)
			continue
		}
		created += len(alerts)
	}

	j.logger.Info("threshold scan job finished",
		"organizations", len(organizationIDs), "alerts_created", created)
}
