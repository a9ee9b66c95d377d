package app

import (
	"context"
	"errors"
	"testing"

	"github.com/edumitra/csr-service/internal/domain"
	"github.com/edumitra/csr-service/internal/store"
	"github.com/google/uuid"
)

type alertEngineRepoStub struct {
	store.Repository

	campaigns      []domain.Campaign
	spendByID      map[uuid.UUID]*domain.SpendSummary
	openWarnings   map[int]bool
	openExceeded   map[int]bool
	insertedAlerts []domain.BudgetAlert
	rejectDedup    map[string]bool
}

func (s *alertEngineRepoStub) FindCampaignByID(ctx context.Context, campaignID uuid.UUID) (*domain.Campaign, error) {
	for i := range s.campaigns {
		if s.campaigns[i].ID == campaignID {
			return &s.campaigns[i], nil
		}
	}
	return nil, store.ErrCampaignNotFound
}

func (s *alertEngineRepoStub) FindScannableCampaigns(ctx context.Context, organizationID uuid.UUID) ([]domain.Campaign, error) {
	var out []domain.Campaign
	for _, c := range s.campaigns {
		if c.OrganizationID == organizationID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *alertEngineRepoStub) SummarizeSpend(ctx context.Context, organizationID uuid.UUID, filter domain.SpendFilter) (*domain.SpendSummary, error) {
	if filter.CampaignID != nil {
		if summary, ok := s.spendByID[*filter.CampaignID]; ok {
			return summary, nil
		}
	}
	return &domain.SpendSummary{}, nil
}

func (s *alertEngineRepoStub) FindOpenAlertThresholds(ctx context.Context, organizationID, campaignID uuid.UUID, alertType domain.AlertType) (map[int]bool, error) {
	if alertType == domain.AlertBudgetExceeded {
		if s.openExceeded == nil {
			return map[int]bool{}, nil
		}
		return s.openExceeded, nil
	}
	if s.openWarnings == nil {
		return map[int]bool{}, nil
	}
	return s.openWarnings, nil
}

func (s *alertEngineRepoStub) InsertBudgetAlert(ctx context.Context, alert *domain.BudgetAlert) (bool, error) {
	if s.rejectDedup[alert.DedupKey()] {
		return false, nil
	}
	alert.ID = uuid.New()
	s.insertedAlerts = append(s.insertedAlerts, *alert)
	if alert.AlertType == domain.AlertBudgetExceeded {
		if s.openExceeded == nil {
			s.openExceeded = make(map[int]bool)
		}
		s.openExceeded[alert.ThresholdPercentage] = true
	} else {
		if s.openWarnings == nil {
			s.openWarnings = make(map[int]bool)
		}
		s.openWarnings[alert.ThresholdPercentage] = true
	}
	return true, nil
}

func scannableCampaign(orgID uuid.UUID, totalBudget int64) domain.Campaign {
	return domain.Campaign{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Title:          "Mindfulness Pilot",
		Status:         domain.CampaignActive,
		Budget:         domain.Budget{TotalBudget: totalBudget},
	}
}

func TestScanThresholds_EmitsEverySatisfiedCheckpoint(t *testing.T) {
	orgID := uuid.New()
	campaign := scannableCampaign(orgID, 100000)
	repo := &alertEngineRepoStub{
		campaigns: []domain.Campaign{campaign},
		spendByID: map[uuid.UUID]*domain.SpendSummary{
			campaign.ID: {TotalAmount: 97000},
		},
	}
	engine := NewAlertEngine(repo, &publisherStub{}, testLogger())

	alerts, err := engine.ScanThresholds(context.Background(), orgID, nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(alerts) != 3 {
		t.Fatalf("expected alerts at 80, 90 and 95, got %d alerts", len(alerts))
	}
	wantThresholds := []int{80, 90, 95}
	wantSeverities := []domain.AlertSeverity{domain.SeverityMedium, domain.SeverityHigh, domain.SeverityCritical}
	for i, alert := range alerts {
		if alert.ThresholdPercentage != wantThresholds[i] {
			t.Fatalf("alert %d: expected threshold %d, got %d", i, wantThresholds[i], alert.ThresholdPercentage)
		}
		if alert.Severity != wantSeverities[i] {
			t.Fatalf("alert %d: expected severity %s, got %s", i, wantSeverities[i], alert.Severity)
		}
		if alert.AlertType != domain.AlertThresholdWarning {
			t.Fatalf("alert %d: expected threshold warning type, got %s", i, alert.AlertType)
		}
		if alert.Status != domain.AlertStatusActive {
			t.Fatalf("alert %d: expected active status, got %s", i, alert.Status)
		}
	}
}

func TestScanThresholds_FullSpendEmitsBudgetExceeded(t *testing.T) {
	orgID := uuid.New()
	campaign := scannableCampaign(orgID, 100000)
	repo := &alertEngineRepoStub{
		campaigns: []domain.Campaign{campaign},
		spendByID: map[uuid.UUID]*domain.SpendSummary{
			campaign.ID: {TotalAmount: 105000},
		},
	}
	engine := NewAlertEngine(repo, &publisherStub{}, testLogger())

	alerts, err := engine.ScanThresholds(context.Background(), orgID, nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(alerts) != 4 {
		t.Fatalf("expected 4 alerts for overspent campaign, got %d", len(alerts))
	}
	last := alerts[len(alerts)-1]
	if last.AlertType != domain.AlertBudgetExceeded {
		t.Fatalf("expected budget_exceeded at the 100%% checkpoint, got %s", last.AlertType)
	}
	if last.Severity != domain.SeverityCritical {
		t.Fatalf("expected critical severity at 100%%, got %s", last.Severity)
	}
}

func TestScanThresholds_SkipsAlreadyOpenCheckpoints(t *testing.T) {
	orgID := uuid.New()
	campaign := scannableCampaign(orgID, 100000)
	repo := &alertEngineRepoStub{
		campaigns: []domain.Campaign{campaign},
		spendByID: map[uuid.UUID]*domain.SpendSummary{
			campaign.ID: {TotalAmount: 92000},
		},
		openWarnings: map[int]bool{80: true},
	}
	engine := NewAlertEngine(repo, &publisherStub{}, testLogger())

	alerts, err := engine.ScanThresholds(context.Background(), orgID, nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected only the 90 checkpoint, got %d alerts", len(alerts))
	}
	if alerts[0].ThresholdPercentage != 90 {
		t.Fatalf("expected threshold 90, got %d", alerts[0].ThresholdPercentage)
	}
}

func TestScanThresholds_ZeroBudgetCampaignEmitsNothing(t *testing.T) {
	orgID := uuid.New()
	campaign := scannableCampaign(orgID, 0)
	repo := &alertEngineRepoStub{
		campaigns: []domain.Campaign{campaign},
		spendByID: map[uuid.UUID]*domain.SpendSummary{
			campaign.ID: {TotalAmount: 50000},
		},
	}
	engine := NewAlertEngine(repo, &publisherStub{}, testLogger())

	alerts, err := engine.ScanThresholds(context.Background(), orgID, nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("expected no alerts for unbudgeted campaign, got %d", len(alerts))
	}
}

func TestScanThresholds_BelowFirstCheckpointEmitsNothing(t *testing.T) {
	orgID := uuid.New()
	campaign := scannableCampaign(orgID, 100000)
	repo := &alertEngineRepoStub{
		campaigns: []domain.Campaign{campaign},
		spendByID: map[uuid.UUID]*domain.SpendSummary{
			campaign.ID: {TotalAmount: 79999},
		},
	}
	engine := NewAlertEngine(repo, &publisherStub{}, testLogger())

	alerts, err := engine.ScanThresholds(context.Background(), orgID, nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("expected no alerts below the 80%% checkpoint, got %d", len(alerts))
	}
}

func TestScanThresholds_CampaignFromAnotherOrganizationIsNotFound(t *testing.T) {
	orgID := uuid.New()
	campaign := scannableCampaign(uuid.New(), 100000)
	repo := &alertEngineRepoStub{campaigns: []domain.Campaign{campaign}}
	engine := NewAlertEngine(repo, &publisherStub{}, testLogger())

	_, err := engine.ScanThresholds(context.Background(), orgID, &campaign.ID)
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError for cross-organization campaign, got %v", err)
	}
}

func TestPersistAlerts_DedupLoserIsSkippedNotFailed(t *testing.T) {
	orgID := uuid.New()
	campaignID := uuid.New()
	winner := domain.BudgetAlert{
		OrganizationID: orgID, CampaignID: campaignID,
		AlertType: domain.AlertThresholdWarning, ThresholdPercentage: 90,
		Severity: domain.SeverityHigh, Status: domain.AlertStatusActive,
	}
	loser := domain.BudgetAlert{
		OrganizationID: orgID, CampaignID: campaignID,
		AlertType: domain.AlertThresholdWarning, ThresholdPercentage: 80,
		Severity: domain.SeverityMedium, Status: domain.AlertStatusActive,
	}
	repo := &alertEngineRepoStub{
		rejectDedup: map[string]bool{loser.DedupKey(): true},
	}
	producer := &publisherStub{}
	engine := NewAlertEngine(repo, producer, testLogger())

	persisted, err := engine.PersistAlerts(context.Background(), []domain.BudgetAlert{loser, winner})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(persisted) != 1 {
		t.Fatalf("expected 1 persisted alert, got %d", len(persisted))
	}
	if persisted[0].ThresholdPercentage != 90 {
		t.Fatalf("expected the 90 checkpoint to land, got %d", persisted[0].ThresholdPercentage)
	}
	if len(producer.alertEvents) != 1 {
		t.Fatalf("expected 1 published alert event, got %d", len(producer.alertEvents))
	}
}

func TestScanAndPersist_SecondScanWithNoNewSpendEmitsNothing(t *testing.T) {
	orgID := uuid.New()
	campaign := scannableCampaign(orgID, 100000)
	repo := &alertEngineRepoStub{
		campaigns: []domain.Campaign{campaign},
		spendByID: map[uuid.UUID]*domain.SpendSummary{
			campaign.ID: {TotalAmount: 105000},
		},
	}
	engine := NewAlertEngine(repo, &publisherStub{}, testLogger())

	first, err := engine.ScanAndPersist(context.Background(), orgID, nil)
	if err != nil {
		t.Fatalf("first scan failed: %v", err)
	}
	if len(first) != 4 {
		t.Fatalf("expected 4 alerts on the first scan, got %d", len(first))
	}

	second, err := engine.ScanAndPersist(context.Background(), orgID, nil)
	if err != nil {
		t.Fatalf("second scan failed: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected an idempotent second scan, got %d alerts", len(second))
	}
	if len(repo.insertedAlerts) != 4 {
		t.Fatalf("expected no duplicate inserts, got %d total", len(repo.insertedAlerts))
	}
}

func TestScanAndPersist_NewSpendAfterScanEmitsOnlyNewCheckpoints(t *testing.T) {
	orgID := uuid.New()
	campaign := scannableCampaign(orgID, 100000)
	spend := &domain.SpendSummary{TotalAmount: 85000}
	repo := &alertEngineRepoStub{
		campaigns: []domain.Campaign{campaign},
		spendByID: map[uuid.UUID]*domain.SpendSummary{campaign.ID: spend},
	}
	engine := NewAlertEngine(repo, &publisherStub{}, testLogger())

	first, err := engine.ScanAndPersist(context.Background(), orgID, nil)
	if err != nil {
		t.Fatalf("first scan failed: %v", err)
	}
	if len(first) != 1 || first[0].ThresholdPercentage != 80 {
		t.Fatalf("expected only the 80 checkpoint first, got %+v", first)
	}

	spend.TotalAmount = 93000
	second, err := engine.ScanAndPersist(context.Background(), orgID, nil)
	if err != nil {
		t.Fatalf("second scan failed: %v", err)
	}
	if len(second) != 1 || second[0].ThresholdPercentage != 90 {
		t.Fatalf("expected only the new 90 checkpoint, got %+v", second)
	}
}

func TestScanAndPersist_PublishesEachPersistedAlert(t *testing.T) {
	orgID := uuid.New()
	campaign := scannableCampaign(orgID, 100000)
	repo := &alertEngineRepoStub{
		campaigns: []domain.Campaign{campaign},
		spendByID: map[uuid.UUID]*domain.SpendSummary{
			campaign.ID: {TotalAmount: 85000},
		},
	}
	producer := &publisherStub{}
	engine := NewAlertEngine(repo, producer, testLogger())

	persisted, err := engine.ScanAndPersist(context.Background(), orgID, nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(persisted) != 1 {
		t.Fatalf("expected 1 alert at 80%%, got %d", len(persisted))
	}
	if len(producer.alertEvents) != 1 {
		t.Fatalf("expected 1 alert event, got %d", len(producer.alertEvents))
	}
	if producer.alertEvents[0].ThresholdPercentage != 80 {
		t.Fatalf("expected event for the 80 checkpoint, got %d", producer.alertEvents[0].ThresholdPercentage)
	}
}
