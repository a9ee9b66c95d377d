package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/edumitra/csr-service/internal/domain"
	"github.com/edumitra/csr-service/internal/store"
	"github.com/google/uuid"
)

type alertLifecycleRepoStub struct {
	store.Repository

	alert   *domain.BudgetAlert
	history []domain.HistoryEntry

	staleOnUpdate bool
}

func (s *alertLifecycleRepoStub) FindBudgetAlertByID(ctx context.Context, alertID uuid.UUID) (*domain.BudgetAlert, error) {
	if s.alert == nil || s.alert.ID != alertID {
		return nil, store.ErrAlertNotFound
	}
	copied := *s.alert
	copied.History = append([]domain.HistoryEntry{}, s.history...)
	return &copied, nil
}

func (s *alertLifecycleRepoStub) AcknowledgeBudgetAlert(ctx context.Context, alertID uuid.UUID, ack domain.Acknowledgment) error {
	if s.staleOnUpdate {
		return store.ErrAlertStateStale
	}
	s.alert.Status = domain.AlertStatusAcknowledged
	s.alert.Acknowledgment = &ack
	s.history = append(s.history, domain.HistoryEntry{
		Action: "acknowledged", Actor: ack.By, At: ack.At, Detail: ack.Notes,
	})
	return nil
}

func (s *alertLifecycleRepoStub) ResolveBudgetAlert(ctx context.Context, alertID uuid.UUID, res domain.Resolution) error {
	if s.staleOnUpdate {
		return store.ErrAlertStateStale
	}
	s.alert.Status = domain.AlertStatusResolved
	s.alert.Resolution = &res
	s.history = append(s.history, domain.HistoryEntry{
		Action: "resolved", Actor: res.By, At: res.At, Detail: res.Notes,
	})
	return nil
}

func (s *alertLifecycleRepoStub) DismissBudgetAlert(ctx context.Context, alertID, by uuid.UUID, at time.Time, notes string) error {
	if s.staleOnUpdate {
		return store.ErrAlertStateStale
	}
	s.alert.Status = domain.AlertStatusDismissed
	s.history = append(s.history, domain.HistoryEntry{
		Action: "dismissed", Actor: by, At: at, Detail: notes,
	})
	return nil
}

func (s *alertLifecycleRepoStub) EscalateBudgetAlert(ctx context.Context, alertID, by uuid.UUID, at time.Time, targets []uuid.UUID, reason string) (int, error) {
	if s.staleOnUpdate {
		return 0, store.ErrAlertStateStale
	}
	level := s.alert.Escalation.Level + 1
	s.alert.Escalation = domain.Escalation{
		IsEscalated: true,
		Level:       level,
		EscalatedTo: append(s.alert.Escalation.EscalatedTo, targets...),
	}
	s.history = append(s.history, domain.HistoryEntry{
		Action: "escalated", Actor: by, At: at,
		Detail: fmt.Sprintf("level %d: %s", level, reason),
	})
	return level, nil
}

func activeAlert() *domain.BudgetAlert {
	return &domain.BudgetAlert{
		ID:                  uuid.New(),
		OrganizationID:      uuid.New(),
		CampaignID:          uuid.New(),
		AlertType:           domain.AlertThresholdWarning,
		ThresholdPercentage: 80,
		Severity:            domain.SeverityMedium,
		Status:              domain.AlertStatusActive,
	}
}

func TestAcknowledge_MovesActiveAlertAndRecordsHistory(t *testing.T) {
	repo := &alertLifecycleRepoStub{alert: activeAlert()}
	svc := NewAlertLifecycleService(repo, &publisherStub{}, testLogger())
	actor := uuid.New()

	updated, err := svc.Acknowledge(context.Background(), repo.alert.ID, actor, "looking into it")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if updated.Status != domain.AlertStatusAcknowledged {
		t.Fatalf("expected acknowledged status, got %s", updated.Status)
	}
	if updated.Acknowledgment == nil || updated.Acknowledgment.By != actor {
		t.Fatal("expected acknowledgment record with the acting operator")
	}
	if len(repo.history) != 1 || repo.history[0].Action != "acknowledged" {
		t.Fatalf("expected one acknowledged history entry, got %+v", repo.history)
	}
}

func TestAcknowledge_RejectsAcknowledgedAlert(t *testing.T) {
	alert := activeAlert()
	alert.Status = domain.AlertStatusAcknowledged
	repo := &alertLifecycleRepoStub{alert: alert}
	svc := NewAlertLifecycleService(repo, &publisherStub{}, testLogger())

	_, err := svc.Acknowledge(context.Background(), alert.ID, uuid.New(), "")
	var transition *domain.InvalidStateTransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("expected InvalidStateTransitionError, got %v", err)
	}
}

func TestResolve_WorksFromActiveAndAcknowledged(t *testing.T) {
	for _, status := range []domain.AlertStatus{domain.AlertStatusActive, domain.AlertStatusAcknowledged} {
		alert := activeAlert()
		alert.Status = status
		repo := &alertLifecycleRepoStub{alert: alert}
		svc := NewAlertLifecycleService(repo, &publisherStub{}, testLogger())

		updated, err := svc.Resolve(context.Background(), alert.ID, uuid.New(), "budget revised")
		if err != nil {
			t.Fatalf("resolve from %s: expected nil error, got %v", status, err)
		}
		if updated.Status != domain.AlertStatusResolved {
			t.Fatalf("resolve from %s: expected resolved, got %s", status, updated.Status)
		}
	}
}

func TestResolve_RejectsTerminalAlert(t *testing.T) {
	for _, status := range []domain.AlertStatus{domain.AlertStatusResolved, domain.AlertStatusDismissed} {
		alert := activeAlert()
		alert.Status = status
		repo := &alertLifecycleRepoStub{alert: alert}
		svc := NewAlertLifecycleService(repo, &publisherStub{}, testLogger())

		_, err := svc.Resolve(context.Background(), alert.ID, uuid.New(), "")
		var transition *domain.InvalidStateTransitionError
		if !errors.As(err, &transition) {
			t.Fatalf("resolve from %s: expected InvalidStateTransitionError, got %v", status, err)
		}
	}
}

func TestDismiss_RejectsAcknowledgedAlert(t *testing.T) {
	alert := activeAlert()
	alert.Status = domain.AlertStatusAcknowledged
	repo := &alertLifecycleRepoStub{alert: alert}
	svc := NewAlertLifecycleService(repo, &publisherStub{}, testLogger())

	_, err := svc.Dismiss(context.Background(), alert.ID, uuid.New(), "")
	var transition *domain.InvalidStateTransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("expected InvalidStateTransitionError, got %v", err)
	}
}

func TestEscalate_BumpsLevelWithoutChangingStatus(t *testing.T) {
	alert := activeAlert()
	alert.Status = domain.AlertStatusAcknowledged
	repo := &alertLifecycleRepoStub{alert: alert}
	producer := &publisherStub{}
	svc := NewAlertLifecycleService(repo, producer, testLogger())
	target := uuid.New()

	updated, err := svc.Escalate(context.Background(), alert.ID, uuid.New(), []uuid.UUID{target}, "no response for 48h")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if updated.Status != domain.AlertStatusAcknowledged {
		t.Fatalf("expected status to stay acknowledged, got %s", updated.Status)
	}
	if !updated.Escalation.IsEscalated || updated.Escalation.Level != 1 {
		t.Fatalf("expected escalation level 1, got %+v", updated.Escalation)
	}
	if len(updated.Escalation.EscalatedTo) != 1 || updated.Escalation.EscalatedTo[0] != target {
		t.Fatalf("expected escalation target recorded, got %+v", updated.Escalation.EscalatedTo)
	}
	if len(producer.alertEvents) != 1 {
		t.Fatalf("expected 1 escalation event, got %d", len(producer.alertEvents))
	}
}

func TestEscalate_SecondEscalationAccumulates(t *testing.T) {
	alert := activeAlert()
	first := uuid.New()
	alert.Escalation = domain.Escalation{IsEscalated: true, Level: 1, EscalatedTo: []uuid.UUID{first}}
	repo := &alertLifecycleRepoStub{alert: alert}
	svc := NewAlertLifecycleService(repo, &publisherStub{}, testLogger())
	second := uuid.New()

	updated, err := svc.Escalate(context.Background(), alert.ID, uuid.New(), []uuid.UUID{second}, "still unaddressed")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if updated.Escalation.Level != 2 {
		t.Fatalf("expected escalation level 2, got %d", updated.Escalation.Level)
	}
	if len(updated.Escalation.EscalatedTo) != 2 {
		t.Fatalf("expected both escalation targets, got %+v", updated.Escalation.EscalatedTo)
	}
}

func TestEscalate_LevelComesFromTheStoreNotTheLoadedAlert(t *testing.T) {
	alert := activeAlert()
	alert.Escalation = domain.Escalation{IsEscalated: true, Level: 4, EscalatedTo: []uuid.UUID{uuid.New()}}
	repo := &alertLifecycleRepoStub{alert: alert}
	svc := NewAlertLifecycleService(repo, &publisherStub{}, testLogger())

	updated, err := svc.Escalate(context.Background(), alert.ID, uuid.New(), []uuid.UUID{uuid.New()}, "exec review")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if updated.Escalation.Level != 5 {
		t.Fatalf("expected the store-incremented level 5, got %d", updated.Escalation.Level)
	}
	last := repo.history[len(repo.history)-1]
	if last.Detail != "level 5: exec review" {
		t.Fatalf("expected history detail to carry the landed level, got %q", last.Detail)
	}
}

func TestEscalate_RejectsResolvedAlert(t *testing.T) {
	alert := activeAlert()
	alert.Status = domain.AlertStatusResolved
	repo := &alertLifecycleRepoStub{alert: alert}
	svc := NewAlertLifecycleService(repo, &publisherStub{}, testLogger())

	_, err := svc.Escalate(context.Background(), alert.ID, uuid.New(), nil, "")
	var transition *domain.InvalidStateTransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("expected InvalidStateTransitionError, got %v", err)
	}
}

func TestAcknowledge_StaleStateSurfacesConflict(t *testing.T) {
	repo := &alertLifecycleRepoStub{alert: activeAlert(), staleOnUpdate: true}
	svc := NewAlertLifecycleService(repo, &publisherStub{}, testLogger())

	_, err := svc.Acknowledge(context.Background(), repo.alert.ID, uuid.New(), "")
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError on stale state, got %v", err)
	}
	if len(repo.history) != 0 {
		t.Fatalf("expected no history for a rejected update, got %+v", repo.history)
	}
}

func TestLifecycle_FullPathRecordsOrderedHistory(t *testing.T) {
	repo := &alertLifecycleRepoStub{alert: activeAlert()}
	svc := NewAlertLifecycleService(repo, &publisherStub{}, testLogger())
	actor := uuid.New()

	if _, err := svc.Acknowledge(context.Background(), repo.alert.ID, actor, "triaging"); err != nil {
		t.Fatalf("acknowledge failed: %v", err)
	}
	if _, err := svc.Escalate(context.Background(), repo.alert.ID, actor, []uuid.UUID{uuid.New()}, "needs finance"); err != nil {
		t.Fatalf("escalate failed: %v", err)
	}
	updated, err := svc.Resolve(context.Background(), repo.alert.ID, actor, "budget topped up")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if updated.Status != domain.AlertStatusResolved {
		t.Fatalf("expected resolved, got %s", updated.Status)
	}

	wantActions := []string{"acknowledged", "escalated", "resolved"}
	if len(repo.history) != len(wantActions) {
		t.Fatalf("expected %d history entries, got %d", len(wantActions), len(repo.history))
	}
	for i, want := range wantActions {
		if repo.history[i].Action != want {
			t.Fatalf("history[%d]: expected %s, got %s", i, want, repo.history[i].Action)
		}
	}
}
