/**
 * @description
 * HTTP handlers for the csr-service. Handlers decode requests, call into the
 * app services, and translate the domain error taxonomy into HTTP status
 * codes. All organization scoping comes from the authenticated context, never
 * from request bodies or query parameters.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app, internal/domain, internal/store: Application services and models.
 */

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/edumitra/csr-service/internal/app"
	"github.com/edumitra/csr-service/internal/domain"
	"github.com/edumitra/csr-service/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Handlers holds the application services the HTTP layer dispatches to.
type Handlers struct {
	ledger    *app.LedgerService
	engine    *app.AlertEngine
	lifecycle *app.AlertLifecycleService
	kpi       *app.KPIService
	logger    *slog.Logger
}

// NewHandlers creates the handler set for the router.
func NewHandlers(ledger *app.LedgerService, engine *app.AlertEngine, lifecycle *app.AlertLifecycleService, kpi *app.KPIService, logger *slog.Logger) *Handlers {
	return &Handlers{ledger: ledger, engine: engine, lifecycle: lifecycle, kpi: kpi, logger: logger}
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// respondWithError maps the domain error taxonomy onto HTTP status codes.
func (h *Handlers) respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *domain.ValidationError
		notFoundErr   *domain.NotFoundError
		conflictErr   *domain.ConflictError
		stateErr      *domain.InvalidStateTransitionError
		computeErr    *domain.ComputationError
	)
	switch {
	case errors.As(err, &validationErr):
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: validationErr.Error()})
	case errors.As(err, &notFoundErr):
		respondWithJSON(w, http.StatusNotFound, errorResponse{Error: notFoundErr.Error()})
	case errors.As(err, &conflictErr):
		respondWithJSON(w, http.StatusConflict, errorResponse{Error: conflictErr.Error()})
	case errors.As(err, &stateErr):
		respondWithJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: stateErr.Error()})
	case errors.As(err, &computeErr):
		h.logger.Error("snapshot computation failed", "path", r.URL.Path, "error", err)
		respondWithJSON(w, http.StatusInternalServerError, errorResponse{Error: "snapshot computation failed"})
	default:
		h.logger.Error("unhandled error", "path", r.URL.Path, "error", err)
		respondWithJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

type appendEntryRequest struct {
	CampaignID   *uuid.UUID             `json:"campaign_id,omitempty"`
	Amount       int64                  `json:"amount"`
	PointsAmount int64                  `json:"points_amount"`
	Category     domain.LedgerCategory  `json:"category"`
	Direction    domain.LedgerDirection `json:"direction"`
	Status       domain.LedgerStatus    `json:"status,omitempty"`
	Description  string                 `json:"description"`
}

// AppendEntryHandler records a ledger movement for the authenticated organization.
func (h *Handlers) AppendEntryHandler(w http.ResponseWriter, r *http.Request) {
	organizationID, ok := OrganizationFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req appendEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	entry, err := h.ledger.Append(r.Context(), domain.NewLedgerEntry{
		OrganizationID: organizationID,
		CampaignID:     req.CampaignID,
		Amount:         req.Amount,
		PointsAmount:   req.PointsAmount,
		Category:       req.Category,
		Direction:      req.Direction,
		Status:         req.Status,
		Description:    req.Description,
	})
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, entry)
}

// ListEntriesHandler pages through the organization's ledger, newest first.
func (h *Handlers) ListEntriesHandler(w http.ResponseWriter, r *http.Request) {
	organizationID, ok := OrganizationFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, err := h.ledger.ListEntries(r.Context(), organizationID, limit, offset)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, entries)
}

// ReverseEntryHandler appends a correcting entry for a completed movement.
func (h *Handlers) ReverseEntryHandler(w http.ResponseWriter, r *http.Request) {
	entryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid entry id"})
		return
	}
	var req struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	entry, err := h.ledger.Reverse(r.Context(), entryID, req.Description)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, entry)
}

// SpendSummaryHandler aggregates outbound completed spend with optional filters.
func (h *Handlers) SpendSummaryHandler(w http.ResponseWriter, r *http.Request) {
	organizationID, ok := OrganizationFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	filter := domain.SpendFilter{GroupBy: r.URL.Query().Get("group_by")}
	if raw := r.URL.Query().Get("campaign_id"); raw != "" {
		campaignID, err := uuid.Parse(raw)
		if err != nil {
			respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid campaign id"})
			return
		}
		filter.CampaignID = &campaignID
	}
	if raw := r.URL.Query().Get("category"); raw != "" {
		filter.Category = domain.LedgerCategory(raw)
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid from timestamp"})
			return
		}
		filter.From = from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid to timestamp"})
			return
		}
		filter.To = to
	}

	summary, err := h.ledger.SummarizeSpend(r.Context(), organizationID, filter)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

// FundCampaignHandler records inbound funding against a campaign.
func (h *Handlers) FundCampaignHandler(w http.ResponseWriter, r *http.Request) {
	organizationID, ok := OrganizationFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	campaignID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid campaign id"})
		return
	}
	var req struct {
		Amount       int64  `json:"amount"`
		PointsAmount int64  `json:"points_amount"`
		Description  string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	entry, err := h.ledger.FundCampaign(r.Context(), organizationID, campaignID, req.Amount, req.PointsAmount, req.Description)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, entry)
}

// AdvanceCampaignHandler moves a campaign one workflow stage forward.
func (h *Handlers) AdvanceCampaignHandler(w http.ResponseWriter, r *http.Request) {
	organizationID, ok := OrganizationFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	campaignID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid campaign id"})
		return
	}
	var req struct {
		Status domain.CampaignStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	campaign, err := h.ledger.AdvanceCampaign(r.Context(), organizationID, campaignID, req.Status)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, campaign)
}

// ScanThresholdsHandler runs an on-demand threshold scan and persists the results.
func (h *Handlers) ScanThresholdsHandler(w http.ResponseWriter, r *http.Request) {
	organizationID, ok := OrganizationFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var campaignID *uuid.UUID
	if raw := r.URL.Query().Get("campaign_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid campaign id"})
			return
		}
		campaignID = &parsed
	}

	var alerts []domain.BudgetAlert
	var err error
	if r.URL.Query().Get("dry_run") == "true" {
		alerts, err = h.engine.ScanThresholds(r.Context(), organizationID, campaignID)
	} else {
		alerts, err = h.engine.ScanAndPersist(r.Context(), organizationID, campaignID)
	}
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []domain.BudgetAlert{}
	}
	respondWithJSON(w, http.StatusOK, alerts)
}

// ListAlertsHandler pages through the organization's alerts.
func (h *Handlers) ListAlertsHandler(w http.ResponseWriter, r *http.Request) {
	organizationID, ok := OrganizationFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	opts := store.AlertListOptions{
		Status:   domain.AlertStatus(r.URL.Query().Get("status")),
		Severity: domain.AlertSeverity(r.URL.Query().Get("severity")),
	}
	opts.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	opts.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if raw := r.URL.Query().Get("campaign_id"); raw != "" {
		campaignID, err := uuid.Parse(raw)
		if err != nil {
			respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid campaign id"})
			return
		}
		opts.CampaignID = &campaignID
	}

	alerts, err := h.lifecycle.List(r.Context(), organizationID, opts)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []domain.BudgetAlert{}
	}
	respondWithJSON(w, http.StatusOK, alerts)
}

// GetAlertHandler returns one alert with its history.
func (h *Handlers) GetAlertHandler(w http.ResponseWriter, r *http.Request) {
	alertID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid alert id"})
		return
	}
	alert, err := h.lifecycle.Get(r.Context(), alertID)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, alert)
}

type lifecycleActionRequest struct {
	Notes string `json:"notes"`
}

func (h *Handlers) lifecycleAction(w http.ResponseWriter, r *http.Request,
	action func(alertID, actorID uuid.UUID, notes string) (*domain.BudgetAlert, error)) {
	actorID, ok := ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	alertID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid alert id"})
		return
	}
	var req lifecycleActionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	alert, err := action(alertID, actorID, req.Notes)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, alert)
}

// AcknowledgeAlertHandler moves an active alert to acknowledged.
func (h *Handlers) AcknowledgeAlertHandler(w http.ResponseWriter, r *http.Request) {
	h.lifecycleAction(w, r, func(alertID, actorID uuid.UUID, notes string) (*domain.BudgetAlert, error) {
		return h.lifecycle.Acknowledge(r.Context(), alertID, actorID, notes)
	})
}

// ResolveAlertHandler closes an active or acknowledged alert.
func (h *Handlers) ResolveAlertHandler(w http.ResponseWriter, r *http.Request) {
	h.lifecycleAction(w, r, func(alertID, actorID uuid.UUID, notes string) (*domain.BudgetAlert, error) {
		return h.lifecycle.Resolve(r.Context(), alertID, actorID, notes)
	})
}

// DismissAlertHandler closes an active alert without resolution details.
func (h *Handlers) DismissAlertHandler(w http.ResponseWriter, r *http.Request) {
	h.lifecycleAction(w, r, func(alertID, actorID uuid.UUID, notes string) (*domain.BudgetAlert, error) {
		return h.lifecycle.Dismiss(r.Context(), alertID, actorID, notes)
	})
}

type escalateRequest struct {
	Targets []uuid.UUID `json:"targets"`
	Reason  string      `json:"reason"`
}

// EscalateAlertHandler bumps the escalation level without changing status.
func (h *Handlers) EscalateAlertHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	alertID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid alert id"})
		return
	}
	var req escalateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	alert, err := h.lifecycle.Escalate(r.Context(), alertID, actorID, req.Targets, req.Reason)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, alert)
}

// KPISnapshotHandler serves the cached KPI bundle for the organization.
func (h *Handlers) KPISnapshotHandler(w http.ResponseWriter, r *http.Request) {
	organizationID, ok := OrganizationFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	periodType := domain.PeriodType(r.URL.Query().Get("period"))
	region := r.URL.Query().Get("region")
	forceRefresh := r.URL.Query().Get("force_refresh") == "true"

	snapshot, err := h.kpi.GetSnapshot(r.Context(), organizationID, periodType, region, forceRefresh)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, snapshot)
}
