// Package http exposes the control plane over HTTP: the workflow-engine
// facing polling endpoint and the tenant admin surface.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stackwarden/stackwarden/internal/application/provisioning"
	apptenant "github.com/stackwarden/stackwarden/internal/application/tenant"
	"github.com/stackwarden/stackwarden/internal/domain/tenant"
	"github.com/stackwarden/stackwarden/pkg/common/logger"
)

// Poller executes one provisioning polling iteration.
type Poller interface {
	Poll(ctx context.Context, inv provisioning.Invocation) (*provisioning.Envelope, error)
}

// TenantService is the tenant lifecycle surface the handlers need.
type TenantService interface {
	Register(ctx context.Context, params apptenant.RegisterParams) (*apptenant.RegisterResult, error)
	Deprovision(ctx context.Context, tenantID string) (*apptenant.DeprovisionResult, error)
	Get(ctx context.Context, tenantID string) (*tenant.Tenant, error)
}

// Handler holds the application services behind the HTTP surface.
type Handler struct {
	poller  Poller
	tenants TenantService
	logger  *logger.Logger
}

// NewHandler creates the HTTP handler set.
func NewHandler(poller Poller, tenants TenantService, log *logger.Logger) *Handler {
	return &Handler{
		poller:  poller,
		tenants: tenants,
		logger:  log.With("component", "http_handler"),
	}
}

// Healthz reports liveness.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// PollProvisioning runs one polling iteration for the invoking workflow
// engine. Terminal failures still answer 200: the envelope's status and
// result fields carry the outcome, and the engine branches on those.
func (h *Handler) PollProvisioning(w http.ResponseWriter, r *http.Request) {
	var inv provisioning.Invocation
	if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	env, err := h.poller.Poll(r.Context(), inv)
	if err != nil {
		var verr provisioning.ValidationError
		if errors.As(err, &verr) {
			respondError(w, http.StatusBadRequest, verr.Error())
			return
		}

		var perr *provisioning.Error
		if errors.As(err, &perr) {
			respondJSON(w, http.StatusOK, perr.Envelope)
			return
		}

		h.logger.Error(r.Context(), "polling iteration failed",
			"tenant_id", inv.TenantID,
			"error", err,
		)
		respondError(w, http.StatusInternalServerError, "polling iteration failed")
		return
	}

	respondJSON(w, http.StatusOK, env)
}

type registerRequest struct {
	TenantID        string `json:"tenantId"`
	Name            string `json:"name"`
	Tier            string `json:"tier"`
	TargetAccountID string `json:"targetAccountId,omitempty"`
	Region          string `json:"region,omitempty"`
}

// RegisterTenant creates a registry record and starts provisioning.
func (h *Handler) RegisterTenant(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.tenants.Register(r.Context(), apptenant.RegisterParams{
		TenantID:        req.TenantID,
		Name:            req.Name,
		Tier:            tenant.Tier(req.Tier),
		TargetAccountID: req.TargetAccountID,
		Region:          req.Region,
	})
	if err != nil {
		switch {
		case errors.Is(err, tenant.ErrTenantAlreadyExists):
			respondError(w, http.StatusConflict, "tenant already exists")
		case errors.Is(err, tenant.ErrInvalidTenantID),
			errors.Is(err, tenant.ErrInvalidName),
			errors.Is(err, tenant.ErrInvalidTier),
			errors.Is(err, tenant.ErrInvalidAccountID):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error(r.Context(), "tenant registration failed",
				"tenant_id", req.TenantID,
				"error", err,
			)
			respondError(w, http.StatusInternalServerError, "tenant registration failed")
		}
		return
	}

	status := http.StatusAccepted
	if result.State == tenant.StateActive {
		status = http.StatusCreated
	}
	respondJSON(w, status, map[string]string{
		"tenantId": result.TenantID,
		"stackId":  result.StackID,
		"state":    string(result.State),
	})
}

// DeprovisionTenant starts infrastructure teardown.
func (h *Handler) DeprovisionTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")

	result, err := h.tenants.Deprovision(r.Context(), tenantID)
	if err != nil {
		switch {
		case errors.Is(err, tenant.ErrTenantNotFound):
			respondError(w, http.StatusNotFound, "tenant not found")
		case errors.Is(err, tenant.ErrInvalidTransition),
			errors.Is(err, apptenant.ErrOperationInProgress):
			respondError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error(r.Context(), "tenant deprovisioning failed",
				"tenant_id", tenantID,
				"error", err,
			)
			respondError(w, http.StatusInternalServerError, "tenant deprovisioning failed")
		}
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"tenantId": result.TenantID,
		"state":    string(result.State),
	})
}

type tenantResponse struct {
	TenantID        string     `json:"tenantId"`
	Name            string     `json:"name"`
	Tier            string     `json:"tier"`
	State           string     `json:"state"`
	StatusReason    string     `json:"statusReason,omitempty"`
	TargetAccountID string     `json:"targetAccountId,omitempty"`
	Region          string     `json:"region,omitempty"`
	StackID         string     `json:"stackId,omitempty"`
	StackName       string     `json:"stackName,omitempty"`
	PollingAttempts int        `json:"pollingAttempts"`
	LastPolledAt    *time.Time `json:"lastPolledAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	FailedAt        *time.Time `json:"failedAt,omitempty"`
	TimeoutAt       *time.Time `json:"timeoutAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastModified    time.Time  `json:"lastModified"`
}

// GetTenant returns a registry record.
func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")

	rec, err := h.tenants.Get(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		h.logger.Error(r.Context(), "tenant lookup failed",
			"tenant_id", tenantID,
			"error", err,
		)
		respondError(w, http.StatusInternalServerError, "tenant lookup failed")
		return
	}

	respondJSON(w, http.StatusOK, tenantResponse{
		TenantID:        rec.TenantID,
		Name:            rec.Name,
		Tier:            string(rec.Tier),
		State:           string(rec.State),
		StatusReason:    rec.StatusReason,
		TargetAccountID: rec.TargetAccountID,
		Region:          rec.Region,
		StackID:         rec.StackID,
		StackName:       rec.StackName,
		PollingAttempts: rec.PollingAttempts,
		LastPolledAt:    rec.LastPolledAt,
		CompletedAt:     rec.ProvisioningCompletedAt,
		FailedAt:        rec.ProvisioningFailedAt,
		TimeoutAt:       rec.PollingTimeoutAt,
		CreatedAt:       rec.CreatedAt,
		LastModified:    rec.LastModified,
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
