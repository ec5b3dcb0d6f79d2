package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/credit-ledger/internal/domain"
	"github.com/josh-kwaku/credit-ledger/internal/ledger"
	"github.com/josh-kwaku/credit-ledger/internal/logging"
	"github.com/josh-kwaku/credit-ledger/internal/service/reconcile"
)

type consistencyChecker interface {
	VerifyConsistency(ctx context.Context, userID uuid.UUID) (*ledger.ConsistencyReport, error)
}

type opsService interface {
	ReconcileAll(ctx context.Context) (*reconcile.ReconcileResult, error)
	Repair(ctx context.Context, userID uuid.UUID, dryRun bool) (*ledger.RepairReport, error)
	ExpireAllSubCredits(ctx context.Context) (*reconcile.ExpiryResult, error)
	DailyReport(ctx context.Context, day time.Time) (*domain.DailyReport, error)
}

type accountAdmin interface {
	SetAccountStatus(ctx context.Context, userID uuid.UUID, status domain.AccountStatus) (*domain.Account, error)
}

type AdminHandler struct {
	ledger   consistencyChecker
	ops      opsService
	accounts accountAdmin
}

func NewAdminHandler(ledger consistencyChecker, ops opsService, accounts accountAdmin) *AdminHandler {
	return &AdminHandler{ledger: ledger, ops: ops, accounts: accounts}
}

func (h *AdminHandler) Consistency(w http.ResponseWriter, r *http.Request) {
	userID, appErr := subjectFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	report, err := h.ledger.VerifyConsistency(r.Context(), userID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, report)
}

// Repair applies a repair unless dry_run is set. Operators are expected to
// preview with dry_run=true first.
func (h *AdminHandler) Repair(w http.ResponseWriter, r *http.Request) {
	userID, appErr := subjectFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	dryRun := false
	if v := r.URL.Query().Get("dry_run"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			RespondValidationError(w, []FieldError{{Field: "dry_run", Message: "must be true or false"}})
			return
		}
		dryRun = b
	}

	report, err := h.ops.Repair(r.Context(), userID, dryRun)
	if err != nil {
		logging.FromContext(r.Context()).Error("repair failed", "user_id", userID, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, report)
}

func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	res, err := h.ops.ReconcileAll(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("reconciliation failed", "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, res)
}

func (h *AdminHandler) ExpireSub(w http.ResponseWriter, r *http.Request) {
	res, err := h.ops.ExpireAllSubCredits(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("sub expiry failed", "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, res)
}

// DailyReport defaults to the previous UTC day.
func (h *AdminHandler) DailyReport(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC().Truncate(24*time.Hour).Add(-24 * time.Hour)
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			RespondValidationError(w, []FieldError{{Field: "date", Message: "must be YYYY-MM-DD"}})
			return
		}
		day = d
	}

	report, err := h.ops.DailyReport(r.Context(), day)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, report)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *AdminHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	userID, appErr := subjectFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	status := domain.AccountStatus(req.Status)
	if !status.IsValid() {
		RespondValidationError(w, []FieldError{{Field: "status", Message: "must be active or disabled"}})
		return
	}

	account, err := h.accounts.SetAccountStatus(r.Context(), userID, status)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toBalanceDTO(account))
}
