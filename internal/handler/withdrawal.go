package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/credit-ledger/internal/domain"
	"github.com/josh-kwaku/credit-ledger/internal/logging"
	"github.com/josh-kwaku/credit-ledger/internal/service/withdrawal"
)

type withdrawalService interface {
	Request(ctx context.Context, userID uuid.UUID, credits int64) (*domain.WithdrawalRequest, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.WithdrawalRequest, int, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error)
	Eligibility(ctx context.Context, userID uuid.UUID) (*withdrawal.Eligibility, error)
	Approve(ctx context.Context, id uuid.UUID, reviewer, note string) (*domain.WithdrawalRequest, error)
	Reject(ctx context.Context, id uuid.UUID, reviewer, reason string) (*domain.WithdrawalRequest, error)
	MarkTransferred(ctx context.Context, id uuid.UUID, payoutRef string) (*domain.WithdrawalRequest, error)
	Config(ctx context.Context) (domain.WithdrawalConfig, error)
	UpdateConfig(ctx context.Context, cfg domain.WithdrawalConfig) (domain.WithdrawalConfig, error)
}

type WithdrawalHandler struct {
	withdrawals withdrawalService
}

func NewWithdrawalHandler(withdrawals withdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawals: withdrawals}
}

type withdrawalDTO struct {
	ID                   uuid.UUID       `json:"id"`
	UserID               uuid.UUID       `json:"user_id"`
	CreditsAmount        int64           `json:"credits_amount"`
	CashAmount           decimal.Decimal `json:"cash_amount"`
	ExchangeRate         decimal.Decimal `json:"exchange_rate"`
	Status               string          `json:"status"`
	IsFirstWithdrawal    bool            `json:"is_first_withdrawal"`
	RequiresManualReview bool            `json:"requires_manual_review"`
	RiskLevel            string          `json:"risk_level"`
	LedgerEntryID        *uuid.UUID      `json:"ledger_entry_id,omitempty"`
	ReviewedBy           *string         `json:"reviewed_by,omitempty"`
	ReviewNote           *string         `json:"review_note,omitempty"`
	PayoutRef            *string         `json:"payout_ref,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	ReviewedAt           *time.Time      `json:"reviewed_at,omitempty"`
	TransferredAt        *time.Time      `json:"transferred_at,omitempty"`
}

func toWithdrawalDTO(w *domain.WithdrawalRequest) withdrawalDTO {
	return withdrawalDTO{
		ID:                   w.ID,
		UserID:               w.UserID,
		CreditsAmount:        w.CreditsAmount,
		CashAmount:           w.CashAmount,
		ExchangeRate:         w.ExchangeRate,
		Status:               string(w.Status),
		IsFirstWithdrawal:    w.IsFirstWithdrawal,
		RequiresManualReview: w.RequiresManualReview,
		RiskLevel:            string(w.RiskLevel),
		LedgerEntryID:        w.LedgerEntryID,
		ReviewedBy:           w.ReviewedBy,
		ReviewNote:           w.ReviewNote,
		PayoutRef:            w.PayoutRef,
		CreatedAt:            w.CreatedAt,
		ReviewedAt:           w.ReviewedAt,
		TransferredAt:        w.TransferredAt,
	}
}

type createWithdrawalRequest struct {
	Credits int64 `json:"credits"`
}

func (r createWithdrawalRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Credits <= 0 {
		errs = append(errs, FieldError{Field: "credits", Message: "must be greater than 0"})
	}
	return errs
}

func (h *WithdrawalHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, appErr := subjectFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req createWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	wr, err := h.withdrawals.Request(r.Context(), userID, req.Credits)
	if err != nil {
		logging.FromContext(r.Context()).Warn("withdrawal request refused", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toWithdrawalDTO(wr))
}

func (h *WithdrawalHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, appErr := subjectFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	limit, offset, fields := pagination(r)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	reqs, total, err := h.withdrawals.List(r.Context(), userID, limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list withdrawals", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]withdrawalDTO, len(reqs))
	for i := range reqs {
		dtos[i] = toWithdrawalDTO(&reqs[i])
	}
	RespondSuccess(w, http.StatusOK, page{Items: dtos, Total: total, Offset: offset})
}

func (h *WithdrawalHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	userID, appErr := subjectFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	e, err := h.withdrawals.Eligibility(r.Context(), userID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to compute eligibility", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, e)
}

func (h *WithdrawalHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, appErr := uuidFromPath(r, "withdrawal_id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	wr, err := h.withdrawals.Get(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toWithdrawalDTO(wr))
}

type reviewRequest struct {
	Reviewer string `json:"reviewer"`
	Note     string `json:"note"`
}

func (r reviewRequest) Validate(noteRequired bool) []FieldError {
	var errs []FieldError
	if r.Reviewer == "" {
		errs = append(errs, FieldError{Field: "reviewer", Message: "required"})
	}
	if noteRequired && r.Note == "" {
		errs = append(errs, FieldError{Field: "note", Message: "required when rejecting"})
	}
	return errs
}

func (h *WithdrawalHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, false, h.withdrawals.Approve)
}

func (h *WithdrawalHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, true, h.withdrawals.Reject)
}

func (h *WithdrawalHandler) review(
	w http.ResponseWriter,
	r *http.Request,
	noteRequired bool,
	decide func(ctx context.Context, id uuid.UUID, reviewer, note string) (*domain.WithdrawalRequest, error),
) {
	id, appErr := uuidFromPath(r, "withdrawal_id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(noteRequired); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	wr, err := decide(r.Context(), id, req.Reviewer, req.Note)
	if err != nil {
		logging.FromContext(r.Context()).Warn("withdrawal review failed", "withdrawal_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toWithdrawalDTO(wr))
}

type transferRequest struct {
	PayoutRef string `json:"payout_ref"`
}

func (h *WithdrawalHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	id, appErr := uuidFromPath(r, "withdrawal_id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if req.PayoutRef == "" {
		RespondValidationError(w, []FieldError{{Field: "payout_ref", Message: "required"}})
		return
	}

	wr, err := h.withdrawals.MarkTransferred(r.Context(), id, req.PayoutRef)
	if err != nil {
		logging.FromContext(r.Context()).Warn("withdrawal transfer failed", "withdrawal_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toWithdrawalDTO(wr))
}

type withdrawalConfigDTO struct {
	ExchangeRate          decimal.Decimal `json:"exchange_rate"`
	MinCredits            int64           `json:"min_credits"`
	MaxCreditsPerRequest  int64           `json:"max_credits_per_request"`
	MaxCreditsPerMonth    int64           `json:"max_credits_per_month"`
	CoolingPeriodDays     int             `json:"cooling_period_days"`
	FirstWithdrawalReview bool            `json:"first_withdrawal_review"`
	HighAmountThreshold   int64           `json:"high_amount_threshold"`
	UpdatedAt             *time.Time      `json:"updated_at,omitempty"`
}

func toConfigDTO(c domain.WithdrawalConfig) withdrawalConfigDTO {
	dto := withdrawalConfigDTO{
		ExchangeRate:          c.ExchangeRate,
		MinCredits:            c.MinCredits,
		MaxCreditsPerRequest:  c.MaxCreditsPerRequest,
		MaxCreditsPerMonth:    c.MaxCreditsPerMonth,
		CoolingPeriodDays:     c.CoolingPeriodDays,
		FirstWithdrawalReview: c.FirstWithdrawalReview,
		HighAmountThreshold:   c.HighAmountThreshold,
	}
	if !c.UpdatedAt.IsZero() {
		dto.UpdatedAt = &c.UpdatedAt
	}
	return dto
}

func (d withdrawalConfigDTO) toDomain() domain.WithdrawalConfig {
	return domain.WithdrawalConfig{
		ExchangeRate:          d.ExchangeRate,
		MinCredits:            d.MinCredits,
		MaxCreditsPerRequest:  d.MaxCreditsPerRequest,
		MaxCreditsPerMonth:    d.MaxCreditsPerMonth,
		CoolingPeriodDays:     d.CoolingPeriodDays,
		FirstWithdrawalReview: d.FirstWithdrawalReview,
		HighAmountThreshold:   d.HighAmountThreshold,
	}
}

func (h *WithdrawalHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.withdrawals.Config(r.Context())
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toConfigDTO(cfg))
}

func (h *WithdrawalHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req withdrawalConfigDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	cfg, err := h.withdrawals.UpdateConfig(r.Context(), req.toDomain())
	if err != nil {
		logging.FromContext(r.Context()).Warn("withdrawal config update refused", "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toConfigDTO(cfg))
}
