package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/credit-ledger/internal/domain"
	"github.com/josh-kwaku/credit-ledger/internal/logging"
	"github.com/josh-kwaku/credit-ledger/internal/service/credit"
)

type creditWriter interface {
	CreateAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	Consume(ctx context.Context, req credit.ConsumeRequest) (*credit.ConsumeResult, error)
	ConsumeFeature(ctx context.Context, req credit.FeatureConsumeRequest) (*credit.ConsumeResult, error)
	Refund(ctx context.Context, req credit.RefundRequest) (*domain.LedgerEntry, error)
	RefundConsumption(ctx context.Context, userID uuid.UUID, entryIDs []uuid.UUID, reason string) ([]domain.LedgerEntry, error)
	Grant(ctx context.Context, req credit.GrantRequest) (*domain.LedgerEntry, error)
	Price(feature, tier string) (int64, error)
}

// InternalHandler serves the collaborator endpoints: the generation pipeline,
// billing and referral services move credits through it.
type InternalHandler struct {
	credits creditWriter
}

func NewInternalHandler(credits creditWriter) *InternalHandler {
	return &InternalHandler{credits: credits}
}

type referenceDTO struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (r *referenceDTO) toDomain() *domain.Reference {
	if r == nil {
		return nil
	}
	return &domain.Reference{Type: r.Type, ID: r.ID}
}

func validateReference(r *referenceDTO, errs []FieldError) []FieldError {
	switch {
	case r == nil:
	case r.Type == "" || r.ID == "":
		errs = append(errs, FieldError{Field: "reference", Message: "type and id are both required"})
	case r.Type == domain.ReferenceReconciliation:
		errs = append(errs, FieldError{Field: "reference.type", Message: "is reserved for ledger repairs"})
	}
	return errs
}

type consumeRequest struct {
	Cost        int64           `json:"cost"`
	FeatureCode string          `json:"feature_code"`
	Tier        string          `json:"tier"`
	Description string          `json:"description"`
	Reference   *referenceDTO   `json:"reference"`
	Metadata    domain.Metadata `json:"metadata"`
}

func (r consumeRequest) Validate() []FieldError {
	var errs []FieldError
	switch {
	case r.FeatureCode == "" && r.Cost <= 0:
		errs = append(errs, FieldError{Field: "cost", Message: "must be greater than 0 when feature_code is absent"})
	case r.FeatureCode != "" && r.Cost != 0:
		errs = append(errs, FieldError{Field: "cost", Message: "must be omitted when feature_code is set"})
	}
	if r.Tier != "" && r.FeatureCode == "" {
		errs = append(errs, FieldError{Field: "tier", Message: "requires feature_code"})
	}
	return validateReference(r.Reference, errs)
}

type consumeResponse struct {
	Entries []entryDTO `json:"entries"`
	Cost    int64      `json:"cost"`
	Balance int64      `json:"balance"`
}

func (h *InternalHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, appErr := subjectFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	account, err := h.credits.CreateAccount(r.Context(), userID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to create credit account", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toBalanceDTO(account))
}

func (h *InternalHandler) Consume(w http.ResponseWriter, r *http.Request) {
	userID, appErr := subjectFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req consumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	var (
		result *credit.ConsumeResult
		err    error
	)
	if req.FeatureCode != "" {
		result, err = h.credits.ConsumeFeature(r.Context(), credit.FeatureConsumeRequest{
			UserID:      userID,
			FeatureCode: req.FeatureCode,
			Tier:        req.Tier,
			Description: req.Description,
			Reference:   req.Reference.toDomain(),
			Metadata:    req.Metadata,
		})
	} else {
		result, err = h.credits.Consume(r.Context(), credit.ConsumeRequest{
			UserID:      userID,
			Cost:        req.Cost,
			Description: req.Description,
			Reference:   req.Reference.toDomain(),
			Metadata:    req.Metadata,
		})
	}
	if err != nil {
		logging.FromContext(r.Context()).Warn("consume failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	var cost int64
	for _, e := range result.Entries {
		cost -= e.Amount
	}
	RespondSuccess(w, http.StatusCreated, consumeResponse{
		Entries: toEntryDTOs(result.Entries),
		Cost:    cost,
		Balance: result.Balance,
	})
}

type refundRequest struct {
	OriginalEntryID uuid.UUID `json:"original_entry_id"`
	Amount          int64     `json:"amount"`
	Description     string    `json:"description"`
}

func (r refundRequest) Validate() []FieldError {
	var errs []FieldError
	if r.OriginalEntryID == uuid.Nil {
		errs = append(errs, FieldError{Field: "original_entry_id", Message: "required"})
	}
	if r.Amount <= 0 {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}
	return errs
}

func (h *InternalHandler) Refund(w http.ResponseWriter, r *http.Request) {
	userID, appErr := subjectFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	entry, err := h.credits.Refund(r.Context(), credit.RefundRequest{
		UserID:          userID,
		OriginalEntryID: req.OriginalEntryID,
		Amount:          req.Amount,
		Description:     req.Description,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("refund failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toEntryDTO(entry))
}

type consumptionRefundRequest struct {
	EntryIDs []uuid.UUID `json:"entry_ids"`
	Reason   string      `json:"reason"`
}

func (r consumptionRefundRequest) Validate() []FieldError {
	var errs []FieldError
	if len(r.EntryIDs) == 0 {
		errs = append(errs, FieldError{Field: "entry_ids", Message: "required"})
	}
	for _, id := range r.EntryIDs {
		if id == uuid.Nil {
			errs = append(errs, FieldError{Field: "entry_ids", Message: "must not contain the nil uuid"})
			break
		}
	}
	if r.Reason == "" {
		errs = append(errs, FieldError{Field: "reason", Message: "required"})
	}
	return errs
}

func (h *InternalHandler) RefundConsumption(w http.ResponseWriter, r *http.Request) {
	userID, appErr := subjectFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req consumptionRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	refunds, err := h.credits.RefundConsumption(r.Context(), userID, req.EntryIDs, req.Reason)
	if err != nil {
		logging.FromContext(r.Context()).Warn("consumption refund failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toEntryDTOs(refunds))
}

type grantRequest struct {
	Category    string          `json:"category"`
	Amount      int64           `json:"amount"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Reference   *referenceDTO   `json:"reference"`
	Metadata    domain.Metadata `json:"metadata"`
	AvailableAt *time.Time      `json:"available_at"`
}

func (r grantRequest) Validate() []FieldError {
	var errs []FieldError
	if !domain.Category(r.Category).IsValid() {
		errs = append(errs, FieldError{Field: "category", Message: "must be PROMO, SUB, PAID or BONUS"})
	}
	if r.Amount <= 0 {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}
	if !domain.TransactionType(r.Type).IsCredit() {
		errs = append(errs, FieldError{Field: "type", Message: "must be a grant type"})
	}
	if r.AvailableAt != nil && domain.Category(r.Category) != domain.CategoryBonus {
		errs = append(errs, FieldError{Field: "available_at", Message: "only applies to BONUS"})
	}
	return validateReference(r.Reference, errs)
}

func (h *InternalHandler) Grant(w http.ResponseWriter, r *http.Request) {
	userID, appErr := subjectFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	entry, err := h.credits.Grant(r.Context(), credit.GrantRequest{
		UserID:      userID,
		Category:    domain.Category(req.Category),
		Amount:      req.Amount,
		Type:        domain.TransactionType(req.Type),
		Reference:   req.Reference.toDomain(),
		Description: req.Description,
		Metadata:    req.Metadata,
		AvailableAt: req.AvailableAt,
	})
	if err != nil {
		logging.FromContext(r.Context()).Error("grant failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toEntryDTO(entry))
}

func (h *InternalHandler) Price(w http.ResponseWriter, r *http.Request) {
	feature := r.PathValue("feature")
	tier := r.URL.Query().Get("tier")

	cost, err := h.credits.Price(feature, tier)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"feature_code": feature,
		"tier":         tier,
		"cost":         cost,
	})
}
