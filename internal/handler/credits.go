package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/credit-ledger/internal/domain"
	"github.com/josh-kwaku/credit-ledger/internal/logging"
	"github.com/josh-kwaku/credit-ledger/internal/service/credit"
)

type creditReader interface {
	GetAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	History(ctx context.Context, userID uuid.UUID, f credit.HistoryFilter) ([]domain.LedgerEntry, int, error)
}

type CreditHandler struct {
	credits creditReader
}

func NewCreditHandler(credits creditReader) *CreditHandler {
	return &CreditHandler{credits: credits}
}

type balanceDTO struct {
	UserID     uuid.UUID                 `json:"user_id"`
	Total      int64                     `json:"total"`
	Categories map[domain.Category]int64 `json:"categories"`
	Status     string                    `json:"status"`
	UpdatedAt  time.Time                 `json:"updated_at"`
}

func toBalanceDTO(a *domain.Account) balanceDTO {
	cats := make(map[domain.Category]int64, len(domain.Categories))
	for _, c := range domain.Categories {
		cats[c] = a.Balance(c)
	}
	return balanceDTO{
		UserID:     a.UserID,
		Total:      a.TotalBalance,
		Categories: cats,
		Status:     string(a.Status),
		UpdatedAt:  a.UpdatedAt,
	}
}

type entryDTO struct {
	ID              uuid.UUID       `json:"id"`
	Category        string          `json:"category"`
	TransactionType string          `json:"transaction_type"`
	Amount          int64           `json:"amount"`
	BalanceBefore   int64           `json:"balance_before"`
	BalanceAfter    int64           `json:"balance_after"`
	ReferenceType   *string         `json:"reference_type,omitempty"`
	ReferenceID     *string         `json:"reference_id,omitempty"`
	Description     string          `json:"description"`
	Metadata        domain.Metadata `json:"metadata,omitempty"`
	AvailableAt     *time.Time      `json:"available_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

func toEntryDTO(e *domain.LedgerEntry) entryDTO {
	return entryDTO{
		ID:              e.ID,
		Category:        string(e.Category),
		TransactionType: string(e.TransactionType),
		Amount:          e.Amount,
		BalanceBefore:   e.BalanceBefore,
		BalanceAfter:    e.BalanceAfter,
		ReferenceType:   e.ReferenceType,
		ReferenceID:     e.ReferenceID,
		Description:     e.Description,
		Metadata:        e.Metadata,
		AvailableAt:     e.AvailableAt,
		CreatedAt:       e.CreatedAt,
	}
}

func toEntryDTOs(entries []domain.LedgerEntry) []entryDTO {
	dtos := make([]entryDTO, len(entries))
	for i := range entries {
		dtos[i] = toEntryDTO(&entries[i])
	}
	return dtos
}

func (h *CreditHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, appErr := subjectFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	account, err := h.credits.GetAccount(r.Context(), userID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to get balance", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toBalanceDTO(account))
}

func (h *CreditHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, appErr := subjectFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	limit, offset, fields := pagination(r)
	f := credit.HistoryFilter{
		Limit:  limit,
		Offset: offset,
		From:   timeQuery(r, "from", &fields),
		To:     timeQuery(r, "to", &fields),
	}
	if v := r.URL.Query().Get("category"); v != "" {
		c := domain.Category(v)
		if !c.IsValid() {
			fields = append(fields, FieldError{Field: "category", Message: "must be PROMO, SUB, PAID or BONUS"})
		}
		f.Category = &c
	}
	if v := r.URL.Query().Get("type"); v != "" {
		t := domain.TransactionType(v)
		if !t.IsValid() {
			fields = append(fields, FieldError{Field: "type", Message: "unknown transaction type"})
		}
		f.Type = &t
	}
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	entries, total, err := h.credits.History(r.Context(), userID, f)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list transactions", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, page{
		Items:  toEntryDTOs(entries),
		Total:  total,
		Offset: offset,
	})
}
