package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/credit-ledger/internal/auth"
	"github.com/josh-kwaku/credit-ledger/internal/domain"
	"github.com/josh-kwaku/credit-ledger/internal/service/credit"
)

type fakeCredits struct {
	consumed  *credit.ConsumeRequest
	featured  *credit.FeatureConsumeRequest
	granted   *credit.GrantRequest
	result    *credit.ConsumeResult
	err       error
	prices    map[string]int64
	createErr error
}

func (f *fakeCredits) CreateAccount(_ context.Context, userID uuid.UUID) (*domain.Account, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &domain.Account{UserID: userID, Status: domain.AccountStatusActive}, nil
}

func (f *fakeCredits) Consume(_ context.Context, req credit.ConsumeRequest) (*credit.ConsumeResult, error) {
	f.consumed = &req
	return f.result, f.err
}

func (f *fakeCredits) ConsumeFeature(_ context.Context, req credit.FeatureConsumeRequest) (*credit.ConsumeResult, error) {
	f.featured = &req
	return f.result, f.err
}

func (f *fakeCredits) Refund(context.Context, credit.RefundRequest) (*domain.LedgerEntry, error) {
	return nil, f.err
}

func (f *fakeCredits) RefundConsumption(context.Context, uuid.UUID, []uuid.UUID, string) ([]domain.LedgerEntry, error) {
	return nil, f.err
}

func (f *fakeCredits) Grant(_ context.Context, req credit.GrantRequest) (*domain.LedgerEntry, error) {
	f.granted = &req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.LedgerEntry{ID: uuid.New(), UserID: req.UserID, Category: req.Category, Amount: req.Amount}, nil
}

func (f *fakeCredits) Price(feature, tier string) (int64, error) {
	cost, ok := f.prices[feature+"/"+tier]
	if !ok {
		return 0, domain.ErrUnknownFeature
	}
	return cost, nil
}

func serviceRequest(method, target, body string, userID uuid.UUID) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	r.SetPathValue("id", userID.String())
	return r.WithContext(auth.ContextWithService(r.Context()))
}

func TestConsume_ByCost(t *testing.T) {
	userID := uuid.New()
	fake := &fakeCredits{result: &credit.ConsumeResult{
		Entries: []domain.LedgerEntry{
			{Category: domain.CategoryPromo, Amount: -30},
			{Category: domain.CategorySub, Amount: -20},
		},
		Balance: 50,
	}}
	h := NewInternalHandler(fake)

	rec := httptest.NewRecorder()
	h.Consume(rec, serviceRequest(http.MethodPost, "/consume",
		`{"cost":50,"description":"image","reference":{"type":"generation","id":"gen-1"}}`, userID))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, fake.consumed)
	assert.Equal(t, userID, fake.consumed.UserID)
	assert.Equal(t, int64(50), fake.consumed.Cost)
	assert.Equal(t, &domain.Reference{Type: "generation", ID: "gen-1"}, fake.consumed.Reference)

	data := decode(t, rec).Data.(map[string]any)
	assert.EqualValues(t, 50, data["cost"])
	assert.EqualValues(t, 50, data["balance"])
	assert.Len(t, data["entries"], 2)
}

func TestConsume_ByFeature(t *testing.T) {
	fake := &fakeCredits{result: &credit.ConsumeResult{}}
	h := NewInternalHandler(fake)

	rec := httptest.NewRecorder()
	h.Consume(rec, serviceRequest(http.MethodPost, "/consume", `{"feature_code":"video","tier":"hd"}`, uuid.New()))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Nil(t, fake.consumed)
	require.NotNil(t, fake.featured)
	assert.Equal(t, "video", fake.featured.FeatureCode)
	assert.Equal(t, "hd", fake.featured.Tier)
}

func TestConsume_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no cost or feature", `{}`},
		{"negative cost", `{"cost":-5}`},
		{"cost and feature", `{"cost":5,"feature_code":"video"}`},
		{"tier without feature", `{"cost":5,"tier":"hd"}`},
		{"half reference", `{"cost":5,"reference":{"type":"generation"}}`},
		{"reserved reference", `{"cost":5,"reference":{"type":"reconciliation","id":"gen-1"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeCredits{}
			rec := httptest.NewRecorder()
			NewInternalHandler(fake).Consume(rec, serviceRequest(http.MethodPost, "/consume", tt.body, uuid.New()))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "VALIDATION_FAILED", decode(t, rec).Error.Code)
			assert.Nil(t, fake.consumed)
			assert.Nil(t, fake.featured)
		})
	}
}

func TestConsume_InsufficientBalance(t *testing.T) {
	fake := &fakeCredits{err: domain.ErrInsufficientBalance}
	rec := httptest.NewRecorder()
	NewInternalHandler(fake).Consume(rec, serviceRequest(http.MethodPost, "/consume", `{"cost":500}`, uuid.New()))

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "INSUFFICIENT_CREDITS", decode(t, rec).Error.Code)
}

func TestGrant_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{"paid purchase", `{"category":"PAID","amount":500,"type":"purchase"}`, true},
		{"bonus with maturity", `{"category":"BONUS","amount":50,"type":"referral_bonus","available_at":"2026-04-01T00:00:00Z"}`, true},
		{"unknown category", `{"category":"GOLD","amount":5,"type":"purchase"}`, false},
		{"debit type", `{"category":"PAID","amount":5,"type":"consume"}`, false},
		{"zero amount", `{"category":"PAID","amount":0,"type":"purchase"}`, false},
		{"maturity outside bonus", `{"category":"PROMO","amount":5,"type":"promo_grant","available_at":"2026-04-01T00:00:00Z"}`, false},
		{"reserved reference", `{"category":"BONUS","amount":50,"type":"referral_bonus","reference":{"type":"reconciliation","id":"r-1"}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeCredits{}
			rec := httptest.NewRecorder()
			NewInternalHandler(fake).Grant(rec, serviceRequest(http.MethodPost, "/grants", tt.body, uuid.New()))

			if tt.ok {
				assert.Equal(t, http.StatusCreated, rec.Code)
				assert.NotNil(t, fake.granted)
				return
			}
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Nil(t, fake.granted)
		})
	}
}

func TestCreateAccount_Conflict(t *testing.T) {
	fake := &fakeCredits{createErr: domain.ErrAccountExists}
	rec := httptest.NewRecorder()
	NewInternalHandler(fake).CreateAccount(rec, serviceRequest(http.MethodPost, "/account", "", uuid.New()))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPrice(t *testing.T) {
	fake := &fakeCredits{prices: map[string]int64{"video/hd": 40}}
	h := NewInternalHandler(fake)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/internal/pricing/video?tier=hd", nil)
	r.SetPathValue("feature", "video")
	rec := httptest.NewRecorder()
	h.Price(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 40, decode(t, rec).Data.(map[string]any)["cost"])

	r = httptest.NewRequest(http.MethodGet, "/api/v1/internal/pricing/unknown", nil)
	r.SetPathValue("feature", "unknown")
	rec = httptest.NewRecorder()
	h.Price(rec, r)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
