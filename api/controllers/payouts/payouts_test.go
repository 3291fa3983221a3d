package payouts

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nexusarena/payment-service/api/middleware"
	"github.com/nexusarena/payment-service/internal/ledger"
	payoutsvc "github.com/nexusarena/payment-service/internal/payouts"
	"github.com/nexusarena/payment-service/pkg/db/models"
	"github.com/nexusarena/payment-service/pkg/enums"
	pkgerrors "github.com/nexusarena/payment-service/pkg/errors"
	"github.com/nexusarena/payment-service/pkg/pagination"
	"github.com/nexusarena/payment-service/pkg/types"
)

type stubService struct {
	requestInput payoutsvc.RequestInput
	requested    bool
	canceledID   uuid.UUID
	listFilter   payoutsvc.ListFilter
	balance      int64
	err          error
}

func (s *stubService) RequestPayout(_ context.Context, userID uuid.UUID, input payoutsvc.RequestInput) (*models.Payout, error) {
	s.requested = true
	s.requestInput = input
	if s.err != nil {
		return nil, s.err
	}
	arrival := time.Now().Add(48 * time.Hour).UTC()
	return &models.Payout{
		ID:               uuid.New(),
		UserID:           userID,
		AmountCents:      input.AmountCents,
		Currency:         enums.CurrencyUSD,
		Status:           enums.PayoutStatusProcessing,
		PayoutMethod:     enums.PayoutMethodBankAccount,
		EstimatedArrival: &arrival,
	}, nil
}

func (s *stubService) CancelPayout(_ context.Context, _ uuid.UUID, payoutID uuid.UUID) (*payoutsvc.CancelResult, error) {
	s.canceledID = payoutID
	if s.err != nil {
		return nil, s.err
	}
	return &payoutsvc.CancelResult{
		Payout:              &models.Payout{ID: payoutID, Status: enums.PayoutStatusCanceled, AmountCents: 3000},
		RefundedAmountCents: 3000,
	}, nil
}

func (s *stubService) ListPayouts(_ context.Context, _ uuid.UUID, filter payoutsvc.ListFilter) (pagination.Page[models.Payout], error) {
	s.listFilter = filter
	return pagination.NewPage[models.Payout](nil, 0, filter.Params), s.err
}

func (s *stubService) GetPayout(_ context.Context, _ uuid.UUID, payoutID uuid.UUID) (*models.Payout, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Payout{ID: payoutID, Status: enums.PayoutStatusPaid, AmountCents: 3000, Currency: enums.CurrencyUSD}, nil
}

func (s *stubService) GetBalance(_ context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Wallet{UserID: userID, BalanceCents: s.balance, Currency: enums.CurrencyUSD}, nil
}

func (s *stubService) CreateConnectAccount(context.Context, uuid.UUID, payoutsvc.ConnectAccountInput) (*payoutsvc.ConnectAccountResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &payoutsvc.ConnectAccountResult{AccountID: "acct_123", OnboardingURL: "https://connect.example/onboard"}, nil
}

func (s *stubService) AccountStatus(context.Context, uuid.UUID) (*payoutsvc.AccountStatus, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &payoutsvc.AccountStatus{Status: "active", PayoutsEnabled: true}, nil
}

type stubLister struct {
	filter ledger.TransactionFilter
	items  []models.WalletTransaction
}

func (s *stubLister) ListTransactions(_ context.Context, _ uuid.UUID, filter ledger.TransactionFilter) (pagination.Page[models.WalletTransaction], error) {
	s.filter = filter
	return pagination.NewPage(s.items, int64(len(s.items)), filter.Params), nil
}

func authedRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	return req.WithContext(middleware.WithUserID(req.Context(), uuid.NewString()))
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func TestRequestPayoutCreated(t *testing.T) {
	svc := &stubService{}
	tournamentID := uuid.New()
	rec := httptest.NewRecorder()
	Request(svc, nil).ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/payouts/request", map[string]any{
		"amount":       3000,
		"tournamentId": tournamentID.String(),
		"payoutMethod": "bank_account",
	}))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.requestInput.TournamentID == nil || *svc.requestInput.TournamentID != tournamentID {
		t.Fatalf("expected tournament id forwarded, got %+v", svc.requestInput)
	}
	var resp requestPayoutResponse
	decodeData(t, rec, &resp)
	if resp.Amount != 3000 || resp.Status != "processing" || resp.EstimatedArrival == nil {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestRequestPayoutInsufficientFunds(t *testing.T) {
	svc := &stubService{err: pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient balance")}
	rec := httptest.NewRecorder()
	Request(svc, nil).ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/payouts/request", map[string]any{"amount": 500}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var envelope types.ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Error.Code != string(pkgerrors.CodeInsufficientFunds) {
		t.Fatalf("unexpected code %s", envelope.Error.Code)
	}
}

func TestRequestPayoutRejectsUnknownMethod(t *testing.T) {
	svc := &stubService{}
	rec := httptest.NewRecorder()
	Request(svc, nil).ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/payouts/request", map[string]any{
		"amount":       3000,
		"payoutMethod": "wire",
	}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if svc.requested {
		t.Fatal("service must not be called for invalid input")
	}
}

func TestCancelPayoutReturnsRefundedAmount(t *testing.T) {
	svc := &stubService{}
	router := chi.NewRouter()
	router.Post("/api/v1/payouts/{payoutId}/cancel", Cancel(svc, nil))

	payoutID := uuid.New()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/payouts/"+payoutID.String()+"/cancel", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.canceledID != payoutID {
		t.Fatalf("expected %s canceled, got %s", payoutID, svc.canceledID)
	}
	var resp cancelPayoutResponse
	decodeData(t, rec, &resp)
	if resp.Status != "canceled" || resp.RefundedAmount != 3000 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestCancelPayoutInvalidState(t *testing.T) {
	svc := &stubService{err: pkgerrors.New(pkgerrors.CodeInvalidState, "payout can no longer be canceled")}
	router := chi.NewRouter()
	router.Post("/api/v1/payouts/{payoutId}/cancel", Cancel(svc, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/payouts/"+uuid.NewString()+"/cancel", nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestDetailRejectsMalformedID(t *testing.T) {
	router := chi.NewRouter()
	router.Get("/api/v1/payouts/{payoutId}", Detail(&stubService{}, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/payouts/not-a-uuid", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHistoryFiltersByStatus(t *testing.T) {
	svc := &stubService{}
	rec := httptest.NewRecorder()
	History(svc, nil).ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/payouts/history?status=paid", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.listFilter.Status == nil || *svc.listFilter.Status != enums.PayoutStatusPaid {
		t.Fatalf("expected paid filter, got %+v", svc.listFilter)
	}
	if svc.listFilter.Limit != pagination.DefaultLimit {
		t.Fatalf("expected default limit, got %d", svc.listFilter.Limit)
	}
}

func TestHistoryRejectsUnknownStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	History(&stubService{}, nil).ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/payouts/history?status=lost", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestBalanceFormatsAmount(t *testing.T) {
	rec := httptest.NewRecorder()
	Balance(&stubService{balance: 700000}, nil).ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/payouts/balance", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp balanceResponse
	decodeData(t, rec, &resp)
	if resp.Balance != 700000 || resp.BalanceFormatted != "$7,000.00" || resp.Currency != "USD" {
		t.Fatalf("unexpected balance %+v", resp)
	}
}

func TestTransactionsFilterByType(t *testing.T) {
	lister := &stubLister{items: []models.WalletTransaction{{
		ID:                uuid.New(),
		Type:              enums.WalletTransactionDeposit,
		AmountCents:       10000,
		BalanceAfterCents: 10000,
	}}}
	rec := httptest.NewRecorder()
	Transactions(&stubService{}, lister, nil).ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/payouts/transactions?type=deposit", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if lister.filter.Type == nil || *lister.filter.Type != enums.WalletTransactionDeposit {
		t.Fatalf("expected deposit filter, got %+v", lister.filter)
	}
	var page pagination.Page[transactionResponse]
	decodeData(t, rec, &page)
	if len(page.Items) != 1 || page.Items[0].BalanceAfter != 10000 {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestTransactionsRejectsUnknownType(t *testing.T) {
	rec := httptest.NewRecorder()
	Transactions(&stubService{}, &stubLister{}, nil).ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/payouts/transactions?type=bonus", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestConnectAccountValidatesCountry(t *testing.T) {
	rec := httptest.NewRecorder()
	ConnectAccount(&stubService{}, nil).ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/payouts/connect-account", map[string]any{
		"country": "USA",
		"email":   "player@nexusarena.gg",
	}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	ConnectAccount(&stubService{}, nil).ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/payouts/connect-account", map[string]any{
		"country": "US",
		"email":   "player@nexusarena.gg",
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var resp payoutsvc.ConnectAccountResult
	decodeData(t, rec, &resp)
	if resp.AccountID != "acct_123" {
		t.Fatalf("unexpected account %+v", resp)
	}
}
