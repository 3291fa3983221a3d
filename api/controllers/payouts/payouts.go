package payouts

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nexusarena/payment-service/api/controllers/authcontext"
	"github.com/nexusarena/payment-service/api/responses"
	"github.com/nexusarena/payment-service/api/validators"
	"github.com/nexusarena/payment-service/internal/ledger"
	payoutsvc "github.com/nexusarena/payment-service/internal/payouts"
	"github.com/nexusarena/payment-service/pkg/db/models"
	"github.com/nexusarena/payment-service/pkg/enums"
	pkgerrors "github.com/nexusarena/payment-service/pkg/errors"
	"github.com/nexusarena/payment-service/pkg/logger"
	"github.com/nexusarena/payment-service/pkg/money"
	"github.com/nexusarena/payment-service/pkg/pagination"
)

// Service describes the payout engine operations used by the HTTP controllers.
type Service interface {
	RequestPayout(ctx context.Context, userID uuid.UUID, input payoutsvc.RequestInput) (*models.Payout, error)
	CancelPayout(ctx context.Context, userID, payoutID uuid.UUID) (*payoutsvc.CancelResult, error)
	ListPayouts(ctx context.Context, userID uuid.UUID, filter payoutsvc.ListFilter) (pagination.Page[models.Payout], error)
	GetPayout(ctx context.Context, userID, payoutID uuid.UUID) (*models.Payout, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	CreateConnectAccount(ctx context.Context, userID uuid.UUID, input payoutsvc.ConnectAccountInput) (*payoutsvc.ConnectAccountResult, error)
	AccountStatus(ctx context.Context, userID uuid.UUID) (*payoutsvc.AccountStatus, error)
}

// TransactionLister exposes the wallet ledger history.
type TransactionLister interface {
	ListTransactions(ctx context.Context, userID uuid.UUID, filter ledger.TransactionFilter) (pagination.Page[models.WalletTransaction], error)
}

type requestPayoutRequest struct {
	Amount       int64  `json:"amount" validate:"required"`
	Currency     string `json:"currency,omitempty" validate:"omitempty,len=3"`
	TournamentID string `json:"tournamentId,omitempty" validate:"omitempty,uuid"`
	Description  string `json:"description,omitempty" validate:"max=500"`
	PayoutMethod string `json:"payoutMethod,omitempty" validate:"omitempty,oneof=bank_account card paypal crypto"`
}

type requestPayoutResponse struct {
	PayoutID         uuid.UUID  `json:"payoutId"`
	Amount           int64      `json:"amount"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	EstimatedArrival *time.Time `json:"estimatedArrival,omitempty"`
}

type cancelPayoutResponse struct {
	PayoutID       uuid.UUID `json:"payoutId"`
	Status         string    `json:"status"`
	RefundedAmount int64     `json:"refundedAmount"`
}

type connectAccountRequest struct {
	Country      string `json:"country" validate:"required,len=2"`
	Email        string `json:"email" validate:"required,email"`
	BusinessType string `json:"businessType,omitempty" validate:"omitempty,oneof=individual company"`
}

type balanceResponse struct {
	Balance          int64  `json:"balance"`
	BalanceFormatted string `json:"balanceFormatted"`
	Currency         string `json:"currency"`
}

type payoutResponse struct {
	ID               uuid.UUID  `json:"id"`
	TournamentID     *uuid.UUID `json:"tournamentId,omitempty"`
	Amount           int64      `json:"amount"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	PayoutMethod     string     `json:"payoutMethod"`
	ProviderPayoutID *string    `json:"providerPayoutId,omitempty"`
	Description      string     `json:"description,omitempty"`
	FailureReason    *string    `json:"failureReason,omitempty"`
	EstimatedArrival *time.Time `json:"estimatedArrival,omitempty"`
	ProcessedAt      *time.Time `json:"processedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

type transactionResponse struct {
	ID            uuid.UUID  `json:"id"`
	Type          string     `json:"type"`
	Amount        int64      `json:"amount"`
	BalanceAfter  int64      `json:"balanceAfter"`
	Description   string     `json:"description,omitempty"`
	ReferenceID   *uuid.UUID `json:"referenceId,omitempty"`
	ReferenceType *string    `json:"referenceType,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func Request(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}

		var payload requestPayoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := payoutsvc.RequestInput{
			AmountCents:  payload.Amount,
			Currency:     payload.Currency,
			PayoutMethod: payload.PayoutMethod,
			Description:  validators.SanitizeString(payload.Description, 500),
		}
		if payload.TournamentID != "" {
			tournamentID, err := uuid.Parse(payload.TournamentID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tournamentId"))
				return
			}
			input.TournamentID = &tournamentID
		}

		payout, err := svc.RequestPayout(r.Context(), userID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, requestPayoutResponse{
			PayoutID:         payout.ID,
			Amount:           payout.AmountCents,
			Currency:         string(payout.Currency),
			Status:           string(payout.Status),
			EstimatedArrival: payout.EstimatedArrival,
		})
	}
}

func Cancel(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}
		payoutID, err := validators.ParseUUIDParam(r, "payoutId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CancelPayout(r.Context(), userID, payoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cancelPayoutResponse{
			PayoutID:       result.Payout.ID,
			Status:         string(result.Payout.Status),
			RefundedAmount: result.RefundedAmountCents,
		})
	}
}

func History(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}
		params, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rawStatus, err := validators.ParseQueryEnum(r, "status",
			string(enums.PayoutStatusPending),
			string(enums.PayoutStatusProcessing),
			string(enums.PayoutStatusPaid),
			string(enums.PayoutStatusFailed),
			string(enums.PayoutStatusCanceled),
		)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := payoutsvc.ListFilter{Params: params}
		if rawStatus != "" {
			status := enums.PayoutStatus(rawStatus)
			filter.Status = &status
		}

		page, err := svc.ListPayouts(r.Context(), userID, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]payoutResponse, 0, len(page.Items))
		for i := range page.Items {
			items = append(items, newPayoutResponse(&page.Items[i]))
		}
		responses.WriteSuccess(w, pagination.Page[payoutResponse]{Items: items, Total: page.Total, Limit: page.Limit, Offset: page.Offset})
	}
}

func Detail(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}
		payoutID, err := validators.ParseUUIDParam(r, "payoutId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payout, err := svc.GetPayout(r.Context(), userID, payoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPayoutResponse(payout))
	}
}

func Balance(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}
		wallet, err := svc.GetBalance(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		currency := string(wallet.Currency)
		if currency == "" {
			currency = string(enums.CurrencyUSD)
		}
		responses.WriteSuccess(w, balanceResponse{
			Balance:          wallet.BalanceCents,
			BalanceFormatted: money.Format(wallet.BalanceCents, currency),
			Currency:         currency,
		})
	}
}

func Transactions(svc Service, lister TransactionLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}
		if lister == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}
		params, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := ledger.TransactionFilter{Params: params}
		if raw := r.URL.Query().Get("type"); raw != "" {
			txType, parseErr := enums.ParseWalletTransactionType(raw)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "unsupported transaction type").WithDetails(map[string]any{"field": "type"}))
				return
			}
			filter.Type = &txType
		}

		page, err := lister.ListTransactions(r.Context(), userID, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]transactionResponse, 0, len(page.Items))
		for _, entry := range page.Items {
			item := transactionResponse{
				ID:           entry.ID,
				Type:         string(entry.Type),
				Amount:       entry.AmountCents,
				BalanceAfter: entry.BalanceAfterCents,
				Description:  entry.Description,
				ReferenceID:  entry.ReferenceID,
				CreatedAt:    entry.CreatedAt,
			}
			if entry.ReferenceType != nil {
				refType := string(*entry.ReferenceType)
				item.ReferenceType = &refType
			}
			items = append(items, item)
		}
		responses.WriteSuccess(w, pagination.Page[transactionResponse]{Items: items, Total: page.Total, Limit: page.Limit, Offset: page.Offset})
	}
}

func ConnectAccount(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}
		var payload connectAccountRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.CreateConnectAccount(r.Context(), userID, payoutsvc.ConnectAccountInput{
			Country:      payload.Country,
			Email:        payload.Email,
			BusinessType: payload.BusinessType,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func AccountStatus(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}
		status, err := svc.AccountStatus(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

func resolve(w http.ResponseWriter, r *http.Request, svc Service, logg *logger.Logger) (uuid.UUID, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
		return uuid.Nil, false
	}
	userID, err := authcontext.ResolveUserID(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, false
	}
	return userID, true
}

func newPayoutResponse(p *models.Payout) payoutResponse {
	return payoutResponse{
		ID:               p.ID,
		TournamentID:     p.TournamentID,
		Amount:           p.AmountCents,
		Currency:         string(p.Currency),
		Status:           string(p.Status),
		PayoutMethod:     string(p.PayoutMethod),
		ProviderPayoutID: p.ProviderPayoutID,
		Description:      p.Description,
		FailureReason:    p.FailureReason,
		EstimatedArrival: p.EstimatedArrival,
		ProcessedAt:      p.ProcessedAt,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}
