package payments

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nexusarena/payment-service/api/controllers/authcontext"
	"github.com/nexusarena/payment-service/api/responses"
	"github.com/nexusarena/payment-service/api/validators"
	paymentsvc "github.com/nexusarena/payment-service/internal/payments"
	"github.com/nexusarena/payment-service/pkg/db/models"
	pkgerrors "github.com/nexusarena/payment-service/pkg/errors"
	"github.com/nexusarena/payment-service/pkg/logger"
	"github.com/nexusarena/payment-service/pkg/pagination"
)

// Service describes the payment tracker operations used by the HTTP controllers.
type Service interface {
	CreatePayment(ctx context.Context, userID uuid.UUID, input paymentsvc.CreatePaymentInput) (*paymentsvc.CreatePaymentResult, error)
	ConfirmPayment(ctx context.Context, userID uuid.UUID, paymentIntentID, paymentMethod string) (*models.Payment, error)
	History(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[models.Payment], error)
	RefundPayment(ctx context.Context, userID uuid.UUID, input paymentsvc.RefundInput) (*paymentsvc.RefundResult, error)
	ListPaymentMethods(ctx context.Context, userID uuid.UUID) ([]paymentsvc.PaymentMethodSummary, error)
	AttachPaymentMethod(ctx context.Context, userID uuid.UUID, paymentMethodID string) (*paymentsvc.PaymentMethodSummary, error)
	DetachPaymentMethod(ctx context.Context, userID uuid.UUID, paymentMethodID string) error
}

type createIntentRequest struct {
	Amount             int64             `json:"amount" validate:"required"`
	Currency           string            `json:"currency,omitempty" validate:"omitempty,len=3"`
	Description        string            `json:"description,omitempty" validate:"max=500"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	PaymentMethodTypes []string          `json:"paymentMethodTypes,omitempty"`
}

type createIntentResponse struct {
	PaymentID    uuid.UUID `json:"paymentId"`
	ClientSecret string    `json:"clientSecret"`
	Amount       int64     `json:"amount"`
	Currency     string    `json:"currency"`
}

type confirmRequest struct {
	PaymentIntentID string `json:"paymentIntentId" validate:"required"`
	PaymentMethod   string `json:"paymentMethod" validate:"required"`
}

type confirmResponse struct {
	Status    string    `json:"status"`
	PaymentID uuid.UUID `json:"paymentId"`
}

type refundRequest struct {
	PaymentID string `json:"paymentId" validate:"required,uuid"`
	Amount    *int64 `json:"amount,omitempty" validate:"omitempty,gt=0"`
	Reason    string `json:"reason,omitempty" validate:"omitempty,oneof=duplicate fraudulent requested_by_customer"`
}

type refundResponse struct {
	RefundID string `json:"refundId"`
	Amount   int64  `json:"amount"`
	Status   string `json:"status"`
}

type paymentMethodRequest struct {
	PaymentMethodID string `json:"paymentMethodId" validate:"required"`
}

type paymentResponse struct {
	ID              uuid.UUID         `json:"id"`
	Amount          int64             `json:"amount"`
	Currency        string            `json:"currency"`
	Status          string            `json:"status"`
	PaymentMethod   *string           `json:"paymentMethod,omitempty"`
	PaymentIntentID *string           `json:"paymentIntentId,omitempty"`
	InvoiceID       *string           `json:"invoiceId,omitempty"`
	RefundedAmount  int64             `json:"refundedAmount"`
	Description     string            `json:"description,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

func CreateIntent(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}

		var payload createIntentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreatePayment(r.Context(), userID, paymentsvc.CreatePaymentInput{
			AmountCents:        payload.Amount,
			Currency:           payload.Currency,
			Description:        validators.SanitizeString(payload.Description, 500),
			Metadata:           payload.Metadata,
			PaymentMethodTypes: payload.PaymentMethodTypes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, createIntentResponse{
			PaymentID:    result.Payment.ID,
			ClientSecret: result.ClientSecret,
			Amount:       result.Payment.AmountCents,
			Currency:     string(result.Payment.Currency),
		})
	}
}

func Confirm(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}

		var payload confirmRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.ConfirmPayment(r.Context(), userID, payload.PaymentIntentID, payload.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, confirmResponse{Status: string(payment.Status), PaymentID: payment.ID})
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

		page, err := svc.History(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]paymentResponse, 0, len(page.Items))
		for i := range page.Items {
			items = append(items, newPaymentResponse(&page.Items[i]))
		}
		responses.WriteSuccess(w, pagination.Page[paymentResponse]{
			Items:  items,
			Total:  page.Total,
			Limit:  page.Limit,
			Offset: page.Offset,
		})
	}
}

func Refund(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}

		var payload refundRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentID, err := uuid.Parse(payload.PaymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid paymentId"))
			return
		}

		result, err := svc.RefundPayment(r.Context(), userID, paymentsvc.RefundInput{
			PaymentID:   paymentID,
			AmountCents: payload.Amount,
			Reason:      payload.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, refundResponse{
			RefundID: result.RefundID,
			Amount:   result.AmountCents,
			Status:   result.Status,
		})
	}
}

func ListMethods(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}
		methods, err := svc.ListPaymentMethods(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if methods == nil {
			methods = []paymentsvc.PaymentMethodSummary{}
		}
		responses.WriteSuccess(w, map[string]any{"paymentMethods": methods})
	}
}

func AttachMethod(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}

		var payload paymentMethodRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := svc.AttachPaymentMethod(r.Context(), userID, payload.PaymentMethodID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, method)
	}
}

func DetachMethod(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}

		methodID := strings.TrimSpace(chi.URLParam(r, "methodId"))
		if methodID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "methodId is required"))
			return
		}
		if err := svc.DetachPaymentMethod(r.Context(), userID, methodID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"detached": true})
	}
}

func resolve(w http.ResponseWriter, r *http.Request, svc Service, logg *logger.Logger) (uuid.UUID, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
		return uuid.Nil, false
	}
	userID, err := authcontext.ResolveUserID(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, false
	}
	return userID, true
}

func newPaymentResponse(p *models.Payment) paymentResponse {
	return paymentResponse{
		ID:              p.ID,
		Amount:          p.AmountCents,
		Currency:        string(p.Currency),
		Status:          string(p.Status),
		PaymentMethod:   p.PaymentMethod,
		PaymentIntentID: p.ProviderPaymentIntentID,
		InvoiceID:       p.ProviderInvoiceID,
		RefundedAmount:  p.RefundedAmountCents,
		Description:     p.Description,
		Metadata:        p.Metadata,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}
