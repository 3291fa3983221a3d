package subscriptions

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nexusarena/payment-service/api/controllers/authcontext"
	"github.com/nexusarena/payment-service/api/responses"
	"github.com/nexusarena/payment-service/api/validators"
	subsvc "github.com/nexusarena/payment-service/internal/subscriptions"
	"github.com/nexusarena/payment-service/pkg/db/models"
	"github.com/nexusarena/payment-service/pkg/enums"
	pkgerrors "github.com/nexusarena/payment-service/pkg/errors"
	"github.com/nexusarena/payment-service/pkg/logger"
)

// Service describes the subscription tracker operations used by the HTTP controllers.
type Service interface {
	Plans() []subsvc.Plan
	Create(ctx context.Context, userID uuid.UUID, input subsvc.CreateInput) (*models.Subscription, error)
	UpdatePlan(ctx context.Context, userID uuid.UUID, planID string) (*models.Subscription, error)
	Cancel(ctx context.Context, userID uuid.UUID, immediate bool) (*models.Subscription, error)
	Reactivate(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	Current(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	History(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error)
}

type createRequest struct {
	PlanID          string `json:"planId" validate:"required,oneof=basic pro premium"`
	PaymentMethodID string `json:"paymentMethodId" validate:"required"`
}

type updateRequest struct {
	PlanID string `json:"planId" validate:"required,oneof=basic pro premium"`
}

type cancelRequest struct {
	Immediate bool `json:"immediate"`
}

type subscriptionResponse struct {
	ID                     uuid.UUID    `json:"subscriptionId"`
	ProviderSubscriptionID string       `json:"providerSubscriptionId"`
	PlanID                 string       `json:"planId"`
	Plan                   *subsvc.Plan `json:"plan,omitempty"`
	Status                 string       `json:"status"`
	CurrentPeriodStart     *time.Time   `json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd       *time.Time   `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd      bool         `json:"cancelAtPeriodEnd"`
	CanceledAt             *time.Time   `json:"canceledAt,omitempty"`
	CreatedAt              time.Time    `json:"createdAt"`
}

func Plans(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		responses.WriteSuccess(w, map[string]any{"plans": svc.Plans()})
	}
}

func Create(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}

		var payload createRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.Create(r.Context(), userID, subsvc.CreateInput{
			PlanID:          payload.PlanID,
			PaymentMethodID: payload.PaymentMethodID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newSubscriptionResponse(sub, svc.Plans()))
	}
}

func Update(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}

		var payload updateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.UpdatePlan(r.Context(), userID, payload.PlanID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub, svc.Plans()))
	}
}

func Cancel(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}

		var payload cancelRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		sub, err := svc.Cancel(r.Context(), userID, payload.Immediate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub, svc.Plans()))
	}
}

func Reactivate(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}
		sub, err := svc.Reactivate(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub, svc.Plans()))
	}
}

func Current(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}
		sub, err := svc.Current(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if sub == nil {
			responses.WriteSuccess(w, map[string]any{"subscription": nil})
			return
		}
		responses.WriteSuccess(w, map[string]any{"subscription": newSubscriptionResponse(sub, svc.Plans())})
	}
}

func History(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := resolve(w, r, svc, logg)
		if !ok {
			return
		}
		subs, err := svc.History(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		plans := svc.Plans()
		items := make([]*subscriptionResponse, 0, len(subs))
		for i := range subs {
			items = append(items, newSubscriptionResponse(&subs[i], plans))
		}
		responses.WriteSuccess(w, map[string]any{"subscriptions": items})
	}
}

func resolve(w http.ResponseWriter, r *http.Request, svc Service, logg *logger.Logger) (uuid.UUID, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
		return uuid.Nil, false
	}
	userID, err := authcontext.ResolveUserID(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, false
	}
	return userID, true
}

func newSubscriptionResponse(sub *models.Subscription, plans []subsvc.Plan) *subscriptionResponse {
	if sub == nil {
		return nil
	}
	resp := &subscriptionResponse{
		ID:                     sub.ID,
		ProviderSubscriptionID: sub.ProviderSubscriptionID,
		PlanID:                 string(sub.PlanID),
		Status:                 string(sub.Status),
		CurrentPeriodStart:     sub.CurrentPeriodStart,
		CurrentPeriodEnd:       sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		CanceledAt:             sub.CanceledAt,
		CreatedAt:              sub.CreatedAt,
	}
	resp.Plan = findPlan(plans, sub.PlanID)
	return resp
}

func findPlan(plans []subsvc.Plan, id enums.PlanID) *subsvc.Plan {
	for i := range plans {
		if plans[i].ID == id {
			plan := plans[i]
			return &plan
		}
	}
	return nil
}
