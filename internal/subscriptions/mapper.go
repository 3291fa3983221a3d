package subscriptions

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/nexusarena/payment-service/pkg/db/models"
	"github.com/nexusarena/payment-service/pkg/enums"
	pkgerrors "github.com/nexusarena/payment-service/pkg/errors"
)

const (
	metadataUserID = "user_id"
	metadataPlanID = "plan_id"
)

// BuildSubscriptionFromStripe maps a provider subscription into a new local row.
func BuildSubscriptionFromStripe(sub *stripe.Subscription, userID uuid.UUID, planID enums.PlanID) (*models.Subscription, error) {
	if sub == nil || sub.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe subscription is empty")
	}
	row := &models.Subscription{
		UserID:                 userID,
		ProviderSubscriptionID: sub.ID,
		PlanID:                 planID,
	}
	ApplyStripeSubscription(row, sub)
	return row, nil
}

// ApplyStripeSubscription copies the provider's status, period bounds and
// cancellation flags onto target.
func ApplyStripeSubscription(target *models.Subscription, sub *stripe.Subscription) {
	if target == nil || sub == nil {
		return
	}
	target.Status = mapStripeStatus(sub.Status)
	target.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	target.CanceledAt = toTimePtr(sub.CanceledAt)
	if sub.Customer != nil && sub.Customer.ID != "" {
		customerID := sub.Customer.ID
		target.ProviderCustomerID = &customerID
	}
	if price := firstPriceID(sub); price != "" {
		target.PriceID = &price
	}
	start, end := periodFromSubscription(sub)
	if start != 0 {
		target.CurrentPeriodStart = toTimePtr(start)
	}
	if end != 0 {
		target.CurrentPeriodEnd = toTimePtr(end)
	}
	if len(sub.Metadata) > 0 {
		target.Metadata = target.Metadata.Merge(sub.Metadata)
	}
}

// UserIDFromMetadata extracts the user id attached when the subscription was created.
func UserIDFromMetadata(metadata map[string]string) (uuid.UUID, bool) {
	raw := strings.TrimSpace(metadata[metadataUserID])
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func firstItem(sub *stripe.Subscription) *stripe.SubscriptionItem {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil
	}
	return sub.Items.Data[0]
}

func firstPriceID(sub *stripe.Subscription) string {
	item := firstItem(sub)
	if item == nil || item.Price == nil {
		return ""
	}
	return item.Price.ID
}

func periodFromSubscription(sub *stripe.Subscription) (int64, int64) {
	item := firstItem(sub)
	if item == nil {
		return 0, 0
	}
	return item.CurrentPeriodStart, item.CurrentPeriodEnd
}

func toTimePtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

func mapStripeStatus(raw stripe.SubscriptionStatus) enums.SubscriptionStatus {
	normalized := strings.ToLower(strings.TrimSpace(string(raw)))
	if normalized == "" {
		return enums.SubscriptionStatusActive
	}
	if mapped, ok := stripeStatusAliases[normalized]; ok {
		return mapped
	}
	if parsed, err := enums.ParseSubscriptionStatus(normalized); err == nil {
		return parsed
	}
	return enums.SubscriptionStatusIncomplete
}

// A paused subscription bills nothing and grants nothing, which is how
// unpaid rows are treated locally.
var stripeStatusAliases = map[string]enums.SubscriptionStatus{
	"paused":    enums.SubscriptionStatusUnpaid,
	"cancelled": enums.SubscriptionStatusCanceled,
}
