package subscriptions

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/nexusarena/payment-service/pkg/enums"
)

func TestMapStripeStatus(t *testing.T) {
	cases := []struct {
		name  string
		value stripe.SubscriptionStatus
		want  enums.SubscriptionStatus
	}{
		{name: "active", value: stripe.SubscriptionStatusActive, want: enums.SubscriptionStatusActive},
		{name: "trialing", value: stripe.SubscriptionStatusTrialing, want: enums.SubscriptionStatusTrialing},
		{name: "past due", value: stripe.SubscriptionStatusPastDue, want: enums.SubscriptionStatusPastDue},
		{name: "incomplete expired", value: stripe.SubscriptionStatusIncompleteExpired, want: enums.SubscriptionStatusIncompleteExpired},
		{name: "paused", value: stripe.SubscriptionStatusPaused, want: enums.SubscriptionStatusUnpaid},
		{name: "empty defaults to active", value: "", want: enums.SubscriptionStatusActive},
		{name: "unknown", value: "brand_new_status", want: enums.SubscriptionStatusIncomplete},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := mapStripeStatus(tc.value); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestBuildSubscriptionFromStripe(t *testing.T) {
	userID := uuid.New()
	start := time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	row, err := BuildSubscriptionFromStripe(&stripe.Subscription{
		ID:       "sub_1",
		Status:   stripe.SubscriptionStatusActive,
		Customer: &stripe.Customer{ID: "cus_1"},
		Metadata: map[string]string{"user_id": userID.String(), "plan_id": "pro"},
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{{
			ID:                 "si_1",
			Price:              &stripe.Price{ID: "price_pro"},
			CurrentPeriodStart: start.Unix(),
			CurrentPeriodEnd:   end.Unix(),
		}}},
	}, userID, enums.PlanPro)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row.Status != enums.SubscriptionStatusActive {
		t.Fatalf("expected active, got %s", row.Status)
	}
	if row.PriceID == nil || *row.PriceID != "price_pro" {
		t.Fatalf("expected price_pro, got %v", row.PriceID)
	}
	if row.CurrentPeriodEnd == nil || !row.CurrentPeriodEnd.Equal(end) {
		t.Fatalf("expected period end %v, got %v", end, row.CurrentPeriodEnd)
	}
	if row.ProviderCustomerID == nil || *row.ProviderCustomerID != "cus_1" {
		t.Fatalf("expected customer cus_1")
	}
	if row.Metadata["plan_id"] != "pro" {
		t.Fatalf("expected metadata to be mirrored, got %v", row.Metadata)
	}

	if _, err := BuildSubscriptionFromStripe(nil, userID, enums.PlanPro); err == nil {
		t.Fatal("expected error for nil subscription")
	}
}

func TestUserIDFromMetadata(t *testing.T) {
	id := uuid.New()
	if got, ok := UserIDFromMetadata(map[string]string{"user_id": id.String()}); !ok || got != id {
		t.Fatalf("expected %s, got %s (%t)", id, got, ok)
	}
	if _, ok := UserIDFromMetadata(map[string]string{"user_id": "nope"}); ok {
		t.Fatal("expected invalid id to be rejected")
	}
	if _, ok := UserIDFromMetadata(nil); ok {
		t.Fatal("expected missing id to be rejected")
	}
}
