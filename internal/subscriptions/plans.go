package subscriptions

import (
	"strings"

	"github.com/nexusarena/payment-service/pkg/config"
	"github.com/nexusarena/payment-service/pkg/enums"
)

// Plan is one tier of the subscription catalogue.
type Plan struct {
	ID       enums.PlanID `json:"id"`
	Name     string       `json:"name"`
	PriceID  string       `json:"-"`
	Features []string     `json:"features"`
}

// Catalog resolves plans to provider prices and back.
type Catalog struct {
	plans []Plan
}

// NewCatalog builds the basic/pro/premium catalogue from the configured price ids.
func NewCatalog(cfg config.StripeConfig) *Catalog {
	return &Catalog{plans: []Plan{
		{
			ID:       enums.PlanBasic,
			Name:     "Basic Plan",
			PriceID:  priceOrDefault(cfg.BasicPriceID, "price_basic"),
			Features: []string{"Basic stats", "Tournament participation", "5 team slots"},
		},
		{
			ID:       enums.PlanPro,
			Name:     "Pro Plan",
			PriceID:  priceOrDefault(cfg.ProPriceID, "price_pro"),
			Features: []string{"Advanced stats", "Priority matchmaking", "20 team slots", "AI coaching"},
		},
		{
			ID:       enums.PlanPremium,
			Name:     "Premium Plan",
			PriceID:  priceOrDefault(cfg.PremiumPriceID, "price_premium"),
			Features: []string{"All features", "Unlimited teams", "Custom tournaments", "API access"},
		},
	}}
}

// Plans lists the catalogue in display order.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, len(c.plans))
	copy(out, c.plans)
	return out
}

// Lookup returns the plan with the given id.
func (c *Catalog) Lookup(id enums.PlanID) (Plan, bool) {
	for _, plan := range c.plans {
		if plan.ID == id {
			return plan, true
		}
	}
	return Plan{}, false
}

// PlanForPrice maps a provider price back to its plan.
func (c *Catalog) PlanForPrice(priceID string) (Plan, bool) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return Plan{}, false
	}
	for _, plan := range c.plans {
		if plan.PriceID == priceID {
			return plan, true
		}
	}
	return Plan{}, false
}

func priceOrDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
