package types

import "fmt"

type BillingInterval string

const (
	BillingIntervalMonth BillingInterval = "month"
	BillingIntervalYear  BillingInterval = "year"
)

// Plan describes a sellable subscription tier. The catalog is carried in
// config; gateway price ids are resolved per billing interval.
type Plan struct {
	ID             string          `json:"id" mapstructure:"id"`
	Name           string          `json:"name" mapstructure:"name"`
	Rank           int             `json:"rank" mapstructure:"rank"`
	MonthlyPriceID string          `json:"monthly_price_id" mapstructure:"monthly_price_id"`
	YearlyPriceID  string          `json:"yearly_price_id" mapstructure:"yearly_price_id"`
	TokenGrant     int64           `json:"token_grant" mapstructure:"token_grant"`
	Interval       BillingInterval `json:"interval" mapstructure:"interval"`
}

// PriceID resolves the gateway price id for a billing interval.
func (p *Plan) PriceID(interval BillingInterval) (string, error) {
	switch interval {
	case BillingIntervalMonth:
		if p.MonthlyPriceID == "" {
			return "", fmt.Errorf("plan %s has no monthly price", p.ID)
		}
		return p.MonthlyPriceID, nil
	case BillingIntervalYear:
		if p.YearlyPriceID == "" {
			return "", fmt.Errorf("plan %s has no yearly price", p.ID)
		}
		return p.YearlyPriceID, nil
	default:
		return "", fmt.Errorf("unsupported billing interval: %s", interval)
	}
}

// ChangeTypeTo classifies a move from p to target by plan rank.
func (p *Plan) ChangeTypeTo(target *Plan) PlanChangeType {
	if target.Rank > p.Rank {
		return PlanChangeTypeUpgrade
	}
	return PlanChangeTypeDowngrade
}
