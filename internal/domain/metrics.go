package domain

import "time"

// MetricsSummary is the provider-level roll-up. ProviderID is unique.
type MetricsSummary struct {
	ID                      string    `json:"id" db:"id"`
	ProviderID              string    `json:"provider_id" db:"provider_id"`
	TotalActiveCampaigns    int       `json:"total_active_campaigns" db:"total_active_campaigns"`
	TotalInvestmentPeriod   float64   `json:"total_investment_period" db:"total_investment_period"`
	TotalInvestmentForBrand float64   `json:"total_investment_for_brand" db:"total_investment_for_brand"`
	TotalSales              float64   `json:"total_sales" db:"total_sales"`
	CreatedAt               time.Time `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time `json:"updated_at" db:"updated_at"`
}
