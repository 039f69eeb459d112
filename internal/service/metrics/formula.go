package metrics

import "github.com/ignite/kpi-processor/internal/domain"

// Totals is the outcome of the roll-up formula for one provider.
type Totals struct {
	ActiveCampaigns    int
	Investment         float64
	InvestmentPerBrand float64
	Sales              float64
}

// Compute applies the roll-up formula to one provider's records.
func Compute(records []domain.KpiRecord) Totals {
	var t Totals
	campaigns := make(map[string]struct{})
	for _, r := range records {
		if r.CampaignID != "" {
			campaigns[r.CampaignID] = struct{}{}
		}
		switch {
		case r.KpiID == domain.KpiInvestment:
			t.Investment += r.Value
		case r.KpiID.IsSales():
			t.Sales += r.Value
		}
	}
	t.ActiveCampaigns = len(campaigns)
	if t.ActiveCampaigns > 0 {
		t.InvestmentPerBrand = t.Investment / float64(t.ActiveCampaigns)
	}
	return t
}

// GroupByProvider buckets records by provider id. Records with no provider
// are dropped.
func GroupByProvider(records []domain.KpiRecord) map[string][]domain.KpiRecord {
	groups := make(map[string][]domain.KpiRecord)
	for _, r := range records {
		if r.ProviderID == "" {
			continue
		}
		groups[r.ProviderID] = append(groups[r.ProviderID], r)
	}
	return groups
}

// Summary builds the row to upsert for providerID from t.
func (t Totals) Summary(providerID string) *domain.MetricsSummary {
	return &domain.MetricsSummary{
		ProviderID:              providerID,
		TotalActiveCampaigns:    t.ActiveCampaigns,
		TotalInvestmentPeriod:   t.Investment,
		TotalInvestmentForBrand: t.InvestmentPerBrand,
		TotalSales:              t.Sales,
	}
}
