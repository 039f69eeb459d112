package domain

import "time"

// KpiType says how a KPI value is to be read.
type KpiType string

const (
	KpiQuantity   KpiType = "quantity"
	KpiPercentage KpiType = "percentage"
)

// KpiStatusActive is the status flag written on every emitted record.
const KpiStatusActive = "A"

// KpiCode is a fixed taxonomy identifier such as "MP-OR".
type KpiCode string

const (
	KpiMailingParentSends    KpiCode = "MP-A"
	KpiMailingParentOpens    KpiCode = "MP-I"
	KpiMailingParentClicks   KpiCode = "MP-C"
	KpiMailingParentOpenRate KpiCode = "MP-OR"
	KpiMailingParentCTR      KpiCode = "MP-CR"

	KpiMailingHeaderClicks KpiCode = "MCC"
	KpiMailingFeedClicks   KpiCode = "MFC"
	KpiMailingBodyClicks   KpiCode = "MBC"

	KpiPushAppSends    KpiCode = "PA-A"
	KpiPushAppOpens    KpiCode = "PA-I"
	KpiPushAppOpenRate KpiCode = "PA-OR"

	KpiPushWebSends    KpiCode = "PW-A"
	KpiPushWebOpens    KpiCode = "PW-I"
	KpiPushWebOpenRate KpiCode = "PW-OR"

	KpiInvestment KpiCode = "investment"

	KpiMailingParentSales KpiCode = "MP-V"
	KpiMailingHeaderSales KpiCode = "MCV"
	KpiMailingFeedSales   KpiCode = "MFV"
	KpiMailingBodySales   KpiCode = "MBV"
	KpiPushWebSales       KpiCode = "PW-V"
	KpiPushAppSales       KpiCode = "PA-V"
)

// KpiDefinition is one row of the taxonomy.
type KpiDefinition struct {
	Code        KpiCode
	Channel     Channel
	Description string
	Type        KpiType
	Sales       bool
}

// Taxonomy is the complete, static KPI code table. Aggregators and the
// metrics roll-up read codes from here and nowhere else.
var Taxonomy = map[KpiCode]KpiDefinition{
	KpiMailingParentSends:    {KpiMailingParentSends, ChannelMailingParent, "Reach (sends)", KpiQuantity, false},
	KpiMailingParentOpens:    {KpiMailingParentOpens, ChannelMailingParent, "Impressions (opens)", KpiQuantity, false},
	KpiMailingParentClicks:   {KpiMailingParentClicks, ChannelMailingParent, "Clicks", KpiQuantity, false},
	KpiMailingParentOpenRate: {KpiMailingParentOpenRate, ChannelMailingParent, "Open rate (OR)", KpiPercentage, false},
	KpiMailingParentCTR:      {KpiMailingParentCTR, ChannelMailingParent, "Click-through rate (CR)", KpiPercentage, false},

	KpiMailingHeaderClicks: {KpiMailingHeaderClicks, ChannelMailingHeader, "Clicks", KpiQuantity, false},
	KpiMailingFeedClicks:   {KpiMailingFeedClicks, ChannelMailingFeed, "Clicks", KpiQuantity, false},
	KpiMailingBodyClicks:   {KpiMailingBodyClicks, ChannelMailingBody, "Clicks", KpiQuantity, false},

	KpiPushAppSends:    {KpiPushAppSends, ChannelPushApp, "Reach (sends)", KpiQuantity, false},
	KpiPushAppOpens:    {KpiPushAppOpens, ChannelPushApp, "Impressions (opens)", KpiQuantity, false},
	KpiPushAppOpenRate: {KpiPushAppOpenRate, ChannelPushApp, "Open rate (OR)", KpiPercentage, false},

	KpiPushWebSends:    {KpiPushWebSends, ChannelPushWeb, "Reach (sends)", KpiQuantity, false},
	KpiPushWebOpens:    {KpiPushWebOpens, ChannelPushWeb, "Impressions (opens)", KpiQuantity, false},
	KpiPushWebOpenRate: {KpiPushWebOpenRate, ChannelPushWeb, "Open rate (OR)", KpiPercentage, false},

	KpiInvestment: {KpiInvestment, "", "Investment", KpiQuantity, false},

	KpiMailingParentSales: {KpiMailingParentSales, ChannelMailingParent, "Sales", KpiQuantity, true},
	KpiMailingHeaderSales: {KpiMailingHeaderSales, ChannelMailingHeader, "Sales", KpiQuantity, true},
	KpiMailingFeedSales:   {KpiMailingFeedSales, ChannelMailingFeed, "Sales", KpiQuantity, true},
	KpiMailingBodySales:   {KpiMailingBodySales, ChannelMailingBody, "Sales", KpiQuantity, true},
	KpiPushWebSales:       {KpiPushWebSales, ChannelPushWeb, "Sales", KpiQuantity, true},
	KpiPushAppSales:       {KpiPushAppSales, ChannelPushApp, "Sales", KpiQuantity, true},
}

// IsSales reports whether values under this code count toward total sales.
func (c KpiCode) IsSales() bool {
	return Taxonomy[c].Sales
}

// Definition returns the taxonomy row for c. Unknown codes yield a zero
// definition with the code filled in.
func (c KpiCode) Definition() KpiDefinition {
	if d, ok := Taxonomy[c]; ok {
		return d
	}
	return KpiDefinition{Code: c}
}

// KpiRecord is one emitted KPI value. Records are append-only; PeriodStart
// and PeriodEnd identify the window the value was computed for.
type KpiRecord struct {
	ID            string    `json:"id" db:"id"`
	CampaignID    string    `json:"campaign_id" db:"campaign_id"`
	CampaignSubID string    `json:"campaign_sub_id" db:"campaign_sub_id"`
	ProviderID    string    `json:"provider_id" db:"provider_id"`
	KpiID         KpiCode   `json:"kpi_id" db:"kpi_id"`
	Description   string    `json:"kpi_description" db:"kpi_description"`
	Type          KpiType   `json:"type" db:"type"`
	Value         float64   `json:"value" db:"value"`
	Status        string    `json:"status" db:"status"`
	PeriodStart   time.Time `json:"period_start" db:"period_start"`
	PeriodEnd     time.Time `json:"period_end" db:"period_end"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// NewKpiRecord builds an active record for code, filling description and
// type from the taxonomy.
func NewKpiRecord(code KpiCode, value float64, w Window) KpiRecord {
	def := code.Definition()
	return KpiRecord{
		KpiID:       code,
		Description: def.Description,
		Type:        def.Type,
		Value:       value,
		Status:      KpiStatusActive,
		PeriodStart: w.Start,
		PeriodEnd:   w.End,
	}
}

// Rate returns num/den*100 clamped to [0, 100], or 0 when den is zero.
// Opens and clicks are raw event rows, so num can exceed den (one opener
// clicking several links); such rates saturate at 100.
func Rate(num, den int) float64 {
	if den <= 0 || num <= 0 {
		return 0
	}
	return min(float64(num)/float64(den)*100, 100)
}
