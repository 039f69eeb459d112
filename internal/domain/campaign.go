package domain

// PlatformSalesforce is stamped on metadata decoded from Marketing Cloud tokens.
const PlatformSalesforce = "salesforce"

// CampaignMetadata is the campaign identity decoded from a utm_campaign token
// or a message name. It is transient and never persisted.
type CampaignMetadata struct {
	CampaignID    string `json:"campaign_id"`
	CampaignSubID string `json:"campaign_sub_id"`
	Format        string `json:"format"`
	Medium        Medium `json:"medium"`
	Platform      string `json:"platform"`
	ProviderID    string `json:"provider_id"`
}
