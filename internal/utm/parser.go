// Package utm decodes campaign identity from utm_campaign tokens, push
// message names and Marketing Cloud send ids.
//
// Token format (underscore separated, at least three segments):
//
//	20250125_do_cindi_mifarma_estandar_compra_abierto_web_pautaregular_farma_neutrogena_011592_body
//	^campaign id                                                                    format tag^
package utm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ignite/kpi-processor/internal/domain"
	"github.com/ignite/kpi-processor/internal/pkg/logger"
)

// CampaignParam is the query parameter that carries the token.
const CampaignParam = "utm_campaign"

var (
	ErrNoToken        = errors.New("no utm_campaign token")
	ErrMalformedToken = errors.New("malformed utm_campaign token")
	ErrNoDelimiter    = errors.New("message name has no campaign delimiter")
	ErrNoSendID       = errors.New("send id is required")
)

var campaignParamRe = regexp.MustCompile(CampaignParam + `=([^&?#]+)`)

// minSegments is the fewest underscore-separated parts a usable token has.
const minSegments = 3

// SendResolver maps a Marketing Cloud send id to the campaign it belongs to.
type SendResolver interface {
	CampaignID(ctx context.Context, sendID int64) (string, error)
}

// Parser extracts CampaignMetadata. The zero value is not usable; use New.
type Parser struct {
	resolver SendResolver
}

// New returns a parser that resolves send ids through r. A nil r falls back
// to ProvisionalResolver.
func New(r SendResolver) *Parser {
	if r == nil {
		r = ProvisionalResolver{}
	}
	return &Parser{resolver: r}
}

// HasToken is a cheap pre-filter for click URLs.
func HasToken(rawURL string) bool {
	return strings.Contains(rawURL, CampaignParam)
}

// ExtractFromURL locates the utm_campaign parameter in rawURL and decodes it.
// A URL without the parameter yields ErrNoToken.
func (p *Parser) ExtractFromURL(rawURL string) (domain.CampaignMetadata, error) {
	if rawURL == "" {
		return domain.CampaignMetadata{}, ErrNoToken
	}
	m := campaignParamRe.FindStringSubmatch(rawURL)
	if m == nil {
		return domain.CampaignMetadata{}, ErrNoToken
	}
	token := m[1]
	if unescaped, err := url.QueryUnescape(token); err == nil {
		token = unescaped
	}
	return p.ExtractFromToken(token)
}

// ExtractFromToken decodes a utm_campaign value. The first segment is the
// campaign id and the last the format tag. ProviderID is left empty.
func (p *Parser) ExtractFromToken(token string) (domain.CampaignMetadata, error) {
	if token == "" {
		return domain.CampaignMetadata{}, ErrNoToken
	}
	parts := strings.Split(token, "_")
	if len(parts) < minSegments {
		return domain.CampaignMetadata{}, fmt.Errorf("%w: %q has %d segments", ErrMalformedToken, token, len(parts))
	}

	campaignID := parts[0]
	format := parts[len(parts)-1]
	if campaignID == "" || format == "" {
		return domain.CampaignMetadata{}, fmt.Errorf("%w: %q", ErrMalformedToken, token)
	}

	return domain.CampaignMetadata{
		CampaignID:    campaignID,
		CampaignSubID: campaignID + format,
		Format:        format,
		Medium:        domain.MediumOwned,
		Platform:      domain.PlatformSalesforce,
	}, nil
}

// CampaignIDFromSendID resolves the campaign a send belongs to.
func (p *Parser) CampaignIDFromSendID(ctx context.Context, sendID int64) (string, error) {
	if sendID == 0 {
		return "", ErrNoSendID
	}
	return p.resolver.CampaignID(ctx, sendID)
}

// CampaignIDFromMessageName returns the first underscore-delimited segment of
// a push message name such as
// 20250305_sfmc_cindi_do_mifarma_std_compra_pautareg_wellness_app_abierto_varios_omega3_push.
func CampaignIDFromMessageName(name string) (string, error) {
	idx := strings.IndexByte(name, '_')
	if idx <= 0 {
		return "", fmt.Errorf("%w: %q", ErrNoDelimiter, name)
	}
	return name[:idx], nil
}

// ProvisionalResolver stands in for the send-to-campaign lookup until the
// send directory is available. It derives "202501" + sendID%100.
// TODO: replace with a lookup against the Marketing Cloud send log once it is exported.
type ProvisionalResolver struct{}

func (ProvisionalResolver) CampaignID(_ context.Context, sendID int64) (string, error) {
	logger.Warn("provisional send id resolution in use", "send_id", sendID)
	return fmt.Sprintf("202501%d", sendID%100), nil
}
