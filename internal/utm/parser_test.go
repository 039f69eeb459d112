package utm

import (
	"context"
	"errors"
	"testing"

	"github.com/ignite/kpi-processor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bodyToken = "20250125_do_cindi_mifarma_estandar_compra_abierto_web_pautaregular_farma_neutrogena_011592_body"

func TestExtractFromToken(t *testing.T) {
	p := New(nil)

	meta, err := p.ExtractFromToken(bodyToken)
	require.NoError(t, err)
	assert.Equal(t, "20250125", meta.CampaignID)
	assert.Equal(t, "body", meta.Format)
	assert.Equal(t, "20250125body", meta.CampaignSubID)
	assert.Equal(t, domain.MediumOwned, meta.Medium)
	assert.Equal(t, domain.PlatformSalesforce, meta.Platform)
	assert.Empty(t, meta.ProviderID)
}

func TestExtractFromToken_Rejects(t *testing.T) {
	p := New(nil)
	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrNoToken},
		{"one segment", "20250125", ErrMalformedToken},
		{"two segments", "20250125_body", ErrMalformedToken},
		{"empty campaign", "_x_body", ErrMalformedToken},
		{"empty format", "20250125_x_", ErrMalformedToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ExtractFromToken(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExtractFromURL(t *testing.T) {
	p := New(nil)

	tests := []struct {
		name    string
		url     string
		wantSub string
		wantErr error
	}{
		{
			name:    "first parameter",
			url:     "https://www.mifarma.com.pe/promo?utm_campaign=" + bodyToken + "&utm_source=sfmc",
			wantSub: "20250125body",
		},
		{
			name:    "last parameter",
			url:     "https://www.mifarma.com.pe/promo?utm_source=sfmc&utm_campaign=20250201_x_header",
			wantSub: "20250201header",
		},
		{
			name:    "fragment stops the token",
			url:     "https://x.pe/?utm_campaign=20250201_a_feed#top",
			wantSub: "20250201feed",
		},
		{
			name:    "percent encoded",
			url:     "https://x.pe/?utm_campaign=20250201%5Fa%5FMB",
			wantSub: "20250201MB",
		},
		{name: "no parameter", url: "https://x.pe/?utm_source=sfmc", wantErr: ErrNoToken},
		{name: "empty", url: "", wantErr: ErrNoToken},
		{name: "short token", url: "https://x.pe/?utm_campaign=2025_body", wantErr: ErrMalformedToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := p.ExtractFromURL(tt.url)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSub, meta.CampaignSubID)
		})
	}
}

func TestHasToken(t *testing.T) {
	assert.True(t, HasToken("https://x.pe/?utm_campaign=a_b_c"))
	assert.False(t, HasToken("https://x.pe/"))
}

func TestCampaignIDFromMessageName(t *testing.T) {
	id, err := CampaignIDFromMessageName("20250305_sfmc_cindi_do_mifarma_std_compra_pautareg_wellness_app_abierto_varios_omega3_push")
	require.NoError(t, err)
	assert.Equal(t, "20250305", id)

	for _, name := range []string{"", "nodelimiter", "_leading"} {
		_, err := CampaignIDFromMessageName(name)
		assert.ErrorIs(t, err, ErrNoDelimiter, name)
	}
}

type fixedResolver map[int64]string

func (f fixedResolver) CampaignID(_ context.Context, sendID int64) (string, error) {
	if id, ok := f[sendID]; ok {
		return id, nil
	}
	return "", errors.New("unknown send")
}

func TestCampaignIDFromSendID(t *testing.T) {
	ctx := context.Background()

	id, err := New(nil).CampaignIDFromSendID(ctx, 4217)
	require.NoError(t, err)
	assert.Equal(t, "20250117", id)

	_, err = New(nil).CampaignIDFromSendID(ctx, 0)
	assert.ErrorIs(t, err, ErrNoSendID)

	p := New(fixedResolver{9: "20250309"})
	id, err = p.CampaignIDFromSendID(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "20250309", id)

	_, err = p.CampaignIDFromSendID(ctx, 10)
	assert.Error(t, err)
}
