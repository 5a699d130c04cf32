package payments

import (
	"net/url"
	"testing"

	"github.com/openlocale/website/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatewayConfig() GatewayConfig {
	return GatewayConfig{
		MerchantID: "1234",
		AccountID:  "5678",
		Password:   "gateway-password",
		Endpoint:   "https://gate.example.com/pay/",
	}
}

func gatewayPayment() *models.Payment {
	return &models.Payment{
		UUID:        "11111111-2222-3333-4444-555555555555",
		Amount:      100,
		Description: "Support",
		Customer: models.Customer{
			Country: "CZ",
			Email:   "billing@example.com",
		},
		Details: models.JSONMap{},
	}
}

func signedCallback(p *models.Payment, status, password string) map[string]string {
	params := map[string]string{
		"merchant_data": p.UUID,
		"status":        status,
	}
	params["signature"] = signParams(params, password)
	return params
}

func TestSignParamsRoundTrip(t *testing.T) {
	params := map[string]string{"b": "2", "a": "1", "c": "3"}
	params["signature"] = signParams(params, "pw")

	assert.True(t, verifySignature(params, "pw"))
	assert.False(t, verifySignature(params, "other"))

	params["a"] = "tampered"
	assert.False(t, verifySignature(params, "pw"))
}

func TestVerifySignatureMissing(t *testing.T) {
	assert.False(t, verifySignature(map[string]string{"a": "1"}, "pw"))
	assert.False(t, verifySignature(map[string]string{"a": "1", "signature": "zz"}, "pw"))
}

func TestCardGatewayPerform(t *testing.T) {
	g := NewCardGateway(gatewayConfig())
	p := gatewayPayment()
	p.Recurring = models.RecurAnnual

	redirect, err := g.Perform(p, &Context{CompleteURL: "https://example.org/complete"})
	require.NoError(t, err)

	parsed, err := url.Parse(redirect)
	require.NoError(t, err)
	query := parsed.Query()
	assert.Equal(t, "1234", query.Get("merchant_id"))
	assert.Equal(t, "121.00", query.Get("value"))
	assert.Equal(t, "EUR", query.Get("currency"))
	assert.Equal(t, p.UUID, query.Get("merchant_data"))
	assert.Equal(t, "1", query.Get("recurring"))
	assert.NotEmpty(t, query.Get("signature"))
}

func TestCardGatewayPerformUnconfigured(t *testing.T) {
	g := NewCardGateway(GatewayConfig{})

	_, err := g.Perform(gatewayPayment(), &Context{})
	require.Error(t, err)
}

func TestCardGatewayCollectPaid(t *testing.T) {
	cfg := gatewayConfig()
	g := NewCardGateway(cfg)
	p := gatewayPayment()

	ok, err := g.Collect(p, &Context{Params: signedCallback(p, gatewayStatusPaid, cfg.Password)})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, gatewayStatusPaid, p.Details["status"])
}

func TestCardGatewayCollectCancelled(t *testing.T) {
	cfg := gatewayConfig()
	g := NewCardGateway(cfg)
	p := gatewayPayment()

	ok, err := g.Collect(p, &Context{Params: signedCallback(p, gatewayStatusCancelled, cfg.Password)})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "Payment cancelled", p.RejectReason())
}

func TestCardGatewayCollectBadSignature(t *testing.T) {
	cfg := gatewayConfig()
	g := NewCardGateway(cfg)
	p := gatewayPayment()

	params := signedCallback(p, gatewayStatusPaid, "wrong-password")
	ok, err := g.Collect(p, &Context{Params: params})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCardGatewayCollectWrongPayment(t *testing.T) {
	cfg := gatewayConfig()
	g := NewCardGateway(cfg)
	p := gatewayPayment()

	params := map[string]string{
		"merchant_data": "someone-elses-payment",
		"status":        gatewayStatusPaid,
	}
	params["signature"] = signParams(params, cfg.Password)

	ok, err := g.Collect(p, &Context{Params: params})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCoinGatewayNotRecurring(t *testing.T) {
	g := NewCoinGateway(gatewayConfig())
	assert.False(t, g.Recurring())
	assert.Equal(t, "gate-coin", g.Name())
}
