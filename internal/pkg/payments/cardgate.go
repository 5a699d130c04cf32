package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/openlocale/website/app/models"
	"github.com/openlocale/website/internal/pkg/env"
	"github.com/shopspring/decimal"
)

// Gateway status codes in return callbacks.
const (
	gatewayStatusPaid      = "2"
	gatewayStatusCancelled = "3"
	gatewayStatusError     = "4"
	gatewayStatusUnderpaid = "6"
	gatewayStatusWaiting   = "7"
	gatewayStatusDeposit   = "9"
)

// GatewayConfig holds the signed-form gateway credentials.
type GatewayConfig struct {
	MerchantID string
	AccountID  string
	Password   string
	Endpoint   string
}

// GatewayConfigFromEnv loads the gateway credentials from the environment.
func GatewayConfigFromEnv() GatewayConfig {
	return GatewayConfig{
		MerchantID: env.GetEnv("PAYMENT_GATE_MERCHANTID", ""),
		AccountID:  env.GetEnv("PAYMENT_GATE_ACCOUNTID", ""),
		Password:   env.GetEnv("PAYMENT_GATE_PASSWORD", ""),
		Endpoint:   env.GetEnv("PAYMENT_GATE_ENDPOINT", "https://gate.example.com/pay/"),
	}
}

// cardGateway drives a hosted signed-form payment gateway. The customer is
// redirected to the gateway with a signed parameter set; the gateway calls
// back with a signed status that Collect validates.
type cardGateway struct {
	name      string
	verbose   string
	recurring bool
	methodID  int
	cfg       GatewayConfig
}

// NewCardGateway returns the card payment method.
func NewCardGateway(cfg GatewayConfig) Backend {
	return &cardGateway{
		name:      "gate-card",
		verbose:   "Payment card",
		recurring: true,
		methodID:  21,
		cfg:       cfg,
	}
}

// NewCoinGateway returns the crypto-currency variant of the gateway, which
// cannot do recurring billing.
func NewCoinGateway(cfg GatewayConfig) Backend {
	return &cardGateway{
		name:      "gate-coin",
		verbose:   "Cryptocurrency",
		recurring: false,
		methodID:  29,
		cfg:       cfg,
	}
}

func (g *cardGateway) Name() string    { return g.name }
func (g *cardGateway) Verbose() string { return g.verbose }
func (g *cardGateway) Debug() bool     { return false }
func (g *cardGateway) Recurring() bool { return g.recurring }

func (g *cardGateway) Perform(p *models.Payment, ctx *Context) (string, error) {
	if g.cfg.MerchantID == "" || g.cfg.Password == "" {
		return "", errors.New("payment gateway is not configured")
	}

	params := map[string]string{
		"merchant_id":   g.cfg.MerchantID,
		"account_id":    g.cfg.AccountID,
		"value":         decimal.NewFromFloat(p.VATAmount()).StringFixed(2),
		"currency":      "EUR",
		"method_id":     fmt.Sprintf("%d", g.methodID),
		"description":   p.Description,
		"email":         p.Customer.Email,
		"return_url":    ctx.CompleteURL,
		"merchant_data": p.UUID,
	}
	if p.Recurring != models.RecurNone {
		params["recurring"] = "1"
	}
	params["signature"] = signParams(params, g.cfg.Password)

	values := url.Values{}
	for key, value := range params {
		values.Set(key, value)
	}
	return g.cfg.Endpoint + "?" + values.Encode(), nil
}

func (g *cardGateway) Collect(p *models.Payment, ctx *Context) (bool, error) {
	params := ctx.Params

	// Check params signature
	if !verifySignature(params, g.cfg.Password) {
		return false, nil
	}

	// Check we got the correct payment
	if params["merchant_data"] != p.UUID {
		return false, nil
	}

	// Store the raw gateway response for the audit trail
	if p.Details == nil {
		p.Details = models.JSONMap{}
	}
	for key, value := range params {
		p.Details[key] = value
	}

	status := params["status"]
	if status == gatewayStatusPaid {
		return true, nil
	}

	reason := fmt.Sprintf("Unknown: %s", status)
	switch status {
	case gatewayStatusCancelled:
		reason = "Payment cancelled"
	case gatewayStatusError:
		reason = "Error during payment"
	case gatewayStatusUnderpaid:
		reason = "Underpaid"
	case gatewayStatusWaiting:
		reason = "Waiting for additional confirmation"
	case gatewayStatusDeposit:
		reason = "Deposit confirmed"
	}
	p.Details["reject_reason"] = reason
	return false, nil
}

// signParams computes the HMAC-SHA256 signature over the sorted key=value
// pairs, excluding any present signature parameter.
func signParams(params map[string]string, password string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		if key == "signature" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+params[key])
	}

	mac := hmac.New(sha256.New, []byte(password))
	mac.Write([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

func verifySignature(params map[string]string, password string) bool {
	signature := strings.TrimSpace(params["signature"])
	if signature == "" {
		return false
	}
	decoded, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return false
	}
	expected, err := hex.DecodeString(signParams(params, password))
	if err != nil {
		return false
	}
	return hmac.Equal(decoded, expected)
}
