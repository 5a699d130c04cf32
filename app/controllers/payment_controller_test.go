package controllers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/openlocale/website/app/models"
	"github.com/openlocale/website/internal/pkg/invoices"
	"github.com/openlocale/website/internal/pkg/payments"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testTriggerSecret   = "trigger-secret"
	testGatewayPassword = "gateway-password"
)

// stubRepo keeps payments and customers in memory so handlers run without a
// database.
type stubRepo struct {
	payments  map[string]*models.Payment
	customers map[uint]*models.Customer
	nextID    uint
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		payments:  map[string]*models.Payment{},
		customers: map[uint]*models.Customer{},
	}
}

func (s *stubRepo) GetByUUID(id string) (*models.Payment, error) {
	p, ok := s.payments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (s *stubRepo) Create(p *models.Payment) error {
	if p.UUID == "" {
		p.UUID = uuid.NewString()
	}
	if p.State == 0 {
		p.State = models.PaymentNew
	}
	if p.Details == nil {
		p.Details = models.JSONMap{}
	}
	if p.Extra == nil {
		p.Extra = models.JSONMap{}
	}
	if p.Created.IsZero() {
		p.Created = time.Now()
	}
	s.payments[p.UUID] = p
	return nil
}

func (s *stubRepo) Save(p *models.Payment) error {
	s.payments[p.UUID] = p
	return nil
}

func (s *stubRepo) Renewals(id string) ([]models.Payment, error) {
	return nil, nil
}

func (s *stubRepo) DueRecurring(now time.Time) ([]models.Payment, error) {
	return nil, nil
}

func (s *stubRepo) GetOrCreateCustomer(origin string, userID int64, email string) (*models.Customer, error) {
	for _, c := range s.customers {
		if c.Origin == origin && c.UserID == userID {
			return c, nil
		}
	}
	s.nextID++
	c := &models.Customer{ID: s.nextID, Origin: origin, UserID: userID, Email: email}
	s.customers[c.ID] = c
	return c, nil
}

func (s *stubRepo) SaveCustomer(c *models.Customer) error {
	s.customers[c.ID] = c
	return nil
}

func (s *stubRepo) WithLock(id string, fn func(tx payments.Repository, p *models.Payment) error) error {
	p, ok := s.payments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	return fn(s, p)
}

func (s *stubRepo) WithTransaction(fn func(tx payments.Repository) error) error {
	return fn(s)
}

type noopNotifier struct{}

func (noopNotifier) PaymentAccepted(p *models.Payment, invoicePDF string) error { return nil }
func (noopNotifier) PaymentFailed(p *models.Payment) error                      { return nil }

// newPaymentTestApp wires the handlers against the stub repository, with
// invoicing disabled.
func newPaymentTestApp(repo payments.Repository) *fiber.App {
	cfg := payments.Config{
		Debug:          true,
		Secret:         testTriggerSecret,
		RedirectURL:    "https://example.org/{language}/payment/{uuid}/",
		TriggerTimeout: time.Second,
	}
	registry := payments.NewRegistry(true,
		payments.NewDebugPay(),
		payments.NewDebugReject(),
		payments.NewDebugPending(),
		payments.NewCardGateway(payments.GatewayConfig{
			MerchantID: "1234",
			AccountID:  "5678",
			Password:   testGatewayPassword,
			Endpoint:   "https://gate.example.com/pay/",
		}),
	)
	invoiceStore = invoices.NewStore("")
	paymentService = payments.NewService(repo, registry, invoiceStore, noopNotifier{}, cfg)

	app := fiber.New()
	payment := app.Group("/payment")
	payment.Get("/:uuid", HandlePaymentShow)
	payment.Post("/:uuid", HandlePaymentMethod)
	payment.Get("/:uuid/complete", HandlePaymentComplete)
	payment.Post("/:uuid/complete", HandlePaymentComplete)
	payment.Post("/:uuid/customer", HandleCustomerUpdate)
	app.Post("/api/payment", HandlePaymentCreate)
	return app
}

func seedPayment(t *testing.T, repo *stubRepo, state int, backend string) *models.Payment {
	t.Helper()
	p := &models.Payment{
		Amount:      100,
		Description: "Donation",
		CustomerID:  1,
		Customer: models.Customer{
			ID:      1,
			Name:    "Example Corp",
			Address: "Example Street 1",
			City:    "150 00 Prague",
			Country: "CZ",
			Email:   "billing@example.com",
			Origin:  "https://example.org/donate/",
		},
	}
	require.NoError(t, repo.Create(p))
	p.State = state
	p.Backend = backend
	require.NoError(t, repo.Save(p))
	return p
}

// gatewaySign mirrors the signed-form wire protocol: HMAC-SHA256 over the
// sorted key=value pairs joined with "&".
func gatewaySign(params map[string]string, password string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
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

func TestRequestContextMergesFormBody(t *testing.T) {
	var got *payments.Context
	app := fiber.New()
	app.Post("/payment/:uuid/complete", func(c *fiber.Ctx) error {
		got = requestContext(c)
		return c.SendStatus(fiber.StatusOK)
	})

	body := strings.NewReader("status=2&merchant_data=abc&signature=sig")
	req := httptest.NewRequest(fiber.MethodPost, "/payment/abc/complete?lang=de", body)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	assert.Equal(t, "2", got.Param("status"))
	assert.Equal(t, "abc", got.Param("merchant_data"))
	assert.Equal(t, "sig", got.Param("signature"))
	assert.Equal(t, "de", got.Param("lang"))
}

func TestPaymentCompleteFormEncodedCallback(t *testing.T) {
	repo := newStubRepo()
	app := newPaymentTestApp(repo)
	p := seedPayment(t, repo, models.PaymentPending, "gate-card")

	params := map[string]string{"merchant_data": p.UUID, "status": "2"}
	params["signature"] = gatewaySign(params, testGatewayPassword)

	form := url.Values{}
	for key, value := range params {
		form.Set(key, value)
	}
	req := httptest.NewRequest(fiber.MethodPost, "/payment/"+p.UUID+"/complete", strings.NewReader(form.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, p.Customer.Origin+"?payment="+p.UUID, resp.Header.Get("Location"))
	assert.Equal(t, models.PaymentAccepted, p.State)
}

func TestPaymentMethodSecretMismatch(t *testing.T) {
	repo := newStubRepo()
	app := newPaymentTestApp(repo)
	p := seedPayment(t, repo, models.PaymentNew, "")

	form := url.Values{"method": {"pay"}, "secret": {"wrong"}}
	req := httptest.NewRequest(fiber.MethodPost, "/payment/"+p.UUID, strings.NewReader(form.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, models.PaymentNew, p.State)
}

func TestPaymentMethodSecretAccepted(t *testing.T) {
	repo := newStubRepo()
	app := newPaymentTestApp(repo)
	p := seedPayment(t, repo, models.PaymentNew, "")

	form := url.Values{"method": {"pay"}, "secret": {testTriggerSecret}}
	req := httptest.NewRequest(fiber.MethodPost, "/payment/"+p.UUID, strings.NewReader(form.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, models.PaymentAccepted, p.State)
}

func TestPaymentCreateEndpoint(t *testing.T) {
	repo := newStubRepo()
	app := newPaymentTestApp(repo)

	payload := map[string]interface{}{
		"secret":      testTriggerSecret,
		"origin":      "https://example.org/donate/",
		"user_id":     42,
		"email":       "billing@example.com",
		"amount":      100,
		"description": "Donation",
		"recurring":   "y",
		"extra":       map[string]interface{}{"reward": "1"},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(fiber.MethodPost, "/api/payment", strings.NewReader(string(body)))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var result struct {
		UUID string `json:"uuid"`
		URL  string `json:"url"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.NotEmpty(t, result.UUID)
	assert.Contains(t, result.URL, result.UUID)

	created := repo.payments[result.UUID]
	require.NotNil(t, created)
	assert.Equal(t, models.PaymentNew, created.State)
	assert.Equal(t, "1", created.Extra["reward"])
	require.Len(t, repo.customers, 1)
}

func TestPaymentCreateEndpointBadSecret(t *testing.T) {
	repo := newStubRepo()
	app := newPaymentTestApp(repo)

	body := `{"secret":"wrong","origin":"https://example.org/donate/","user_id":42,` +
		`"email":"billing@example.com","amount":100,"description":"Donation"}`
	req := httptest.NewRequest(fiber.MethodPost, "/api/payment", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Empty(t, repo.payments)
}
