package controllers

import (
	"errors"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/openlocale/website/app/models"
	"github.com/openlocale/website/internal/pkg/database"
	"github.com/openlocale/website/internal/pkg/invoices"
	"github.com/openlocale/website/internal/pkg/payments"
	"github.com/openlocale/website/internal/pkg/vat"
	"gorm.io/gorm"
)

var (
	paymentService *payments.Service
	invoiceStore   *invoices.Store
	validate       = validator.New()
)

// InitializePaymentController wires the payment engine with the backends
// available to this deployment.
func InitializePaymentController() {
	cfg := payments.ConfigFromEnv()
	gateCfg := payments.GatewayConfigFromEnv()

	registry := payments.NewRegistry(cfg.Debug,
		payments.NewDebugPay(),
		payments.NewDebugReject(),
		payments.NewDebugPending(),
		payments.NewCardGateway(gateCfg),
		payments.NewCoinGateway(gateCfg),
	)

	invoiceStore = invoices.NewStoreFromEnv()
	paymentService = payments.NewService(
		payments.NewRepository(database.GetDB()),
		registry,
		invoiceStore,
		payments.NewMailNotifier(),
		cfg,
	)
}

// PaymentService exposes the engine, for the recurring batch binary.
func PaymentService() *payments.Service {
	return paymentService
}

func requestContext(c *fiber.Ctx) *payments.Context {
	params := map[string]string{}
	for key, value := range c.Queries() {
		params[key] = value
	}
	// Gateways return via GET or form encoded POST; body values win so a
	// signed POST callback carries its parameters into Collect.
	c.Request().PostArgs().VisitAll(func(key, value []byte) {
		params[string(key)] = string(value)
	})
	return &payments.Context{
		Params:      params,
		Language:    c.Query("lang", "en"),
		BackURL:     c.BaseURL() + "/payment/" + c.Params("uuid"),
		CompleteURL: c.BaseURL() + "/payment/" + c.Params("uuid") + "/complete",
	}
}

func redirectOrigin(c *fiber.Ctx, p *models.Payment) error {
	return c.Redirect(p.Customer.Origin+"?payment="+p.UUID, fiber.StatusSeeOther)
}

func getPayment(c *fiber.Ctx) (*models.Payment, error) {
	p, err := paymentService.Repo().GetByUUID(c.Params("uuid"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "payment not found",
			})
		}
		log.Printf("payment lookup failed: %v", err)
		return nil, c.SendStatus(fiber.StatusInternalServerError)
	}
	return p, nil
}

// HandlePaymentShow returns the payment summary and usable methods.
// Payments that already left the NEW state are redirected back to the
// origin system in case the web redirect was aborted.
func HandlePaymentShow(c *fiber.Ctx) error {
	p, err := getPayment(c)
	if p == nil {
		return err
	}
	if p.State != models.PaymentNew {
		return redirectOrigin(c, p)
	}

	methods := []fiber.Map{}
	for _, backend := range paymentService.Registry().List() {
		methods = append(methods, fiber.Map{
			"name":      backend.Name(),
			"verbose":   backend.Verbose(),
			"recurring": backend.Recurring(),
		})
	}

	return c.JSON(fiber.Map{
		"uuid":              p.UUID,
		"state":             p.StateName(),
		"amount":            p.Amount,
		"vat_amount":        p.VATAmount(),
		"description":       p.Description,
		"recurring":         p.Recurring,
		"can_pay":           !p.Customer.IsEmpty(),
		"customer_required": p.Customer.IsEmpty(),
		"methods":           methods,
	})
}

type methodForm struct {
	Method string `json:"method" form:"method" validate:"required"`
	Secret string `json:"secret" form:"secret"`
}

// HandlePaymentMethod starts processing a NEW payment with the chosen
// method.
func HandlePaymentMethod(c *fiber.Ctx) error {
	p, err := getPayment(c)
	if p == nil {
		return err
	}
	if p.State != models.PaymentNew {
		return redirectOrigin(c, p)
	}
	if p.Customer.IsEmpty() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Please provide your billing information to complete the payment.",
		})
	}

	var form methodForm
	if err := c.BodyParser(&form); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := validate.Struct(&form); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "method is required"})
	}
	// The renewal trigger authenticates itself with the shared secret; a
	// wrong one must not burn the payment attempt.
	if form.Secret != "" && !paymentService.Config().VerifySecret(form.Secret) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "invalid secret"})
	}

	ctx := requestContext(c)
	redirect, err := paymentService.Initiate(p.UUID, form.Method, ctx)
	switch {
	case errors.Is(err, payments.ErrUnknownBackend):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown payment method"})
	case errors.Is(err, payments.ErrInvalidState):
		return redirectOrigin(c, p)
	case err != nil:
		log.Printf("payment %s: initiate failed: %v", p.UUID, err)
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	if redirect != "" {
		return c.Redirect(redirect, fiber.StatusSeeOther)
	}

	// Synchronous method, complete right away.
	if _, err := paymentService.Complete(p.UUID, ctx); err != nil && !errors.Is(err, payments.ErrInvalidState) {
		log.Printf("payment %s: complete failed: %v", p.UUID, err)
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	return redirectOrigin(c, p)
}

// HandlePaymentComplete is the gateway return callback. Duplicate callback
// delivery is absorbed by redirecting to the origin without reprocessing.
func HandlePaymentComplete(c *fiber.Ctx) error {
	p, err := getPayment(c)
	if p == nil {
		return err
	}
	if p.State == models.PaymentNew {
		cfg := paymentService.Config()
		return c.Redirect(cfg.PaymentURL(c.Query("lang", "en"), p.UUID), fiber.StatusSeeOther)
	}
	if p.State != models.PaymentPending {
		return redirectOrigin(c, p)
	}

	if _, err := paymentService.Complete(p.UUID, requestContext(c)); err != nil {
		if errors.Is(err, payments.ErrInvalidState) {
			// Lost the race against a concurrent callback.
			return redirectOrigin(c, p)
		}
		log.Printf("payment %s: complete failed: %v", p.UUID, err)
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	return redirectOrigin(c, p)
}

type customerForm struct {
	Name    string `json:"name" form:"name" validate:"required,max=200"`
	Address string `json:"address" form:"address" validate:"required,max=200"`
	City    string `json:"city" form:"city" validate:"required,max=200"`
	Country string `json:"country" form:"country" validate:"required,len=2"`
	VAT     string `json:"vat" form:"vat" validate:"omitempty,max=20"`
	Tax     string `json:"tax" form:"tax" validate:"omitempty,max=200"`
	Email   string `json:"email" form:"email" validate:"required,email"`
}

// HandleCustomerUpdate is the billing info submission step.
func HandleCustomerUpdate(c *fiber.Ctx) error {
	p, err := getPayment(c)
	if p == nil {
		return err
	}
	if p.State != models.PaymentNew {
		return redirectOrigin(c, p)
	}

	var form customerForm
	if err := c.BodyParser(&form); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := validate.Struct(&form); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if form.VAT != "" {
		if err := vat.ValidateVATIN(form.VAT); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"field": "vat",
				"error": err.Error(),
			})
		}
	}

	customer := p.Customer
	customer.Name = form.Name
	customer.Address = form.Address
	customer.City = form.City
	customer.Country = form.Country
	customer.VAT = form.VAT
	customer.Tax = form.Tax
	customer.Email = form.Email

	if err := customer.Validate(); err != nil {
		var fieldErr *models.FieldError
		if errors.As(err, &fieldErr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"field": fieldErr.Field,
				"error": fieldErr.Message,
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if err := paymentService.Repo().SaveCustomer(&customer); err != nil {
		log.Printf("customer %d: save failed: %v", customer.ID, err)
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// HandleInvoiceDownload serves the invoice PDF of an accepted payment.
func HandleInvoiceDownload(c *fiber.Ctx) error {
	p, err := getPayment(c)
	if p == nil {
		return err
	}
	if p.Invoice == "" || !invoiceStore.Valid(p.Invoice) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "invoice not available"})
	}
	return c.Download(invoiceStore.PDFPath(p.Invoice), p.InvoiceFilename())
}

type createForm struct {
	Secret      string                 `json:"secret" form:"secret" validate:"required"`
	Origin      string                 `json:"origin" form:"origin" validate:"required,url,max=300"`
	UserID      int64                  `json:"user_id" form:"user_id" validate:"required"`
	Email       string                 `json:"email" form:"email" validate:"required,email"`
	Amount      int                    `json:"amount" form:"amount" validate:"required,gt=0"`
	Description string                 `json:"description" form:"description" validate:"required"`
	Recurring   string                 `json:"recurring" form:"recurring" validate:"omitempty,oneof=y b m"`
	Extra       map[string]interface{} `json:"extra" form:"-"`
}

// HandlePaymentCreate registers a payment on behalf of the origin system,
// authenticated with the shared secret. The customer record for the origin
// user is reused across payments.
func HandlePaymentCreate(c *fiber.Ctx) error {
	var form createForm
	if err := c.BodyParser(&form); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := validate.Struct(&form); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if !paymentService.Config().VerifySecret(form.Secret) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "invalid secret"})
	}

	p, err := paymentService.CreatePayment(
		form.Origin, form.UserID, form.Email,
		form.Amount, form.Description, form.Recurring, form.Extra,
	)
	if err != nil {
		log.Printf("payment creation failed: %v", err)
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"uuid": p.UUID,
		"url":  paymentService.Config().PaymentURL(c.Query("lang", "en"), p.UUID),
	})
}

type fetchVATForm struct {
	Payment string `json:"payment" form:"payment" validate:"required"`
	VAT     string `json:"vat" form:"vat" validate:"required"`
}

// HandleFetchVAT looks up a VAT ID in the VIES registry for a payment that
// is still being filled in.
func HandleFetchVAT(c *fiber.Ctx) error {
	var form fetchVATForm
	if err := c.BodyParser(&form); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := validate.Struct(&form); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing needed parameters"})
	}

	p, err := paymentService.Repo().GetByUUID(form.Payment)
	if err != nil || p.State != models.PaymentNew {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "already processed payment"})
	}

	result, err := vat.Lookup(form.VAT)
	if err != nil {
		return c.JSON(fiber.Map{"valid": false})
	}
	return c.JSON(result)
}
