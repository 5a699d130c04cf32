package payments

import (
	"fmt"
	"log"

	"github.com/openlocale/website/app/models"
)

// InvoiceGenerator produces a durable invoice record for an accepted
// payment. Generate returns the invoice identifier and the path of the
// rendered PDF.
type InvoiceGenerator interface {
	Enabled() bool
	Generate(p *models.Payment, methodLabel string) (id string, pdfPath string, err error)
}

// Notifier delivers payment outcome emails. Delivery is best effort; errors
// never unwind committed payment state.
type Notifier interface {
	PaymentAccepted(p *models.Payment, invoicePDF string) error
	PaymentFailed(p *models.Payment) error
}

// Service drives payments through their lifecycle. All state transitions
// run inside a transaction with the payment row locked, so concurrent
// completion attempts on the same payment serialize and only one wins.
type Service struct {
	repo     Repository
	registry *Registry
	invoices InvoiceGenerator
	notifier Notifier
	cfg      Config
}

// NewService wires the payment engine from its collaborators.
func NewService(repo Repository, registry *Registry, invoices InvoiceGenerator, notifier Notifier, cfg Config) *Service {
	return &Service{
		repo:     repo,
		registry: registry,
		invoices: invoices,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Registry exposes the backend registry for listing available methods.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Config returns the engine configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// Repo exposes the payment repository to the web layer.
func (s *Service) Repo() Repository {
	return s.repo
}

// CreatePayment registers a payment request coming from the origin system.
// The customer record tied to the origin user is reused when one exists.
func (s *Service) CreatePayment(origin string, userID int64, email string, amount int, description, recurring string, extra map[string]interface{}) (*models.Payment, error) {
	if recurring != models.RecurNone {
		if _, _, err := models.PeriodDelta(recurring); err != nil {
			return nil, err
		}
	}

	var payment *models.Payment
	err := s.repo.WithTransaction(func(tx Repository) error {
		customer, err := tx.GetOrCreateCustomer(origin, userID, email)
		if err != nil {
			return err
		}
		payment = &models.Payment{
			Amount:      amount,
			Description: description,
			Recurring:   recurring,
			CustomerID:  customer.ID,
			Customer:    *customer,
			Extra:       models.JSONMap{}.Merge(extra),
		}
		return tx.Create(payment)
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// Initiate starts processing a NEW payment with the named method. A
// non-empty redirect sends the user to the external gateway; otherwise the
// method settled synchronously and completed reports the outcome of the
// immediate completion.
func (s *Service) Initiate(uuid, method string, ctx *Context) (redirect string, err error) {
	backend, err := s.registry.Get(method)
	if err != nil {
		return "", err
	}

	err = s.repo.WithLock(uuid, func(tx Repository, p *models.Payment) error {
		if p.State != models.PaymentNew {
			return ErrInvalidState
		}
		if p.Repeat != nil && !backend.Recurring() {
			return ErrInvalidState
		}

		result, err := backend.Perform(p, ctx)
		if err != nil {
			return fmt.Errorf("payment %s: perform failed: %w", p.UUID, err)
		}
		redirect = result

		p.State = models.PaymentPending
		p.Backend = method
		if p.Details == nil {
			p.Details = models.JSONMap{}
		}
		p.Details["backend"] = method
		return tx.Save(p)
	})
	if err != nil {
		return "", err
	}
	return redirect, nil
}

// Complete finishes a PENDING payment from the gateway return callback and
// reports whether it was accepted. A failed callback validation is a
// business rejection, not an error.
func (s *Service) Complete(uuid string, ctx *Context) (ok bool, err error) {
	err = s.repo.WithLock(uuid, func(tx Repository, p *models.Payment) error {
		if p.State != models.PaymentPending {
			return ErrInvalidState
		}

		backend, err := s.registry.Get(p.Backend)
		if err != nil {
			return err
		}

		collected, err := backend.Collect(p, ctx)
		if err != nil {
			// Gateway trouble resolves to a rejection, business continuity
			// over strict error signaling.
			log.Printf("payment %s: collect error: %v", p.UUID, err)
			if p.Details == nil {
				p.Details = models.JSONMap{}
			}
			p.Details["reject_reason"] = err.Error()
			collected = false
		}
		if collected {
			ok = true
			return s.success(tx, p, backend)
		}
		ok = false
		return s.failure(tx, p)
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (s *Service) success(tx Repository, p *models.Payment, backend Backend) error {
	p.State = models.PaymentAccepted
	if !backend.Recurring() {
		p.Recurring = models.RecurNone
	}

	var invoicePDF string
	if s.invoices != nil && s.invoices.Enabled() {
		id, pdfPath, err := s.invoices.Generate(p, backend.Verbose())
		if err != nil {
			// The success path is not complete without an invoice.
			return fmt.Errorf("payment %s: invoice generation failed: %w", p.UUID, err)
		}
		p.Invoice = id
		invoicePDF = pdfPath
	}

	if err := tx.Save(p); err != nil {
		return err
	}

	if err := s.notifier.PaymentAccepted(p, invoicePDF); err != nil {
		log.Printf("payment %s: success notification failed: %v", p.UUID, err)
	}
	return nil
}

func (s *Service) failure(tx Repository, p *models.Payment) error {
	p.State = models.PaymentRejected

	if err := tx.Save(p); err != nil {
		return err
	}

	if err := s.notifier.PaymentFailed(p); err != nil {
		log.Printf("payment %s: failure notification failed: %v", p.UUID, err)
	}
	return nil
}
