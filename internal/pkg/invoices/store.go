package invoices

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/openlocale/website/app/models"
	"github.com/openlocale/website/internal/pkg/env"
	"github.com/shopspring/decimal"
)

// Store keeps invoice artifacts in a git-versioned directory tree:
//
//	contacts/  one record per customer
//	invoices/  one ledger line per invoice
//	pdf/       rendered documents
//	paid/      paid markers with the raw gateway payload
//
// A generated invoice is committed as a single git commit, so a partial
// write never becomes visible in the store history.
type Store struct {
	root   string
	commit bool
}

// NewStore creates a store rooted at dir. An empty dir disables invoicing.
func NewStore(dir string) *Store {
	return &Store{root: dir, commit: true}
}

// NewStoreFromEnv creates the store configured by PAYMENT_INVOICES.
func NewStoreFromEnv() *Store {
	return NewStore(env.GetEnv("PAYMENT_INVOICES", ""))
}

// WithoutCommit disables the git commit step, for tests and local runs.
func (s *Store) WithoutCommit() *Store {
	return &Store{root: s.root, commit: false}
}

// Enabled reports whether invoice generation is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.root != ""
}

// PDFPath returns the on-disk path of an invoice document.
func (s *Store) PDFPath(id string) string {
	return filepath.Join(s.root, "pdf", id+".pdf")
}

// Valid reports whether the invoice document exists on disk.
func (s *Store) Valid(id string) bool {
	if id == "" || !s.Enabled() {
		return false
	}
	_, err := os.Stat(s.PDFPath(id))
	return err == nil
}

// Generate produces the full invoice record for an accepted payment: the
// contact record, the ledger line, the rendered document and the paid
// marker, committed to the store as one unit. It returns the invoice
// identifier and the path of the rendered PDF.
func (s *Store) Generate(p *models.Payment, methodLabel string) (string, string, error) {
	if !s.Enabled() {
		return "", "", nil
	}

	customer := p.Customer
	customerID := fmt.Sprintf("web-%d", customer.ID)

	for _, dir := range []string{"contacts", "invoices", "pdf", "paid"} {
		if err := os.MkdirAll(filepath.Join(s.root, dir), 0o755); err != nil {
			return "", "", err
		}
	}

	contactFile, err := s.updateContact(customerID, &customer)
	if err != nil {
		return "", "", err
	}

	id, ledgerFile, err := s.allocateLedger(customerID, p, methodLabel)
	if err != nil {
		return "", "", err
	}

	pdfFile := s.PDFPath(id)
	if err := s.renderDocument(pdfFile, id, p, methodLabel); err != nil {
		return "", "", err
	}

	paidFile, err := s.markPaid(id, p)
	if err != nil {
		return "", "", err
	}

	if s.commit {
		if err := s.commitArtifacts(id, contactFile, ledgerFile, pdfFile, paidFile); err != nil {
			return "", "", err
		}
	}
	return id, pdfFile, nil
}

func (s *Store) updateContact(customerID string, customer *models.Customer) (string, error) {
	path := filepath.Join(s.root, "contacts", customerID+".contact")
	record := fmt.Sprintf(
		"name = %s\naddress = %s\ncity = %s\ncountry = %s\nemail = %s\ntax_reg = %s\nvat_reg = %s\ncurrency = EUR\ncategory = web\n",
		customer.Name,
		customer.Address,
		customer.City,
		customer.CountryCode(),
		customer.Email,
		customer.Tax,
		customer.VAT,
	)
	return path, os.WriteFile(path, []byte(record), 0o644)
}

// allocateLedger claims a sequential identifier within the current year,
// e.g. W20260042, by creating the ledger file exclusively. Payments
// completing concurrently each hold only their own row lock, so the
// exclusive create is what keeps their identifiers disjoint: a loser of the
// race gets fs.ErrExist and probes the next sequence number.
func (s *Store) allocateLedger(customerID string, p *models.Payment, methodLabel string) (string, string, error) {
	year := time.Now().Year()
	prefix := fmt.Sprintf("W%d", year)

	entries, err := os.ReadDir(filepath.Join(s.root, "invoices"))
	if err != nil {
		return "", "", err
	}
	sequence := 0
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), prefix) {
			sequence++
		}
	}

	line := fmt.Sprintf(
		"contact = %s\nrate = %s\nitem = %s\nvat = %d\npayment_method = %s\n",
		customerID,
		decimal.NewFromInt(int64(p.Amount)).StringFixed(2),
		p.Description,
		p.Customer.VATRateFor(),
		methodLabel,
	)

	for {
		sequence++
		id := fmt.Sprintf("%s%04d", prefix, sequence)
		path := filepath.Join(s.root, "invoices", id+".invoice")

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", "", err
		}
		if _, err := f.WriteString(line); err != nil {
			f.Close()
			return "", "", err
		}
		if err := f.Close(); err != nil {
			return "", "", err
		}
		return id, path, nil
	}
}

// renderDocument writes a minimal single-page PDF carrying the invoice
// summary. The heavyweight typesetting lives in the accounting toolchain
// that consumes the store; this document is the customer-facing receipt.
func (s *Store) renderDocument(path, id string, p *models.Payment, methodLabel string) error {
	lines := []string{
		fmt.Sprintf("Invoice %s", id),
		fmt.Sprintf("Customer: %s", p.Customer.String()),
		fmt.Sprintf("Item: %s", p.Description),
		fmt.Sprintf("Amount: %.2f EUR", p.VATAmount()),
		fmt.Sprintf("VAT rate: %d%%", p.Customer.VATRateFor()),
		fmt.Sprintf("Payment method: %s", methodLabel),
	}
	return os.WriteFile(path, renderPDF(lines), 0o644)
}

func (s *Store) markPaid(id string, p *models.Payment) (string, error) {
	path := filepath.Join(s.root, "paid", id+".json")
	payload, err := json.MarshalIndent(p.Details, "", "  ")
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, payload, 0o644)
}

func (s *Store) commitArtifacts(id string, files ...string) error {
	args := append([]string{"add", "--"}, files...)
	add := exec.Command("git", args...)
	add.Dir = s.root
	if out, err := add.CombinedOutput(); err != nil {
		return fmt.Errorf("git add failed: %v: %s", err, out)
	}

	commit := exec.Command("git", "commit", "-m", fmt.Sprintf("Invoice %s", id))
	commit.Dir = s.root
	if out, err := commit.CombinedOutput(); err != nil {
		return fmt.Errorf("git commit failed: %v: %s", err, out)
	}
	return nil
}
