package payments

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/openlocale/website/app/models"
	"github.com/openlocale/website/internal/pkg/mail"
)

const acceptedMailBody = `Hello

Thank you for your payment on openlocale.org.

You will find an invoice for this payment attached.
Alternatively you can download it from the website:

%s
`

const failedMailBody = `Hello

Your payment on openlocale.org has failed.

%s

Retry issuing the payment on the website:

%s

If concerning a recurring payment, it is retried three times,
and if still failing, will be cancelled.
`

// MailNotifier sends payment outcome emails through the SMTP mailer.
type MailNotifier struct{}

// NewMailNotifier creates the standard mail notifier.
func NewMailNotifier() *MailNotifier {
	return &MailNotifier{}
}

// PaymentAccepted mails the customer about a successful payment, attaching
// the invoice document when one was generated.
func (n *MailNotifier) PaymentAccepted(p *models.Payment, invoicePDF string) error {
	subject := "Your payment on openlocale.org"
	body := fmt.Sprintf(acceptedMailBody, p.Customer.Origin)

	if invoicePDF != "" {
		data, err := os.ReadFile(invoicePDF)
		if err != nil {
			return err
		}
		return mail.SendMailWithAttachment(
			p.Customer.Email, subject, body,
			filepath.Base(invoicePDF), data, "application/pdf",
		)
	}
	return mail.SendMail(p.Customer.Email, subject, body)
}

// PaymentFailed mails the customer about a rejected payment.
func (n *MailNotifier) PaymentFailed(p *models.Payment) error {
	reason := p.RejectReason()
	if reason == "" {
		reason = "Unknown"
	}
	body := fmt.Sprintf(failedMailBody, reason, p.Customer.Origin)
	return mail.SendMail(p.Customer.Email, "Your failed payment on openlocale.org", body)
}
