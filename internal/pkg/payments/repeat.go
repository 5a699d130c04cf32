package payments

import (
	"fmt"
	"log"
	"net/http"
	"net/url"

	"github.com/openlocale/website/app/models"
)

// Renewals that fail this many times in a row abandon the subscription.
const maxRenewalFailures = 3

// RepeatPayment creates a follow-up payment for a recurring payment and
// triggers remote processing at the origin system. It returns false without
// error when the renewal is refused: the payment method was retired, or the
// renewal chain accumulated three rejections since the last processed one.
func (s *Service) RepeatPayment(p *models.Payment, extra map[string]interface{}) (bool, error) {
	// A retired payment method must not silently retry.
	if _, err := s.registry.Get(p.Backend); err != nil {
		return false, nil
	}

	abandoned := false
	err := s.repo.WithTransaction(func(tx Repository) error {
		renewals, err := tx.Renewals(p.UUID)
		if err != nil {
			return err
		}
		if countFailureStreak(renewals) >= maxRenewalFailures {
			abandoned = true
			return nil
		}

		renewal := &models.Payment{
			Amount:      p.Amount,
			Description: p.Description,
			Recurring:   models.RecurNone,
			CustomerID:  p.CustomerID,
			AmountFixed: p.AmountFixed,
			Repeat:      &p.UUID,
			Extra:       p.Extra.Merge(extra),
		}
		return tx.Create(renewal)
	})
	if err != nil {
		return false, err
	}
	if abandoned {
		return false, nil
	}

	// Trigger payment processing remotely, outside the transaction: the new
	// payment must survive a failed trigger and gets picked up again by a
	// later scheduler pass.
	if err := s.trigger(p); err != nil {
		log.Printf("payment %s: renewal trigger failed: %v", p.UUID, err)
	}
	return true, nil
}

// countFailureStreak counts the rejected renewals since the most recent
// processed one, or since the chain start if none was processed yet.
func countFailureStreak(renewals []models.Payment) int {
	streak := 0
	for _, renewal := range renewals {
		switch renewal.State {
		case models.PaymentProcessed:
			streak = 0
		case models.PaymentRejected:
			streak++
		}
	}
	return streak
}

func (s *Service) trigger(p *models.Payment) error {
	client := &http.Client{
		Timeout: s.cfg.TriggerTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.PostForm(s.cfg.PaymentURL("en", p.UUID), url.Values{
		"method": {p.Backend},
		"secret": {s.cfg.Secret},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
