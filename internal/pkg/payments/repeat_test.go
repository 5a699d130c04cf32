package payments

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openlocale/website/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRepeatService keeps the renewal trigger local so tests never touch
// the network.
func newRepeatService(repo Repository) *Service {
	cfg := testConfig()
	cfg.RedirectURL = "http://127.0.0.1:1/{language}/payment/{uuid}/"
	cfg.TriggerTimeout = 100 * time.Millisecond
	return NewService(repo, NewRegistry(true, NewDebugPay()), &fakeInvoices{}, &fakeNotifier{}, cfg)
}

func recurringPayment(t *testing.T, repo *fakeRepository) *models.Payment {
	t.Helper()
	p := createPayment(t, repo, models.RecurAnnual)
	p.State = models.PaymentProcessed
	p.Backend = "pay"
	p.Extra = models.JSONMap{"reward": "10"}
	require.NoError(t, repo.Save(p))
	return p
}

func addRenewal(t *testing.T, repo *fakeRepository, p *models.Payment, state int, age time.Duration) {
	t.Helper()
	renewal := &models.Payment{
		Amount:     p.Amount,
		CustomerID: p.CustomerID,
		Repeat:     &p.UUID,
		Created:    time.Now().Add(-age),
	}
	require.NoError(t, repo.Create(renewal))
	renewal.State = state
	require.NoError(t, repo.Save(renewal))
}

func TestRepeatPaymentCreatesRenewal(t *testing.T) {
	repo := newFakeRepository()
	svc := newRepeatService(repo)
	p := recurringPayment(t, repo)

	ok, err := svc.RepeatPayment(p, map[string]interface{}{"subscription": "42"})
	require.NoError(t, err)
	assert.True(t, ok)

	renewals, err := repo.Renewals(p.UUID)
	require.NoError(t, err)
	require.Len(t, renewals, 1)

	renewal := renewals[0]
	assert.Equal(t, models.PaymentNew, renewal.State)
	assert.Equal(t, p.Amount, renewal.Amount)
	assert.Equal(t, p.CustomerID, renewal.CustomerID)
	assert.Equal(t, models.RecurNone, renewal.Recurring)
	assert.Equal(t, "10", renewal.Extra["reward"])
	assert.Equal(t, "42", renewal.Extra["subscription"])
}

func TestRepeatPaymentThreeStrikes(t *testing.T) {
	repo := newFakeRepository()
	svc := newRepeatService(repo)
	p := recurringPayment(t, repo)

	addRenewal(t, repo, p, models.PaymentRejected, 3*time.Hour)
	addRenewal(t, repo, p, models.PaymentRejected, 2*time.Hour)
	addRenewal(t, repo, p, models.PaymentRejected, time.Hour)

	ok, err := svc.RepeatPayment(p, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	renewals, err := repo.Renewals(p.UUID)
	require.NoError(t, err)
	assert.Len(t, renewals, 3)
}

func TestRepeatPaymentProcessedResetsStreak(t *testing.T) {
	repo := newFakeRepository()
	svc := newRepeatService(repo)
	p := recurringPayment(t, repo)

	// Old failures before a successful charge do not count.
	addRenewal(t, repo, p, models.PaymentRejected, 5*time.Hour)
	addRenewal(t, repo, p, models.PaymentRejected, 4*time.Hour)
	addRenewal(t, repo, p, models.PaymentRejected, 3*time.Hour)
	addRenewal(t, repo, p, models.PaymentProcessed, 2*time.Hour)
	addRenewal(t, repo, p, models.PaymentRejected, time.Hour)

	ok, err := svc.RepeatPayment(p, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRepeatPaymentRetiredBackend(t *testing.T) {
	repo := newFakeRepository()
	svc := newRepeatService(repo)
	p := recurringPayment(t, repo)
	p.Backend = "retired-gateway"
	require.NoError(t, repo.Save(p))

	ok, err := svc.RepeatPayment(p, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	renewals, err := repo.Renewals(p.UUID)
	require.NoError(t, err)
	assert.Empty(t, renewals)
}

func TestRepeatPaymentTriggersOrigin(t *testing.T) {
	var gotMethod, gotSecret, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotMethod = r.PostFormValue("method")
		gotSecret = r.PostFormValue("secret")
		gotPath = r.URL.Path
	}))
	defer server.Close()

	repo := newFakeRepository()
	cfg := testConfig()
	cfg.RedirectURL = server.URL + "/{language}/payment/{uuid}/"
	svc := NewService(repo, NewRegistry(true, NewDebugPay()), &fakeInvoices{}, &fakeNotifier{}, cfg)
	p := recurringPayment(t, repo)

	ok, err := svc.RepeatPayment(p, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "pay", gotMethod)
	assert.Equal(t, "test-secret", gotSecret)
	assert.Equal(t, "/en/payment/"+p.UUID+"/", gotPath)
}

func TestRepeatPaymentSurvivesTriggerFailure(t *testing.T) {
	repo := newFakeRepository()
	svc := newRepeatService(repo)
	p := recurringPayment(t, repo)

	// The renewal is created even when the origin cannot be reached.
	ok, err := svc.RepeatPayment(p, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	renewals, err := repo.Renewals(p.UUID)
	require.NoError(t, err)
	assert.Len(t, renewals, 1)
}

func TestCountFailureStreak(t *testing.T) {
	assert.Equal(t, 0, countFailureStreak(nil))
	assert.Equal(t, 2, countFailureStreak([]models.Payment{
		{State: models.PaymentRejected},
		{State: models.PaymentNew},
		{State: models.PaymentRejected},
	}))
	assert.Equal(t, 1, countFailureStreak([]models.Payment{
		{State: models.PaymentRejected},
		{State: models.PaymentProcessed},
		{State: models.PaymentRejected},
	}))
}
