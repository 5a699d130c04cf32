package payments

import "github.com/openlocale/website/app/models"

// Debug backends exercise the full lifecycle without talking to a real
// gateway. They are only usable when the engine runs in debug mode.

type debugPay struct{}

// NewDebugPay returns a backend that accepts every payment synchronously.
func NewDebugPay() Backend { return debugPay{} }

func (debugPay) Name() string    { return "pay" }
func (debugPay) Verbose() string { return "Pay" }
func (debugPay) Debug() bool     { return true }
func (debugPay) Recurring() bool { return true }

func (debugPay) Perform(p *models.Payment, ctx *Context) (string, error) {
	return "", nil
}

func (debugPay) Collect(p *models.Payment, ctx *Context) (bool, error) {
	return true, nil
}

type debugReject struct{}

// NewDebugReject returns a backend that rejects every payment.
func NewDebugReject() Backend { return debugReject{} }

func (debugReject) Name() string    { return "reject" }
func (debugReject) Verbose() string { return "Reject" }
func (debugReject) Debug() bool     { return true }
func (debugReject) Recurring() bool { return false }

func (debugReject) Perform(p *models.Payment, ctx *Context) (string, error) {
	return "", nil
}

func (debugReject) Collect(p *models.Payment, ctx *Context) (bool, error) {
	if p.Details == nil {
		p.Details = models.JSONMap{}
	}
	p.Details["reject_reason"] = "Debug reject"
	return false, nil
}

type debugPending struct{}

// NewDebugPending returns a backend that redirects to an external
// confirmation page and accepts on callback.
func NewDebugPending() Backend { return debugPending{} }

func (debugPending) Name() string    { return "pending" }
func (debugPending) Verbose() string { return "Pending" }
func (debugPending) Debug() bool     { return true }
func (debugPending) Recurring() bool { return false }

func (debugPending) Perform(p *models.Payment, ctx *Context) (string, error) {
	return "https://confirm.example.com/?url=" + ctx.CompleteURL, nil
}

func (debugPending) Collect(p *models.Payment, ctx *Context) (bool, error) {
	return true, nil
}
