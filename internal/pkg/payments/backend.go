package payments

import (
	"errors"

	"github.com/openlocale/website/app/models"
)

// ErrInvalidState is returned when a lifecycle operation is attempted on a
// payment that is not in the required state. The payment is left untouched;
// callers should re-fetch the current state instead of retrying blindly.
var ErrInvalidState = errors.New("invalid payment state")

// ErrUnknownBackend is returned by the registry for names that are not
// registered or not usable in the current mode.
var ErrUnknownBackend = errors.New("unknown payment backend")

// Context carries the request values a backend needs to talk to its gateway
// without coupling it to the web framework.
type Context struct {
	// Params holds the query/form parameters of the gateway callback.
	Params map[string]string
	// Language is the UI language requested by the user.
	Language string
	// BackURL returns the user to the payment page, CompleteURL is the
	// gateway return callback.
	BackURL     string
	CompleteURL string
}

// Param returns a single callback parameter or "".
func (c *Context) Param(key string) string {
	if c == nil || c.Params == nil {
		return ""
	}
	return c.Params[key]
}

// Backend implements one payment method's gateway protocol. Implementations
// are stateless; the payment being driven is passed in explicitly and is
// row-locked by the calling service for the duration of the call.
type Backend interface {
	// Name is the stable identifier stored on the payment row.
	Name() string
	// Verbose is the human readable method label used on invoices.
	Verbose() string
	// Debug marks test-only backends that are hidden outside debug mode.
	Debug() bool
	// Recurring reports whether the method supports recurring billing.
	Recurring() bool

	// Perform starts the gateway interaction. A non-empty return value is a
	// redirect URL the user has to be sent to; "" means the method settles
	// synchronously.
	Perform(p *models.Payment, ctx *Context) (redirect string, err error)
	// Collect validates the gateway callback and reports the outcome. A
	// rejected payment is a business outcome, not an error: Collect returns
	// false and records a reject_reason in the payment details.
	Collect(p *models.Payment, ctx *Context) (bool, error)
}
