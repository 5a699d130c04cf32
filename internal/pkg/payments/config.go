package payments

import (
	"crypto/subtle"
	"strconv"
	"strings"
	"time"

	"github.com/openlocale/website/internal/pkg/env"
)

// Languages the public payment pages are available in.
var supportedLanguages = map[string]struct{}{
	"en": {},
	"cs": {},
	"de": {},
	"es": {},
	"fr": {},
	"pt": {},
	"ru": {},
}

// Config is the payment engine configuration surface.
type Config struct {
	// Debug exposes the debug backends.
	Debug bool
	// Secret authenticates the outbound renewal trigger at the origin.
	Secret string
	// RedirectURL is the public payment page template with {language} and
	// {uuid} placeholders.
	RedirectURL string
	// TriggerTimeout bounds the outbound renewal trigger call.
	TriggerTimeout time.Duration
}

// ConfigFromEnv loads the payment configuration from the environment.
func ConfigFromEnv() Config {
	timeout, err := strconv.Atoi(env.GetEnv("PAYMENT_TRIGGER_TIMEOUT", "15"))
	if err != nil || timeout <= 0 {
		timeout = 15
	}
	return Config{
		Debug:          env.GetEnv("PAYMENT_DEBUG", "0") == "1",
		Secret:         env.GetEnv("PAYMENT_SECRET", "secret"),
		RedirectURL:    env.GetEnv("PAYMENT_REDIRECT_URL", "https://openlocale.org/{language}/payment/{uuid}/"),
		TriggerTimeout: time.Duration(timeout) * time.Second,
	}
}

// VerifySecret compares a caller supplied secret against the configured one
// in constant time.
func (c Config) VerifySecret(secret string) bool {
	return subtle.ConstantTimeCompare([]byte(secret), []byte(c.Secret)) == 1
}

// PaymentURL renders the public payment page URL for a payment token.
// Unsupported languages fall back to English.
func (c Config) PaymentURL(language, uuid string) string {
	if _, ok := supportedLanguages[language]; !ok {
		language = "en"
	}
	url := strings.ReplaceAll(c.RedirectURL, "{language}", language)
	return strings.ReplaceAll(url, "{uuid}", uuid)
}
