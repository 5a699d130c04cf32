package vat

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/openlocale/website/app/models"
)

// Country specific VATIN number patterns (without the country prefix).
// Countries not listed fall back to the generic pattern.
var vatinPatterns = map[string]*regexp.Regexp{
	"AT": regexp.MustCompile(`^U[0-9]{8}$`),
	"BE": regexp.MustCompile(`^0?[0-9]{9}$`),
	"CZ": regexp.MustCompile(`^[0-9]{8,10}$`),
	"DE": regexp.MustCompile(`^[0-9]{9}$`),
	"FR": regexp.MustCompile(`^[0-9A-Z]{2}[0-9]{9}$`),
	"GB": regexp.MustCompile(`^([0-9]{9}([0-9]{3})?|[A-Z]{2}[0-9]{3})$`),
	"IE": regexp.MustCompile(`^[0-9][0-9A-Z+*][0-9]{5}[A-Z]{1,2}$`),
	"NL": regexp.MustCompile(`^[0-9]{9}B[0-9]{2}$`),
	"PL": regexp.MustCompile(`^[0-9]{10}$`),
	"SK": regexp.MustCompile(`^[0-9]{10}$`),
}

var vatinGeneric = regexp.MustCompile(`^[0-9A-Za-z+*.]{2,12}$`)

// ValidateVATIN structurally validates a European VAT identifier.
func ValidateVATIN(vatin string) error {
	vatin = strings.ToUpper(strings.TrimSpace(vatin))
	if len(vatin) < 4 {
		return fmt.Errorf("VAT ID is too short")
	}

	country := vatin[:2]
	if _, ok := models.EUVATRates[country]; !ok {
		return fmt.Errorf("unknown VAT country code: %s", country)
	}

	number := vatin[2:]
	pattern, ok := vatinPatterns[country]
	if !ok {
		pattern = vatinGeneric
	}
	if !pattern.MatchString(number) {
		return fmt.Errorf("malformed VAT ID for %s", country)
	}
	return nil
}
