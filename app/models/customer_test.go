package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomerNeedsVAT(t *testing.T) {
	tests := []struct {
		name    string
		country string
		vat     string
		want    bool
		rate    int
	}{
		{name: "home country with VAT", country: "CZ", vat: "CZ8003280318", want: true, rate: 21},
		{name: "home country end user", country: "CZ", vat: "", want: true, rate: 21},
		{name: "EU end user", country: "DE", vat: "", want: true, rate: 21},
		{name: "EU business", country: "DE", vat: "DE123456789", want: false, rate: 0},
		{name: "outside EU", country: "US", vat: "", want: false, rate: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Customer{Country: tt.country, VAT: tt.vat}
			assert.Equal(t, tt.want, c.NeedsVAT())
			assert.Equal(t, tt.rate, c.VATRateFor())
		})
	}
}

func TestCustomerValidateCountryMismatch(t *testing.T) {
	c := &Customer{Country: "DE", VAT: "CZ8003280318"}

	err := c.Validate()
	require.Error(t, err)

	var fieldErr *FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "country", fieldErr.Field)
}

func TestCustomerValidateMatchingCountry(t *testing.T) {
	c := &Customer{Country: "CZ", VAT: "CZ8003280318"}
	require.NoError(t, c.Validate())

	// No VAT at all is fine too.
	c = &Customer{Country: "DE"}
	require.NoError(t, c.Validate())
}

func TestCustomerIsEmpty(t *testing.T) {
	c := &Customer{Email: "billing@example.com"}
	assert.True(t, c.IsEmpty())

	c.Name = "Example Corp"
	c.Address = "Example Street 1"
	c.City = "150 00 Prague"
	assert.True(t, c.IsEmpty())

	c.Country = "CZ"
	assert.False(t, c.IsEmpty())
}

func TestCustomerString(t *testing.T) {
	c := &Customer{Email: "billing@example.com"}
	assert.Equal(t, "billing@example.com", c.String())

	c.Name = "Example Corp"
	assert.Equal(t, "Example Corp (billing@example.com)", c.String())
}

func TestCustomerVATCountryCode(t *testing.T) {
	assert.Equal(t, "CZ", (&Customer{VAT: "cz8003280318"}).VATCountryCode())
	assert.Equal(t, "", (&Customer{}).VATCountryCode())
}
