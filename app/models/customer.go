package models

import (
	"fmt"
	"strings"
)

// EUVATRates lists the standard VAT rate per EU member state. It is used to
// decide whether a customer is an EU end consumer; the flat VATRate is what
// gets charged (see Customer.VATRateFor).
var EUVATRates = map[string]int{
	"BE": 21,
	"BG": 20,
	"CZ": 21,
	"DK": 25,
	"DE": 19,
	"EE": 20,
	"IE": 23,
	"GR": 24,
	"ES": 21,
	"FR": 20,
	"HR": 25,
	"IT": 22,
	"CY": 19,
	"LV": 21,
	"LT": 21,
	"LU": 17,
	"HU": 27,
	"MT": 18,
	"NL": 21,
	"AT": 20,
	"PL": 23,
	"PT": 23,
	"RO": 19,
	"SI": 22,
	"SK": 20,
	"FI": 24,
	"SE": 25,
	"GB": 20,
}

// VATRate is the flat rate applied to all customers that need VAT.
const VATRate = 21

// HomeCountry is the seller's country of registration.
const HomeCountry = "CZ"

// Customer carries the billing identity of a paying user. The record is
// created when a payment flow starts for an external user and is only ever
// mutated through the billing info submission step.
type Customer struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	VAT     string `gorm:"type:varchar(20);default:''" json:"vat"`
	Tax     string `gorm:"type:varchar(200);default:''" json:"tax"`
	Name    string `gorm:"type:varchar(200);default:''" json:"name"`
	Address string `gorm:"type:varchar(200);default:''" json:"address"`
	City    string `gorm:"type:varchar(200);default:''" json:"city"`
	Country string `gorm:"type:varchar(2);default:''" json:"country"`
	Email   string `gorm:"type:varchar(190);not null" json:"email" validate:"required,email"`
	// Origin is the URL of the external system that owns this customer,
	// UserID its user reference there.
	Origin string `gorm:"type:varchar(300);not null;index:idx_customers_origin_user,priority:1" json:"origin"`
	UserID int64  `gorm:"not null;index:idx_customers_origin_user,priority:2" json:"user_id"`
}

// TableName specifies the table name for the Customer model
func (Customer) TableName() string {
	return "customers"
}

func (c *Customer) String() string {
	if c.Name != "" {
		return fmt.Sprintf("%s (%s)", c.Name, c.Email)
	}
	return c.Email
}

// CountryCode returns the uppercased ISO country code or "".
func (c *Customer) CountryCode() string {
	return strings.ToUpper(c.Country)
}

// VATCountryCode returns the country prefix of the VAT ID or "".
func (c *Customer) VATCountryCode() string {
	if len(c.VAT) >= 2 {
		return strings.ToUpper(c.VAT[:2])
	}
	return ""
}

// Validate checks cross-field billing constraints. A VAT ID carrying a
// different country prefix than the selected country is reported, never
// silently corrected.
func (c *Customer) Validate() error {
	if c.VAT != "" && c.VATCountryCode() != c.CountryCode() {
		return &FieldError{Field: "country", Message: "The country has to match your VAT code"}
	}
	return nil
}

// IsEmpty reports whether the billing address is still incomplete. Payments
// may not proceed for an empty customer.
func (c *Customer) IsEmpty() bool {
	return c.Name == "" || c.Address == "" || c.City == "" || c.Country == ""
}

// IsEUEndUser reports whether the customer is an EU consumer without a VAT ID.
func (c *Customer) IsEUEndUser() bool {
	_, eu := EUVATRates[c.CountryCode()]
	return eu && c.VAT == ""
}

// NeedsVAT reports whether VAT has to be charged for this customer.
func (c *Customer) NeedsVAT() bool {
	return c.VATCountryCode() == HomeCountry || c.IsEUEndUser()
}

// VATRateFor returns the applicable VAT rate in percent.
func (c *Customer) VATRateFor() int {
	if c.NeedsVAT() {
		return VATRate
		// Use the following for country specific VAT:
		// return EUVATRates[c.CountryCode()]
	}
	return 0
}

// FieldError is a validation failure tied to a single billing field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
