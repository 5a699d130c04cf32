package vat

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openlocale/website/internal/pkg/cache"
)

const viesEndpoint = "https://ec.europa.eu/taxation_customs/vies/rest-api/ms/%s/vat/%s"

const viesCacheTTL = 30 * 24 * time.Hour

var viesClient = &http.Client{Timeout: 15 * time.Second}

// Result is the outcome of a VIES registry lookup.
type Result struct {
	CountryCode string `json:"country_code"`
	VATNumber   string `json:"vat_number"`
	Valid       bool   `json:"valid"`
	Name        string `json:"name,omitempty"`
	Address     string `json:"address,omitempty"`
}

// Lookup checks a VAT identifier against the EU VIES registry. Results are
// cached for a month, as registry entries change rarely and the service is
// flaky.
func Lookup(vatin string) (*Result, error) {
	vatin = strings.ToUpper(strings.TrimSpace(vatin))
	if err := ValidateVATIN(vatin); err != nil {
		return nil, err
	}

	cacheKey := "vies:" + vatin
	if cached, err := cache.Get(cacheKey); err == nil {
		var result Result
		if err := json.Unmarshal([]byte(cached), &result); err == nil {
			return &result, nil
		}
	}

	resp, err := viesClient.Get(fmt.Sprintf(viesEndpoint, vatin[:2], vatin[2:]))
	if err != nil {
		return nil, fmt.Errorf("VIES lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("VIES lookup failed: status %d", resp.StatusCode)
	}

	var payload struct {
		IsValid bool   `json:"isValid"`
		Name    string `json:"name"`
		Address string `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("VIES lookup failed: %w", err)
	}

	result := &Result{
		CountryCode: vatin[:2],
		VATNumber:   vatin[2:],
		Valid:       payload.IsValid,
		Name:        payload.Name,
		Address:     payload.Address,
	}
	if data, err := json.Marshal(result); err == nil {
		_ = cache.Set(cacheKey, string(data), viesCacheTTL)
	}
	return result, nil
}
