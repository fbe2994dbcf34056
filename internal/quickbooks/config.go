// Package quickbooks talks to the QuickBooks Online accounting API: it keeps the stored OAuth
// connection fresh and pulls Bill, Purchase and Invoice history through the query endpoint.
package quickbooks

import (
	"fmt"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

// Provider endpoints.
const (
	SandboxBaseURL    = "https://sandbox-quickbooks.api.intuit.com"
	ProductionBaseURL = "https://quickbooks.api.intuit.com"
	DefaultTokenURL   = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"
	MinorVersion      = "65"

	// MaxPageSize is the largest MAXRESULTS the query endpoint accepts.
	MaxPageSize = 1000
	// RefreshWindow is how close to expiry an access token is refreshed.
	RefreshWindow = 5 * time.Minute
)

// Config holds QuickBooks API configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	// BaseURL overrides the environment's API host when set.
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	PageSize          int
}

// DefaultConfig returns a Config with the provider's endpoints and conservative limits.
func DefaultConfig() Config {
	return Config{
		TokenURL:          DefaultTokenURL,
		Timeout:           30 * time.Second,
		RequestsPerSecond: 5,
		PageSize:          MaxPageSize,
	}
}

// Validate ensures all required fields are present.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("%w: quickbooks client ID is required", common.ErrMissingConfig)
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("%w: quickbooks client secret is required", common.ErrMissingConfig)
	}
	if c.TokenURL == "" {
		return fmt.Errorf("%w: quickbooks token URL is required", common.ErrMissingConfig)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", common.ErrInvalidConfig)
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("%w: requests per second must be positive", common.ErrInvalidConfig)
	}
	if c.PageSize < 1 || c.PageSize > MaxPageSize {
		return fmt.Errorf("%w: page size must be between 1 and %d", common.ErrInvalidConfig, MaxPageSize)
	}
	return nil
}

// APIBaseURL returns the API host for env.
func (c *Config) APIBaseURL(env model.Environment) string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if env == model.EnvironmentProduction {
		return ProductionBaseURL
	}
	return SandboxBaseURL
}
