// Package billing holds the billing provider integration settings.
package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

// StripeConfig holds configuration for the Stripe webhook integration
type StripeConfig struct {
	// SecretKey is the Stripe secret API key (sk_test_xxx or sk_live_xxx)
	SecretKey string `json:"secret_key" mapstructure:"secret_key"`

	// WebhookSecret is the secret for verifying webhook signatures (whsec_xxx)
	WebhookSecret string `json:"webhook_secret" mapstructure:"webhook_secret"`

	// Tolerance is the maximum accepted age of a signed payload
	Tolerance time.Duration `json:"tolerance" mapstructure:"tolerance"`

	// IgnoreAPIVersionMismatch accepts events rendered for another API version
	IgnoreAPIVersionMismatch bool `json:"ignore_api_version_mismatch" mapstructure:"ignore_api_version_mismatch"`
}

// DefaultStripeConfig returns a configuration using the library's default tolerance
func DefaultStripeConfig() *StripeConfig {
	return &StripeConfig{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	}
}

// Enabled reports whether webhooks can be verified
func (c *StripeConfig) Enabled() bool {
	return c != nil && c.WebhookSecret != ""
}

// Validate validates the Stripe configuration
func (c *StripeConfig) Validate() error {
	if c.WebhookSecret == "" {
		return fmt.Errorf("stripe: webhook secret is required")
	}
	if !strings.HasPrefix(c.WebhookSecret, "whsec_") {
		return fmt.Errorf("stripe: webhook secret must start with whsec_")
	}
	if c.SecretKey != "" && !strings.HasPrefix(c.SecretKey, "sk_test") && !strings.HasPrefix(c.SecretKey, "sk_live") && !strings.HasPrefix(c.SecretKey, "rk_") {
		return fmt.Errorf("stripe: secret key has an unknown format")
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("stripe: tolerance cannot be negative")
	}
	return nil
}

// ConstructEvent verifies the Stripe-Signature header and decodes the event
func (c *StripeConfig) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	tolerance := c.Tolerance
	if tolerance == 0 {
		tolerance = webhook.DefaultTolerance
	}
	return webhook.ConstructEventWithOptions(payload, signature, c.WebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: c.IgnoreAPIVersionMismatch,
	})
}
