package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81/webhook"
)

func TestStripeConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     StripeConfig
		wantErr string
	}{
		{"valid", StripeConfig{WebhookSecret: "whsec_abc", SecretKey: "sk_test_123"}, ""},
		{"missing secret", StripeConfig{}, "webhook secret is required"},
		{"bad secret prefix", StripeConfig{WebhookSecret: "abc"}, "must start with whsec_"},
		{"bad key", StripeConfig{WebhookSecret: "whsec_abc", SecretKey: "pk_test_1"}, "unknown format"},
		{"negative tolerance", StripeConfig{WebhookSecret: "whsec_abc", Tolerance: -time.Second}, "tolerance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStripeConfig_ConstructEvent(t *testing.T) {
	cfg := DefaultStripeConfig()
	cfg.WebhookSecret = "whsec_test_secret"
	payload := []byte(`{"id":"evt_1","object":"event","type":"invoice.paid","data":{"object":{"id":"in_1","object":"invoice"}}}`)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    cfg.WebhookSecret,
		Timestamp: time.Now(),
	})

	event, err := cfg.ConstructEvent(signed.Payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, "invoice.paid", string(event.Type))

	_, err = cfg.ConstructEvent(payload, "t=1,v1=deadbeef")
	assert.Error(t, err)

	assert.True(t, cfg.Enabled())
	assert.False(t, (&StripeConfig{}).Enabled())
}
