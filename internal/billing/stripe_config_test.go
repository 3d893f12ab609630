package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripeConfig_Validate(t *testing.T) {
	cfg := StripeConfig{WebhookSecret: "whsec_x"}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidAPIKey)

	cfg = StripeConfig{APIKey: "sk_test_x"}
	require.Error(t, cfg.Validate())

	cfg = StripeConfig{APIKey: "sk_test_x", WebhookSecret: "whsec_x"}
	assert.NoError(t, cfg.Validate())
}

func TestStripeConfig_IsTestMode(t *testing.T) {
	cfg := StripeConfig{APIKey: "sk_test_abc"}
	assert.True(t, cfg.IsTestMode())

	cfg = StripeConfig{APIKey: "sk_live_abc"}
	assert.False(t, cfg.IsTestMode())

	cfg = StripeConfig{}
	assert.False(t, cfg.IsTestMode())
}
