package main

import (
	"testing"

	"github.com/ariefcatur/go-storefront-orders/internal/config"
	"github.com/ariefcatur/go-storefront-orders/internal/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPaymentProviderDirectFlowHasNone(t *testing.T) {
	p, err := paymentProvider(config.Config{CheckoutFlow: "direct"}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestPaymentProviderOfflineInDevelopment(t *testing.T) {
	p, err := paymentProvider(config.Config{CheckoutFlow: "deferred", Env: "development"}, zap.NewNop())
	require.NoError(t, err)
	off, ok := p.(*payment.OfflineProvider)
	require.True(t, ok)
	assert.NotEmpty(t, off.WebhookSecret)
}

func TestPaymentProviderRefusesMissingSecret(t *testing.T) {
	_, err := paymentProvider(config.Config{CheckoutFlow: "deferred", StripeSecretKey: "sk_test_123"}, zap.NewNop())
	assert.Error(t, err)

	_, err = paymentProvider(config.Config{CheckoutFlow: "deferred", Env: "production"}, zap.NewNop())
	assert.Error(t, err)
}

func TestPaymentProviderStripe(t *testing.T) {
	p, err := paymentProvider(config.Config{
		CheckoutFlow: "deferred", StripeSecretKey: "sk_test_123", StripeWebhookSecret: "whsec_real",
	}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &payment.StripeProvider{}, p)
}
