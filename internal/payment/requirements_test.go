package payment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPayTo = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

func TestBuildRequirements(t *testing.T) {
	b := NewRequirementsBuilder("https://marketplace.praxis.local/purchase", "Marketplace service purchase", "application/json", 0)

	req, err := b.BuildRequirements("0.25", TagUSDCBaseMainnet, testPayTo)
	require.NoError(t, err)

	assert.Equal(t, SchemeExact, req.Scheme)
	assert.Equal(t, NetworkBase, req.Network)
	assert.Equal(t, "250000", req.MaxAmountRequired)
	assert.Equal(t, "https://marketplace.praxis.local/purchase", req.Resource)
	assert.Equal(t, "application/json", req.MimeType)
	assert.Equal(t, testPayTo, req.PayTo)
	assert.Equal(t, 300, req.MaxTimeoutSeconds)
	assert.Equal(t, "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", req.Asset)
	assert.Equal(t, map[string]interface{}{"name": "USD Coin", "version": "2"}, req.Extra)
}

func TestBuildRequirements_UnknownTag(t *testing.T) {
	b := NewRequirementsBuilder("r", "d", "application/json", 60)

	_, err := b.BuildRequirements("1", "BTC_LIGHTNING", testPayTo)
	assert.True(t, errors.Is(err, ErrUnsupportedPaymentMethod))
}

func TestBuildRequirements_ConverterErrorPassesThrough(t *testing.T) {
	convErr := errors.New("asset metadata unavailable")
	b := NewRequirementsBuilder("r", "d", "application/json", 60)
	b.Convert = func(Decimal, string) (*AtomicAmount, error) { return nil, convErr }

	_, err := b.BuildRequirements("1", TagUSDCBaseSepolia, testPayTo)
	assert.Same(t, convErr, err)
}

func TestBuildRequirements_FreshEachCall(t *testing.T) {
	calls := 0
	b := NewRequirementsBuilder("r", "d", "application/json", 60)
	b.Convert = func(amount Decimal, network string) (*AtomicAmount, error) {
		calls++
		return ToAtomicAmount(amount, network)
	}

	first, err := b.BuildRequirements("1", TagUSDCBaseSepolia, testPayTo)
	require.NoError(t, err)
	second, err := b.BuildRequirements("1", TagUSDCBaseSepolia, testPayTo)
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.NotSame(t, first, second)
}
