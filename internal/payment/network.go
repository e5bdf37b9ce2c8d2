package payment

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	NetworkBase        = "base"
	NetworkBaseSepolia = "base-sepolia"

	TagUSDCBaseMainnet = "USDC_BASE_MAINNET"
	TagUSDCBaseSepolia = "USDC_BASE_SEPOLIA"

	DefaultCurrency = "USDC"
	SchemeExact     = "exact"
	X402Version     = 1
)

var ErrUnsupportedPaymentMethod = errors.New("unsupported payment method")

// Asset describes an EIP-3009 capable token on one network.
type Asset struct {
	Address  string
	Name     string
	Version  string
	Decimals int
}

// Network holds the chain parameters needed to price and sign payments.
type Network struct {
	Name    string
	ChainID *big.Int
	USDC    Asset
}

var networks = map[string]Network{
	NetworkBase: {
		Name:    NetworkBase,
		ChainID: big.NewInt(8453),
		USDC: Asset{
			Address:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			Name:     "USD Coin",
			Version:  "2",
			Decimals: 6,
		},
	},
	NetworkBaseSepolia: {
		Name:    NetworkBaseSepolia,
		ChainID: big.NewInt(84532),
		USDC: Asset{
			Address:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			Name:     "USDC",
			Version:  "2",
			Decimals: 6,
		},
	},
}

// paymentMethodNetworks is a closed table; tags are never parsed for a network.
var paymentMethodNetworks = map[string]string{
	TagUSDCBaseMainnet: NetworkBase,
	TagUSDCBaseSepolia: NetworkBaseSepolia,
}

// CurrencyOf returns the first underscore-delimited segment of a tag.
func CurrencyOf(paymentMethod string) string {
	currency, _, _ := strings.Cut(paymentMethod, "_")
	return currency
}

// NetworkOf maps a known payment-method tag to its network identifier.
func NetworkOf(paymentMethod string) (string, error) {
	network, ok := paymentMethodNetworks[paymentMethod]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedPaymentMethod, paymentMethod)
	}
	return network, nil
}

// SupportedPaymentMethods lists the tags NetworkOf accepts.
func SupportedPaymentMethods() []string {
	return []string{TagUSDCBaseMainnet, TagUSDCBaseSepolia}
}

// LookupNetwork returns chain parameters for a network identifier.
func LookupNetwork(name string) (Network, error) {
	network, ok := networks[name]
	if !ok {
		return Network{}, fmt.Errorf("unsupported network: %s", name)
	}
	return network, nil
}
