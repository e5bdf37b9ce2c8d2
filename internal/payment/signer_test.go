package payment

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testBuyerKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testBuyerAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestParsePrivateKey(t *testing.T) {
	key, err := ParsePrivateKey(testBuyerKey)
	require.NoError(t, err)
	assert.Equal(t, testBuyerAddress, AddressOf(key))

	_, err = ParsePrivateKey("not-a-key")
	assert.Error(t, err)
}

func TestSignExactPayment_RecoversBuyer(t *testing.T) {
	key, err := ParsePrivateKey(testBuyerKey)
	require.NoError(t, err)

	b := NewRequirementsBuilder("r", "d", "application/json", 300)
	req, err := b.BuildRequirements("0.05", TagUSDCBaseSepolia, testPayTo)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	payload, err := SignExactPayment(key, req, now)
	require.NoError(t, err)

	assert.Equal(t, X402Version, payload.X402Version)
	assert.Equal(t, SchemeExact, payload.Scheme)
	assert.Equal(t, NetworkBaseSepolia, payload.Network)

	auth := payload.Payload.Authorization
	assert.Equal(t, testBuyerAddress, auth.From)
	assert.Equal(t, testPayTo, auth.To)
	assert.Equal(t, "50000", auth.Value)
	assert.Equal(t, strconv.FormatInt(now.Unix()-600, 10), auth.ValidAfter)
	assert.Equal(t, strconv.FormatInt(now.Unix()+300, 10), auth.ValidBefore)
	assert.Len(t, auth.Nonce, 66)
	assert.Len(t, payload.Payload.Signature, 132)

	signer, err := RecoverSigner(payload)
	require.NoError(t, err)
	assert.Equal(t, testBuyerAddress, signer)
}

func TestSignExactPayment_TamperedValueChangesSigner(t *testing.T) {
	key, err := ParsePrivateKey(testBuyerKey)
	require.NoError(t, err)

	b := NewRequirementsBuilder("r", "d", "application/json", 300)
	req, err := b.BuildRequirements("1", TagUSDCBaseMainnet, testPayTo)
	require.NoError(t, err)

	payload, err := SignExactPayment(key, req, time.Now())
	require.NoError(t, err)

	payload.Payload.Authorization.Value = "2000000"
	signer, err := RecoverSigner(payload)
	require.NoError(t, err)
	assert.NotEqual(t, testBuyerAddress, signer)
}

func TestSignExactPayment_NoncesDiffer(t *testing.T) {
	key, err := ParsePrivateKey(testBuyerKey)
	require.NoError(t, err)
	req, err := NewRequirementsBuilder("r", "d", "application/json", 300).BuildRequirements("1", TagUSDCBaseMainnet, testPayTo)
	require.NoError(t, err)

	a, err := SignExactPayment(key, req, time.Now())
	require.NoError(t, err)
	b, err := SignExactPayment(key, req, time.Now())
	require.NoError(t, err)
	assert.NotEqual(t, a.Payload.Authorization.Nonce, b.Payload.Authorization.Nonce)
}

func TestSignExactPayment_InvalidRequirements(t *testing.T) {
	key, err := ParsePrivateKey(testBuyerKey)
	require.NoError(t, err)

	_, err = SignExactPayment(key, &PaymentRequirements{Network: NetworkBase, MaxAmountRequired: "1", PayTo: "nowhere"}, time.Now())
	assert.ErrorContains(t, err, "invalid payTo")

	_, err = SignExactPayment(key, &PaymentRequirements{Network: NetworkBase, MaxAmountRequired: "1.5", PayTo: testPayTo}, time.Now())
	assert.ErrorContains(t, err, "invalid maxAmountRequired")
}

func TestHashAuthorization_Deterministic(t *testing.T) {
	auth := Authorization{
		From:        testBuyerAddress,
		To:          testPayTo,
		Value:       "1000",
		ValidAfter:  "0",
		ValidBefore: "99999999999",
		Nonce:       "0x" + "11223344556677881122334455667788" + "11223344556677881122334455667788",
	}
	chainID := big.NewInt(84532)

	first, err := HashAuthorization(auth, chainID, "0x036CbD53842c5426634e7929541eC2318f3dCF7e", "USDC", "2")
	require.NoError(t, err)
	second, err := HashAuthorization(auth, chainID, "0x036CbD53842c5426634e7929541eC2318f3dCF7e", "USDC", "2")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 32)

	other, err := HashAuthorization(auth, big.NewInt(8453), "0x036CbD53842c5426634e7929541eC2318f3dCF7e", "USDC", "2")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	auth.Nonce = "0x1234"
	_, err = HashAuthorization(auth, chainID, "0x036CbD53842c5426634e7929541eC2318f3dCF7e", "USDC", "2")
	assert.ErrorContains(t, err, "invalid nonce")
}

func TestEncodeDecodeHeader(t *testing.T) {
	key, err := ParsePrivateKey(testBuyerKey)
	require.NoError(t, err)
	req, err := NewRequirementsBuilder("r", "d", "application/json", 300).BuildRequirements("1", TagUSDCBaseSepolia, testPayTo)
	require.NoError(t, err)
	payload, err := SignExactPayment(key, req, time.Now())
	require.NoError(t, err)

	header, err := EncodeHeader(payload)
	require.NoError(t, err)
	again, err := EncodeHeader(payload)
	require.NoError(t, err)
	assert.Equal(t, header, again)

	decoded, err := DecodePaymentHeader(header)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)

	raw, err := base64.StdEncoding.DecodeString(header)
	require.NoError(t, err)
	decoded, err = DecodePaymentHeader(base64.RawURLEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, payload.Payload.Signature, decoded.Payload.Signature)
}

func TestDecodePaymentHeader_Rejects(t *testing.T) {
	_, err := DecodePaymentHeader("%%%")
	assert.ErrorContains(t, err, "not base64")

	_, err = DecodePaymentHeader(base64.StdEncoding.EncodeToString([]byte("not json")))
	assert.ErrorContains(t, err, "not a valid payload")

	wrongVersion, _ := json.Marshal(PaymentPayload{X402Version: 2, Payload: ExactEvmPayload{Signature: "0x01", Authorization: Authorization{From: testBuyerAddress}}})
	_, err = DecodePaymentHeader(base64.StdEncoding.EncodeToString(wrongVersion))
	assert.ErrorContains(t, err, "unsupported x402 version")

	unsigned, _ := json.Marshal(PaymentPayload{X402Version: 1})
	_, err = DecodePaymentHeader(base64.StdEncoding.EncodeToString(unsigned))
	assert.ErrorContains(t, err, "missing signature")
}

func TestService_Sign(t *testing.T) {
	svc := NewService(NewRequirementsBuilder("r", "d", "application/json", 300), nil, quietLogger())

	signed, err := svc.Sign("0.5", testPayTo, TagUSDCBaseSepolia, testBuyerKey)
	require.NoError(t, err)
	assert.Equal(t, Decimal("0.5"), signed.Amount)
	assert.Equal(t, TagUSDCBaseSepolia, signed.PaymentMethod)
	assert.Equal(t, testPayTo, signed.RecipientAddress)

	payload, err := DecodePaymentHeader(signed.SignedTransaction)
	require.NoError(t, err)
	assert.Equal(t, "500000", payload.Payload.Authorization.Value)
}

func TestService_SignNarrowsErrors(t *testing.T) {
	svc := NewService(NewRequirementsBuilder("r", "d", "application/json", 300), nil, quietLogger())

	cases := map[string]struct {
		amount        Decimal
		recipient     string
		paymentMethod string
		key           string
	}{
		"bad key":            {"1", testPayTo, TagUSDCBaseSepolia, "zz"},
		"unknown method":     {"1", testPayTo, "DOGE_MAINNET", testBuyerKey},
		"negative amount":    {"-1", testPayTo, TagUSDCBaseSepolia, testBuyerKey},
		"malformed receiver": {"1", "receiver", TagUSDCBaseSepolia, testBuyerKey},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			signed, err := svc.Sign(tc.amount, tc.recipient, tc.paymentMethod, tc.key)
			assert.Nil(t, signed)
			assert.True(t, errors.Is(err, ErrSignedTransaction))
			assert.Equal(t, "failed to create signed transaction", err.Error())
		})
	}
}
