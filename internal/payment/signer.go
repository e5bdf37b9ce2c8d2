package payment

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// validAfterSkew backdates the authorization window to absorb clock drift
// between the buyer and the chain.
const validAfterSkew = 600

var transferWithAuthorizationTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"TransferWithAuthorization": {
		{Name: "from", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "validAfter", Type: "uint256"},
		{Name: "validBefore", Type: "uint256"},
		{Name: "nonce", Type: "bytes32"},
	},
}

// ParsePrivateKey accepts a hex secp256k1 key with or without 0x prefix.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// AddressOf derives the checksummed account address of a key.
func AddressOf(key *ecdsa.PrivateKey) string {
	return crypto.PubkeyToAddress(key.PublicKey).Hex()
}

// NewNonce returns a random 32-byte authorization nonce as 0x hex.
func NewNonce() (string, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hexutil.Encode(nonce[:]), nil
}

// SignExactPayment builds and signs an EIP-3009 transfer authorization that
// satisfies the requirements.
func SignExactPayment(key *ecdsa.PrivateKey, req *PaymentRequirements, now time.Time) (*PaymentPayload, error) {
	chain, err := LookupNetwork(req.Network)
	if err != nil {
		return nil, err
	}
	value, ok := new(big.Int).SetString(req.MaxAmountRequired, 10)
	if !ok {
		return nil, fmt.Errorf("invalid maxAmountRequired: %s", req.MaxAmountRequired)
	}
	if !common.IsHexAddress(req.PayTo) {
		return nil, fmt.Errorf("invalid payTo address: %s", req.PayTo)
	}

	nonce, err := NewNonce()
	if err != nil {
		return nil, err
	}

	timeout := int64(req.MaxTimeoutSeconds)
	if timeout <= 0 {
		timeout = 300
	}
	auth := Authorization{
		From:        AddressOf(key),
		To:          common.HexToAddress(req.PayTo).Hex(),
		Value:       value.String(),
		ValidAfter:  big.NewInt(now.Unix() - validAfterSkew).String(),
		ValidBefore: big.NewInt(now.Unix() + timeout).String(),
		Nonce:       nonce,
	}

	tokenName, tokenVersion := chain.USDC.Name, chain.USDC.Version
	if name, ok := req.Extra["name"].(string); ok && name != "" {
		tokenName = name
	}
	if version, ok := req.Extra["version"].(string); ok && version != "" {
		tokenVersion = version
	}
	asset := req.Asset
	if asset == "" {
		asset = chain.USDC.Address
	}

	digest, err := HashAuthorization(auth, chain.ChainID, asset, tokenName, tokenVersion)
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign authorization: %w", err)
	}
	sig[64] += 27

	return &PaymentPayload{
		X402Version: X402Version,
		Scheme:      SchemeExact,
		Network:     req.Network,
		Payload: ExactEvmPayload{
			Signature:     hexutil.Encode(sig),
			Authorization: auth,
		},
	}, nil
}

// HashAuthorization computes the EIP-712 digest of a TransferWithAuthorization.
func HashAuthorization(auth Authorization, chainID *big.Int, verifyingContract, tokenName, tokenVersion string) ([]byte, error) {
	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid authorization value: %s", auth.Value)
	}
	validAfter, ok := new(big.Int).SetString(auth.ValidAfter, 10)
	if !ok {
		return nil, fmt.Errorf("invalid validAfter: %s", auth.ValidAfter)
	}
	validBefore, ok := new(big.Int).SetString(auth.ValidBefore, 10)
	if !ok {
		return nil, fmt.Errorf("invalid validBefore: %s", auth.ValidBefore)
	}
	nonce, err := hexutil.Decode(auth.Nonce)
	if err != nil || len(nonce) != 32 {
		return nil, fmt.Errorf("invalid nonce: %s", auth.Nonce)
	}

	typedData := apitypes.TypedData{
		Types:       transferWithAuthorizationTypes,
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              tokenName,
			Version:           tokenVersion,
			ChainId:           (*math.HexOrDecimal256)(chainID),
			VerifyingContract: verifyingContract,
		},
		Message: apitypes.TypedDataMessage{
			"from":        common.HexToAddress(auth.From).Hex(),
			"to":          common.HexToAddress(auth.To).Hex(),
			"value":       value,
			"validAfter":  validAfter,
			"validBefore": validBefore,
			"nonce":       nonce,
		},
	}

	structHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash authorization: %w", err)
	}
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	raw := append([]byte{0x19, 0x01}, domainSeparator...)
	raw = append(raw, structHash...)
	return crypto.Keccak256(raw), nil
}

// RecoverSigner returns the address that produced a payload's signature.
func RecoverSigner(payload *PaymentPayload) (string, error) {
	chain, err := LookupNetwork(payload.Network)
	if err != nil {
		return "", err
	}
	digest, err := HashAuthorization(payload.Payload.Authorization, chain.ChainID, chain.USDC.Address, chain.USDC.Name, chain.USDC.Version)
	if err != nil {
		return "", err
	}
	sig, err := hexutil.Decode(payload.Payload.Signature)
	if err != nil || len(sig) != 65 {
		return "", fmt.Errorf("invalid signature encoding")
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return "", fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}
