package payment

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	canonicaljson "github.com/gibson042/canonicaljson-go"
)

// EncodeHeader serializes a value as canonical JSON and base64 encodes it,
// so identical payloads always produce identical headers.
func EncodeHeader(v interface{}) (string, error) {
	data, err := canonicaljson.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode header: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePaymentHeader reverses EncodeHeader for an x402 payment payload.
func DecodePaymentHeader(header string) (*PaymentPayload, error) {
	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		// some clients send unpadded URL-safe base64
		if data, err = base64.RawURLEncoding.DecodeString(header); err != nil {
			return nil, fmt.Errorf("payment header is not base64: %w", err)
		}
	}

	var payload PaymentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("payment header is not a valid payload: %w", err)
	}
	if payload.X402Version != X402Version {
		return nil, fmt.Errorf("unsupported x402 version %d", payload.X402Version)
	}
	if payload.Payload.Signature == "" || payload.Payload.Authorization.From == "" {
		return nil, fmt.Errorf("payment header is missing signature or authorization")
	}
	return &payload, nil
}
