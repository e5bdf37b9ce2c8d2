package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/sirupsen/logrus"
)

const (
	DefaultFacilitatorURL = "https://x402.org/facilitator"

	facilitatorTokenTTL = 2 * time.Minute
)

// Facilitator verifies and settles payment payloads on chain.
type Facilitator interface {
	Verify(ctx context.Context, payload *PaymentPayload, req *PaymentRequirements) (*VerifyResponse, error)
	Settle(ctx context.Context, payload *PaymentPayload, req *PaymentRequirements) (*SettleResponse, error)
}

// HTTPFacilitator talks to an x402 facilitator over its REST interface.
// When an API key is configured every request carries a short-lived bearer
// JWT bound to the request method and path.
type HTTPFacilitator struct {
	baseURL    string
	httpClient *http.Client
	keyID      string
	signingKey jwk.Key
	logger     *logrus.Logger
}

type FacilitatorOption func(*HTTPFacilitator) error

func WithHTTPClient(c *http.Client) FacilitatorOption {
	return func(f *HTTPFacilitator) error {
		f.httpClient = c
		return nil
	}
}

// WithAPIKey enables HS256 bearer authentication.
func WithAPIKey(keyID, secret string) FacilitatorOption {
	return func(f *HTTPFacilitator) error {
		if keyID == "" || secret == "" {
			return nil
		}
		key, err := jwk.FromRaw([]byte(secret))
		if err != nil {
			return fmt.Errorf("invalid facilitator secret: %w", err)
		}
		if err := key.Set(jwk.KeyIDKey, keyID); err != nil {
			return err
		}
		if err := key.Set(jwk.AlgorithmKey, jwa.HS256); err != nil {
			return err
		}
		f.keyID = keyID
		f.signingKey = key
		return nil
	}
}

func NewHTTPFacilitator(baseURL string, logger *logrus.Logger, opts ...FacilitatorOption) (*HTTPFacilitator, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if baseURL == "" {
		baseURL = DefaultFacilitatorURL
	}
	f := &HTTPFacilitator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *HTTPFacilitator) Verify(ctx context.Context, payload *PaymentPayload, req *PaymentRequirements) (*VerifyResponse, error) {
	var out VerifyResponse
	if err := f.post(ctx, "verify", payload, req, &out); err != nil {
		return nil, fmt.Errorf("failed to verify payment: %w", err)
	}
	return &out, nil
}

func (f *HTTPFacilitator) Settle(ctx context.Context, payload *PaymentPayload, req *PaymentRequirements) (*SettleResponse, error) {
	var out SettleResponse
	if err := f.post(ctx, "settle", payload, req, &out); err != nil {
		return nil, fmt.Errorf("failed to settle payment: %w", err)
	}
	return &out, nil
}

func (f *HTTPFacilitator) post(ctx context.Context, action string, payload *PaymentPayload, req *PaymentRequirements, out interface{}) error {
	body, err := json.Marshal(map[string]interface{}{
		"x402Version":         X402Version,
		"paymentPayload":      payload,
		"paymentRequirements": req,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	endpoint := f.baseURL + "/" + action
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if f.signingKey != nil {
		token, err := f.bearerToken(http.MethodPost, endpoint)
		if err != nil {
			return fmt.Errorf("failed to create %s auth token: %w", action, err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send %s request: %w", action, err)
	}
	defer resp.Body.Close()
	f.logger.Debugf("Facilitator %s responded %s", action, resp.Status)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("facilitator returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", action, err)
	}
	return nil
}

func (f *HTTPFacilitator) bearerToken(method, endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	now := time.Now()
	token, err := jwt.NewBuilder().
		Issuer("praxis-marketplace-gateway").
		Subject(f.keyID).
		JwtID(uuid.NewString()).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(facilitatorTokenTTL)).
		Claim("uri", method+" "+u.Host+u.Path).
		Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, f.signingKey))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}
