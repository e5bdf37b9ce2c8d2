package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type facilitatorRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

func signedFixture(t *testing.T) (*PaymentPayload, *PaymentRequirements) {
	t.Helper()
	svc := NewService(NewRequirementsBuilder("r", "d", "application/json", 300), nil, quietLogger())
	req, err := svc.BuildRequirements("0.1", TagUSDCBaseSepolia, testPayTo)
	require.NoError(t, err)
	signed, err := svc.Sign("0.1", testPayTo, TagUSDCBaseSepolia, testBuyerKey)
	require.NoError(t, err)
	payload, err := DecodePaymentHeader(signed.SignedTransaction)
	require.NoError(t, err)
	return payload, req
}

func TestHTTPFacilitator_VerifyAndSettle(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()

		var body facilitatorRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		assert.Equal(t, 1, body.X402Version)
		assert.Equal(t, "100000", body.PaymentRequirements.MaxAmountRequired)
		assert.Equal(t, testBuyerAddress, body.PaymentPayload.Payload.Authorization.From)

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/facilitator/verify":
			_ = json.NewEncoder(w).Encode(VerifyResponse{IsValid: true, Payer: testBuyerAddress})
		case "/facilitator/settle":
			_ = json.NewEncoder(w).Encode(SettleResponse{Success: true, Transaction: "0xsettled", Network: NetworkBaseSepolia, Payer: testBuyerAddress})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	f, err := NewHTTPFacilitator(server.URL+"/facilitator/", quietLogger())
	require.NoError(t, err)

	payload, req := signedFixture(t)

	verify, err := f.Verify(context.Background(), payload, req)
	require.NoError(t, err)
	assert.True(t, verify.IsValid)
	assert.Equal(t, testBuyerAddress, verify.Payer)

	settle, err := f.Settle(context.Background(), payload, req)
	require.NoError(t, err)
	assert.True(t, settle.Success)
	assert.Equal(t, "0xsettled", settle.Transaction)

	assert.Equal(t, []string{"/facilitator/verify", "/facilitator/settle"}, paths)
}

func TestHTTPFacilitator_BearerToken(t *testing.T) {
	const secret = "facilitator-shared-secret-for-tests"

	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(VerifyResponse{IsValid: true})
	}))
	defer server.Close()

	f, err := NewHTTPFacilitator(server.URL, quietLogger(), WithAPIKey("key-1", secret))
	require.NoError(t, err)

	payload, req := signedFixture(t)
	_, err = f.Verify(context.Background(), payload, req)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(authHeader, "Bearer "))
	token, err := jwt.Parse([]byte(strings.TrimPrefix(authHeader, "Bearer ")), jwt.WithKey(jwa.HS256, []byte(secret)))
	require.NoError(t, err)

	assert.Equal(t, "key-1", token.Subject())
	assert.Equal(t, "praxis-marketplace-gateway", token.Issuer())
	assert.NotEmpty(t, token.JwtID())
	uri, ok := token.Get("uri")
	require.True(t, ok)
	assert.Equal(t, "POST "+strings.TrimPrefix(server.URL, "http://")+"/verify", uri)
}

func TestHTTPFacilitator_NoAuthWithoutKey(t *testing.T) {
	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(VerifyResponse{IsValid: true})
	}))
	defer server.Close()

	f, err := NewHTTPFacilitator(server.URL, quietLogger(), WithAPIKey("", ""))
	require.NoError(t, err)

	payload, req := signedFixture(t)
	_, err = f.Verify(context.Background(), payload, req)
	require.NoError(t, err)
	assert.Empty(t, authHeader)
}

func TestHTTPFacilitator_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	f, err := NewHTTPFacilitator(server.URL, quietLogger())
	require.NoError(t, err)
	payload, req := signedFixture(t)

	_, err = f.Verify(context.Background(), payload, req)
	assert.ErrorContains(t, err, "failed to verify payment")
	assert.ErrorContains(t, err, "502")

	_, err = f.Settle(context.Background(), payload, req)
	assert.ErrorContains(t, err, "failed to settle payment")
}

type stubFacilitator struct {
	mu          sync.Mutex
	verify      *VerifyResponse
	verifyErr   error
	settle      *SettleResponse
	settleErr   error
	verifyCalls int
	settleCalls int
}

func (s *stubFacilitator) Verify(ctx context.Context, payload *PaymentPayload, req *PaymentRequirements) (*VerifyResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifyCalls++
	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	return s.verify, nil
}

func (s *stubFacilitator) Settle(ctx context.Context, payload *PaymentPayload, req *PaymentRequirements) (*SettleResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settleCalls++
	if s.settleErr != nil {
		return nil, s.settleErr
	}
	return s.settle, nil
}

func (s *stubFacilitator) calls() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verifyCalls, s.settleCalls
}

func TestService_Verify(t *testing.T) {
	payload, req := signedFixture(t)
	header, err := EncodeHeader(payload)
	require.NoError(t, err)

	t.Run("valid falls back to authorization payer", func(t *testing.T) {
		svc := NewService(nil, &stubFacilitator{verify: &VerifyResponse{IsValid: true}}, quietLogger())
		result := svc.Verify(context.Background(), header, req)
		assert.True(t, result.Success)
		assert.Equal(t, testBuyerAddress, result.Payer)
		assert.Equal(t, payload, result.Payload)
	})

	t.Run("invalid", func(t *testing.T) {
		svc := NewService(nil, &stubFacilitator{verify: &VerifyResponse{IsValid: false, InvalidReason: "insufficient_funds"}}, quietLogger())
		result := svc.Verify(context.Background(), header, req)
		assert.False(t, result.Success)
		assert.Equal(t, "Payment verification failed", result.Message)
		assert.Equal(t, "insufficient_funds", result.Error)
	})

	t.Run("malformed header", func(t *testing.T) {
		stub := &stubFacilitator{verify: &VerifyResponse{IsValid: true}}
		svc := NewService(nil, stub, quietLogger())
		result := svc.Verify(context.Background(), "garbage", req)
		assert.False(t, result.Success)
		assert.Equal(t, "Invalid payment authorization", result.Message)
		verifyCalls, _ := stub.calls()
		assert.Zero(t, verifyCalls)
	})
}

func TestService_Settle(t *testing.T) {
	payload, req := signedFixture(t)

	svc := NewService(nil, &stubFacilitator{settle: &SettleResponse{Success: true, Transaction: "0xabc", Network: NetworkBaseSepolia}}, quietLogger())
	result := svc.Settle(context.Background(), payload, req)
	require.True(t, result.Success)
	assert.Equal(t, "0xabc", result.Transaction)

	decoded, err := decodeSettleHeader(result.ResponseHeader)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", decoded.Transaction)

	svc = NewService(nil, &stubFacilitator{settle: &SettleResponse{Success: false, ErrorReason: "nonce_used"}}, quietLogger())
	result = svc.Settle(context.Background(), payload, req)
	assert.False(t, result.Success)
	assert.Equal(t, "nonce_used", result.Error)
	assert.NotEmpty(t, result.ResponseHeader)
}

func decodeSettleHeader(header string) (*SettleResponse, error) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, err
	}
	var out SettleResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
