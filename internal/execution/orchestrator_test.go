package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/praxis/praxis-marketplace-gateway/internal/discovery"
	"github.com/praxis/praxis-marketplace-gateway/internal/marketplace"
	"github.com/praxis/praxis-marketplace-gateway/internal/mcp"
	"github.com/praxis/praxis-marketplace-gateway/internal/payment"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sellerURL    = "http://seller.example/mcp"
	sellerWallet = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	buyerKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func envelope(v interface{}) map[string]interface{} {
	text, ok := v.(string)
	if !ok {
		data, _ := json.Marshal(v)
		text = string(data)
	}
	return map[string]interface{}{
		"content": []interface{}{map[string]interface{}{"type": "text", "text": text}},
		"isError": false,
	}
}

type toolCall struct {
	name string
	args map[string]interface{}
}

type sellerConn struct {
	mu       sync.Mutex
	handlers map[string]func(args map[string]interface{}) (interface{}, error)
	calls    []toolCall
}

func (c *sellerConn) Connect(ctx context.Context) error { return nil }
func (c *sellerConn) Disconnect() error                 { return nil }
func (c *sellerConn) URL() string                       { return sellerURL }
func (c *sellerConn) Transport() string                 { return "fake" }
func (c *sellerConn) ListTools(ctx context.Context) (interface{}, error) {
	return nil, nil
}

func (c *sellerConn) CallTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	c.mu.Lock()
	c.calls = append(c.calls, toolCall{name: name, args: args})
	handler, ok := c.handlers[name]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("tool %s not found", name)
	}
	return handler(args)
}

func (c *sellerConn) purchases() []toolCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []toolCall
	for _, call := range c.calls {
		if call.name == DefaultPurchaseTool {
			out = append(out, call)
		}
	}
	return out
}

type provider struct {
	mu      sync.Mutex
	conn    *sellerConn
	dialErr error
	gets    int
	closes  int
}

func (p *provider) GetConnection(ctx context.Context, url string) (mcp.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gets++
	if p.dialErr != nil {
		return nil, p.dialErr
	}
	return p.conn, nil
}

func (p *provider) ReleaseConnection(url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

func listingHandler(ids ...string) func(map[string]interface{}) (interface{}, error) {
	return func(map[string]interface{}) (interface{}, error) {
		items := make([]interface{}, 0, len(ids))
		for _, id := range ids {
			items = append(items, map[string]interface{}{
				"id":    id,
				"name":  id,
				"price": map[string]interface{}{"amount": 0.25, "paymentMethod": payment.TagUSDCBaseSepolia},
			})
		}
		return envelope(map[string]interface{}{"items": items}), nil
	}
}

func newSeller(purchase func(map[string]interface{}) (interface{}, error), listedIDs ...string) *provider {
	return &provider{conn: &sellerConn{handlers: map[string]func(map[string]interface{}) (interface{}, error){
		"price-listing":     listingHandler(listedIDs...),
		DefaultPurchaseTool: purchase,
	}}}
}

func readyService() discovery.EnrichedService {
	return discovery.EnrichedService{
		ID:          "summarize",
		Name:        "Summarize",
		Description: "Summarizes text",
		Price:       discovery.Price{Amount: "0.25", PaymentMethod: payment.TagUSDCBaseSepolia},
		Params:      map[string]interface{}{"text": "input"},
		ServerInfo:  discovery.ServerInfo{URL: sellerURL, ID: "srv-1", Name: "Seller"},
		PaymentInfo: discovery.PaymentInfo{WalletAddress: sellerWallet, PaymentMethod: payment.TagUSDCBaseSepolia},
		Category:    "AI",
	}
}

type stubSigner struct {
	err   error
	calls int
}

func (s *stubSigner) Sign(amount payment.Decimal, recipient, paymentMethod, privateKey string) (*payment.SignedPaymentAuthorization, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &payment.SignedPaymentAuthorization{
		SignedTransaction: "signed:" + amount.String() + ":" + recipient,
		PaymentMethod:     paymentMethod,
		Amount:            amount,
		RecipientAddress:  recipient,
	}, nil
}

func request() ExecutionRequest {
	return ExecutionRequest{
		ServiceID:  "summarize",
		ServerURL:  sellerURL,
		ServerID:   "srv-1",
		Params:     map[string]interface{}{"text": "hello"},
		PrivateKey: buyerKey,
	}
}

func TestExecuteService_Success(t *testing.T) {
	p := newSeller(func(args map[string]interface{}) (interface{}, error) {
		return envelope(map[string]interface{}{"summary": "hi", "itemId": args["itemId"]}), nil
	}, "summarize")
	signer := &stubSigner{}
	recorder := &outcomeRecorder{}

	o := NewOrchestrator(p, signer, quietLogger(), WithRecorder(recorder))
	result := o.ExecuteService(context.Background(), request(), readyService())

	require.True(t, result.Success, result.Error)
	assert.Equal(t, map[string]interface{}{"summary": "hi", "itemId": "summarize"}, result.Result)
	assert.Equal(t, "0.25 USDC", result.TransactionCost)
	assert.Equal(t, payment.TagUSDCBaseSepolia, result.PaymentMethod)
	assert.GreaterOrEqual(t, result.ExecutionTime, int64(0))

	purchases := p.conn.purchases()
	require.Len(t, purchases, 1)
	args := purchases[0].args
	assert.Equal(t, "summarize", args["itemId"])
	assert.Equal(t, map[string]interface{}{"text": "hello"}, args["params"])
	assert.Equal(t, payment.TagUSDCBaseSepolia, args["paymentMethod"])
	assert.Equal(t, "signed:0.25:"+sellerWallet, args["signedTransaction"])

	assert.Equal(t, 1, p.gets)
	assert.Equal(t, 1, p.closes)
	assert.Equal(t, []bool{true}, recorder.outcomes)
}

func TestExecuteService_NotReadyOpensNothing(t *testing.T) {
	p := newSeller(nil, "summarize")
	svc := readyService()
	svc.PaymentInfo.WalletAddress = ""

	result := NewOrchestrator(p, &stubSigner{}, quietLogger()).ExecuteService(context.Background(), request(), svc)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not ready for execution")
	assert.Zero(t, p.gets)
	assert.Zero(t, p.closes)
}

func TestExecuteService_ValidationFailures(t *testing.T) {
	cases := map[string]struct {
		mutate func(*discovery.EnrichedService)
		want   string
	}{
		"missing server url": {func(s *discovery.EnrichedService) { s.ServerInfo.URL = "" }, "missing server URL"},
		"negative price":     {func(s *discovery.EnrichedService) { s.Price.Amount = "-1" }, "invalid price"},
		"unparseable price":  {func(s *discovery.EnrichedService) { s.Price.Amount = "free" }, "invalid price"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := newSeller(nil, "summarize")
			svc := readyService()
			tc.mutate(&svc)

			result := NewOrchestrator(p, &stubSigner{}, quietLogger()).ExecuteService(context.Background(), request(), svc)
			assert.False(t, result.Success)
			assert.Contains(t, result.Error, tc.want)
			assert.Zero(t, p.gets)
		})
	}
}

func TestExecuteService_NoLongerAvailable(t *testing.T) {
	p := newSeller(func(map[string]interface{}) (interface{}, error) {
		t.Fatal("purchase must not be attempted")
		return nil, nil
	}, "translate")
	signer := &stubSigner{}

	result := NewOrchestrator(p, signer, quietLogger()).ExecuteService(context.Background(), request(), readyService())

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "no longer available")
	assert.Zero(t, signer.calls)
	assert.Equal(t, 1, p.closes)
}

func TestExecuteService_SellerRejectsPayment(t *testing.T) {
	p := newSeller(func(map[string]interface{}) (interface{}, error) {
		return envelope(map[string]interface{}{"error": "Payment verification failed: insufficient funds"}), nil
	}, "summarize")

	result := NewOrchestrator(p, &stubSigner{}, quietLogger()).ExecuteService(context.Background(), request(), readyService())

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "Payment verification failed")
	assert.Equal(t, 1, p.closes)
}

func TestExecuteService_SellerRejectsPaymentPlainText(t *testing.T) {
	p := newSeller(func(map[string]interface{}) (interface{}, error) {
		return "Payment verification failed", nil
	}, "summarize")

	result := NewOrchestrator(p, &stubSigner{}, quietLogger()).ExecuteService(context.Background(), request(), readyService())
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "Payment verification failed")
}

func TestExecuteService_ToolErrorEnvelope(t *testing.T) {
	p := newSeller(func(map[string]interface{}) (interface{}, error) {
		return map[string]interface{}{
			"content": []interface{}{map[string]interface{}{"type": "text", "text": "missing param text"}},
			"isError": true,
		}, nil
	}, "summarize")

	result := NewOrchestrator(p, &stubSigner{}, quietLogger()).ExecuteService(context.Background(), request(), readyService())
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "missing param text")
}

func TestExecuteService_SigningFailureIsNarrowed(t *testing.T) {
	p := newSeller(nil, "summarize")
	signer := &stubSigner{err: payment.ErrSignedTransaction}

	result := NewOrchestrator(p, signer, quietLogger()).ExecuteService(context.Background(), request(), readyService())

	assert.False(t, result.Success)
	assert.Equal(t, "failed to create signed transaction", result.Error)
	assert.Equal(t, 1, p.closes)
}

func TestExecuteService_ConnectFailure(t *testing.T) {
	p := newSeller(nil, "summarize")
	p.dialErr = errors.New("all transports failed")

	result := NewOrchestrator(p, &stubSigner{}, quietLogger()).ExecuteService(context.Background(), request(), readyService())

	assert.False(t, result.Success)
	assert.Equal(t, "all transports failed", result.Error)
	assert.Zero(t, p.closes)
}

func TestExecuteService_PurchaseTransportError(t *testing.T) {
	p := newSeller(func(map[string]interface{}) (interface{}, error) {
		return nil, errors.New("connection reset")
	}, "summarize")

	result := NewOrchestrator(p, &stubSigner{}, quietLogger()).ExecuteService(context.Background(), request(), readyService())
	assert.False(t, result.Success)
	assert.Equal(t, "connection reset", result.Error)
	assert.Equal(t, 1, p.closes)
}

func TestExecuteService_PanicsAreRecovered(t *testing.T) {
	cases := map[string]struct {
		value interface{}
		want  string
	}{
		"error value":  {errors.New("decoder exploded"), "decoder exploded"},
		"string value": {"not an error", "Unknown error"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := newSeller(func(map[string]interface{}) (interface{}, error) {
				panic(tc.value)
			}, "summarize")

			result := NewOrchestrator(p, &stubSigner{}, quietLogger()).ExecuteService(context.Background(), request(), readyService())
			assert.False(t, result.Success)
			assert.Equal(t, tc.want, result.Error)
			assert.Equal(t, 1, p.closes)
		})
	}
}

func TestExecuteService_ExecutionTime(t *testing.T) {
	p := newSeller(func(map[string]interface{}) (interface{}, error) {
		return envelope("done"), nil
	}, "summarize")

	o := NewOrchestrator(p, &stubSigner{}, quietLogger())
	ticks := []time.Time{time.Unix(100, 0), time.Unix(100, int64(1500*time.Millisecond))}
	o.now = func() time.Time {
		now := ticks[0]
		if len(ticks) > 1 {
			ticks = ticks[1:]
		}
		return now
	}

	result := o.ExecuteService(context.Background(), request(), readyService())
	require.True(t, result.Success)
	assert.Equal(t, "done", result.Result)
	assert.Equal(t, int64(1500), result.ExecutionTime)
}

func TestExecuteService_RealSignature(t *testing.T) {
	var header string
	p := newSeller(func(args map[string]interface{}) (interface{}, error) {
		header, _ = args["signedTransaction"].(string)
		return envelope(map[string]interface{}{"ok": true}), nil
	}, "summarize")

	svc := payment.NewService(payment.NewRequirementsBuilder("r", "d", "application/json", 300), nil, quietLogger())
	result := NewOrchestrator(p, svc, quietLogger()).ExecuteService(context.Background(), request(), readyService())
	require.True(t, result.Success, result.Error)

	payload, err := payment.DecodePaymentHeader(header)
	require.NoError(t, err)
	assert.Equal(t, "250000", payload.Payload.Authorization.Value)
	assert.Equal(t, sellerWallet, payload.Payload.Authorization.To)

	signer, err := payment.RecoverSigner(payload)
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", signer)
}

type outcomeRecorder struct {
	outcomes []bool
}

func (r *outcomeRecorder) RecordExecution(success bool, elapsed time.Duration) {
	r.outcomes = append(r.outcomes, success)
}

type explorerStub struct {
	registry *discovery.ServiceRegistry
	servers  []marketplace.ServerRecord
	opts     discovery.ExploreOptions
}

func (e *explorerStub) ExploreAndEnrichServices(ctx context.Context, servers []marketplace.ServerRecord, opts discovery.ExploreOptions) *discovery.ServiceRegistry {
	e.servers, e.opts = servers, opts
	return e.registry
}

func TestResolveService(t *testing.T) {
	stub := &explorerStub{registry: &discovery.ServiceRegistry{Services: []discovery.EnrichedService{readyService()}}}

	svc, err := ResolveService(context.Background(), stub, request())
	require.NoError(t, err)
	assert.Equal(t, "summarize", svc.ID)
	assert.True(t, stub.opts.UnsafeDirectAccess)
	require.Len(t, stub.servers, 1)
	assert.Equal(t, sellerURL, stub.servers[0].MCPServerURL)

	req := request()
	req.ServiceID = "missing"
	_, err = ResolveService(context.Background(), stub, req)
	assert.ErrorIs(t, err, ErrServiceNotFound)

	stub.registry = &discovery.ServiceRegistry{Metadata: discovery.RegistryMetadata{Errors: []discovery.ExplorationError{{ServerName: sellerURL, Error: "connect timeout"}}}}
	_, err = ResolveService(context.Background(), stub, request())
	assert.ErrorContains(t, err, "connect timeout")

	req = request()
	req.ServerURL = ""
	_, err = ResolveService(context.Background(), stub, req)
	assert.ErrorContains(t, err, "serverUrl is required")
}
