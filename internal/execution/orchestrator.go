package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/praxis/praxis-marketplace-gateway/internal/bus"
	"github.com/praxis/praxis-marketplace-gateway/internal/discovery"
	"github.com/praxis/praxis-marketplace-gateway/internal/mcp"
	"github.com/praxis/praxis-marketplace-gateway/internal/payment"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPurchaseTool = "make-purchase"

	// PaymentFailureMarker is what sellers return when they reject the
	// authorization without failing the tool call itself.
	PaymentFailureMarker = "Payment verification failed"

	unknownError = "Unknown error"
)

type ExecutionRequest struct {
	ServiceID  string                 `json:"serviceId"`
	ServerURL  string                 `json:"serverUrl"`
	ServerID   string                 `json:"serverId"`
	Params     map[string]interface{} `json:"params"`
	PrivateKey string                 `json:"-"`
}

type ExecutionResult struct {
	Success         bool        `json:"success"`
	Result          interface{} `json:"result,omitempty"`
	Error           string      `json:"error,omitempty"`
	TransactionCost string      `json:"transactionCost,omitempty"`
	ExecutionTime   int64       `json:"executionTime"`
	PaymentMethod   string      `json:"paymentMethod,omitempty"`
}

// Signer produces the payment authorization sent with a purchase.
type Signer interface {
	Sign(amount payment.Decimal, recipient, paymentMethod, privateKey string) (*payment.SignedPaymentAuthorization, error)
}

// ExecutionRecorder receives the outcome and latency of each purchase.
type ExecutionRecorder interface {
	RecordExecution(success bool, elapsed time.Duration)
}

type Orchestrator struct {
	connections       discovery.ConnectionProvider
	signer            Signer
	priceListingTools []string
	purchaseTool      string
	events            *bus.EventBus
	recorder          ExecutionRecorder
	logger            *logrus.Logger
	now               func() time.Time
}

type Option func(*Orchestrator)

func WithPriceListingTools(names []string) Option {
	return func(o *Orchestrator) {
		if len(names) > 0 {
			o.priceListingTools = names
		}
	}
}

func WithPurchaseTool(name string) Option {
	return func(o *Orchestrator) {
		if name != "" {
			o.purchaseTool = name
		}
	}
}

func WithEventBus(events *bus.EventBus) Option {
	return func(o *Orchestrator) { o.events = events }
}

func WithRecorder(recorder ExecutionRecorder) Option {
	return func(o *Orchestrator) { o.recorder = recorder }
}

func NewOrchestrator(connections discovery.ConnectionProvider, signer Signer, logger *logrus.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	o := &Orchestrator{
		connections:       connections,
		signer:            signer,
		priceListingTools: discovery.DefaultPriceListingTools,
		purchaseTool:      DefaultPurchaseTool,
		logger:            logger,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ExecuteService buys one invocation of a previously discovered service.
// It never panics or returns an error; every failure is described by the
// result.
func (o *Orchestrator) ExecuteService(ctx context.Context, req ExecutionRequest, service discovery.EnrichedService) (result *ExecutionResult) {
	start := o.now()

	defer func() {
		if r := recover(); r != nil {
			message := unknownError
			if err, ok := r.(error); ok && err.Error() != "" {
				message = err.Error()
			}
			o.logger.Errorf("Service execution panicked: %v", r)
			result = &ExecutionResult{Success: false, Error: message}
		}
		elapsed := o.now().Sub(start)
		result.ExecutionTime = elapsed.Milliseconds()
		o.report(req, service, result, elapsed)
	}()

	return o.execute(ctx, req, service)
}

func (o *Orchestrator) execute(ctx context.Context, req ExecutionRequest, service discovery.EnrichedService) *ExecutionResult {
	serviceID := req.ServiceID
	if serviceID == "" {
		serviceID = service.ID
	}
	if err := validateService(serviceID, service); err != nil {
		return &ExecutionResult{Success: false, Error: err.Error()}
	}

	serverURL := service.ServerInfo.URL
	paymentMethod := service.PaymentInfo.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = service.Price.PaymentMethod
	}
	log := o.logger.WithFields(logrus.Fields{"service": serviceID, "server": serverURL})

	conn, err := o.connections.GetConnection(ctx, serverURL)
	if err != nil {
		log.Warnf("Failed to connect for execution: %v", err)
		return &ExecutionResult{Success: false, Error: err.Error()}
	}
	defer func() {
		if closeErr := o.connections.ReleaseConnection(serverURL); closeErr != nil {
			log.Debugf("Failed to release connection: %v", closeErr)
		}
	}()

	items, err := discovery.FetchPriceListing(ctx, conn, o.priceListingTools, o.logger)
	if err != nil {
		return &ExecutionResult{Success: false, Error: fmt.Sprintf("failed to re-verify service %s: %v", serviceID, err)}
	}
	if !containsItem(items, serviceID) {
		return &ExecutionResult{Success: false, Error: fmt.Sprintf("service %s is no longer available", serviceID)}
	}

	signed, err := o.signer.Sign(service.Price.Amount, service.PaymentInfo.WalletAddress, paymentMethod, req.PrivateKey)
	if err != nil {
		return &ExecutionResult{Success: false, Error: err.Error()}
	}

	params := req.Params
	if params == nil {
		params = map[string]interface{}{}
	}
	log.Info("💳 Submitting purchase")
	raw, err := conn.CallTool(ctx, o.purchaseTool, map[string]interface{}{
		"itemId":            serviceID,
		"params":            params,
		"paymentMethod":     paymentMethod,
		"signedTransaction": signed.SignedTransaction,
	})
	if err != nil {
		return &ExecutionResult{Success: false, Error: err.Error()}
	}

	parsed := mcp.ParseToolResult(raw)
	if containsMarker(parsed, PaymentFailureMarker) {
		log.Warn("Seller rejected the payment authorization")
		return &ExecutionResult{Success: false, Error: PaymentFailureMarker + " on server"}
	}
	if mcp.IsToolError(raw) {
		return &ExecutionResult{Success: false, Error: fmt.Sprintf("purchase failed: %v", parsed)}
	}

	currency := service.Price.Currency
	if currency == "" {
		currency = payment.DefaultCurrency
	}
	return &ExecutionResult{
		Success:         true,
		Result:          parsed,
		TransactionCost: fmt.Sprintf("%s %s", service.Price.Amount, currency),
		PaymentMethod:   paymentMethod,
	}
}

func validateService(serviceID string, service discovery.EnrichedService) error {
	switch {
	case !service.ExecutionReady():
		return fmt.Errorf("service %s is not ready for execution", serviceID)
	case service.PaymentInfo.WalletAddress == "":
		return fmt.Errorf("service %s has a missing wallet address", serviceID)
	case strings.TrimSpace(service.ServerInfo.URL) == "":
		return fmt.Errorf("service %s has a missing server URL", serviceID)
	case !service.Price.Amount.IsValidPrice():
		return fmt.Errorf("service %s has an invalid price: %q", serviceID, service.Price.Amount.String())
	}
	return nil
}

func containsItem(items []discovery.RawServiceItem, id string) bool {
	for _, item := range items {
		if item.ID == id {
			return true
		}
	}
	return false
}

func containsMarker(parsed interface{}, marker string) bool {
	if text, ok := parsed.(string); ok {
		return strings.Contains(text, marker)
	}
	data, err := json.Marshal(parsed)
	if err != nil {
		return false
	}
	return strings.Contains(string(data), marker)
}

func (o *Orchestrator) report(req ExecutionRequest, service discovery.EnrichedService, result *ExecutionResult, elapsed time.Duration) {
	if o.recorder != nil {
		o.recorder.RecordExecution(result.Success, elapsed)
	}
	if o.events != nil {
		serviceID := req.ServiceID
		if serviceID == "" {
			serviceID = service.ID
		}
		o.events.PublishServiceExecuted(serviceID, service.ServerInfo.URL, result.Success, result.ExecutionTime, result.Error)
	}
}
