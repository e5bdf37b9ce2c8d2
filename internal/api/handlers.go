package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/praxis/praxis-marketplace-gateway/internal/discovery"
	"github.com/praxis/praxis-marketplace-gateway/internal/execution"
	"github.com/praxis/praxis-marketplace-gateway/internal/marketplace"
	"github.com/praxis/praxis-marketplace-gateway/internal/payment"
	"github.com/praxis/praxis-marketplace-gateway/internal/store"
)

func (s *Server) handleHealth(c *gin.Context) {
	cached := 0
	if s.deps.Connections != nil {
		cached = s.deps.Connections.Len()
	}
	subscribers := 0
	if s.deps.Events != nil {
		subscribers = s.deps.Events.Clients()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":            "healthy",
		"name":              s.deps.Name,
		"version":           s.deps.Version,
		"cachedConnections": cached,
		"eventSubscribers":  subscribers,
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSearchServers(c *gin.Context) {
	servers := s.deps.Marketplace.SearchServers(c.Request.Context(), marketplace.Filter{
		Name:     c.Query("name"),
		Category: c.Query("category"),
	})
	c.JSON(http.StatusOK, gin.H{"servers": servers, "total": len(servers)})
}

func (s *Server) handleGetServer(c *gin.Context) {
	server, err := s.deps.Marketplace.GetServerInfo(c.Request.Context(), c.Param("id"))
	if errors.Is(err, marketplace.ErrServerNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, server)
}

type validateServerRequest struct {
	URL string `json:"url" binding:"required"`
}

func (s *Server) handleValidateServer(c *gin.Context) {
	var req validateServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":   req.URL,
		"valid": s.deps.Marketplace.ValidateServerURL(c.Request.Context(), req.URL),
	})
}

type exploreRequest struct {
	Category   string   `json:"category"`
	MaxServers int      `json:"maxServers"`
	ServerURLs []string `json:"serverUrls"`
}

// handleExplore explores marketplace servers, or exactly the given URLs
// when serverUrls is set.
func (s *Server) handleExplore(c *gin.Context) {
	var req exploreRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
	}
	if req.MaxServers < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "maxServers must not be negative"})
		return
	}

	opts := discovery.ExploreOptions{Category: strings.TrimSpace(req.Category), MaxServers: req.MaxServers}
	if opts.MaxServers == 0 {
		opts.MaxServers = s.deps.MaxServers
	}

	var servers []marketplace.ServerRecord
	if len(req.ServerURLs) > 0 {
		opts.UnsafeDirectAccess = true
		for _, url := range req.ServerURLs {
			servers = append(servers, marketplace.ServerRecord{Name: url, MCPServerURL: url})
		}
	} else {
		servers = s.deps.Marketplace.SearchServers(c.Request.Context(), marketplace.Filter{})
	}

	c.JSON(http.StatusOK, s.deps.Explorer.ExploreAndEnrichServices(c.Request.Context(), servers, opts))
}

type executeRequest struct {
	ServiceID  string                     `json:"serviceId" binding:"required"`
	ServerURL  string                     `json:"serverUrl"`
	ServerID   string                     `json:"serverId"`
	Params     map[string]interface{}     `json:"params"`
	PrivateKey string                     `json:"privateKey"`
	Service    *discovery.EnrichedService `json:"service"`
}

func (s *Server) handleExecute(c *gin.Context) {
	var body executeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "serviceId is required"})
		return
	}
	if body.Service == nil && body.ServerURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "serverUrl or service is required"})
		return
	}

	req := execution.ExecutionRequest{
		ServiceID:  body.ServiceID,
		ServerURL:  body.ServerURL,
		ServerID:   body.ServerID,
		Params:     body.Params,
		PrivateKey: body.PrivateKey,
	}
	if req.PrivateKey == "" {
		req.PrivateKey = s.deps.BuyerPrivateKey
	}

	service := body.Service
	if service == nil {
		resolved, err := execution.ResolveService(c.Request.Context(), s.deps.Explorer, req)
		if errors.Is(err, execution.ErrServiceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
			return
		}
		service = resolved
	}

	result := s.deps.Executor.ExecuteService(c.Request.Context(), req, *service)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, result)
}

func (s *Server) handleValidatePayment(c *gin.Context) {
	var req payment.PaymentValidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body: " + err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	outcome := s.deps.Payments.ValidateAndSettle(c.Request.Context(), req)
	if outcome.ResponseHeader != "" {
		c.Header(paymentResponseHeader, outcome.ResponseHeader)
	}

	status := http.StatusOK
	switch {
	case outcome.Success:
	case outcome.Status == store.StatusFailed:
		status = http.StatusPaymentRequired
	default:
		status = http.StatusInternalServerError
	}
	c.JSON(status, outcome)
}

func (s *Server) handleGetPayment(c *gin.Context) {
	rec, err := s.deps.Payments.Transaction(c.Request.Context(), c.Param("hash"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleListPayments(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := s.deps.Payments.Transactions(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": records, "total": len(records)})
}

func (s *Server) handleRequirements(c *gin.Context) {
	amount := payment.Decimal(c.Query("amount"))
	paymentMethod := c.Query("paymentMethod")
	recipient := c.Query("recipient")
	if amount == "" || paymentMethod == "" || recipient == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount, paymentMethod and recipient are required"})
		return
	}

	req, err := s.deps.Requirements.BuildRequirements(amount, paymentMethod, recipient)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, req)
}
