package discovery

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/praxis/praxis-marketplace-gateway/internal/payment"
)

const (
	DefaultMaxServers  = 20
	NoDescription      = "No description available"
	UncategorizedLabel = "uncategorized"
)

// DefaultPriceListingTools are tried in order until one answers with a listing.
var DefaultPriceListingTools = []string{"price-listing", "price_listing", "getPriceListing"}

const DefaultPaymentMethodsTool = "payment-methods"

type Price struct {
	Amount        payment.Decimal `json:"amount"`
	Currency      string          `json:"currency,omitempty"`
	PaymentMethod string          `json:"paymentMethod"`
}

// RawServiceItem is one entry of a server's price listing.
type RawServiceItem struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Price       Price                  `json:"price"`
	Params      map[string]interface{} `json:"params,omitempty"`
}

func (item *RawServiceItem) normalize() {
	if strings.TrimSpace(item.Description) == "" {
		item.Description = NoDescription
	}
	if item.Name == "" {
		item.Name = item.ID
	}
	if item.Params == nil {
		item.Params = map[string]interface{}{}
	}
}

// PaymentMethodRecord is one payment rail a server accepts.
type PaymentMethodRecord struct {
	WalletAddress string `json:"walletAddress"`
	PaymentMethod string `json:"paymentMethod"`
}

type ServerInfo struct {
	URL      string `json:"url"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	Verified bool   `json:"verified"`
	Category string `json:"category"`
}

type PaymentInfo struct {
	WalletAddress string `json:"walletAddress"`
	PaymentMethod string `json:"paymentMethod"`
}

// EnrichedService is a listed item joined with its server and payment
// destination. Readiness is derived from PaymentInfo and never stored.
type EnrichedService struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Price       Price                  `json:"price"`
	Params      map[string]interface{} `json:"params"`
	ServerInfo  ServerInfo             `json:"serverInfo"`
	PaymentInfo PaymentInfo            `json:"paymentInfo"`
	Category    string                 `json:"category"`
}

func (s *EnrichedService) ExecutionReady() bool {
	return s.PaymentInfo.WalletAddress != ""
}

func (s EnrichedService) MarshalJSON() ([]byte, error) {
	type plain EnrichedService
	return json.Marshal(struct {
		plain
		ExecutionReady bool `json:"executionReady"`
	}{
		plain:          plain(s),
		ExecutionReady: s.ExecutionReady(),
	})
}

type ExplorationError struct {
	ServerName string `json:"serverName"`
	Error      string `json:"error"`
}

type RegistryMetadata struct {
	ExploredAt time.Time          `json:"exploredAt"`
	Errors     []ExplorationError `json:"errors"`
}

// ServiceRegistry is the catalog produced by one exploration run.
type ServiceRegistry struct {
	TotalServersExplored int               `json:"totalServersExplored"`
	TotalServicesFound   int               `json:"totalServicesFound"`
	Category             string            `json:"category,omitempty"`
	Services             []EnrichedService `json:"services"`
	Metadata             RegistryMetadata  `json:"metadata"`
}

// FindService looks a service up by id, optionally pinned to a server URL.
func (r *ServiceRegistry) FindService(serviceID, serverURL string) (*EnrichedService, bool) {
	for i := range r.Services {
		svc := &r.Services[i]
		if svc.ID != serviceID {
			continue
		}
		if serverURL != "" && svc.ServerInfo.URL != serverURL {
			continue
		}
		return svc, true
	}
	return nil, false
}

// PrimaryCategory returns the first comma-separated category tag.
func PrimaryCategory(categories string) string {
	first, _, _ := strings.Cut(categories, ",")
	first = strings.TrimSpace(first)
	if first == "" {
		return UncategorizedLabel
	}
	return first
}
