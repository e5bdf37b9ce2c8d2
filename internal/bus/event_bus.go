package bus

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type EventType string

const (
	EventServicesExplored EventType = "servicesExplored"
	EventServiceExecuted  EventType = "serviceExecuted"
	EventPaymentValidated EventType = "paymentValidated"
	EventGatewayLog       EventType = "gatewayLog"
)

// AllEventTypes lists every event type SubscribeAll attaches to.
var AllEventTypes = []EventType{
	EventServicesExplored,
	EventServiceExecuted,
	EventPaymentValidated,
	EventGatewayLog,
}

type Event struct {
	Type      EventType              `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

type EventHandler func(event Event)

// EventBus fans events out to subscribers on a background goroutine.
// Publishing never blocks; events are dropped when the buffer is full.
type EventBus struct {
	mu        sync.RWMutex
	handlers  map[EventType][]EventHandler
	logger    *logrus.Logger
	eventChan chan Event
	stopChan  chan struct{}
	stopOnce  sync.Once
}

func NewEventBus(logger *logrus.Logger) *EventBus {
	if logger == nil {
		logger = logrus.New()
	}
	eb := &EventBus{
		handlers:  make(map[EventType][]EventHandler),
		logger:    logger,
		eventChan: make(chan Event, 256),
		stopChan:  make(chan struct{}),
	}

	go eb.processEvents()

	return eb
}

func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

func (eb *EventBus) SubscribeAll(handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, eventType := range AllEventTypes {
		eb.handlers[eventType] = append(eb.handlers[eventType], handler)
	}
}

func (eb *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case <-eb.stopChan:
		return
	default:
	}

	select {
	case eb.eventChan <- event:
	default:
		// not logged through eb.logger: a log hook feeding the bus would loop
		logrus.StandardLogger().Warnf("Event channel full, dropping event: %s", event.Type)
	}
}

func (eb *EventBus) PublishAsync(eventType EventType, payload map[string]interface{}) {
	event := Event{Type: eventType, Payload: payload, Timestamp: time.Now().UTC()}
	go eb.Publish(event)
}

func (eb *EventBus) processEvents() {
	for {
		select {
		case event := <-eb.eventChan:
			eb.dispatch(event)
		case <-eb.stopChan:
			return
		}
	}
}

func (eb *EventBus) dispatch(event Event) {
	eb.mu.RLock()
	handlers := append([]EventHandler(nil), eb.handlers[event.Type]...)
	eb.mu.RUnlock()

	for _, handler := range handlers {
		go func(h EventHandler) {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Errorf("Panic in event handler for %s: %v", event.Type, r)
				}
			}()
			h(event)
		}(handler)
	}
}

// Stop ends dispatching. Events published afterwards are discarded.
func (eb *EventBus) Stop() {
	eb.stopOnce.Do(func() {
		close(eb.stopChan)
	})
}

// PublishServicesExplored reports the totals of one discovery run.
func (eb *EventBus) PublishServicesExplored(serversExplored, servicesFound, errors int, category string) {
	eb.PublishAsync(EventServicesExplored, map[string]interface{}{
		"totalServersExplored": serversExplored,
		"totalServicesFound":   servicesFound,
		"errors":               errors,
		"category":             category,
	})
}

// PublishServiceExecuted reports the outcome of one purchase.
func (eb *EventBus) PublishServiceExecuted(serviceID, serverURL string, success bool, executionTimeMs int64, errMsg string) {
	eb.PublishAsync(EventServiceExecuted, map[string]interface{}{
		"serviceId":     serviceID,
		"serverUrl":     serverURL,
		"success":       success,
		"executionTime": executionTimeMs,
		"error":         errMsg,
	})
}

// PublishPaymentValidated reports the final state of a payment validation.
func (eb *EventBus) PublishPaymentValidated(transactionHash, status, fromAddress string) {
	eb.PublishAsync(EventPaymentValidated, map[string]interface{}{
		"transactionHash": transactionHash,
		"status":          status,
		"fromAddress":     fromAddress,
	})
}
