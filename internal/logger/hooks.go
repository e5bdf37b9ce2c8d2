package logger

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/praxis/praxis-marketplace-gateway/internal/bus"
	"github.com/sirupsen/logrus"
)

// EventBusLogHook forwards log entries to the EventBus so websocket
// subscribers can follow gateway activity.
type EventBusLogHook struct {
	eventBus *bus.EventBus
	source   string
	levels   []logrus.Level
}

// NewEventBusLogHook forwards entries at minLevel and above.
func NewEventBusLogHook(eventBus *bus.EventBus, source string, minLevel logrus.Level) *EventBusLogHook {
	levels := make([]logrus.Level, 0, len(logrus.AllLevels))
	for _, level := range logrus.AllLevels {
		if level <= minLevel {
			levels = append(levels, level)
		}
	}
	return &EventBusLogHook{
		eventBus: eventBus,
		source:   source,
		levels:   levels,
	}
}

func (h *EventBusLogHook) Levels() []logrus.Level {
	return h.levels
}

func (h *EventBusLogHook) Fire(entry *logrus.Entry) error {
	if h.eventBus == nil {
		return nil
	}

	fields := make(map[string]interface{}, len(entry.Data))
	keys := make([]string, 0, len(entry.Data))
	for key, value := range entry.Data {
		if err, ok := value.(error); ok {
			value = err.Error()
		}
		fields[key] = value
		keys = append(keys, key)
	}
	sort.Strings(keys)

	message := entry.Message
	if len(keys) > 0 {
		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", key, fields[key]))
		}
		message = fmt.Sprintf("%s [%s]", message, strings.Join(parts, ", "))
	}

	h.eventBus.PublishAsync(bus.EventGatewayLog, map[string]interface{}{
		"level":     entry.Level.String(),
		"message":   message,
		"source":    h.source,
		"fields":    fields,
		"timestamp": entry.Time.Format(time.RFC3339),
	})

	return nil
}
