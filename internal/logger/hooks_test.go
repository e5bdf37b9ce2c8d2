package logger

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/praxis/praxis-marketplace-gateway/internal/bus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusLogHook_ForwardsEntries(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)

	eventBus := bus.NewEventBus(logrus.New())
	defer eventBus.Stop()

	var (
		mu       sync.Mutex
		received []bus.Event
	)
	eventBus.Subscribe(bus.EventGatewayLog, func(event bus.Event) {
		mu.Lock()
		received = append(received, event)
		mu.Unlock()
	})

	logger.AddHook(NewEventBusLogHook(eventBus, "test-gateway", logrus.WarnLevel))

	logger.Info("not forwarded")
	logger.WithFields(logrus.Fields{
		"url":   "http://tools.example",
		"cause": errors.New("connection refused"),
	}).Warn("Failed to disconnect")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond)

	// give a stray info event time to arrive if the level filter were broken
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)

	payload := received[0].Payload
	assert.Equal(t, "warning", payload["level"])
	assert.Equal(t, "test-gateway", payload["source"])
	assert.Equal(t, "Failed to disconnect [cause=connection refused, url=http://tools.example]", payload["message"])

	fields := payload["fields"].(map[string]interface{})
	assert.Equal(t, "connection refused", fields["cause"])
}

func TestEventBusLogHook_Levels(t *testing.T) {
	hook := NewEventBusLogHook(nil, "gateway", logrus.ErrorLevel)
	assert.ElementsMatch(t, []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel}, hook.Levels())

	assert.NoError(t, hook.Fire(logrus.NewEntry(logrus.New())))
}
