package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/foresight-go/internal/conf"
)

func testSettings(broker string) *conf.Settings {
	s := &conf.Settings{}
	s.Main.Name = "TestNode"
	s.MQTT.Enabled = true
	s.MQTT.Broker = broker
	s.MQTT.Topic = "foresight"
	return s
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 5*time.Second, cfg.ReconnectCooldown)
	assert.Equal(t, time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.PublishTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.DisconnectTimeout)
}

func TestConnectRejectsUnresolvableHost(t *testing.T) {
	c := NewClient(testSettings("tcp://nonexistent.invalid:1883"), nil)
	t.Cleanup(c.Disconnect)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	err := c.Connect(ctx)
	require.Error(t, err, ".invalid can never resolve")
	assert.False(t, c.IsConnected())
}

func TestConnectCooldownBlocksRapidRetries(t *testing.T) {
	c := NewClient(testSettings("tcp://nonexistent.invalid:1883"), nil).(*client)
	t.Cleanup(c.Disconnect)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	require.Error(t, c.Connect(ctx))

	err := c.Connect(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too recent",
		"second attempt inside the cooldown window must be rejected")
}

func TestPublishRequiresConnection(t *testing.T) {
	c := NewClient(testSettings("tcp://127.0.0.1:1883"), nil)
	t.Cleanup(c.Disconnect)

	err := c.Publish(t.Context(), "foresight/runs", "{}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestPublishHonorsCancelledContext(t *testing.T) {
	c := NewClient(testSettings("tcp://127.0.0.1:1883"), nil)
	t.Cleanup(c.Disconnect)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := c.Publish(ctx, "foresight/runs", "{}")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	c := NewClient(testSettings("tcp://127.0.0.1:1883"), nil)

	assert.NotPanics(t, func() {
		c.Disconnect()
		c.Disconnect()
	})
}
