package events

import (
	"testing"

	"bookingsvc/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublisher(t *testing.T) {
	t.Run("Local", func(t *testing.T) {
		pub, closer, err := NewPublisher(&config.Config{Events: config.EventsConfig{Bus: config.BusLocal}}, aws.Config{}, nil)
		require.NoError(t, err)
		assert.IsType(t, &EventBus{}, pub)
		assert.NoError(t, closer.Close())
	})

	t.Run("EventBridge", func(t *testing.T) {
		cfg := &config.Config{Events: config.EventsConfig{Bus: config.BusEventBridge, EventBusName: "reminders"}}
		pub, _, err := NewPublisher(cfg, aws.Config{Region: "eu-west-1"}, nil)
		require.NoError(t, err)
		eb, ok := pub.(*EventBridgePublisher)
		require.True(t, ok)
		assert.Equal(t, "reminders", eb.busName)
		assert.Equal(t, "booking.reminder", eb.source)
	})

	t.Run("Unknown", func(t *testing.T) {
		_, _, err := NewPublisher(&config.Config{Events: config.EventsConfig{Bus: "kafka"}}, aws.Config{}, nil)
		assert.ErrorContains(t, err, "unknown event bus")
	})
}
