package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/leadflow/pkg/channels/gochannel"
	"github.com/dukex/leadflow/pkg/channels/kafka"
	"github.com/dukex/leadflow/pkg/eventbus"
)

// NewEventBus builds the event bus for provider "kafka" or "gochannel". Kafka consumers join the
// "cg-<serviceName>" group.
func NewEventBus(provider, brokers, serviceName string, logger *slog.Logger) (*eventbus.WatermillEventBus, error) {
	wlogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wlogger, kafka.ParseBrokers(brokers), serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "gochannel", "memory":
		pub, sub := gochannel.CreateChannel(wlogger)

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %q", provider)
	}
}
