package events

import (
	"context"

	"github.com/smallbiznis/antaeus/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(NewPublisher),
)

// NewPublisher uses Kafka when brokers and a topic are configured.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Publisher {
	if !cfg.Kafka.Enabled() {
		log.Info("events.disabled")
		return NewNoop()
	}

	publisher := NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
	log.Info("events.kafka.enabled",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
	)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return publisher.Close()
		},
	})
	return publisher
}
