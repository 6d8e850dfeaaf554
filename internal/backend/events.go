package backend

import (
	"context"

	"moneypools/internal/amqp"
	"moneypools/internal/config"
	"moneypools/internal/log"
)

// NewEventClient connects to the broker when AMQP_URL is set. It returns nil
// when events are disabled or the broker cannot be reached.
func NewEventClient(ctx context.Context, cfg *config.Config, logger *log.Logger) *amqp.Client {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentBackend)
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled, ledger events will not be published")
		return nil
	}
	client, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		return nil
	}
	logger.Info("Initialized AMQP client",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)
	return client
}
