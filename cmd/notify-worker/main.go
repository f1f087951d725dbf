package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/adapters/rabbit"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/config"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/domain"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/observability"
)

// notify-worker is the in-repo half of the notification dispatcher
// boundary: it consumes lifecycle events and hands them to the external
// delivery provider. Delivery itself (email/WhatsApp) lives outside
// this repo; here the handoff is logged.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := observability.NewLogger()

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()

	consumer, err := rabbit.NewConsumer(conn, "notifications.q", []string{
		"ticket.*",
		"payment.*",
		domain.EventChallengeRequested,
	})
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		log.Fatalf("failed to consume: %v", err)
	}

	go func() {
		for d := range deliveries {
			var payload map[string]interface{}
			if err := json.Unmarshal(d.Body, &payload); err != nil {
				logger.Error("malformed event payload", err)
				d.Nack(false, false)
				continue
			}
			logger.WithField("routing_key", d.RoutingKey).WithField("message_id", d.MessageId).Info("dispatching notification")
			d.Ack(false)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown notify worker")
}
