package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"solar-portal/internal/observability/metrics"
	paymentapp "solar-portal/internal/payments/application"
	payments "solar-portal/internal/payments/domain"
	"solar-portal/internal/platform/apperr"
)

const consumerName = "payments"

// EventHandler applies one provider event.
type EventHandler interface {
	HandleEvent(ctx context.Context, event paymentapp.Event) (*payments.Transaction, error)
}

// Config configures the payment event consumer.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Consumer reads payment provider events from a consumer group.
type Consumer struct {
	group   sarama.ConsumerGroup
	topic   string
	handler *groupHandler
	log     logrus.FieldLogger
}

// NewConsumer connects a consumer group for cfg.Topic.
func NewConsumer(cfg Config, events EventHandler, log logrus.FieldLogger) (*Consumer, error) {
	if events == nil {
		return nil, errors.New("payment consumer: nil event handler")
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("payment consumer: brokers and topic are required")
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "solar-portal-payments"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetOldest

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, config)
	if err != nil {
		return nil, err
	}
	log = log.WithFields(logrus.Fields{"component": "payment_consumer", "topic": cfg.Topic})
	return &Consumer{
		group:   group,
		topic:   cfg.Topic,
		handler: newGroupHandler(events, log),
		log:     log,
	}, nil
}

// Run consumes until ctx is canceled. Each rebalance starts a new session.
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.log.WithError(err).Warn("kafka consumer error")
		}
	}()
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, c.handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.log.WithError(err).Error("kafka consume failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Second):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close leaves the consumer group.
func (c *Consumer) Close() error {
	return c.group.Close()
}

type groupHandler struct {
	events EventHandler
	log    logrus.FieldLogger
	now    func() time.Time
}

func newGroupHandler(events EventHandler, log logrus.FieldLogger) *groupHandler {
	return &groupHandler{events: events, log: log, now: time.Now}
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim applies messages in order. A transient failure ends the session without
// marking the message so it is redelivered; any other failure is logged and skipped.
func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if !msg.Timestamp.IsZero() {
				metrics.ObserveConsumerLag(consumerName, h.now().Sub(msg.Timestamp))
			}
			if err := h.handleMessage(session.Context(), msg.Value); err != nil {
				if apperr.CodeOf(err) == apperr.Transient {
					return err
				}
				h.log.WithError(err).WithFields(logrus.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("payment event skipped")
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *groupHandler) handleMessage(ctx context.Context, value []byte) error {
	var event paymentapp.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return apperr.Wrap(apperr.Validation, "payment event: invalid json", err)
	}
	t, err := h.events.HandleEvent(ctx, event)
	if err != nil {
		return err
	}
	h.log.WithFields(logrus.Fields{
		"intent_id": t.ProviderIntentID,
		"status":    t.Status,
	}).Debug("payment event applied")
	return nil
}
