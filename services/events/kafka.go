// Package eventsvc implements core.EventPublisher.
package eventsvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/sautiplus/backoffice/core"
)

const publishTimeout = 5 * time.Second

// messageWriter is the part of *kafka.Writer used by KafkaPublisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per event to the topic `<prefix><event type>`, keyed by the event key.
type KafkaPublisher struct {
	writer      messageWriter
	topicPrefix string
	logger      core.Logger
}

var _ core.EventPublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(logger core.Logger, conf *core.Config) (*KafkaPublisher, error) {
	if len(conf.Kafka.Brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(conf.Kafka.Brokers...),
			RequiredAcks:           kafka.RequireAll,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		topicPrefix: conf.Kafka.TopicPrefix,
		logger:      logger,
	}, nil
}

func (p *KafkaPublisher) messages(events []core.Event) []kafka.Message {
	msgs := make([]kafka.Message, 0, len(events))
	for _, evt := range events {
		value, err := json.Marshal(evt)
		if err != nil {
			p.logger.Error("encoding event", "type", evt.Type, "err", err)
			continue
		}
		msgs = append(msgs, kafka.Message{
			Topic: p.topicPrefix + evt.Type,
			Key:   []byte(evt.Key),
			Value: value,
			Time:  evt.OccurredAt,
		})
	}
	return msgs
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...core.Event) {
	msgs := p.messages(events)
	if len(msgs) == 0 {
		return
	}

	// the originating request may be done by now
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("publishing events", "count", len(msgs), "err", err)
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
