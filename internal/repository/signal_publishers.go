package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"CardSignals/internal/domain/models"
	"CardSignals/internal/domain/repository"
	applogger "CardSignals/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// EventProducer is the part of the Kafka producer the signal publisher needs.
type EventProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaSignalPublisher writes alert events to a topic keyed by card id, so
// every signal for one card lands on the same partition.
type KafkaSignalPublisher struct {
	producer EventProducer
	topic    string
}

func NewKafkaSignalPublisher(producer EventProducer, topic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

func (p *KafkaSignalPublisher) Publish(ctx context.Context, ev models.SignalEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.Signal.CardID), ev)
}

// Close leaves the shared producer open; its owner closes it.
func (p *KafkaSignalPublisher) Close() error { return nil }

// RedisDealPublisher announces signals on a pub/sub channel.
type RedisDealPublisher struct {
	client  redis.Cmdable
	channel string
}

func NewRedisDealPublisher(client redis.Cmdable, channel string) *RedisDealPublisher {
	if channel == "" {
		channel = "deals"
	}
	return &RedisDealPublisher{client: client, channel: channel}
}

func (p *RedisDealPublisher) Publish(ctx context.Context, ev models.SignalEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode deal: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, b).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", p.channel, err)
	}
	return nil
}

func (p *RedisDealPublisher) Close() error { return nil }

// MultiPublisher fans one event out to every backend. Each backend is tried
// even when an earlier one fails; the failures are joined.
type MultiPublisher struct {
	pubs []repository.SignalPublisher
	l    *applogger.Logger
}

func NewMultiPublisher(l *applogger.Logger, pubs ...repository.SignalPublisher) *MultiPublisher {
	kept := make([]repository.SignalPublisher, 0, len(pubs))
	for _, p := range pubs {
		if p != nil {
			kept = append(kept, p)
		}
	}
	return &MultiPublisher{pubs: kept, l: l}
}

func (m *MultiPublisher) Publish(ctx context.Context, ev models.SignalEvent) error {
	var errs []error
	for _, p := range m.pubs {
		if err := p.Publish(ctx, ev); err != nil {
			if m.l != nil {
				m.l.Warn("alert backend failed",
					applogger.String("signal_id", ev.Signal.ID),
					applogger.String("backend", fmt.Sprintf("%T", p)),
					applogger.Error(err))
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiPublisher) Close() error {
	var errs []error
	for _, p := range m.pubs {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len reports the number of configured backends.
func (m *MultiPublisher) Len() int { return len(m.pubs) }

var (
	_ repository.SignalPublisher = (*KafkaSignalPublisher)(nil)
	_ repository.SignalPublisher = (*RedisDealPublisher)(nil)
	_ repository.SignalPublisher = (*MultiPublisher)(nil)
)
