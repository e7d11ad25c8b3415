package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"CardSignals/internal/domain/models"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProducer struct {
	topic string
	key   []byte
	value interface{}
}

func (p *recordingProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	p.topic, p.key, p.value = topic, key, value
	return nil
}

func (p *recordingProducer) Close() error { return nil }

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(context.Context, models.SignalEvent) error {
	p.calls++
	return errors.New("down")
}

func (p *failingPublisher) Close() error { return nil }

type countingPublisher struct{ events []models.SignalEvent }

func (p *countingPublisher) Publish(_ context.Context, ev models.SignalEvent) error {
	p.events = append(p.events, ev)
	return nil
}

func (p *countingPublisher) Close() error { return nil }

func sampleEvent() models.SignalEvent {
	return models.SignalEvent{
		Style:    "quick_hit",
		Signal:   models.Signal{ID: "sig-1", CardID: "sv3-125", EdgeBp: 1500, Confidence: 0.8},
		Headline: "Charizard ex — 15% edge, conf 80%",
	}
}

func TestKafkaSignalPublisherKeysByCard(t *testing.T) {
	prod := &recordingProducer{}
	pub := NewKafkaSignalPublisher(prod, "signals")

	require.NoError(t, pub.Publish(context.Background(), sampleEvent()))
	assert.Equal(t, "signals", prod.topic)
	assert.Equal(t, []byte("sv3-125"), prod.key)
	assert.Equal(t, sampleEvent(), prod.value)
}

func TestRedisDealPublisherPublishesJSON(t *testing.T) {
	db, mock := redismock.NewClientMock()
	pub := NewRedisDealPublisher(db, "")

	ev := sampleEvent()
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	mock.ExpectPublish("deals", payload).SetVal(1)

	require.NoError(t, pub.Publish(context.Background(), ev))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisDealPublisherWrapsError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	pub := NewRedisDealPublisher(db, "deals")

	ev := sampleEvent()
	payload, _ := json.Marshal(ev)
	mock.ExpectPublish("deals", payload).SetErr(errors.New("connection refused"))

	err := pub.Publish(context.Background(), ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis publish deals")
}

func TestMultiPublisherTriesEveryBackend(t *testing.T) {
	bad := &failingPublisher{}
	good := &countingPublisher{}
	multi := NewMultiPublisher(nil, bad, nil, good)

	assert.Equal(t, 2, multi.Len())
	err := multi.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Equal(t, 1, bad.calls)
	assert.Len(t, good.events, 1)
}
