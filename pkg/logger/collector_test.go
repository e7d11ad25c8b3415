package logger

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func TestCollectorDeduplicatesRepeatedErrors(t *testing.T) {
	pub := &capturePublisher{}
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "debug")
	l.AddCollector(&CollectionConfig{FlushInterval: time.Hour, MaxEntries: 10, Topic: "ops-logs", Publisher: pub})

	for i := 0; i < 5; i++ {
		l.Error("snapshot write failed", String("card_id", "c"+string(rune('a'+i))))
	}
	l.Warn("ignored by default levels")
	require.Equal(t, 1, l.collector.Pending())

	l.RemoveCollector()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	assert.Equal(t, "ops-logs", pub.topic)
	require.Len(t, pub.batches[0], 1)
	assert.Equal(t, 5, pub.batches[0][0].Count)
	assert.Equal(t, "error", pub.batches[0][0].Level)
	assert.Contains(t, buf.String(), "snapshot write failed")
}

func TestCollectorEarlyFlushOnMaxEntries(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{FlushInterval: time.Hour, MaxEntries: 2, Levels: []string{"warn"}, Publisher: pub})
	c.AddLog("warn", "a", nil, "x.go:1")
	c.AddLog("warn", "b", nil, "x.go:2")
	assert.Equal(t, 0, c.Pending())
	c.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	assert.Len(t, pub.batches[0], 2)
}

func TestNopLoggerDoesNotPanic(t *testing.T) {
	l := Nop().With(String("component", "test"))
	l.Info("hello", Int("n", 1), Duration("duration_ms", time.Second), Float64("f", 1.5))
	l.Error("boom", Error(nil))
}
