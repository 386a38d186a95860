package stats

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	batches [][]Hit
	err     error
}

func (s *recordingSink) RecordHits(_ context.Context, hits []Hit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Hit(nil), hits...))
	return s.err
}

func (s *recordingSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func TestChannelCollector_DropsWhenFullAndAfterClose(t *testing.T) {
	c := NewChannelCollector(2)
	c.Collect(Hit{Short: "a"})
	c.Collect(Hit{Short: "b"})
	c.Collect(Hit{Short: "c"}) // 缓冲区满，丢弃

	assert.Len(t, c.Events(), 2)

	c.Close()
	c.Close()
	c.Collect(Hit{Short: "d"}) // 关闭后不会 panic
}

func TestConsumer_FlushesFullBatches(t *testing.T) {
	sink := &recordingSink{}
	c := NewChannelCollector(10)
	consumer := NewConsumer(sink, c)
	consumer.batchSize = 3
	consumer.interval = time.Hour

	done := make(chan struct{})
	go func() {
		consumer.Run(context.Background())
		close(done)
	}()

	for i := 0; i < 7; i++ {
		c.Collect(Hit{Short: "abc"})
	}
	c.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after collector close")
	}

	require.Equal(t, 7, sink.total())
	assert.Len(t, sink.batches, 3) // 3 + 3 + 剩余 1
}

func TestConsumer_FlushesOnTickAndCancel(t *testing.T) {
	sink := &recordingSink{}
	c := NewChannelCollector(10)
	consumer := NewConsumer(sink, c)
	consumer.interval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consumer.Run(ctx)
		close(done)
	}()

	c.Collect(Hit{Short: "tick"})
	require.Eventually(t, func() bool { return sink.total() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestConsumer_SinkErrorDoesNotStopLoop(t *testing.T) {
	sink := &recordingSink{err: errors.New("db down")}
	c := NewChannelCollector(10)
	consumer := NewConsumer(sink, c)
	consumer.batchSize = 1

	done := make(chan struct{})
	go func() {
		consumer.Run(context.Background())
		close(done)
	}()
	c.Collect(Hit{Short: "x"})
	c.Collect(Hit{Short: "y"})
	c.Close()
	<-done

	assert.Equal(t, 2, sink.total())
}

func TestDecodeHit(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	data, err := json.Marshal(Hit{Short: "Ab3", At: at, Referer: "https://ref"})
	require.NoError(t, err)

	hit, err := decodeHit(data)
	require.NoError(t, err)
	assert.Equal(t, "Ab3", hit.Short)
	assert.True(t, hit.At.Equal(at))

	_, err = decodeHit([]byte("{"))
	assert.Error(t, err)
}
