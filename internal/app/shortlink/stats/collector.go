package stats

import (
	"context"
	"sync"
	"time"
)

// Hit is one served redirect.
type Hit struct {
	Short     string    `json:"short"`
	At        time.Time `json:"at"`
	IP        string    `json:"ip"`
	Referer   string    `json:"referer"`
	UserAgent string    `json:"user_agent"`
}

// Sink persists a batch of hits. Every mapping store implements it.
type Sink interface {
	RecordHits(ctx context.Context, hits []Hit) error
}

// Collector 收集器接口（Channel 或 Kafka）。Collect 不能阻塞跳转路径。
type Collector interface {
	Collect(hit Hit)
	Close()
}

// Discard drops every hit; used when stats are disabled.
type Discard struct{}

func (Discard) Collect(Hit) {}
func (Discard) Close() {}

// ChannelCollector 基于 channel 的收集器，缓冲区满时丢弃。
type ChannelCollector struct {
	mu     sync.RWMutex
	ch     chan Hit
	closed bool
}

func NewChannelCollector(bufferSize int) *ChannelCollector {
	return &ChannelCollector{
		ch: make(chan Hit, bufferSize),
	}
}

func (c *ChannelCollector) Collect(hit Hit) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- hit:
	default:
		// 通道满了，丢弃
	}
}

func (c *ChannelCollector) Events() <-chan Hit {
	return c.ch
}

func (c *ChannelCollector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
