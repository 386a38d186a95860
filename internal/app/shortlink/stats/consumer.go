package stats

import (
	"context"
	"log/slog"
	"time"

	"yacut.local/internal/platform/metrics"
)

const (
	defaultBatchSize = 100         // 批量写入大小
	defaultInterval  = time.Second // 最大等待时间
)

// Consumer drains a ChannelCollector into a Sink in batches.
type Consumer struct {
	sink      Sink
	collector *ChannelCollector
	batchSize int
	interval  time.Duration
}

func NewConsumer(sink Sink, collector *ChannelCollector) *Consumer {
	return &Consumer{
		sink:      sink,
		collector: collector,
		batchSize: defaultBatchSize,
		interval:  defaultInterval,
	}
}

// Run 阻塞消费，直到 ctx 结束或 collector 关闭；退出前写出剩余事件。
func (c *Consumer) Run(ctx context.Context) {
	runBatches(ctx, c.collector.Events(), c.sink, c.batchSize, c.interval)
}

func runBatches(ctx context.Context, in <-chan Hit, sink Sink, batchSize int, interval time.Duration) {
	batch := make([]Hit, 0, batchSize)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flush(sink, batch)
			return
		case hit, ok := <-in:
			if !ok {
				flush(sink, batch)
				return
			}
			batch = append(batch, hit)
			if len(batch) >= batchSize {
				flush(sink, batch)
				batch = batch[:0] // 保留容量，避免反复分配
			}
		case <-ticker.C:
			if len(batch) > 0 {
				flush(sink, batch)
				batch = batch[:0]
			}
		}
	}
}

func flush(sink Sink, batch []Hit) {
	if len(batch) == 0 {
		return
	}

	// 独立 context：ctx 结束后仍要写出最后一批
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sink.RecordHits(ctx, batch); err != nil {
		slog.Error("hit stats: flush failed", "count", len(batch), "err", err)
		metrics.HitsFlushed.WithLabelValues("error").Add(float64(len(batch)))
		return
	}
	metrics.HitsFlushed.WithLabelValues("ok").Add(float64(len(batch)))
	slog.Debug("hit stats: flushed", "count", len(batch))
}
