package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type KafkaConsumer struct {
	reader    *kafka.Reader
	sink      Sink
	batchSize int
	interval  time.Duration
}

func NewKafkaConsumer(brokers []string, topic string, sink Sink) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  "url-hits-consumer",
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		sink:      sink,
		batchSize: defaultBatchSize,
		interval:  defaultInterval,
	}
}

func (k *KafkaConsumer) Run(ctx context.Context) {
	hits := make(chan Hit, k.batchSize)

	// 读取协程：ctx 结束时关闭 hits，批处理循环随之退出
	go func() {
		defer close(hits)
		for {
			msg, err := k.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("kafka read failed", "err", err)
				continue
			}
			hit, err := decodeHit(msg.Value)
			if err != nil {
				slog.Error("kafka decode hit failed", "err", err)
				continue
			}
			select {
			case hits <- hit:
			case <-ctx.Done():
				return
			}
		}
	}()

	runBatches(ctx, hits, k.sink, k.batchSize, k.interval)
}

func decodeHit(data []byte) (Hit, error) {
	var hit Hit
	err := json.Unmarshal(data, &hit)
	return hit, err
}

func (k *KafkaConsumer) Close() {
	if err := k.reader.Close(); err != nil {
		slog.Error("kafka reader close failed", "err", err)
	}
}
