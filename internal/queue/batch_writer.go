package queue

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/kodexArg/dj-indoor-monitor/internal/metrics"
	"github.com/kodexArg/dj-indoor-monitor/internal/models"
	"github.com/kodexArg/dj-indoor-monitor/internal/services"
	"github.com/segmentio/kafka-go"
)

// MessageSource is the consuming side of a topic
type MessageSource interface {
	Consume(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
}

// statsSource is implemented by sources that report consumer statistics
type statsSource interface {
	Stats() kafka.ReaderStats
}

// PayloadIngestor stores a raw device payload
type PayloadIngestor interface {
	IngestPayload(ctx context.Context, source string, payload []byte, defaultSensor string) ([]models.Reading, error)
}

// BatchWriter consumes reading payloads and hands them to the ingestor in
// batches, committing each offset only after its readings are stored
type BatchWriter struct {
	source        MessageSource
	ingestor      PayloadIngestor
	batchSize     int
	flushInterval time.Duration
	metrics       *metrics.Metrics
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// NewBatchWriter creates a new batch writer
func NewBatchWriter(source MessageSource, ingestor PayloadIngestor, batchSize int, flushInterval time.Duration) *BatchWriter {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &BatchWriter{
		source:        source,
		ingestor:      ingestor,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
	}
}

// WithMetrics reports consumer lag after every flush
func (bw *BatchWriter) WithMetrics(m *metrics.Metrics) *BatchWriter {
	bw.metrics = m
	return bw
}

// Start begins consuming in the background
func (bw *BatchWriter) Start(ctx context.Context) {
	bw.wg.Add(1)
	go bw.run(ctx)
	log.Printf("📦 Kafka: Batch writer started (batch=%d, flush=%s)", bw.batchSize, bw.flushInterval)
}

// Stop flushes the pending batch and waits for the writer to exit
func (bw *BatchWriter) Stop() {
	close(bw.stopCh)
	bw.wg.Wait()
	log.Println("🛑 Kafka: Batch writer stopped")
}

func (bw *BatchWriter) run(ctx context.Context) {
	defer bw.wg.Done()

	consumeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var batch []kafka.Message
	ticker := time.NewTicker(bw.flushInterval)
	defer ticker.Stop()

	msgChan := make(chan kafka.Message, 10)
	go func() {
		defer close(msgChan)
		for {
			msg, err := bw.source.Consume(consumeCtx)
			if err != nil {
				if consumeCtx.Err() != nil || errors.Is(err, context.Canceled) {
					return
				}
				log.Printf("❌ Kafka: Consumer error: %v", err)
				select {
				case <-time.After(time.Second):
				case <-consumeCtx.Done():
					return
				}
				continue
			}
			select {
			case msgChan <- msg:
			case <-consumeCtx.Done():
				return
			}
		}
	}()

	for {
		// A full batch means the store is failing; stop reading until it drains
		in := msgChan
		if len(batch) >= bw.batchSize {
			in = nil
		}

		select {
		case <-bw.stopCh:
			cancel()
			for msg := range msgChan {
				batch = append(batch, msg)
			}
			if _, pending := bw.flush(ctx, batch); len(pending) > 0 {
				log.Printf("⚠️  Kafka: %d message(s) left uncommitted for redelivery", len(pending))
			}
			return

		case <-ticker.C:
			if len(batch) > 0 {
				_, batch = bw.flush(ctx, batch)
			}

		case msg, ok := <-in:
			if !ok {
				bw.flush(ctx, batch)
				<-bw.stopCh
				return
			}
			batch = append(batch, msg)
			if len(batch) >= bw.batchSize {
				_, batch = bw.flush(ctx, batch)
			}
		}
	}
}

// flush ingests batch in order. Payloads that cannot be parsed are committed
// and skipped. A store failure stops the flush: that message and everything
// after it stay uncommitted and are returned for the next attempt, since a
// later commit would move the group past them.
func (bw *BatchWriter) flush(ctx context.Context, batch []kafka.Message) (int, []kafka.Message) {
	if len(batch) == 0 {
		return 0, nil
	}

	stored := 0
	for idx, msg := range batch {
		readings, err := bw.ingestor.IngestPayload(ctx, services.SourceKafka, msg.Value, string(msg.Key))
		if errors.Is(err, services.ErrStore) {
			log.Printf("❌ Kafka: Store unavailable at partition=%d offset=%d, retrying %d message(s) later: %v",
				msg.Partition, msg.Offset, len(batch)-idx, err)
			bw.reportLag()
			return stored, batch[idx:]
		}
		if err != nil {
			log.Printf("⚠️  Kafka: Skipping unreadable message (partition=%d, offset=%d): %v", msg.Partition, msg.Offset, err)
		} else {
			stored += len(readings)
		}

		if err := bw.source.Commit(ctx, msg); err != nil {
			log.Printf("⚠️  Kafka: Failed to commit offset %d: %v", msg.Offset, err)
		}
	}

	log.Printf("✅ Kafka: Flushed %d message(s), %d reading(s) stored", len(batch), stored)
	bw.reportLag()
	return stored, nil
}

func (bw *BatchWriter) reportLag() {
	if s, ok := bw.source.(statsSource); ok {
		bw.metrics.SetKafkaLag(s.Stats().Lag)
	}
}
