// Package outbox buffers outbound messages and delivers them to Kafka in batches.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/pelotonbridge/internal/messages"
)

const (
	defaultBuffer        = 256
	defaultFlushInterval = 500 * time.Millisecond
	defaultBatchSize     = 25
	shutdownFlushTimeout = 5 * time.Second
)

// ErrBufferFull is returned by Publish when the queue has no room left.
var ErrBufferFull = errors.New("outbox buffer full")

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

// Config controls batching.
type Config struct {
	Topic         string
	Buffer        int
	FlushInterval time.Duration
	BatchSize     int
}

// Option configures optional behaviour for the Dispatcher.
type Option func(*Dispatcher)

// WithLogger overrides the logger used to report delivery failures.
func WithLogger(logger *log.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// Dispatcher queues outbound messages and writes them to Kafka keyed by instance id.
type Dispatcher struct {
	producer         messageWriter
	topic            string
	queue            chan messages.Message
	flushInterval    time.Duration
	batchSize        int
	logger           *log.Logger
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher. Zero config values fall back to defaults.
func NewDispatcher(producer messageWriter, cfg Config, opts ...Option) *Dispatcher {
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	d := &Dispatcher{
		producer:         producer,
		topic:            cfg.Topic,
		queue:            make(chan messages.Message, cfg.Buffer),
		flushInterval:    cfg.FlushInterval,
		batchSize:        cfg.BatchSize,
		logger:           log.New(log.Writer(), "[outbox] ", log.LstdFlags|log.Lshortfile),
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Publish enqueues msg without blocking. A full queue drops the message.
func (d *Dispatcher) Publish(_ context.Context, msg messages.Message) error {
	select {
	case d.queue <- msg:
		queueDepth.Set(float64(len(d.queue)))
		return nil
	default:
		droppedCounter.Inc()
		return fmt.Errorf("%w: %s for instance %s", ErrBufferFull, msg.Name, msg.InstanceID)
	}
}

// Start launches the delivery loop. It should be called in a goroutine. When ctx is
// cancelled the queued messages are flushed once more before Start returns.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.flushInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	batch := make([]messages.Message, 0, d.batchSize)
	for {
		select {
		case <-ctx.Done():
			d.shutdown(batch)
			return
		case msg := <-d.queue:
			batch = append(batch, msg)
			if len(batch) >= d.batchSize {
				d.processBatch(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				d.processBatch(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

// Wait waits until dispatcher stops.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) shutdown(batch []messages.Message) {
drain:
	for {
		select {
		case msg := <-d.queue:
			batch = append(batch, msg)
		default:
			break drain
		}
	}
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()
	d.processBatch(ctx, batch)
}

func (d *Dispatcher) processBatch(ctx context.Context, batch []messages.Message) {
	start := time.Now()
	defer func() {
		batchDuration.Observe(time.Since(start).Seconds())
		queueDepth.Set(float64(len(d.queue)))
	}()

	records := make([]kafka.Message, 0, len(batch))
	for _, msg := range batch {
		record, err := encodeRecord(msg)
		if err != nil {
			d.logger.Printf("encode %s for instance %s: %v", msg.Name, msg.InstanceID, err)
			failedCounter.Inc()
			continue
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return
	}

	if err := d.producer.WriteMessages(ctx, d.topic, records...); err != nil {
		d.logger.Printf("delivery failure (topic=%s, messages=%d): %v", d.topic, len(records), err)
		failedCounter.Add(float64(len(records)))
		return
	}
	deliveredCounter.Add(float64(len(records)))
}

// encodeRecord keys the record by instance id so one instance's messages stay ordered.
func encodeRecord(msg messages.Message) (kafka.Message, error) {
	value, err := json.Marshal(msg)
	if err != nil {
		return kafka.Message{}, err
	}
	ts := msg.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return kafka.Message{
		Key:   []byte(msg.InstanceID),
		Value: value,
		Time:  ts,
		Headers: []kafka.Header{
			{Key: "message_name", Value: []byte(msg.Name)},
			{Key: "instance_id", Value: []byte(msg.InstanceID)},
			{Key: "message_id", Value: []byte(msg.ID)},
		},
	}, nil
}
