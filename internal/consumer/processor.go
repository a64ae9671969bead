// Package consumer reads inbound widget commands from Kafka and hands them to the router.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/pelotonbridge/internal/messages"
)

const (
	headerMessageName = "message_name"
	headerInstanceID  = "instance_id"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded commands.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is the decoded representation of one inbound command record.
type Message struct {
	Topic      string
	Partition  int
	Offset     int64
	Timestamp  time.Time
	Name       string
	InstanceID string
	Payload    json.RawMessage
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a Handler.
type Processor struct {
	reader  Reader
	handler Handler
	logger  *log.Logger
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:  reader,
		handler: handler,
		logger:  log.New(log.Writer(), "[consumer] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts a blocking loop that processes Kafka messages until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.Printf("fetch error: %v", err)
			continue
		}

		cmd, decodeErr := decodeMessage(msg)
		if decodeErr != nil {
			p.logger.Printf("decode error (topic=%s, partition=%d, offset=%d): %v", msg.Topic, msg.Partition, msg.Offset, decodeErr)
			recordDecodeError(msg.Topic)
			// Commit malformed messages to avoid poison-pill loops.
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.logger.Printf("commit error after decode failure: %v", commitErr)
			}
			continue
		}

		if handleErr := p.handler.Handle(ctx, cmd); handleErr != nil {
			p.logger.Printf("handler error (name=%s, instance=%s): %v", cmd.Name, cmd.InstanceID, handleErr)
			recordHandlerError(cmd)
			continue
		}

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.logger.Printf("commit error: %v", commitErr)
		} else {
			recordProcessed(cmd)
		}
	}
}

func decodeMessage(msg kafka.Message) (Message, error) {
	name, ok := headerValue(msg, headerMessageName)
	if !ok || len(name) == 0 {
		return Message{}, errors.New("missing message_name header")
	}
	instanceID, ok := headerValue(msg, headerInstanceID)
	if !ok || len(instanceID) == 0 {
		return Message{}, errors.New("missing instance_id header")
	}

	var payload json.RawMessage
	if len(msg.Value) > 0 {
		if !json.Valid(msg.Value) {
			return Message{}, errors.New("payload is not valid JSON")
		}
		payload = json.RawMessage(append([]byte(nil), msg.Value...))
	}

	return Message{
		Topic:      msg.Topic,
		Partition:  msg.Partition,
		Offset:     msg.Offset,
		Timestamp:  msg.Time,
		Name:       messages.Normalize(string(name)),
		InstanceID: string(instanceID),
		Payload:    payload,
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
