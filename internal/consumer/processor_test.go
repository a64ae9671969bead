package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/pelotonbridge/internal/router"
)

func TestProcessorCommitsOnSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	payload := []byte(`{"username":"rider","password":"pw"}`)
	msg := kafka.Message{
		Topic:     "peloton_commands",
		Partition: 0,
		Offset:    10,
		Time:      time.Now().UTC(),
		Value:     payload,
		Headers: []kafka.Header{
			{Key: "message_name", Value: []byte("SET_CONFIG")},
			{Key: "instance_id", Value: []byte("widget-1")},
		},
	}

	reader := &stubReader{
		messages: []kafka.Message{msg},
		after:    contextCanceled,
	}
	handler := &stubHandler{}

	processor := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0)))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, "MMM-Peloton_SET_CONFIG", handler.last.Name)
	require.Equal(t, "widget-1", handler.last.InstanceID)
	require.JSONEq(t, string(payload), string(handler.last.Payload))
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg := kafka.Message{
		Topic:  "peloton_commands",
		Offset: 20,
		Time:   time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "message_name", Value: []byte("MMM-Peloton_LOGIN")},
			{Key: "instance_id", Value: []byte("widget-2")},
		},
	}

	reader := &stubReader{
		messages: []kafka.Message{msg},
		after:    contextCanceled,
	}
	handler := &stubHandler{err: errors.New("boom")}

	processor := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0)))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Nil(t, handler.last.Payload)
	require.Equal(t, 0, reader.commitCalls)
}

func TestProcessorCommitsMalformedMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &stubReader{
		messages: []kafka.Message{
			{Topic: "peloton_commands", Headers: []kafka.Header{{Key: "instance_id", Value: []byte("w")}}},
			{Topic: "peloton_commands", Headers: []kafka.Header{{Key: "message_name", Value: []byte("LOGIN")}}},
			{
				Topic: "peloton_commands",
				Value: []byte("{not json"),
				Headers: []kafka.Header{
					{Key: "message_name", Value: []byte("SET_CONFIG")},
					{Key: "instance_id", Value: []byte("w")},
				},
			},
		},
		after: contextCanceled,
	}
	handler := &stubHandler{}

	processor := NewProcessor(reader, handler, WithLogger(log.New(io.Discard, "", 0)))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 0, handler.calls)
	require.Equal(t, 3, reader.commitCalls)
}

func TestRouterHandlerAcknowledgesDrops(t *testing.T) {
	dropping := &stubRouter{err: router.ErrUnknownInstance}
	h := NewRouterHandler(dropping)

	err := h.Handle(context.Background(), Message{Topic: "peloton_commands", Name: "MMM-Peloton_LOGIN", InstanceID: "ghost"})
	require.NoError(t, err)
	require.Equal(t, "ghost", dropping.last.InstanceID)
	require.Equal(t, "MMM-Peloton_LOGIN", dropping.last.Name)

	failing := &stubRouter{err: errors.New("unexpected")}
	err = NewRouterHandler(failing).Handle(context.Background(), Message{Name: "MMM-Peloton_LOGIN", InstanceID: "w"})
	require.Error(t, err)
}

func TestProcessorStopsOnWrappedCancellation(t *testing.T) {
	reader := &stubReader{
		after: func() error { return fmt.Errorf("fetch message: %w", context.Canceled) },
	}
	handler := &stubHandler{}

	processor := NewProcessor(reader, handler, WithLogger(log.New(io.Discard, "", 0)))

	err := processor.Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	require.NotEqual(t, context.Canceled, err)
	require.Equal(t, 0, handler.calls)
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
	after       func() error
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		if r.after != nil {
			return kafka.Message{}, r.after()
		}
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

func contextCanceled() error { return context.Canceled }

type stubHandler struct {
	calls int
	err   error
	last  Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	return h.err
}

type stubRouter struct {
	err  error
	last router.Command
}

func (r *stubRouter) Handle(_ context.Context, cmd router.Command) error {
	r.last = cmd
	return r.err
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
