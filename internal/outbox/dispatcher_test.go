package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/pelotonbridge/internal/messages"
)

type stubWriter struct {
	mu      sync.Mutex
	topics  []string
	batches [][]kafka.Message
	err     error
}

func (w *stubWriter) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.topics = append(w.topics, topic)
	w.batches = append(w.batches, append([]kafka.Message(nil), msgs...))
	return nil
}

func (w *stubWriter) records() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]kafka.Message, 0)
	for _, batch := range w.batches {
		out = append(out, batch...)
	}
	return out
}

func (w *stubWriter) batchCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.batches)
}

func newMessage(t *testing.T, name, instanceID string) messages.Message {
	t.Helper()
	msg, err := messages.New(name, instanceID, messages.InstancePayload{InstanceID: instanceID})
	require.NoError(t, err)
	return msg
}

func quiet() Option {
	return WithLogger(log.New(io.Discard, "", 0))
}

func TestDispatcherFlushesFullBatch(t *testing.T) {
	writer := &stubWriter{}
	d := NewDispatcher(writer, Config{Topic: "peloton_notifications", FlushInterval: time.Hour, BatchSize: 2}, quiet())
	batchesBefore := batchSamples(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Start(ctx)

	require.NoError(t, d.Publish(ctx, newMessage(t, messages.UserIsLoggedIn, "w1")))
	require.NoError(t, d.Publish(ctx, newMessage(t, messages.RetrievedUserData, "w1")))

	require.Eventually(t, func() bool { return writer.batchCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	records := writer.records()
	require.Len(t, records, 2)
	require.Equal(t, []string{"peloton_notifications"}, writer.topics)
	require.Equal(t, "w1", string(records[0].Key))
	require.Equal(t, "MMM-Peloton_USER_IS_LOGGED_IN", headerValue(records[0], "message_name"))
	require.Equal(t, "w1", headerValue(records[0], "instance_id"))
	require.NotEmpty(t, headerValue(records[0], "message_id"))

	var decoded messages.Message
	require.NoError(t, json.Unmarshal(records[1].Value, &decoded))
	require.Equal(t, "MMM-Peloton_RETRIEVED_USER_DATA", decoded.Name)
	require.JSONEq(t, `{"instanceId":"w1"}`, string(decoded.Payload))

	cancel()
	d.Wait()
	require.Greater(t, batchSamples(t), batchesBefore)
}

func batchSamples(t *testing.T) uint64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, batchDuration.Write(metric))
	return metric.GetHistogram().GetSampleCount()
}

func TestDispatcherFlushesOnInterval(t *testing.T) {
	writer := &stubWriter{}
	d := NewDispatcher(writer, Config{Topic: "notifications", FlushInterval: 10 * time.Millisecond, BatchSize: 100}, quiet())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Start(ctx)

	require.NoError(t, d.Publish(ctx, newMessage(t, messages.FailedToLogIn, "w2")))
	require.Eventually(t, func() bool { return len(writer.records()) == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	d.Wait()
}

func TestDispatcherFlushesPendingOnShutdown(t *testing.T) {
	writer := &stubWriter{}
	d := NewDispatcher(writer, Config{Topic: "notifications", FlushInterval: time.Hour, BatchSize: 100}, quiet())

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Publish(ctx, newMessage(t, messages.RetrievedChallengeData, "w3")))
	}

	cancel()
	d.Start(ctx)
	d.Wait()

	require.Len(t, writer.records(), 3)
}

func TestDispatcherDropsWhenBufferFull(t *testing.T) {
	d := NewDispatcher(&stubWriter{}, Config{Topic: "notifications", Buffer: 1}, quiet())
	before := testutil.ToFloat64(droppedCounter)

	require.NoError(t, d.Publish(context.Background(), newMessage(t, messages.UserIsLoggedIn, "w4")))
	err := d.Publish(context.Background(), newMessage(t, messages.UserIsLoggedIn, "w4"))
	require.ErrorIs(t, err, ErrBufferFull)

	require.Equal(t, before+1, testutil.ToFloat64(droppedCounter))
}

func TestDispatcherCountsDeliveryFailures(t *testing.T) {
	writer := &stubWriter{err: errors.New("broker unavailable")}
	d := NewDispatcher(writer, Config{Topic: "notifications", FlushInterval: time.Hour, BatchSize: 2}, quiet())
	beforeFailed := testutil.ToFloat64(failedCounter)
	beforeDelivered := testutil.ToFloat64(deliveredCounter)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Publish(ctx, newMessage(t, messages.UserIsLoggedIn, "w5")))
	require.NoError(t, d.Publish(ctx, newMessage(t, messages.UserIsLoggedIn, "w5")))
	cancel()
	d.Start(ctx)

	require.Equal(t, beforeFailed+2, testutil.ToFloat64(failedCounter))
	require.Equal(t, beforeDelivered, testutil.ToFloat64(deliveredCounter))
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
