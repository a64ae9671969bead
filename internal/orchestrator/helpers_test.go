package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"example.com/pelotonbridge/internal/domain"
	"example.com/pelotonbridge/internal/messages"
	"example.com/pelotonbridge/internal/peloton"
)

const profileBody = `{"username":"rider","workout_counts":[{"slug":"a","name":"Yoga","count":0},{"slug":"b","name":"Running","count":5},{"slug":"c","name":"Cycling","count":5}]}`

type fakeUpstream struct {
	mu sync.Mutex

	loginCalls      int
	meCalls         int
	workoutsCalls   int
	challengesCalls int
	lastLimit       int
	lastToken       string
	issued          int

	loginErr   error
	loginGate  chan struct{}
	meBody     json.RawMessage
	meErr      error
	meGate     chan struct{}
	workouts   json.RawMessage
	challenges json.RawMessage
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		meBody:     json.RawMessage(profileBody),
		workouts:   json.RawMessage(`{"data":[{"id":"w1"},{"id":"w2"}]}`),
		challenges: json.RawMessage(`{"challenges":[{"id":"c1"}]}`),
	}
}

func (f *fakeUpstream) Login(ctx context.Context, username, password string) (peloton.Session, error) {
	f.mu.Lock()
	f.loginCalls++
	gate := f.loginGate
	err := f.loginErr
	f.issued++
	n := f.issued
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return peloton.Session{}, err
	}
	return peloton.Session{UserID: "user-" + username, SessionID: fmt.Sprintf("session-%d", n)}, nil
}

func (f *fakeUpstream) Me(ctx context.Context, token string) (json.RawMessage, error) {
	f.mu.Lock()
	f.meCalls++
	f.lastToken = token
	gate := f.meGate
	body, err := f.meBody, f.meErr
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return body, err
}

func (f *fakeUpstream) RecentWorkouts(ctx context.Context, token, userID string, limit int) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workoutsCalls++
	f.lastLimit = limit
	return f.workouts, nil
}

func (f *fakeUpstream) CurrentChallenges(ctx context.Context, token, userID string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.challengesCalls++
	return f.challenges, nil
}

func (f *fakeUpstream) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls + f.meCalls + f.workoutsCalls + f.challengesCalls
}

func (f *fakeUpstream) set(fn func(f *fakeUpstream)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeUpstream) get(fn func(f *fakeUpstream) int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(f)
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []messages.Message
}

func (r *recordingPublisher) Publish(_ context.Context, msg messages.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingPublisher) named(name string) []messages.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]messages.Message, 0)
	for _, msg := range r.msgs {
		if msg.Name == messages.Normalize(name) {
			out = append(out, msg)
		}
	}
	return out
}

func (r *recordingPublisher) count(name string) int {
	return len(r.named(name))
}

type manualTicker struct {
	ch chan time.Time
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               {}

// manualTickers hands out tickers that only fire when the test says so.
type manualTickers struct {
	mu      sync.Mutex
	tickers []*manualTicker
	periods []time.Duration
}

func (m *manualTickers) factory(period time.Duration) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTicker{ch: make(chan time.Time)}
	m.tickers = append(m.tickers, t)
	m.periods = append(m.periods, period)
	return t
}

func (m *manualTickers) last() *manualTicker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tickers) == 0 {
		return nil
	}
	return m.tickers[len(m.tickers)-1]
}

func (m *manualTickers) created() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickers)
}

type harness struct {
	orch     *Orchestrator
	upstream *fakeUpstream
	pub      *recordingPublisher
	tickers  *manualTickers
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		upstream: newFakeUpstream(),
		pub:      &recordingPublisher{},
		tickers:  &manualTickers{},
	}
	base := []Option{
		WithTickerFactory(h.tickers.factory),
		WithLogger(log.New(io.Discard, "", 0)),
	}
	h.orch = New(h.upstream, h.pub, append(base, opts...)...)
	t.Cleanup(h.orch.Close)
	return h
}

func credentials(display domain.DisplayType) domain.InstanceConfig {
	return domain.InstanceConfig{
		Username:    "rider",
		Password:    "hunter2",
		DisplayType: display,
	}
}

func boolPtr(v bool) *bool { return &v }
