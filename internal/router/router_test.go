package router

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"example.com/pelotonbridge/internal/domain"
	"example.com/pelotonbridge/internal/orchestrator"
)

type call struct {
	op string
	id string
}

type fakeOrchestrator struct {
	mu      sync.Mutex
	configs map[string]domain.InstanceConfig
	calls   []call
	ctxErr  []error
	gate    chan struct{}
}

func newFakeOrchestrator() *fakeOrchestrator {
	return &fakeOrchestrator{configs: make(map[string]domain.InstanceConfig)}
}

func (f *fakeOrchestrator) Configure(id string, cfg domain.InstanceConfig) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, exists := f.configs[id]
	f.configs[id] = cfg
	f.calls = append(f.calls, call{op: "configure", id: id})
	return !exists
}

func (f *fakeOrchestrator) Has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.configs[id]
	return ok
}

func (f *fakeOrchestrator) record(ctx context.Context, op, id string) (orchestrator.Outcome, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: op, id: id})
	f.ctxErr = append(f.ctxErr, ctx.Err())
	return orchestrator.Outcome{InstanceID: id}, nil
}

func (f *fakeOrchestrator) Login(ctx context.Context, id string) (orchestrator.Outcome, error) {
	return f.record(ctx, "login", id)
}

func (f *fakeOrchestrator) FetchProfile(ctx context.Context, id string) (orchestrator.Outcome, error) {
	return f.record(ctx, "profile", id)
}

func (f *fakeOrchestrator) FetchRecentWorkouts(ctx context.Context, id string) (orchestrator.Outcome, error) {
	return f.record(ctx, "recent_workouts", id)
}

func (f *fakeOrchestrator) FetchChallenges(ctx context.Context, id string) (orchestrator.Outcome, error) {
	return f.record(ctx, "challenges", id)
}

func (f *fakeOrchestrator) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func quietRouter(orch Orchestrator) *Router {
	return New(orch, WithLogger(log.New(io.Discard, "", 0)))
}

func TestRouteDispatchesByName(t *testing.T) {
	orch := newFakeOrchestrator()
	r := quietRouter(orch)
	ctx := context.Background()

	cfg, err := json.Marshal(map[string]any{"username": "rider", "password": "pw", "displayType": "challenges"})
	require.NoError(t, err)

	require.NoError(t, r.Route(ctx, Command{Name: "MMM-Peloton_SET_CONFIG", InstanceID: "w1", Payload: cfg}))
	require.NoError(t, r.Route(ctx, Command{Name: "MMM-Peloton_LOGIN", InstanceID: "w1"}))
	require.NoError(t, r.Route(ctx, Command{Name: "REQUEST_USER", InstanceID: "w1"}))
	require.NoError(t, r.Route(ctx, Command{Name: "MMM-Peloton_REQUEST_RECENT_WORKOUTS", InstanceID: "w1"}))
	require.NoError(t, r.Route(ctx, Command{Name: "MMM-Peloton_REQUEST_CHALLENGES", InstanceID: "w1"}))

	require.Equal(t, []call{
		{op: "configure", id: "w1"},
		{op: "login", id: "w1"},
		{op: "profile", id: "w1"},
		{op: "recent_workouts", id: "w1"},
		{op: "challenges", id: "w1"},
	}, orch.snapshot())
	require.Equal(t, domain.DisplayChallenges, orch.configs["w1"].DisplayType)
	require.Equal(t, "rider", orch.configs["w1"].Username)
}

func TestRouteDropsUnknownInstance(t *testing.T) {
	orch := newFakeOrchestrator()
	r := quietRouter(orch)
	before := testutil.ToFloat64(droppedCounter.WithLabelValues("unknown_instance"))

	err := r.Route(context.Background(), Command{Name: "MMM-Peloton_LOGIN", InstanceID: "ghost"})
	require.ErrorIs(t, err, ErrUnknownInstance)
	require.ErrorIs(t, err, ErrDropped)
	require.ErrorIs(t, err, orchestrator.ErrUnknownInstance)
	require.Empty(t, orch.snapshot())

	after := testutil.ToFloat64(droppedCounter.WithLabelValues("unknown_instance"))
	require.Equal(t, before+1, after)
}

func TestRouteSetConfigCreatesInstance(t *testing.T) {
	orch := newFakeOrchestrator()
	r := quietRouter(orch)

	require.NoError(t, r.Route(context.Background(), Command{Name: "SET_CONFIG", InstanceID: "fresh"}))
	require.True(t, orch.Has("fresh"))
}

func TestRouteRejectsBadInput(t *testing.T) {
	orch := newFakeOrchestrator()
	r := quietRouter(orch)
	ctx := context.Background()

	err := r.Route(ctx, Command{Name: "SET_CONFIG", InstanceID: "w1", Payload: json.RawMessage(`[1,2]`)})
	require.ErrorIs(t, err, ErrInvalidPayload)
	require.False(t, orch.Has("w1"))

	err = r.Route(ctx, Command{Name: "LOGIN"})
	require.ErrorIs(t, err, ErrMissingInstance)

	orch.Configure("w1", domain.InstanceConfig{})
	err = r.Route(ctx, Command{Name: "MMM-Peloton_DANCE", InstanceID: "w1"})
	require.ErrorIs(t, err, ErrUnknownMessage)
}

func TestHandleReturnsBeforeOperationCompletes(t *testing.T) {
	orch := newFakeOrchestrator()
	orch.gate = make(chan struct{})
	r := quietRouter(orch)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Handle(ctx, Command{Name: "SET_CONFIG", InstanceID: "w1"}))
	require.NoError(t, r.Handle(ctx, Command{Name: "LOGIN", InstanceID: "w1"}))
	cancel()

	require.Equal(t, []call{{op: "configure", id: "w1"}}, orch.snapshot())

	close(orch.gate)
	r.Wait()

	require.Equal(t, []call{{op: "configure", id: "w1"}, {op: "login", id: "w1"}}, orch.snapshot())
	require.NoError(t, orch.ctxErr[0])
}

func TestHandleReportsDropsSynchronously(t *testing.T) {
	r := quietRouter(newFakeOrchestrator())

	err := r.Handle(context.Background(), Command{Name: "REQUEST_USER", InstanceID: "ghost"})
	require.ErrorIs(t, err, ErrUnknownInstance)
	r.Wait()
}
