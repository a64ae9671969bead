package orchestrator

import (
	"context"
	"time"

	"example.com/pelotonbridge/internal/domain"
)

// Ticker is the part of time.Ticker a refresh loop needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a Ticker firing every period.
type TickerFactory func(period time.Duration) Ticker

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker is the default TickerFactory.
func NewTimeTicker(period time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(period)}
}

// arm starts the refresh loop for inst unless one is already running or the credentials
// moved past gen. The loop runs the initial fetch set immediately and then once per period.
func (o *Orchestrator) arm(inst *instance, gen uint64) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return
	}

	inst.mu.Lock()
	if inst.refresh != nil || inst.generation != gen {
		inst.mu.Unlock()
		return
	}
	cfg := inst.config
	period := time.Duration(cfg.RefreshEverySeconds) * time.Second
	ctx, cancel := context.WithCancel(o.baseCtx)
	handle := &refreshHandle{period: period, cancel: cancel, done: make(chan struct{})}
	inst.refresh = handle
	inst.mu.Unlock()

	o.debugf(cfg, inst.id, "refreshing every %s", period)
	o.loops.Add(1)
	go o.refreshLoop(ctx, inst, handle)
}

func (o *Orchestrator) refreshLoop(ctx context.Context, inst *instance, handle *refreshHandle) {
	defer o.loops.Done()
	defer close(handle.done)

	ticker := o.newTicker(handle.period)
	defer ticker.Stop()

	o.tick(ctx, inst)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			o.tick(ctx, inst)
		}
	}
}

// tick fires the fetch set for the instance's display type without waiting for it.
// A slow tick never delays the next one, so fetches for one instance may overlap.
func (o *Orchestrator) tick(ctx context.Context, inst *instance) {
	cfg := inst.currentConfig()
	recordTick()
	o.debugf(cfg, inst.id, "refresh tick")

	o.spawn(ctx, inst.id, o.FetchProfile)
	switch cfg.DisplayType {
	case domain.DisplayRecentWorkouts:
		o.spawn(ctx, inst.id, o.FetchRecentWorkouts)
	case domain.DisplayChallenges:
		o.spawn(ctx, inst.id, o.FetchChallenges)
	}
}

func (o *Orchestrator) spawn(ctx context.Context, id string, fetch func(context.Context, string) (Outcome, error)) {
	o.tasks.Add(1)
	go func() {
		defer o.tasks.Done()
		if _, err := fetch(ctx, id); err != nil {
			o.logger.Printf("refresh for instance %s: %v", id, err)
		}
	}()
}
