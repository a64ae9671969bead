package orchestrator

import (
	"context"
	"sync"
	"time"

	"example.com/pelotonbridge/internal/domain"
)

// instance is the state owned for one widget instance.
// mu guards every field below it; loginMu serialises authentication attempts.
type instance struct {
	id      string
	loginMu sync.Mutex

	mu           sync.Mutex
	config       domain.InstanceConfig
	sessionToken string
	userID       string
	user         *domain.Profile
	recent       *domain.RecentWorkouts
	challenges   *domain.Challenges
	signInFailed bool
	refresh      *refreshHandle
	// generation moves whenever the credentials change. Results obtained under an
	// older generation are discarded.
	generation uint64
}

// refreshHandle controls one running refresh loop.
type refreshHandle struct {
	period time.Duration
	cancel context.CancelFunc
	done   chan struct{}
}

func (h *refreshHandle) stop() {
	if h != nil {
		h.cancel()
	}
}

type sessionView struct {
	config     domain.InstanceConfig
	token      string
	userID     string
	generation uint64
}

func newInstance(id string, cfg domain.InstanceConfig) *instance {
	return &instance{id: id, config: cfg}
}

func (i *instance) session() sessionView {
	i.mu.Lock()
	defer i.mu.Unlock()
	return sessionView{config: i.config, token: i.sessionToken, userID: i.userID, generation: i.generation}
}

func (i *instance) currentConfig() domain.InstanceConfig {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.config
}

// adoptSession stores a session obtained under gen. It reports false, leaving the
// instance untouched, when the credentials changed in the meantime.
func (i *instance) adoptSession(gen uint64, token, userID string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.generation != gen {
		return false
	}
	i.sessionToken = token
	i.userID = userID
	i.signInFailed = false
	return true
}

// failSession records a failed sign-in under gen and detaches the refresh loop, which the
// caller must stop. It reports false when the credentials changed in the meantime.
func (i *instance) failSession(gen uint64) (*refreshHandle, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.generation != gen {
		return nil, false
	}
	i.sessionToken = ""
	i.userID = ""
	i.signInFailed = true
	stopped := i.refresh
	i.refresh = nil
	return stopped, true
}

// cache runs store under the lock unless the credentials changed since gen.
func (i *instance) cache(gen uint64, store func()) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.generation != gen {
		return false
	}
	store()
	return true
}

func (i *instance) clearSession(failed bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sessionToken = ""
	i.userID = ""
	i.signInFailed = failed
}
