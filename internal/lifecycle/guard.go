// Package lifecycle coordinates when background work may touch storage.
// The periodic sync timer fires on its own schedule; the guard is how it
// learns, at each tick, whether the app is in a state where syncing is
// safe: foreground, mounted, and no session mid-entry or mid-finish.
package lifecycle

import (
	"sync"

	"github.com/herdsync/engine/internal/models"
)

// Reader is the view consumers poll. Callbacks registered once (the timer)
// must read current state through this interface each tick instead of
// capturing a copy at registration time.
type Reader interface {
	Mounted() bool
	Foreground() bool
	FamilyBusy(family models.Family) bool
	AnyFamilyBusy() bool
}

// Guard tracks app and per-family state. All methods are safe for
// concurrent use; writers are the daemon's app-state endpoint and the
// session trackers, readers are the sync scheduler and orchestrator.
type Guard struct {
	mu         sync.RWMutex
	mounted    bool
	foreground bool
	busy       map[models.Family]bool
}

// NewGuard returns a guard in the unmounted, background state. The host
// marks it mounted once wiring is complete and foreground when the OS
// reports the app active.
func NewGuard() *Guard {
	return &Guard{busy: make(map[models.Family]bool)}
}

func (g *Guard) SetMounted(mounted bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mounted = mounted
}

func (g *Guard) SetForeground(foreground bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.foreground = foreground
}

// SetFamilyBusy marks a family's session Active or Finishing. While set,
// the periodic path must not batch that family's rows: the finish path may
// be working through the same unposted set.
func (g *Guard) SetFamilyBusy(family models.Family, busy bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.busy[family] = busy
}

func (g *Guard) Mounted() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mounted
}

func (g *Guard) Foreground() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.foreground
}

func (g *Guard) FamilyBusy(family models.Family) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.busy[family]
}

func (g *Guard) AnyFamilyBusy() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, busy := range g.busy {
		if busy {
			return true
		}
	}
	return false
}
