package common

import (
	"errors"
	"sync/atomic"
)

// ErrModulePaused is returned by every state-mutating entry point while the
// module's pause flag is set, regardless of other preconditions.
var ErrModulePaused = errors.New("module paused")

// ErrReentrantCall is returned when a guarded operation is re-entered while
// still in flight, including through nested calls into collaborators.
var ErrReentrantCall = errors.New("reentrant call")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// ReentrancyGuard is a per-instance mutual-exclusion lock held for the entire
// duration of a state-mutating operation, covering calls out to token and
// oracle collaborators that might reinvoke the engine.
type ReentrancyGuard struct {
	entered atomic.Bool
}

// Enter acquires the guard. It fails rather than blocks: the execution model
// is serialized, so a held guard can only mean reentrancy.
func (g *ReentrancyGuard) Enter() error {
	if g == nil {
		return nil
	}
	if !g.entered.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

// Exit releases the guard.
func (g *ReentrancyGuard) Exit() {
	if g == nil {
		return
	}
	g.entered.Store(false)
}
