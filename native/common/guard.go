package common

import (
	"errors"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a module's user-facing mutations are halted.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard returns ErrModulePaused when the view reports the module as paused.
// A nil view or empty module name never blocks.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Switchboard is a concurrency-safe mutable PauseView backing the admin
// pause/unpause surface.
type Switchboard struct {
	mu     sync.RWMutex
	paused map[string]bool
}

// NewSwitchboard returns a switchboard with every module running.
func NewSwitchboard() *Switchboard {
	return &Switchboard{paused: make(map[string]bool)}
}

// SetPaused flips the pause flag for a module.
func (s *Switchboard) SetPaused(module string, paused bool) {
	if s == nil || module == "" {
		return
	}
	s.mu.Lock()
	s.paused[module] = paused
	s.mu.Unlock()
}

// IsPaused implements PauseView.
func (s *Switchboard) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused[module]
}
