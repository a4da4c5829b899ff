package core

import (
	"sync/atomic"
	"time"
)

// Control exposes the cooperative pause/cancel flags the UI (or signal
// handler) toggles. Both are polled between items, never mid-transfer.
type Control interface {
	ShouldPause() bool
	ShouldCancel() bool
}

// ProgressFunc is invoked with (processedCount, succeeded) after every
// completed item. It is called at item cadence, never per byte.
type ProgressFunc func(processed int, succeeded bool)

// NopControl never pauses and never cancels.
type NopControl struct{}

func (NopControl) ShouldPause() bool  { return false }
func (NopControl) ShouldCancel() bool { return false }

// FlagControl is a Control backed by atomic flags, safe to toggle from
// any goroutine.
type FlagControl struct {
	pause  atomic.Bool
	cancel atomic.Bool
}

func NewFlagControl() *FlagControl { return &FlagControl{} }

func (f *FlagControl) SetPaused(v bool) { f.pause.Store(v) }
func (f *FlagControl) Cancel()          { f.cancel.Store(true) }

func (f *FlagControl) ShouldPause() bool  { return f.pause.Load() }
func (f *FlagControl) ShouldCancel() bool { return f.cancel.Load() }

// waitWhilePaused blocks until the control is unpaused or cancelled.
// Returns false if cancellation was requested while waiting.
func waitWhilePaused(ctl Control) bool {
	for ctl.ShouldPause() {
		if ctl.ShouldCancel() {
			return false
		}
		time.Sleep(200 * time.Millisecond)
	}
	return !ctl.ShouldCancel()
}
