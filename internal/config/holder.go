package config

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Holder owns the live Langflow record. It starts from defaults and is patched
// in place by an overlay; Ready closes once the first overlay step finishes,
// whether or not an overlay was found.
type Holder struct {
	mu        sync.RWMutex
	current   Langflow
	ready     chan struct{}
	readyOnce sync.Once
}

// NewHolder creates a holder seeded with defaults.
func NewHolder(defaults Langflow) *Holder {
	return &Holder{
		current: defaults,
		ready:   make(chan struct{}),
	}
}

// Current returns a copy of the record as of now.
func (h *Holder) Current() Langflow {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Apply merges the fields set in o. An overlay with an invalid timeout is
// rejected as a whole.
func (h *Holder) Apply(o Overlay) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := o.mergeInto(h.current)
	if err := next.Validate(); err != nil {
		return fmt.Errorf("apply overlay: %w", err)
	}
	h.current = next
	return nil
}

// MarkReady signals that the overlay step has completed. Safe to call more
// than once.
func (h *Holder) MarkReady() {
	h.readyOnce.Do(func() { close(h.ready) })
}

// Ready is closed after MarkReady.
func (h *Holder) Ready() <-chan struct{} {
	return h.ready
}

// IsReady reports whether the overlay step has completed.
func (h *Holder) IsReady() bool {
	select {
	case <-h.ready:
		return true
	default:
		return false
	}
}

// WaitReady blocks until the overlay step completes, grace elapses or ctx is
// done, and returns the record at that point.
func (h *Holder) WaitReady(ctx context.Context, grace time.Duration) Langflow {
	if grace <= 0 || h.IsReady() {
		return h.Current()
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-h.ready:
	case <-timer.C:
	case <-ctx.Done():
	}
	return h.Current()
}
