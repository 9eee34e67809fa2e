// Package quota tracks per-provider request usage against a sliding time
// window, enforced through the coordination store so every supervisor
// instance and hook process observes the same counters.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/hekateai/hekate/internal/domain"
	"github.com/hekateai/hekate/internal/store"
)

// Tracker enforces one provider's quota window.
type Tracker struct {
	store         *store.Store
	provider      domain.Provider
	limit         int
	windowHours   int
	bufferPercent int

	bufferLimit    int
	emergencyLimit int
}

// New builds a Tracker. bufferLimit is the count at which the tracker starts
// reserving capacity for emergency use; emergencyLimit is the remaining slice
// above bufferLimit reserved for that purpose.
func New(s *store.Store, provider domain.Provider, limit, windowHours, bufferPercent int) *Tracker {
	bufferLimit := int(float64(limit) * (1 - float64(bufferPercent)/100))
	return &Tracker{
		store:          s,
		provider:       provider,
		limit:          limit,
		windowHours:    windowHours,
		bufferPercent:  bufferPercent,
		bufferLimit:    bufferLimit,
		emergencyLimit: limit - bufferLimit,
	}
}

func (t *Tracker) windowKey() string { return fmt.Sprintf("quota:%s:window_start", t.provider) }
func (t *Tracker) countKey() string  { return fmt.Sprintf("quota:%s:count", t.provider) }

// ensureWindow resets the window and counter once windowHours has elapsed
// since the window started. A missing window is treated as a fresh start.
func (t *Tracker) ensureWindow(ctx context.Context) error {
	now := time.Now()

	raw, err := t.store.Get(ctx, t.windowKey())
	if store.IsMiss(err) {
		return t.resetWindow(ctx, now)
	}
	if err != nil {
		return fmt.Errorf("quota: ensure window: %w", err)
	}

	start, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		// Corrupt window marker; treat it as expired rather than fail the caller.
		return t.resetWindow(ctx, now)
	}

	if now.Sub(start) > time.Duration(t.windowHours)*time.Hour {
		return t.resetWindow(ctx, now)
	}
	return nil
}

func (t *Tracker) resetWindow(ctx context.Context, now time.Time) error {
	if err := t.store.Set(ctx, t.windowKey(), now.Format(time.RFC3339Nano), 0); err != nil {
		return fmt.Errorf("quota: reset window: %w", err)
	}
	if err := t.store.Set(ctx, t.countKey(), "0", 0); err != nil {
		return fmt.Errorf("quota: reset count: %w", err)
	}
	return nil
}

// Increment records one use within the current window and returns the new count.
func (t *Tracker) Increment(ctx context.Context) (int64, error) {
	if err := t.ensureWindow(ctx); err != nil {
		return 0, err
	}
	n, err := t.store.IncrBy(ctx, t.countKey(), 1)
	if err != nil {
		return 0, fmt.Errorf("quota: increment: %w", err)
	}
	return n, nil
}

// Usage is a snapshot of the current window's consumption.
type Usage struct {
	Count          int64
	Limit          int
	Percentage     float64
	Remaining      int64
	BufferLimit    int
	EmergencyLimit int
	BelowBuffer    bool
	IsEmergency    bool
}

// GetUsage returns the current window's usage snapshot.
func (t *Tracker) GetUsage(ctx context.Context) (Usage, error) {
	if err := t.ensureWindow(ctx); err != nil {
		return Usage{}, err
	}

	raw, err := t.store.Get(ctx, t.countKey())
	var count int64
	if err != nil && !store.IsMiss(err) {
		return Usage{}, fmt.Errorf("quota: get usage: %w", err)
	}
	if err == nil {
		fmt.Sscanf(raw, "%d", &count)
	}

	return Usage{
		Count:          count,
		Limit:          t.limit,
		Percentage:     float64(count) / float64(t.limit) * 100,
		Remaining:      int64(t.limit) - count,
		BufferLimit:    t.bufferLimit,
		EmergencyLimit: t.emergencyLimit,
		BelowBuffer:    count <= int64(t.bufferLimit),
		IsEmergency:    count >= int64(t.bufferLimit),
	}, nil
}

// CanUse reports whether another request may be issued. By default usage is
// checked against the buffer limit, leaving the emergency slice untouched;
// when emergency is true, the caller is allowed to draw into that slice, so
// usage is checked against the hard limit instead.
func (t *Tracker) CanUse(ctx context.Context, emergency bool) (bool, error) {
	usage, err := t.GetUsage(ctx)
	if err != nil {
		return false, err
	}
	if emergency {
		return usage.Count < int64(t.limit), nil
	}
	return usage.Count < int64(t.bufferLimit), nil
}
