// Package escalation tracks repeated step-up challenges per user and
// forces a hard block once a user has been stepped up too many times
// in too short a window.
package escalation

import "sync"

// WindowMs is the width of the step-up tracking window.
const WindowMs = 900_000

// MinStepUps is the minimum number of step-ups within WindowMs required
// before a force-block becomes possible.
const MinStepUps = 3

// RiskThreshold is the minimum current risk score required, alongside
// MinStepUps, before ShouldForceBlock returns true.
const RiskThreshold = 60

// Tracker records step-up timestamps per user.
type Tracker struct {
	mu     sync.Mutex
	byUser map[string][]int64
}

// NewTracker creates an empty escalation tracker.
func NewTracker() *Tracker {
	return &Tracker{byUser: make(map[string][]int64)}
}

// RecordStepUp appends a step-up event for the user at timestamp ts.
func (t *Tracker) RecordStepUp(userID string, ts int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stamps := t.pruneLocked(userID, ts)
	t.byUser[userID] = append(stamps, ts)
}

// Clear removes all tracked step-up history for a user, called when a
// transaction resolves to BLOCK so the counter does not keep firing.
func (t *Tracker) Clear(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byUser, userID)
}

// ShouldForceBlock reports whether the user has accumulated at least
// MinStepUps step-ups within WindowMs of ts AND the current score is at
// least RiskThreshold. It does not itself mutate tracker state.
func (t *Tracker) ShouldForceBlock(userID string, score int, ts int64) bool {
	if score < RiskThreshold {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := ts - WindowMs
	count := 0
	for _, s := range t.byUser[userID] {
		if s > cutoff {
			count++
		}
	}
	return count >= MinStepUps
}

// pruneLocked returns userID's step-up timestamps newer than
// ts-WindowMs. Caller must hold t.mu.
func (t *Tracker) pruneLocked(userID string, ts int64) []int64 {
	cutoff := ts - WindowMs
	existing := t.byUser[userID]
	fresh := make([]int64, 0, len(existing)+1)
	for _, s := range existing {
		if s > cutoff {
			fresh = append(fresh, s)
		}
	}
	return fresh
}
