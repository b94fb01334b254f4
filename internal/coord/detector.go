// Package coord implements the global coordinated-attack detector: a
// short sliding window over recent transactions used to spot many
// distinct users paying near-identical amounts to the same merchant
// category in a short span.
package coord

import (
	"sync"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// WindowMs is the width of the detection window.
const WindowMs = 120_000

// MinDistinctUsers is the minimum cluster size that counts as coordinated.
const MinDistinctUsers = 5

// AmountVariance is the fractional tolerance band around the transaction
// amount used to cluster near-identical payments.
const AmountVariance = 0.05

// EventCap is the hard cap on retained events, oldest evicted first.
const EventCap = 5000

// Event is a minimal projection of a transaction retained for detection.
type Event struct {
	UserID           string
	MerchantCategory string
	Amount           int64
	Timestamp        int64
}

// Detector tracks a global, insertion-ordered window of recent events.
type Detector struct {
	mu     sync.Mutex
	events []Event
}

// NewDetector creates an empty coordinated-attack detector.
func NewDetector() *Detector {
	return &Detector{events: make([]Event, 0, 256)}
}

// Record prunes events older than WindowMs relative to tx.Timestamp,
// then appends tx, evicting the oldest event past EventCap.
func (d *Detector) Record(tx domain.Transaction) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pruneLocked(tx.Timestamp)

	d.events = append(d.events, Event{
		UserID:           tx.UserID,
		MerchantCategory: tx.Category(),
		Amount:           tx.Amount,
		Timestamp:        tx.Timestamp,
	})

	if len(d.events) > EventCap {
		d.events = d.events[len(d.events)-EventCap:]
	}
}

func (d *Detector) pruneLocked(now int64) {
	cutoff := now - WindowMs
	i := 0
	for ; i < len(d.events); i++ {
		if d.events[i].Timestamp > cutoff {
			break
		}
	}
	if i > 0 {
		d.events = d.events[i:]
	}
}

// Detect scans events within the window that share tx's merchant
// category and fall within ±AmountVariance of tx.Amount, and returns
// true iff the cluster spans at least MinDistinctUsers distinct users.
// The caller is expected to have already Record-ed tx, so it is counted
// in its own cluster.
func (d *Detector) Detect(tx domain.Transaction) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := tx.Timestamp - WindowMs
	lower := float64(tx.Amount) * (1 - AmountVariance)
	upper := float64(tx.Amount) * (1 + AmountVariance)
	category := tx.Category()

	distinct := make(map[string]struct{})
	for _, e := range d.events {
		if e.Timestamp <= cutoff {
			continue
		}
		if e.MerchantCategory != category {
			continue
		}
		amt := float64(e.Amount)
		if amt < lower || amt > upper {
			continue
		}
		distinct[e.UserID] = struct{}{}
	}

	return len(distinct) >= MinDistinctUsers
}
