package classifier

import (
	"sync"
	"time"

	"github.com/dujyo/gasengine/internal/app/domain/fee"
)

// ActivityTracker counts transactions per (payer, kind) inside a sliding
// window. Counts are approximate and eventually consistent by contract: the
// tracker only guarantees monotonic accumulation within the window, not
// strict ordering against concurrent collections.
type ActivityTracker struct {
	mu      sync.Mutex
	window  time.Duration
	bucket  time.Duration
	now     func() time.Time
	buckets map[string]map[int64]int64
}

// NewActivityTracker creates a tracker with the given window. Non-positive
// windows default to one hour.
func NewActivityTracker(window time.Duration) *ActivityTracker {
	if window <= 0 {
		window = time.Hour
	}
	return &ActivityTracker{
		window:  window,
		bucket:  time.Minute,
		now:     time.Now,
		buckets: make(map[string]map[int64]int64),
	}
}

func trackerKey(payer string, kind fee.TransactionKind) string {
	return payer + "|" + string(kind)
}

// Record notes one transaction for (payer, kind).
func (t *ActivityTracker) Record(payer string, kind fee.TransactionKind) {
	now := t.now()
	slot := now.UnixNano() / int64(t.bucket)

	t.mu.Lock()
	defer t.mu.Unlock()

	key := trackerKey(payer, kind)
	counts, ok := t.buckets[key]
	if !ok {
		counts = make(map[int64]int64)
		t.buckets[key] = counts
	}
	counts[slot]++
	t.pruneLocked(key, now)
}

// Count returns the number of recorded transactions for (payer, kind)
// within the window.
func (t *ActivityTracker) Count(payer string, kind fee.TransactionKind) int64 {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	key := trackerKey(payer, kind)
	t.pruneLocked(key, now)

	var total int64
	for _, n := range t.buckets[key] {
		total += n
	}
	return total
}

func (t *ActivityTracker) pruneLocked(key string, now time.Time) {
	oldest := now.Add(-t.window).UnixNano() / int64(t.bucket)
	counts := t.buckets[key]
	for slot := range counts {
		if slot < oldest {
			delete(counts, slot)
		}
	}
	if len(counts) == 0 {
		delete(t.buckets, key)
	}
}
