package dedup

import "sync"

// Ledger is a capacity-bounded, insertion-ordered set of previously emitted
// key values. Membership tests are O(1); when the set exceeds its capacity
// the oldest entries are evicted first. Eviction is FIFO by insertion, not
// LRU: a stale-but-still-referenced key may be evicted, which trades some
// recall for bounded memory and is not a correctness bug.
type Ledger struct {
	mu       sync.Mutex
	capacity int
	order    []string
	index    map[string]bool
}

// NewLedger creates a ledger holding at most capacity entries.
func NewLedger(capacity int) *Ledger {
	if capacity < 1 {
		capacity = 1
	}
	return &Ledger{
		capacity: capacity,
		index:    make(map[string]bool),
	}
}

// Seen reports whether any of the keys is already present. One shared key
// is enough: overlapping key sets denote the same promotion.
func (l *Ledger) Seen(keys []Key) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, k := range keys {
		if l.index[k.Value] {
			return true
		}
	}
	return false
}

// SeenValue reports whether a single value is present.
func (l *Ledger) SeenValue(value string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index[value]
}

// Record inserts all keys not yet present (idempotent union-insert) and
// reports whether the ledger changed. Recording the full key set keeps
// future partial matches working.
func (l *Ledger) Record(keys []Key) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	changed := false
	for _, k := range keys {
		if l.insert(k.Value) {
			changed = true
		}
	}
	return changed
}

// RecordValue inserts a single value and reports whether it was new.
func (l *Ledger) RecordValue(value string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.insert(value)
}

// insert adds one value and evicts from the head when over capacity.
// Caller must hold the lock.
func (l *Ledger) insert(value string) bool {
	if value == "" || l.index[value] {
		return false
	}
	l.index[value] = true
	l.order = append(l.order, value)

	for len(l.order) > l.capacity {
		evicted := l.order[0]
		l.order = l.order[1:]
		delete(l.index, evicted)
	}
	return true
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}

// Snapshot returns at most limit entries, the most recently inserted ones,
// oldest first. A non-positive limit means the ledger's capacity.
func (l *Ledger) Snapshot(limit int) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 || limit > l.capacity {
		limit = l.capacity
	}
	start := 0
	if len(l.order) > limit {
		start = len(l.order) - limit
	}
	out := make([]string, len(l.order)-start)
	copy(out, l.order[start:])
	return out
}

// Restore replaces the ledger contents with the given values, preserving
// their order and applying the capacity bound.
func (l *Ledger) Restore(values []string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.order = l.order[:0]
	l.index = make(map[string]bool, len(values))
	for _, v := range values {
		l.insert(v)
	}
}
