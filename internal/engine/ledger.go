package engine

// ledger is the bounded, insertion-ordered set of event ids already
// accepted as "new", used purely for idempotent dedup of redelivered
// messages. Eviction is strictly FIFO once capacity is exceeded.
type ledger struct {
	capacity int
	order    []string
	seen     map[string]bool
}

func newLedger(capacity int) *ledger {
	return &ledger{
		capacity: capacity,
		seen:     make(map[string]bool, capacity),
	}
}

func (l *ledger) Contains(id string) bool {
	return l.seen[id]
}

func (l *ledger) Add(id string) {
	if l.seen[id] {
		return
	}
	l.seen[id] = true
	l.order = append(l.order, id)
	for len(l.order) > l.capacity {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.seen, oldest)
	}
}

func (l *ledger) Len() int {
	return len(l.order)
}
