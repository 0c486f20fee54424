package service

import "sync"

// LeadLocker linearizes all mutations touching one lead. Operations on
// distinct leads proceed in parallel; two writers on the same lead are
// strictly ordered. There is deliberately no global lock across leads.
type LeadLocker struct {
	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func NewLeadLocker() *LeadLocker {
	return &LeadLocker{locks: make(map[int]*sync.Mutex)}
}

// Lock acquires the lead's mutex and returns the unlock function. Entries are
// kept for the process lifetime; the map is bounded by the number of leads.
func (l *LeadLocker) Lock(leadID int) (unlock func()) {
	l.mu.Lock()
	m, ok := l.locks[leadID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[leadID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
