package tenancy

import "sync"

// Locks hands out one mutex per bot id so write paths (booking, index
// builds) serialize per tenant without any cross-tenant contention.
// Mutexes are never released; the set of bots is small and long-lived.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocks returns an empty per-tenant lock registry.
func NewLocks() *Locks {
	return &Locks{locks: make(map[string]*sync.Mutex)}
}

// For returns the mutex owned by the given bot id, creating it on first use.
func (l *Locks) For(botID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	if m, ok := l.locks[botID]; ok {
		return m
	}
	m := &sync.Mutex{}
	l.locks[botID] = m
	return m
}
