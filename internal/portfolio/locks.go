package portfolio

import "sync"

// accountLocks hands out one RWMutex per account. Mutations take the
// write lock; snapshot reads take the read lock. Locks are never
// reclaimed; the per-account footprint is one mutex.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*sync.RWMutex)}
}

func (l *accountLocks) get(username string) *sync.RWMutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[username]
	if !ok {
		lock = &sync.RWMutex{}
		l.locks[username] = lock
	}
	return lock
}
