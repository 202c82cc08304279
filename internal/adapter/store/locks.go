package store

import "sync"

// tableLocks hands out one RW mutex per table id. Entries are reference
// counted and dropped when no goroutine holds or waits on them.
type tableLocks struct {
	mu    sync.Mutex
	locks map[string]*tableLock
}

type tableLock struct {
	sync.RWMutex
	refs int
}

func (l *tableLocks) acquire(tableID string) *tableLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[string]*tableLock)
	}
	tl, ok := l.locks[tableID]
	if !ok {
		tl = &tableLock{}
		l.locks[tableID] = tl
	}
	tl.refs++
	return tl
}

func (l *tableLocks) release(tableID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tl := l.locks[tableID]
	tl.refs--
	if tl.refs == 0 {
		delete(l.locks, tableID)
	}
}

// Lock takes the table's write lock and returns its release func.
func (l *tableLocks) Lock(tableID string) func() {
	tl := l.acquire(tableID)
	tl.Lock()
	return func() {
		tl.Unlock()
		l.release(tableID)
	}
}

// RLock takes the table's read lock and returns its release func.
func (l *tableLocks) RLock(tableID string) func() {
	tl := l.acquire(tableID)
	tl.RLock()
	return func() {
		tl.RUnlock()
		l.release(tableID)
	}
}

// size reports how many tables currently have a lock entry.
func (l *tableLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
