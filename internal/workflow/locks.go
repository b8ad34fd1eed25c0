package workflow

import "sync"

// lockTable serializes pipeline runs per analysis so a duplicate queue
// delivery cannot execute the same stage twice concurrently.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

func (t *lockTable) acquire(analysisID string) func() {
	t.mu.Lock()
	l, ok := t.locks[analysisID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[analysisID] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}
