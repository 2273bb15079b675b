package engine

import "sync"

// lockTable hands out one mutex per instance ID so all transitions of an
// instance serialize within the process. Entries are reference counted and
// removed when the last holder releases, keeping the table bounded by the
// number of instances currently being mutated.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*instanceLock
}

type instanceLock struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*instanceLock)}
}

// acquire blocks until the instance lock is held and returns the release
// function.
func (t *lockTable) acquire(instanceID string) func() {
	t.mu.Lock()

	lock, ok := t.locks[instanceID]
	if !ok {
		lock = &instanceLock{}
		t.locks[instanceID] = lock
	}

	lock.refs++
	t.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		t.mu.Lock()

		lock.refs--
		if lock.refs == 0 {
			delete(t.locks, instanceID)
		}

		t.mu.Unlock()
	}
}
