package store

import (
	"container/list"
	"sync"
)

// lockTable is a bounded LRU of per-key mutexes used to serialise deduped
// writes. Held locks are never evicted: eviction probes with TryLock and, on a
// held entry, promotes it and stops to avoid starvation.
type lockTable struct {
	mu   sync.Mutex
	cap  int
	list *list.List               // front = most recent
	m    map[string]*list.Element // key -> element
}

type lockEntry struct {
	key string
	lk  *sync.Mutex
}

func newLockTable(capacity int) *lockTable {
	if capacity <= 0 {
		capacity = 1000
	}
	return &lockTable{cap: capacity, list: list.New(), m: make(map[string]*list.Element, capacity)}
}

// acquire returns the mutex for key in the locked state. The lock is taken
// outside the table mutex, so the entry can be evicted between lookup and
// Lock; membership is re-checked after locking and the acquisition retried,
// keeping concurrent writers for the same key serialised.
func (t *lockTable) acquire(key string) *sync.Mutex {
	for {
		lk := t.getOrCreate(key)
		lk.Lock()
		t.mu.Lock()
		el, ok := t.m[key]
		current := ok && el.Value.(lockEntry).lk == lk
		t.mu.Unlock()
		if current {
			return lk
		}
		lk.Unlock()
	}
}

// getOrCreate returns the mutex for key, creating it if absent, and evicts
// idle entries past capacity.
func (t *lockTable) getOrCreate(key string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.m[key]; ok {
		t.list.MoveToFront(el)
		return el.Value.(lockEntry).lk
	}

	lk := &sync.Mutex{}
	t.m[key] = t.list.PushFront(lockEntry{key: key, lk: lk})

	for t.list.Len() > t.cap {
		oldest := t.list.Back()
		if oldest == nil {
			break
		}
		ent := oldest.Value.(lockEntry)
		if ent.lk.TryLock() {
			ent.lk.Unlock()
			t.list.Remove(oldest)
			delete(t.m, ent.key)
		} else {
			// held: keep it and stop evicting
			t.list.MoveToFront(oldest)
			break
		}
	}

	return lk
}

func (t *lockTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.list.Len()
}
