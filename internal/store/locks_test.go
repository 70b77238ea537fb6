package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockTableReturnsSameMutexForKey(t *testing.T) {
	lt := newLockTable(10)
	a := lt.getOrCreate("k")
	b := lt.getOrCreate("k")
	assert.Same(t, a, b)
}

func TestLockTableEvictsIdleEntries(t *testing.T) {
	lt := newLockTable(3)
	for i := 0; i < 10; i++ {
		lt.getOrCreate(fmt.Sprintf("key-%d", i))
	}
	assert.Equal(t, 3, lt.len())
}

func TestLockTableNeverEvictsHeldLocks(t *testing.T) {
	lt := newLockTable(2)

	held := lt.getOrCreate("held")
	held.Lock()
	defer held.Unlock()

	for i := 0; i < 5; i++ {
		lt.getOrCreate(fmt.Sprintf("other-%d", i))
	}

	// the held lock must still map to the same mutex
	assert.Same(t, held, lt.getOrCreate("held"))
}

func TestLockTableEvictionStopsAtHeldLock(t *testing.T) {
	lt := newLockTable(2)

	held := lt.getOrCreate("held")
	held.Lock()
	defer held.Unlock()

	// filling past capacity may exceed the cap while the lock is held, but
	// must not drop the held entry
	lt.getOrCreate("a")
	lt.getOrCreate("b")
	lt.getOrCreate("c")

	assert.Same(t, held, lt.getOrCreate("held"))
	assert.GreaterOrEqual(t, lt.len(), 2)
}

func TestLockTableAcquireReturnsLockedCurrentEntry(t *testing.T) {
	lt := newLockTable(10)

	lk := lt.acquire("k")
	assert.False(t, lk.TryLock(), "acquire hands the mutex out locked")
	assert.Same(t, lk, lt.getOrCreate("k"))
	lk.Unlock()
}

func TestLockTableAcquireRetriesAfterEviction(t *testing.T) {
	lt := newLockTable(2)

	// look up a mutex, then churn the table so that entry is evicted before
	// anyone locks it
	stale := lt.getOrCreate("k")
	for i := 0; i < 5; i++ {
		lt.getOrCreate(fmt.Sprintf("churn-%d", i))
	}

	lk := lt.acquire("k")
	defer lk.Unlock()

	assert.NotSame(t, stale, lk, "evicted mutex must not be handed out")
	assert.Same(t, lk, lt.getOrCreate("k"), "acquired mutex is the table's current entry")
}
