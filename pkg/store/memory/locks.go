package memory

import (
	"sort"
	"sync"
)

// keysetLock serializes writers that touch overlapping identity-key sets
// while letting disjoint upserts run concurrently. A writer acquires every
// key in its set at once or waits; keys are sorted before acquisition so
// two writers can never deadlock on each other.
type keysetLock struct {
	mu   sync.Mutex
	cond *sync.Cond
	held map[string]bool
}

func newKeysetLock() *keysetLock {
	l := &keysetLock{held: make(map[string]bool)}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Acquire blocks until every key in keys is free, then claims them all.
// The input slice is sorted and deduplicated in place.
func (l *keysetLock) Acquire(keys []string) {
	sort.Strings(keys)

	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		if l.allFree(keys) {
			break
		}
		l.cond.Wait()
	}
	for _, k := range keys {
		l.held[k] = true
	}
}

func (l *keysetLock) allFree(keys []string) bool {
	for _, k := range keys {
		if l.held[k] {
			return false
		}
	}
	return true
}

// Release frees the keys and wakes every waiter; each re-checks its own
// key set.
func (l *keysetLock) Release(keys []string) {
	l.mu.Lock()
	for _, k := range keys {
		delete(l.held, k)
	}
	l.mu.Unlock()
	l.cond.Broadcast()
}
