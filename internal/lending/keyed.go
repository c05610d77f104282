package lending

import "sync"

// keyedMutex serializes the read-check-then-write sections per entity
// key (one copy, one work's queue) without a global lock. Mutexes are
// kept for the process lifetime; the key space is bounded by the
// catalog size.
type keyedMutex struct {
	locks sync.Map
}

// lock acquires the mutex for key and returns its release func.
func (k *keyedMutex) lock(key string) func() {
	v, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
