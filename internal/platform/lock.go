package platform

import "sync"

// KeyedMutex hands out one mutex per key. Locks are never freed; the key space
// is the set of managed domains, which is small and long-lived.
type KeyedMutex struct {
	locks sync.Map
}

// Lock acquires the mutex for kind:key and returns the unlock function.
func (k *KeyedMutex) Lock(kind, key string) func() {
	mu, _ := k.locks.LoadOrStore(kind+":"+key, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	return mu.(*sync.Mutex).Unlock
}
