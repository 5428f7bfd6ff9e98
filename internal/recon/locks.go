package recon

import (
	"sort"
	"sync"
)

// Lock key prefixes. Keys are acquired strictly in the order
// order -> inventory (sorted) -> payment, so two triggers touching the same
// rows from different directions can never deadlock.
const (
	lockOrder     = "order:"
	lockInventory = "inv:"
	lockPayment   = "payment:"
)

// keyedMutex hands out one mutex per resource key. Mutexes are never
// discarded; the key space is bounded by live entities.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// acquire locks every key in the given order and returns a release function
// that unlocks in reverse. Callers must pass keys already in canonical order.
func (k *keyedMutex) acquire(keys ...string) func() {
	ms := make([]*sync.Mutex, 0, len(keys))
	for _, key := range keys {
		m := k.get(key)
		m.Lock()
		ms = append(ms, m)
	}
	return func() {
		for i := len(ms) - 1; i >= 0; i-- {
			ms[i].Unlock()
		}
	}
}

// inventoryKeys builds sorted inventory lock keys for a set of ledger IDs
func inventoryKeys(ledgerIDs []string) []string {
	keys := make([]string, 0, len(ledgerIDs))
	for _, id := range ledgerIDs {
		keys = append(keys, lockInventory+id)
	}
	sort.Strings(keys)
	return keys
}
