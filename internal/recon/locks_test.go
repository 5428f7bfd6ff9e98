package recon

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInventoryKeys_Sorted(t *testing.T) {
	keys := inventoryKeys([]string{"widget-b@osaka-dc", "widget-a@osaka-dc", "bolt-m6@main"})

	assert.Equal(t, []string{
		"inv:bolt-m6@main",
		"inv:widget-a@osaka-dc",
		"inv:widget-b@osaka-dc",
	}, keys)
}

func TestKeyedMutex_SameKeyExcludes(t *testing.T) {
	km := newKeyedMutex()

	release := km.acquire("order:1")

	acquired := make(chan struct{})
	go func() {
		r := km.acquire("order:1")
		close(acquired)
		r()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while the key was held")
	case <-time.After(50 * time.Millisecond):
	}

	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never proceeded after release")
	}
}

func TestKeyedMutex_DisjointKeysDoNotBlock(t *testing.T) {
	km := newKeyedMutex()

	release := km.acquire("order:1")
	defer release()

	done := make(chan struct{})
	go func() {
		r := km.acquire("order:2", "payment:2")
		r()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disjoint keys blocked each other")
	}
}

// Overlapping key sets acquired in canonical order never deadlock, no matter
// how the goroutines interleave.
func TestKeyedMutex_OverlappingKeySetsNoDeadlock(t *testing.T) {
	km := newKeyedMutex()

	setA := []string{"order:1", "inv:widget-a@main", "payment:1"}
	setB := []string{"order:1", "inv:widget-a@main", "inv:widget-b@main", "payment:1"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			release := km.acquire(setA...)
			release()
		}()
		go func() {
			defer wg.Done()
			release := km.acquire(setB...)
			release()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lock acquisition deadlocked")
	}
}

func TestKeyedMutex_ReleaseFreesKeys(t *testing.T) {
	km := newKeyedMutex()

	release := km.acquire("order:1", "payment:1")
	release()

	// Both keys are free again.
	release = km.acquire("payment:1", "order:1")
	release()
}
