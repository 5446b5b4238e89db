// ABOUTME: Tests for per-chat turn locks
// ABOUTME: Covers mutual exclusion per key and entry cleanup

package assistant

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChatLocks_SerializesSameKey(t *testing.T) {
	locks := newChatLocks()

	var mu sync.Mutex
	inFlight := 0
	maxInFlight := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks.acquire("chat-1")
			defer locks.release("chat-1")

			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()

			mu.Lock()
			inFlight--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInFlight)
}

func TestChatLocks_DistinctKeysIndependent(t *testing.T) {
	locks := newChatLocks()
	locks.acquire("chat-1")

	done := make(chan struct{})
	go func() {
		locks.acquire("chat-2")
		locks.release("chat-2")
		close(done)
	}()
	<-done // a held chat-1 lock must not block chat-2

	locks.release("chat-1")
}

func TestChatLocks_EntriesDroppedWhenIdle(t *testing.T) {
	locks := newChatLocks()

	locks.acquire("chat-1")
	locks.release("chat-1")

	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Empty(t, locks.locks)
}
