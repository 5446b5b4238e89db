// ABOUTME: Keyed mutexes serializing turns per chat.
// ABOUTME: Entries are refcounted and dropped when the last holder releases.

package assistant

import "sync"

type chatLock struct {
	mu   sync.Mutex
	refs int
}

// chatLocks hands out one mutex per chat id. Distinct chats never contend;
// concurrent turns on the same chat run one at a time.
type chatLocks struct {
	mu    sync.Mutex
	locks map[string]*chatLock
}

func newChatLocks() *chatLocks {
	return &chatLocks{locks: make(map[string]*chatLock)}
}

// acquire blocks until the chat's lock is held. Callers must pair it with
// release.
func (c *chatLocks) acquire(chatID string) {
	c.mu.Lock()
	l, ok := c.locks[chatID]
	if !ok {
		l = &chatLock{}
		c.locks[chatID] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
}

func (c *chatLocks) release(chatID string) {
	c.mu.Lock()
	l := c.locks[chatID]
	l.refs--
	if l.refs == 0 {
		delete(c.locks, chatID)
	}
	c.mu.Unlock()

	l.mu.Unlock()
}
