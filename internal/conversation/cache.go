package conversation

import "sync"

// ReplyCache remembers the last clean reply sent to each contact for the
// lifetime of the process.
type ReplyCache struct {
	mu      sync.RWMutex
	replies map[string]string
}

// NewReplyCache returns an empty cache.
func NewReplyCache() *ReplyCache {
	return &ReplyCache{replies: make(map[string]string)}
}

// Get returns the cached reply for contactID.
func (c *ReplyCache) Get(contactID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.replies[contactID]
	return r, ok
}

// Set stores reply for contactID.
func (c *ReplyCache) Set(contactID, reply string) {
	c.mu.Lock()
	c.replies[contactID] = reply
	c.mu.Unlock()
}
