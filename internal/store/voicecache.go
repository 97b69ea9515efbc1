package store

import (
	"sync"
	"time"
)

// VoiceTTL is how long the last analyzed voice note stays available for
// follow-up commands like !details.
const VoiceTTL = 30 * time.Minute

// CachedVoice is the last voice payload analyzed for a sender.
type CachedVoice struct {
	Data     []byte
	MimeType string
	Duration int // seconds
	StoredAt time.Time
}

// VoiceCache keeps at most one live voice entry per sender. Entries are
// lazily evicted on read and opportunistically swept on every write. No
// side effects beyond the store itself.
type VoiceCache struct {
	mu      sync.Mutex
	entries map[string]CachedVoice
	ttl     time.Duration
	now     func() time.Time
}

func NewVoiceCache() *VoiceCache {
	return &VoiceCache{
		entries: make(map[string]CachedVoice),
		ttl:     VoiceTTL,
		now:     time.Now,
	}
}

// Put stores the voice payload for a sender, overwriting any prior entry,
// and sweeps all expired entries. O(n) over live entries — fine at the
// scale of a small whitelist.
func (c *VoiceCache) Put(sender string, v CachedVoice) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	v.StoredAt = now
	c.entries[sender] = v

	for key, e := range c.entries {
		if now.Sub(e.StoredAt) > c.ttl {
			delete(c.entries, key)
		}
	}
}

// Get returns the sender's cached voice, or nil when absent or expired.
// Expired entries are evicted; live hits are returned without mutation.
func (c *VoiceCache) Get(sender string) *CachedVoice {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[sender]
	if !ok {
		return nil
	}
	if c.now().Sub(e.StoredAt) > c.ttl {
		delete(c.entries, sender)
		return nil
	}
	return &e
}

// Has reports whether the sender has a live cached voice.
func (c *VoiceCache) Has(sender string) bool {
	return c.Get(sender) != nil
}
