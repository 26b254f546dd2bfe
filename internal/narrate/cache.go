package narrate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/foodly/companion/internal/logger"
)

// Cache is a thread-safe two-tier cache (memory + optional disk) for
// synthesized audio. Keys cover the full synthesis request — voice and
// prosody included — so switching either causes clean misses instead of
// serving audio rendered with different parameters. The disk layer is
// read even when writes are disabled, giving warm starts from previous
// runs.
type Cache struct {
	mu        sync.RWMutex
	entries   map[string][]byte
	log       *logger.Logger
	dir       string // empty disables the disk layer
	diskWrite bool
}

// NewCache creates an audio cache. dir="" keeps it purely in memory.
func NewCache(dir string, diskWrite bool, log *logger.Logger) *Cache {
	c := &Cache{
		entries:   make(map[string][]byte),
		log:       log,
		dir:       dir,
		diskWrite: diskWrite,
	}
	if dir != "" && diskWrite {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error("cache: creating %s: %v", dir, err)
		}
	}
	return c
}

// Get returns cached audio for the request, consulting memory first
// and promoting disk hits.
func (c *Cache) Get(req SynthRequest) ([]byte, bool) {
	key := cacheKey(req)

	c.mu.RLock()
	data, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return data, true
	}

	if c.dir != "" {
		if data, err := os.ReadFile(c.path(key)); err == nil {
			c.mu.Lock()
			c.entries[key] = data
			c.mu.Unlock()
			c.log.Debug("cache: disk hit (%d bytes)", len(data))
			return data, true
		}
	}
	return nil, false
}

// Put stores the request's synthesized audio.
func (c *Cache) Put(req SynthRequest, audio []byte) {
	key := cacheKey(req)

	c.mu.Lock()
	c.entries[key] = audio
	c.mu.Unlock()

	if c.dir != "" && c.diskWrite {
		if err := os.WriteFile(c.path(key), audio, 0o644); err != nil {
			c.log.Error("cache: writing %s: %v", key, err)
		}
	}
}

// Has reports whether the request's audio is cached.
func (c *Cache) Has(req SynthRequest) bool {
	key := cacheKey(req)

	c.mu.RLock()
	_, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return true
	}
	if c.dir != "" {
		_, err := os.Stat(c.path(key))
		return err == nil
	}
	return false
}

// Len returns the number of in-memory entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".wav")
}

func cacheKey(req SynthRequest) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%.3f:%.3f:%.3f:%s",
		req.Voice, req.Rate, req.Pitch, req.Volume, req.Text)))
	return hex.EncodeToString(h[:])
}
