package parser

import (
	"sync"

	"github.com/Velocidex/ordereddict"
	lru "github.com/hashicorp/golang-lru"
)

// A thin wrapper around the hashicorp LRU which keeps track of hit
// and miss statistics for debugging.
type LRU struct {
	mu sync.Mutex

	cache *lru.Cache
	name  string
	size  int

	hits   int64
	misses int64
}

func NewLRU(size int, evict func(key int, value interface{}), name string) (*LRU, error) {
	var on_evict func(key interface{}, value interface{})
	if evict != nil {
		on_evict = func(key interface{}, value interface{}) {
			evict(key.(int), value)
		}
	}

	if size <= 0 {
		size = 1
	}

	cache, err := lru.NewWithEvict(size, on_evict)
	if err != nil {
		return nil, err
	}

	return &LRU{cache: cache, name: name, size: size}, nil
}

func (self *LRU) Get(key int) (interface{}, bool) {
	value, pres := self.cache.Get(key)

	self.mu.Lock()
	if pres {
		self.hits++
	} else {
		self.misses++
	}
	self.mu.Unlock()

	return value, pres
}

func (self *LRU) Add(key int, value interface{}) {
	self.cache.Add(key, value)
}

func (self *LRU) Len() int {
	return self.cache.Len()
}

func (self *LRU) Purge() {
	self.cache.Purge()
}

func (self *LRU) Stats() *ordereddict.Dict {
	self.mu.Lock()
	defer self.mu.Unlock()

	return ordereddict.NewDict().
		Set("Name", self.name).
		Set("Size", self.size).
		Set("Len", self.cache.Len()).
		Set("Hits", self.hits).
		Set("Misses", self.misses)
}

func (self *LRU) DebugString() string {
	serialized, _ := self.Stats().MarshalJSON()
	return string(serialized)
}
