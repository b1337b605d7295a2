package jsondoc

import (
	"container/list"
	"sync"

	"github.com/haroldsh/fulcrum/internal/data"
)

type lruEntry struct {
	key   string
	value data.Record
}

// lru is a fair access-order (least-recently-used) cache of parsed
// documents, default size 1000, sitting in front of the filesystem.
type lru struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

func newLRU(capacity int) *lru {
	return &lru{capacity: capacity, ll: list.New(), items: make(map[string]*list.Element)}
}

func (c *lru) get(key string) (data.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*lruEntry).value, true
}

func (c *lru) put(key string, value data.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*lruEntry).value = value
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&lruEntry{key: key, value: value})
	c.items[key] = el

	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*lruEntry).key)
		}
	}
}
