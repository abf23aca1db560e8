// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package cache holds the process-wide resource entry table and the optional
// descriptor stores (redis, badger) that back it across restarts and replicas.
package cache

import (
	"container/list"
	"sync"

	"github.com/ManuGH/lessonmedia/internal/clock"
	"github.com/ManuGH/lessonmedia/internal/metrics"
	"github.com/ManuGH/lessonmedia/internal/resource"
)

const defaultSubscriberBuffer = 64

// Key addresses one entry. Videos and documents live in separate id spaces.
type Key struct {
	Kind resource.Kind
	ID   string
}

// Stats holds cache counters.
type Stats struct {
	Entries     int
	ByStatus    map[resource.Status]int
	Evictions   int64
	Transitions int64
	Dropped     int64
}

// Options configures a Cache.
type Options struct {
	// MaxEntries bounds the table. Zero means unbounded.
	MaxEntries int
	Clock      clock.Clock
}

type node struct {
	entry resource.Entry
	elem  *list.Element
}

// Cache is the single source of truth for resource entries. All reads return
// copies; all writes go through Put or Update under the cache lock.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]*node
	lru     *list.List // front = most recently touched
	counts  map[resource.Status]int
	max     int
	clock   clock.Clock

	subs    map[int]chan resource.Transition
	nextSub int

	evictions   int64
	transitions int64
	dropped     int64
}

// New creates an empty cache.
func New(opts Options) *Cache {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	max := opts.MaxEntries
	if max < 0 {
		max = 0
	}
	return &Cache{
		entries: make(map[Key]*node),
		lru:     list.New(),
		counts:  make(map[resource.Status]int),
		max:     max,
		clock:   clk,
		subs:    make(map[int]chan resource.Transition),
	}
}

// Get returns a copy of the entry for (kind, id).
func (c *Cache) Get(kind resource.Kind, id string) (resource.Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n, ok := c.entries[Key{Kind: kind, ID: id}]
	if !ok {
		return resource.Entry{}, false
	}
	return n.entry.Clone(), true
}

// Put applies fn to the entry, creating an idle entry first if none exists,
// and returns the resulting copy.
func (c *Cache) Put(kind resource.Kind, id string, fn func(*resource.Entry)) resource.Entry {
	out, _ := c.Update(kind, id, func(e *resource.Entry) bool {
		fn(e)
		return true
	})
	return out
}

// Update is the conditional form of Put. When fn returns false the entry is
// left untouched (and not created) and the current copy is returned with false.
func (c *Cache) Update(kind resource.Kind, id string, fn func(*resource.Entry) bool) (resource.Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key{Kind: kind, ID: id}
	n, exists := c.entries[key]

	var work resource.Entry
	if exists {
		work = n.entry.Clone()
	} else {
		work = resource.Entry{ResourceID: id, Kind: kind, Status: resource.StatusIdle}
	}
	from := work.Status

	if !fn(&work) {
		return work, false
	}

	// Identity is owned by the key.
	work.ResourceID = id
	work.Kind = kind
	if work.Status != resource.StatusError {
		work.LastError = nil
	}
	work.UpdatedAt = c.clock.Now()

	if exists {
		n.entry = work
		c.lru.MoveToFront(n.elem)
		if from != work.Status {
			c.counts[from]--
			c.counts[work.Status]++
		}
	} else {
		n = &node{entry: work}
		n.elem = c.lru.PushFront(key)
		c.entries[key] = n
		c.counts[work.Status]++
		from = ""
	}

	if from != work.Status {
		c.publish(resource.Transition{
			ResourceID: id,
			Kind:       kind,
			From:       from,
			To:         work.Status,
			Token:      work.Token,
			At:         work.UpdatedAt,
		})
	}

	c.evictLocked()
	c.reportLocked()
	return work.Clone(), true
}

// Snapshot returns a read-only copy of all entries of one kind keyed by id.
// An empty kind returns every entry keyed by "kind/id".
func (c *Cache) Snapshot(kind resource.Kind) map[string]resource.Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]resource.Entry, len(c.entries))
	for k, n := range c.entries {
		switch {
		case kind == "":
			out[string(k.Kind)+"/"+k.ID] = n.entry.Clone()
		case k.Kind == kind:
			out[k.ID] = n.entry.Clone()
		}
	}
	return out
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// SetMaxEntries changes the bound at runtime, evicting immediately if needed.
func (c *Cache) SetMaxEntries(max int) {
	if max < 0 {
		max = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.max = max
	c.evictLocked()
	c.reportLocked()
}

// Subscribe registers a transition listener. Delivery never blocks writers:
// when the buffer is full the event is dropped and counted. The returned
// cancel func closes the channel.
func (c *Cache) Subscribe(buffer int) (<-chan resource.Transition, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan resource.Transition, buffer)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}

// Stats returns a copy of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	by := make(map[resource.Status]int, len(c.counts))
	for s, n := range c.counts {
		if n > 0 {
			by[s] = n
		}
	}
	return Stats{
		Entries:     len(c.entries),
		ByStatus:    by,
		Evictions:   c.evictions,
		Transitions: c.transitions,
		Dropped:     c.dropped,
	}
}

// publish fans a transition out to subscribers. Caller must hold the write lock.
func (c *Cache) publish(t resource.Transition) {
	c.transitions++
	for _, ch := range c.subs {
		select {
		case ch <- t:
		default:
			c.dropped++
			metrics.RecordSubscriberDrop()
		}
	}
}

// evictLocked drops least recently touched entries above the bound. Loading
// entries are skipped so an in-flight fetch always has a slot to land in.
func (c *Cache) evictLocked() {
	if c.max == 0 {
		return
	}
	for elem := c.lru.Back(); elem != nil && len(c.entries) > c.max; {
		prev := elem.Prev()
		key := elem.Value.(Key)
		n := c.entries[key]
		if n.entry.Status != resource.StatusLoading {
			c.lru.Remove(elem)
			delete(c.entries, key)
			c.counts[n.entry.Status]--
			c.evictions++
			metrics.RecordCacheEviction()
		}
		elem = prev
	}
}

func (c *Cache) reportLocked() {
	metrics.SetCacheEntries(map[string]int{
		string(resource.StatusIdle):    c.counts[resource.StatusIdle],
		string(resource.StatusLoading): c.counts[resource.StatusLoading],
		string(resource.StatusReady):   c.counts[resource.StatusReady],
		string(resource.StatusError):   c.counts[resource.StatusError],
	})
}
