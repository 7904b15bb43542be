package dispatch

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrDoubleFree is returned by Free when tag is not currently outstanding.
// Freeing is deliberately not silently idempotent: a double free almost
// always indicates a lost track of a pending request's lifecycle.
var ErrDoubleFree = errors.New("matchtag double free")

// MatchtagAllocator draws 32-bit tags from a free list, per handle. Tag 0
// is reserved to mean "none" and is never allocated.
type MatchtagAllocator struct {
	mu          sync.Mutex
	next        uint32
	free        []uint32
	outstanding map[uint32]struct{}
}

// NewMatchtagAllocator creates an allocator with an empty free list.
func NewMatchtagAllocator() *MatchtagAllocator {
	return &MatchtagAllocator{next: 1, outstanding: make(map[uint32]struct{})}
}

// Allocate returns a tag distinct from every currently-outstanding tag.
func (a *MatchtagAllocator) Allocate() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var tag uint32
	if n := len(a.free); n > 0 {
		tag = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		tag = a.next
		a.next++
	}
	a.outstanding[tag] = struct{}{}
	return tag
}

// Free releases tag back to the pool. Freeing a tag that is not currently
// outstanding (including a tag already freed once) is an error.
func (a *MatchtagAllocator) Free(tag uint32) error {
	if tag == 0 {
		return errors.New("matchtag 0 is reserved and cannot be freed")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.outstanding[tag]; !ok {
		return ErrDoubleFree
	}
	delete(a.outstanding, tag)
	a.free = append(a.free, tag)
	return nil
}

// IsOutstanding reports whether tag is currently allocated.
func (a *MatchtagAllocator) IsOutstanding(tag uint32) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.outstanding[tag]
	return ok
}
