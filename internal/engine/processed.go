package engine

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hazyhaar/domrelay/tree"
)

// processedSet is the memory governor around already-dispatched
// tracking. It is a capacity-bounded LRU, not a correctness-critical
// cache: evicting an entry can cause a rescan to re-dispatch a node
// redundantly, never to miss one. The LRU carries its own lock, which
// is what lets the reconciler call Seen off the loop goroutine.
type processedSet struct {
	lru *lru.Cache[tree.NodeID, struct{}]
}

func newProcessedSet(capacity int) (*processedSet, error) {
	c, err := lru.New[tree.NodeID, struct{}](capacity)
	if err != nil {
		return nil, err
	}
	return &processedSet{lru: c}, nil
}

func (p *processedSet) add(id tree.NodeID) {
	p.lru.Add(id, struct{}{})
}

func (p *processedSet) contains(id tree.NodeID) bool {
	return p.lru.Contains(id)
}

func (p *processedSet) remove(id tree.NodeID) {
	p.lru.Remove(id)
}
