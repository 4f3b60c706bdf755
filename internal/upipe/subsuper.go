package upipe

import "sync"

// SubPipe is embedded by a bin's inner pipes so they can report their
// super-pipe (the bin itself) without the bin package importing every
// sub-pipe family, and so the bin can enumerate its live sub-pipes for
// dump.go's graph output (spec.md §3.8, §6).
type SubPipe struct {
	mu    sync.Mutex
	super *SuperPipe
}

func (s *SubPipe) SetSuper(super *SuperPipe) {
	s.mu.Lock()
	s.super = super
	s.mu.Unlock()
	if super != nil {
		super.add(s)
	}
}

func (s *SubPipe) Super() *SuperPipe {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.super
}

// SuperPipe is embedded by a bin. It tracks which SubPipes currently point
// back to it, released as sub-pipes die.
type SuperPipe struct {
	mu   sync.Mutex
	subs map[*SubPipe]struct{}
}

func NewSuperPipe() *SuperPipe {
	return &SuperPipe{subs: make(map[*SubPipe]struct{})}
}

func (s *SuperPipe) add(sub *SubPipe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub] = struct{}{}
}

// Remove detaches sub, e.g. when the bin's teardown releases all sub-pipes.
func (s *SuperPipe) Remove(sub *SubPipe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub)
}

// Len reports the current number of live sub-pipes.
func (s *SuperPipe) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Each calls fn for every currently tracked sub-pipe.
func (s *SuperPipe) Each(fn func(*SubPipe)) {
	s.mu.Lock()
	subs := make([]*SubPipe, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()
	for _, sub := range subs {
		fn(sub)
	}
}
