package pipeline

import "sync"

// History is a fixed-capacity ring of the most recent snapshots for one
// source. It is safe for concurrent use.
type History struct {
	mu    sync.RWMutex
	buf   []Snapshot
	next  int
	count int
}

// NewHistory creates a ring retaining at most size snapshots. A
// non-positive size yields a history that retains nothing.
func NewHistory(size int) *History {
	if size < 0 {
		size = 0
	}
	return &History{buf: make([]Snapshot, size)}
}

// Append stores a copy of snap, evicting the oldest entry when full.
func (h *History) Append(snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.buf) == 0 {
		return
	}
	h.buf[h.next] = snap.Clone()
	h.next = (h.next + 1) % len(h.buf)
	if h.count < len(h.buf) {
		h.count++
	}
}

// Len returns the number of retained snapshots.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Cap returns the ring capacity.
func (h *History) Cap() int {
	return len(h.buf)
}

// Recent returns copies of the newest n snapshots, oldest first. A
// non-positive n or an n beyond Len returns everything retained.
func (h *History) Recent(n int) []Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || n > h.count {
		n = h.count
	}
	out := make([]Snapshot, n)
	start := h.next - n
	if start < 0 {
		start += len(h.buf)
	}
	for i := range out {
		out[i] = h.buf[(start+i)%len(h.buf)].Clone()
	}
	return out
}

// Latest returns the newest snapshot, if any.
func (h *History) Latest() (Snapshot, bool) {
	recent := h.Recent(1)
	if len(recent) == 0 {
		return Snapshot{}, false
	}
	return recent[0], true
}
