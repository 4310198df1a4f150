// history.go — Bounded linear undo buffer of editing snapshots.
package compositor

// DefaultHistoryDepth is how many snapshots History keeps.
const DefaultHistoryDepth = 10

// History keeps the most recent snapshots, oldest evicted first. There is
// no redo: an undone state is gone.
type History struct {
	entries []Snapshot
	depth   int
}

// NewHistory returns an empty history keeping at most depth entries.
func NewHistory(depth int) *History {
	if depth <= 0 {
		depth = DefaultHistoryDepth
	}
	return &History{depth: depth, entries: make([]Snapshot, 0, depth)}
}

// Push appends s, dropping the oldest entry when over capacity.
func (h *History) Push(s Snapshot) {
	if len(h.entries) == h.depth {
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:h.depth-1]
	}
	h.entries = append(h.entries, s)
}

// Undo pops the newest snapshot. ok is false when the history is empty.
func (h *History) Undo() (s Snapshot, ok bool) {
	n := len(h.entries)
	if n == 0 {
		return Snapshot{}, false
	}
	s = h.entries[n-1]
	h.entries = h.entries[:n-1]
	return s, true
}

// Len returns the number of stored snapshots.
func (h *History) Len() int { return len(h.entries) }

// Depth returns the capacity.
func (h *History) Depth() int { return h.depth }

// Clone returns an independent copy.
func (h *History) Clone() *History {
	c := &History{depth: h.depth, entries: make([]Snapshot, len(h.entries), h.depth)}
	copy(c.entries, h.entries)
	return c
}

// Clear drops every snapshot.
func (h *History) Clear() { h.entries = h.entries[:0] }
