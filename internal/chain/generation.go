package chain

import "sync/atomic"

// Ticket is the generation a run started under.
type Ticket uint64

// Generation discards results of runs whose inputs changed while they were
// in flight. Each run calls Begin and applies its result only if IsCurrent
// still holds on completion. In-flight reads are not aborted.
type Generation struct {
	n atomic.Uint64
}

// Begin starts a new run and supersedes every earlier ticket.
func (g *Generation) Begin() Ticket {
	return Ticket(g.n.Add(1))
}

// Invalidate supersedes every outstanding ticket without starting a run.
func (g *Generation) Invalidate() {
	g.n.Add(1)
}

// IsCurrent reports whether t is still the latest generation.
func (g *Generation) IsCurrent(t Ticket) bool {
	return g.n.Load() == uint64(t)
}
