// Package loser implements a tournament tree (loser tree) that merges
// several sorted sources into one sorted sequence with O(log k)
// comparisons per element.
//
// Exhausted sources lose every game and equal heads are won by the source
// with the lower index, so the merge is stable with respect to source order.
package loser

// Tree merges sorted sources. It is not safe for concurrent use.
//
// The tree is laid out such that nodes N and N+1 have parent N/2.
// M leaves live in positions M...2M-1 and M-1 internal nodes in positions 1..M-1.
// Node 0 holds the winner of the contest.
type Tree[E any] struct {
	nodes       []node[E]
	less        func(a, b E) bool
	initialized bool
}

type node[E any] struct {
	index int              // Leaf position of the loser for internal nodes, of the winner for node 0.
	value E                // Current head, only meaningful for leaves.
	done  bool             // Leaf source is exhausted.
	next  func() (E, bool) // Only populated for leaves.
}

// New creates a tree over sources, each given as a pull function returning
// the next element and whether one was available. less must be a strict
// weak ordering and each source must already be sorted by it.
func New[E any](sources []func() (E, bool), less func(a, b E) bool) *Tree[E] {
	t := &Tree[E]{
		nodes: make([]node[E], len(sources)*2),
		less:  less,
	}
	for i, next := range sources {
		t.nodes[i+len(sources)].next = next
	}
	return t
}

// Len returns the number of sources.
func (t *Tree[E]) Len() int { return len(t.nodes) / 2 }

// Next returns the smallest head across all sources together with the
// index of the source it came from, and advances that source.
// ok is false once every source is exhausted.
func (t *Tree[E]) Next() (value E, source int, ok bool) {
	if len(t.nodes) == 0 {
		return value, -1, false
	}
	if !t.initialized {
		for i := len(t.nodes) / 2; i < len(t.nodes); i++ {
			t.moveNext(i) // Call next() on each leaf to get the first value.
		}
		t.nodes[0].index = t.playGame(1)
		t.initialized = true
	}

	w := t.nodes[0].index
	if t.nodes[w].done {
		return value, -1, false
	}
	value = t.nodes[w].value
	source = w - len(t.nodes)/2

	t.moveNext(w)
	t.replayGames(w)
	return value, source, true
}

func (t *Tree[E]) moveNext(pos int) {
	n := &t.nodes[pos]
	if v, ok := n.next(); ok {
		n.value = v
		return
	}
	var zero E
	n.value = zero
	n.done = true
}

// beats reports whether leaf a wins against leaf b.
func (t *Tree[E]) beats(a, b int) bool {
	na, nb := &t.nodes[a], &t.nodes[b]
	if na.done != nb.done {
		return !na.done
	}
	if !na.done {
		if t.less(na.value, nb.value) {
			return true
		}
		if t.less(nb.value, na.value) {
			return false
		}
	}
	return a < b
}

// Find the winner at position pos; if it is a non-leaf node, store the loser.
// pos must be >= 1 and < len(t.nodes).
func (t *Tree[E]) playGame(pos int) int {
	if pos >= len(t.nodes)/2 {
		return pos
	}
	left := t.playGame(pos * 2)
	right := t.playGame(pos*2 + 1)
	winner, loser := left, right
	if t.beats(right, left) {
		winner, loser = right, left
	}
	t.nodes[pos].index = loser
	return winner
}

// Starting at pos, whose leaf just changed, re-consider all games up to the root.
func (t *Tree[E]) replayGames(pos int) {
	winner := pos
	for n := parent(pos); n != 0; n = parent(n) {
		if t.beats(t.nodes[n].index, winner) {
			// Record winner as the loser here, and the old loser is the new winner.
			t.nodes[n].index, winner = winner, t.nodes[n].index
		}
	}
	t.nodes[0].index = winner
}

func parent(i int) int { return i >> 1 }
