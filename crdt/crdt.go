// Package crdt implements the ordered CRDT sequence: a set of items
// identified by CrdtId with left/right neighbour hints, reconstructed
// into a deterministic total order by topological sort.
package crdt

import (
	"errors"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/rmscene/rmscene/datastream"
)

// ErrCyclicOrder marks a CRDT sequence whose left/right hints contain a
// cycle, so no consistent order exists.
var ErrCyclicOrder = errors.New("rmscene: cyclic order in crdt sequence")

// Item is one element of a CRDT sequence.
type Item[V any] struct {
	ItemID        datastream.CrdtId
	LeftID        datastream.CrdtId
	RightID       datastream.CrdtId
	DeletedLength uint32
	Value         V
}

// Sequence is a set of Items keyed by ItemID, reconstructable into a
// canonical order via Order/Walk.
type Sequence[V any] struct {
	items map[datastream.CrdtId]Item[V]
	order []datastream.CrdtId // insertion order, used only by Items()
}

// NewSequence returns an empty sequence.
func NewSequence[V any]() *Sequence[V] {
	return &Sequence[V]{items: make(map[datastream.CrdtId]Item[V])}
}

// Add inserts or replaces an item by its ItemID.
func (s *Sequence[V]) Add(item Item[V]) {
	if _, exists := s.items[item.ItemID]; !exists {
		s.order = append(s.order, item.ItemID)
	}
	s.items[item.ItemID] = item
}

// Len reports the number of items in the sequence.
func (s *Sequence[V]) Len() int { return len(s.items) }

// Get returns the item with the given id.
func (s *Sequence[V]) Get(id datastream.CrdtId) (Item[V], bool) {
	it, ok := s.items[id]
	return it, ok
}

// Items returns items in insertion order, useful for re-serialising
// without needing canonical ordering.
func (s *Sequence[V]) Items() []Item[V] {
	out := make([]Item[V], 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

// seqKey is a node in the ordering graph: either a real item id, or one
// of the two sentinels standing for "before all"/"after all".
type seqKey struct {
	sentinel string // "", "__start", or "__end"
	id       datastream.CrdtId
}

var startKey = seqKey{sentinel: "__start"}
var endKey = seqKey{sentinel: "__end"}

func sideKey(id datastream.CrdtId, isLeft bool) seqKey {
	if id.IsEndMarker() {
		if isLeft {
			return startKey
		}
		return endKey
	}
	return seqKey{id: id}
}

// Order returns the sequence's item ids in canonical order via Kahn's
// topological sort over the left/right dependency graph, breaking ties
// within each ready layer by CrdtId's lexicographic order. A left or
// right id that does not name any item in the sequence (and is not the
// end-marker) behaves as a dangling reference: it becomes a phantom
// graph node. A dangling left id has no predecessors, so it is ready in
// the first layer; a dangling right id has only the items pointing at it
// as predecessors, so it is ready right after them. Either way it is
// cleared in whichever layer makes it ready and, since it names no actual
// item, is filtered out of the emitted order. This reproduces the
// "dangling pointer collapses to end" behaviour; the only special-casing
// is a debug log line for each dangling right id.
//
// __end is held back from a ready layer unless it is the only node left:
// a dangling right-id phantom can become ready in the very same round as
// __end without being connected to it, and consuming __end that early
// leaves the phantom to clear alone on the next round with nothing left
// to report "all done" — the algorithm only recognises completion once
// the whole graph, __end included, has drained to nothing.
func Order[V any](s *Sequence[V]) ([]datastream.CrdtId, error) {
	if len(s.items) == 0 {
		return nil, nil
	}

	data := make(map[seqKey]map[seqKey]bool)
	ensure := func(k seqKey) {
		if data[k] == nil {
			data[k] = make(map[seqKey]bool)
		}
	}
	for _, item := range s.items {
		self := seqKey{id: item.ItemID}
		left := sideKey(item.LeftID, true)
		right := sideKey(item.RightID, false)
		ensure(self)
		ensure(left)
		ensure(right)
		if !item.RightID.IsEndMarker() {
			if _, ok := s.items[item.RightID]; !ok {
				logrus.Debugf("rmscene: right id %s of item %s is not in the sequence", item.RightID, item.ItemID)
			}
		}
		data[self][left] = true
		data[right][self] = true
	}

	var result []datastream.CrdtId
	for {
		var ready []seqKey
		for k, deps := range data {
			if len(deps) == 0 {
				ready = append(ready, k)
			}
		}
		if len(ready) == 0 {
			if len(data) == 0 {
				break
			}
			return nil, ErrCyclicOrder
		}

		toClear := ready
		if len(ready) > 1 {
			toClear = toClear[:0:0]
			for _, k := range ready {
				if k != endKey {
					toClear = append(toClear, k)
				}
			}
		}

		var layer []datastream.CrdtId
		for _, k := range toClear {
			if k.sentinel == "" {
				if _, ok := s.items[k.id]; ok {
					layer = append(layer, k.id)
				}
			}
		}
		sort.Slice(layer, func(i, j int) bool { return layer[i].Less(layer[j]) })
		result = append(result, layer...)

		readySet := make(map[seqKey]bool, len(toClear))
		for _, k := range toClear {
			readySet[k] = true
		}
		next := make(map[seqKey]map[seqKey]bool, len(data))
		for k, deps := range data {
			if readySet[k] {
				continue
			}
			nd := make(map[seqKey]bool, len(deps))
			for d := range deps {
				if !readySet[d] {
					nd[d] = true
				}
			}
			next[k] = nd
		}
		data = next
	}

	return result, nil
}

// Walk returns the sequence's values in canonical order.
func Walk[V any](s *Sequence[V]) ([]V, error) {
	ids, err := Order(s)
	if err != nil {
		return nil, err
	}
	out := make([]V, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.items[id].Value)
	}
	return out, nil
}
