package lineage

import (
	"github.com/siftlab/sift/errors"
)

// NodeKind distinguishes the two node types of the lineage graph
type NodeKind string

const (
	NodeSubset NodeKind = "subset"
	NodeMethod NodeKind = "method"
)

// NodeRef identifies one node of the lineage graph during a walk
type NodeRef struct {
	Kind NodeKind `json:"kind"`
	ID   int64    `json:"id"`
}

// Walk is a lazy, finite, single-use cursor over lineage graph nodes.
// Each Next call takes the store's read lock for one step, so a walk observes
// mutations that commit between steps; nodes deleted mid-walk are skipped.
// A Walk cannot be restarted - create a new one instead.
type Walk struct {
	store    *Store
	frontier []NodeRef
	visited  map[NodeRef]struct{}
	expand   func(s *Store, ref NodeRef) []NodeRef
}

// Next returns the next node in breadth-first order. The second return value
// is false once the walk is exhausted.
func (w *Walk) Next() (NodeRef, bool) {
	w.store.mu.RLock()
	defer w.store.mu.RUnlock()

	for len(w.frontier) > 0 {
		ref := w.frontier[0]
		w.frontier = w.frontier[1:]

		if _, seen := w.visited[ref]; seen {
			continue
		}
		w.visited[ref] = struct{}{}

		// Skip nodes deleted since the walk started
		switch ref.Kind {
		case NodeSubset:
			if _, ok := w.store.subsets[ref.ID]; !ok {
				continue
			}
		case NodeMethod:
			if _, ok := w.store.methods[ref.ID]; !ok {
				continue
			}
		}

		w.frontier = append(w.frontier, w.expand(w.store, ref)...)
		return ref, true
	}
	return NodeRef{}, false
}

// Collect drains the walk and returns all remaining node refs
func (w *Walk) Collect() []NodeRef {
	var out []NodeRef
	for ref, ok := w.Next(); ok; ref, ok = w.Next() {
		out = append(out, ref)
	}
	return out
}

// Ancestors walks from a subset towards the root: the subset itself, the
// method that produced it, the subset that method was applied on, and so on.
// Used for breadcrumb rendering.
func (s *Store) Ancestors(subsetID int64) (*Walk, error) {
	s.mu.RLock()
	_, ok := s.subsets[subsetID]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NewNotFound("subset %d", subsetID)
	}

	return &Walk{
		store:    s,
		frontier: []NodeRef{{Kind: NodeSubset, ID: subsetID}},
		visited:  make(map[NodeRef]struct{}),
		expand: func(s *Store, ref NodeRef) []NodeRef {
			switch ref.Kind {
			case NodeSubset:
				if sub, ok := s.subsets[ref.ID]; ok && sub.ResultedIn != nil {
					return []NodeRef{{Kind: NodeMethod, ID: *sub.ResultedIn}}
				}
			case NodeMethod:
				if m, ok := s.methods[ref.ID]; ok {
					return []NodeRef{{Kind: NodeSubset, ID: m.AppliedOn}}
				}
			}
			return nil
		},
	}, nil
}

// Descendants walks from a subset away from the root in breadth-first order:
// the methods applied on it, the subsets those produced, and so on.
// Used for tree rendering and as the read side of cascade computation.
func (s *Store) Descendants(subsetID int64) (*Walk, error) {
	s.mu.RLock()
	_, ok := s.subsets[subsetID]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NewNotFound("subset %d", subsetID)
	}

	return &Walk{
		store:    s,
		frontier: []NodeRef{{Kind: NodeSubset, ID: subsetID}},
		visited:  make(map[NodeRef]struct{}),
		expand: func(s *Store, ref NodeRef) []NodeRef {
			var next []NodeRef
			switch ref.Kind {
			case NodeSubset:
				for _, methodID := range s.usedBy[ref.ID] {
					next = append(next, NodeRef{Kind: NodeMethod, ID: methodID})
				}
			case NodeMethod:
				for _, subID := range s.produced[ref.ID] {
					next = append(next, NodeRef{Kind: NodeSubset, ID: subID})
				}
			}
			return next
		},
	}, nil
}
