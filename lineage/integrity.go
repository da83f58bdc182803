package lineage

import (
	"github.com/siftlab/sift/errors"
)

// CheckIntegrity verifies the structural invariants of the graph:
//   - every non-root subset has exactly one producing method, and that
//     method's produced list contains it (resultedIn/produced are inverses)
//   - every method's applied-on subset exists and lists it in usedBy
//     (appliedOn/usedBy are inverses)
//   - a breadth-first walk from the root reaches every subset exactly once,
//     so the graph is a connected DAG rooted at the root subset
func (s *Store) CheckIntegrity() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, sub := range s.subsets {
		if sub.IsRoot() {
			if sub.ResultedIn != nil {
				return errors.Wrap(errors.ErrInvariantViolation, "root subset has a producing method")
			}
			continue
		}
		if sub.ResultedIn == nil {
			return errors.Wrapf(errors.ErrInvariantViolation, "subset %d has no producing method", id)
		}
		if _, ok := s.methods[*sub.ResultedIn]; !ok {
			return errors.Wrapf(errors.ErrInvariantViolation, "subset %d produced by missing method %d", id, *sub.ResultedIn)
		}
		if !containsID(s.produced[*sub.ResultedIn], id) {
			return errors.Wrapf(errors.ErrInvariantViolation, "method %d does not list subset %d as produced", *sub.ResultedIn, id)
		}
	}

	for id, m := range s.methods {
		if _, ok := s.subsets[m.AppliedOn]; !ok {
			return errors.Wrapf(errors.ErrInvariantViolation, "method %d applied on missing subset %d", id, m.AppliedOn)
		}
		if !containsID(s.usedBy[m.AppliedOn], id) {
			return errors.Wrapf(errors.ErrInvariantViolation, "subset %d does not list method %d as used", m.AppliedOn, id)
		}
		for _, subID := range s.produced[id] {
			sub, ok := s.subsets[subID]
			if !ok {
				return errors.Wrapf(errors.ErrInvariantViolation, "method %d produced missing subset %d", id, subID)
			}
			if sub.ResultedIn == nil || *sub.ResultedIn != id {
				return errors.Wrapf(errors.ErrInvariantViolation, "subset %d does not point back to producing method %d", subID, id)
			}
		}
	}

	// BFS from root must visit every subset exactly once
	visited := make(map[int64]struct{})
	frontier := []int64{RootSubsetID}
	for len(frontier) > 0 {
		subID := frontier[0]
		frontier = frontier[1:]
		if _, seen := visited[subID]; seen {
			return errors.Wrapf(errors.ErrInvariantViolation, "subset %d reachable by more than one path", subID)
		}
		visited[subID] = struct{}{}
		for _, methodID := range s.usedBy[subID] {
			frontier = append(frontier, s.produced[methodID]...)
		}
	}
	if len(visited) != len(s.subsets) {
		return errors.Wrapf(errors.ErrInvariantViolation, "walk from root visited %d of %d subsets", len(visited), len(s.subsets))
	}

	return nil
}

func containsID(list []int64, id int64) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
