package lineage

// Snapshot is a fresh full listing of the lineage graph from the backend of
// record, used to drop local nodes the backend no longer knows about.
type Snapshot struct {
	SubsetIDs map[int64]struct{}
	MethodIDs map[int64]struct{}
}

// NewSnapshot builds a snapshot from id listings
func NewSnapshot(subsetIDs, methodIDs []int64) Snapshot {
	snap := Snapshot{
		SubsetIDs: make(map[int64]struct{}, len(subsetIDs)),
		MethodIDs: make(map[int64]struct{}, len(methodIDs)),
	}
	for _, id := range subsetIDs {
		snap.SubsetIDs[id] = struct{}{}
	}
	for _, id := range methodIDs {
		snap.MethodIDs[id] = struct{}{}
	}
	return snap
}

// Reconcile removes local nodes absent from the snapshot, handling
// externally-deleted nodes without crashing on stale local state. Removals
// cascade the same way deletions do, so a method whose applied-on subset
// vanished is dropped too and the graph never holds dangling edges. The root
// subset is always kept. Returns the number of removed subsets and methods.
func (s *Store) Reconcile(snap Snapshot) (removedSubsets, removedMethods int) {
	s.mu.Lock()

	c := newClosure()

	for id := range s.subsets {
		if id == RootSubsetID {
			continue
		}
		if _, ok := snap.SubsetIDs[id]; !ok {
			c.addSubset(s, id)
		}
	}
	for id := range s.methods {
		if _, ok := snap.MethodIDs[id]; !ok {
			c.addMethod(s, id)
		}
	}

	// Detach doomed nodes from surviving neighbors before commit
	for methodID := range c.methods {
		if m, ok := s.methods[methodID]; ok {
			if _, doomed := c.subsets[m.AppliedOn]; !doomed {
				s.removeUsedBy(m.AppliedOn, methodID)
			}
		}
	}
	for subsetID := range c.subsets {
		if sub, ok := s.subsets[subsetID]; ok && sub.ResultedIn != nil {
			if _, doomed := c.methods[*sub.ResultedIn]; !doomed {
				s.removeProduced(*sub.ResultedIn, subsetID)
			}
		}
	}

	events := s.commit(c)
	removedSubsets = len(c.subsets)
	removedMethods = len(c.methods)
	s.mu.Unlock()

	if removedSubsets > 0 || removedMethods > 0 {
		s.logger.Infow("Reconciled lineage graph with server snapshot",
			"removed_subsets", removedSubsets,
			"removed_methods", removedMethods,
		)
	}

	for _, ev := range events {
		s.notify(ev)
	}
	return removedSubsets, removedMethods
}
