package lineage

import (
	"github.com/siftlab/sift/errors"
)

// closure collects the full set of nodes a deletion must remove: deleting a
// method removes every subset it produced, which in turn removes the methods
// applied on those subsets, recursively. The closure is computed in full
// before anything is removed, so a partial deletion can never leave dangling
// edges - the commit is a single operation under the store lock.
type closure struct {
	methods map[int64]struct{}
	subsets map[int64]struct{}
}

func newClosure() *closure {
	return &closure{
		methods: make(map[int64]struct{}),
		subsets: make(map[int64]struct{}),
	}
}

// addMethod expands the closure from a method node.
// Requires s.mu held.
func (c *closure) addMethod(s *Store, methodID int64) {
	if _, seen := c.methods[methodID]; seen {
		return
	}
	c.methods[methodID] = struct{}{}
	for _, subsetID := range s.produced[methodID] {
		c.addSubset(s, subsetID)
	}
}

// addSubset expands the closure from a subset node.
// Requires s.mu held.
func (c *closure) addSubset(s *Store, subsetID int64) {
	if _, seen := c.subsets[subsetID]; seen {
		return
	}
	c.subsets[subsetID] = struct{}{}
	for _, methodID := range s.usedBy[subsetID] {
		c.addMethod(s, methodID)
	}
}

// DeleteMethod removes a method and, cascading, every subset it produced and
// their own outgoing methods. Deleting an unknown or already-deleted id
// returns ErrNotFound, never a silent no-op.
func (s *Store) DeleteMethod(id int64) error {
	s.mu.Lock()

	m, ok := s.methods[id]
	if !ok {
		s.mu.Unlock()
		return errors.NewNotFound("method %d", id)
	}

	c := newClosure()
	c.addMethod(s, id)

	// The applied-on subset survives; detach the doomed method from it
	s.removeUsedBy(m.AppliedOn, id)
	events := s.commit(c)
	s.mu.Unlock()

	s.logger.Infow("Method deleted",
		"method_id", id,
		"cascaded_methods", len(c.methods),
		"cascaded_subsets", len(c.subsets),
	)

	for _, ev := range events {
		s.notify(ev)
	}
	return nil
}

// DeleteSubset removes a subset and, cascading, every method applied on it
// and everything those methods produced. The root subset cannot be deleted.
func (s *Store) DeleteSubset(id int64) error {
	s.mu.Lock()

	sub, ok := s.subsets[id]
	if !ok {
		s.mu.Unlock()
		return errors.NewNotFound("subset %d", id)
	}
	if sub.IsRoot() {
		s.mu.Unlock()
		return errors.Wrap(errors.ErrInvariantViolation, "cannot delete the root subset")
	}

	c := newClosure()
	c.addSubset(s, id)

	// The producing method survives; detach the doomed subset from its
	// produced list
	if sub.ResultedIn != nil {
		s.removeProduced(*sub.ResultedIn, id)
	}
	events := s.commit(c)
	s.mu.Unlock()

	s.logger.Infow("Subset deleted",
		"subset_id", id,
		"cascaded_methods", len(c.methods),
		"cascaded_subsets", len(c.subsets),
	)

	for _, ev := range events {
		s.notify(ev)
	}
	return nil
}

// commit removes every node in the closure from the arena and adjacency maps.
// Requires s.mu held. Returns the events to emit after the lock is released.
func (s *Store) commit(c *closure) []Event {
	events := make([]Event, 0, len(c.methods)+len(c.subsets))
	for methodID := range c.methods {
		delete(s.methods, methodID)
		delete(s.produced, methodID)
		events = append(events, Event{Kind: EventMethodDeleted, MethodID: methodID})
	}
	for subsetID := range c.subsets {
		delete(s.subsets, subsetID)
		delete(s.members, subsetID)
		delete(s.usedBy, subsetID)
		events = append(events, Event{Kind: EventSubsetDeleted, SubsetID: subsetID})
	}
	return events
}

// removeUsedBy detaches a method from a subset's usedBy list.
// Requires s.mu held.
func (s *Store) removeUsedBy(subsetID, methodID int64) {
	list := s.usedBy[subsetID]
	for i, id := range list {
		if id == methodID {
			s.usedBy[subsetID] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// removeProduced detaches a subset from a method's produced list.
// Requires s.mu held.
func (s *Store) removeProduced(methodID, subsetID int64) {
	list := s.produced[methodID]
	for i, id := range list {
		if id == subsetID {
			s.produced[methodID] = append(list[:i], list[i+1:]...)
			return
		}
	}
}
