package lineage

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/siftlab/sift/errors"
)

// SubscriberChannelBufferSize is the buffer size for subscriber channels
const SubscriberChannelBufferSize = 100

// EventKind enumerates the graph mutations a subscriber can observe
type EventKind string

const (
	EventMethodCreated EventKind = "method_created"
	EventMethodStatus  EventKind = "method_status"
	EventMethodDeleted EventKind = "method_deleted"
	EventSubsetCreated EventKind = "subset_created"
	EventSubsetUpdated EventKind = "subset_updated"
	EventSubsetDeleted EventKind = "subset_deleted"
)

// Event describes one committed mutation of the lineage graph.
// Subscribers receive events after the mutation is visible in the store,
// replacing implicit dependency tracking with an explicit channel.
type Event struct {
	Kind     EventKind    `json:"kind"`
	MethodID int64        `json:"method_id,omitempty"`
	SubsetID int64        `json:"subset_id,omitempty"`
	Status   MethodStatus `json:"status,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// DocumentSelector decides which documents of the parent subset belong to a
// new subset. The predicate is typically cluster or query membership computed
// by the analysis engine.
type DocumentSelector func(doc *Document) bool

// SelectIDs returns a selector matching exactly the given document ids
func SelectIDs(ids ...int64) DocumentSelector {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(doc *Document) bool {
		_, ok := set[doc.ID]
		return ok
	}
}

// SelectAll returns a selector matching every document of the parent subset
func SelectAll() DocumentSelector {
	return func(*Document) bool { return true }
}

// Store is the authoritative in-process representation of one dataset's
// provenance graph: an arena of subset and method nodes keyed by integer id,
// plus explicit adjacency maps maintained only by the store's mutation
// methods. Callers never mutate adjacency directly.
type Store struct {
	mu      sync.RWMutex
	dataset *Dataset

	subsets   map[int64]*Subset
	methods   map[int64]*Method
	documents map[int64]*Document

	// members holds subset membership by document id (membership, not copy)
	members map[int64]map[int64]struct{}

	// usedBy maps a subset id to the methods applied on it;
	// produced maps a method id to the subsets it produced.
	// These are inverses of Method.AppliedOn and Subset.ResultedIn.
	usedBy   map[int64][]int64
	produced map[int64][]int64

	nextSubsetID   int64
	nextMethodID   int64
	nextDocumentID int64

	subscribers []chan Event

	logger *zap.SugaredLogger
}

// NewStore creates a store for the dataset with an empty root subset.
// Documents added afterwards via AddDocument join the root subset.
func NewStore(dataset *Dataset, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Store{
		dataset:      dataset,
		subsets:      make(map[int64]*Subset),
		methods:      make(map[int64]*Method),
		documents:    make(map[int64]*Document),
		members:      make(map[int64]map[int64]struct{}),
		usedBy:       make(map[int64][]int64),
		produced:     make(map[int64][]int64),
		nextSubsetID: RootSubsetID + 1,
		nextMethodID: 1,
		logger:       logger,
	}
	root := &Subset{
		ID:    RootSubsetID,
		Label: dataset.Label,
	}
	s.subsets[RootSubsetID] = root
	s.members[RootSubsetID] = make(map[int64]struct{})
	return s
}

// Dataset returns the dataset this store owns
func (s *Store) Dataset() *Dataset {
	return s.dataset
}

// AddDocument registers a document and places it in the root subset.
// id 0 assigns the next free id. Returns the stored document.
func (s *Store) AddDocument(doc *Document) *Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.ID == 0 {
		s.nextDocumentID++
		doc.ID = s.nextDocumentID
	} else if doc.ID > s.nextDocumentID {
		s.nextDocumentID = doc.ID
	}
	s.documents[doc.ID] = doc
	s.members[RootSubsetID][doc.ID] = struct{}{}
	s.subsets[RootSubsetID].DocumentCount = len(s.members[RootSubsetID])
	return doc
}

// Document returns a document by id
func (s *Store) Document(id int64) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, errors.NewNotFound("document %d", id)
	}
	return doc, nil
}

// Subset returns a snapshot of a subset node by id. Returning a copy keeps
// callers isolated from later mutations that happen under the store lock.
func (s *Store) Subset(id int64) (*Subset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subsets[id]
	if !ok {
		return nil, errors.NewNotFound("subset %d", id)
	}
	out := *sub
	return &out, nil
}

// Method returns a snapshot of a method node by id. Returning a copy keeps
// callers isolated from later lifecycle transitions.
func (s *Store) Method(id int64) (*Method, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.methods[id]
	if !ok {
		return nil, errors.NewNotFound("method %d", id)
	}
	out := *m
	return &out, nil
}

// MethodsOn returns the ids of methods applied on the given subset
func (s *Store) MethodsOn(subsetID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.subsets[subsetID]; !ok {
		return nil, errors.NewNotFound("subset %d", subsetID)
	}
	out := make([]int64, len(s.usedBy[subsetID]))
	copy(out, s.usedBy[subsetID])
	return out, nil
}

// ProducedBy returns the ids of subsets the given method produced
func (s *Store) ProducedBy(methodID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.methods[methodID]; !ok {
		return nil, errors.NewNotFound("method %d", methodID)
	}
	out := make([]int64, len(s.produced[methodID]))
	copy(out, s.produced[methodID])
	return out, nil
}

// Members returns the document ids belonging to a subset
func (s *Store) Members(subsetID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.members[subsetID]
	if !ok {
		return nil, errors.NewNotFound("subset %d", subsetID)
	}
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out, nil
}

// CreateMethod creates a new method in status Created, linked to the subset it
// is applied on. The subset must exist.
func (s *Store) CreateMethod(appliedOn int64, methodType string, parameters json.RawMessage) (*Method, error) {
	s.mu.Lock()

	if _, ok := s.subsets[appliedOn]; !ok {
		s.mu.Unlock()
		return nil, errors.NewNotFound("subset %d", appliedOn)
	}

	now := time.Now()
	m := &Method{
		ID:         s.nextMethodID,
		Type:       methodType,
		Parameters: parameters,
		Status:     StatusCreated,
		AppliedOn:  appliedOn,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.nextMethodID++
	s.methods[m.ID] = m
	s.usedBy[appliedOn] = append(s.usedBy[appliedOn], m.ID)
	out := *m
	s.mu.Unlock()

	s.logger.Debugw("Method created",
		"method_id", out.ID,
		"method_type", methodType,
		"applied_on", appliedOn,
	)

	s.notify(Event{Kind: EventMethodCreated, MethodID: out.ID, SubsetID: appliedOn, Status: StatusCreated})
	return &out, nil
}

// MarkProcessing advances a method from Created to Processing.
// Re-entering Processing is allowed; status never regresses.
func (s *Store) MarkProcessing(methodID int64) error {
	s.mu.Lock()
	m, ok := s.methods[methodID]
	if !ok {
		s.mu.Unlock()
		return errors.NewNotFound("method %d", methodID)
	}
	if m.Status.IsTerminal() {
		s.mu.Unlock()
		return errors.Wrapf(errors.ErrInvariantViolation, "method %d already %s", methodID, m.Status)
	}
	m.process()
	s.mu.Unlock()

	s.notify(Event{Kind: EventMethodStatus, MethodID: methodID, Status: StatusProcessing})
	return nil
}

// MarkFinished advances a method to Finished and attaches its result.
// The result is write-once: finishing a terminal method is an error.
func (s *Store) MarkFinished(methodID int64, result json.RawMessage) error {
	s.mu.Lock()
	m, ok := s.methods[methodID]
	if !ok {
		s.mu.Unlock()
		return errors.NewNotFound("method %d", methodID)
	}
	if m.Status.IsTerminal() {
		s.mu.Unlock()
		return errors.Wrapf(errors.ErrInvariantViolation, "method %d already %s", methodID, m.Status)
	}
	m.finish(result)
	s.mu.Unlock()

	s.notify(Event{Kind: EventMethodStatus, MethodID: methodID, Status: StatusFinished})
	return nil
}

// MarkFailed advances a method to Failed with the engine-reported reason.
// Failed methods keep no produced subsets and are never retried in place.
func (s *Store) MarkFailed(methodID int64, reason string) error {
	s.mu.Lock()
	m, ok := s.methods[methodID]
	if !ok {
		s.mu.Unlock()
		return errors.NewNotFound("method %d", methodID)
	}
	if m.Status.IsTerminal() {
		s.mu.Unlock()
		return errors.Wrapf(errors.ErrInvariantViolation, "method %d already %s", methodID, m.Status)
	}
	m.fail(reason)
	s.mu.Unlock()

	s.notify(Event{Kind: EventMethodStatus, MethodID: methodID, Status: StatusFailed, Error: reason})
	return nil
}

// CreateSubset materializes a new subset produced by the given method. The
// membership is the parent subset's documents matching the selector. A method
// may produce more than one subset (e.g. one per cluster), so repeated calls
// for the same method are allowed. This is the sole way new subsets enter the
// graph besides the root.
func (s *Store) CreateSubset(resultedIn int64, label, description string, selector DocumentSelector) (*Subset, error) {
	s.mu.Lock()

	m, ok := s.methods[resultedIn]
	if !ok {
		s.mu.Unlock()
		return nil, errors.NewNotFound("method %d", resultedIn)
	}

	parentMembers, ok := s.members[m.AppliedOn]
	if !ok {
		s.mu.Unlock()
		return nil, errors.Wrapf(errors.ErrInvalidParent, "method %d applied on missing subset %d", resultedIn, m.AppliedOn)
	}

	methodID := resultedIn
	sub := &Subset{
		ID:          s.nextSubsetID,
		Label:       label,
		Description: description,
		ResultedIn:  &methodID,
	}
	s.nextSubsetID++

	membership := make(map[int64]struct{})
	if selector != nil {
		for docID := range parentMembers {
			if selector(s.documents[docID]) {
				membership[docID] = struct{}{}
			}
		}
	}
	sub.DocumentCount = len(membership)

	s.subsets[sub.ID] = sub
	s.members[sub.ID] = membership
	s.produced[methodID] = append(s.produced[methodID], sub.ID)
	out := *sub
	s.mu.Unlock()

	s.logger.Debugw("Subset created",
		"subset_id", out.ID,
		"resulted_in", methodID,
		"document_count", out.DocumentCount,
	)

	s.notify(Event{Kind: EventSubsetCreated, SubsetID: out.ID, MethodID: methodID})
	return &out, nil
}

// UpdateSubsetInfo edits a subset's label and description. The caller passes
// the version it last read; a stale version is rejected with ErrConflict so
// two clients cannot silently overwrite each other.
func (s *Store) UpdateSubsetInfo(id int64, version int64, label, description string) (*Subset, error) {
	s.mu.Lock()

	sub, ok := s.subsets[id]
	if !ok {
		s.mu.Unlock()
		return nil, errors.NewNotFound("subset %d", id)
	}
	if sub.Version != version {
		s.mu.Unlock()
		return nil, errors.Wrapf(errors.ErrConflict, "subset %d is at version %d, update carried %d", id, sub.Version, version)
	}
	sub.Label = label
	sub.Description = description
	sub.Version++
	out := *sub
	s.mu.Unlock()

	s.notify(Event{Kind: EventSubsetUpdated, SubsetID: id})
	return &out, nil
}

// Subscribe returns a channel that receives graph mutation events.
// The caller is responsible for calling Unsubscribe when done.
// The returned channel is buffered to prevent blocking the notifier.
func (s *Store) Subscribe() chan Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Event, SubscriberChannelBufferSize)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel from the store.
// The channel is NOT closed by this method - callers should close it
// themselves after unsubscribing if needed.
func (s *Store) Unsubscribe(ch chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			return
		}
	}
}

// notify sends an event to all subscribers with a non-blocking send so a slow
// subscriber cannot stall a mutation.
func (s *Store) notify(ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// Channel full, skip
		}
	}
}
