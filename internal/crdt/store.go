package crdt

import "sync"

// Listener is invoked after every successfully applied operation. The
// objects map is a snapshot copy and may be retained by the listener.
type Listener func(objects map[string]Object, op Operation, isRemote, isUndo bool)

// Store is the authoritative local map from object id to canvas object,
// mutated only through operations. Local and remote operations go through
// the identical last-writer-wins gate so replicas converge regardless of
// delivery order.
//
// The map is guarded by a mutex because remote operations arrive on the
// network reader goroutine while local edits happen on the caller's.
type Store struct {
	mu        sync.Mutex
	peerID    string
	clock     int64
	objects   map[string]*Object
	listeners map[int]Listener
	nextSub   int
	emit      func(Operation)
	history   func(Operation)
}

// NewStore creates a store for the given peer. emit is called with every
// locally originated operation for network transmission; it may be nil for
// an offline store.
func NewStore(peerID string, emit func(Operation)) *Store {
	return &Store{
		peerID:    peerID,
		objects:   make(map[string]*Object),
		listeners: make(map[int]Listener),
		emit:      emit,
	}
}

// PeerID returns the id this store stamps on local operations.
func (s *Store) PeerID() string { return s.peerID }

// SetHistoryCallback registers the sink for locally originated operations,
// normally the undo log.
func (s *Store) SetHistoryCallback(fn func(Operation)) {
	s.mu.Lock()
	s.history = fn
	s.mu.Unlock()
}

// Subscribe registers a listener and returns its unsubscribe func.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = l
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Get returns a copy of the object, tombstoned or not.
func (s *Store) Get(id string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[id]
	if !ok {
		return Object{}, false
	}
	return o.Clone(), true
}

// All returns a copy of every stored object, tombstones included. Callers
// filter on IsDeleted.
func (s *Store) All() map[string]Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() map[string]Object {
	out := make(map[string]Object, len(s.objects))
	for id, o := range s.objects {
		out[id] = o.Clone()
	}
	return out
}

// Restore replaces the entire store contents with the given snapshot, used
// by the full-state resync path. It bypasses the merge rule and does not
// notify listeners; callers re-render explicitly.
func (s *Store) Restore(objects map[string]Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = make(map[string]*Object, len(objects))
	for id, o := range objects {
		c := o.Clone()
		s.objects[id] = &c
		if o.Timestamp > s.clock {
			s.clock = o.Timestamp
		}
	}
}

// Add constructs an ADD envelope for the object, stamped with the local
// peer id and the next local timestamp, applies it and emits it.
func (s *Store) Add(obj Object) {
	s.add(obj, false)
}

// Update constructs an UPDATE envelope carrying the partial patch.
func (s *Store) Update(id string, changes Patch) {
	s.update(id, changes, false)
}

// Delete constructs a DELETE envelope. The target keeps all fields and is
// tombstoned, never erased.
func (s *Store) Delete(id string) {
	s.del(id, false)
}

// ApplyRemote applies an operation received from the network using the
// same merge rule as local application.
func (s *Store) ApplyRemote(op Operation) {
	s.mu.Lock()
	if op.Timestamp > s.clock {
		s.clock = op.Timestamp
	}
	applied := s.applyLocked(op)
	var snapshot map[string]Object
	var listeners []Listener
	if applied {
		snapshot = s.snapshotLocked()
		listeners = s.listenersLocked()
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(snapshot, op, true, false)
	}
}

func (s *Store) add(obj Object, isUndo bool) {
	o := obj.Clone()
	s.applyLocal(Operation{Type: OpAdd, Object: &o, PeerID: s.peerID}, isUndo)
}

func (s *Store) update(id string, changes Patch, isUndo bool) {
	s.applyLocal(Operation{Type: OpUpdate, ID: id, Changes: &changes, PeerID: s.peerID}, isUndo)
}

func (s *Store) del(id string, isUndo bool) {
	s.applyLocal(Operation{Type: OpDelete, ID: id, PeerID: s.peerID}, isUndo)
}

func (s *Store) applyLocal(op Operation, isUndo bool) {
	s.mu.Lock()
	s.clock++
	op.Timestamp = s.clock
	applied := s.applyLocked(op)
	var snapshot map[string]Object
	var listeners []Listener
	history := s.history
	if applied {
		snapshot = s.snapshotLocked()
		listeners = s.listenersLocked()
	}
	emit := s.emit
	s.mu.Unlock()

	if !applied {
		// Stale against the stored object; dropped silently.
		return
	}
	if emit != nil {
		emit(op)
	}
	if history != nil && !isUndo {
		history(op)
	}
	for _, l := range listeners {
		l(snapshot, op, false, isUndo)
	}
}

func (s *Store) listenersLocked() []Listener {
	out := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l)
	}
	return out
}

// applyLocked is the single merge rule: an operation lands only if no
// object is stored under its id, or the stored timestamp is <= the
// operation's. Updates overwrite only the fields present in the patch but
// the whole update is gated behind that one comparison; concurrent updates
// to disjoint fields are not merged field-by-field, the later one wins
// outright.
func (s *Store) applyLocked(op Operation) bool {
	switch op.Type {
	case OpAdd:
		if op.Object == nil || op.Object.ID == "" {
			return false
		}
		existing, ok := s.objects[op.Object.ID]
		if ok && existing.Timestamp > op.Timestamp {
			return false
		}
		o := op.Object.Clone()
		o.Timestamp = op.Timestamp
		if op.PeerID != "" {
			o.PeerID = op.PeerID
		}
		s.objects[o.ID] = &o
		return true
	case OpUpdate:
		existing, ok := s.objects[op.ID]
		if !ok || existing.Timestamp > op.Timestamp || op.Changes == nil {
			return false
		}
		op.Changes.apply(existing)
		existing.Timestamp = op.Timestamp
		return true
	case OpDelete:
		existing, ok := s.objects[op.ID]
		if !ok || existing.Timestamp > op.Timestamp {
			return false
		}
		existing.IsDeleted = true
		existing.Timestamp = op.Timestamp
		return true
	}
	return false
}
