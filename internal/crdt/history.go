package crdt

// History is the single-level undo log for one peer. It records only
// locally originated operations, so a peer can only undo what it itself
// produced; there is no redo.
//
// History is owned by the peer's input thread. Like the store's callers it
// assumes one logical thread of control; wrap it externally if that ever
// stops being true.
type History struct {
	store     *Store
	stack     []Operation
	snapshots map[string]Object
	undoing   bool
}

// NewHistory wires an undo log to the store's local-operation callback.
func NewHistory(store *Store) *History {
	h := &History{
		store:     store,
		snapshots: make(map[string]Object),
	}
	store.SetHistoryCallback(h.Record)
	return h
}

// Record pushes a local operation onto the undo stack. While an undo is in
// progress the inverse operations must not become undoable themselves, so
// recording is suppressed.
func (h *History) Record(op Operation) {
	if h.undoing {
		return
	}
	h.stack = append(h.stack, op)
}

// Depth returns the number of undoable operations.
func (h *History) Depth() int { return len(h.stack) }

// SnapshotBeforeMutation captures a deep copy of the object's current
// state, once per burst: later calls for the same id are no-ops until the
// snapshot is cleared, so a drag gesture keeps only its drag-start state.
func (h *History) SnapshotBeforeMutation(id string) {
	if _, ok := h.snapshots[id]; ok {
		return
	}
	obj, ok := h.store.Get(id)
	if !ok {
		return
	}
	h.snapshots[id] = obj.Clone()
}

// ClearSnapshot drops the captured pre-mutation state for id.
func (h *History) ClearSnapshot(id string) {
	delete(h.snapshots, id)
}

// Undo pops the most recent local operation and applies its inverse
// through the store. On an empty stack it is a no-op.
func (h *History) Undo() {
	if len(h.stack) == 0 {
		return
	}
	op := h.stack[len(h.stack)-1]
	h.stack = h.stack[:len(h.stack)-1]

	h.undoing = true
	defer func() { h.undoing = false }()

	switch op.Type {
	case OpAdd:
		if op.Object != nil && op.Object.ID != "" {
			h.store.del(op.Object.ID, true)
		}
	case OpDelete:
		// Resurrect with a fresh timestamp rather than the original one: a
		// re-add carrying the old timestamp would lose to any remote delete
		// that landed in between.
		restored, ok := h.store.Get(op.ID)
		if !ok {
			return
		}
		restored.IsDeleted = false
		h.store.add(restored, true)
	case OpUpdate:
		snap, ok := h.snapshots[op.ID]
		if !ok {
			return
		}
		h.store.update(op.ID, PatchOf(snap), true)
		h.ClearSnapshot(op.ID)
	}
}
