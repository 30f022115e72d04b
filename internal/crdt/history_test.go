package crdt

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestUndoAddTombstonesObject(t *testing.T) {
	s := NewStore("peer-a", nil)
	h := NewHistory(s)

	s.Add(newShape("s1", 0, 0))
	assert.Equal(t, h.Depth(), 1)

	h.Undo()
	got, ok := s.Get("s1")
	assert.Equal(t, ok, true)
	assert.Equal(t, got.IsDeleted, true)
	assert.Equal(t, h.Depth(), 0)
}

func TestUndoUpdateRevertsToSnapshot(t *testing.T) {
	s := NewStore("peer-a", nil)
	h := NewHistory(s)

	s.Add(newShape("s1", 1, 2))
	h.SnapshotBeforeMutation("s1")
	s.Update("s1", Patch{Position: &Position{X: 10, Y: 20}})

	got, _ := s.Get("s1")
	assert.Equal(t, got.Position.X, 10.0)

	h.Undo()
	got, _ = s.Get("s1")
	assert.Equal(t, got.Position.X, 1.0)
	assert.Equal(t, got.Position.Y, 2.0)
}

// A drag gesture snapshots once: repeated snapshot calls before the first
// is cleared keep the drag-start state.
func TestSnapshotCapturesOnlyGestureStart(t *testing.T) {
	s := NewStore("peer-a", nil)
	h := NewHistory(s)

	s.Add(newShape("s1", 1, 1))
	h.SnapshotBeforeMutation("s1")
	s.Update("s1", Patch{Position: &Position{X: 5, Y: 5}})
	h.SnapshotBeforeMutation("s1") // no-op, snapshot already held
	s.Update("s1", Patch{Position: &Position{X: 9, Y: 9}})

	h.Undo() // pops the second update, reverts to gesture start
	got, _ := s.Get("s1")
	assert.Equal(t, got.Position.X, 1.0)
}

func TestUndoDeleteResurrectsWithFreshTimestamp(t *testing.T) {
	s := NewStore("peer-a", nil)
	h := NewHistory(s)

	s.Add(newShape("s1", 0, 0))
	s.Delete("s1")
	deleted, _ := s.Get("s1")
	assert.Equal(t, deleted.IsDeleted, true)

	h.Undo()
	got, _ := s.Get("s1")
	assert.Equal(t, got.IsDeleted, false)
	if got.Timestamp <= deleted.Timestamp {
		t.Fatalf("resurrection must carry a fresh timestamp: %d <= %d", got.Timestamp, deleted.Timestamp)
	}
}

func TestUndoEmptyStackIsNoop(t *testing.T) {
	s := NewStore("peer-a", nil)
	h := NewHistory(s)
	h.Undo()
	assert.Equal(t, h.Depth(), 0)
}

// Inverse operations applied during an undo must not be recorded as
// undoable themselves.
func TestUndoIsNotRecorded(t *testing.T) {
	s := NewStore("peer-a", nil)
	h := NewHistory(s)

	s.Add(newShape("s1", 0, 0))
	s.Add(newShape("s2", 0, 0))
	assert.Equal(t, h.Depth(), 2)

	h.Undo()
	assert.Equal(t, h.Depth(), 1)
	h.Undo()
	assert.Equal(t, h.Depth(), 0)
}

// Remote operations are never undoable: a peer only reverses its own edits.
func TestRemoteOperationsNotRecorded(t *testing.T) {
	s := NewStore("peer-a", nil)
	h := NewHistory(s)

	s.ApplyRemote(Operation{Type: OpAdd, Object: ptrObj(newShape("r1", 0, 0)), Timestamp: 10, PeerID: "peer-b"})
	assert.Equal(t, h.Depth(), 0)
}

// Undo inverses still reach the network emit callback so other peers
// observe the reversal.
func TestUndoEmitsInverseOperation(t *testing.T) {
	var emitted []Operation
	s := NewStore("peer-a", func(op Operation) { emitted = append(emitted, op) })
	h := NewHistory(s)

	s.Add(newShape("s1", 0, 0))
	h.Undo()

	assert.Equal(t, len(emitted), 2)
	assert.Equal(t, emitted[1].Type, OpDelete)
	assert.Equal(t, emitted[1].ID, "s1")
}
