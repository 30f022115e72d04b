package crdt

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func newShape(id string, x, y float64) Object {
	return Object{
		ID:         id,
		ObjectType: TypeShape,
		ShapeKind:  Rectangle,
		Position:   &Position{X: x, Y: y},
		Dimension:  &Dimension{Width: 100, Height: 60},
		Fill:       "#ffffff",
		Stroke:     "#000000",
		ZIndex:     1,
	}
}

func strptr(s string) *string { return &s }

func TestAddAndGet(t *testing.T) {
	s := NewStore("peer-a", nil)
	s.Add(newShape("s1", 10, 20))

	got, ok := s.Get("s1")
	assert.Equal(t, ok, true)
	assert.Equal(t, got.PeerID, "peer-a")
	assert.Equal(t, got.Position.X, 10.0)
	assert.Equal(t, got.Timestamp, int64(1))
}

func TestLocalTimestampsMonotonic(t *testing.T) {
	s := NewStore("peer-a", nil)
	s.Add(newShape("s1", 0, 0))
	s.Add(newShape("s2", 0, 0))

	o1, _ := s.Get("s1")
	o2, _ := s.Get("s2")
	if o2.Timestamp <= o1.Timestamp {
		t.Fatalf("timestamps not monotonic: %d then %d", o1.Timestamp, o2.Timestamp)
	}

	// Observing a remote timestamp advances the local clock past it.
	s.ApplyRemote(Operation{Type: OpAdd, Object: ptrObj(newShape("r1", 0, 0)), Timestamp: 100, PeerID: "peer-b"})
	s.Add(newShape("s3", 0, 0))
	o3, _ := s.Get("s3")
	if o3.Timestamp <= 100 {
		t.Fatalf("local clock did not advance past remote timestamp: %d", o3.Timestamp)
	}
}

func ptrObj(o Object) *Object { return &o }

func TestStaleUpdateRejected(t *testing.T) {
	s := NewStore("peer-a", nil)
	s.ApplyRemote(Operation{Type: OpAdd, Object: ptrObj(newShape("s1", 0, 0)), Timestamp: 1, PeerID: "peer-b"})
	s.ApplyRemote(Operation{
		Type: OpUpdate, ID: "s1", Timestamp: 5, PeerID: "peer-b",
		Changes: &Patch{Position: &Position{X: 1}},
	})
	s.ApplyRemote(Operation{
		Type: OpUpdate, ID: "s1", Timestamp: 3, PeerID: "peer-c",
		Changes: &Patch{Position: &Position{X: 2}},
	})

	got, _ := s.Get("s1")
	assert.Equal(t, got.Position.X, 1.0)
	assert.Equal(t, got.Timestamp, int64(5))
}

func TestUpdateMissingObjectIsNoop(t *testing.T) {
	s := NewStore("peer-a", nil)
	s.ApplyRemote(Operation{
		Type: OpUpdate, ID: "ghost", Timestamp: 5, PeerID: "peer-b",
		Changes: &Patch{Fill: strptr("#ff0000")},
	})
	_, ok := s.Get("ghost")
	assert.Equal(t, ok, false)
}

func TestIdempotentReplay(t *testing.T) {
	add := Operation{Type: OpAdd, Object: ptrObj(newShape("s1", 3, 4)), Timestamp: 1, PeerID: "peer-b"}
	upd := Operation{Type: OpUpdate, ID: "s1", Timestamp: 2, PeerID: "peer-b", Changes: &Patch{Fill: strptr("#123456")}}
	del := Operation{Type: OpDelete, ID: "s1", Timestamp: 3, PeerID: "peer-b"}

	once := NewStore("peer-a", nil)
	twice := NewStore("peer-a", nil)
	for _, op := range []Operation{add, upd, del} {
		once.ApplyRemote(op)
		twice.ApplyRemote(op)
		twice.ApplyRemote(op)
	}
	assert.Equal(t, once.All(), twice.All())
}

func TestTombstonePersists(t *testing.T) {
	s := NewStore("peer-a", nil)
	s.Add(newShape("s1", 0, 0))
	s.Delete("s1")

	got, ok := s.Get("s1")
	assert.Equal(t, ok, true)
	assert.Equal(t, got.IsDeleted, true)
	assert.Equal(t, got.Position.X, 0.0) // other fields preserved

	all := s.All()
	_, ok = all["s1"]
	assert.Equal(t, ok, true)
}

// Two replicas receiving the same operations converge even when the
// streams interleave differently, as long as each connection's FIFO order
// (an object's ADD before its later edits) holds.
func TestConvergenceAcrossOrders(t *testing.T) {
	addX := Operation{Type: OpAdd, Object: ptrObj(newShape("x", 0, 0)), Timestamp: 1, PeerID: "peer-a"}
	addY := Operation{Type: OpAdd, Object: ptrObj(newShape("y", 9, 9)), Timestamp: 2, PeerID: "peer-b"}
	updX1 := Operation{Type: OpUpdate, ID: "x", Timestamp: 3, PeerID: "peer-a", Changes: &Patch{Fill: strptr("#0000ff")}}
	updX2 := Operation{Type: OpUpdate, ID: "x", Timestamp: 4, PeerID: "peer-b", Changes: &Patch{Fill: strptr("#ff0000")}}
	delY := Operation{Type: OpDelete, ID: "y", Timestamp: 5, PeerID: "peer-a"}

	orders := [][]Operation{
		{addX, addY, updX1, updX2, delY},
		{addY, addX, updX2, updX1, delY},
		{addX, updX1, addY, delY, updX2},
	}

	var want map[string]Object
	for i, ops := range orders {
		s := NewStore("observer", nil)
		for _, op := range ops {
			s.ApplyRemote(op)
		}
		if i == 0 {
			want = s.All()
			continue
		}
		assert.Equal(t, s.All(), want)
	}

	x := want["x"]
	assert.Equal(t, x.Fill, "#ff0000")
	assert.Equal(t, want["y"].IsDeleted, true)
}

func TestEmitOnlyForAppliedLocalOps(t *testing.T) {
	var emitted []Operation
	s := NewStore("peer-a", func(op Operation) { emitted = append(emitted, op) })

	s.Add(newShape("s1", 0, 0))
	assert.Equal(t, len(emitted), 1)
	assert.Equal(t, emitted[0].Type, OpAdd)
	assert.Equal(t, emitted[0].PeerID, "peer-a")

	// Remote operations never re-enter the network.
	s.ApplyRemote(Operation{Type: OpAdd, Object: ptrObj(newShape("r1", 0, 0)), Timestamp: 50, PeerID: "peer-b"})
	assert.Equal(t, len(emitted), 1)

	// A local update against a missing object is dropped, not emitted.
	s.Update("ghost", Patch{Fill: strptr("#00ff00")})
	assert.Equal(t, len(emitted), 1)
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	s := NewStore("peer-a", nil)

	var calls int
	var lastRemote bool
	unsub := s.Subscribe(func(objects map[string]Object, op Operation, isRemote, isUndo bool) {
		calls++
		lastRemote = isRemote
		if _, ok := objects[op.TargetID()]; !ok {
			t.Errorf("listener snapshot missing %q", op.TargetID())
		}
	})

	s.Add(newShape("s1", 0, 0))
	assert.Equal(t, calls, 1)
	assert.Equal(t, lastRemote, false)

	s.ApplyRemote(Operation{Type: OpAdd, Object: ptrObj(newShape("s2", 0, 0)), Timestamp: 10, PeerID: "peer-b"})
	assert.Equal(t, calls, 2)
	assert.Equal(t, lastRemote, true)

	unsub()
	s.Add(newShape("s3", 0, 0))
	assert.Equal(t, calls, 2)
}

func TestRestoreRoundTrip(t *testing.T) {
	s := NewStore("peer-a", nil)
	s.Add(newShape("s1", 1, 2))
	s.Delete("s1")
	s.Add(newShape("s2", 3, 4))

	data, err := EncodeState(s.All())
	assert.Equal(t, err, nil)

	decoded, err := DecodeState(data)
	assert.Equal(t, err, nil)

	other := NewStore("peer-b", nil)
	other.Restore(decoded)
	assert.Equal(t, other.All(), s.All())

	// The restored clock is past every snapshot timestamp.
	other.Add(newShape("s3", 0, 0))
	o3, _ := other.Get("s3")
	s1, _ := s.Get("s1")
	if o3.Timestamp <= s1.Timestamp {
		t.Fatalf("restored clock not advanced: %d <= %d", o3.Timestamp, s1.Timestamp)
	}
}
