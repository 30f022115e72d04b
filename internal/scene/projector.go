package scene

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/shubhanshu2103/collaborative-whiteboard/internal/crdt"
)

// Mode governs what pointer input creates.
type Mode string

const (
	ModeSelect  Mode = "select"
	ModeDraw    Mode = "draw"
	ModeShape   Mode = "shape"
	ModeConnect Mode = "connect"
	ModeSticky  Mode = "sticky-note"
)

// PreviewLine is the rubber-band line shown while a connector's second
// anchor is being picked.
type PreviewLine struct {
	From crdt.Position
	To   crdt.Position
}

// Projector keeps one render surface per live canvas object. Remote and
// undo operations re-render through the store subscription; local edits
// render on a fast path before the network round-trip returns them.
type Projector struct {
	mu       sync.Mutex
	store    *crdt.Store
	history  *crdt.History
	surfaces map[string]*Surface

	mode        Mode
	shapeKind   crdt.ShapeKind
	connectFrom string
	preview     *PreviewLine

	unsubscribe func()
}

// NewProjector attaches a projector to the store. history may be nil for a
// read-only mirror that never originates edits.
func NewProjector(store *crdt.Store, history *crdt.History) *Projector {
	p := &Projector{
		store:    store,
		history:  history,
		surfaces: make(map[string]*Surface),
		mode:     ModeSelect,
	}
	p.unsubscribe = store.Subscribe(func(objects map[string]crdt.Object, op crdt.Operation, isRemote, isUndo bool) {
		if !isRemote && !isUndo {
			// Local fast path already rendered; the transform reflects the
			// gesture and a re-render would be a no-op.
			return
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		p.applyLocked(op, objects)
	})
	return p
}

// Dispose unsubscribes from the store. The projector must not be used
// afterwards.
func (p *Projector) Dispose() {
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
}

// SetMode switches the pointer tool. kind selects the shape variant for
// ModeShape and is ignored otherwise. Any half-built connector is
// cancelled.
func (p *Projector) SetMode(mode Mode, kind crdt.ShapeKind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setModeLocked(mode, kind)
}

func (p *Projector) setModeLocked(mode Mode, kind crdt.ShapeKind) {
	p.mode = mode
	p.shapeKind = kind
	p.connectFrom = ""
	p.preview = nil
}

// Mode returns the active tool mode.
func (p *Projector) Mode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// Preview returns the rubber-band line while a connection is in progress.
func (p *Projector) Preview() (PreviewLine, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.preview == nil {
		return PreviewLine{}, false
	}
	return *p.preview, true
}

// Surface returns a copy of the render surface for id.
func (p *Projector) Surface(id string) (Surface, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sf, ok := p.surfaces[id]
	if !ok {
		return Surface{}, false
	}
	return *sf, true
}

// SurfaceCount reports how many objects are currently drawn.
func (p *Projector) SurfaceCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.surfaces)
}

// Render projects one object onto its render surface: creates the entry if
// missing, patches it in place otherwise, removes it when the object is
// tombstoned. A displayed-text change on a shape replaces the entry
// outright because the text alters the bounding geometry attached
// connectors depend on. Malformed objects are skipped without disturbing
// other surfaces.
func (p *Projector) Render(obj crdt.Object) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.renderLocked(obj, nil)
}

// RenderAll rebuilds every surface from a store snapshot, used after a
// full-state resync. Connectors render last so their endpoints resolve.
func (p *Projector) RenderAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	objects := p.store.All()
	p.surfaces = make(map[string]*Surface, len(objects))
	for _, obj := range objects {
		if obj.ObjectType != crdt.TypeConnector {
			p.renderLocked(obj, objects)
		}
	}
	for _, obj := range objects {
		if obj.ObjectType == crdt.TypeConnector {
			p.renderLocked(obj, objects)
		}
	}
}

func (p *Projector) applyLocked(op crdt.Operation, objects map[string]crdt.Object) {
	switch op.Type {
	case crdt.OpDelete:
		delete(p.surfaces, op.ID)
		p.refreshConnectorsLocked(op.ID, objects)
	case crdt.OpAdd, crdt.OpUpdate:
		obj, ok := objects[op.TargetID()]
		if !ok {
			return
		}
		p.renderLocked(obj, objects)
	}
}

func (p *Projector) renderLocked(obj crdt.Object, objects map[string]crdt.Object) {
	if obj.IsDeleted {
		if _, ok := p.surfaces[obj.ID]; ok {
			delete(p.surfaces, obj.ID)
			p.refreshConnectorsLocked(obj.ID, objects)
		}
		return
	}
	if !obj.Valid() {
		return
	}

	switch obj.ObjectType {
	case crdt.TypeShape:
		existing, ok := p.surfaces[obj.ID]
		switch {
		case ok && existing.Text != obj.Text:
			p.surfaces[obj.ID] = surfaceFor(obj)
		case ok:
			existing.copyInto(obj)
		default:
			p.surfaces[obj.ID] = surfaceFor(obj)
		}
		p.refreshConnectorsLocked(obj.ID, objects)
	case crdt.TypeSticky:
		if existing, ok := p.surfaces[obj.ID]; ok {
			existing.copyInto(obj)
		} else {
			p.surfaces[obj.ID] = surfaceFor(obj)
		}
		p.refreshConnectorsLocked(obj.ID, objects)
	case crdt.TypePath:
		if _, ok := p.surfaces[obj.ID]; !ok {
			p.surfaces[obj.ID] = surfaceFor(obj)
		}
	case crdt.TypeConnector:
		p.renderConnectorLocked(obj)
	}
}

// renderConnectorLocked recomputes derived endpoint geometry from the
// centers of the referenced surfaces. With either endpoint missing the
// connector stays undrawn; the object is kept in the store and resolves
// once a later render produces the endpoint.
func (p *Projector) renderConnectorLocked(obj crdt.Object) {
	from, okFrom := p.surfaces[obj.FromID]
	to, okTo := p.surfaces[obj.ToID]
	if !okFrom || !okTo {
		delete(p.surfaces, obj.ID)
		return
	}
	sf, ok := p.surfaces[obj.ID]
	if !ok {
		sf = surfaceFor(obj)
		p.surfaces[obj.ID] = sf
	}
	sf.Stroke = obj.Stroke
	sf.HasArrowhead = obj.HasArrowhead
	sf.Label = obj.Label
	sf.From = from.Center()
	sf.To = to.Center()
}

func (p *Projector) refreshConnectorsLocked(id string, objects map[string]crdt.Object) {
	if objects == nil {
		objects = p.store.All()
	}
	for _, o := range objects {
		if o.ObjectType != crdt.TypeConnector || o.IsDeleted {
			continue
		}
		if o.FromID == id || o.ToID == id {
			p.renderConnectorLocked(o)
		}
	}
}

// PointerDown feeds a pointer press into the active tool. targetID names
// the surface under the pointer, empty over blank canvas. It returns the
// id of any object committed by the press.
func (p *Projector) PointerDown(x, y float64, targetID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.mode {
	case ModeShape:
		if p.shapeKind == "" {
			return ""
		}
		id := p.placeShapeLocked(p.shapeKind, x, y)
		p.setModeLocked(ModeSelect, "")
		return id
	case ModeSticky:
		id := p.placeStickyLocked(x, y)
		p.setModeLocked(ModeSelect, "")
		return id
	case ModeConnect:
		target, ok := p.surfaces[targetID]
		if !ok || !anchorable(target.Kind) {
			// Clicked empty space: abandon the half-built connection.
			p.connectFrom = ""
			p.preview = nil
			return ""
		}
		if p.connectFrom == "" {
			p.connectFrom = targetID
			p.preview = &PreviewLine{From: target.Center(), To: crdt.Position{X: x, Y: y}}
			return ""
		}
		var id string
		if p.connectFrom != targetID {
			id = p.placeConnectorLocked(p.connectFrom, targetID)
		}
		p.setModeLocked(ModeSelect, "")
		return id
	}
	return ""
}

// PointerMove tracks the rubber-band preview while connecting.
func (p *Projector) PointerMove(x, y float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mode == ModeConnect && p.preview != nil {
		p.preview.To = crdt.Position{X: x, Y: y}
	}
}

func anchorable(kind crdt.ObjectType) bool {
	return kind == crdt.TypeShape || kind == crdt.TypeSticky
}

func (p *Projector) placeShapeLocked(kind crdt.ShapeKind, x, y float64) string {
	obj := crdt.Object{
		ID:         uuid.NewString(),
		ObjectType: crdt.TypeShape,
		ShapeKind:  kind,
		Position:   &crdt.Position{X: x, Y: y},
		Dimension:  &crdt.Dimension{Width: 100, Height: 60},
		Fill:       "#ffffff",
		Stroke:     "#000000",
		ZIndex:     1,
	}
	p.commitLocked(obj)
	return obj.ID
}

func (p *Projector) placeStickyLocked(x, y float64) string {
	obj := crdt.Object{
		ID:              uuid.NewString(),
		ObjectType:      crdt.TypeSticky,
		Position:        &crdt.Position{X: x, Y: y},
		Dimension:       &crdt.Dimension{Width: 200, Height: 200},
		Text:            "Double click to edit",
		BackgroundColor: "#fef3c7",
		TextColor:       "#1f2937",
		FontSize:        24,
		ZIndex:          1,
	}
	p.commitLocked(obj)
	return obj.ID
}

func (p *Projector) placeConnectorLocked(fromID, toID string) string {
	obj := crdt.Object{
		ID:           uuid.NewString(),
		ObjectType:   crdt.TypeConnector,
		FromID:       fromID,
		ToID:         toID,
		Stroke:       "#000000",
		HasArrowhead: true,
	}
	p.commitLocked(obj)
	return obj.ID
}

// commitLocked is the local-first path: apply to the store, then render
// immediately so the originating peer sees the object before the network
// echoes it.
func (p *Projector) commitLocked(obj crdt.Object) {
	p.store.Add(obj)
	p.renderLocked(obj, nil)
}

// AddStroke commits a freehand path drawn outside the projector's pointer
// tools.
func (p *Projector) AddStroke(pathData json.RawMessage, stroke string, width float64) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	obj := crdt.Object{
		ID:          uuid.NewString(),
		ObjectType:  crdt.TypePath,
		PathData:    append(json.RawMessage(nil), pathData...),
		Stroke:      stroke,
		StrokeWidth: width,
	}
	p.commitLocked(obj)
	return obj.ID
}

// MoveObject applies an interactive move: the surface transform updates
// first, attached connectors re-anchor, then the store records the new
// position. The pre-gesture state is snapshotted for undo.
func (p *Projector) MoveObject(id string, pos crdt.Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sf, ok := p.surfaces[id]
	if !ok || !anchorable(sf.Kind) {
		return
	}
	if p.history != nil {
		p.history.SnapshotBeforeMutation(id)
	}
	sf.Position = pos
	p.refreshConnectorsLocked(id, nil)
	p.store.Update(id, crdt.Patch{Position: &pos})
}

// ResizeObject applies an interactive resize analogously to MoveObject.
func (p *Projector) ResizeObject(id string, dim crdt.Dimension) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sf, ok := p.surfaces[id]
	if !ok || !anchorable(sf.Kind) {
		return
	}
	if p.history != nil {
		p.history.SnapshotBeforeMutation(id)
	}
	sf.Dimension = dim
	p.refreshConnectorsLocked(id, nil)
	p.store.Update(id, crdt.Patch{Dimension: &dim})
}

// EditText commits a text change. Shape surfaces rebuild on the next
// render because the text changes their bounding geometry; sticky notes
// patch in place.
func (p *Projector) EditText(id, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sf, ok := p.surfaces[id]
	if !ok || !anchorable(sf.Kind) {
		return
	}
	if p.history != nil {
		p.history.SnapshotBeforeMutation(id)
	}
	p.store.Update(id, crdt.Patch{Text: &text})
	if obj, ok := p.store.Get(id); ok {
		p.renderLocked(obj, nil)
	}
}
