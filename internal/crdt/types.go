// Package crdt holds the replicated scene state for one peer: the object
// model shared over the wire, a last-writer-wins object store, and the
// local undo log.
package crdt

import "encoding/json"

type ObjectType string

const (
	TypeShape     ObjectType = "shape"
	TypeConnector ObjectType = "connector"
	TypePath      ObjectType = "path"
	TypeSticky    ObjectType = "sticky-note"
)

type ShapeKind string

const (
	Rectangle     ShapeKind = "rectangle"
	Ellipse       ShapeKind = "ellipse"
	Diamond       ShapeKind = "diamond"
	Parallelogram ShapeKind = "parallelogram"
	TextShape     ShapeKind = "text"
)

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Dimension struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Object is one replicated canvas object. The variant is discriminated by
// ObjectType; fields that do not belong to the variant stay at their zero
// value and are omitted on the wire. Position is always the object center.
type Object struct {
	ID         string     `json:"id"`
	ObjectType ObjectType `json:"objectType"`
	Timestamp  int64      `json:"timestamp"`
	PeerID     string     `json:"peerId"`
	ZIndex     int        `json:"zIndex"`
	IsDeleted  bool       `json:"isDeleted,omitempty"`

	// shape, sticky-note
	ShapeKind ShapeKind  `json:"shapeType,omitempty"`
	Position  *Position  `json:"position,omitempty"`
	Dimension *Dimension `json:"dimension,omitempty"`
	Fill      string     `json:"fill,omitempty"`
	Stroke    string     `json:"stroke,omitempty"`
	Text      string     `json:"text,omitempty"`

	// connector; its geometry is never stored, only the endpoint ids
	FromID       string `json:"fromId,omitempty"`
	ToID         string `json:"toId,omitempty"`
	HasArrowhead bool   `json:"hasArrowhead,omitempty"`
	Label        string `json:"label,omitempty"`

	// path
	PathData    json.RawMessage `json:"pathData,omitempty"`
	StrokeWidth float64         `json:"strokeWidth,omitempty"`

	// sticky-note
	BackgroundColor string  `json:"backgroundColor,omitempty"`
	TextColor       string  `json:"textColor,omitempty"`
	FontSize        float64 `json:"fontSize,omitempty"`
	Rotation        float64 `json:"rotation,omitempty"`
}

// Clone returns a deep copy. Stored objects are never aliased outside the
// store, so merges cannot be observed half-applied.
func (o Object) Clone() Object {
	c := o
	if o.Position != nil {
		p := *o.Position
		c.Position = &p
	}
	if o.Dimension != nil {
		d := *o.Dimension
		c.Dimension = &d
	}
	if o.PathData != nil {
		c.PathData = append(json.RawMessage(nil), o.PathData...)
	}
	return c
}

// Valid reports whether the object carries the geometry its variant needs
// to be rendered. Objects failing this are still merged and stored; the
// projector skips them.
func (o Object) Valid() bool {
	if o.ID == "" {
		return false
	}
	switch o.ObjectType {
	case TypeShape, TypeSticky:
		return o.Position != nil && o.Dimension != nil
	case TypeConnector:
		return o.FromID != "" && o.ToID != ""
	case TypePath:
		return len(o.PathData) > 0
	}
	return false
}

// Patch is a partial object: only non-nil fields are written by an Update.
type Patch struct {
	ZIndex          *int            `json:"zIndex,omitempty"`
	IsDeleted       *bool           `json:"isDeleted,omitempty"`
	ShapeKind       *ShapeKind      `json:"shapeType,omitempty"`
	Position        *Position       `json:"position,omitempty"`
	Dimension       *Dimension      `json:"dimension,omitempty"`
	Fill            *string         `json:"fill,omitempty"`
	Stroke          *string         `json:"stroke,omitempty"`
	Text            *string         `json:"text,omitempty"`
	FromID          *string         `json:"fromId,omitempty"`
	ToID            *string         `json:"toId,omitempty"`
	HasArrowhead    *bool           `json:"hasArrowhead,omitempty"`
	Label           *string         `json:"label,omitempty"`
	PathData        json.RawMessage `json:"pathData,omitempty"`
	StrokeWidth     *float64        `json:"strokeWidth,omitempty"`
	BackgroundColor *string         `json:"backgroundColor,omitempty"`
	TextColor       *string         `json:"textColor,omitempty"`
	FontSize        *float64        `json:"fontSize,omitempty"`
	Rotation        *float64        `json:"rotation,omitempty"`
}

func (p Patch) apply(o *Object) {
	if p.ZIndex != nil {
		o.ZIndex = *p.ZIndex
	}
	if p.IsDeleted != nil {
		o.IsDeleted = *p.IsDeleted
	}
	if p.ShapeKind != nil {
		o.ShapeKind = *p.ShapeKind
	}
	if p.Position != nil {
		pos := *p.Position
		o.Position = &pos
	}
	if p.Dimension != nil {
		dim := *p.Dimension
		o.Dimension = &dim
	}
	if p.Fill != nil {
		o.Fill = *p.Fill
	}
	if p.Stroke != nil {
		o.Stroke = *p.Stroke
	}
	if p.Text != nil {
		o.Text = *p.Text
	}
	if p.FromID != nil {
		o.FromID = *p.FromID
	}
	if p.ToID != nil {
		o.ToID = *p.ToID
	}
	if p.HasArrowhead != nil {
		o.HasArrowhead = *p.HasArrowhead
	}
	if p.Label != nil {
		o.Label = *p.Label
	}
	if p.PathData != nil {
		o.PathData = append(json.RawMessage(nil), p.PathData...)
	}
	if p.StrokeWidth != nil {
		o.StrokeWidth = *p.StrokeWidth
	}
	if p.BackgroundColor != nil {
		o.BackgroundColor = *p.BackgroundColor
	}
	if p.TextColor != nil {
		o.TextColor = *p.TextColor
	}
	if p.FontSize != nil {
		o.FontSize = *p.FontSize
	}
	if p.Rotation != nil {
		o.Rotation = *p.Rotation
	}
}

// PatchOf builds a patch covering every variant field of o. Reverting to a
// snapshot is expressed as an update carrying such a patch.
func PatchOf(o Object) Patch {
	o = o.Clone()
	return Patch{
		ZIndex:          &o.ZIndex,
		IsDeleted:       &o.IsDeleted,
		ShapeKind:       &o.ShapeKind,
		Position:        o.Position,
		Dimension:       o.Dimension,
		Fill:            &o.Fill,
		Stroke:          &o.Stroke,
		Text:            &o.Text,
		FromID:          &o.FromID,
		ToID:            &o.ToID,
		HasArrowhead:    &o.HasArrowhead,
		Label:           &o.Label,
		PathData:        o.PathData,
		StrokeWidth:     &o.StrokeWidth,
		BackgroundColor: &o.BackgroundColor,
		TextColor:       &o.TextColor,
		FontSize:        &o.FontSize,
		Rotation:        &o.Rotation,
	}
}

type OpType string

const (
	OpAdd    OpType = "ADD"
	OpUpdate OpType = "UPDATE"
	OpDelete OpType = "DELETE"
)

// Operation is the unit of replication. Timestamp and PeerID live on the
// envelope; the merge rule compares the envelope timestamp against the
// stored object's timestamp.
type Operation struct {
	Type      OpType  `json:"type"`
	Object    *Object `json:"object,omitempty"`  // ADD
	ID        string  `json:"id,omitempty"`      // UPDATE, DELETE
	Changes   *Patch  `json:"changes,omitempty"` // UPDATE
	Timestamp int64   `json:"timestamp"`
	PeerID    string  `json:"peerId"`
}

// TargetID returns the id of the object the operation addresses.
func (op Operation) TargetID() string {
	if op.Type == OpAdd {
		if op.Object == nil {
			return ""
		}
		return op.Object.ID
	}
	return op.ID
}
