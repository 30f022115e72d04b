// Package scene projects replicated store state onto render surfaces: the
// mutable drawable representation of each live object on one peer's
// screen. It is the only bridge between store contents and a drawable
// canvas, and the place where derived geometry (connector endpoints) is
// computed.
package scene

import (
	"encoding/json"

	"github.com/shubhanshu2103/collaborative-whiteboard/internal/crdt"
)

// Surface is the drawable state for one canvas object. A canvas binding
// consumes these; the projector keeps them consistent with the store.
type Surface struct {
	ID   string
	Kind crdt.ObjectType

	// shape, sticky-note; Position is the center
	Position  crdt.Position
	Dimension crdt.Dimension
	ShapeKind crdt.ShapeKind
	Fill      string
	Stroke    string
	Text      string

	// sticky-note
	BackgroundColor string
	TextColor       string
	FontSize        float64
	Rotation        float64

	// path
	PathData    json.RawMessage
	StrokeWidth float64

	// connector; From/To are derived from the endpoint surfaces and never
	// stored on the connector object itself
	From         crdt.Position
	To           crdt.Position
	HasArrowhead bool
	Label        string

	ZIndex int
}

// Center returns the surface's center point, the anchor for connectors.
func (s *Surface) Center() crdt.Position { return s.Position }

func surfaceFor(obj crdt.Object) *Surface {
	sf := &Surface{
		ID:     obj.ID,
		Kind:   obj.ObjectType,
		ZIndex: obj.ZIndex,
		Stroke: obj.Stroke,
	}
	switch obj.ObjectType {
	case crdt.TypeShape:
		sf.ShapeKind = obj.ShapeKind
		sf.Position = *obj.Position
		sf.Dimension = *obj.Dimension
		sf.Fill = obj.Fill
		sf.Text = obj.Text
	case crdt.TypeSticky:
		sf.Position = *obj.Position
		sf.Dimension = *obj.Dimension
		sf.Text = obj.Text
		sf.BackgroundColor = obj.BackgroundColor
		sf.TextColor = obj.TextColor
		sf.FontSize = obj.FontSize
		sf.Rotation = obj.Rotation
	case crdt.TypePath:
		sf.PathData = append(json.RawMessage(nil), obj.PathData...)
		sf.StrokeWidth = obj.StrokeWidth
	case crdt.TypeConnector:
		sf.HasArrowhead = obj.HasArrowhead
		sf.Label = obj.Label
	}
	return sf
}

// copyInto refreshes a non-structural render: position, size and styling
// change in place without replacing the surface entry.
func (s *Surface) copyInto(obj crdt.Object) {
	s.ZIndex = obj.ZIndex
	s.Stroke = obj.Stroke
	switch obj.ObjectType {
	case crdt.TypeShape:
		s.Position = *obj.Position
		s.Dimension = *obj.Dimension
		s.Fill = obj.Fill
	case crdt.TypeSticky:
		s.Position = *obj.Position
		s.Dimension = *obj.Dimension
		s.Text = obj.Text
		s.BackgroundColor = obj.BackgroundColor
		s.TextColor = obj.TextColor
		s.FontSize = obj.FontSize
		s.Rotation = obj.Rotation
	}
}
