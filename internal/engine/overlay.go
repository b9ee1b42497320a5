package engine

import (
	"github.com/lingolens/lingolens-go/internal/dom"
)

// Tooltip describes the floating translate affordance anchored to a hovered
// element, already clamped into the viewport.
type Tooltip struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label"`
	Badge string  `json:"badge,omitempty"`
}

// Overlay is the sink for engine-owned UI that floats above the page:
// tooltip, selection toolbar, marquee rectangle, and highlight effects. The
// WebSocket bridge forwards these to the browser bootstrap; tests record them.
type Overlay interface {
	ShowTooltip(t Tooltip)
	HideTooltip()
	ShowToolbar(r dom.Rect)
	HideToolbar()
	ShowMarquee(r dom.Rect)
	HideMarquee()
	// Flash smooth-scrolls an element into view and pulses a yellow highlight.
	Flash(id string)
}

// NopOverlay discards everything.
type NopOverlay struct{}

func (NopOverlay) ShowTooltip(Tooltip)     {}
func (NopOverlay) HideTooltip()            {}
func (NopOverlay) ShowToolbar(dom.Rect)    {}
func (NopOverlay) HideToolbar()            {}
func (NopOverlay) ShowMarquee(dom.Rect)    {}
func (NopOverlay) HideMarquee()            {}
func (NopOverlay) Flash(string)            {}

// tooltipFor computes the tooltip position and contents for an element:
// centered above it, clamped inside the viewport, flipped below when there is
// no headroom.
func (e *Engine) tooltipFor(el *dom.Element, ent *Entry) Tooltip {
	r := el.Rect()
	vp := e.doc.Viewport()

	x := r.Left + r.Width()/2
	y := r.Top
	const halfWidth, margin = 60.0, 5.0
	if x-halfWidth < 0 {
		x = halfWidth + margin
	}
	if vp.Width > 0 && x+halfWidth > vp.Width {
		x = vp.Width - halfWidth - margin
	}
	if y < 30 {
		y = r.Bottom + 40
	}

	t := Tooltip{X: x, Y: y, Label: "Translate"}
	switch ent.State {
	case StateTranslating:
		t.Label = "Translating..."
	case StateTranslated:
		t.Label = "Focus in Panel"
		switch ent.Health {
		case HealthOverflow, HealthWrapping:
			t.Badge = "broken"
		case HealthSafe:
			t.Badge = "safe"
		}
	}
	return t
}
