package engine

import (
	"github.com/lingolens/lingolens-go/internal/dom"
	"github.com/lingolens/lingolens-go/internal/protocol"
)

// minMarqueeArea discards drags too small to be a deliberate area selection.
const minMarqueeArea = 100.0

type marqueeState struct {
	active  bool
	drawing bool
	startX  float64
	startY  float64
	rect    dom.Rect
}

// toggleMarquee enters or exits area-selection mode. Entering clears the
// hover affordances; exiting drops any in-progress rectangle.
func (e *Engine) toggleMarquee(active bool) {
	e.marquee.active = active
	if active {
		if e.hovered != nil {
			e.hovered.RemoveClass(classHover)
			e.hovered = nil
		}
		e.overlay.HideTooltip()
		e.hideToolbar()
		return
	}
	e.marquee.drawing = false
	e.overlay.HideMarquee()
}

// MarqueeDown starts drawing the selection rectangle at client coordinates.
func (e *Engine) MarqueeDown(x, y float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.marquee.active {
		return
	}
	e.marquee.drawing = true
	e.marquee.startX, e.marquee.startY = x, y
	e.marquee.rect = dom.Rect{Left: x, Top: y, Right: x, Bottom: y}
	e.overlay.ShowMarquee(e.marquee.rect)
}

// MarqueeMove resizes the selection rectangle.
func (e *Engine) MarqueeMove(x, y float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.marquee.active || !e.marquee.drawing {
		return
	}
	e.marquee.rect = normalizedRect(e.marquee.startX, e.marquee.startY, x, y)
	e.overlay.ShowMarquee(e.marquee.rect)
}

// MarqueeUp finishes the drag. A rectangle of at least minMarqueeArea px²
// batches every candidate it intersects; anything smaller is treated as a
// stray click.
func (e *Engine) MarqueeUp(x, y float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.marquee.active || !e.marquee.drawing {
		return
	}
	e.marquee.drawing = false
	e.overlay.HideMarquee()

	box := normalizedRect(e.marquee.startX, e.marquee.startY, x, y)
	if box.Area() < minMarqueeArea {
		return
	}

	items := e.collectBatch(marqueeTags, func(el *dom.Element) bool {
		return el.Rect().Intersects(box)
	})
	if len(items) == 0 {
		return
	}
	e.post.Post(protocol.BatchTranslateRequest{Payload: items})
}

func normalizedRect(x0, y0, x1, y1 float64) dom.Rect {
	r := dom.Rect{Left: x0, Top: y0, Right: x1, Bottom: y1}
	if r.Left > r.Right {
		r.Left, r.Right = r.Right, r.Left
	}
	if r.Top > r.Bottom {
		r.Top, r.Bottom = r.Bottom, r.Top
	}
	return r
}
