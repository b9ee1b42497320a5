package engine

import (
	"github.com/lingolens/lingolens-go/internal/dom"
	"github.com/lingolens/lingolens-go/internal/protocol"
)

// layout error labels as reported to the host.
const (
	errOverflow = "Overflow"
	errWrapping = "Text Wrapping"
)

// classifyLayout compares post-translation measurements against the captured
// originals. Overflow wins over wrapping; safe means both checks failed.
// Wrapping uses a heuristic for inline-ish elements that broke onto a new
// line: height grew by more than half and the element started under 50px tall.
func classifyLayout(orig, cur dom.Metrics) Health {
	if cur.ScrollWidth > cur.Width && cur.Width > 0 {
		return HealthOverflow
	}
	base := orig.Height
	if base <= 0 {
		base = 1
	}
	growth := (cur.Height - orig.Height) / base
	if growth > 0.5 && orig.Height < 50 {
		return HealthWrapping
	}
	return HealthSafe
}

// scheduleMeasure queues a layout-health measurement after the reflow delay.
// Measurement never runs synchronously in the response handler: the browser
// must lay the new text out first and report fresh geometry.
func (e *Engine) scheduleMeasure(id string) {
	e.sched.After(e.cfg.MeasureDelay, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.measure(id)
	})
}

func (e *Engine) measure(id string) {
	el := e.doc.ResolveID(id)
	if el == nil || !el.HasMetrics() {
		return
	}
	ent, ok := e.entries[id]
	if !ok || !ent.HasOriginalMetrics {
		return
	}

	health := classifyLayout(ent.OriginalMetrics, el.Metrics())
	ent.Health = health

	if health == HealthSafe {
		el.RemoveClass(classLayoutError)
		el.RemoveAttr(attrLayoutErr)
		el.SetAttr(attrLayoutSafe, "true")
		return
	}

	// The error badge is positioned against the element, which therefore
	// needs a positioning context.
	pos := el.StyleProp("position")
	if pos == "" || pos == "static" {
		el.SetStyleProp("position", "relative")
	}

	errType, dataValue := errOverflow, "Overflow"
	if health == HealthWrapping {
		errType, dataValue = errWrapping, "Wrapping"
	}
	el.AddClass(classLayoutError)
	el.RemoveAttr(attrLayoutSafe)
	el.SetAttr(attrLayoutErr, dataValue)
	el.SetAttr("title", "Layout Break Detected: "+errType)

	e.post.Post(protocol.LayoutErrorDetected{
		ID:        id,
		ErrorType: dataValue,
		Text:      ent.Translated,
	})
}
