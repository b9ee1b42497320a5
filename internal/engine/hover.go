package engine

import (
	"github.com/lingolens/lingolens-go/internal/dom"
	"github.com/lingolens/lingolens-go/internal/protocol"
)

// PointerOver handles a pointer entering an element. It returns true when the
// element was accepted as a target, letting the bridge walk the event path
// until the deepest valid element under the cursor is found.
func (e *Engine) PointerOver(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.marquee.active {
		return false
	}
	el := e.doc.ResolveID(id)
	if !isCandidate(el) {
		return false
	}

	if e.hovered != nil && e.hovered != el {
		e.hovered.RemoveClass(classHover)
	}
	e.hovered = el
	el.AddClass(classHover)
	e.overlay.ShowTooltip(e.tooltipFor(el, e.entry(dom.BuildID(el))))
	return true
}

// PointerOut handles a pointer leaving an element.
func (e *Engine) PointerOut(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	el := e.doc.ResolveID(id)
	if el == nil || el != e.hovered {
		return
	}
	el.RemoveClass(classHover)
	e.hovered = nil
	e.overlay.HideTooltip()
}

// Click handles a primary click. hasSelection suppresses translation while the
// user is selecting text. Clicks outside the highlighted subtree are ignored.
func (e *Engine) Click(targetID string, hasSelection bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.marquee.active || e.hovered == nil || hasSelection {
		return
	}
	target := e.doc.ResolveID(targetID)
	if target == nil || !e.hovered.Contains(target) {
		return
	}

	el := e.hovered
	id := dom.BuildID(el)
	ent := e.entry(id)

	// Toggling needs no network round trip.
	if ent.HasTranslated {
		e.toggle(el, ent)
		return
	}

	e.captureOriginal(ent, el, true)
	setState(el, ent, StateTranslating)
	el.AddClass(classTranslating)
	e.overlay.ShowTooltip(e.tooltipFor(el, ent))

	e.post.Post(protocol.TranslateRequest{ID: id, Text: ent.Original})
	e.armWatchdog(id)
}

// toggle alternates the visible text between original and translated.
func (e *Engine) toggle(el *dom.Element, ent *Entry) {
	if ent.State == StateTranslated {
		el.SetText(ent.Original)
		setState(el, ent, StateOriginalRestored)
		el.RemoveClass(classTranslated)
		el.RemoveClass(classLayoutWarning)
		return
	}
	el.SetText(ent.Translated)
	setState(el, ent, StateTranslated)
	el.AddClass(classTranslated)
}

// armWatchdog clears the translating visual when no response arrives in time.
// The request itself is not aborted; a late result is still applied.
func (e *Engine) armWatchdog(id string) {
	e.sched.After(e.cfg.WatchdogTimeout, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		ent, ok := e.entries[id]
		if !ok || ent.State != StateTranslating {
			return
		}
		if el := e.doc.ResolveID(id); el != nil {
			el.RemoveClass(classTranslating)
		}
	})
}
