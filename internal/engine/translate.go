package engine

import (
	"time"

	"github.com/lingolens/lingolens-go/internal/dom"
	"github.com/lingolens/lingolens-go/internal/protocol"
)

// handleTranslationResult applies a single result from the host. A miss on
// resolution is a silent no-op: the page may have rewritten itself underneath.
func (e *Engine) handleTranslationResult(m protocol.TranslationResult) {
	el := e.doc.ResolveID(m.ID)
	if el == nil {
		return
	}
	el.RemoveClass(classTranslating)
	e.overlay.HideTooltip()

	ent := e.entry(m.ID)
	if !m.Success {
		e.flashError(m.ID, el)
		setState(el, ent, StateAbsent)
		return
	}
	e.applyTranslation(el, m.ID, m.TranslatedText)
}

// applyTranslation commits a translated string to the element and schedules a
// layout-health measurement. When the translated text equals the original
// (the host substitutes originals for failed batch slots) no translated
// indicator is shown since nothing visibly changed.
func (e *Engine) applyTranslation(el *dom.Element, id, text string) {
	ent := e.entry(id)
	e.captureOriginal(ent, el, true)

	ent.Translated = text
	ent.HasTranslated = true
	el.SetText(text)
	setState(el, ent, StateTranslated)
	if text != ent.Original {
		el.AddClass(classTranslated)
	}

	if ent.HasOriginalMetrics {
		e.scheduleMeasure(id)
	}
}

// flashError pulses a red outline on a failed element.
func (e *Engine) flashError(id string, el *dom.Element) {
	el.SetStyleProp("outline", "2px solid red")
	e.sched.After(time.Second, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if el := e.doc.ResolveID(id); el != nil {
			el.SetStyleProp("outline", "")
		}
	})
}

// retranslateActive resends a translate request for every translated,
// non-locked element using its stored original text.
func (e *Engine) retranslateActive() {
	for id, ent := range e.entries {
		if ent.State != StateTranslated || ent.Locked {
			continue
		}
		el := e.doc.ResolveID(id)
		if el == nil {
			continue
		}
		setState(el, ent, StateTranslating)
		el.AddClass(classTranslating)
		e.post.Post(protocol.TranslateRequest{ID: id, Text: ent.Original})
		e.armWatchdog(id)
	}
}
