package engine

import (
	"github.com/lingolens/lingolens-go/internal/dom"
	"github.com/lingolens/lingolens-go/internal/protocol"
)

// triggerBatch collects every untranslated candidate intersecting the
// viewport (plus the configured buffer) and ships one batch request. Original
// dimensions are deliberately not captured here; measuring every element in a
// big batch is too expensive, so batch items keep unknown layout health until
// touched individually.
func (e *Engine) triggerBatch() {
	view := e.doc.Viewport().Rect(e.cfg.ViewportBuffer)
	items := e.collectBatch(batchTags, func(el *dom.Element) bool {
		return el.Rect().Intersects(view)
	})
	if len(items) == 0 {
		e.post.Post(protocol.BatchTranslationComplete{Count: 0})
		return
	}
	e.post.Post(protocol.BatchTranslateRequest{Payload: items})
}

// collectBatch walks the broad selector, filters by candidacy, skips anything
// already translated, applies the geometric filter, and marks survivors as
// translating.
func (e *Engine) collectBatch(tags []string, within func(*dom.Element) bool) []protocol.BatchItem {
	var items []protocol.BatchItem
	for _, el := range e.doc.ElementsByTags(tags...) {
		if !isCandidate(el) {
			continue
		}
		id := dom.BuildID(el)
		if ent, ok := e.entries[id]; ok && (ent.HasTranslated || ent.State == StateTranslated) {
			continue
		}
		if !within(el) {
			continue
		}

		ent := e.entry(id)
		e.captureOriginal(ent, el, false)
		setState(el, ent, StateTranslating)
		el.AddClass(classTranslating)
		items = append(items, protocol.BatchItem{ID: id, Text: ent.Original})
	}
	return items
}

// handleBatchResponse applies results positionally delivered by the host.
// Every slot is applied like a single result; failed slots flash and fall
// back to absent. The completion message carries the success count.
func (e *Engine) handleBatchResponse(m protocol.BatchTranslateResponse) {
	count := 0
	for _, res := range m.Results {
		el := e.doc.ResolveID(res.ID)
		if el == nil {
			continue
		}
		el.RemoveClass(classTranslating)
		if !res.Success {
			ent := e.entry(res.ID)
			e.flashError(res.ID, el)
			setState(el, ent, StateAbsent)
			continue
		}
		e.applyTranslation(el, res.ID, res.TranslatedText)
		count++
	}
	e.post.Post(protocol.BatchTranslationComplete{Count: count})
}
