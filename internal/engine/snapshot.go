package engine

import (
	"strings"
	"time"

	"github.com/lingolens/lingolens-go/internal/protocol"
)

// sendPageState builds the snapshot of every translated element and posts it
// to the host. Elements that no longer resolve still appear: the entry map is
// authoritative, the DOM is not.
func (e *Engine) sendPageState() {
	translations := make(map[string]protocol.SnapshotEntry, len(e.entries))
	now := time.Now().UnixMilli()

	for id, ent := range e.entries {
		if !ent.HasTranslated {
			continue
		}
		snap := protocol.SnapshotEntry{
			Original:   ent.Original,
			Translated: ent.Translated,
			ElementTag: "unknown",
			IsLocked:   ent.Locked,
			Status:     ent.Status(),
			Timestamp:  now,
		}
		if el := e.doc.ResolveID(id); el != nil {
			snap.ElementTag = strings.ToLower(el.Tag)
			if !ent.HasOriginal {
				snap.Original = el.InnerText()
			}
		}
		translations[id] = snap
	}

	e.post.Post(protocol.PageStateResponse{
		Payload: protocol.PageState{
			Translations: translations,
			Title:        e.doc.Title(),
		},
	})
}

// sendJSONDownload posts the original→translated export bundle, omitting
// entries missing either side.
func (e *Engine) sendJSONDownload(language string) {
	payload := make(map[string]string)
	for _, ent := range e.entries {
		if ent.HasOriginal && ent.HasTranslated && ent.Original != "" && ent.Translated != "" {
			payload[ent.Original] = ent.Translated
		}
	}
	e.post.Post(protocol.JSONDownloadReady{Payload: payload, Language: language})
}

// restorePageState rehydrates translations from a saved snapshot. Entries
// whose IDs no longer resolve are skipped; legacy bare-string values were
// already coerced by the protocol decoder.
func (e *Engine) restorePageState(translations map[string]protocol.RestoreEntry) {
	for id, rec := range translations {
		el := e.doc.ResolveID(id)
		if el == nil {
			continue
		}
		ent := e.entry(id)
		if !ent.HasOriginal && rec.Original != "" {
			ent.Original = rec.Original
			ent.HasOriginal = true
		}
		e.captureOriginal(ent, el, true)

		ent.Translated = rec.Translated
		ent.HasTranslated = true
		el.SetText(rec.Translated)
		setState(el, ent, StateTranslated)
		el.AddClass(classTranslated)

		if rec.IsLocked {
			ent.Locked = true
			el.SetAttr(attrLocked, "true")
			el.SetStyleProp("outline", lockedOutline)
		}
	}
}

// updateTranslation applies a user edit from the panel: overwrite the visible
// text, mark the entry modified, and track lock state.
func (e *Engine) updateTranslation(m protocol.UpdateTranslation) {
	el := e.doc.ResolveID(m.ID)
	if el == nil {
		return
	}
	ent := e.entry(m.ID)
	e.captureOriginal(ent, el, true)

	ent.Translated = m.Text
	ent.HasTranslated = true
	ent.Modified = true
	el.SetText(m.Text)
	setState(el, ent, StateTranslated)
	el.SetAttr(attrModified, "true")

	if m.IsLocked != nil {
		ent.Locked = *m.IsLocked
		if ent.Locked {
			el.SetAttr(attrLocked, "true")
			el.SetStyleProp("outline", lockedOutline)
		} else {
			el.SetAttr(attrLocked, "false")
			el.SetStyleProp("outline", "")
		}
	}
}

// highlightElement scrolls an element into view and flashes it.
func (e *Engine) highlightElement(id string) {
	if e.doc.ResolveID(id) == nil {
		return
	}
	e.overlay.Flash(id)
}
