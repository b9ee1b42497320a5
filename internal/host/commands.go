package host

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lingolens/lingolens-go/internal/protocol"
)

// batchWorker serializes batch RPCs for one pane: a second batch request
// queues behind the first rather than racing it.
func (p *Pane) batchWorker() {
	for {
		select {
		case <-p.done:
			return
		case req := <-p.batches:
			p.host.translateBatch(p, req)
		}
	}
}

// translateBatch answers one batch request with exactly one result per slot,
// positionally aligned. A failed item carries the original text with
// success=true: a silent fallback beats a red flash across half the page.
func (h *Host) translateBatch(p *Pane, req protocol.BatchTranslateRequest) {
	results := make([]protocol.BatchResult, len(req.Payload))
	if len(req.Payload) == 0 {
		p.post.Post(protocol.BatchTranslateResponse{Results: results})
		return
	}

	texts := make([]string, len(req.Payload))
	for i, item := range req.Payload {
		texts[i] = item.Text
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	translated, err := h.translator.TranslateMany(ctx, texts, p.Language())
	if err != nil || len(translated) != len(texts) {
		h.log.Warn("batch translation failed, substituting originals",
			zap.String("pane", p.ID), zap.Int("items", len(texts)), zap.Error(err))
		translated = nil
	}

	for i, item := range req.Payload {
		out := item.Text
		if translated != nil && translated[i] != "" {
			out = translated[i]
		}
		results[i] = protocol.BatchResult{ID: item.ID, TranslatedText: out, Success: true}
	}
	p.post.Post(protocol.BatchTranslateResponse{Results: results})
}

// SetLanguage switches the pane's target language and tells the engine to
// retranslate. Rapid consecutive switches coalesce into a single retranslation
// within one frame.
func (h *Host) SetLanguage(p *Pane, language string) {
	p.mu.Lock()
	p.language = language
	p.mu.Unlock()

	p.langMu.Lock()
	defer p.langMu.Unlock()
	if p.langPending {
		return
	}
	p.langPending = true
	time.AfterFunc(frame, func() {
		p.langMu.Lock()
		p.langPending = false
		p.langMu.Unlock()
		p.post.Post(protocol.LanguageUpdate{})
	})
}

// TriggerBatch asks the engine to translate everything in the viewport.
func (h *Host) TriggerBatch(p *Pane) {
	p.post.Post(protocol.TriggerBatchTranslate{})
}

// ToggleMarquee enters or exits area-selection mode.
func (h *Host) ToggleMarquee(p *Pane, active bool) {
	p.post.Post(protocol.ToggleMarquee{IsActive: active})
}

// Retranslate re-runs every active, non-locked translation.
func (h *Host) Retranslate(p *Pane) {
	p.post.Post(protocol.RetranslateActive{})
}

// RetranslateEntry re-runs one entry from its mirrored original unless the
// mirror shows it locked. The fresh text lands via an update, so the engine
// treats it like any other edit.
func (h *Host) RetranslateEntry(p *Pane, id string) error {
	p.mu.Lock()
	entry, ok := p.mirror[id]
	p.mu.Unlock()
	if !ok {
		return nil
	}
	if entry.IsLocked {
		return ErrEntryLocked
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		translated, err := h.translator.TranslateOne(ctx, entry.Original, p.Language())
		if err != nil {
			h.log.Warn("entry retranslation failed",
				zap.String("pane", p.ID), zap.String("id", id), zap.Error(err))
			return
		}
		h.UpdateEntry(p, id, translated, nil)
	}()
	return nil
}

// RequestPageState asks the engine for a fresh snapshot.
func (h *Host) RequestPageState(p *Pane) {
	p.post.Post(protocol.RequestPageState{})
}

// RequestExport asks the engine for the original-to-translated bundle.
func (h *Host) RequestExport(p *Pane) {
	p.post.Post(protocol.RequestJSONDownload{Language: p.Language()})
}

// Restore rehydrates the pane from a saved snapshot. Mirror snapshot entries
// convert to restore records so a later page state keeps originals intact.
func (h *Host) Restore(p *Pane, state protocol.PageState) {
	translations := make(map[string]protocol.RestoreEntry, len(state.Translations))
	for id, entry := range state.Translations {
		translations[id] = protocol.RestoreEntry{
			Original:   entry.Original,
			Translated: entry.Translated,
			IsLocked:   entry.IsLocked,
		}
	}
	p.mu.Lock()
	for id, entry := range state.Translations {
		p.mirror[id] = entry
	}
	p.mu.Unlock()
	p.post.Post(protocol.RestorePageState{Translations: translations})
}

// UpdateEntry pushes a user edit from the panel to the engine. Edits apply to
// locked entries too; locking guards automated retranslation, not the user.
func (h *Host) UpdateEntry(p *Pane, id, text string, locked *bool) {
	p.mu.Lock()
	if entry, ok := p.mirror[id]; ok {
		entry.Translated = text
		entry.Status = "modified"
		if locked != nil {
			entry.IsLocked = *locked
		}
		p.mirror[id] = entry
	}
	p.mu.Unlock()
	p.post.Post(protocol.UpdateTranslation{ID: id, Text: text, IsLocked: locked})
}

// Highlight scrolls one element into view and flashes it.
func (h *Host) Highlight(p *Pane, id string) {
	p.post.Post(protocol.HighlightElement{ID: id})
}
