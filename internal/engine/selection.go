package engine

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/lingolens/lingolens-go/internal/dom"
	"github.com/lingolens/lingolens-go/internal/protocol"
)

// contextLimit caps the surrounding text sent with an AI action.
const contextLimit = 800

// blockTags are the ancestors considered "surrounding context" for a selection.
var blockTags = []string{
	"P", "DIV", "H1", "H2", "H3", "H4", "H5", "H6", "LI", "ARTICLE", "SECTION",
}

// stripMarkup reduces a selection fragment to plain text.
var stripMarkup = bluemonday.StrictPolicy()

// Action names one of the selection-toolbar AI actions.
type Action string

const (
	ActionExplain   Action = "explain"
	ActionSummarize Action = "summarize"
	ActionSimplify  Action = "simplify"
	ActionMeaning   Action = "meaning"
)

func (a Action) messageType() (protocol.Type, bool) {
	switch a {
	case ActionExplain:
		return protocol.TypeExplainRequest, true
	case ActionSummarize:
		return protocol.TypeSummarizeRequest, true
	case ActionSimplify:
		return protocol.TypeSimplifyRequest, true
	case ActionMeaning:
		return protocol.TypeMeaningRequest, true
	default:
		return "", false
	}
}

// Selection describes a finished text selection as reported by the bootstrap.
// HTML carries the serialized range contents; Text is used when already plain.
type Selection struct {
	Text     string
	HTML     string
	AnchorID string
	Rect     dom.Rect
}

func (s Selection) plainText() string {
	if s.Text != "" {
		return strings.TrimSpace(s.Text)
	}
	return strings.TrimSpace(html.UnescapeString(stripMarkup.Sanitize(s.HTML)))
}

// SelectionEnd shows the AI toolbar above a non-collapsed selection with
// positive geometry, and hides it otherwise.
func (e *Engine) SelectionEnd(sel Selection) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.marquee.active {
		return
	}
	if sel.plainText() == "" || sel.Rect.Width() <= 0 || sel.Rect.Height() <= 0 {
		e.hideToolbar()
		return
	}
	e.toolbarVisible = true
	e.overlay.ShowToolbar(sel.Rect)
}

// ToolbarAction dispatches one AI action for the current selection and hides
// the toolbar. Context is the inner text of the nearest block ancestor of the
// selection anchor, capped at contextLimit characters.
func (e *Engine) ToolbarAction(action Action, sel Selection) {
	e.mu.Lock()
	defer e.mu.Unlock()

	text := sel.plainText()
	if text == "" {
		e.hideToolbar()
		return
	}
	msgType, ok := action.messageType()
	if !ok {
		return
	}

	e.post.Post(protocol.AIActionRequest{
		Type:            msgType,
		SelectedText:    text,
		SurroundingText: e.surroundingText(sel.AnchorID),
		PageTitle:       e.doc.Title(),
	})
	e.hideToolbar()
}

// Scrolled hides the toolbar; a floating toolbar over moved content is worse
// than none.
func (e *Engine) Scrolled() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hideToolbar()
}

// HideToolbar hides the toolbar, used by the bridge on outside mousedown.
func (e *Engine) HideToolbar() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hideToolbar()
}

func (e *Engine) hideToolbar() {
	if !e.toolbarVisible {
		return
	}
	e.toolbarVisible = false
	e.overlay.HideToolbar()
}

func (e *Engine) surroundingText(anchorID string) string {
	anchor := e.doc.ResolveID(anchorID)
	if anchor == nil {
		return ""
	}
	block := anchor.Closest(blockTags...)
	if block == nil {
		block = anchor
	}
	ctx := block.InnerText()
	if len(ctx) > contextLimit {
		// Back off to a rune boundary so the cut never ships invalid UTF-8.
		cut := contextLimit
		for cut > 0 && !utf8.RuneStart(ctx[cut]) {
			cut--
		}
		ctx = ctx[:cut]
	}
	return ctx
}
