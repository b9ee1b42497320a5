package engine

import (
	"github.com/lingolens/lingolens-go/internal/dom"
	"github.com/lingolens/lingolens-go/internal/protocol"
)

// detectTheme finds a dominant chrome color and reports it once. Preference
// order: the theme-color meta tag, the first opaque header/nav background,
// then the body background. No color found means no message and no retry.
func (e *Engine) detectTheme() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.themeSent {
		return
	}

	color := e.doc.MetaContent("theme-color")
	if color == "" {
		if banner := e.findBanner(); banner != nil {
			color = opaqueBackground(banner)
		}
	}
	if color == "" {
		color = opaqueBackground(e.doc.Body())
	}
	if color == "" {
		return
	}

	e.themeSent = true
	e.post.Post(protocol.ThemeColorDetected{Color: color})
}

// findBanner locates the page chrome: header, nav, or an explicit banner role.
func (e *Engine) findBanner() *dom.Element {
	var found *dom.Element
	e.doc.Walk(func(el *dom.Element) bool {
		if el.Tag == "HEADER" || el.Tag == "NAV" {
			found = el
			return false
		}
		if role, ok := el.Attr("role"); ok && role == "banner" {
			found = el
			return false
		}
		return true
	})
	return found
}

func opaqueBackground(el *dom.Element) string {
	if el == nil {
		return ""
	}
	bg := el.StyleProp("background-color")
	if bg == "" || bg == "transparent" || bg == "rgba(0, 0, 0, 0)" {
		return ""
	}
	return bg
}
