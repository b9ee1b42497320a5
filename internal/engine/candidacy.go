package engine

import (
	"regexp"

	"github.com/lingolens/lingolens-go/internal/dom"
)

// excludedTags never hold translatable text: technical, media, and form
// controls, plus code blocks where translation would corrupt content.
var excludedTags = map[string]struct{}{
	"SCRIPT": {}, "STYLE": {}, "NOSCRIPT": {}, "IFRAME": {}, "OBJECT": {},
	"EMBED": {}, "INPUT": {}, "TEXTAREA": {}, "SELECT": {}, "BUTTON": {},
	"IMG": {}, "SVG": {}, "CANVAS": {}, "VIDEO": {}, "AUDIO": {},
	"CODE": {}, "PRE": {},
}

// nonTranslatable matches text made of digits, whitespace and punctuation only.
var nonTranslatable = regexp.MustCompile(`^[\d\s\p{P}]+$`)

// batchTags is the broad selector used for viewport batch collection.
var batchTags = []string{
	"P", "H1", "H2", "H3", "H4", "H5", "H6", "LI", "TD", "SPAN", "DIV",
}

// marqueeTags widens batchTags for area selection; candidacy still filters
// the extras.
var marqueeTags = append(append([]string{}, batchTags...), "A", "BUTTON", "LABEL")

// isCandidate reports whether an element is a valid translation target: a
// visible element outside the excluded set carrying at least two characters
// of direct text that is not purely numeric or punctuation.
func isCandidate(el *dom.Element) bool {
	if el == nil {
		return false
	}
	if _, excluded := excludedTags[el.Tag]; excluded {
		return false
	}

	if el.StyleProp("display") == "none" ||
		el.StyleProp("visibility") == "hidden" ||
		el.StyleProp("opacity") == "0" {
		return false
	}
	if !el.HasOffsetParent() && el.StyleProp("position") != "fixed" {
		return false
	}

	if el.DirectTextLen() < 2 {
		return false
	}

	text := el.InnerText()
	if text == "" || nonTranslatable.MatchString(text) {
		return false
	}
	return true
}
