package engine

import (
	"github.com/lingolens/lingolens-go/internal/dom"
)

// Class and data-attribute names live under a private namespace so the agent
// never collides with the page's own styling.
const (
	classHover         = "lingo-hover-highlight"
	classTranslating   = "lingo-translating"
	classTranslated    = "lingo-translated"
	classLayoutError   = "lingo-layout-error"
	classLayoutWarning = "lingo-layout-warning"

	attrState      = "data-lingo-state"
	attrLocked     = "data-lingo-locked"
	attrModified   = "data-lingo-modified"
	attrLayoutErr  = "data-layout-error"
	attrLayoutSafe = "data-layout-safe"

	lockedOutline = "2px dashed #f59e0b"
)

// EntryState tracks one element through the translation lifecycle.
type EntryState int

const (
	StateAbsent EntryState = iota
	StateTranslating
	StateTranslated
	StateOriginalRestored
)

// String returns the data-attribute value for the state.
func (s EntryState) String() string {
	switch s {
	case StateTranslating:
		return "translating"
	case StateTranslated:
		return "translated"
	case StateOriginalRestored:
		return "original"
	default:
		return "absent"
	}
}

// Health classifies post-translation geometry.
type Health int

const (
	HealthUnknown Health = iota
	HealthSafe
	HealthOverflow
	HealthWrapping
)

// String names the health class.
func (h Health) String() string {
	switch h {
	case HealthSafe:
		return "safe"
	case HealthOverflow:
		return "overflow"
	case HealthWrapping:
		return "wrapping"
	default:
		return "unknown"
	}
}

// Entry is the per-element translation record. Original is captured once and
// never overwritten for the lifetime of the document.
type Entry struct {
	Original    string
	HasOriginal bool

	OriginalMetrics    Metrics
	HasOriginalMetrics bool

	Translated    string
	HasTranslated bool

	State    EntryState
	Locked   bool
	Modified bool
	Health   Health
}

// Metrics aliases the dom measurement type for entry storage.
type Metrics = dom.Metrics

// Status returns the snapshot status string for the entry.
func (e *Entry) Status() string {
	if e.Modified {
		return "modified"
	}
	return "active"
}

// entry returns the record for an ID, creating an absent one on first touch.
func (e *Engine) entry(id string) *Entry {
	if ent, ok := e.entries[id]; ok {
		return ent
	}
	ent := &Entry{State: StateAbsent, Health: HealthUnknown}
	e.entries[id] = ent
	return ent
}

// captureOriginal records the element's text and measurements the first time
// it is touched. Later captures are no-ops.
func (e *Engine) captureOriginal(ent *Entry, el *dom.Element, withMetrics bool) {
	if !ent.HasOriginal {
		ent.Original = el.InnerText()
		ent.HasOriginal = true
	}
	if withMetrics && !ent.HasOriginalMetrics && el.HasMetrics() {
		ent.OriginalMetrics = el.Metrics()
		ent.HasOriginalMetrics = true
	}
}

// setState updates the entry state and mirrors it onto the element's dataset.
func setState(el *dom.Element, ent *Entry, s EntryState) {
	ent.State = s
	if s == StateAbsent {
		el.RemoveAttr(attrState)
		return
	}
	el.SetAttr(attrState, s.String())
}
