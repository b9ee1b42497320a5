package dom

import (
	"golang.org/x/net/html"
)

// ChangeOp names a recorded mutation kind.
type ChangeOp string

const (
	OpSetText     ChangeOp = "set-text"
	OpSetAttr     ChangeOp = "set-attr"
	OpRemoveAttr  ChangeOp = "remove-attr"
	OpAddClass    ChangeOp = "add-class"
	OpRemoveClass ChangeOp = "remove-class"
	OpSetStyle    ChangeOp = "set-style"
)

// Change is one recorded DOM mutation, addressed by the element's durable ID
// at the time of the change. The bridge drains changes after every engine
// event and replays them into the live page.
type Change struct {
	Op     ChangeOp `json:"op"`
	Target string   `json:"target"`
	Name   string   `json:"name,omitempty"`
	Value  string   `json:"value,omitempty"`
}

// Document is the model of one proxied page.
type Document struct {
	root  *Element
	body  *Element
	head  *Element
	title string

	// src is the parsed tree as loaded, kept for boot-time read-only queries
	// (meta tags). It does not track later mutations.
	src *html.Node

	viewport Viewport
	changes  []Change

	// InlineScripts holds the page's own inline script bodies in document
	// order, for optional sandbox execution.
	InlineScripts []string
}

// Root returns the document element.
func (d *Document) Root() *Element { return d.root }

// Body returns the body element, never nil for a parsed document.
func (d *Document) Body() *Element { return d.body }

// Head returns the head element, may be nil for fragments.
func (d *Document) Head() *Element { return d.head }

// Title returns the document title.
func (d *Document) Title() string { return d.title }

// SetTitle updates the document title.
func (d *Document) SetTitle(t string) { d.title = t }

// Viewport returns the current viewport.
func (d *Document) Viewport() Viewport { return d.viewport }

// SetViewport stores the browser-reported viewport.
func (d *Document) SetViewport(v Viewport) { d.viewport = v }

func (d *Document) record(c Change) {
	d.changes = append(d.changes, c)
}

// DrainChanges returns and clears the recorded mutations, in order.
func (d *Document) DrainChanges() []Change {
	out := d.changes
	d.changes = nil
	return out
}

// ElementByID returns the first element with the given id attribute.
func (d *Document) ElementByID(id string) *Element {
	if id == "" {
		return nil
	}
	var found *Element
	d.Walk(func(e *Element) bool {
		if v, ok := e.Attr("id"); ok && v == id {
			found = e
			return false
		}
		return true
	})
	return found
}

// Walk visits every element depth-first in document order. The visitor
// returns false to stop.
func (d *Document) Walk(fn func(*Element) bool) {
	if d.root == nil {
		return
	}
	walk(d.root, fn)
}

func walk(e *Element, fn func(*Element) bool) bool {
	if !fn(e) {
		return false
	}
	for _, child := range e.Children() {
		if !walk(child, fn) {
			return false
		}
	}
	return true
}

// ElementsByTags returns elements whose uppercase tag is in tags, in document
// order.
func (d *Document) ElementsByTags(tags ...string) []*Element {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	var out []*Element
	d.Walk(func(e *Element) bool {
		if _, ok := set[e.Tag]; ok {
			out = append(out, e)
		}
		return true
	})
	return out
}

// First returns the first element matching any of the tags, or nil.
func (d *Document) First(tags ...string) *Element {
	els := d.ElementsByTags(tags...)
	if len(els) == 0 {
		return nil
	}
	return els[0]
}
