// Package dom provides the server-side document model the translation engine
// operates on. It holds the element tree of a proxied page together with the
// geometry the browser bootstrap reports back, records every mutation so the
// bridge can replay it into the live page, and implements the structural
// element identity scheme.
package dom

import (
	"sort"
	"strings"
)

// Node is either an *Element or a *Text.
type Node interface {
	node()
}

// Text is a text node.
type Text struct {
	Data   string
	parent *Element
}

func (*Text) node() {}

// Metrics mirrors the browser box measurements used for layout-health checks.
type Metrics struct {
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	ScrollWidth  float64 `json:"scrollWidth"`
	ScrollHeight float64 `json:"scrollHeight"`
}

// Rect is a client-coordinate bounding rectangle.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Width returns the rectangle width.
func (r Rect) Width() float64 { return r.Right - r.Left }

// Height returns the rectangle height.
func (r Rect) Height() float64 { return r.Bottom - r.Top }

// Area returns the rectangle area in px².
func (r Rect) Area() float64 { return r.Width() * r.Height() }

// Intersects reports positive overlap on both axes.
func (r Rect) Intersects(o Rect) bool {
	x := min(r.Right, o.Right) - max(r.Left, o.Left)
	y := min(r.Bottom, o.Bottom) - max(r.Top, o.Top)
	return x > 0 && y > 0
}

// Viewport is the visible client area.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect returns the viewport as a rectangle grown by buffer pixels above and below.
func (v Viewport) Rect(buffer float64) Rect {
	return Rect{Left: 0, Top: -buffer, Right: v.Width, Bottom: v.Height + buffer}
}

// Element is one element of the document tree.
type Element struct {
	// Tag is the uppercase tag name, as in DOM tagName.
	Tag string

	doc    *Document
	parent *Element
	nodes  []Node

	attrs   map[string]string
	classes []string
	style   map[string]string

	metrics    Metrics
	rect       Rect
	hasMetrics bool
}

func (*Element) node() {}

// Parent returns the parent element, nil for the root.
func (e *Element) Parent() *Element { return e.parent }

// Nodes returns the ordered child nodes.
func (e *Element) Nodes() []Node { return e.nodes }

// Children returns the element children in order.
func (e *Element) Children() []*Element {
	out := make([]*Element, 0, len(e.nodes))
	for _, n := range e.nodes {
		if el, ok := n.(*Element); ok {
			out = append(out, el)
		}
	}
	return out
}

// Attr returns an attribute value and whether it is set.
func (e *Element) Attr(name string) (string, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

// SetAttr sets an attribute and records the mutation.
func (e *Element) SetAttr(name, value string) {
	e.attrs[name] = value
	e.doc.record(Change{Op: OpSetAttr, Target: BuildID(e), Name: name, Value: value})
}

// RemoveAttr removes an attribute and records the mutation.
func (e *Element) RemoveAttr(name string) {
	if _, ok := e.attrs[name]; !ok {
		return
	}
	delete(e.attrs, name)
	e.doc.record(Change{Op: OpRemoveAttr, Target: BuildID(e), Name: name})
}

// HasClass reports class membership.
func (e *Element) HasClass(name string) bool {
	for _, c := range e.classes {
		if c == name {
			return true
		}
	}
	return false
}

// AddClass adds a class and records the mutation. Adding twice is a no-op.
func (e *Element) AddClass(name string) {
	if e.HasClass(name) {
		return
	}
	e.classes = append(e.classes, name)
	e.syncClassAttr()
	e.doc.record(Change{Op: OpAddClass, Target: BuildID(e), Name: name})
}

// RemoveClass removes a class and records the mutation.
func (e *Element) RemoveClass(name string) {
	for i, c := range e.classes {
		if c == name {
			e.classes = append(e.classes[:i], e.classes[i+1:]...)
			e.syncClassAttr()
			e.doc.record(Change{Op: OpRemoveClass, Target: BuildID(e), Name: name})
			return
		}
	}
}

func (e *Element) syncClassAttr() {
	if len(e.classes) == 0 {
		delete(e.attrs, "class")
		return
	}
	e.attrs["class"] = strings.Join(e.classes, " ")
}

// StyleProp returns the inline style declaration for a property, lowercase.
func (e *Element) StyleProp(prop string) string {
	return e.style[strings.ToLower(prop)]
}

// SetStyleProp sets an inline style declaration and records the mutation.
func (e *Element) SetStyleProp(prop, value string) {
	prop = strings.ToLower(prop)
	if value == "" {
		delete(e.style, prop)
	} else {
		e.style[prop] = value
	}
	e.syncStyleAttr()
	e.doc.record(Change{Op: OpSetStyle, Target: BuildID(e), Name: prop, Value: value})
}

func (e *Element) syncStyleAttr() {
	if len(e.style) == 0 {
		delete(e.attrs, "style")
		return
	}
	props := make([]string, 0, len(e.style))
	for p := range e.style {
		props = append(props, p)
	}
	sort.Strings(props)
	var b strings.Builder
	for i, p := range props {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(p)
		b.WriteString(": ")
		b.WriteString(e.style[p])
	}
	e.attrs["style"] = b.String()
}

// InnerText returns the whitespace-normalized text of the subtree, the way
// the engine captures and compares visible text.
func (e *Element) InnerText() string {
	var b strings.Builder
	e.collectText(&b)
	return strings.Join(strings.Fields(b.String()), " ")
}

func (e *Element) collectText(b *strings.Builder) {
	for _, n := range e.nodes {
		switch t := n.(type) {
		case *Text:
			b.WriteString(t.Data)
			b.WriteByte(' ')
		case *Element:
			switch t.Tag {
			case "SCRIPT", "STYLE", "NOSCRIPT", "TEMPLATE":
			default:
				t.collectText(b)
			}
		}
	}
}

// SetText replaces the subtree with a single text node, mirroring an innerText
// assignment, and records the mutation.
func (e *Element) SetText(s string) {
	e.nodes = []Node{&Text{Data: s, parent: e}}
	e.doc.record(Change{Op: OpSetText, Target: BuildID(e), Value: s})
}

// DirectTextLen sums the trimmed lengths of the element's own text-node children.
func (e *Element) DirectTextLen() int {
	total := 0
	for _, n := range e.nodes {
		if t, ok := n.(*Text); ok {
			total += len(strings.TrimSpace(t.Data))
		}
	}
	return total
}

// Metrics returns the last reported box measurements.
func (e *Element) Metrics() Metrics { return e.metrics }

// HasMetrics reports whether any measurement arrived for this element.
func (e *Element) HasMetrics() bool { return e.hasMetrics }

// SetMetrics stores browser-reported measurements. Measurements flow inward
// from the bootstrap, so no mutation is recorded.
func (e *Element) SetMetrics(m Metrics) {
	e.metrics = m
	e.hasMetrics = true
}

// Rect returns the last reported client bounding rectangle.
func (e *Element) Rect() Rect { return e.rect }

// SetRect stores the browser-reported bounding rectangle.
func (e *Element) SetRect(r Rect) { e.rect = r }

// HasOffsetParent approximates the DOM offsetParent check: false when the
// element or an ancestor carries display:none, or when the element itself is
// position:fixed.
func (e *Element) HasOffsetParent() bool {
	if e.StyleProp("position") == "fixed" {
		return false
	}
	for cur := e; cur != nil; cur = cur.parent {
		if cur.StyleProp("display") == "none" {
			return false
		}
		if _, hidden := cur.attrs["hidden"]; hidden {
			return false
		}
	}
	return true
}

// Document returns the owning document.
func (e *Element) Document() *Document { return e.doc }

// Contains reports whether other is e or a descendant of e.
func (e *Element) Contains(other *Element) bool {
	for cur := other; cur != nil; cur = cur.parent {
		if cur == e {
			return true
		}
	}
	return false
}

// Closest walks up from e to the nearest element whose tag is in tags
// (uppercase), including e itself. Returns nil when none matches.
func (e *Element) Closest(tags ...string) *Element {
	for cur := e; cur != nil; cur = cur.parent {
		for _, t := range tags {
			if cur.Tag == t {
				return cur
			}
		}
	}
	return nil
}
