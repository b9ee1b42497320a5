package dom

import (
	"strconv"
	"strings"
)

// BuildID returns the durable identifier for an element: the id attribute
// when present, otherwise the structural path from body down to the element.
// Each path step is TAG-N, N counting previous siblings with the same tag,
// joined root-to-leaf with "/". The body itself yields "BODY-0".
func BuildID(e *Element) string {
	if e == nil {
		return ""
	}
	if id, ok := e.Attr("id"); ok && id != "" {
		return id
	}

	body := e.doc.body
	var steps []string
	for cur := e; cur != nil; cur = cur.parent {
		steps = append(steps, cur.Tag+"-"+strconv.Itoa(sameTagIndex(cur)))
		if cur == body {
			break
		}
	}
	// steps were gathered leaf-to-root
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return strings.Join(steps, "/")
}

// sameTagIndex counts previous element siblings sharing the element's tag.
func sameTagIndex(e *Element) int {
	if e.parent == nil {
		return 0
	}
	idx := 0
	for _, sib := range e.parent.Children() {
		if sib == e {
			break
		}
		if sib.Tag == e.Tag {
			idx++
		}
	}
	return idx
}

// ResolveID returns the element named by an ID, or nil. The id-attribute fast
// path is tried first, then the structural path is walked from body. Bad
// input resolves to nil, never panics.
func (d *Document) ResolveID(id string) *Element {
	if id == "" {
		return nil
	}
	if el := d.ElementByID(id); el != nil {
		return el
	}

	cur := d.root
	for _, part := range strings.Split(id, "/") {
		// Split on the last dash so custom-element tags keep their dashes.
		cut := strings.LastIndex(part, "-")
		if cut <= 0 || cur == nil {
			return nil
		}
		tag, idxStr := part[:cut], part[cut+1:]
		idx, err := strconv.Atoi(idxStr)
		if err != nil || idx < 0 {
			return nil
		}

		var next *Element
		i := 0
		for _, child := range cur.Children() {
			if child.Tag == tag {
				if i == idx {
					next = child
					break
				}
				i++
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}
