package dom

import (
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Parse builds a Document from UTF-8 HTML. The proxy handles charset
// detection before bytes reach this point.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	doc := &Document{src: root}
	for n := root.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode {
			doc.root = convert(doc, n, nil)
			break
		}
	}
	if doc.root == nil {
		return nil, fmt.Errorf("document has no root element")
	}

	doc.Walk(func(e *Element) bool {
		switch e.Tag {
		case "HEAD":
			if doc.head == nil {
				doc.head = e
			}
		case "BODY":
			if doc.body == nil {
				doc.body = e
			}
		case "TITLE":
			if doc.title == "" {
				doc.title = e.InnerText()
			}
		case "SCRIPT":
			if _, ok := e.Attr("src"); !ok {
				if body := rawText(e); strings.TrimSpace(body) != "" {
					doc.InlineScripts = append(doc.InlineScripts, body)
				}
			}
		}
		return true
	})
	if doc.body == nil {
		return nil, fmt.Errorf("document has no body")
	}
	return doc, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

func convert(doc *Document, n *html.Node, parent *Element) *Element {
	el := &Element{
		Tag:    strings.ToUpper(n.Data),
		doc:    doc,
		parent: parent,
		attrs:  make(map[string]string, len(n.Attr)),
		style:  map[string]string{},
	}
	for _, a := range n.Attr {
		el.attrs[a.Key] = a.Val
	}
	if cls, ok := el.attrs["class"]; ok {
		el.classes = strings.Fields(cls)
	}
	if st, ok := el.attrs["style"]; ok {
		el.style = parseInlineStyle(st)
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			el.nodes = append(el.nodes, convert(doc, c, el))
		case html.TextNode:
			el.nodes = append(el.nodes, &Text{Data: c.Data, parent: el})
		}
	}
	return el
}

func parseInlineStyle(s string) map[string]string {
	out := map[string]string{}
	for _, decl := range strings.Split(s, ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		val = strings.TrimSpace(val)
		if prop != "" && val != "" {
			out[prop] = val
		}
	}
	return out
}

// rawText returns the unnormalized text of an element's own text children.
func rawText(e *Element) string {
	var b strings.Builder
	for _, n := range e.nodes {
		if t, ok := n.(*Text); ok {
			b.WriteString(t.Data)
		}
	}
	return b.String()
}

// MetaContent returns the content attribute of <meta name="..."> as loaded.
// It queries the source tree, so mutations after parse are not reflected;
// meta tags are only read at boot.
func (d *Document) MetaContent(name string) string {
	if d.src == nil {
		return ""
	}
	node := htmlquery.FindOne(d.src, fmt.Sprintf(`//meta[@name=%q]`, name))
	if node == nil {
		return ""
	}
	return htmlquery.SelectAttr(node, "content")
}
