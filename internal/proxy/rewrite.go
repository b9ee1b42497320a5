package proxy

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// RewriteHTML turns an upstream document into one that loads inside the host
// iframe: resource references re-enter the proxy, CSP and integrity policies
// are stripped, and the agent bootstrap script is appended to the body.
//
// The document keeps a <base href="<original-url>"> so un-rewritten relative
// references (anchors, script-built URLs) still resolve against the source
// site. That base applies to every relative URL in the document, so all
// rewritten references and the agent script are absolute against origin, the
// scheme://host the proxy itself is serving from.
func RewriteHTML(body []byte, page *url.URL, origin, agentPath string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse upstream document: %w", err)
	}

	base := baseURL(doc, page)

	// The agent cannot run under the page's CSP, and integrity hashes no
	// longer match rewritten URLs.
	doc.Find(`meta[http-equiv="Content-Security-Policy"], meta[http-equiv="content-security-policy"]`).Remove()
	doc.Find("[integrity]").RemoveAttr("integrity")
	doc.Find("[crossorigin]").RemoveAttr("crossorigin")

	doc.Find("base").Remove()
	doc.Find("head").First().PrependHtml(fmt.Sprintf(`<base href=%q>`, base.String()))

	doc.Find("link").Each(func(_ int, s *goquery.Selection) {
		rel := strings.ToLower(s.AttrOr("rel", ""))
		switch {
		case strings.Contains(rel, "stylesheet"),
			strings.Contains(rel, "preload"),
			strings.Contains(rel, "modulepreload"),
			strings.Contains(rel, "icon"):
			rewriteAttr(s, "href", base, origin, true)
		}
	})
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		rewriteAttr(s, "src", base, origin, true)
	})
	doc.Find("img, source, video, audio, track, embed").Each(func(_ int, s *goquery.Selection) {
		rewriteAttr(s, "src", base, origin, true)
		rewriteSrcset(s, base, origin)
	})
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		if style, ok := s.Attr("style"); ok && strings.Contains(style, "url(") {
			s.SetAttr("style", rewriteCSSTokens(style, base, origin))
		}
	})
	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		s.SetText(rewriteCSSTokens(s.Text(), base, origin))
	})

	doc.Find("body").AppendHtml(fmt.Sprintf(`<script src=%q defer></script>`, origin+agentPath))

	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("failed to serialize rewritten document: %w", err)
	}
	return out, nil
}

// baseURL resolves an upstream base tag against the page URL; the rewritten
// document carries the result as its own base.
func baseURL(doc *goquery.Document, page *url.URL) *url.URL {
	href, ok := doc.Find("base[href]").First().Attr("href")
	if !ok {
		return page
	}
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return page
	}
	return page.ResolveReference(u)
}

func rewriteAttr(s *goquery.Selection, attr string, base *url.URL, origin string, resource bool) {
	ref, ok := s.Attr(attr)
	if !ok {
		return
	}
	abs := resolveRef(base, ref)
	if abs == "" {
		return
	}
	s.SetAttr(attr, origin+ProxyPath(abs, resource))
}

// rewriteSrcset rewrites each candidate of a srcset attribute, preserving
// width and density descriptors.
func rewriteSrcset(s *goquery.Selection, base *url.URL, origin string) {
	srcset, ok := s.Attr("srcset")
	if !ok || strings.TrimSpace(srcset) == "" {
		return
	}
	var out []string
	for _, candidate := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(candidate))
		if len(fields) == 0 {
			continue
		}
		abs := resolveRef(base, fields[0])
		if abs != "" {
			fields[0] = origin + ProxyPath(abs, true)
		}
		out = append(out, strings.Join(fields, " "))
	}
	s.SetAttr("srcset", strings.Join(out, ", "))
}
