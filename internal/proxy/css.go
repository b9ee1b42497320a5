package proxy

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	cssURLPattern    = regexp.MustCompile(`url\(\s*(['"]?)([^'")]+)(['"]?)\s*\)`)
	cssImportPattern = regexp.MustCompile(`@import\s+(['"])([^'"]+)(['"])`)
)

// RewriteCSS routes url(...) and bare-string @import references of a
// stylesheet back through the proxy. @import url(...) forms are covered by
// the url pattern. Standalone sheets are served from the proxy origin, so
// root-relative rewrites resolve correctly without an origin prefix; CSS
// embedded in a rewritten document instead goes through rewriteCSSTokens with
// the document's origin, because the document base points at the source site.
func RewriteCSS(css string, sheet *url.URL) string {
	return rewriteCSSTokens(css, sheet, "")
}

func rewriteCSSTokens(css string, base *url.URL, origin string) string {
	css = cssURLPattern.ReplaceAllStringFunc(css, func(m string) string {
		parts := cssURLPattern.FindStringSubmatch(m)
		abs := resolveRef(base, parts[2])
		if abs == "" {
			return m
		}
		return "url(" + parts[1] + origin + ProxyPath(abs, true) + parts[3] + ")"
	})
	css = cssImportPattern.ReplaceAllStringFunc(css, func(m string) string {
		parts := cssImportPattern.FindStringSubmatch(m)
		abs := resolveRef(base, parts[2])
		if abs == "" {
			return m
		}
		return "@import " + parts[1] + origin + ProxyPath(abs, true) + parts[3]
	})
	return css
}

// stripQuery recovers the upstream reference from a rewritten proxy URL,
// absolute or root-relative.
func stripQuery(rewritten string) string {
	const marker = "/proxy?url="
	i := strings.Index(rewritten, marker)
	if i < 0 {
		return ""
	}
	raw := strings.TrimPrefix(rewritten[i:], marker)
	raw = strings.TrimSuffix(raw, "&resource=true")
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return ""
	}
	return decoded
}
