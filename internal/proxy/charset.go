package proxy

import (
	"strings"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// decode converts upstream bytes to UTF-8. The charset comes from the
// Content-Type header when declared, otherwise from statistical detection.
// Undecodable input falls through unchanged; a garbled page beats no page.
func decode(body []byte, contentType string) []byte {
	name := charsetFromContentType(contentType)
	if name == "" {
		name = detectCharset(body)
	}
	if name == "" || isUTF8Name(name) {
		return body
	}

	enc, err := htmlindex.Get(name)
	if err != nil || enc == nil || enc == unicode.UTF8 {
		return body
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return decoded
}

func charsetFromContentType(contentType string) string {
	for _, part := range strings.Split(contentType, ";") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(strings.ToLower(part), "charset="); ok {
			return strings.Trim(v, `"'`)
		}
	}
	return ""
}

func detectCharset(body []byte) string {
	res, err := chardet.NewHtmlDetector().DetectBest(body)
	if err != nil || res == nil {
		return ""
	}
	return res.Charset
}

func isUTF8Name(name string) bool {
	switch strings.ToLower(name) {
	case "utf-8", "utf8", "us-ascii", "ascii":
		return true
	}
	return false
}
