// Package proxy implements the rewriting proxy that makes a foreign page
// loadable inside the host's same-origin iframe: it fetches the target,
// rewrites resource references back through itself, strips the policies that
// would block the injected agent, and appends the agent bootstrap script.
package proxy

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/lingolens/lingolens-go/internal/config"
	"github.com/lingolens/lingolens-go/internal/logging"
)

// maxBodySize caps upstream responses at 20 MiB.
const maxBodySize = 20 << 20

// Handler serves GET /proxy.
type Handler struct {
	cfg    config.ProxyConfig
	log    *logging.Logger
	client *http.Client
}

// NewHandler creates a proxy handler.
func NewHandler(cfg config.ProxyConfig, log *logging.Logger) *Handler {
	retry := retryablehttp.NewClient()
	retry.RetryMax = 1
	retry.HTTPClient.Timeout = cfg.Timeout
	retry.Logger = nil

	return &Handler{cfg: cfg, log: log, client: retry.StandardClient()}
}

// Register mounts the proxy route.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/proxy", h.Proxy)
}

// Proxy handles GET /proxy?url=<absolute>&resource=<bool>. Document requests
// come back as rewritten HTML with the agent injected; resource requests come
// back near-verbatim, with CSS additionally rewritten.
func (h *Handler) Proxy(c *gin.Context) {
	raw := c.Query("url")
	target, err := url.Parse(raw)
	if err != nil || !target.IsAbs() || (target.Scheme != "http" && target.Scheme != "https") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url must be an absolute http(s) URL"})
		return
	}
	if !h.cfg.HostAllowed(target.Hostname()) {
		c.JSON(http.StatusForbidden, gin.H{"error": "host not allowed"})
		return
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url not fetchable"})
		return
	}
	req.Header.Set("User-Agent", h.cfg.UserAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := h.client.Do(req)
	if err != nil {
		h.log.Warn("upstream fetch failed", zap.String("url", target.String()), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream fetch failed"})
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream read failed"})
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Pass the upstream status through so the pane shows the real failure.
		c.Data(resp.StatusCode, contentTypeFor(resp, target.Path, body), body)
		return
	}

	contentType := contentTypeFor(resp, target.Path, body)
	if c.Query("resource") == "true" {
		h.serveResource(c, target, contentType, body)
		return
	}
	h.serveDocument(c, target, contentType, body)
}

func (h *Handler) serveResource(c *gin.Context, target *url.URL, contentType string, body []byte) {
	// Proxied pages load resources cross-origin from the host shell.
	c.Header("Access-Control-Allow-Origin", "*")
	if isCSS(contentType, target.Path) {
		css := RewriteCSS(string(decode(body, contentType)), target)
		c.Data(http.StatusOK, "text/css; charset=utf-8", []byte(css))
		return
	}
	c.Data(http.StatusOK, contentType, body)
}

func (h *Handler) serveDocument(c *gin.Context, target *url.URL, contentType string, body []byte) {
	if !strings.Contains(contentType, "text/html") {
		// A document request that turned out to be a bare resource.
		h.serveResource(c, target, contentType, body)
		return
	}

	html, err := RewriteHTML(decode(body, contentType), target, requestOrigin(c), h.cfg.AgentPath)
	if err != nil {
		h.log.Warn("document rewrite failed", zap.String("url", target.String()), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "document rewrite failed"})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

// requestOrigin is the scheme://host this proxy instance is reachable at.
// Rewritten references must be absolute against it because the document base
// points at the source site.
func requestOrigin(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}

// contentTypeFor prefers the upstream header and falls back to sniffing.
func contentTypeFor(resp *http.Response, path string, body []byte) string {
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	if isCSS("", path) {
		return "text/css"
	}
	return mimetype.Detect(body).String()
}

func isCSS(contentType, path string) bool {
	return strings.Contains(contentType, "text/css") || strings.HasSuffix(strings.ToLower(path), ".css")
}

// ProxyPath builds the local path a rewritten reference points at.
func ProxyPath(abs string, resource bool) string {
	p := "/proxy?url=" + url.QueryEscape(abs)
	if resource {
		p += "&resource=true"
	}
	return p
}

// resolveRef makes ref absolute against base. Refs the proxy must not touch
// come back empty.
func resolveRef(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") ||
		strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "blob:") ||
		strings.HasPrefix(ref, "javascript:") || strings.HasPrefix(ref, "about:") {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}
