package ws

import (
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gorilla/websocket"

	"github.com/lingolens/lingolens-go/internal/host"
	"github.com/lingolens/lingolens-go/internal/logging"
	"github.com/lingolens/lingolens-go/internal/monitoring"
	"github.com/lingolens/lingolens-go/internal/protocol"
)

// shellEvent is one pane event pushed to every connected shell.
type shellEvent struct {
	Type     string `json:"type"`
	Pane     string `json:"pane"`
	Color    string `json:"color,omitempty"`
	ID       string `json:"id,omitempty"`
	Error    string `json:"error,omitempty"`
	Count    int    `json:"count,omitempty"`
	Language string `json:"language,omitempty"`

	State   *protocol.PageState `json:"state,omitempty"`
	Payload map[string]string   `json:"payload,omitempty"`
	Action  string              `json:"action,omitempty"`
	Result  string              `json:"result,omitempty"`
}

// Hub fans pane events out to shell connections. It implements host.Sink.
type Hub struct {
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu    sync.Mutex
	conns map[*websocket.Conn]chan shellEvent
}

// NewHub creates a shell event hub.
func NewHub(metrics *monitoring.Metrics, log *logging.Logger) *Hub {
	return &Hub{
		log:     log,
		metrics: metrics,
		conns:   make(map[*websocket.Conn]chan shellEvent),
	}
}

// Serve handles GET /events: upgrade and stream pane events until the shell
// disconnects.
func (h *Hub) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("shell upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ch := make(chan shellEvent, 64)
	h.mu.Lock()
	h.conns[conn] = ch
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
	}()

	done := make(chan struct{})
	go func() {
		// The shell sends nothing; reading just detects the close.
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev := <-ch:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *Hub) broadcast(ev shellEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.conns {
		select {
		case ch <- ev:
		default:
			h.log.Warn("shell event buffer full, dropping event")
		}
	}
}

// ThemeColor implements host.Sink.
func (h *Hub) ThemeColor(p *host.Pane, color string) {
	h.broadcast(shellEvent{Type: "theme", Pane: p.ID, Color: color})
}

// LayoutError implements host.Sink.
func (h *Hub) LayoutError(p *host.Pane, id, errorType string) {
	h.metrics.LayoutError(errorType)
	h.broadcast(shellEvent{Type: "layout-error", Pane: p.ID, ID: id, Error: errorType})
}

// BatchComplete implements host.Sink.
func (h *Hub) BatchComplete(p *host.Pane, count int) {
	h.broadcast(shellEvent{Type: "batch-complete", Pane: p.ID, Count: count})
}

// PageState implements host.Sink.
func (h *Hub) PageState(p *host.Pane, state protocol.PageState) {
	h.broadcast(shellEvent{Type: "page-state", Pane: p.ID, State: &state})
}

// ExportReady implements host.Sink.
func (h *Hub) ExportReady(p *host.Pane, payload map[string]string, language string) {
	h.broadcast(shellEvent{Type: "export-ready", Pane: p.ID, Payload: payload, Language: language})
}

// ActionResult implements host.Sink.
func (h *Hub) ActionResult(p *host.Pane, action protocol.Type, result string, err error) {
	ev := shellEvent{Type: "action-result", Pane: p.ID, Action: string(action), Result: result}
	if err != nil {
		ev.Error = err.Error()
	}
	h.broadcast(ev)
}
