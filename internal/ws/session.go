// Package ws bridges browser panes to the server-side engine. Each proxied
// iframe's bootstrap opens one WebSocket: events and geometry flow in, the
// engine's recorded DOM mutations and overlay commands flow back out for
// replay. A separate hub socket streams pane events to the host shell.
package ws

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lingolens/lingolens-go/internal/config"
	"github.com/lingolens/lingolens-go/internal/dom"
	"github.com/lingolens/lingolens-go/internal/engine"
	"github.com/lingolens/lingolens-go/internal/host"
	"github.com/lingolens/lingolens-go/internal/logging"
	"github.com/lingolens/lingolens-go/internal/monitoring"
	"github.com/lingolens/lingolens-go/internal/protocol"
	"github.com/lingolens/lingolens-go/internal/sandbox"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The proxied document is same-origin with the server; the shell may not be.
	CheckOrigin: func(*http.Request) bool { return true },
}

// event is one inbound frame from the pane bootstrap.
type event struct {
	Event string `json:"event"`

	// init
	HTML     string `json:"html,omitempty"`
	URL      string `json:"url,omitempty"`
	Language string `json:"language,omitempty"`

	// element events
	ID           string `json:"id,omitempty"`
	HasSelection bool   `json:"hasSelection,omitempty"`

	// pointer coordinates
	X float64 `json:"x,omitempty"`
	Y float64 `json:"y,omitempty"`

	Viewport *dom.Viewport `json:"viewport,omitempty"`
	Metrics  *dom.Metrics  `json:"metrics,omitempty"`
	Rect     *dom.Rect     `json:"rect,omitempty"`

	// selection toolbar
	Action    string            `json:"action,omitempty"`
	Selection *selectionPayload `json:"selection,omitempty"`
}

type selectionPayload struct {
	Text     string   `json:"text"`
	HTML     string   `json:"html"`
	AnchorID string   `json:"anchorId"`
	Rect     dom.Rect `json:"rect"`
}

func (p *selectionPayload) toSelection() engine.Selection {
	if p == nil {
		return engine.Selection{}
	}
	return engine.Selection{
		Text:     p.Text,
		HTML:     p.HTML,
		AnchorID: p.AnchorID,
		Rect:     p.Rect,
	}
}

// frame is one outbound command to the pane bootstrap.
type frame struct {
	Op      string          `json:"op"`
	Changes []dom.Change    `json:"changes,omitempty"`
	Tooltip *engine.Tooltip `json:"tooltip,omitempty"`
	Rect    *dom.Rect       `json:"rect,omitempty"`
	ID      string          `json:"id,omitempty"`
}

// Session is one live pane: a WebSocket, its document model, its engine, and
// its host pane.
type Session struct {
	log  *logging.Logger
	conn *websocket.Conn
	url  string

	pane   *host.Pane
	engine *engine.Engine

	queues    []*protocol.Queue
	send      chan frame
	closeSend sync.Once
}

// URL returns the proxied page URL for this session.
func (s *Session) URL() string { return s.url }

// Pane returns the host-side pane.
func (s *Session) Pane() *host.Pane { return s.pane }

// Engine returns the pane's engine.
func (s *Session) Engine() *engine.Engine { return s.engine }

// Bridge accepts pane connections and tracks live sessions.
type Bridge struct {
	log     *logging.Logger
	host    *host.Host
	cfg     config.EngineConfig
	metrics *monitoring.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewBridge creates the pane bridge.
func NewBridge(h *host.Host, cfg config.EngineConfig, metrics *monitoring.Metrics, log *logging.Logger) *Bridge {
	return &Bridge{
		log:      log,
		host:     h,
		cfg:      cfg,
		metrics:  metrics,
		sessions: make(map[string]*Session),
	}
}

// Session returns a live session by pane ID.
func (b *Bridge) Session(paneID string) (*Session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[paneID]
	return s, ok
}

// Sessions lists the live sessions.
func (b *Bridge) Sessions() []*Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		out = append(out, s)
	}
	return out
}

// Serve handles GET /stream: upgrade, wait for the init event, then pump
// events until the pane disconnects.
func (b *Bridge) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		b.log.Warn("pane upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	s, err := b.boot(conn)
	if err != nil {
		b.log.Warn("pane boot failed", zap.Error(err))
		conn.WriteJSON(gin.H{"error": err.Error()})
		return
	}
	defer b.drop(s)

	b.log.Info("pane attached",
		zap.String("pane", s.pane.ID), zap.String("url", s.url))
	s.readLoop()
}

// boot consumes the init event and assembles the pane: document model, host
// pane, engine, and the ordered queues between them. Neither side ever calls
// the other synchronously.
func (b *Bridge) boot(conn *websocket.Conn) (*Session, error) {
	var init event
	if err := conn.ReadJSON(&init); err != nil {
		return nil, fmt.Errorf("failed to read init event: %w", err)
	}
	if init.Event != "init" || strings.TrimSpace(init.HTML) == "" {
		return nil, errors.New("first event must be init with document html")
	}

	doc, err := dom.ParseString(init.HTML)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pane document: %w", err)
	}
	if init.Viewport != nil {
		doc.SetViewport(*init.Viewport)
	}

	s := &Session{
		log:  b.log,
		conn: conn,
		url:  init.URL,
		send: make(chan frame, 64),
	}
	language := init.Language
	if language == "" {
		language = "en"
	}

	toHost := protocol.NewQueue(func(m protocol.Message) {
		b.metrics.PaneMessage("outbound")
		b.host.Handle(s.pane, m)
	})
	toEngine := protocol.NewQueue(func(m protocol.Message) {
		b.metrics.PaneMessage("inbound")
		s.engine.HandleMessage(m)
		s.flush()
	})
	s.queues = []*protocol.Queue{toHost, toEngine}

	s.pane = b.host.AttachPane(toEngine, language)
	s.engine = engine.New(doc, toHost,
		engine.WithLogger(b.log),
		engine.WithOverlay(s),
		engine.WithConfig(engine.Config{
			WatchdogTimeout: b.cfg.WatchdogTimeout,
			MeasureDelay:    b.cfg.MeasureDelay,
			ThemeDelay:      b.cfg.ThemeDelay,
			ViewportBuffer:  b.cfg.ViewportBuffer,
		}),
	)

	b.mu.Lock()
	b.sessions[s.pane.ID] = s
	b.mu.Unlock()
	b.metrics.PaneAttached()

	go s.writeLoop()

	if b.cfg.RunPageScripts {
		sandbox.New(doc, b.log).RunInlineScripts()
	}
	s.engine.Boot()
	s.flush()
	return s, nil
}

func (b *Bridge) drop(s *Session) {
	b.mu.Lock()
	delete(b.sessions, s.pane.ID)
	b.mu.Unlock()
	b.metrics.PaneDetached()

	b.host.DetachPane(s.pane)
	for _, q := range s.queues {
		q.Close()
	}
	s.closeSend.Do(func() { close(s.send) })
	b.log.Info("pane detached", zap.String("pane", s.pane.ID))
}

func (s *Session) readLoop() {
	for {
		var ev event
		if err := s.conn.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("pane read ended", zap.Error(err))
			}
			return
		}
		s.handle(ev)
	}
}

func (s *Session) handle(ev event) {
	switch ev.Event {
	case "viewport":
		if ev.Viewport != nil {
			s.engine.SetViewport(*ev.Viewport)
		}
	case "geometry":
		if ev.Metrics != nil && ev.Rect != nil {
			s.engine.UpdateGeometry(ev.ID, *ev.Metrics, *ev.Rect)
		}
	case "pointerover":
		s.engine.PointerOver(ev.ID)
	case "pointerout":
		s.engine.PointerOut(ev.ID)
	case "click":
		s.engine.Click(ev.ID, ev.HasSelection)
	case "mousedown":
		s.engine.MarqueeDown(ev.X, ev.Y)
	case "mousemove":
		s.engine.MarqueeMove(ev.X, ev.Y)
	case "mouseup":
		s.engine.MarqueeUp(ev.X, ev.Y)
	case "selection":
		s.engine.SelectionEnd(ev.Selection.toSelection())
	case "toolbar":
		s.engine.ToolbarAction(engine.Action(ev.Action), ev.Selection.toSelection())
	case "toolbarhide":
		s.engine.HideToolbar()
	case "scroll":
		s.engine.Scrolled()
	default:
		s.log.Debug("ignoring pane event", zap.String("event", ev.Event))
	}
	s.flush()
}

// flush ships mutations recorded since the last flush.
func (s *Session) flush() {
	changes := s.engine.DrainChanges()
	if len(changes) == 0 {
		return
	}
	s.push(frame{Op: "apply", Changes: changes})
}

// push enqueues one frame without blocking. A pane too slow to drain its
// buffer loses frames rather than wedging the engine.
func (s *Session) push(f frame) {
	select {
	case s.send <- f:
	default:
		s.log.Warn("pane send buffer full, dropping frame", zap.String("op", f.Op))
	}
}

func (s *Session) writeLoop() {
	for f := range s.send {
		if err := s.conn.WriteJSON(f); err != nil {
			s.log.Debug("pane write ended", zap.Error(err))
			return
		}
	}
}

// Overlay implementation: engine UI commands become frames for the bootstrap.

// ShowTooltip implements engine.Overlay.
func (s *Session) ShowTooltip(t engine.Tooltip) { s.push(frame{Op: "tooltip", Tooltip: &t}) }

// HideTooltip implements engine.Overlay.
func (s *Session) HideTooltip() { s.push(frame{Op: "tooltip-hide"}) }

// ShowToolbar implements engine.Overlay.
func (s *Session) ShowToolbar(r dom.Rect) { s.push(frame{Op: "toolbar", Rect: &r}) }

// HideToolbar implements engine.Overlay.
func (s *Session) HideToolbar() { s.push(frame{Op: "toolbar-hide"}) }

// ShowMarquee implements engine.Overlay.
func (s *Session) ShowMarquee(r dom.Rect) { s.push(frame{Op: "marquee", Rect: &r}) }

// HideMarquee implements engine.Overlay.
func (s *Session) HideMarquee() { s.push(frame{Op: "marquee-hide"}) }

// Flash implements engine.Overlay.
func (s *Session) Flash(id string) { s.push(frame{Op: "flash", ID: id}) }
