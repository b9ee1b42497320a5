// Package engine implements the in-page translation engine: candidacy
// detection, durable element identity, hover and click affordances, single,
// batch and area translation, layout-health measurement, snapshots and
// restore, and the message protocol to the host. It runs against the
// server-side DOM model of one proxied document; the browser bootstrap feeds
// it events and geometry and replays its mutations.
package engine

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lingolens/lingolens-go/internal/dom"
	"github.com/lingolens/lingolens-go/internal/logging"
	"github.com/lingolens/lingolens-go/internal/protocol"
)

// Config holds engine tuning knobs.
type Config struct {
	// WatchdogTimeout clears the translating visual when no response arrives.
	WatchdogTimeout time.Duration
	// MeasureDelay separates a text mutation from its layout measurement so
	// the browser has a chance to reflow first.
	MeasureDelay time.Duration
	// ThemeDelay postpones theme-color detection past initial paint.
	ThemeDelay time.Duration
	// ViewportBuffer extends batch collection above and below the viewport.
	ViewportBuffer float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		WatchdogTimeout: 10 * time.Second,
		MeasureDelay:    50 * time.Millisecond,
		ThemeDelay:      time.Second,
	}
}

// Scheduler defers work, standing in for the browser's timer queue. Tests
// substitute a manual implementation.
type Scheduler interface {
	After(d time.Duration, fn func())
}

// TimerScheduler schedules on real timers.
type TimerScheduler struct{}

// After implements Scheduler.
func (TimerScheduler) After(d time.Duration, fn func()) { time.AfterFunc(d, fn) }

// Engine is the per-document translation engine. All methods are safe for
// concurrent use; internally the engine serializes on one mutex, mirroring
// the cooperative single-threaded loop it models. The Poster must deliver
// asynchronously and never call back into the engine on the posting
// goroutine.
type Engine struct {
	mu sync.Mutex

	log     *logging.Logger
	doc     *dom.Document
	post    protocol.Poster
	overlay Overlay
	sched   Scheduler
	cfg     Config

	entries map[string]*Entry

	hovered        *dom.Element
	toolbarVisible bool
	themeSent      bool

	marquee marqueeState
}

// New creates an engine over a parsed document.
func New(doc *dom.Document, post protocol.Poster, opts ...Option) *Engine {
	e := &Engine{
		log:     logging.NewNop(),
		doc:     doc,
		post:    post,
		overlay: NopOverlay{},
		sched:   TimerScheduler{},
		cfg:     DefaultConfig(),
		entries: make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log *logging.Logger) Option { return func(e *Engine) { e.log = log } }

// WithOverlay sets the overlay sink.
func WithOverlay(o Overlay) Option { return func(e *Engine) { e.overlay = o } }

// WithScheduler sets the deferral scheduler.
func WithScheduler(s Scheduler) Option { return func(e *Engine) { e.sched = s } }

// WithConfig sets the tuning knobs.
func WithConfig(cfg Config) Option { return func(e *Engine) { e.cfg = cfg } }

// Document returns the engine's document model.
func (e *Engine) Document() *dom.Document { return e.doc }

// Boot arms boot-time work: theme-color detection after the configured delay.
func (e *Engine) Boot() {
	e.sched.After(e.cfg.ThemeDelay, e.detectTheme)
}

// Entry returns a copy of the record for an ID and whether one exists.
func (e *Engine) Entry(id string) (Entry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *ent, true
}

// SetViewport stores the browser-reported viewport.
func (e *Engine) SetViewport(v dom.Viewport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.doc.SetViewport(v)
}

// UpdateGeometry stores browser-reported measurements for one element.
// Unresolvable IDs are ignored.
func (e *Engine) UpdateGeometry(id string, m dom.Metrics, r dom.Rect) {
	e.mu.Lock()
	defer e.mu.Unlock()
	el := e.doc.ResolveID(id)
	if el == nil {
		return
	}
	el.SetMetrics(m)
	el.SetRect(r)
}

// DrainChanges returns the document mutations recorded since the last drain,
// in order. The bridge calls this after every event or message delivery and
// replays the result into the live page.
func (e *Engine) DrainChanges() []dom.Change {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc.DrainChanges()
}

// HandleMessage dispatches one host-to-agent message. Unknown types are
// ignored; the engine never errors back across the bus.
func (e *Engine) HandleMessage(msg protocol.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch m := msg.(type) {
	case protocol.TranslationResult:
		e.handleTranslationResult(m)
	case protocol.BatchTranslateResponse:
		e.handleBatchResponse(m)
	case protocol.TriggerBatchTranslate:
		e.triggerBatch()
	case protocol.ToggleMarquee:
		e.toggleMarquee(m.IsActive)
	case protocol.LanguageUpdate:
		e.retranslateActive()
	case protocol.RetranslateActive:
		e.retranslateActive()
	case protocol.RequestPageState:
		e.sendPageState()
	case protocol.RequestJSONDownload:
		e.sendJSONDownload(m.Language)
	case protocol.RestorePageState:
		e.restorePageState(m.Translations)
	case protocol.UpdateTranslation:
		e.updateTranslation(m)
	case protocol.HighlightElement:
		e.highlightElement(m.ID)
	default:
		e.log.Debug("ignoring message", zap.String("type", string(msg.MessageType())))
	}
}
