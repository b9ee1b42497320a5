// Package host implements the orchestrator side of the translation protocol:
// it owns the active target language per pane, brokers translation and AI
// RPCs to external services, and routes every message strictly to the pane it
// came from. The host is the only component that touches the network or
// persistent storage.
package host

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lingolens/lingolens-go/internal/logging"
	"github.com/lingolens/lingolens-go/internal/protocol"
)

// frame is the debounce window for coalescing consecutive language updates.
const frame = 16 * time.Millisecond

// ErrEntryLocked rejects retranslation of a locked entry. Locked entries only
// change through an explicit edit.
var ErrEntryLocked = errors.New("entry is locked")

// Translator brokers the external translation service.
type Translator interface {
	TranslateOne(ctx context.Context, text, language string) (string, error)
	// TranslateMany returns exactly one translation per input, in order.
	TranslateMany(ctx context.Context, texts []string, language string) ([]string, error)
}

// Assistant brokers the external AI explanation service.
type Assistant interface {
	Act(ctx context.Context, action protocol.Type, selected, surrounding, pageTitle string) (string, error)
}

// Sink receives pane events addressed to the shell UI.
type Sink interface {
	ThemeColor(pane *Pane, color string)
	LayoutError(pane *Pane, id, errorType string)
	BatchComplete(pane *Pane, count int)
	PageState(pane *Pane, state protocol.PageState)
	ExportReady(pane *Pane, payload map[string]string, language string)
	ActionResult(pane *Pane, action protocol.Type, result string, err error)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) ThemeColor(*Pane, string)                          {}
func (NopSink) LayoutError(*Pane, string, string)                 {}
func (NopSink) BatchComplete(*Pane, int)                          {}
func (NopSink) PageState(*Pane, protocol.PageState)               {}
func (NopSink) ExportReady(*Pane, map[string]string, string)      {}
func (NopSink) ActionResult(*Pane, protocol.Type, string, error)  {}

// Host is the orchestrator. One host serves many panes (the matrix variant
// runs one pane per target language); state never crosses panes.
type Host struct {
	mu sync.Mutex

	log        *logging.Logger
	translator Translator
	assistant  Assistant
	sink       Sink
	timeout    time.Duration

	panes map[*Pane]struct{}
}

// New creates a host.
func New(translator Translator, assistant Assistant, opts ...Option) *Host {
	h := &Host{
		log:        logging.NewNop(),
		translator: translator,
		assistant:  assistant,
		sink:       NopSink{},
		timeout:    30 * time.Second,
		panes:      make(map[*Pane]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the host logger.
func WithLogger(log *logging.Logger) Option { return func(h *Host) { h.log = log } }

// WithSink sets the shell event sink.
func WithSink(s Sink) Option { return func(h *Host) { h.sink = s } }

// WithTimeout bounds each external RPC.
func WithTimeout(d time.Duration) Option { return func(h *Host) { h.timeout = d } }

// Pane is one iframe's worth of host state. Messages from a pane's engine are
// answered on that pane's poster and never another's.
type Pane struct {
	ID       string
	host     *Host
	post     protocol.Poster
	language string

	mu     sync.Mutex
	mirror map[string]protocol.SnapshotEntry
	title  string

	batches chan protocol.BatchTranslateRequest
	done    chan struct{}

	langMu      sync.Mutex
	langPending bool
}

// AttachPane registers a pane with its outbound poster and target language.
func (h *Host) AttachPane(post protocol.Poster, language string) *Pane {
	p := &Pane{
		ID:       uuid.NewString(),
		host:     h,
		post:     post,
		language: language,
		mirror:   make(map[string]protocol.SnapshotEntry),
		batches:  make(chan protocol.BatchTranslateRequest, 16),
		done:     make(chan struct{}),
	}
	go p.batchWorker()

	h.mu.Lock()
	h.panes[p] = struct{}{}
	h.mu.Unlock()
	return p
}

// DetachPane unregisters a pane and stops its batch worker.
func (h *Host) DetachPane(p *Pane) {
	h.mu.Lock()
	if _, ok := h.panes[p]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.panes, p)
	h.mu.Unlock()
	close(p.done)
}

// Language returns the pane's active target language.
func (p *Pane) Language() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.language
}

// Title returns the mirrored document title.
func (p *Pane) Title() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title
}

// Mirror returns a copy of the snapshot mirror built from state responses.
func (p *Pane) Mirror() map[string]protocol.SnapshotEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]protocol.SnapshotEntry, len(p.mirror))
	for k, v := range p.mirror {
		out[k] = v
	}
	return out
}

// HandleRaw validates and dispatches one wire message from a pane. Malformed
// payloads and unknown types are discarded; the host never crashes on input.
func (h *Host) HandleRaw(p *Pane, data []byte) {
	msg, err := protocol.Unmarshal(data)
	if err != nil {
		if !errors.Is(err, protocol.ErrUnknownType) {
			h.log.Debug("discarding malformed message", zap.Error(err))
		}
		return
	}
	h.Handle(p, msg)
}

// Handle routes one engine-to-host message for the pane that sent it.
func (h *Host) Handle(p *Pane, msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.TranslateRequest:
		go h.translateOne(p, m)
	case protocol.BatchTranslateRequest:
		select {
		case p.batches <- m:
		case <-p.done:
		}
	case protocol.BatchTranslationComplete:
		h.sink.BatchComplete(p, m.Count)
	case protocol.PageStateResponse:
		p.mu.Lock()
		p.title = m.Payload.Title
		for id, entry := range m.Payload.Translations {
			p.mirror[id] = entry
		}
		p.mu.Unlock()
		h.sink.PageState(p, m.Payload)
	case protocol.JSONDownloadReady:
		h.sink.ExportReady(p, m.Payload, m.Language)
	case protocol.LayoutErrorDetected:
		h.sink.LayoutError(p, m.ID, m.ErrorType)
	case protocol.ThemeColorDetected:
		h.sink.ThemeColor(p, m.Color)
	case protocol.AIActionRequest:
		go h.act(p, m)
	default:
		// Host-to-engine types echoed back, or future additions: ignore.
	}
}

func (h *Host) translateOne(p *Pane, m protocol.TranslateRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	reqID := uuid.NewString()
	translated, err := h.translator.TranslateOne(ctx, m.Text, p.Language())
	if err != nil {
		h.log.Warn("translation failed",
			zap.String("request", reqID), zap.String("pane", p.ID), zap.Error(err))
		p.post.Post(protocol.TranslationResult{ID: m.ID, Success: false})
		return
	}
	p.post.Post(protocol.TranslationResult{ID: m.ID, TranslatedText: translated, Success: true})
}

func (h *Host) act(p *Pane, m protocol.AIActionRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	result, err := h.assistant.Act(ctx, m.Type, m.SelectedText, m.SurroundingText, m.PageTitle)
	h.sink.ActionResult(p, m.Type, result, err)
}
