package host

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingolens/lingolens-go/internal/protocol"
)

type fakeTranslator struct {
	mu       sync.Mutex
	oneErr   error
	manyErr  error
	oneCalls int
}

func (f *fakeTranslator) TranslateOne(_ context.Context, text, language string) (string, error) {
	f.mu.Lock()
	f.oneCalls++
	f.mu.Unlock()
	if f.oneErr != nil {
		return "", f.oneErr
	}
	return "[" + language + "] " + text, nil
}

func (f *fakeTranslator) TranslateMany(_ context.Context, texts []string, language string) ([]string, error) {
	if f.manyErr != nil {
		return nil, f.manyErr
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		if strings.Contains(t, "skip") {
			out[i] = ""
			continue
		}
		out[i] = "[" + language + "] " + t
	}
	return out, nil
}

type fakeAssistant struct{}

func (fakeAssistant) Act(_ context.Context, action protocol.Type, selected, _, _ string) (string, error) {
	return string(action) + ": " + selected, nil
}

type capturePoster struct {
	mu   sync.Mutex
	msgs []protocol.Message
	ch   chan protocol.Message
}

func newCapturePoster() *capturePoster {
	return &capturePoster{ch: make(chan protocol.Message, 32)}
}

func (p *capturePoster) Post(m protocol.Message) {
	p.mu.Lock()
	p.msgs = append(p.msgs, m)
	p.mu.Unlock()
	p.ch <- m
}

func (p *capturePoster) wait(t *testing.T) protocol.Message {
	t.Helper()
	select {
	case m := <-p.ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a message")
		return nil
	}
}

func (p *capturePoster) all() []protocol.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]protocol.Message{}, p.msgs...)
}

type captureSink struct {
	NopSink
	mu      sync.Mutex
	layouts []string
	themes  []string
	batches []int
	states  []protocol.PageState
	actions chan string
}

func newCaptureSink() *captureSink {
	return &captureSink{actions: make(chan string, 8)}
}

func (s *captureSink) LayoutError(_ *Pane, id, errorType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layouts = append(s.layouts, id+":"+errorType)
}

func (s *captureSink) ThemeColor(_ *Pane, color string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.themes = append(s.themes, color)
}

func (s *captureSink) BatchComplete(_ *Pane, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, count)
}

func (s *captureSink) PageState(_ *Pane, state protocol.PageState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
}

func (s *captureSink) ActionResult(_ *Pane, action protocol.Type, result string, err error) {
	if err != nil {
		s.actions <- "error: " + err.Error()
		return
	}
	s.actions <- result
}

func newTestHost(tr *fakeTranslator, sink Sink) *Host {
	return New(tr, fakeAssistant{}, WithSink(sink), WithTimeout(time.Second))
}

func TestSingleTranslationRoutedToSender(t *testing.T) {
	tr := &fakeTranslator{}
	h := newTestHost(tr, NopSink{})

	postA, postB := newCapturePoster(), newCapturePoster()
	paneA := h.AttachPane(postA, "es")
	paneB := h.AttachPane(postB, "fr")
	defer h.DetachPane(paneA)
	defer h.DetachPane(paneB)

	h.Handle(paneA, protocol.TranslateRequest{ID: "BODY-0/P-0", Text: "Welcome home"})

	res := postA.wait(t).(protocol.TranslationResult)
	assert.Equal(t, "BODY-0/P-0", res.ID)
	assert.Equal(t, "[es] Welcome home", res.TranslatedText)
	assert.True(t, res.Success)
	assert.Empty(t, postB.all(), "responses go only to the pane that asked")
}

func TestSingleTranslationFailure(t *testing.T) {
	tr := &fakeTranslator{oneErr: errors.New("service down")}
	h := newTestHost(tr, NopSink{})
	post := newCapturePoster()
	pane := h.AttachPane(post, "es")
	defer h.DetachPane(pane)

	h.Handle(pane, protocol.TranslateRequest{ID: "x", Text: "hello"})

	res := post.wait(t).(protocol.TranslationResult)
	assert.False(t, res.Success)
	assert.Empty(t, res.TranslatedText)
}

func TestBatchPositionalWithSubstitution(t *testing.T) {
	tr := &fakeTranslator{}
	h := newTestHost(tr, NopSink{})
	post := newCapturePoster()
	pane := h.AttachPane(post, "es")
	defer h.DetachPane(pane)

	h.Handle(pane, protocol.BatchTranslateRequest{Payload: []protocol.BatchItem{
		{ID: "a", Text: "one"},
		{ID: "b", Text: "skip me"},
		{ID: "c", Text: "three"},
	}})

	res := post.wait(t).(protocol.BatchTranslateResponse)
	require.Len(t, res.Results, 3)
	assert.Equal(t, "[es] one", res.Results[0].TranslatedText)
	assert.Equal(t, "skip me", res.Results[1].TranslatedText, "failed slot carries the original")
	assert.True(t, res.Results[1].Success)
	assert.Equal(t, "[es] three", res.Results[2].TranslatedText)
	for i, r := range res.Results {
		assert.Equal(t, []string{"a", "b", "c"}[i], r.ID)
	}
}

func TestBatchWholeCallFailureSubstitutesAll(t *testing.T) {
	tr := &fakeTranslator{manyErr: errors.New("timeout")}
	h := newTestHost(tr, NopSink{})
	post := newCapturePoster()
	pane := h.AttachPane(post, "es")
	defer h.DetachPane(pane)

	h.Handle(pane, protocol.BatchTranslateRequest{Payload: []protocol.BatchItem{
		{ID: "a", Text: "one"},
		{ID: "b", Text: "two"},
	}})

	res := post.wait(t).(protocol.BatchTranslateResponse)
	require.Len(t, res.Results, 2)
	for i, r := range res.Results {
		assert.True(t, r.Success)
		assert.Equal(t, []string{"one", "two"}[i], r.TranslatedText)
	}
}

func TestBatchesSerializedPerPane(t *testing.T) {
	tr := &fakeTranslator{}
	h := newTestHost(tr, NopSink{})
	post := newCapturePoster()
	pane := h.AttachPane(post, "es")
	defer h.DetachPane(pane)

	h.Handle(pane, protocol.BatchTranslateRequest{Payload: []protocol.BatchItem{{ID: "a", Text: "first"}}})
	h.Handle(pane, protocol.BatchTranslateRequest{Payload: []protocol.BatchItem{{ID: "b", Text: "second"}}})

	first := post.wait(t).(protocol.BatchTranslateResponse)
	second := post.wait(t).(protocol.BatchTranslateResponse)
	assert.Equal(t, "a", first.Results[0].ID)
	assert.Equal(t, "b", second.Results[0].ID)
}

func TestLanguageUpdateDebounced(t *testing.T) {
	tr := &fakeTranslator{}
	h := newTestHost(tr, NopSink{})
	post := newCapturePoster()
	pane := h.AttachPane(post, "es")
	defer h.DetachPane(pane)

	h.SetLanguage(pane, "fr")
	h.SetLanguage(pane, "de")
	h.SetLanguage(pane, "it")

	msg := post.wait(t)
	assert.Equal(t, protocol.TypeLanguageUpdate, msg.MessageType())
	assert.Equal(t, "it", pane.Language())

	time.Sleep(3 * frame)
	assert.Len(t, post.all(), 1, "rapid switches coalesce into one update")
}

func TestMirrorBuiltFromPageState(t *testing.T) {
	sink := newCaptureSink()
	h := newTestHost(&fakeTranslator{}, sink)
	post := newCapturePoster()
	pane := h.AttachPane(post, "es")
	defer h.DetachPane(pane)

	state := protocol.PageState{
		Title: "Example Domain",
		Translations: map[string]protocol.SnapshotEntry{
			"BODY-0/P-0": {Original: "Hi", Translated: "Hola", IsLocked: true, Status: "active"},
		},
	}
	h.Handle(pane, protocol.PageStateResponse{Payload: state})

	assert.Equal(t, "Example Domain", pane.Title())
	mirror := pane.Mirror()
	require.Contains(t, mirror, "BODY-0/P-0")
	assert.True(t, mirror["BODY-0/P-0"].IsLocked)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.states, 1)
}

func TestRetranslateEntryHonorsLock(t *testing.T) {
	h := newTestHost(&fakeTranslator{}, NopSink{})
	post := newCapturePoster()
	pane := h.AttachPane(post, "es")
	defer h.DetachPane(pane)

	h.Handle(pane, protocol.PageStateResponse{Payload: protocol.PageState{
		Translations: map[string]protocol.SnapshotEntry{
			"locked-1": {Original: "Hi", Translated: "Hola", IsLocked: true},
			"free-1":   {Original: "Bye", Translated: "Adios"},
		},
	}})

	err := h.RetranslateEntry(pane, "locked-1")
	assert.ErrorIs(t, err, ErrEntryLocked)

	require.NoError(t, h.RetranslateEntry(pane, "free-1"))
	upd := post.wait(t).(protocol.UpdateTranslation)
	assert.Equal(t, "free-1", upd.ID)
	assert.Equal(t, "[es] Bye", upd.Text)
}

func TestRestoreConvertsSnapshotEntries(t *testing.T) {
	h := newTestHost(&fakeTranslator{}, NopSink{})
	post := newCapturePoster()
	pane := h.AttachPane(post, "es")
	defer h.DetachPane(pane)

	h.Restore(pane, protocol.PageState{Translations: map[string]protocol.SnapshotEntry{
		"BODY-0/H1-0": {Original: "Hi", Translated: "Hola", IsLocked: true},
	}})

	msg := post.wait(t).(protocol.RestorePageState)
	require.Contains(t, msg.Translations, "BODY-0/H1-0")
	rec := msg.Translations["BODY-0/H1-0"]
	assert.Equal(t, "Hi", rec.Original)
	assert.Equal(t, "Hola", rec.Translated)
	assert.True(t, rec.IsLocked)
}

func TestAIActionFlowsToSink(t *testing.T) {
	sink := newCaptureSink()
	h := newTestHost(&fakeTranslator{}, sink)
	post := newCapturePoster()
	pane := h.AttachPane(post, "es")
	defer h.DetachPane(pane)

	h.Handle(pane, protocol.AIActionRequest{
		Type: protocol.TypeExplainRequest, SelectedText: "quantum foam",
	})

	select {
	case got := <-sink.actions:
		assert.Equal(t, "EXPLAIN_REQUEST: quantum foam", got)
	case <-time.After(2 * time.Second):
		t.Fatal("no action result")
	}
}

func TestHandleRawTolerance(t *testing.T) {
	sink := newCaptureSink()
	h := newTestHost(&fakeTranslator{}, sink)
	post := newCapturePoster()
	pane := h.AttachPane(post, "es")
	defer h.DetachPane(pane)

	h.HandleRaw(pane, []byte(`{{{not json`))
	h.HandleRaw(pane, []byte(`{"type":"NO_SUCH_TYPE"}`))
	h.HandleRaw(pane, []byte(`{"type":"THEME_COLOR_DETECTED","color":"#abc"}`))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, []string{"#abc"}, sink.themes)
}

func TestSinkEventsForwarded(t *testing.T) {
	sink := newCaptureSink()
	h := newTestHost(&fakeTranslator{}, sink)
	post := newCapturePoster()
	pane := h.AttachPane(post, "es")
	defer h.DetachPane(pane)

	h.Handle(pane, protocol.LayoutErrorDetected{ID: "BODY-0/P-0", ErrorType: "Overflow"})
	h.Handle(pane, protocol.BatchTranslationComplete{Count: 3})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, []string{"BODY-0/P-0:Overflow"}, sink.layouts)
	assert.Equal(t, []int{3}, sink.batches)
}

func TestUpdateEntryUpdatesMirror(t *testing.T) {
	h := newTestHost(&fakeTranslator{}, NopSink{})
	post := newCapturePoster()
	pane := h.AttachPane(post, "es")
	defer h.DetachPane(pane)

	h.Handle(pane, protocol.PageStateResponse{Payload: protocol.PageState{
		Translations: map[string]protocol.SnapshotEntry{
			"id-1": {Original: "Hi", Translated: "Hola"},
		},
	}})

	locked := true
	h.UpdateEntry(pane, "id-1", "Buenas", &locked)

	msg := post.wait(t).(protocol.UpdateTranslation)
	assert.Equal(t, "Buenas", msg.Text)
	require.NotNil(t, msg.IsLocked)
	assert.True(t, *msg.IsLocked)

	mirror := pane.Mirror()
	assert.Equal(t, "Buenas", mirror["id-1"].Translated)
	assert.Equal(t, "modified", mirror["id-1"].Status)
	assert.True(t, mirror["id-1"].IsLocked)
}
