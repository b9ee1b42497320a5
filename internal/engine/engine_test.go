package engine

import (
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingolens/lingolens-go/internal/dom"
	"github.com/lingolens/lingolens-go/internal/protocol"
)

type fakePoster struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (p *fakePoster) Post(m protocol.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, m)
}

func (p *fakePoster) messages() []protocol.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]protocol.Message{}, p.msgs...)
}

func (p *fakePoster) ofType(t protocol.Type) []protocol.Message {
	var out []protocol.Message
	for _, m := range p.messages() {
		if m.MessageType() == t {
			out = append(out, m)
		}
	}
	return out
}

type task struct {
	d  time.Duration
	fn func()
}

// fakeScheduler queues deferred work until the test fires it.
type fakeScheduler struct {
	mu    sync.Mutex
	tasks []task
}

func (s *fakeScheduler) After(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task{d, fn})
}

// runAll drains the queue in order, including tasks scheduled while draining.
func (s *fakeScheduler) runAll() {
	for {
		s.mu.Lock()
		if len(s.tasks) == 0 {
			s.mu.Unlock()
			return
		}
		t := s.tasks[0]
		s.tasks = s.tasks[1:]
		s.mu.Unlock()
		t.fn()
	}
}

type fakeOverlay struct {
	tooltips     []Tooltip
	tooltipHides int
	toolbars     []dom.Rect
	toolbarHides int
	marquees     []dom.Rect
	marqueeHides int
	flashes      []string
}

func (o *fakeOverlay) ShowTooltip(t Tooltip)  { o.tooltips = append(o.tooltips, t) }
func (o *fakeOverlay) HideTooltip()           { o.tooltipHides++ }
func (o *fakeOverlay) ShowToolbar(r dom.Rect) { o.toolbars = append(o.toolbars, r) }
func (o *fakeOverlay) HideToolbar()           { o.toolbarHides++ }
func (o *fakeOverlay) ShowMarquee(r dom.Rect) { o.marquees = append(o.marquees, r) }
func (o *fakeOverlay) HideMarquee()           { o.marqueeHides++ }
func (o *fakeOverlay) Flash(id string)        { o.flashes = append(o.flashes, id) }

const welcomeID = "BODY-0/DIV-0/P-1"

const welcomeHTML = `<html><head><title>Example Domain</title></head><body>
<div>
  <p>First paragraph</p>
  <p>Welcome home</p>
</div>
</body></html>`

func newTestEngine(t *testing.T, page string) (*Engine, *fakePoster, *fakeScheduler, *fakeOverlay) {
	t.Helper()
	doc, err := dom.ParseString(page)
	require.NoError(t, err)
	doc.SetViewport(dom.Viewport{Width: 800, Height: 600})

	post := &fakePoster{}
	sched := &fakeScheduler{}
	overlay := &fakeOverlay{}
	e := New(doc, post,
		WithScheduler(sched),
		WithOverlay(overlay),
	)
	return e, post, sched, overlay
}

func TestClickTranslateHappyPath(t *testing.T) {
	e, post, _, overlay := newTestEngine(t, welcomeHTML)

	require.True(t, e.PointerOver(welcomeID))
	el := e.Document().ResolveID(welcomeID)
	require.NotNil(t, el)
	assert.True(t, el.HasClass("lingo-hover-highlight"))
	require.Len(t, overlay.tooltips, 1)
	assert.Equal(t, "Translate", overlay.tooltips[0].Label)

	e.Click(welcomeID, false)
	reqs := post.ofType(protocol.TypeTranslateRequest)
	require.Len(t, reqs, 1)
	req := reqs[0].(protocol.TranslateRequest)
	assert.Equal(t, welcomeID, req.ID)
	assert.Equal(t, "Welcome home", req.Text)
	assert.True(t, el.HasClass("lingo-translating"))

	state, _ := el.Attr("data-lingo-state")
	assert.Equal(t, "translating", state)

	e.HandleMessage(protocol.TranslationResult{
		ID: welcomeID, TranslatedText: "Bienvenido a casa", Success: true,
	})

	assert.Equal(t, "Bienvenido a casa", el.InnerText())
	assert.True(t, el.HasClass("lingo-translated"))
	assert.False(t, el.HasClass("lingo-translating"))
	state, _ = el.Attr("data-lingo-state")
	assert.Equal(t, "translated", state)

	ent, ok := e.Entry(welcomeID)
	require.True(t, ok)
	assert.Equal(t, "Welcome home", ent.Original)
	assert.Equal(t, "Bienvenido a casa", ent.Translated)
	assert.Equal(t, StateTranslated, ent.State)
}

func TestToggleNeedsNoNetwork(t *testing.T) {
	e, post, _, _ := newTestEngine(t, welcomeHTML)
	el := e.Document().ResolveID(welcomeID)

	require.True(t, e.PointerOver(welcomeID))
	e.Click(welcomeID, false)
	e.HandleMessage(protocol.TranslationResult{
		ID: welcomeID, TranslatedText: "Bienvenido a casa", Success: true,
	})
	sent := len(post.messages())

	e.Click(welcomeID, false)
	assert.Equal(t, "Welcome home", el.InnerText())
	state, _ := el.Attr("data-lingo-state")
	assert.Equal(t, "original", state)
	assert.False(t, el.HasClass("lingo-translated"))

	e.Click(welcomeID, false)
	assert.Equal(t, "Bienvenido a casa", el.InnerText())
	state, _ = el.Attr("data-lingo-state")
	assert.Equal(t, "translated", state)

	assert.Len(t, post.messages(), sent, "toggling must not touch the network")
}

func TestClickIgnoredDuringSelection(t *testing.T) {
	e, post, _, _ := newTestEngine(t, welcomeHTML)

	require.True(t, e.PointerOver(welcomeID))
	e.Click(welcomeID, true)
	assert.Empty(t, post.ofType(protocol.TypeTranslateRequest))
}

func TestPointerOverRejectsNonCandidates(t *testing.T) {
	page := `<html><body>
<div>
  <p>42</p>
  <p style="display: none">hidden text</p>
  <pre>code block</pre>
  <p>ok text</p>
</div>
</body></html>`
	e, _, _, _ := newTestEngine(t, page)

	assert.False(t, e.PointerOver("BODY-0/DIV-0/P-0"), "numeric only")
	assert.False(t, e.PointerOver("BODY-0/DIV-0/P-1"), "display none")
	assert.False(t, e.PointerOver("BODY-0/DIV-0/PRE-0"), "excluded tag")
	assert.True(t, e.PointerOver("BODY-0/DIV-0/P-2"))
}

func TestTranslationFailureFlashesAndResets(t *testing.T) {
	e, _, sched, _ := newTestEngine(t, welcomeHTML)
	el := e.Document().ResolveID(welcomeID)

	require.True(t, e.PointerOver(welcomeID))
	e.Click(welcomeID, false)
	e.HandleMessage(protocol.TranslationResult{ID: welcomeID, Success: false})

	assert.Equal(t, "2px solid red", el.StyleProp("outline"))
	assert.Equal(t, "Welcome home", el.InnerText())
	ent, _ := e.Entry(welcomeID)
	assert.Equal(t, StateAbsent, ent.State)

	sched.runAll()
	assert.Equal(t, "", el.StyleProp("outline"))
}

func TestWatchdogClearsVisualButLateResultApplies(t *testing.T) {
	e, _, sched, _ := newTestEngine(t, welcomeHTML)
	el := e.Document().ResolveID(welcomeID)

	require.True(t, e.PointerOver(welcomeID))
	e.Click(welcomeID, false)
	assert.True(t, el.HasClass("lingo-translating"))

	sched.runAll()
	assert.False(t, el.HasClass("lingo-translating"))
	ent, _ := e.Entry(welcomeID)
	assert.Equal(t, StateTranslating, ent.State)

	e.HandleMessage(protocol.TranslationResult{
		ID: welcomeID, TranslatedText: "Bienvenido a casa", Success: true,
	})
	assert.Equal(t, "Bienvenido a casa", el.InnerText())
	ent, _ = e.Entry(welcomeID)
	assert.Equal(t, StateTranslated, ent.State)
}

const batchHTML = `<html><body>
<div>
  <p>Alpha text</p>
  <p>Beta text</p>
  <p>Gamma text</p>
</div>
</body></html>`

func placeInViewport(t *testing.T, e *Engine, ids ...string) {
	t.Helper()
	for i, id := range ids {
		top := float64(i * 40)
		e.UpdateGeometry(id,
			dom.Metrics{Width: 400, Height: 30, ScrollWidth: 400, ScrollHeight: 30},
			dom.Rect{Left: 0, Top: top, Right: 400, Bottom: top + 30},
		)
	}
}

func TestBatchTranslateViewport(t *testing.T) {
	e, post, _, _ := newTestEngine(t, batchHTML)
	ids := []string{"BODY-0/DIV-0/P-0", "BODY-0/DIV-0/P-1", "BODY-0/DIV-0/P-2"}
	placeInViewport(t, e, ids...)

	e.HandleMessage(protocol.TriggerBatchTranslate{})
	reqs := post.ofType(protocol.TypeBatchTranslateRequest)
	require.Len(t, reqs, 1)
	payload := reqs[0].(protocol.BatchTranslateRequest).Payload
	require.Len(t, payload, 3)
	assert.Equal(t, "Alpha text", payload[0].Text)
	assert.Equal(t, ids, []string{payload[0].ID, payload[1].ID, payload[2].ID})

	e.HandleMessage(protocol.BatchTranslateResponse{Results: []protocol.BatchResult{
		{ID: ids[0], TranslatedText: "a", Success: true},
		{ID: ids[1], TranslatedText: "b", Success: true},
		{ID: ids[2], TranslatedText: "c", Success: true},
	}})

	for i, id := range ids {
		el := e.Document().ResolveID(id)
		assert.Equal(t, []string{"a", "b", "c"}[i], el.InnerText())
	}
	done := post.ofType(protocol.TypeBatchTranslationComplete)
	require.Len(t, done, 1)
	assert.Equal(t, 3, done[0].(protocol.BatchTranslationComplete).Count)
}

func TestBatchSkipsOffscreenAndTranslated(t *testing.T) {
	e, post, _, _ := newTestEngine(t, batchHTML)
	ids := []string{"BODY-0/DIV-0/P-0", "BODY-0/DIV-0/P-1", "BODY-0/DIV-0/P-2"}
	placeInViewport(t, e, ids[0], ids[1])
	e.UpdateGeometry(ids[2],
		dom.Metrics{Width: 400, Height: 30, ScrollWidth: 400, ScrollHeight: 30},
		dom.Rect{Left: 0, Top: 5000, Right: 400, Bottom: 5030},
	)

	require.True(t, e.PointerOver(ids[0]))
	e.Click(ids[0], false)
	e.HandleMessage(protocol.TranslationResult{ID: ids[0], TranslatedText: "a", Success: true})

	e.HandleMessage(protocol.TriggerBatchTranslate{})
	reqs := post.ofType(protocol.TypeBatchTranslateRequest)
	require.Len(t, reqs, 1)
	payload := reqs[0].(protocol.BatchTranslateRequest).Payload
	require.Len(t, payload, 1, "translated and offscreen elements are skipped")
	assert.Equal(t, ids[1], payload[0].ID)
}

func TestBatchEmptyViewportCompletesWithZero(t *testing.T) {
	e, post, _, _ := newTestEngine(t, batchHTML)

	e.HandleMessage(protocol.TriggerBatchTranslate{})
	done := post.ofType(protocol.TypeBatchTranslationComplete)
	require.Len(t, done, 1)
	assert.Equal(t, 0, done[0].(protocol.BatchTranslationComplete).Count)
	assert.Empty(t, post.ofType(protocol.TypeBatchTranslateRequest))
}

func TestPartialBatchFailure(t *testing.T) {
	e, post, sched, _ := newTestEngine(t, batchHTML)
	ids := []string{"BODY-0/DIV-0/P-0", "BODY-0/DIV-0/P-1", "BODY-0/DIV-0/P-2"}
	placeInViewport(t, e, ids...)

	e.HandleMessage(protocol.TriggerBatchTranslate{})
	e.HandleMessage(protocol.BatchTranslateResponse{Results: []protocol.BatchResult{
		{ID: ids[0], TranslatedText: "a", Success: true},
		{ID: ids[1], Success: false},
		{ID: ids[2], TranslatedText: "c", Success: true},
	}})

	assert.Equal(t, "a", e.Document().ResolveID(ids[0]).InnerText())
	assert.Equal(t, "c", e.Document().ResolveID(ids[2]).InnerText())

	failed := e.Document().ResolveID(ids[1])
	assert.Equal(t, "Beta text", failed.InnerText())
	assert.Equal(t, "2px solid red", failed.StyleProp("outline"))
	ent, _ := e.Entry(ids[1])
	assert.Equal(t, StateAbsent, ent.State)

	done := post.ofType(protocol.TypeBatchTranslationComplete)
	require.Len(t, done, 1)
	assert.Equal(t, 2, done[0].(protocol.BatchTranslationComplete).Count)

	sched.runAll()
	assert.Equal(t, "", failed.StyleProp("outline"))
}

func TestBatchSubstitutedOriginalShowsNoIndicator(t *testing.T) {
	e, _, _, _ := newTestEngine(t, batchHTML)
	id := "BODY-0/DIV-0/P-0"
	placeInViewport(t, e, id)

	e.HandleMessage(protocol.TriggerBatchTranslate{})
	e.HandleMessage(protocol.BatchTranslateResponse{Results: []protocol.BatchResult{
		{ID: id, TranslatedText: "Alpha text", Success: true},
	}})

	el := e.Document().ResolveID(id)
	assert.Equal(t, "Alpha text", el.InnerText())
	assert.False(t, el.HasClass("lingo-translated"), "identical text shows no translated indicator")
}

func TestLayoutOverflowDetected(t *testing.T) {
	e, post, sched, _ := newTestEngine(t, welcomeHTML)
	el := e.Document().ResolveID(welcomeID)

	e.UpdateGeometry(welcomeID,
		dom.Metrics{Width: 80, Height: 20, ScrollWidth: 80, ScrollHeight: 20},
		dom.Rect{Left: 0, Top: 100, Right: 80, Bottom: 120},
	)
	require.True(t, e.PointerOver(welcomeID))
	e.Click(welcomeID, false)
	e.HandleMessage(protocol.TranslationResult{
		ID: welcomeID, TranslatedText: "Acepto con gusto", Success: true,
	})

	// Fresh post-reflow geometry arrives before the deferred measurement runs.
	e.UpdateGeometry(welcomeID,
		dom.Metrics{Width: 80, Height: 20, ScrollWidth: 180, ScrollHeight: 20},
		dom.Rect{Left: 0, Top: 100, Right: 80, Bottom: 120},
	)
	sched.runAll()

	assert.True(t, el.HasClass("lingo-layout-error"))
	errAttr, _ := el.Attr("data-layout-error")
	assert.Equal(t, "Overflow", errAttr)
	title, _ := el.Attr("title")
	assert.Equal(t, "Layout Break Detected: Overflow", title)
	assert.Equal(t, "relative", el.StyleProp("position"))

	errs := post.ofType(protocol.TypeLayoutErrorDetected)
	require.Len(t, errs, 1)
	msg := errs[0].(protocol.LayoutErrorDetected)
	assert.Equal(t, welcomeID, msg.ID)
	assert.Equal(t, "Overflow", msg.ErrorType)

	ent, _ := e.Entry(welcomeID)
	assert.Equal(t, HealthOverflow, ent.Health)
}

func TestLayoutSafeClearsError(t *testing.T) {
	e, post, sched, _ := newTestEngine(t, welcomeHTML)
	el := e.Document().ResolveID(welcomeID)

	e.UpdateGeometry(welcomeID,
		dom.Metrics{Width: 400, Height: 20, ScrollWidth: 400, ScrollHeight: 20},
		dom.Rect{Left: 0, Top: 100, Right: 400, Bottom: 120},
	)
	require.True(t, e.PointerOver(welcomeID))
	e.Click(welcomeID, false)
	e.HandleMessage(protocol.TranslationResult{
		ID: welcomeID, TranslatedText: "Bienvenido", Success: true,
	})
	sched.runAll()

	assert.False(t, el.HasClass("lingo-layout-error"))
	safe, _ := el.Attr("data-layout-safe")
	assert.Equal(t, "true", safe)
	assert.Empty(t, post.ofType(protocol.TypeLayoutErrorDetected))
}

func TestClassifyLayout(t *testing.T) {
	cases := []struct {
		name string
		orig dom.Metrics
		cur  dom.Metrics
		want Health
	}{
		{"no change", dom.Metrics{Width: 100, Height: 20}, dom.Metrics{Width: 100, Height: 20, ScrollWidth: 100}, HealthSafe},
		{"overflow", dom.Metrics{Width: 80, Height: 20}, dom.Metrics{Width: 80, Height: 20, ScrollWidth: 180}, HealthOverflow},
		{"overflow wins over wrapping", dom.Metrics{Width: 80, Height: 20}, dom.Metrics{Width: 80, Height: 60, ScrollWidth: 180}, HealthOverflow},
		{"wrapping", dom.Metrics{Width: 100, Height: 20}, dom.Metrics{Width: 100, Height: 44, ScrollWidth: 100}, HealthWrapping},
		{"tall element never wraps", dom.Metrics{Width: 100, Height: 60}, dom.Metrics{Width: 100, Height: 200, ScrollWidth: 100}, HealthSafe},
		{"small growth safe", dom.Metrics{Width: 100, Height: 20}, dom.Metrics{Width: 100, Height: 28, ScrollWidth: 100}, HealthSafe},
		{"zero width never overflows", dom.Metrics{Width: 0, Height: 20}, dom.Metrics{Width: 0, Height: 20, ScrollWidth: 50}, HealthSafe},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyLayout(tc.orig, tc.cur))
		})
	}
}

const marqueeHTML = `<html><body>
<div>
  <p>One one</p>
  <p>Two two</p>
  <p>Three three</p>
  <p>Four four</p>
  <p>Five five</p>
</div>
</body></html>`

func TestMarqueeSelectsIntersecting(t *testing.T) {
	e, post, _, overlay := newTestEngine(t, marqueeHTML)
	var ids []string
	for _, p := range []string{"P-0", "P-1", "P-2", "P-3", "P-4"} {
		ids = append(ids, "BODY-0/DIV-0/"+p)
	}
	placeInViewport(t, e, ids...)

	e.HandleMessage(protocol.ToggleMarquee{IsActive: true})
	e.MarqueeDown(0, 0)
	e.MarqueeMove(200, 60)
	e.MarqueeUp(200, 110)

	assert.Equal(t, 1, overlay.marqueeHides)
	reqs := post.ofType(protocol.TypeBatchTranslateRequest)
	require.Len(t, reqs, 1)
	payload := reqs[0].(protocol.BatchTranslateRequest).Payload
	require.Len(t, payload, 3, "rows at 0, 40 and 80 intersect a 110px-tall box")
	assert.Equal(t, ids[:3], []string{payload[0].ID, payload[1].ID, payload[2].ID})

	for _, id := range ids[3:] {
		el := e.Document().ResolveID(id)
		assert.False(t, el.HasClass("lingo-translating"))
	}
}

func TestMarqueeStrayClickIgnored(t *testing.T) {
	e, post, _, _ := newTestEngine(t, marqueeHTML)
	placeInViewport(t, e, "BODY-0/DIV-0/P-0")

	e.HandleMessage(protocol.ToggleMarquee{IsActive: true})
	e.MarqueeDown(10, 10)
	e.MarqueeUp(15, 15)

	assert.Empty(t, post.ofType(protocol.TypeBatchTranslateRequest))
}

func TestMarqueeSuppressesHover(t *testing.T) {
	e, _, _, overlay := newTestEngine(t, welcomeHTML)

	require.True(t, e.PointerOver(welcomeID))
	e.HandleMessage(protocol.ToggleMarquee{IsActive: true})
	el := e.Document().ResolveID(welcomeID)
	assert.False(t, el.HasClass("lingo-hover-highlight"))
	assert.Equal(t, 1, overlay.tooltipHides)

	assert.False(t, e.PointerOver(welcomeID))
}

func TestRetranslateActiveSkipsLocked(t *testing.T) {
	e, post, _, _ := newTestEngine(t, batchHTML)
	ids := []string{"BODY-0/DIV-0/P-0", "BODY-0/DIV-0/P-1"}

	for i, id := range ids {
		require.True(t, e.PointerOver(id))
		e.Click(id, false)
		e.HandleMessage(protocol.TranslationResult{
			ID: id, TranslatedText: []string{"a", "b"}[i], Success: true,
		})
	}
	locked := true
	e.HandleMessage(protocol.UpdateTranslation{ID: ids[1], Text: "b2", IsLocked: &locked})

	before := len(post.ofType(protocol.TypeTranslateRequest))
	e.HandleMessage(protocol.LanguageUpdate{})
	reqs := post.ofType(protocol.TypeTranslateRequest)
	require.Len(t, reqs, before+1, "only the unlocked entry retranslates")
	req := reqs[len(reqs)-1].(protocol.TranslateRequest)
	assert.Equal(t, ids[0], req.ID)
	assert.Equal(t, "Alpha text", req.Text, "retranslation uses the stored original")
}

func TestRestoreAndLockImmunity(t *testing.T) {
	page := `<html><body><div><h1>Hi</h1></div></body></html>`
	e, post, _, _ := newTestEngine(t, page)
	id := "BODY-0/DIV-0/H1-0"
	el := e.Document().ResolveID(id)
	require.NotNil(t, el)

	e.HandleMessage(protocol.RestorePageState{Translations: map[string]protocol.RestoreEntry{
		id:        {Original: "Hi", Translated: "Hola", IsLocked: true},
		"GONE-99": {Translated: "never applied"},
	}})

	assert.Equal(t, "Hola", el.InnerText())
	assert.True(t, el.HasClass("lingo-translated"))
	lockedAttr, _ := el.Attr("data-lingo-locked")
	assert.Equal(t, "true", lockedAttr)
	assert.Equal(t, "2px dashed #f59e0b", el.StyleProp("outline"))

	e.HandleMessage(protocol.LanguageUpdate{})
	assert.Empty(t, post.ofType(protocol.TypeTranslateRequest), "locked entries survive a language change")
	assert.Equal(t, "Hola", el.InnerText())
}

func TestUpdateTranslationMarksModified(t *testing.T) {
	e, _, _, _ := newTestEngine(t, welcomeHTML)
	el := e.Document().ResolveID(welcomeID)

	e.HandleMessage(protocol.UpdateTranslation{ID: welcomeID, Text: "Hand edited"})
	assert.Equal(t, "Hand edited", el.InnerText())
	modified, _ := el.Attr("data-lingo-modified")
	assert.Equal(t, "true", modified)

	ent, _ := e.Entry(welcomeID)
	assert.True(t, ent.Modified)
	assert.Equal(t, "modified", ent.Status())
	assert.Equal(t, "Welcome home", ent.Original, "edit does not clobber the original")
}

func TestPageStateSnapshot(t *testing.T) {
	e, post, _, _ := newTestEngine(t, welcomeHTML)

	require.True(t, e.PointerOver(welcomeID))
	e.Click(welcomeID, false)
	e.HandleMessage(protocol.TranslationResult{
		ID: welcomeID, TranslatedText: "Bienvenido a casa", Success: true,
	})

	e.HandleMessage(protocol.RequestPageState{})
	states := post.ofType(protocol.TypePageStateResponse)
	require.Len(t, states, 1)
	payload := states[0].(protocol.PageStateResponse).Payload

	assert.Equal(t, "Example Domain", payload.Title)
	require.Contains(t, payload.Translations, welcomeID)
	snap := payload.Translations[welcomeID]
	assert.Equal(t, "Welcome home", snap.Original)
	assert.Equal(t, "Bienvenido a casa", snap.Translated)
	assert.Equal(t, "p", snap.ElementTag)
	assert.Equal(t, "active", snap.Status)
	assert.False(t, snap.IsLocked)
	assert.NotZero(t, snap.Timestamp)
}

func TestJSONDownloadOmitsIncomplete(t *testing.T) {
	e, post, _, _ := newTestEngine(t, batchHTML)
	ids := []string{"BODY-0/DIV-0/P-0", "BODY-0/DIV-0/P-1"}

	require.True(t, e.PointerOver(ids[0]))
	e.Click(ids[0], false)
	e.HandleMessage(protocol.TranslationResult{ID: ids[0], TranslatedText: "a", Success: true})

	// Second entry left mid-flight: it has an original but no translation.
	require.True(t, e.PointerOver(ids[1]))
	e.Click(ids[1], false)

	e.HandleMessage(protocol.RequestJSONDownload{Language: "es"})
	ready := post.ofType(protocol.TypeJSONDownloadReady)
	require.Len(t, ready, 1)
	msg := ready[0].(protocol.JSONDownloadReady)
	assert.Equal(t, "es", msg.Language)
	assert.Equal(t, map[string]string{"Alpha text": "a"}, msg.Payload)
}

func TestHighlightElement(t *testing.T) {
	e, _, _, overlay := newTestEngine(t, welcomeHTML)

	e.HandleMessage(protocol.HighlightElement{ID: welcomeID})
	e.HandleMessage(protocol.HighlightElement{ID: "GONE-0"})
	assert.Equal(t, []string{welcomeID}, overlay.flashes)
}

func TestThemeColorFromMeta(t *testing.T) {
	page := `<html><head><meta name="theme-color" content="#ff0000"></head><body><p>hi there</p></body></html>`
	e, post, sched, _ := newTestEngine(t, page)

	e.Boot()
	sched.runAll()
	sched.runAll()

	themes := post.ofType(protocol.TypeThemeColorDetected)
	require.Len(t, themes, 1)
	assert.Equal(t, "#ff0000", themes[0].(protocol.ThemeColorDetected).Color)
}

func TestThemeColorFromHeaderBackground(t *testing.T) {
	page := `<html><body><header style="background-color: rgb(20, 20, 40)">Site</header><p>hi</p></body></html>`
	e, post, sched, _ := newTestEngine(t, page)

	e.Boot()
	sched.runAll()

	themes := post.ofType(protocol.TypeThemeColorDetected)
	require.Len(t, themes, 1)
	assert.Equal(t, "rgb(20, 20, 40)", themes[0].(protocol.ThemeColorDetected).Color)
}

func TestThemeColorAbsent(t *testing.T) {
	page := `<html><body><p>plain page</p></body></html>`
	e, post, sched, _ := newTestEngine(t, page)

	e.Boot()
	sched.runAll()
	assert.Empty(t, post.ofType(protocol.TypeThemeColorDetected))
}

func TestSelectionToolbarAction(t *testing.T) {
	e, post, _, overlay := newTestEngine(t, welcomeHTML)

	sel := Selection{
		Text:     "Welcome",
		AnchorID: welcomeID,
		Rect:     dom.Rect{Left: 10, Top: 100, Right: 120, Bottom: 120},
	}
	e.SelectionEnd(sel)
	require.Len(t, overlay.toolbars, 1)

	e.ToolbarAction(ActionExplain, sel)
	reqs := post.ofType(protocol.TypeExplainRequest)
	require.Len(t, reqs, 1)
	req := reqs[0].(protocol.AIActionRequest)
	assert.Equal(t, "Welcome", req.SelectedText)
	assert.Equal(t, "Welcome home", req.SurroundingText)
	assert.Equal(t, "Example Domain", req.PageTitle)
	assert.GreaterOrEqual(t, overlay.toolbarHides, 1)
}

func TestSurroundingTextTruncatesOnRuneBoundary(t *testing.T) {
	// 300 three-byte runes: the 800-byte cap lands mid-rune.
	long := strings.Repeat("日", 300)
	page := `<html><head><title>x</title></head><body><p id="ctx">` + long + `</p></body></html>`
	e, post, _, _ := newTestEngine(t, page)

	e.ToolbarAction(ActionExplain, Selection{Text: "日", AnchorID: "ctx"})
	reqs := post.ofType(protocol.TypeExplainRequest)
	require.Len(t, reqs, 1)

	ctx := reqs[0].(protocol.AIActionRequest).SurroundingText
	assert.True(t, utf8.ValidString(ctx))
	assert.LessOrEqual(t, len(ctx), 800)
	assert.Equal(t, 798, len(ctx), "backed off to the previous rune boundary")
}

func TestSelectionToolbarHiddenOnCollapse(t *testing.T) {
	e, _, _, overlay := newTestEngine(t, welcomeHTML)

	e.SelectionEnd(Selection{
		Text: "x y", Rect: dom.Rect{Left: 10, Top: 10, Right: 60, Bottom: 30},
	})
	require.Len(t, overlay.toolbars, 1)

	e.SelectionEnd(Selection{})
	assert.Equal(t, 1, overlay.toolbarHides)
}

func TestSelectionHTMLFallbackStripsMarkup(t *testing.T) {
	sel := Selection{HTML: "<b>bold &amp; brave</b>"}
	assert.Equal(t, "bold & brave", sel.plainText())
}

func TestUnknownMessageIgnored(t *testing.T) {
	e, post, _, _ := newTestEngine(t, welcomeHTML)
	e.HandleMessage(protocol.TranslateRequest{ID: "x", Text: "y"})
	assert.Empty(t, post.messages())
}
