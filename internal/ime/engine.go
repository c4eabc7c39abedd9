package ime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"imecore/internal/composition"
	"imecore/internal/logging"
	"imecore/internal/menu"
	"imecore/internal/metrics"
	"imecore/internal/notify"
	"imecore/internal/session"
)

// DefaultAlphabet is the set of characters that start or extend a code.
const DefaultAlphabet = "abcdefghijklmnopqrstuvwxyz"

// DefaultPageSize is the number of candidates per page.
const DefaultPageSize = 5

// CommitSink receives text committed to the application.
type CommitSink func(text string)

// State is a snapshot of what the presentation layer shows.
type State struct {
	Composing bool
	Input     string
	Preedit   composition.Preedit
	// Page is the page holding the highlighted candidate, or nil.
	Page *menu.Page
	// Highlighted is the index of the highlighted candidate within Page.
	Highlighted int
	// Options lists the options that are on, sorted.
	Options    []string
	Properties map[string]string
}

// Engine turns key events into edits of a session and drives composition,
// translation and commit in response to the session's notifications.
//
// Engine is safe for concurrent use. The commit sink runs with the engine
// locked and must not call back into it.
type Engine struct {
	mu          sync.Mutex
	ctx         *session.Context
	segmentors  []composition.Segmentor
	translators []menu.Translator
	filters     []menu.Filter
	alphabet    string
	pageSize    int
	autoCommit  bool
	sink        CommitSink
	logger      *slog.Logger
	metrics     *metrics.EngineMetrics
	conns       []notify.Connection
	closers     []io.Closer
	closed      bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithContext makes the engine drive an existing session.
func WithContext(ctx *session.Context) Option {
	return func(e *Engine) { e.ctx = ctx }
}

// WithSegmentor appends a segmentor.
func WithSegmentor(s composition.Segmentor) Option {
	return func(e *Engine) { e.segmentors = append(e.segmentors, s) }
}

// WithTranslator appends a translator.
func WithTranslator(t menu.Translator) Option {
	return func(e *Engine) { e.translators = append(e.translators, t) }
}

// WithFilter appends a filter. Filters wrap menus in the order given.
func WithFilter(f menu.Filter) Option {
	return func(e *Engine) { e.filters = append(e.filters, f) }
}

// WithAlphabet sets the characters accepted as input.
func WithAlphabet(alphabet string) Option {
	return func(e *Engine) {
		if alphabet != "" {
			e.alphabet = alphabet
		}
	}
}

// WithPageSize sets the number of candidates per page.
func WithPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithAutoCommit sets whether finishing a composition commits it.
func WithAutoCommit(on bool) Option {
	return func(e *Engine) { e.autoCommit = on }
}

// WithCommitSink sets the receiver of committed text.
func WithCommitSink(sink CommitSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records key, compose and commit metrics into m.
func WithMetrics(m *metrics.EngineMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithCloser registers a resource released by Close.
func WithCloser(c io.Closer) Option {
	return func(e *Engine) { e.closers = append(e.closers, c) }
}

// NewEngine creates an engine and subscribes it to its session.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		alphabet:   DefaultAlphabet,
		pageSize:   DefaultPageSize,
		autoCommit: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.Default().WithComponent("engine").Logger
	}
	if e.ctx == nil {
		e.ctx = session.New(session.WithLogger(e.logger))
	}
	if len(e.segmentors) == 0 {
		e.segmentors = append(e.segmentors, rawSegmentor{})
	}
	e.ctx.Composition().SetForwarder(forwarder{e})

	e.conns = append(e.conns,
		e.ctx.UpdateNotifier().Connect(e.compose),
		e.ctx.SelectNotifier().Connect(e.onSelect),
		e.ctx.CommitNotifier().Connect(e.onCommit),
		e.ctx.OptionUpdateNotifier().Connect(e.onOptionUpdate),
	)
	return e
}

// Context returns the session driven by the engine. Callers must not use
// it concurrently with ProcessKey.
func (e *Engine) Context() *session.Context { return e.ctx }

// PageSize returns the number of candidates per page.
func (e *Engine) PageSize() int { return e.pageSize }

// Close unsubscribes the engine and releases registered resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	for _, c := range e.conns {
		c.Disconnect()
	}
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// compose rebuilds the composition for the current input and caret.
func (e *Engine) compose(ctx *session.Context) {
	defer e.metrics.RecordCompose(time.Now())
	comp := ctx.Composition()
	comp.SetForwarder(forwarder{e})
	input := ctx.Input()
	caret := ctx.CaretPos()

	comp.Reset(input[:caret])
	if caret < len(input) && caret == comp.ConfirmedPosition() {
		// Translate the one segment following the caret.
		comp.Reset(input)
	}
	e.segment(comp, caret)
	e.translate(comp)
	if e.logger.Enabled(context.Background(), slog.LevelDebug) {
		e.logger.Debug("composed", "segments", comp.Len(), "debug_text", comp.GetDebugText())
	}
}

func (e *Engine) segment(comp *composition.Composition, caret int) {
	for !comp.HasFinishedSegmentation() {
		start := comp.CurrentStart()
		for _, s := range e.segmentors {
			if !s.Proceed(comp) {
				break
			}
		}
		if start == comp.CurrentEnd() {
			break
		}
		// Only the segment right after the caret may extend past it.
		if start >= caret {
			break
		}
		if !comp.HasFinishedSegmentation() {
			comp.Forward()
		}
	}
	comp.Trim()
	if back := comp.Back(); back != nil && back.Status >= composition.StatusSelected {
		comp.Forward()
	}
}

func (e *Engine) translate(comp *composition.Composition) {
	input := comp.Input()
	for _, seg := range comp.Segments() {
		if seg.Empty() || (seg.Status >= composition.StatusGuess && seg.Menu != nil) {
			continue
		}
		code := input[seg.Start:min(seg.End, len(input))]
		m := menu.New()
		for _, t := range e.translators {
			tr := t.Query(code, seg)
			if tr == nil || tr.Exhausted() {
				continue
			}
			m.AddTranslation(tr)
		}
		for _, f := range e.filters {
			if f.AppliesTo(seg) {
				m.AddFilter(f)
			}
		}
		seg.Menu = m
		seg.SelectedIndex = 0
		if seg.Status < composition.StatusGuess {
			seg.Status = composition.StatusGuess
		}
	}
}

func (e *Engine) onSelect(ctx *session.Context) {
	comp := ctx.Composition()
	seg := comp.Back()
	if seg == nil {
		return
	}
	seg.Close()
	e.metrics.RecordSelection()
	if seg.End == len(ctx.Input()) {
		if e.autoCommit {
			ctx.Commit()
			return
		}
		ctx.ConfirmSegments()
		comp.Forward()
		return
	}
	reachedCaret := seg.End >= ctx.CaretPos()
	comp.Forward()
	if reachedCaret {
		ctx.SetCaretPos(len(ctx.Input()))
	} else {
		e.compose(ctx)
	}
}

func (e *Engine) onCommit(ctx *session.Context) {
	e.emit(ctx.GetCommitText())
}

func (e *Engine) onOptionUpdate(ctx *session.Context, name string) {
	e.logger.Debug("option changed", "name", name, "value", ctx.GetOption(name))
	ctx.RefreshNonConfirmedComposition()
}

func (e *Engine) emit(text string) {
	if text == "" {
		return
	}
	e.metrics.RecordCommit(text)
	if e.sink != nil {
		e.sink(text)
	}
}

// SetOption sets a session option.
func (e *Engine) SetOption(name string, value bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ctx.SetOption(name, value)
}

// Reset drops the composition without committing.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx.IsComposing() {
		e.ctx.Clear()
	}
	e.ctx.ClearTransientOptions()
}

// Commit commits the current composition, or its raw input when nothing
// was converted. Returns false when there is nothing to commit.
func (e *Engine) Commit() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctx.Commit()
}

// Select picks the candidate at index within the current page.
func (e *Engine) Select(index int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selectOnPage(index)
}

// State returns a snapshot for rendering.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := State{
		Composing: e.ctx.IsComposing(),
		Input:     e.ctx.Input(),
		Preedit:   e.ctx.GetPreedit(),
	}
	page, highlighted := e.currentPage()
	st.Page = page
	st.Highlighted = highlighted
	for _, name := range e.ctx.OptionNames() {
		if e.ctx.GetOption(name) {
			st.Options = append(st.Options, name)
		}
	}
	if names := e.ctx.PropertyNames(); len(names) > 0 {
		st.Properties = make(map[string]string, len(names))
		for _, name := range names {
			st.Properties[name] = e.ctx.GetProperty(name)
		}
	}
	return st
}

// currentPage returns the page holding the highlighted candidate.
func (e *Engine) currentPage() (*menu.Page, int) {
	seg := e.ctx.Composition().Back()
	if seg == nil {
		return nil, 0
	}
	m, ok := seg.Menu.(*menu.Menu)
	if !ok || m == nil {
		return nil, 0
	}
	pageNo := seg.SelectedIndex / e.pageSize
	page := m.CreatePage(e.pageSize, pageNo)
	if page == nil {
		return nil, 0
	}
	return page, seg.SelectedIndex - pageNo*e.pageSize
}

func (e *Engine) selectOnPage(index int) bool {
	seg := e.ctx.Composition().Back()
	if seg == nil || index < 0 || index >= e.pageSize {
		return false
	}
	pageStart := seg.SelectedIndex / e.pageSize * e.pageSize
	return e.ctx.Select(pageStart + index)
}

// ProcessKey handles one key event and reports whether it was consumed.
func (e *Engine) ProcessKey(key Key) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || key.IsRelease() {
		return false
	}
	start := time.Now()
	handled := e.processKey(key)
	e.metrics.RecordKey(handled, start)
	return handled
}

func (e *Engine) processKey(key Key) bool {
	if key.Has(ModControl) || key.Has(ModAlt) || key.Has(ModMeta) {
		return false
	}

	composing := e.ctx.IsComposing()
	switch key.keyval() {
	case KeySpace:
		if !composing {
			return false
		}
		if !e.ctx.ConfirmCurrentSelection() {
			e.ctx.Commit()
		}
		return true
	case KeyReturn, KeyKPEnter:
		if !composing {
			return false
		}
		text := e.ctx.GetScriptText()
		if text == "" {
			text = e.ctx.Input()
		}
		e.ctx.Clear()
		e.emit(text)
		return true
	case KeyBackSpace:
		if !composing {
			return false
		}
		if !e.ctx.ReopenPreviousSegment() && !e.ctx.ReopenPreviousSelection() {
			e.ctx.PopInput(1)
		}
		return true
	case KeyDelete:
		if !composing {
			return false
		}
		if key.Has(ModShift) {
			if e.ctx.DeleteCurrentSelection() {
				e.metrics.RecordDeletion()
				e.ctx.RefreshNonConfirmedComposition()
			}
			return true
		}
		e.ctx.DeleteInput(1)
		return true
	case KeyEscape:
		if !composing {
			return false
		}
		e.ctx.Clear()
		return true
	case KeyUp, KeyDown, KeyPageUp, KeyPageDown:
		if !composing {
			return false
		}
		e.navigate(key.keyval())
		return true
	case KeyLeft, KeyRight, KeyHome, KeyEnd:
		if !composing {
			return false
		}
		e.moveCaret(key.keyval())
		return true
	}

	ch, ok := key.printable()
	if !ok {
		return composing && key.keyval() != KeyTab
	}
	if strings.ContainsRune(e.alphabet, ch) {
		e.ctx.ConfirmPreviousSelection()
		e.ctx.PushInput(string(ch))
		return true
	}
	if !composing {
		return false
	}
	if d, isDigit := digitIndex(ch); isDigit && e.ctx.HasMenu() {
		e.selectOnPage(d)
		return true
	}
	// Punctuation ends the composition; the character itself passes on.
	e.ctx.Commit()
	return false
}

// digitIndex maps '1'..'9' to 0..8 and '0' to 9.
func digitIndex(ch rune) (int, bool) {
	switch {
	case ch >= '1' && ch <= '9':
		return int(ch - '1'), true
	case ch == '0':
		return 9, true
	default:
		return 0, false
	}
}

func (e *Engine) navigate(keyval uint32) {
	seg := e.ctx.Composition().Back()
	if seg == nil {
		return
	}
	index := seg.SelectedIndex
	switch keyval {
	case KeyUp:
		index--
	case KeyDown:
		index++
	case KeyPageUp:
		index = (index/e.pageSize - 1) * e.pageSize
	case KeyPageDown:
		index = (index/e.pageSize + 1) * e.pageSize
	}
	if index < 0 {
		return
	}
	if keyval == KeyPageDown && seg.Menu != nil && seg.Menu.Prepare(index+1) <= index {
		return
	}
	e.ctx.Highlight(index)
}

func (e *Engine) moveCaret(keyval uint32) {
	caret := e.ctx.CaretPos()
	end := len(e.ctx.Input())
	switch keyval {
	case KeyLeft:
		if caret > 0 {
			e.ctx.SetCaretPos(caret - 1)
		}
	case KeyRight:
		if caret < end {
			e.ctx.SetCaretPos(caret + 1)
		}
	case KeyHome:
		if caret > 0 {
			e.ctx.SetCaretPos(0)
		}
	case KeyEnd:
		if caret < end {
			e.ctx.SetCaretPos(end)
		}
	}
}

// forwarder opens the next segment. When the session has dropped every
// segment it segments and translates the input again from the start.
type forwarder struct{ e *Engine }

func (f forwarder) Forward(c *composition.Composition) bool {
	if c.OpenNext() {
		return true
	}
	if !c.Empty() || c.Input() == "" {
		return false
	}
	f.e.segment(c, f.e.ctx.CaretPos())
	f.e.translate(c)
	return !c.Empty()
}

// rawSegmentor covers the rest of the input with one raw segment. It is
// used when no code table is configured.
type rawSegmentor struct{}

func (rawSegmentor) Proceed(c *composition.Composition) bool {
	start := c.CurrentStart()
	if start < len(c.Input()) {
		seg := composition.NewSegment(start, len(c.Input()))
		seg.AddTag(composition.TagRaw)
		c.AddSegment(seg)
	}
	return true
}
