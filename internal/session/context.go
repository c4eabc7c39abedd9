// Package session implements the editing session: the input buffer, the
// caret, the composition built over the input, session options and
// properties, and the notification channels other subsystems subscribe to.
//
// Every editing operation is a method on Context. Operations report success
// with a boolean; a failed operation leaves the session unchanged and fires
// no notification. A successful operation mutates state first and then
// notifies subscribers synchronously, in registration order.
//
// A Context is not safe for concurrent use.
package session

import (
	"log/slog"
	"strings"

	"imecore/internal/candidate"
	"imecore/internal/composition"
	"imecore/internal/logging"
	"imecore/internal/notify"
)

// Well-known option names.
const (
	// OptionDumb suppresses commit text.
	OptionDumb = "dumb"
	// OptionSoftCursor inserts CaretSymbol into the preedit.
	OptionSoftCursor = "soft_cursor"
)

// CaretSymbol is the soft cursor, U+2038 CARET.
const CaretSymbol = "‸"

// TransientPrefix starts the names of options and properties that only
// live until ClearTransientOptions.
const TransientPrefix = "_"

// IsTransient reports whether an option or property name is transient.
func IsTransient(name string) bool {
	return strings.HasPrefix(name, TransientPrefix)
}

// Handler observes a Context event.
type Handler func(ctx *Context)

// KeyHandler observes an option or property change.
type KeyHandler func(ctx *Context, name string)

// Context is one editing session.
type Context struct {
	input       string
	caretPos    int
	composition *composition.Composition
	options     map[string]bool
	properties  map[string]string

	// deleting is the candidate targeted by an in-flight delete notification.
	deleting candidate.Candidate

	commitNotifier         *notify.Signal[Handler]
	selectNotifier         *notify.Signal[Handler]
	updateNotifier         *notify.Signal[Handler]
	deleteNotifier         *notify.Signal[Handler]
	optionUpdateNotifier   *notify.Signal[KeyHandler]
	propertyUpdateNotifier *notify.Signal[KeyHandler]

	logger *slog.Logger
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger used for debug traces.
func WithLogger(l *slog.Logger) Option {
	return func(c *Context) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates an empty session.
func New(opts ...Option) *Context {
	c := &Context{
		composition:            composition.New(),
		options:                make(map[string]bool),
		properties:             make(map[string]string),
		commitNotifier:         notify.New[Handler]("commit"),
		selectNotifier:         notify.New[Handler]("select"),
		updateNotifier:         notify.New[Handler]("update"),
		deleteNotifier:         notify.New[Handler]("delete"),
		optionUpdateNotifier:   notify.New[KeyHandler]("option_update"),
		propertyUpdateNotifier: notify.New[KeyHandler]("property_update"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Default().WithComponent("session").Logger
	}
	return c
}

// CommitNotifier fires before the session is cleared by Commit.
func (c *Context) CommitNotifier() *notify.Signal[Handler] { return c.commitNotifier }

// SelectNotifier fires when a candidate is selected or confirmed.
func (c *Context) SelectNotifier() *notify.Signal[Handler] { return c.selectNotifier }

// UpdateNotifier fires after input, caret or composition changes.
func (c *Context) UpdateNotifier() *notify.Signal[Handler] { return c.updateNotifier }

// DeleteNotifier fires when a candidate is asked to be deleted.
// DeletedCandidate is valid while it fires.
func (c *Context) DeleteNotifier() *notify.Signal[Handler] { return c.deleteNotifier }

// OptionUpdateNotifier fires after SetOption.
func (c *Context) OptionUpdateNotifier() *notify.Signal[KeyHandler] {
	return c.optionUpdateNotifier
}

// PropertyUpdateNotifier fires after SetProperty.
func (c *Context) PropertyUpdateNotifier() *notify.Signal[KeyHandler] {
	return c.propertyUpdateNotifier
}

func (c *Context) notify(sig *notify.Signal[Handler]) {
	c.logger.Debug("notify", "signal", sig.Name(), "subscribers", sig.Len())
	sig.Emit(func(h Handler) { h(c) })
}

func (c *Context) notifyKey(sig *notify.Signal[KeyHandler], name string) {
	c.logger.Debug("notify", "signal", sig.Name(), "key", name, "subscribers", sig.Len())
	sig.Emit(func(h KeyHandler) { h(c, name) })
}

// Input returns the raw input buffer.
func (c *Context) Input() string { return c.input }

// CaretPos returns the caret offset into the input.
func (c *Context) CaretPos() int { return c.caretPos }

// Composition returns the session's composition.
func (c *Context) Composition() *composition.Composition { return c.composition }

// SetComposition replaces the composition without notifying.
func (c *Context) SetComposition(comp *composition.Composition) {
	if comp == nil {
		comp = composition.New()
	}
	c.composition = comp
}

// IsComposing reports whether there is input or a composition.
func (c *Context) IsComposing() bool {
	return c.input != "" || !c.composition.Empty()
}

// HasMenu reports whether the tail segment has a non-empty menu.
func (c *Context) HasMenu() bool {
	seg := c.composition.Back()
	if seg == nil || seg.Menu == nil {
		return false
	}
	return !seg.Menu.Empty()
}

// GetSelectedCandidate returns the highlighted candidate of the tail
// segment, or nil.
func (c *Context) GetSelectedCandidate() candidate.Candidate {
	seg := c.composition.Back()
	if seg == nil {
		return nil
	}
	return seg.SelectedCandidate()
}

// Commit fires the commit notification and clears the session.
// Selected segments are marked confirmed first. Returns false when there
// is nothing to commit.
func (c *Context) Commit() bool {
	if !c.IsComposing() {
		return false
	}
	c.ConfirmSegments()
	c.notify(c.commitNotifier)
	c.Clear()
	return true
}

// ConfirmSegments marks every selected segment confirmed.
func (c *Context) ConfirmSegments() {
	for _, seg := range c.composition.Segments() {
		if seg.Status == composition.StatusSelected {
			seg.Status = composition.StatusConfirmed
		}
	}
}

// GetCommitText returns the text a commit would produce, or an empty string
// while the dumb option is set.
func (c *Context) GetCommitText() string {
	if c.GetOption(OptionDumb) {
		return ""
	}
	return c.composition.GetCommitText(c.input)
}

// GetScriptText returns the input as spelled.
func (c *Context) GetScriptText() string {
	return c.composition.GetScriptText(c.input)
}

// GetSoftCursor returns CaretSymbol when the soft cursor option is set.
func (c *Context) GetSoftCursor() string {
	if c.GetOption(OptionSoftCursor) {
		return CaretSymbol
	}
	return ""
}

// GetPreedit renders the composition for the presentation layer.
func (c *Context) GetPreedit() composition.Preedit {
	return c.composition.GetPreedit(c.input, c.caretPos, c.GetSoftCursor())
}

// PushInput inserts str at the caret and moves the caret past it.
func (c *Context) PushInput(str string) bool {
	if c.caretPos >= len(c.input) {
		c.input += str
		c.caretPos = len(c.input)
	} else {
		c.input = c.input[:c.caretPos] + str + c.input[c.caretPos:]
		c.caretPos += len(str)
	}
	c.notify(c.updateNotifier)
	return true
}

// PushChar inserts a single byte at the caret.
func (c *Context) PushChar(ch byte) bool {
	return c.PushInput(string([]byte{ch}))
}

// PopInput removes n bytes before the caret. It fails without change when
// fewer than n bytes precede the caret.
func (c *Context) PopInput(n int) bool {
	if n < 0 || c.caretPos < n {
		return false
	}
	c.caretPos -= n
	c.input = c.input[:c.caretPos] + c.input[c.caretPos+n:]
	c.notify(c.updateNotifier)
	return true
}

// DeleteInput removes n bytes at the caret. It fails without change when
// fewer than n bytes follow the caret.
func (c *Context) DeleteInput(n int) bool {
	if n < 0 || c.caretPos+n > len(c.input) {
		return false
	}
	c.input = c.input[:c.caretPos] + c.input[c.caretPos+n:]
	c.notify(c.updateNotifier)
	return true
}

// Clear resets input, caret and composition and always notifies update.
func (c *Context) Clear() {
	c.input = ""
	c.caretPos = 0
	c.composition.Clear()
	c.notify(c.updateNotifier)
}

// Select picks the candidate at index in the tail segment's menu.
func (c *Context) Select(index int) bool {
	seg := c.composition.Back()
	if seg == nil {
		return false
	}
	cand := seg.CandidateAt(index)
	if cand == nil {
		return false
	}
	seg.SelectedIndex = index
	seg.Status = composition.StatusSelected
	c.logger.Debug("selected", "text", cand.Text(), "index", index)
	c.notify(c.selectNotifier)
	return true
}

// Highlight moves the tail segment's selection to index, clamped to the
// last available candidate. Returns false when nothing changes.
func (c *Context) Highlight(index int) bool {
	seg := c.composition.Back()
	if seg == nil || seg.Menu == nil || index < 0 {
		return false
	}
	count := seg.Menu.Prepare(index + 1)
	newIndex := 0
	if count > 0 {
		newIndex = min(count-1, index)
	}
	previous := seg.SelectedIndex
	if previous == newIndex {
		c.logger.Debug("selection has not changed", "index", newIndex)
		return false
	}
	seg.SelectedIndex = newIndex
	c.notify(c.updateNotifier)
	c.logger.Debug("selection changed", "from", previous, "to", newIndex)
	return true
}

// DeleteCandidate asks subscribers to delete cand. A true result does not
// mean anything was removed from storage; that is up to subscribers.
func (c *Context) DeleteCandidate(cand candidate.Candidate) bool {
	if cand == nil {
		return false
	}
	c.logger.Debug("deleting candidate", "text", cand.Text())
	c.deleting = cand
	defer func() { c.deleting = nil }()
	c.notify(c.deleteNotifier)
	return true
}

// DeleteCandidateAt deletes the tail segment's candidate at index.
func (c *Context) DeleteCandidateAt(index int) bool {
	seg := c.composition.Back()
	if seg == nil {
		return false
	}
	return c.DeleteCandidate(seg.CandidateAt(index))
}

// DeleteCurrentSelection deletes the tail segment's highlighted candidate.
func (c *Context) DeleteCurrentSelection() bool {
	seg := c.composition.Back()
	if seg == nil {
		return false
	}
	return c.DeleteCandidate(seg.SelectedCandidate())
}

// DeletedCandidate returns the candidate being deleted while the delete
// notification fires, and nil otherwise.
func (c *Context) DeletedCandidate() candidate.Candidate {
	return c.deleting
}

// ConfirmCurrentSelection selects the tail segment's highlighted candidate,
// or its raw input when it has none. It fails for an empty tail segment
// without a candidate so the caller can confirm the whole sentence instead.
func (c *Context) ConfirmCurrentSelection() bool {
	seg := c.composition.Back()
	if seg == nil {
		return false
	}
	if cand := seg.SelectedCandidate(); cand != nil {
		c.logger.Debug("confirmed", "text", cand.Text(), "index", seg.SelectedIndex)
	} else if seg.Empty() {
		return false
	}
	seg.Status = composition.StatusSelected
	c.notify(c.selectNotifier)
	return true
}

// scanAction classifies a segment during a backward scan.
type scanAction int

const (
	scanContinue scanAction = iota
	scanAct
	scanStop
)

func classify(seg *composition.Segment) scanAction {
	switch {
	case seg.Status > composition.StatusSelected:
		return scanStop
	case seg.Status == composition.StatusSelected:
		return scanAct
	default:
		return scanContinue
	}
}

// lastSelected scans from the tail backwards and returns the index of the
// most recent selected segment. Confirmed segments end the scan with -1.
func (c *Context) lastSelected() int {
	segs := c.composition.Segments()
	for i := len(segs) - 1; i >= 0; i-- {
		switch classify(segs[i]) {
		case scanStop:
			return -1
		case scanAct:
			return i
		}
	}
	return -1
}

// BeginEditing tags the most recent selection as edited over so that it
// will not be reopened.
func (c *Context) BeginEditing() {
	if i := c.lastSelected(); i >= 0 {
		c.composition.At(i).AddTag(composition.TagSelectedBeforeEditing)
	}
}

// ConfirmPreviousSelection marks the most recent selection as edited over.
// It always returns false.
func (c *Context) ConfirmPreviousSelection() bool {
	c.BeginEditing()
	return false
}

// ReopenPreviousSegment drops an empty tail segment and reopens the
// selected segment before it at the caret.
func (c *Context) ReopenPreviousSegment() bool {
	if !c.composition.Trim() {
		return false
	}
	if seg := c.composition.Back(); seg != nil && seg.Status >= composition.StatusSelected {
		seg.Reopen(c.caretPos)
	}
	c.notify(c.updateNotifier)
	return true
}

// ClearPreviousSegment truncates the input to the start of the tail
// segment.
func (c *Context) ClearPreviousSegment() bool {
	seg := c.composition.Back()
	if seg == nil {
		return false
	}
	where := seg.Start
	if where >= len(c.input) {
		return false
	}
	c.SetInput(c.input[:where])
	return true
}

// ReopenPreviousSelection pops every segment after the most recent
// selection and reopens it at the caret. Selections tagged as edited over
// and confirmed segments are never reopened.
func (c *Context) ReopenPreviousSelection() bool {
	i := c.lastSelected()
	if i < 0 {
		return false
	}
	seg := c.composition.At(i)
	if seg.HasTag(composition.TagSelectedBeforeEditing) {
		return false
	}
	c.composition.Truncate(i + 1)
	seg.Reopen(c.caretPos)
	c.notify(c.updateNotifier)
	return true
}

// ClearNonConfirmedComposition pops trailing segments that were not
// selected and asks the composition to extend again. Returns whether
// anything was popped.
func (c *Context) ClearNonConfirmedComposition() bool {
	reverted := false
	for seg := c.composition.Back(); seg != nil && seg.Status < composition.StatusSelected; seg = c.composition.Back() {
		c.composition.PopBack()
		reverted = true
	}
	if reverted {
		c.composition.Forward()
		c.logger.Debug("composition reverted", "segments", c.composition.GetDebugText())
	}
	return reverted
}

// RefreshNonConfirmedComposition is ClearNonConfirmedComposition followed
// by an update notification when something was popped.
func (c *Context) RefreshNonConfirmedComposition() bool {
	if c.ClearNonConfirmedComposition() {
		c.notify(c.updateNotifier)
		return true
	}
	return false
}

// SetCaretPos moves the caret, clamped to the input, and notifies update.
func (c *Context) SetCaretPos(pos int) {
	switch {
	case pos < 0:
		c.caretPos = 0
	case pos > len(c.input):
		c.caretPos = len(c.input)
	default:
		c.caretPos = pos
	}
	c.notify(c.updateNotifier)
}

// SetInput replaces the input, moves the caret to its end and notifies
// update.
func (c *Context) SetInput(value string) {
	c.input = value
	c.caretPos = len(value)
	c.notify(c.updateNotifier)
}
