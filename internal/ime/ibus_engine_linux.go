//go:build linux

package ime

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/godbus/dbus/v5"

	"imecore/internal/composition"
	"imecore/internal/config"
	"imecore/internal/logging"
	"imecore/internal/menu"
	"imecore/internal/metrics"
)

// IBus D-Bus constants
const (
	IBusFactoryPath      = "/org/freedesktop/IBus/Factory"
	IBusFactoryInterface = "org.freedesktop.IBus.Factory"
	IBusEngineInterface  = "org.freedesktop.IBus.Engine"
	IBusServiceInterface = "org.freedesktop.IBus.Service"
	IBusEnginePathPrefix = "/org/freedesktop/IBus/Engine/"
)

// IBus key event state masks
const (
	IBusShiftMask   uint32 = 1 << 0
	IBusLockMask    uint32 = 1 << 1
	IBusControlMask uint32 = 1 << 2
	IBusMod1Mask    uint32 = 1 << 3 // Alt
	IBusMod4Mask    uint32 = 1 << 6 // Super
	IBusReleaseMask uint32 = 1 << 30
)

// ibusPreeditClear tells IBus to drop the preedit when focus moves.
const ibusPreeditClear uint32 = 0

// keyFromIBus converts an IBus key event.
func keyFromIBus(keyval, state uint32) Key {
	var mods Modifiers
	if state&IBusShiftMask != 0 {
		mods |= ModShift
	}
	if state&IBusControlMask != 0 {
		mods |= ModControl
	}
	if state&IBusMod1Mask != 0 {
		mods |= ModAlt
	}
	if state&IBusMod4Mask != 0 {
		mods |= ModMeta
	}
	if state&IBusReleaseMask != 0 {
		mods |= ModRelease
	}
	return NewKeyval(keyval, mods)
}

// Emitter delivers engine output to the IBus daemon.
type Emitter interface {
	CommitText(text string) error
	UpdatePreedit(p composition.Preedit, visible bool) error
	UpdateLookupTable(page *menu.Page, cursor int, visible bool) error
}

// EngineFactory creates the engine behind one IBus input context. The
// engine must deliver commits to sink.
type EngineFactory func(sink CommitSink) (*Engine, error)

// ConfigEngineFactory builds engines from cfg.
func ConfigEngineFactory(cfg *config.Config, logger *slog.Logger) EngineFactory {
	return func(sink CommitSink) (*Engine, error) {
		return NewFromConfig(cfg, logger, WithCommitSink(sink))
	}
}

// IBusEngine is one exported org.freedesktop.IBus.Engine object. IBus
// creates one per input context.
type IBusEngine struct {
	engine  *Engine
	emitter Emitter
	crash   *logging.CrashHandler
	logger  *slog.Logger
	path    dbus.ObjectPath
	release func(dbus.ObjectPath)
	metrics *metrics.EngineMetrics

	mu      sync.Mutex
	enabled bool
	focused bool
	cursor  [4]int32
}

func newIBusEngine(path dbus.ObjectPath, emitter Emitter, factory EngineFactory, crash *logging.CrashHandler, logger *slog.Logger) (*IBusEngine, error) {
	ie := &IBusEngine{
		emitter: emitter,
		crash:   crash,
		logger:  logger.With("engine_path", string(path)),
		path:    path,
	}
	engine, err := factory(ie.commit)
	if err != nil {
		return nil, err
	}
	ie.engine = engine
	return ie, nil
}

func (e *IBusEngine) commit(text string) {
	if err := e.emitter.CommitText(text); err != nil {
		e.logger.Warn("commit text failed", "error", err)
	}
}

// refresh pushes the preedit and the candidate page to IBus.
func (e *IBusEngine) refresh() {
	st := e.engine.State()
	if err := e.emitter.UpdatePreedit(st.Preedit, st.Composing); err != nil {
		e.logger.Warn("update preedit failed", "error", err)
	}
	if err := e.emitter.UpdateLookupTable(st.Page, st.Highlighted, st.Page != nil); err != nil {
		e.logger.Warn("update lookup table failed", "error", err)
	}
}

// guard runs fn and refreshes, turning a panic into a crash report.
func (e *IBusEngine) guard(operation string, fn func()) bool {
	ok := e.crash.Recover(operation, func() {
		fn()
		e.refresh()
	})
	if !ok {
		e.metrics.RecordPanic()
		e.crash.Recover("reset_after_panic", func() {
			e.engine.Reset()
			e.refresh()
		})
	}
	return ok
}

// ProcessKeyEvent handles key press/release events from IBus.
// Returns true if the key was consumed, false to pass through.
func (e *IBusEngine) ProcessKeyEvent(keyval, keycode, state uint32) (bool, *dbus.Error) {
	key := keyFromIBus(keyval, state)
	if key.IsRelease() {
		return false, nil
	}

	var handled bool
	e.guard("process_key", func() {
		handled = e.engine.ProcessKey(key)
	})
	e.logger.Debug("key event", "keyval", keyval, "state", state, "handled", handled)
	return handled, nil
}

// FocusIn is called when the engine gains input focus.
func (e *IBusEngine) FocusIn() *dbus.Error {
	e.mu.Lock()
	e.focused = true
	e.mu.Unlock()

	e.logger.Debug("focus in")
	e.guard("focus_in", func() {})
	return nil
}

// FocusOut is called when the engine loses input focus. The pending
// composition is dropped.
func (e *IBusEngine) FocusOut() *dbus.Error {
	e.mu.Lock()
	e.focused = false
	e.mu.Unlock()

	e.logger.Debug("focus out")
	e.guard("focus_out", e.engine.Reset)
	return nil
}

// Enable is called when the engine is enabled.
func (e *IBusEngine) Enable() *dbus.Error {
	e.mu.Lock()
	e.enabled = true
	e.mu.Unlock()

	e.logger.Debug("enable")
	return nil
}

// Disable is called when the engine is disabled.
func (e *IBusEngine) Disable() *dbus.Error {
	e.mu.Lock()
	e.enabled = false
	e.mu.Unlock()

	e.logger.Debug("disable")
	e.guard("disable", e.engine.Reset)
	return nil
}

// Reset drops the composition.
func (e *IBusEngine) Reset() *dbus.Error {
	e.guard("reset", e.engine.Reset)
	return nil
}

// SetCursorLocation records the caret rectangle of the client.
func (e *IBusEngine) SetCursorLocation(x, y, w, h int32) *dbus.Error {
	e.mu.Lock()
	e.cursor = [4]int32{x, y, w, h}
	e.mu.Unlock()
	return nil
}

// SetCapabilities informs about client capabilities.
func (e *IBusEngine) SetCapabilities(caps uint32) *dbus.Error {
	e.logger.Debug("set capabilities", "caps", caps)
	return nil
}

// SetContentType informs about the type of content being edited.
func (e *IBusEngine) SetContentType(purpose, hints uint32) *dbus.Error {
	e.logger.Debug("set content type", "purpose", purpose, "hints", hints)
	return nil
}

// SetSurroundingText is accepted and ignored.
func (e *IBusEngine) SetSurroundingText(text dbus.Variant, cursorPos, anchorPos uint32) *dbus.Error {
	return nil
}

// PropertyActivate is accepted and ignored.
func (e *IBusEngine) PropertyActivate(propName string, state uint32) *dbus.Error {
	return nil
}

// PageUp shows the previous candidate page.
func (e *IBusEngine) PageUp() *dbus.Error {
	e.guard("page_up", func() { e.engine.ProcessKey(NewKeyval(KeyPageUp, 0)) })
	return nil
}

// PageDown shows the next candidate page.
func (e *IBusEngine) PageDown() *dbus.Error {
	e.guard("page_down", func() { e.engine.ProcessKey(NewKeyval(KeyPageDown, 0)) })
	return nil
}

// CursorUp highlights the previous candidate.
func (e *IBusEngine) CursorUp() *dbus.Error {
	e.guard("cursor_up", func() { e.engine.ProcessKey(NewKeyval(KeyUp, 0)) })
	return nil
}

// CursorDown highlights the next candidate.
func (e *IBusEngine) CursorDown() *dbus.Error {
	e.guard("cursor_down", func() { e.engine.ProcessKey(NewKeyval(KeyDown, 0)) })
	return nil
}

// CandidateClicked selects the clicked candidate of the current page.
func (e *IBusEngine) CandidateClicked(index, button, state uint32) *dbus.Error {
	e.guard("candidate_clicked", func() { e.engine.Select(int(index)) })
	return nil
}

// Destroy releases the engine; IBus calls it when the input context
// goes away.
func (e *IBusEngine) Destroy() *dbus.Error {
	if err := e.engine.Close(); err != nil {
		e.logger.Warn("close engine failed", "error", err)
	}
	if e.release != nil {
		e.release(e.path)
	}
	return nil
}

// Engine returns the engine behind this object.
func (e *IBusEngine) Engine() *Engine { return e.engine }

// IBusServer owns the bus connection and implements the
// org.freedesktop.IBus.Factory interface.
type IBusServer struct {
	cfg     config.IBusConfig
	factory EngineFactory
	crash   *logging.CrashHandler
	logger  *slog.Logger
	metrics *metrics.EngineMetrics

	conn       *dbus.Conn
	export     func(v any, path dbus.ObjectPath, iface string) error
	emitterFor func(path dbus.ObjectPath) Emitter

	mu      sync.Mutex
	nextID  uint32
	engines map[dbus.ObjectPath]*IBusEngine
}

// NewIBusServer creates a server that builds engines with factory.
func NewIBusServer(cfg config.IBusConfig, factory EngineFactory, crash *logging.CrashHandler, logger *slog.Logger) *IBusServer {
	if logger == nil {
		logger = logging.Default().WithComponent("ibus").Logger
	}
	if crash == nil {
		crash = logging.NewCrashHandler(&logging.CrashHandlerConfig{
			CrashDir:  logging.DefaultCrashDir(),
			Component: "ibus",
			Logger:    logger,
		})
	}
	return &IBusServer{
		cfg:     cfg,
		factory: factory,
		crash:   crash,
		logger:  logger,
		engines: make(map[dbus.ObjectPath]*IBusEngine),
	}
}

// SetMetrics makes the server count live engines and recovered panics.
// Call it before Start.
func (s *IBusServer) SetMetrics(m *metrics.EngineMetrics) { s.metrics = m }

// Start claims the bus name on conn and exports the factory.
func (s *IBusServer) Start(conn *dbus.Conn) error {
	reply, err := conn.RequestName(s.cfg.BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("bus name already taken")
	}

	s.conn = conn
	s.export = conn.Export
	s.emitterFor = func(path dbus.ObjectPath) Emitter {
		return &busEmitter{conn: conn, path: path}
	}
	if err := s.export(s, IBusFactoryPath, IBusFactoryInterface); err != nil {
		return fmt.Errorf("export factory: %w", err)
	}
	s.logger.Info("ibus engine started", "bus_name", s.cfg.BusName, "engine", s.cfg.EngineName)
	return nil
}

// CreateEngine creates a new engine instance for IBus.
func (s *IBusServer) CreateEngine(engineName string) (dbus.ObjectPath, *dbus.Error) {
	s.logger.Info("create engine", "name", engineName)

	if engineName != s.cfg.EngineName {
		return "", dbus.NewError("org.freedesktop.IBus.NoEngine",
			[]interface{}{"Unknown engine: " + engineName})
	}

	s.mu.Lock()
	s.nextID++
	path := dbus.ObjectPath(fmt.Sprintf("%s%d", IBusEnginePathPrefix, s.nextID))
	s.mu.Unlock()

	ie, err := newIBusEngine(path, s.emitterFor(path), s.factory, s.crash, s.logger)
	if err != nil {
		s.logger.Error("create engine failed", "error", err)
		return "", dbus.MakeFailedError(err)
	}
	ie.release = s.release
	ie.metrics = s.metrics

	for _, iface := range []string{IBusEngineInterface, IBusServiceInterface} {
		if err := s.export(ie, path, iface); err != nil {
			ie.engine.Close()
			return "", dbus.MakeFailedError(err)
		}
	}

	s.mu.Lock()
	s.engines[path] = ie
	s.mu.Unlock()
	s.metrics.EngineStarted()
	return path, nil
}

func (s *IBusServer) release(path dbus.ObjectPath) {
	s.mu.Lock()
	_, live := s.engines[path]
	delete(s.engines, path)
	s.mu.Unlock()
	if live {
		s.metrics.EngineStopped()
	}
	if s.export != nil {
		for _, iface := range []string{IBusEngineInterface, IBusServiceInterface} {
			s.export(nil, path, iface)
		}
	}
}

// Engines returns the number of live engines.
func (s *IBusServer) Engines() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.engines)
}

// Stop closes every engine and the bus connection.
func (s *IBusServer) Stop() error {
	s.mu.Lock()
	engines := make([]*IBusEngine, 0, len(s.engines))
	for _, ie := range s.engines {
		engines = append(engines, ie)
	}
	s.engines = make(map[dbus.ObjectPath]*IBusEngine)
	s.mu.Unlock()

	var errs []error
	for _, ie := range engines {
		if err := ie.engine.Close(); err != nil {
			errs = append(errs, err)
		}
		s.metrics.EngineStopped()
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// busEmitter sends engine signals on a D-Bus connection.
type busEmitter struct {
	conn *dbus.Conn
	path dbus.ObjectPath
}

func (b *busEmitter) CommitText(text string) error {
	return b.conn.Emit(b.path, IBusEngineInterface+".CommitText", ibusText(text))
}

func (b *busEmitter) UpdatePreedit(p composition.Preedit, visible bool) error {
	caret := uint32(utf8.RuneCountInString(p.Text[:min(p.CaretPos, len(p.Text))]))
	return b.conn.Emit(b.path, IBusEngineInterface+".UpdatePreeditText",
		ibusText(p.Text), caret, visible, ibusPreeditClear)
}

func (b *busEmitter) UpdateLookupTable(page *menu.Page, cursor int, visible bool) error {
	return b.conn.Emit(b.path, IBusEngineInterface+".UpdateLookupTable",
		ibusLookupTable(page, cursor), visible)
}

// IBus serializables start with a type name and an attachment dict.
type ibusAttrList struct {
	Name        string
	Attachments map[string]dbus.Variant
	Attributes  []dbus.Variant
}

type ibusTextValue struct {
	Name        string
	Attachments map[string]dbus.Variant
	Text        string
	Attrs       dbus.Variant
}

func ibusText(text string) dbus.Variant {
	return dbus.MakeVariant(ibusTextValue{
		Name:        "IBusText",
		Attachments: map[string]dbus.Variant{},
		Text:        text,
		Attrs: dbus.MakeVariant(ibusAttrList{
			Name:        "IBusAttrList",
			Attachments: map[string]dbus.Variant{},
			Attributes:  []dbus.Variant{},
		}),
	})
}

type ibusLookupTableValue struct {
	Name          string
	Attachments   map[string]dbus.Variant
	PageSize      uint32
	CursorPos     uint32
	CursorVisible bool
	Round         bool
	Orientation   int32
	Candidates    []dbus.Variant
	Labels        []dbus.Variant
}

func ibusLookupTable(page *menu.Page, cursor int) dbus.Variant {
	table := ibusLookupTableValue{
		Name:          "IBusLookupTable",
		Attachments:   map[string]dbus.Variant{},
		CursorVisible: true,
		Orientation:   -1,
		Candidates:    []dbus.Variant{},
		Labels:        []dbus.Variant{},
	}
	if page != nil {
		table.PageSize = uint32(page.Size)
		table.CursorPos = uint32(max(cursor, 0))
		for i, c := range page.Candidates {
			label := c.Text()
			if comment := c.Comment(); comment != "" {
				label += " " + comment
			}
			table.Candidates = append(table.Candidates, ibusText(label))
			table.Labels = append(table.Labels, ibusText(fmt.Sprintf("%d.", (i+1)%10)))
		}
	}
	return dbus.MakeVariant(table)
}
