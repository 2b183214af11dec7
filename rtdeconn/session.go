package rtdeconn

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-rtde/internal/pool"
	"github.com/arloliu/go-rtde/internal/transport"
	"github.com/arloliu/go-rtde/logger"
	"github.com/arloliu/go-rtde/robotstate"
	"github.com/arloliu/go-rtde/rtde"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	// idlePollInterval bounds each read of a link that is not streaming, so the receiver
	// keeps polling the stop flag.
	idlePollInterval = 50 * time.Millisecond
	// stopPollInterval is the period at which the supervisor checks the stop flag.
	stopPollInterval = 50 * time.Millisecond
)

var errReceiverStopped = errors.New("rtdeconn: receiver stopped")

// link is one TCP connection to the controller and its receiver goroutine.
type link struct {
	conn *transport.Conn
	// streaming is true between a positive START and a positive PAUSE reply. The
	// receiver treats silence as a lost connection only while streaming.
	streaming atomic.Bool
	// lost is closed when the receiver exits; err holds the reason and is written before.
	lost chan struct{}
	err  error
}

// Session is an RTDE client session.
//
// It negotiates the protocol, sets up the output and input recipes, starts data
// synchronization and keeps the decoded telemetry in a robotstate.Store. After a
// successful Open a supervisor goroutine recovers lost connections within the
// reconnect window, and stops the session when the store's stop flag is raised.
//
// All methods are safe for concurrent use.
type Session struct {
	cfg      *SessionConfig
	store    *robotstate.Store
	logger   logger.Logger
	stateMgr *rtde.ConnStateMgr

	linkMu sync.RWMutex
	link   *link

	reqMu   sync.Mutex // one request in flight
	waiters *xsync.MapOf[rtde.Command, chan rtde.Frame]

	recipeMu  sync.RWMutex
	outRecipe *rtde.Recipe
	outFields []rtde.FieldDesc
	inRecipe  *rtde.Recipe
	inFields  []rtde.FieldDesc
	inRecord  *rtde.DataRecord

	version  atomic.Pointer[rtde.ControllerVersion]
	lastRecv atomic.Int64
	// paused is set by a successful Pause and cleared by Start; recovery restores it.
	paused atomic.Bool

	ctx       context.Context
	ctxCancel context.CancelFunc
	openMu    sync.Mutex
	opened    bool
	closed    bool
	wg        sync.WaitGroup
	done      chan struct{}
	doneOnce  sync.Once
	errMu     sync.Mutex
	err       error

	metrics SessionMetrics
}

// NewSession creates a session for cfg that publishes its state and telemetry to store.
// The session is not connected until Open is called.
func NewSession(cfg *SessionConfig, store *robotstate.Store) (*Session, error) {
	if cfg == nil {
		return nil, ErrSessionConfigNil
	}
	if store == nil {
		return nil, ErrStoreNil
	}

	s := &Session{
		cfg:       cfg,
		store:     store,
		logger:    cfg.logger.With("component", "rtde", "remote", fmt.Sprintf("%s:%d", cfg.host, cfg.port)),
		waiters:   xsync.NewMapOf[rtde.Command, chan rtde.Frame](),
		outFields: cfg.OutputFields(),
		inFields:  cfg.InputFields(),
		done:      make(chan struct{}),
	}
	s.ctx, s.ctxCancel = context.WithCancel(context.Background())
	s.stateMgr = rtde.NewConnStateMgr(s.logger, s.connStateHandler)
	store.SetRTDEState(rtde.DisconnectedState)

	return s, nil
}

func (s *Session) connStateHandler(prev rtde.ConnState, cur rtde.ConnState) {
	s.store.SetRTDEState(cur)
	s.logger.Debug("rtde state changed", "prev", prev, "state", cur)
}

// Store returns the control-state store the session writes to.
func (s *Session) Store() *robotstate.Store { return s.store }

// Metrics returns the session metrics.
func (s *Session) Metrics() *SessionMetrics { return &s.metrics }

// State returns the current connection state.
func (s *Session) State() rtde.ConnState { return s.stateMgr.State() }

// IsConnected reports whether a connection is up (Connected, Started or Paused).
func (s *Session) IsConnected() bool { return s.stateMgr.IsConnected() }

// IsRunning reports whether data synchronization is started.
func (s *Session) IsRunning() bool { return s.stateMgr.IsStarted() }

// WaitState blocks until the session reaches state or ctx is done.
func (s *Session) WaitState(ctx context.Context, state rtde.ConnState) error {
	return s.stateMgr.WaitState(ctx, state)
}

// ControllerVersion returns the version reported by the controller during the last
// handshake. The second result is false before the first handshake.
func (s *Session) ControllerVersion() (rtde.ControllerVersion, bool) {
	v := s.version.Load()
	if v == nil {
		return rtde.ControllerVersion{}, false
	}

	return *v, true
}

// OutputRecipe returns the negotiated output recipe, or nil.
func (s *Session) OutputRecipe() *rtde.Recipe {
	s.recipeMu.RLock()
	defer s.recipeMu.RUnlock()

	return s.outRecipe
}

// InputRecipe returns the negotiated input recipe, or nil.
func (s *Session) InputRecipe() *rtde.Recipe {
	s.recipeMu.RLock()
	defer s.recipeMu.RUnlock()

	return s.inRecipe
}

// Done returns a channel that is closed when the session has stopped, whether by Close,
// by the stop flag or by a terminal failure.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the terminal error after Done is closed, such as ErrReconnectTimeout.
// It returns nil for a requested stop.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()

	return s.err
}

// Open connects to the controller and performs the full handshake: controller version,
// protocol version, output setup, input setup and START.
//
// Attempts are repeated every reconnect delay until the reconnect timeout elapses.
// An unsupported controller or protocol version fails immediately. On success a
// supervisor goroutine takes over and the call returns.
func (s *Session) Open(ctx context.Context) error {
	s.openMu.Lock()
	defer s.openMu.Unlock()

	switch {
	case s.closed:
		return ErrSessionClosed
	case s.opened:
		return ErrAlreadyOpened
	case s.store.StopRequested():
		return ErrStopRequested
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	if err := s.connect(ctx, time.Now().Add(s.cfg.reconnectTimeout), false); err != nil {
		if s.ctx.Err() != nil {
			return ErrSessionClosed
		}

		return err
	}

	s.opened = true
	s.wg.Add(1)
	go s.supervise()

	s.logger.Info("rtde session started", "method", "Open", "version", s.versionString())

	return nil
}

// Close stops the session: a best-effort PAUSE is sent, the connection is closed and the
// connection state in the store is reset. It blocks until the supervisor has exited and
// is safe to call more than once.
func (s *Session) Close() error {
	s.ctxCancel()

	s.openMu.Lock()
	alreadyClosed := s.closed
	s.closed = true
	supervised := s.opened
	s.openMu.Unlock()

	if !supervised && !alreadyClosed {
		s.shutdown(nil)
	}

	<-s.done
	s.wg.Wait()

	return nil
}

// ConfigureOutputs sets up the output recipe. A nil fields uses the configured
// description.
//
// The session must be Connected or Paused. A field list that fails validation, or a
// session in another state, leaves the previous recipe in use. Once the request has been
// sent, a failure drops the output recipe: data packages are discarded and counted in
// DataDropCount until a setup succeeds.
func (s *Session) ConfigureOutputs(ctx context.Context, fields []rtde.FieldDesc) error {
	if fields == nil {
		fields = s.cfg.OutputFields()
	} else if err := validateFields(fields); err != nil {
		return err
	}

	l, err := s.setupLink()
	if err != nil {
		return err
	}

	return s.setupOutputs(ctx, l, fields)
}

// ConfigureInputs sets up the input recipe. A nil fields uses the configured description.
//
// The session must be Connected or Paused. On success the input record is reset to the
// fields' Init values. A failure before the request is sent leaves the previous recipe
// and record in use; a failure after it drops both, and PushOutput returns
// ErrNoInputRecipe until a setup succeeds.
func (s *Session) ConfigureInputs(ctx context.Context, fields []rtde.FieldDesc) error {
	if fields == nil {
		fields = s.cfg.InputFields()
	} else if err := validateFields(fields); err != nil {
		return err
	}

	l, err := s.setupLink()
	if err != nil {
		return err
	}

	return s.setupInputs(ctx, l, fields, false)
}

// Start starts data synchronization. It is a no-op when already started.
func (s *Session) Start(ctx context.Context) error {
	if s.stateMgr.IsStarted() {
		return nil
	}

	l, err := s.activeLink()
	if err != nil {
		return err
	}

	if err := s.start(ctx, l); err != nil {
		return err
	}
	s.paused.Store(false)

	return nil
}

// Pause pauses data synchronization, after which recipes can be set up again.
// It is a no-op when already paused. A session recovered from a lost link stays paused
// until Start is called.
func (s *Session) Pause(ctx context.Context) error {
	if s.stateMgr.State() == rtde.PausedState {
		return nil
	}

	l, err := s.activeLink()
	if err != nil {
		return err
	}

	f, err := s.exchange(ctx, l, rtde.CmdPause, nil)
	if err != nil {
		return err
	}

	ok, err := rtde.DecodeBoolAck(f.Payload)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPauseRefused
	}

	if err := s.stateMgr.To(rtde.PausedState); err != nil {
		return err
	}
	s.paused.Store(true)

	return nil
}

// SetField stores value into the named input field. It is sent by the next PushOutput.
func (s *Session) SetField(name string, value any) error {
	s.recipeMu.Lock()
	defer s.recipeMu.Unlock()

	if s.inRecord == nil {
		return ErrNoInputRecipe
	}

	return s.inRecord.Set(name, value)
}

// SetFields stores values into the named input fields pairwise. Either every value is
// stored or none is.
func (s *Session) SetFields(names []string, values []any) error {
	s.recipeMu.Lock()
	defer s.recipeMu.Unlock()

	if s.inRecord == nil {
		return ErrNoInputRecipe
	}

	return s.inRecord.SetMany(names, values)
}

// InputValue returns the current value of the named input field.
func (s *Session) InputValue(name string) (rtde.Value, bool) {
	s.recipeMu.RLock()
	defer s.recipeMu.RUnlock()

	if s.inRecord == nil {
		return rtde.Value{}, false
	}

	return s.inRecord.Get(name)
}

// PushOutput packs the input record and sends it to the controller.
//
// It does nothing when data synchronization is not started or a stop is requested.
// Every input field must have been given a value.
func (s *Session) PushOutput() error {
	if s.store.StopRequested() || !s.stateMgr.IsStarted() {
		return nil
	}

	s.recipeMu.RLock()
	recipe, rec := s.inRecipe, s.inRecord
	var payload []byte
	var err error
	if recipe != nil {
		payload, err = recipe.Pack(rec)
	}
	s.recipeMu.RUnlock()

	if recipe == nil {
		return ErrNoInputRecipe
	}
	if err != nil {
		return err
	}

	l, err := s.activeLink()
	if err != nil {
		return err
	}

	if err := l.conn.SendFrame(rtde.CmdDataPackage, payload); err != nil {
		return err
	}
	s.metrics.incDataSendCount()

	return nil
}

// connect establishes a link before deadline. When recovering, a failed attempt leaves
// the session in ErrorState instead of DisconnectedState.
func (s *Session) connect(ctx context.Context, deadline time.Time, recovering bool) error {
	attemptCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	// cause is the most telling failure; an attempt cut off by the deadline reports
	// only a context error.
	var cause error
	for attempt := 1; ; attempt++ {
		err := s.establish(attemptCtx)
		if err == nil {
			s.metrics.resetConnRetryGauge()
			return nil
		}
		if cause == nil || attemptCtx.Err() == nil {
			cause = err
		}

		s.teardown()
		if recovering {
			_ = s.stateMgr.To(rtde.ErrorState)
		} else {
			s.stateMgr.ToDisconnected()
		}

		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, rtde.ErrUnsupportedController), errors.Is(err, rtde.ErrProtocolVersion):
			s.logger.Error("controller rejected", "method", "connect", "error", err)
			return err
		case s.store.StopRequested():
			return ErrStopRequested
		}

		s.metrics.incConnRetryGauge()
		if !time.Now().Add(s.cfg.reconnectDelay).Before(deadline) {
			return fmt.Errorf("%w after %d attempts: %w", ErrReconnectTimeout, attempt, cause)
		}

		s.logger.Debug("connect attempt failed", "method", "connect", "attempt", attempt, "error", err)

		if err := pool.Sleep(attemptCtx, s.cfg.reconnectDelay); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			return fmt.Errorf("%w after %d attempts: %w", ErrReconnectTimeout, attempt, cause)
		}
	}
}

// establish dials the controller and runs the full handshake with the current recipe
// descriptions.
func (s *Session) establish(ctx context.Context) error {
	s.teardown()

	conn, err := transport.Dial(ctx, s.cfg.host, s.cfg.port,
		transport.WithDialTimeout(s.cfg.timeout),
		transport.WithIOTimeout(s.cfg.timeout),
		transport.WithLogger(s.logger),
	)
	if err != nil {
		return err
	}

	l := s.attach(conn)

	s.stateMgr.ToDisconnected()
	if err := s.stateMgr.To(rtde.ConnectedState); err != nil {
		return err
	}

	if err := s.negotiate(ctx, l); err != nil {
		return err
	}

	s.recipeMu.RLock()
	outFields, inFields := s.outFields, s.inFields
	s.recipeMu.RUnlock()

	if err := s.setupOutputs(ctx, l, outFields); err != nil {
		return err
	}
	if err := s.setupInputs(ctx, l, inFields, true); err != nil {
		return err
	}

	if s.paused.Load() {
		return s.stateMgr.To(rtde.PausedState)
	}

	return s.start(ctx, l)
}

func (s *Session) negotiate(ctx context.Context, l *link) error {
	f, err := s.exchange(ctx, l, rtde.CmdGetURControlVersion, nil)
	if err != nil {
		return err
	}

	version, err := rtde.DecodeControllerVersion(f.Payload)
	if err != nil {
		return err
	}
	s.version.Store(&version)

	if version.Less(s.cfg.minControllerVersion) {
		return fmt.Errorf("%w: %s, need at least %s", rtde.ErrUnsupportedController, version, s.cfg.minControllerVersion)
	}

	f, err = s.exchange(ctx, l, rtde.CmdRequestProtocolVersion, rtde.EncodeProtocolVersionRequest(ProtocolVersion))
	if err != nil {
		return err
	}

	ok, err := rtde.DecodeBoolAck(f.Payload)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: version %d refused", rtde.ErrProtocolVersion, ProtocolVersion)
	}

	return nil
}

func (s *Session) setupOutputs(ctx context.Context, l *link, fields []rtde.FieldDesc) error {
	names := rtde.FieldNames(fields)

	f, err := s.exchange(ctx, l, rtde.CmdSetupOutputs, rtde.EncodeSetupRequest(names))
	if err != nil {
		s.dropOutputRecipe(err)
		return err
	}

	recipe, err := recipeFromAck(f.Payload, false, fields)
	if err != nil {
		s.dropOutputRecipe(err)
		return fmt.Errorf("setup outputs: %w", err)
	}

	s.recipeMu.Lock()
	s.outRecipe = recipe
	s.outFields = slices.Clone(fields)
	s.recipeMu.Unlock()

	s.logger.Debug("output recipe ready", "method", "setupOutputs", "recipe", recipe)

	return nil
}

// setupInputs negotiates the input recipe. With keepValues, values of fields whose name
// and type are unchanged carry over to the new record; other fields take their Init value.
func (s *Session) setupInputs(ctx context.Context, l *link, fields []rtde.FieldDesc, keepValues bool) error {
	names := rtde.FieldNames(fields)

	f, err := s.exchange(ctx, l, rtde.CmdSetupInputs, rtde.EncodeSetupRequest(names))
	if err != nil {
		s.dropInputRecipe(err)
		return err
	}

	recipe, err := recipeFromAck(f.Payload, true, fields)
	if err != nil {
		s.dropInputRecipe(err)
		return fmt.Errorf("setup inputs: %w", err)
	}

	rec := recipe.NewRecord()
	for _, fd := range fields {
		if fd.Init == nil {
			continue
		}
		if err := rec.Set(fd.Name, fd.Init); err != nil {
			s.dropInputRecipe(err)
			return fmt.Errorf("setup inputs: %w", err)
		}
	}

	s.recipeMu.Lock()
	if keepValues && s.inRecord != nil {
		s.inRecord.Range(func(name string, v rtde.Value) bool {
			if t, ok := recipe.TypeOf(name); ok && t == v.Type() {
				_ = rec.Set(name, v)
			}
			return true
		})
	}
	s.inRecipe = recipe
	s.inFields = slices.Clone(fields)
	s.inRecord = rec
	s.recipeMu.Unlock()

	s.logger.Debug("input recipe ready", "method", "setupInputs", "recipe", recipe)

	return nil
}

// dropOutputRecipe forgets the output recipe after a setup request reached the
// controller without a usable reply. The controller may already stream the new layout,
// so data packages are dropped until the next successful setup.
func (s *Session) dropOutputRecipe(cause error) {
	s.recipeMu.Lock()
	s.outRecipe = nil
	s.recipeMu.Unlock()

	s.logger.Warn("output recipe dropped", "method", "setupOutputs", "error", cause)
}

// dropInputRecipe forgets the input recipe and record after a failed setup request; the
// controller may have assigned a new recipe id.
func (s *Session) dropInputRecipe(cause error) {
	s.recipeMu.Lock()
	s.inRecipe = nil
	s.inRecord = nil
	s.recipeMu.Unlock()

	s.logger.Warn("input recipe dropped", "method", "setupInputs", "error", cause)
}

func (s *Session) start(ctx context.Context, l *link) error {
	f, err := s.exchange(ctx, l, rtde.CmdStart, nil)
	if err != nil {
		return err
	}

	ok, err := rtde.DecodeBoolAck(f.Payload)
	if err != nil {
		return err
	}
	if !ok {
		return ErrStartRefused
	}

	return s.stateMgr.To(rtde.StartedState)
}

// recipeFromAck builds the recipe of a setup reply and checks it against the expected
// types of fields.
func recipeFromAck(payload []byte, hasID bool, fields []rtde.FieldDesc) (*rtde.Recipe, error) {
	ack, err := rtde.DecodeSetupAck(payload, hasID)
	if err != nil {
		return nil, err
	}
	if len(ack.Types) != len(fields) {
		return nil, fmt.Errorf("%w: %d fields requested, %d types returned", rtde.ErrLengthMismatch, len(fields), len(ack.Types))
	}

	recipe, err := ack.Recipe(rtde.FieldNames(fields))
	if err != nil {
		return nil, err
	}

	types := recipe.Types()
	for i, fd := range fields {
		if fd.Type == "" {
			continue
		}
		want, err := rtde.ParseFieldType(fd.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", fd.Name, err)
		}
		if want != types[i] {
			return nil, fmt.Errorf("field %q: %w: want %s, controller reports %s", fd.Name, rtde.ErrTypeMismatch, want, types[i])
		}
	}

	return recipe, nil
}

// exchange sends a request and waits for the reply with the same command code.
func (s *Session) exchange(ctx context.Context, l *link, cmd rtde.Command, payload []byte) (rtde.Frame, error) {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	replyCh := make(chan rtde.Frame, 1)
	s.waiters.Store(cmd, replyCh)
	defer s.waiters.Delete(cmd)

	if err := l.conn.SendFrame(cmd, payload); err != nil {
		return rtde.Frame{}, err
	}

	timer := pool.GetTimer(s.cfg.timeout)
	defer pool.PutTimer(timer)

	select {
	case f := <-replyCh:
		return f, nil

	case <-timer.C:
		// replies carry no request id, so a late one would answer the next request
		// with the same command; the link is dropped here and on cancellation
		s.logger.Warn("reply timeout, closing link", "method", "exchange", "cmd", cmd, "timeout", s.cfg.timeout)
		_ = l.conn.Close()

		return rtde.Frame{}, fmt.Errorf("%w: %s", ErrReplyTimeout, cmd)

	case <-l.lost:
		if l.err != nil && !errors.Is(l.err, errReceiverStopped) {
			return rtde.Frame{}, l.err
		}

		return rtde.Frame{}, ErrNotConnected

	case <-ctx.Done():
		_ = l.conn.Close()
		return rtde.Frame{}, ctx.Err()
	}
}

// attach installs a link for conn and starts its receiver.
func (s *Session) attach(conn *transport.Conn) *link {
	l := &link{conn: conn, lost: make(chan struct{})}
	s.lastRecv.Store(time.Now().UnixNano())

	s.linkMu.Lock()
	s.link = l
	s.linkMu.Unlock()

	go s.receiverTask(l)

	return l
}

// teardown closes the current link and waits for its receiver to exit.
func (s *Session) teardown() {
	s.linkMu.Lock()
	l := s.link
	s.link = nil
	s.linkMu.Unlock()

	if l == nil {
		return
	}

	_ = l.conn.Close()
	<-l.lost
}

func (s *Session) currentLink() *link {
	s.linkMu.RLock()
	defer s.linkMu.RUnlock()

	return s.link
}

func (s *Session) activeLink() (*link, error) {
	if s.store.StopRequested() {
		return nil, ErrStopRequested
	}

	l := s.currentLink()
	if l == nil || l.conn.IsClosed() || !s.stateMgr.IsConnected() {
		return nil, ErrNotConnected
	}

	return l, nil
}

func (s *Session) setupLink() (*link, error) {
	l, err := s.activeLink()
	if err != nil {
		return nil, err
	}

	if state := s.stateMgr.State(); !state.CanSetup() {
		return nil, fmt.Errorf("%w: state %s", ErrSetupNotAllowed, state)
	}

	return l, nil
}

// receiverTask reads frames of l in arrival order until the link fails or a stop is
// requested.
func (s *Session) receiverTask(l *link) {
	defer close(l.lost)

	for {
		if s.store.StopRequested() {
			l.err = errReceiverStopped
			return
		}

		var frames []rtde.Frame
		var err error
		if l.streaming.Load() {
			frames, err = l.conn.ReceiveFrames()
		} else {
			frames, err = l.conn.PollFrames(idlePollInterval)
		}
		if err != nil {
			l.err = err
			return
		}

		s.lastRecv.Store(time.Now().UnixNano())

		for _, f := range frames {
			s.dispatch(l, f)
		}
	}
}

func (s *Session) dispatch(l *link, f rtde.Frame) {
	switch f.Cmd {
	case rtde.CmdDataPackage:
		s.recvData(f.Payload)
		return

	case rtde.CmdTextMessage:
		s.recvText(f.Payload)
		return

	case rtde.CmdStart, rtde.CmdPause:
		if ok, err := rtde.DecodeBoolAck(f.Payload); err == nil && ok {
			l.streaming.Store(f.Cmd == rtde.CmdStart)
		}
	}

	if replyCh, ok := s.waiters.LoadAndDelete(f.Cmd); ok {
		replyCh <- f
		return
	}

	s.metrics.incUnexpectedReplyCount()
	s.logger.Warn("unexpected reply", "method", "dispatch", "cmd", f.Cmd, "size", len(f.Payload))
}

func (s *Session) recvData(payload []byte) {
	recipe := s.OutputRecipe()
	if recipe == nil {
		s.metrics.incDataDropCount()
		return
	}

	if len(payload) != recipe.PayloadSize() {
		s.metrics.incDataErrCount()
		s.logger.Debug("data package size mismatch", "method", "recvData", "size", len(payload), "want", recipe.PayloadSize())

		return
	}

	rec, err := recipe.Unpack(payload)
	if err != nil {
		s.metrics.incDataErrCount()
		s.logger.Debug("failed to decode data package", "method", "recvData", "error", err)

		return
	}

	s.store.IngestTelemetry(rec)
	s.metrics.incDataRecvCount()
}

func (s *Session) recvText(payload []byte) {
	msg, err := rtde.DecodeTextMessage(payload)
	if err != nil {
		s.logger.Debug("failed to decode text message", "method", "recvText", "error", err)
		return
	}

	switch msg.Level {
	case rtde.ExceptionMessage, rtde.ErrorMessage:
		s.logger.Error("controller message", "level", msg.Level, "text", msg.Text)
	case rtde.WarningMessage:
		s.logger.Warn("controller message", "level", msg.Level, "text", msg.Text)
	default:
		s.logger.Info("controller message", "level", msg.Level, "text", msg.Text)
	}
	s.metrics.incTextMessageCount()
}

// supervise owns the session after Open: it recovers lost links and shuts the session
// down on Close, on the stop flag, or when recovery fails.
func (s *Session) supervise() {
	defer s.wg.Done()

	ticker := time.NewTicker(stopPollInterval)
	defer ticker.Stop()

	for {
		var lost <-chan struct{}
		l := s.currentLink()
		if l != nil {
			lost = l.lost
		}

		select {
		case <-s.ctx.Done():
			s.shutdown(nil)
			return

		case <-ticker.C:
			if s.store.StopRequested() {
				s.logger.Info("stop requested", "method", "supervise")
				s.shutdown(nil)

				return
			}

		case <-lost:
			if s.ctx.Err() != nil || s.store.StopRequested() {
				s.shutdown(nil)
				return
			}

			if err := s.recover(l.err); err != nil {
				if s.ctx.Err() != nil || errors.Is(err, ErrStopRequested) {
					err = nil
				}
				s.shutdown(err)

				return
			}
		}
	}
}

// recover re-establishes the session after its link was lost. The attempt window ends
// one reconnect timeout after the last successful receive.
//
// The transport closes the socket on any I/O failure, so the link is always replaced:
// dial, version checks, both recipes with their previous descriptions, then START. A
// session the caller had paused comes back Paused without START.
func (s *Session) recover(cause error) error {
	_ = s.stateMgr.To(rtde.ErrorState)
	s.metrics.incRecoveryCount()

	deadline := time.Unix(0, s.lastRecv.Load()).Add(s.cfg.reconnectTimeout)
	s.logger.Warn("rtde connection lost, reconnecting", "method", "recover", "error", cause, "deadline", deadline)

	if err := s.connect(s.ctx, deadline, true); err != nil {
		return err
	}

	s.logger.Info("rtde connection recovered", "method", "recover", "version", s.versionString())

	return nil
}

// shutdown stops the session. A non-nil cause is terminal: it raises the stop flag and
// the program error flag in the store, clears the program running flag, and is reported
// by Err.
func (s *Session) shutdown(cause error) {
	if l := s.currentLink(); l != nil && !l.conn.IsClosed() && l.streaming.Load() {
		// best-effort, no reply awaited
		_ = l.conn.SendFrame(rtde.CmdPause, nil)
	}

	s.teardown()
	s.stateMgr.ToDisconnected()
	s.store.ResetRTDE()

	if cause != nil {
		s.store.RequestStop()
		s.store.SetProgramError(true)
		s.store.SetProgramRunning(false)
		s.logger.Error("rtde session failed", "method", "shutdown", "error", cause)
	} else {
		s.logger.Info("rtde session stopped", "method", "shutdown")
	}

	s.doneOnce.Do(func() {
		s.errMu.Lock()
		s.err = cause
		s.errMu.Unlock()
		close(s.done)
	})
}

func (s *Session) versionString() string {
	if v, ok := s.ControllerVersion(); ok {
		return v.String()
	}

	return "unknown"
}
