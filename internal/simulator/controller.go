// Package simulator implements an in-process fake UR controller.
//
// It serves the RTDE protocol (version negotiation, recipe setup, start/pause, data
// package streaming, input package capture) and captures the text written to the
// script port. Tests and the urctl simulate command drive its telemetry with the
// Set* methods.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/arloliu/go-rtde/logger"
	"github.com/arloliu/go-rtde/robotstate"
	"github.com/arloliu/go-rtde/rtde"
)

// Config configures a Controller. Zero fields take the defaults documented per field.
type Config struct {
	// Host is the listen host. Default: 127.0.0.1.
	Host string
	// RTDEPort and ScriptPort are the listen ports. Default: 0, an ephemeral port.
	RTDEPort   int
	ScriptPort int
	// Version is the reported controller version. Default: 5.9.0.0.
	Version rtde.ControllerVersion
	// ShortVersion makes the version reply 12 bytes long, omitting the build number.
	ShortVersion bool
	// Protocols lists the accepted protocol versions. Default: 1 and 2.
	Protocols []uint16
	// Outputs and Inputs are the known variables. Default: DefaultOutputs / DefaultInputs.
	Outputs map[string]string
	Inputs  map[string]string
	// InUse lists input variables claimed by another client.
	InUse []string
	// DataInterval is the data package period while started. Default: 8ms.
	DataInterval time.Duration
	// RefuseStart makes START replies negative.
	RefuseStart bool
	// Delays holds the time to wait before handling each listed command. Data keeps
	// streaming meanwhile.
	Delays map[rtde.Command]time.Duration
	// OnScript is called with every chunk read from the script port.
	OnScript func(c *Controller, text string)
	// Logger defaults to the package default logger.
	Logger logger.Logger
}

// Controller is a running fake controller.
type Controller struct {
	cfg    Config
	logger logger.Logger

	rtdeLn   net.Listener
	scriptLn net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	changed   chan struct{}
	outputs   map[string]any
	conns     map[net.Conn]*session
	commands  []rtde.Command
	inputs    [][]byte
	script    strings.Builder
	nextID    uint8
	rtdeConns int
}

type session struct {
	conn      net.Conn
	writeMu   sync.Mutex
	outRecipe *rtde.Recipe
	started   bool
}

// New starts a fake controller listening on the RTDE and script ports.
func New(cfg Config) (*Controller, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Version == (rtde.ControllerVersion{}) {
		cfg.Version = rtde.ControllerVersion{Major: 5, Minor: 9}
	}
	if len(cfg.Protocols) == 0 {
		cfg.Protocols = []uint16{1, 2}
	}
	if cfg.Outputs == nil {
		cfg.Outputs = DefaultOutputs()
	}
	if cfg.Inputs == nil {
		cfg.Inputs = DefaultInputs()
	}
	if cfg.DataInterval <= 0 {
		cfg.DataInterval = 8 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	rtdeLn, err := net.Listen("tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.RTDEPort)))
	if err != nil {
		return nil, fmt.Errorf("simulator: listen rtde: %w", err)
	}
	scriptLn, err := net.Listen("tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.ScriptPort)))
	if err != nil {
		_ = rtdeLn.Close()
		return nil, fmt.Errorf("simulator: listen script: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "simulator"),
		rtdeLn:   rtdeLn,
		scriptLn: scriptLn,
		ctx:      ctx,
		cancel:   cancel,
		changed:  make(chan struct{}),
		outputs:  make(map[string]any),
		conns:    make(map[net.Conn]*session),
		nextID:   1,
	}
	c.outputs[robotstate.RobotStatusBitsField] = uint32(1) // powered on
	c.outputs[robotstate.SafetyStatusBitsField] = uint32(1) // normal mode

	c.wg.Add(2)
	go c.acceptLoop(rtdeLn, c.serveRTDE)
	go c.acceptLoop(scriptLn, c.serveScript)

	return c, nil
}

// Host returns the listen host.
func (c *Controller) Host() string { return c.cfg.Host }

// RTDEPort returns the RTDE listen port.
func (c *Controller) RTDEPort() int { return c.rtdeLn.Addr().(*net.TCPAddr).Port }

// ScriptPort returns the script listen port.
func (c *Controller) ScriptPort() int { return c.scriptLn.Addr().(*net.TCPAddr).Port }

// Close stops the listeners and closes every connection.
func (c *Controller) Close() {
	c.cancel()
	_ = c.rtdeLn.Close()
	_ = c.scriptLn.Close()

	c.mu.Lock()
	for conn := range c.conns {
		_ = conn.Close()
	}
	c.mu.Unlock()

	c.wg.Wait()
}

// SetOutput sets the value streamed for an output variable.
func (c *Controller) SetOutput(name string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.outputs[name] = v
}

// SetRegisters sets the started and finished status registers (bits 0 and 1).
func (c *Controller) SetRegisters(started bool, finished bool) {
	c.updateBits(robotstate.OutputBitRegistersField, 0, started)
	c.updateBits(robotstate.OutputBitRegistersField, 1, finished)
}

// SetSafetyStopped sets the stopped-due-to-safety bit.
func (c *Controller) SetSafetyStopped(v bool) {
	c.updateBits(robotstate.SafetyStatusBitsField, 10, v)
}

// SetProgramRunning sets the program running bit of the robot status.
func (c *Controller) SetProgramRunning(v bool) {
	c.updateBits(robotstate.RobotStatusBitsField, 1, v)
}

func (c *Controller) updateBits(name string, bit uint, set bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, _ := c.outputs[name].(uint32)
	if set {
		cur |= 1 << bit
	} else {
		cur &^= 1 << bit
	}
	c.outputs[name] = cur
}

// SendText sends a text message to every connected RTDE client.
func (c *Controller) SendText(level rtde.MessageLevel, text string) {
	msg := rtde.TextMessage{Level: level, Text: text}.Encode()
	for _, s := range c.sessions() {
		_ = s.send(rtde.CmdTextMessage, msg)
	}
}

// DropConnections closes every RTDE connection, simulating a network fault.
func (c *Controller) DropConnections() {
	for _, s := range c.sessions() {
		_ = s.conn.Close()
	}
}

// Commands returns the commands received on the RTDE port, data packages excluded.
func (c *Controller) Commands() []rtde.Command {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.commands)
}

// InputPackages returns the payloads of the data packages received from clients.
func (c *Controller) InputPackages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.inputs)
}

// Connections returns the number of RTDE connections accepted so far.
func (c *Controller) Connections() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rtdeConns
}

// ScriptText returns everything received on the script port.
func (c *Controller) ScriptText() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.script.String()
}

// WaitScript blocks until the script text contains substr or ctx is done.
func (c *Controller) WaitScript(ctx context.Context, substr string) error {
	return c.waitFor(ctx, func() bool { return strings.Contains(c.script.String(), substr) })
}

// WaitInput blocks until n input packages have been received or ctx is done.
func (c *Controller) WaitInput(ctx context.Context, n int) error {
	return c.waitFor(ctx, func() bool { return len(c.inputs) >= n })
}

// WaitConnections blocks until n RTDE connections have been accepted or ctx is done.
func (c *Controller) WaitConnections(ctx context.Context, n int) error {
	return c.waitFor(ctx, func() bool { return c.rtdeConns >= n })
}

func (c *Controller) waitFor(ctx context.Context, cond func() bool) error {
	for {
		c.mu.Lock()
		ok := cond()
		ch := c.changed
		c.mu.Unlock()

		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// notifyLocked wakes waitFor callers. Callers hold c.mu.
func (c *Controller) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *Controller) sessions() []*session {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*session, 0, len(c.conns))
	for _, s := range c.conns {
		if s != nil {
			out = append(out, s)
		}
	}

	return out
}

func (c *Controller) acceptLoop(ln net.Listener, serve func(net.Conn)) {
	defer c.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				c.logger.Debug("accept failed", "error", err)
			}
			return
		}

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			serve(conn)
		}()
	}
}

func (c *Controller) serveScript(conn net.Conn) {
	c.mu.Lock()
	c.conns[conn] = nil
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.conns, conn)
		c.mu.Unlock()
		_ = conn.Close()
	}()

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			text := string(buf[:n])
			c.mu.Lock()
			c.script.WriteString(text)
			c.notifyLocked()
			c.mu.Unlock()

			if c.cfg.OnScript != nil {
				c.cfg.OnScript(c, text)
			}
		}
		if err != nil {
			return
		}
	}
}

func (c *Controller) serveRTDE(conn net.Conn) {
	s := &session{conn: conn}

	c.mu.Lock()
	c.conns[conn] = s
	c.rtdeConns++
	c.notifyLocked()
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(c.ctx)
	defer func() {
		cancel()
		c.mu.Lock()
		delete(c.conns, conn)
		c.mu.Unlock()
		_ = conn.Close()
	}()

	go c.streamData(ctx, s)

	var assembler rtde.FrameAssembler
	buf := make([]byte, 16*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, f := range assembler.Feed(buf[:n]) {
				c.handleFrame(s, f)
			}
		}
		if err != nil {
			return
		}
	}
}

func (c *Controller) handleFrame(s *session, f rtde.Frame) {
	c.mu.Lock()
	if f.Cmd == rtde.CmdDataPackage {
		c.inputs = append(c.inputs, f.Payload)
	} else {
		c.commands = append(c.commands, f.Cmd)
	}
	c.notifyLocked()
	c.mu.Unlock()

	if d := c.cfg.Delays[f.Cmd]; d > 0 {
		select {
		case <-time.After(d):
		case <-c.ctx.Done():
			return
		}
	}

	var reply []byte
	switch f.Cmd {
	case rtde.CmdRequestProtocolVersion:
		v, err := rtde.DecodeProtocolVersionRequest(f.Payload)
		reply = rtde.EncodeBoolAck(err == nil && slices.Contains(c.cfg.Protocols, v))

	case rtde.CmdGetURControlVersion:
		reply = c.cfg.Version.Encode()
		if c.cfg.ShortVersion {
			reply = reply[:12]
		}

	case rtde.CmdSetupOutputs:
		names := rtde.DecodeSetupRequest(f.Payload)
		ack := rtde.SetupAck{Types: c.resolve(names, c.cfg.Outputs, nil)}
		r, err := ack.Recipe(names)
		if err != nil {
			r = nil
		}
		c.mu.Lock()
		s.outRecipe = r
		c.mu.Unlock()
		reply = ack.Encode()

	case rtde.CmdSetupInputs:
		names := rtde.DecodeSetupRequest(f.Payload)
		c.mu.Lock()
		id := c.nextID
		c.nextID++
		c.mu.Unlock()
		reply = rtde.SetupAck{ID: id, HasID: true, Types: c.resolve(names, c.cfg.Inputs, c.cfg.InUse)}.Encode()

	case rtde.CmdStart:
		c.mu.Lock()
		s.started = !c.cfg.RefuseStart
		c.mu.Unlock()
		reply = rtde.EncodeBoolAck(!c.cfg.RefuseStart)

	case rtde.CmdPause:
		c.mu.Lock()
		s.started = false
		c.mu.Unlock()
		reply = rtde.EncodeBoolAck(true)

	default:
		return
	}

	if err := s.send(f.Cmd, reply); err != nil {
		c.logger.Debug("reply failed", "cmd", f.Cmd, "error", err)
	}
}

func (c *Controller) resolve(names []string, known map[string]string, inUse []string) []string {
	types := make([]string, len(names))
	for i, name := range names {
		switch t, ok := known[name]; {
		case !ok:
			types[i] = "NOT_FOUND"
		case slices.Contains(inUse, name):
			types[i] = "IN_USE"
		default:
			types[i] = t
		}
	}

	return types
}

func (c *Controller) streamData(ctx context.Context, s *session) {
	ticker := time.NewTicker(c.cfg.DataInterval)
	defer ticker.Stop()

	begin := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		payload, ok := c.buildPackage(s, time.Since(begin).Seconds())
		if !ok {
			continue
		}
		if err := s.send(rtde.CmdDataPackage, payload); err != nil {
			return
		}
	}
}

func (c *Controller) buildPackage(s *session, ts float64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !s.started || s.outRecipe == nil {
		return nil, false
	}

	r := s.outRecipe
	rec := r.NewRecord()
	types := r.Types()
	for i, name := range r.Names() {
		v, ok := c.outputs[name]
		if name == "timestamp" && !ok {
			v, ok = ts, true
		}
		if ok && rec.Set(name, v) == nil {
			continue
		}
		_ = rec.Set(name, zeroOf(types[i]))
	}

	payload, err := r.Pack(rec)
	if err != nil {
		c.logger.Debug("pack failed", "error", err)
		return nil, false
	}

	return payload, true
}

func (s *session) send(cmd rtde.Command, payload []byte) error {
	frame, err := rtde.EncodeFrame(cmd, payload)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_, err = s.conn.Write(frame)

	return err
}

func zeroOf(t rtde.FieldType) any {
	if t.IsVector() {
		return make([]float64, t.Slots())
	}

	return 0
}
