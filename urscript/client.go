package urscript

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-rtde/internal/pool"
	"github.com/arloliu/go-rtde/internal/transport"
	"github.com/arloliu/go-rtde/logger"
	"github.com/arloliu/go-rtde/robotstate"
	"github.com/arloliu/go-rtde/rtde"
)

// Client writes programs and commands to the controller's script port.
//
// The script channel state and the program running/error flags live in the shared
// robotstate.Store. All methods are safe for concurrent use.
type Client struct {
	cfg    *ClientConfig
	store  *robotstate.Store
	logger logger.Logger

	connMu sync.Mutex
	conn   *transport.Conn

	// monMu serializes program submission and guards mon.
	monMu sync.Mutex
	mon   *monitor

	closed atomic.Bool
}

// NewClient creates a script client. The connection is opened by the first send.
func NewClient(cfg *ClientConfig, store *robotstate.Store) (*Client, error) {
	if cfg == nil {
		return nil, ErrClientConfigNil
	}
	if store == nil {
		return nil, ErrStoreNil
	}

	return &Client{
		cfg:    cfg,
		store:  store,
		logger: cfg.logger.With("component", "urscript", "remote", fmt.Sprintf("%s:%d", cfg.host, cfg.port)),
	}, nil
}

// IsConnected reports whether the script socket is open.
func (c *Client) IsConnected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	return c.conn != nil && !c.conn.IsClosed()
}

// SendProgram instruments program and sends it, then monitors it until it finishes,
// fails or is preempted; Wait blocks until then.
//
// A program still being monitored is preempted first: its monitor is canceled and has
// reset the status registers before the new program is sent. The running flag is set
// and the error flag cleared before transmission.
func (c *Client) SendProgram(ctx context.Context, program string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	if err := c.connect(ctx); err != nil {
		return err
	}

	if c.store.StopRequested() {
		return ErrStopRequested
	}

	instrumented, err := c.cfg.instrumenter.Instrument(program)
	if err != nil {
		return err
	}

	c.monMu.Lock()
	defer c.monMu.Unlock()

	if c.closed.Load() {
		return ErrClientClosed
	}

	if c.mon != nil {
		if c.store.ProgramRunning() {
			c.logger.Info("preempt running program", "method", "SendProgram")
		}
		c.mon.stop()
	}
	c.awaitRegistersCleared(ctx)

	c.store.SetProgramRunning(true)
	c.store.SetProgramError(false)

	if err := c.write(ctx, instrumented); err != nil {
		c.store.SetProgramRunning(false)
		return err
	}

	c.mon = c.startMonitor(len(program))

	return nil
}

// Send writes text to the script port without instrumentation or monitoring. It leaves
// the running and error flags untouched.
func (c *Client) Send(ctx context.Context, text string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	if err := c.connect(ctx); err != nil {
		return err
	}

	if c.store.StopRequested() {
		return ErrStopRequested
	}

	return c.write(ctx, text)
}

// Wait blocks until the monitor of the last program exits or ctx is done. It returns
// ErrProgramFailed when the program ended with the error flag set.
func (c *Client) Wait(ctx context.Context) error {
	c.monMu.Lock()
	mon := c.mon
	c.monMu.Unlock()

	if mon == nil {
		return nil
	}

	select {
	case <-mon.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if c.store.ProgramError() {
		return ErrProgramFailed
	}

	return nil
}

// Close stops the monitor, which resets the status registers, and closes the socket.
// It is safe to call more than once.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.monMu.Lock()
	if c.mon != nil {
		c.mon.stop()
	}
	c.monMu.Unlock()

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.store.SetScriptState(rtde.DisconnectedState)

	return nil
}

// connect opens the script socket when needed, retrying once after the reconnect delay.
func (c *Client) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil && !c.conn.IsClosed() {
		return nil
	}

	conn, err := c.dial(ctx)
	if err != nil {
		c.logger.Debug("connect failed, retrying", "method", "connect", "error", err)

		if err := pool.Sleep(ctx, c.cfg.reconnectDelay); err != nil {
			return err
		}
		if conn, err = c.dial(ctx); err != nil {
			c.store.SetScriptState(rtde.DisconnectedState)
			return err
		}
	}

	c.conn = conn
	c.store.SetScriptState(rtde.ConnectedState)

	return nil
}

func (c *Client) dial(ctx context.Context) (*transport.Conn, error) {
	return transport.Dial(ctx, c.cfg.host, c.cfg.port,
		transport.WithDialTimeout(c.cfg.timeout),
		transport.WithIOTimeout(c.cfg.timeout),
		transport.WithLogger(c.logger),
	)
}

// write sends text. A failed write marks the script channel as faulted, reconnects once
// and retries once.
func (c *Client) write(ctx context.Context, text string) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return err
	}

	err := c.conn.WriteText(text)
	if err == nil {
		c.store.SetScriptState(rtde.ConnectedState)
		return nil
	}

	c.logger.Warn("script write failed, reconnecting", "method", "write", "error", err)
	c.store.SetScriptState(rtde.ErrorState)
	_ = c.conn.Close()

	if err := c.connectLocked(ctx); err != nil {
		return err
	}

	if err := c.conn.WriteText(text); err != nil {
		return err
	}
	c.store.SetScriptState(rtde.ConnectedState)

	return nil
}

// awaitRegistersCleared waits, up to the minimum start budget, for the status registers
// of a previous program to read false, so a fresh monitor does not see stale bits.
func (c *Client) awaitRegistersCleared(ctx context.Context) {
	cleared := func() bool {
		regs := c.store.StatusRegisters()
		return !regs.Started && !regs.Finished
	}
	if cleared() {
		return
	}

	deadline := time.Now().Add(c.cfg.minStartTimeout)
	for !cleared() {
		if time.Now().After(deadline) {
			c.logger.Warn("status registers still set", "method", "awaitRegistersCleared", "registers", c.store.StatusRegisters())
			return
		}
		if err := pool.Sleep(ctx, c.cfg.pollInterval); err != nil {
			return
		}
	}
}
