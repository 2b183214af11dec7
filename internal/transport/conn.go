// Package transport owns the TCP sockets to the robot controller.
//
// A Conn carries either RTDE frames (SendFrame, ReceiveFrames) or script text
// (WriteText). Every blocking call is bounded by the configured I/O timeout. Any I/O
// failure closes the socket and returns an error wrapping ErrConnectionLost; the
// caller reconnects by dialing a new Conn.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-rtde/logger"
	"github.com/arloliu/go-rtde/rtde"
)

// ErrConnectionLost indicates that the socket failed and was closed.
var ErrConnectionLost = errors.New("transport: connection lost")

// Conn is a controller connection.
//
// SendFrame and WriteText may be called concurrently; ReceiveFrames must only be
// called by a single reader goroutine.
type Conn struct {
	conn   net.Conn
	opts   options
	logger logger.Logger

	writeMu sync.Mutex
	closed  atomic.Bool

	assembler rtde.FrameAssembler
	readBuf   []byte
}

// Dial connects to host:port with TCP_NODELAY and SO_REUSEADDR set. The connect is
// bounded by the dial timeout and by ctx.
func Dial(ctx context.Context, host string, port int, opts ...Option) (*Conn, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	address := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := &net.Dialer{
		KeepAlive: 30 * time.Second,
		Control:   controlReuseAddr,
	}

	dialCtx, cancel := context.WithTimeout(ctx, o.dialTimeout)
	defer cancel()

	nc, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", address, err)
	}

	if tc, ok := nc.(*net.TCPConn); ok {
		if err := tc.SetNoDelay(true); err != nil {
			_ = nc.Close()
			return nil, fmt.Errorf("transport: set no-delay: %w", err)
		}
	}

	o.logger.Debug("connected to controller",
		"method", "Dial",
		"local_addr", nc.LocalAddr().String(),
		"remote_addr", nc.RemoteAddr().String(),
	)

	return newConn(nc, o), nil
}

// NewConn wraps an established connection.
func NewConn(nc net.Conn, opts ...Option) (*Conn, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	return newConn(nc, o), nil
}

func newConn(nc net.Conn, o options) *Conn {
	return &Conn{
		conn:    nc,
		opts:    o,
		logger:  o.logger,
		readBuf: make([]byte, o.readBufSize),
	}
}

// SendFrame encodes and writes one RTDE frame.
func (c *Conn) SendFrame(cmd rtde.Command, payload []byte) error {
	frame, err := rtde.EncodeFrame(cmd, payload)
	if err != nil {
		return err
	}

	return c.write(frame)
}

// WriteText writes text to the script channel, appending a newline when missing.
func (c *Conn) WriteText(text string) error {
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}

	return c.write([]byte(text))
}

func (c *Conn) write(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("%w: closed", ErrConnectionLost)
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.ioTimeout)); err != nil {
		return c.fail("write", err)
	}

	if _, err := c.conn.Write(b); err != nil {
		return c.fail("write", err)
	}

	return nil
}

// ReceiveFrames reads until at least one complete frame is available and returns all
// frames completed by the data read, in arrival order.
//
// The whole call is bounded by the I/O timeout. A timeout, a zero-length read or EOF
// is treated as disconnection.
func (c *Conn) ReceiveFrames() ([]rtde.Frame, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("%w: closed", ErrConnectionLost)
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.ioTimeout)); err != nil {
		return nil, c.fail("receive", err)
	}

	for {
		n, err := c.conn.Read(c.readBuf)
		if n > 0 {
			if frames := c.assembler.Feed(c.readBuf[:n]); len(frames) > 0 {
				return frames, nil
			}
		}

		if err != nil {
			return nil, c.fail("receive", err)
		}
		if n == 0 {
			return nil, c.fail("receive", errors.New("zero-length read"))
		}
	}
}

// PollFrames is ReceiveFrames for idle links: when no complete frame arrives within
// timeout it returns no frames and a nil error, leaving the socket open. EOF and other
// I/O errors still close the socket.
func (c *Conn) PollFrames(timeout time.Duration) ([]rtde.Frame, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("%w: closed", ErrConnectionLost)
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, c.fail("poll", err)
	}

	for {
		n, err := c.conn.Read(c.readBuf)
		if n > 0 {
			if frames := c.assembler.Feed(c.readBuf[:n]); len(frames) > 0 {
				return frames, nil
			}
		}

		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, nil
		}
		if err != nil {
			return nil, c.fail("poll", err)
		}
		if n == 0 {
			return nil, c.fail("poll", errors.New("zero-length read"))
		}
	}
}

// Close closes the socket. It is safe to call more than once.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	return c.conn.Close()
}

// IsClosed reports whether the socket has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// RemoteAddr returns the controller address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Conn) fail(op string, err error) error {
	if !c.closed.Swap(true) {
		_ = c.conn.Close()
		c.logger.Debug("connection closed on I/O error", "method", op, "error", err)
	}

	return fmt.Errorf("%w: %s: %w", ErrConnectionLost, op, err)
}
