package rtdeconn

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/arloliu/go-rtde/logger"
	"github.com/arloliu/go-rtde/rtde"
)

const (
	// DefaultPort is the RTDE port of UR controllers.
	DefaultPort = 30004

	// DefaultTimeout is the default reply and I/O timeout.
	DefaultTimeout = 1 * time.Second
	// MinTimeout is the minimum reply and I/O timeout.
	MinTimeout = 10 * time.Millisecond
	// MaxTimeout is the maximum reply and I/O timeout.
	MaxTimeout = 30 * time.Second

	// DefaultReconnectTimeout is the default reconnect window.
	DefaultReconnectTimeout = 2 * time.Second
	// MinReconnectTimeout is the minimum reconnect window.
	MinReconnectTimeout = 50 * time.Millisecond
	// MaxReconnectTimeout is the maximum reconnect window.
	MaxReconnectTimeout = 10 * time.Minute

	// DefaultReconnectDelay is the default pause between reconnect attempts.
	DefaultReconnectDelay = 100 * time.Millisecond
	// MaxReconnectDelay is the maximum pause between reconnect attempts.
	MaxReconnectDelay = 30 * time.Second

	// ProtocolVersion is the RTDE protocol version requested from the controller.
	// Only the version 1 payload layout is implemented.
	ProtocolVersion uint16 = 1
)

// SessionConfig represents the configuration parameters of an RTDE session.
//
// It is immutable once created.
type SessionConfig struct {
	// host specifies the host of the robot controller.
	host string
	// port specifies the RTDE port.
	// Defaults to 30004.
	port int

	// timeout bounds the dial, every write, every request/reply exchange, and the
	// socket readiness wait while started.
	// Defaults to 1 second.
	timeout time.Duration

	// reconnectTimeout bounds the initial connect and every recovery, measured from the
	// last successful receive.
	// Defaults to 2 seconds.
	reconnectTimeout time.Duration
	// reconnectDelay is the pause between connection attempts.
	// Defaults to 100 milliseconds.
	reconnectDelay time.Duration

	// minControllerVersion is the oldest accepted controller firmware.
	// Defaults to rtde.MinControllerVersion (3.2.19171).
	minControllerVersion rtde.ControllerVersion

	// outputs and inputs are the default recipe descriptions.
	outputs []rtde.FieldDesc
	inputs  []rtde.FieldDesc

	logger logger.Logger
}

// NewSessionConfig creates a session configuration for the controller at host, with
// default values adjusted by the given options.
//
// Returns the configuration and an error if any option is invalid.
func NewSessionConfig(host string, opts ...ConnOption) (*SessionConfig, error) {
	cfg := &SessionConfig{
		port:                 DefaultPort,
		timeout:              DefaultTimeout,
		reconnectTimeout:     DefaultReconnectTimeout,
		reconnectDelay:       DefaultReconnectDelay,
		minControllerVersion: rtde.MinControllerVersion,
		outputs:              DefaultOutputFields(),
		inputs:               DefaultInputFields(),
		logger:               logger.GetLogger(),
	}

	if err := withHost(host).apply(cfg); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Host returns the controller host.
func (cfg *SessionConfig) Host() string { return cfg.host }

// Port returns the RTDE port.
func (cfg *SessionConfig) Port() int { return cfg.port }

// Timeout returns the reply and I/O timeout.
func (cfg *SessionConfig) Timeout() time.Duration { return cfg.timeout }

// ReconnectTimeout returns the reconnect window.
func (cfg *SessionConfig) ReconnectTimeout() time.Duration { return cfg.reconnectTimeout }

// ReconnectDelay returns the pause between connection attempts.
func (cfg *SessionConfig) ReconnectDelay() time.Duration { return cfg.reconnectDelay }

// MinControllerVersion returns the oldest accepted controller firmware.
func (cfg *SessionConfig) MinControllerVersion() rtde.ControllerVersion {
	return cfg.minControllerVersion
}

// OutputFields returns a copy of the default output recipe description.
func (cfg *SessionConfig) OutputFields() []rtde.FieldDesc { return slices.Clone(cfg.outputs) }

// InputFields returns a copy of the default input recipe description.
func (cfg *SessionConfig) InputFields() []rtde.FieldDesc { return slices.Clone(cfg.inputs) }

// Logger returns the logger.
func (cfg *SessionConfig) Logger() logger.Logger { return cfg.logger }

// ConnOption represents a functional option for configuring a SessionConfig.
type ConnOption interface {
	apply(*SessionConfig) error
}

type connOptFunc struct {
	name      string
	applyFunc func(*SessionConfig) error
}

func (c *connOptFunc) apply(cfg *SessionConfig) error {
	if cfg == nil {
		return ErrSessionConfigNil
	}

	return c.applyFunc(cfg)
}

func newConnOptFunc(name string, f func(*SessionConfig) error) *connOptFunc {
	return &connOptFunc{name: name, applyFunc: f}
}

// withHost validates and sets the controller host: an IP address or a resolvable name.
func withHost(host string) ConnOption {
	return newConnOptFunc("withHost", func(cfg *SessionConfig) error {
		if ip := net.ParseIP(host); ip != nil {
			cfg.host = host
			return nil
		}

		host = strings.TrimSuffix(strings.TrimPrefix(host, "."), ".")
		if host == "" {
			return errors.New("empty host")
		}
		if _, err := net.LookupHost(host); err != nil {
			return fmt.Errorf("invalid host %q: %w", host, err)
		}
		cfg.host = host

		return nil
	})
}

// WithPort sets the RTDE port. The port should be in range [1, 65535].
//
// The default port is 30004.
func WithPort(port int) ConnOption {
	return newConnOptFunc("WithPort", func(cfg *SessionConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port out of range [1, 65535]")
		}
		cfg.port = port

		return nil
	})
}

// WithTimeout sets the reply and I/O timeout. It should be in range [10ms, 30s].
//
// While the session is started, a silent socket for longer than this timeout is treated
// as a lost connection.
//
// The default value is 1 second.
func WithTimeout(d time.Duration) ConnOption {
	return newConnOptFunc("WithTimeout", func(cfg *SessionConfig) error {
		if d < MinTimeout || d > MaxTimeout {
			return fmt.Errorf("timeout out of range [%v, %v]", MinTimeout, MaxTimeout)
		}
		cfg.timeout = d

		return nil
	})
}

// WithReconnectTimeout sets the reconnect window. It should be in range [50ms, 10m].
//
// Open gives up after this window, and a running session that cannot reconnect within
// this window after its last successful receive fails with ErrReconnectTimeout.
//
// The default value is 2 seconds.
func WithReconnectTimeout(d time.Duration) ConnOption {
	return newConnOptFunc("WithReconnectTimeout", func(cfg *SessionConfig) error {
		if d < MinReconnectTimeout || d > MaxReconnectTimeout {
			return fmt.Errorf("reconnect timeout out of range [%v, %v]", MinReconnectTimeout, MaxReconnectTimeout)
		}
		cfg.reconnectTimeout = d

		return nil
	})
}

// WithReconnectDelay sets the pause between connection attempts. It should be in range [0, 30s].
//
// The default value is 100 milliseconds.
func WithReconnectDelay(d time.Duration) ConnOption {
	return newConnOptFunc("WithReconnectDelay", func(cfg *SessionConfig) error {
		if d < 0 || d > MaxReconnectDelay {
			return fmt.Errorf("reconnect delay out of range [0, %v]", MaxReconnectDelay)
		}
		cfg.reconnectDelay = d

		return nil
	})
}

// WithMinControllerVersion sets the oldest accepted controller firmware.
//
// The default value is 3.2.19171.
func WithMinControllerVersion(v rtde.ControllerVersion) ConnOption {
	return newConnOptFunc("WithMinControllerVersion", func(cfg *SessionConfig) error {
		cfg.minControllerVersion = v
		return nil
	})
}

// WithOutputFields sets the default output recipe description.
// Names must be non-empty and unique, and any type given must be a catalog type.
//
// The default value is DefaultOutputFields().
func WithOutputFields(fields []rtde.FieldDesc) ConnOption {
	return newConnOptFunc("WithOutputFields", func(cfg *SessionConfig) error {
		if err := validateFields(fields); err != nil {
			return err
		}
		cfg.outputs = slices.Clone(fields)

		return nil
	})
}

// WithInputFields sets the default input recipe description.
// Names must be non-empty and unique, and any type given must be a catalog type.
//
// The default value is DefaultInputFields().
func WithInputFields(fields []rtde.FieldDesc) ConnOption {
	return newConnOptFunc("WithInputFields", func(cfg *SessionConfig) error {
		if err := validateFields(fields); err != nil {
			return err
		}
		cfg.inputs = slices.Clone(fields)

		return nil
	})
}

// WithLogger sets the logger. A nil logger is ignored.
//
// The default logger is the package default logger.
func WithLogger(l logger.Logger) ConnOption {
	return newConnOptFunc("WithLogger", func(cfg *SessionConfig) error {
		if l != nil {
			cfg.logger = l
		}

		return nil
	})
}

func validateFields(fields []rtde.FieldDesc) error {
	if len(fields) == 0 {
		return errors.New("empty field list")
	}

	seen := make(map[string]struct{}, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return fmt.Errorf("%w: position %d", rtde.ErrEmptyFieldName, i)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%w: %q", rtde.ErrDuplicateField, f.Name)
		}
		seen[f.Name] = struct{}{}

		if f.Type == "" {
			continue
		}
		t, err := rtde.ParseFieldType(f.Type)
		if err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
		if f.Init != nil {
			if _, err := rtde.ValueOf(t, f.Init); err != nil {
				return fmt.Errorf("field %q init: %w", f.Name, err)
			}
		}
	}

	return nil
}
