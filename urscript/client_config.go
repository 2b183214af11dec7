package urscript

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/arloliu/go-rtde/logger"
)

const (
	// DefaultPort is the secondary/real-time script port of UR controllers.
	DefaultPort = 30003

	// DefaultTimeout is the default dial and write timeout.
	DefaultTimeout = 1 * time.Second

	// DefaultReconnectDelay is the pause before the single connect retry.
	DefaultReconnectDelay = 500 * time.Millisecond

	// DefaultPollInterval is the period at which the monitor reads the status registers.
	DefaultPollInterval = 50 * time.Millisecond

	// DefaultMinStartTimeout is the shortest time a program is given to set its start
	// register.
	DefaultMinStartTimeout = 500 * time.Millisecond

	// DefaultStartTimeoutPerByte extends the start budget of long programs, which take
	// the controller longer to compile.
	DefaultStartTimeoutPerByte = 1 * time.Millisecond

	// DefaultIdlePollLimit is the number of consecutive polls a started program may report
	// not running before it is considered failed.
	DefaultIdlePollLimit = 10
)

// ClientConfig represents the configuration parameters of a script Client.
type ClientConfig struct {
	// host specifies the host of the robot controller.
	host string
	// port specifies the script port.
	// Defaults to 30003.
	port int

	// timeout bounds the dial and every write.
	// Defaults to 1 second.
	timeout time.Duration
	// reconnectDelay is the pause before the connect retry.
	// Defaults to 500 milliseconds.
	reconnectDelay time.Duration

	// pollInterval is the monitor polling period.
	// Defaults to 50 milliseconds.
	pollInterval time.Duration
	// minStartTimeout and startTimeoutPerByte define the start budget of a program:
	// max(minStartTimeout, len(program) * startTimeoutPerByte).
	minStartTimeout     time.Duration
	startTimeoutPerByte time.Duration
	// idlePollLimit is the number of consecutive polls a started program may report not
	// running.
	// Defaults to 10.
	idlePollLimit int

	instrumenter Instrumenter
	logger       logger.Logger
}

// NewClientConfig creates a script client configuration for the controller at host, with
// default values adjusted by the given options.
func NewClientConfig(host string, opts ...ClientOption) (*ClientConfig, error) {
	if host == "" {
		return nil, errors.New("empty host")
	}
	if net.ParseIP(host) == nil {
		if _, err := net.LookupHost(host); err != nil {
			return nil, fmt.Errorf("invalid host %q: %w", host, err)
		}
	}

	cfg := &ClientConfig{
		host:                host,
		port:                DefaultPort,
		timeout:             DefaultTimeout,
		reconnectDelay:      DefaultReconnectDelay,
		pollInterval:        DefaultPollInterval,
		minStartTimeout:     DefaultMinStartTimeout,
		startTimeoutPerByte: DefaultStartTimeoutPerByte,
		idlePollLimit:       DefaultIdlePollLimit,
		instrumenter:        TokenInstrumenter{},
		logger:              logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Host returns the controller host.
func (cfg *ClientConfig) Host() string { return cfg.host }

// Port returns the script port.
func (cfg *ClientConfig) Port() int { return cfg.port }

// StartTimeout returns the start budget of a program of n bytes.
func (cfg *ClientConfig) StartTimeout(n int) time.Duration {
	return max(cfg.minStartTimeout, time.Duration(n)*cfg.startTimeoutPerByte)
}

// ClientOption represents a functional option for configuring a ClientConfig.
type ClientOption interface {
	apply(*ClientConfig) error
}

type clientOptFunc func(*ClientConfig) error

func (f clientOptFunc) apply(cfg *ClientConfig) error {
	if cfg == nil {
		return ErrClientConfigNil
	}

	return f(cfg)
}

// WithPort sets the script port. The port should be in range [1, 65535].
//
// The default port is 30003. Port 30002 (secondary client) accepts the same programs.
func WithPort(port int) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port out of range [1, 65535]")
		}
		cfg.port = port

		return nil
	})
}

// WithTimeout sets the dial and write timeout. It should be in range [10ms, 30s].
//
// The default value is 1 second.
func WithTimeout(d time.Duration) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if d < 10*time.Millisecond || d > 30*time.Second {
			return errors.New("timeout out of range [10ms, 30s]")
		}
		cfg.timeout = d

		return nil
	})
}

// WithReconnectDelay sets the pause before the connect retry. It should be in range [0, 30s].
//
// The default value is 500 milliseconds.
func WithReconnectDelay(d time.Duration) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if d < 0 || d > 30*time.Second {
			return errors.New("reconnect delay out of range [0, 30s]")
		}
		cfg.reconnectDelay = d

		return nil
	})
}

// WithPollInterval sets the monitor polling period. It should be in range [1ms, 1s].
//
// The default value is 50 milliseconds.
func WithPollInterval(d time.Duration) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if d < time.Millisecond || d > time.Second {
			return errors.New("poll interval out of range [1ms, 1s]")
		}
		cfg.pollInterval = d

		return nil
	})
}

// WithStartTimeout sets the start budget of a program: max(minimum, len(program) * perByte).
// The minimum should be in range [10ms, 10m] and perByte must not be negative.
//
// The default values are 500 milliseconds and 1 millisecond per byte.
func WithStartTimeout(minimum time.Duration, perByte time.Duration) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if minimum < 10*time.Millisecond || minimum > 10*time.Minute {
			return errors.New("start timeout out of range [10ms, 10m0s]")
		}
		if perByte < 0 {
			return errors.New("negative start timeout per byte")
		}
		cfg.minStartTimeout = minimum
		cfg.startTimeoutPerByte = perByte

		return nil
	})
}

// WithIdlePollLimit sets how many consecutive polls a started program may report not
// running before it is failed. It should be in range [1, 1000].
//
// The default value is 10.
func WithIdlePollLimit(n int) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if n < 1 || n > 1000 {
			return errors.New("idle poll limit out of range [1, 1000]")
		}
		cfg.idlePollLimit = n

		return nil
	})
}

// WithInstrumenter replaces the TokenInstrumenter. A nil instrumenter is ignored.
func WithInstrumenter(in Instrumenter) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if in != nil {
			cfg.instrumenter = in
		}

		return nil
	})
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l logger.Logger) ClientOption {
	return clientOptFunc(func(cfg *ClientConfig) error {
		if l != nil {
			cfg.logger = l
		}

		return nil
	})
}
