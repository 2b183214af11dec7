package transport

import (
	"fmt"
	"time"

	"github.com/arloliu/go-rtde/logger"
)

const (
	// DefaultDialTimeout bounds the TCP connect.
	DefaultDialTimeout = 1 * time.Second
	// MinDialTimeout is the minimum dial timeout.
	MinDialTimeout = 10 * time.Millisecond
	// MaxDialTimeout is the maximum dial timeout.
	MaxDialTimeout = 60 * time.Second

	// DefaultIOTimeout bounds every write and every ReceiveFrames call.
	DefaultIOTimeout = 1 * time.Second
	// MinIOTimeout is the minimum I/O timeout.
	MinIOTimeout = 1 * time.Millisecond
	// MaxIOTimeout is the maximum I/O timeout.
	MaxIOTimeout = 60 * time.Second

	// DefaultReadBufferSize is the size of the receive buffer.
	DefaultReadBufferSize = 16 * 1024
)

type options struct {
	dialTimeout time.Duration
	ioTimeout   time.Duration
	readBufSize int
	logger      logger.Logger
}

func defaultOptions() options {
	return options{
		dialTimeout: DefaultDialTimeout,
		ioTimeout:   DefaultIOTimeout,
		readBufSize: DefaultReadBufferSize,
		logger:      logger.GetLogger(),
	}
}

// Option configures a Conn.
type Option interface {
	apply(*options) error
}

type optFunc func(*options) error

func (f optFunc) apply(o *options) error {
	return f(o)
}

// WithDialTimeout sets the TCP connect timeout.
//
// Default: DefaultDialTimeout.
func WithDialTimeout(d time.Duration) Option {
	return optFunc(func(o *options) error {
		if d < MinDialTimeout || d > MaxDialTimeout {
			return fmt.Errorf("transport: dial timeout out of range [%v, %v]", MinDialTimeout, MaxDialTimeout)
		}
		o.dialTimeout = d

		return nil
	})
}

// WithIOTimeout sets the write deadline and the readiness timeout of ReceiveFrames.
//
// Default: DefaultIOTimeout.
func WithIOTimeout(d time.Duration) Option {
	return optFunc(func(o *options) error {
		if d < MinIOTimeout || d > MaxIOTimeout {
			return fmt.Errorf("transport: io timeout out of range [%v, %v]", MinIOTimeout, MaxIOTimeout)
		}
		o.ioTimeout = d

		return nil
	})
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(o *options) error {
		if l != nil {
			o.logger = l
		}

		return nil
	})
}

func buildOptions(opts []Option) (options, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt.apply(&o); err != nil {
			return o, err
		}
	}

	return o, nil
}
