package urscript

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type passthroughInstrumenter struct{}

func (passthroughInstrumenter) Instrument(program string) (string, error) { return program, nil }

func TestNewClientConfig(t *testing.T) {
	require := require.New(t)

	t.Run("Default Configuration", func(t *testing.T) {
		cfg, err := NewClientConfig("127.0.0.1")
		require.NoError(err)
		require.Equal("127.0.0.1", cfg.Host())
		require.Equal(DefaultPort, cfg.Port())
		require.Equal(DefaultPollInterval, cfg.pollInterval)
		require.Equal(DefaultIdlePollLimit, cfg.idlePollLimit)
		require.IsType(TokenInstrumenter{}, cfg.instrumenter)

		// max(500ms, n * 1ms)
		require.Equal(500*time.Millisecond, cfg.StartTimeout(100))
		require.Equal(2*time.Second, cfg.StartTimeout(2000))
	})

	t.Run("Valid Configuration", func(t *testing.T) {
		cfg, err := NewClientConfig("127.0.0.1",
			WithPort(30002),
			WithTimeout(100*time.Millisecond),
			WithReconnectDelay(0),
			WithPollInterval(10*time.Millisecond),
			WithStartTimeout(time.Second, 0),
			WithIdlePollLimit(3),
			WithInstrumenter(passthroughInstrumenter{}),
			WithInstrumenter(nil),
			WithLogger(nil),
		)
		require.NoError(err)
		require.Equal(30002, cfg.Port())
		require.Equal(100*time.Millisecond, cfg.timeout)
		require.Equal(time.Duration(0), cfg.reconnectDelay)
		require.Equal(3, cfg.idlePollLimit)
		require.Equal(time.Second, cfg.StartTimeout(1_000_000))
		require.IsType(passthroughInstrumenter{}, cfg.instrumenter)
		require.NotNil(cfg.logger)
	})

	t.Run("Invalid Options", func(t *testing.T) {
		_, err := NewClientConfig("")
		require.EqualError(err, "empty host")

		_, err = NewClientConfig("127.0.0.1", WithPort(0))
		require.EqualError(err, "port out of range [1, 65535]")

		_, err = NewClientConfig("127.0.0.1", WithTimeout(0))
		require.EqualError(err, "timeout out of range [10ms, 30s]")

		_, err = NewClientConfig("127.0.0.1", WithPollInterval(2*time.Second))
		require.EqualError(err, "poll interval out of range [1ms, 1s]")

		_, err = NewClientConfig("127.0.0.1", WithStartTimeout(time.Millisecond, 0))
		require.EqualError(err, "start timeout out of range [10ms, 10m0s]")

		_, err = NewClientConfig("127.0.0.1", WithStartTimeout(time.Second, -1))
		require.EqualError(err, "negative start timeout per byte")

		_, err = NewClientConfig("127.0.0.1", WithIdlePollLimit(0))
		require.EqualError(err, "idle poll limit out of range [1, 1000]")

		require.ErrorIs(WithPort(1).apply(nil), ErrClientConfigNil)
	})
}
