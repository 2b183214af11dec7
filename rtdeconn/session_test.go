package rtdeconn

import (
	"context"
	"encoding/binary"
	"math"
	"net"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/arloliu/go-rtde/internal/simulator"
	"github.com/arloliu/go-rtde/logger"
	"github.com/arloliu/go-rtde/robotstate"
	"github.com/arloliu/go-rtde/rtde"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testIP = "127.0.0.1"

func TestMain(m *testing.M) {
	level, ok := logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	if !ok {
		level = logger.InfoLevel
	}
	logger.SetLevel(level)

	os.Exit(m.Run())
}

var handshake = []rtde.Command{
	rtde.CmdGetURControlVersion,
	rtde.CmdRequestProtocolVersion,
	rtde.CmdSetupOutputs,
	rtde.CmdSetupInputs,
	rtde.CmdStart,
}

func newTestSimulator(t *testing.T, cfg simulator.Config) *simulator.Controller {
	t.Helper()

	sim, err := simulator.New(cfg)
	require.NoError(t, err)
	t.Cleanup(sim.Close)

	return sim
}

func newTestSession(t *testing.T, port int, opts ...ConnOption) (*Session, *robotstate.Store) {
	t.Helper()

	opts = append([]ConnOption{
		WithPort(port),
		WithTimeout(500 * time.Millisecond),
		WithReconnectDelay(20 * time.Millisecond),
	}, opts...)

	cfg, err := NewSessionConfig(testIP, opts...)
	require.NoError(t, err)

	store := robotstate.New()
	s, err := NewSession(cfg, store)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s, store
}

func openTestSession(t *testing.T, port int, opts ...ConnOption) (*Session, *robotstate.Store) {
	t.Helper()

	s, store := newTestSession(t, port, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Open(ctx))

	return s, store
}

func closedPort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", net.JoinHostPort(testIP, "0"))
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	return port
}

func TestNewSession(t *testing.T) {
	require := require.New(t)

	cfg, err := NewSessionConfig(testIP)
	require.NoError(err)

	_, err = NewSession(nil, robotstate.New())
	require.ErrorIs(err, ErrSessionConfigNil)

	_, err = NewSession(cfg, nil)
	require.ErrorIs(err, ErrStoreNil)

	s, err := NewSession(cfg, robotstate.New())
	require.NoError(err)
	require.Equal(rtde.DisconnectedState, s.State())
	require.False(s.IsConnected())
	require.Nil(s.OutputRecipe())

	_, ok := s.ControllerVersion()
	require.False(ok)

	require.NoError(s.PushOutput())
	require.ErrorIs(s.SetField("x", 1), ErrNoInputRecipe)
	require.ErrorIs(s.Start(context.Background()), ErrNotConnected)

	require.NoError(s.Close())
	require.NoError(s.Close())
	require.ErrorIs(s.Open(context.Background()), ErrSessionClosed)

	select {
	case <-s.Done():
	default:
		require.Fail("done channel not closed")
	}
	require.NoError(s.Err())
}

func TestSession_Open(t *testing.T) {
	require := require.New(t)

	sim := newTestSimulator(t, simulator.Config{Version: rtde.ControllerVersion{Major: 5, Minor: 9, Bugfix: 0, Build: 1234}})
	s, store := openTestSession(t, sim.RTDEPort())

	require.Equal(rtde.StartedState, s.State())
	require.True(s.IsConnected())
	require.True(s.IsRunning())
	require.Equal(rtde.StartedState, store.RTDEState())
	require.Equal(handshake, sim.Commands())

	version, ok := s.ControllerVersion()
	require.True(ok)
	require.Equal("5.9.0.1234", version.String())

	require.Equal(len(DefaultOutputFields()), s.OutputRecipe().Len())
	id, hasID := s.InputRecipe().ID()
	require.True(hasID)
	require.Equal(uint8(1), id)

	v, ok := s.InputValue("input_double_register_0")
	require.True(ok)
	require.Equal(0.0, v.Float())

	require.True(store.WaitForSample(context.Background(), 2*time.Second))
	_, ok = store.Telemetry("timestamp")
	require.True(ok)
	require.True(store.RobotStatus().PowerOn)
	require.Positive(s.Metrics().DataRecvCount.Load())

	require.ErrorIs(s.Open(context.Background()), ErrAlreadyOpened)
}

func TestSession_OpenShortVersion(t *testing.T) {
	require := require.New(t)

	sim := newTestSimulator(t, simulator.Config{ShortVersion: true})
	s, _ := openTestSession(t, sim.RTDEPort())

	version, ok := s.ControllerVersion()
	require.True(ok)
	require.Equal(rtde.ControllerVersion{Major: 5, Minor: 9}, version)
}

func TestSession_OpenRejected(t *testing.T) {
	t.Run("Unsupported Controller", func(t *testing.T) {
		require := require.New(t)

		sim := newTestSimulator(t, simulator.Config{Version: rtde.ControllerVersion{Major: 3, Minor: 2, Bugfix: 19000}})
		s, store := newTestSession(t, sim.RTDEPort())

		err := s.Open(context.Background())
		require.ErrorIs(err, rtde.ErrUnsupportedController)
		require.Equal(1, sim.Connections())
		require.Equal(rtde.DisconnectedState, s.State())
		require.False(store.StopRequested())
		require.False(store.ProgramError())
	})

	t.Run("Minimum Controller Raised", func(t *testing.T) {
		require := require.New(t)

		sim := newTestSimulator(t, simulator.Config{})
		s, _ := newTestSession(t, sim.RTDEPort(), WithMinControllerVersion(rtde.ControllerVersion{Major: 6}))

		require.ErrorIs(s.Open(context.Background()), rtde.ErrUnsupportedController)
	})

	t.Run("Protocol Refused", func(t *testing.T) {
		require := require.New(t)

		sim := newTestSimulator(t, simulator.Config{Protocols: []uint16{2}})
		s, _ := newTestSession(t, sim.RTDEPort())

		require.ErrorIs(s.Open(context.Background()), rtde.ErrProtocolVersion)
		require.Equal(1, sim.Connections())
	})

	t.Run("Start Refused", func(t *testing.T) {
		require := require.New(t)

		sim := newTestSimulator(t, simulator.Config{RefuseStart: true})
		s, _ := newTestSession(t, sim.RTDEPort(), WithReconnectTimeout(200*time.Millisecond))

		err := s.Open(context.Background())
		require.ErrorIs(err, ErrReconnectTimeout)
		require.ErrorIs(err, ErrStartRefused)
		require.Greater(sim.Connections(), 1)
	})

	t.Run("Unreachable", func(t *testing.T) {
		require := require.New(t)

		s, _ := newTestSession(t, closedPort(t), WithReconnectTimeout(200*time.Millisecond))

		begin := time.Now()
		err := s.Open(context.Background())
		require.ErrorIs(err, ErrReconnectTimeout)
		require.Less(time.Since(begin), 2*time.Second)
		require.Positive(s.Metrics().ConnRetryGauge.Load())
	})

	t.Run("Stop Requested", func(t *testing.T) {
		require := require.New(t)

		sim := newTestSimulator(t, simulator.Config{})
		s, store := newTestSession(t, sim.RTDEPort())
		store.RequestStop()

		require.ErrorIs(s.Open(context.Background()), ErrStopRequested)
		require.Equal(0, sim.Connections())
	})
}

func TestSession_PushOutput(t *testing.T) {
	require := require.New(t)

	sim := newTestSimulator(t, simulator.Config{
		Inputs: map[string]string{"x": "DOUBLE", "y": "DOUBLE"},
	})
	s, _ := openTestSession(t, sim.RTDEPort(),
		WithInputFields([]rtde.FieldDesc{{Name: "x", Type: "DOUBLE"}, {Name: "y", Type: "DOUBLE"}}),
	)

	require.ErrorIs(s.PushOutput(), rtde.ErrFieldUninitialized)

	require.ErrorIs(s.SetFields([]string{"x"}, []any{1.0, 2.0}), rtde.ErrLengthMismatch)
	require.ErrorIs(s.SetFields([]string{"x", "z"}, []any{1.0, 2.0}), rtde.ErrUnknownField)
	_, ok := s.InputValue("x")
	require.False(ok)

	require.NoError(s.SetFields([]string{"x", "y"}, []any{1.0, 2.0}))
	require.NoError(s.PushOutput())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(sim.WaitInput(ctx, 1))

	id, _ := s.InputRecipe().ID()
	expected := []byte{id}
	expected = binary.BigEndian.AppendUint64(expected, math.Float64bits(1.0))
	expected = binary.BigEndian.AppendUint64(expected, math.Float64bits(2.0))
	require.Equal(expected, sim.InputPackages()[0])
	require.Equal(uint64(1), s.Metrics().DataSendCount.Load())

	require.ErrorIs(s.SetField("z", 1.0), rtde.ErrUnknownField)
	require.NoError(s.SetField("x", 3))
	v, ok := s.InputValue("x")
	require.True(ok)
	require.Equal(3.0, v.Float())
}

func TestSession_PauseStart(t *testing.T) {
	require := require.New(t)

	sim := newTestSimulator(t, simulator.Config{})
	s, store := openTestSession(t, sim.RTDEPort())
	ctx := context.Background()

	outputs := []rtde.FieldDesc{{Name: "timestamp", Type: "DOUBLE"}, {Name: robotstate.RobotStatusBitsField}}

	require.ErrorIs(s.ConfigureOutputs(ctx, outputs), ErrSetupNotAllowed)
	require.ErrorIs(s.ConfigureInputs(ctx, nil), ErrSetupNotAllowed)

	require.NoError(s.Pause(ctx))
	require.Equal(rtde.PausedState, s.State())
	require.Equal(rtde.PausedState, store.RTDEState())
	require.NoError(s.Pause(ctx))

	// a paused session pushes nothing
	require.NoError(s.PushOutput())
	require.Equal(uint64(0), s.Metrics().DataSendCount.Load())

	require.NoError(s.ConfigureOutputs(ctx, outputs))
	require.Equal(2, s.OutputRecipe().Len())

	require.NoError(s.Start(ctx))
	require.Equal(rtde.StartedState, s.State())
	require.NoError(s.Start(ctx))

	seq := store.SampleCount()
	require.True(store.WaitForSample(ctx, 2*time.Second))
	require.Greater(store.SampleCount(), seq)
	require.Equal(2, store.LastRecord().Recipe().Len())

	// pause then start again without any setup in between
	require.NoError(s.Pause(ctx))
	require.NoError(s.Start(ctx))

	expected := append(slices.Clone(handshake),
		rtde.CmdPause, rtde.CmdSetupOutputs, rtde.CmdStart,
		rtde.CmdPause, rtde.CmdStart,
	)
	require.Equal(expected, sim.Commands())
	require.Equal(1, sim.Connections())
}

func TestSession_SetupErrors(t *testing.T) {
	require := require.New(t)

	sim := newTestSimulator(t, simulator.Config{InUse: []string{"input_int_register_5"}})
	s, _ := openTestSession(t, sim.RTDEPort())
	ctx := context.Background()

	require.NoError(s.Pause(ctx))
	prevOut := s.OutputRecipe()
	prevIn := s.InputRecipe()

	// rejected before any request is sent
	require.EqualError(s.ConfigureOutputs(ctx, []rtde.FieldDesc{}), "empty field list")
	require.Same(prevOut, s.OutputRecipe())
	require.ErrorIs(s.ConfigureInputs(ctx, []rtde.FieldDesc{{Name: "a"}, {Name: "a"}}), rtde.ErrDuplicateField)
	require.Same(prevIn, s.InputRecipe())

	// rejected after the controller saw the request
	err := s.ConfigureOutputs(ctx, []rtde.FieldDesc{{Name: "timestamp"}, {Name: "no_such_output"}})
	require.ErrorIs(err, rtde.ErrFieldNotFound)
	require.Nil(s.OutputRecipe())

	err = s.ConfigureOutputs(ctx, []rtde.FieldDesc{{Name: "timestamp", Type: "UINT64"}})
	require.ErrorIs(err, rtde.ErrTypeMismatch)
	require.Nil(s.OutputRecipe())

	err = s.ConfigureInputs(ctx, []rtde.FieldDesc{{Name: "input_int_register_5", Type: "INT32"}})
	require.ErrorIs(err, rtde.ErrFieldInUse)
	require.Nil(s.InputRecipe())
	_, ok := s.InputValue("input_double_register_0")
	require.False(ok)

	err = s.ConfigureInputs(ctx, []rtde.FieldDesc{{Name: "input_int_register_1", Type: "INT32", Init: 7}})
	require.NoError(err)
	v, ok := s.InputValue("input_int_register_1")
	require.True(ok)
	require.Equal(int64(7), v.Int())
}

func TestSession_RejectedSetupStopsDecoding(t *testing.T) {
	require := require.New(t)

	sim := newTestSimulator(t, simulator.Config{})
	s, store := openTestSession(t, sim.RTDEPort(),
		WithOutputFields([]rtde.FieldDesc{{Name: "timestamp", Type: "DOUBLE"}}),
		WithInputFields([]rtde.FieldDesc{{Name: "input_int_register_0", Type: "INT32", Init: 0}}),
	)
	ctx := context.Background()
	require.True(store.WaitForSample(ctx, 2*time.Second))
	require.NoError(s.Pause(ctx))

	// the controller accepts actual_q as VECTOR6D and streams 48 byte packages
	err := s.ConfigureOutputs(ctx, []rtde.FieldDesc{{Name: "actual_q", Type: "VECTOR6INT32"}})
	require.ErrorIs(err, rtde.ErrTypeMismatch)
	require.Nil(s.OutputRecipe())

	err = s.ConfigureInputs(ctx, []rtde.FieldDesc{{Name: "no_such_input", Type: "INT32"}})
	require.ErrorIs(err, rtde.ErrFieldNotFound)

	sim.SetOutput("actual_q", []float64{42.5, 1, 2, 3, 4, 5})
	received := s.Metrics().DataRecvCount.Load()
	require.NoError(s.Start(ctx))

	require.Eventually(func() bool {
		return s.Metrics().DataDropCount.Load() >= 5
	}, 2*time.Second, 5*time.Millisecond)

	require.Equal(received, s.Metrics().DataRecvCount.Load())
	_, ok := store.Telemetry("actual_q")
	require.False(ok)
	ts, ok := store.Telemetry("timestamp")
	require.True(ok)
	require.NotEqual(42.5, ts.Float())

	require.ErrorIs(s.PushOutput(), ErrNoInputRecipe)
	require.Empty(sim.InputPackages())

	// a later good setup restores decoding
	require.NoError(s.Pause(ctx))
	require.NoError(s.ConfigureOutputs(ctx, []rtde.FieldDesc{{Name: "actual_q", Type: "VECTOR6D"}}))
	require.NoError(s.Start(ctx))
	require.Eventually(func() bool {
		q, ok := store.Telemetry("actual_q")
		return ok && q.Float() == 42.5
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSession_DataPackageSize(t *testing.T) {
	require := require.New(t)

	sim := newTestSimulator(t, simulator.Config{})
	s, store := openTestSession(t, sim.RTDEPort(),
		WithOutputFields([]rtde.FieldDesc{{Name: "timestamp", Type: "DOUBLE"}}),
	)
	ctx := context.Background()
	require.NoError(s.Pause(ctx))
	before := store.SampleCount()
	errs := s.Metrics().DataErrCount.Load()

	s.recvData(make([]byte, 16))
	s.recvData(make([]byte, 7))
	require.Equal(errs+2, s.Metrics().DataErrCount.Load())
	require.Equal(before, store.SampleCount())

	s.recvData(make([]byte, 8))
	require.Equal(before+1, store.SampleCount())
}

func TestSession_TextMessage(t *testing.T) {
	require := require.New(t)

	mockLogger := logger.NewMockLogger().AllowAll()

	sim := newTestSimulator(t, simulator.Config{})
	s, _ := openTestSession(t, sim.RTDEPort(), WithLogger(mockLogger))

	sim.SendText(rtde.ErrorMessage, "C204A3: protective stop")
	sim.SendText(rtde.InfoMessage, "program loaded")

	require.Eventually(func() bool {
		return s.Metrics().TextMessageCount.Load() == 2
	}, 2*time.Second, 10*time.Millisecond)

	mockLogger.AssertCalled(t, "Error", "controller message", mock.Anything)
	mockLogger.AssertCalled(t, "Info", "controller message", mock.Anything)
	require.Equal(rtde.StartedState, s.State())
}

func TestSession_Recovery(t *testing.T) {
	require := require.New(t)

	sim := newTestSimulator(t, simulator.Config{})
	s, store := openTestSession(t, sim.RTDEPort(),
		WithInputFields([]rtde.FieldDesc{{Name: "input_int_register_0", Type: "INT32", Init: 0}}),
	)
	require.NoError(s.SetField("input_int_register_0", 42))

	sim.DropConnections()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(sim.WaitConnections(ctx, 2))

	require.Eventually(func() bool {
		return s.IsRunning() && s.Metrics().RecoveryCount.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)

	// both handshakes ran in full
	require.Equal(append(slices.Clone(handshake), handshake...), sim.Commands())
	require.Equal(rtde.StartedState, store.RTDEState())
	require.False(store.StopRequested())

	// input values survive the reconnect
	v, ok := s.InputValue("input_int_register_0")
	require.True(ok)
	require.Equal(int64(42), v.Int())

	seq := store.SampleCount()
	require.True(store.WaitForSample(ctx, 2*time.Second))
	require.Greater(store.SampleCount(), seq)

	select {
	case <-s.Done():
		require.Fail("session stopped after recovery")
	default:
	}
}

func TestSession_RecoveryKeepsPaused(t *testing.T) {
	require := require.New(t)

	sim := newTestSimulator(t, simulator.Config{})
	s, store := openTestSession(t, sim.RTDEPort())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(s.Pause(ctx))
	sim.DropConnections()
	require.NoError(sim.WaitConnections(ctx, 2))

	require.Eventually(func() bool {
		return s.State() == rtde.PausedState && s.Metrics().RecoveryCount.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(rtde.PausedState, store.RTDEState())

	// the second handshake sets up both recipes but does not start
	expected := append(slices.Clone(handshake), rtde.CmdPause)
	expected = append(expected, handshake[:len(handshake)-1]...)
	require.Equal(expected, sim.Commands())

	require.NoError(s.Start(ctx))
	require.True(store.WaitForSample(ctx, 2*time.Second))

	// once started again, recovery starts as well
	sim.DropConnections()
	require.NoError(sim.WaitConnections(ctx, 3))
	require.Eventually(func() bool {
		return s.IsRunning() && s.Metrics().RecoveryCount.Load() == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSession_ReplyTimeoutDropsLink(t *testing.T) {
	require := require.New(t)

	sim := newTestSimulator(t, simulator.Config{
		Delays: map[rtde.Command]time.Duration{rtde.CmdPause: 800 * time.Millisecond},
	})
	s, store := openTestSession(t, sim.RTDEPort())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.ErrorIs(s.Pause(ctx), ErrReplyTimeout)
	require.NoError(sim.WaitConnections(ctx, 2))

	require.Eventually(func() bool {
		return s.IsRunning() && s.Metrics().RecoveryCount.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)

	// the late reply went to the closed link
	time.Sleep(500 * time.Millisecond)
	require.Zero(s.Metrics().UnexpectedReplyCount.Load())
	require.Equal(rtde.StartedState, store.RTDEState())

	seq := store.SampleCount()
	require.True(store.WaitForSample(ctx, 2*time.Second))
	require.Greater(store.SampleCount(), seq)
}

func TestSession_ReconnectTimeout(t *testing.T) {
	require := require.New(t)

	sim, err := simulator.New(simulator.Config{})
	require.NoError(err)

	s, store := openTestSession(t, sim.RTDEPort(),
		WithReconnectTimeout(300*time.Millisecond),
		WithReconnectDelay(50*time.Millisecond),
	)
	store.SetProgramRunning(true)

	sim.Close()

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		require.Fail("session did not give up")
	}

	require.ErrorIs(s.Err(), ErrReconnectTimeout)
	require.True(store.StopRequested())
	require.True(store.ProgramError())
	require.False(store.ProgramRunning())
	require.Equal(rtde.DisconnectedState, store.RTDEState())
	require.Equal(rtde.DisconnectedState, s.State())
	require.Equal(uint64(1), s.Metrics().RecoveryCount.Load())

	require.NoError(s.Close())
}

func TestSession_StopRequested(t *testing.T) {
	require := require.New(t)

	sim := newTestSimulator(t, simulator.Config{})
	s, store := openTestSession(t, sim.RTDEPort())
	require.True(store.WaitForSample(context.Background(), 2*time.Second))

	store.RequestStop()

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		require.Fail("session did not stop")
	}

	require.NoError(s.Err())
	require.Equal(rtde.DisconnectedState, s.State())
	require.Equal(rtde.DisconnectedState, store.RTDEState())
	require.Zero(store.SampleCount())
	require.False(store.ProgramError())

	// best-effort pause before the disconnect
	require.Eventually(func() bool {
		cmds := sim.Commands()
		return len(cmds) > 0 && cmds[len(cmds)-1] == rtde.CmdPause
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(s.PushOutput())
}

func TestSession_Close(t *testing.T) {
	require := require.New(t)

	sim := newTestSimulator(t, simulator.Config{})
	s, store := openTestSession(t, sim.RTDEPort())

	require.NoError(s.Close())
	require.NoError(s.Close())

	require.NoError(s.Err())
	require.Equal(rtde.DisconnectedState, store.RTDEState())
	require.False(store.StopRequested())
	require.ErrorIs(s.Open(context.Background()), ErrSessionClosed)
	require.ErrorIs(s.Start(context.Background()), ErrNotConnected)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(s.WaitState(ctx, rtde.DisconnectedState))
}
