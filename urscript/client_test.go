package urscript

import (
	"context"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arloliu/go-rtde/internal/simulator"
	"github.com/arloliu/go-rtde/logger"
	"github.com/arloliu/go-rtde/robotstate"
	"github.com/arloliu/go-rtde/rtde"
	"github.com/arloliu/go-rtde/rtdeconn"
	"github.com/stretchr/testify/require"
)

const (
	testIP      = "127.0.0.1"
	testProgram = "def move():\n  movej([0, -1.57, 0, -1.57, 0, 0])\nend\n"
)

func TestMain(m *testing.M) {
	level, ok := logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	if !ok {
		level = logger.InfoLevel
	}
	logger.SetLevel(level)

	os.Exit(m.Run())
}

// robotBehavior decides how the simulated robot reacts to a received program.
type robotBehavior func(sim *simulator.Controller)

// scriptHandler makes the simulator clear the status registers on the reset program and
// run behave on every instrumented program.
func scriptHandler(behave robotBehavior) func(*simulator.Controller, string) {
	return func(sim *simulator.Controller, text string) {
		if strings.Contains(text, "def resetRegister():") {
			sim.SetRegisters(false, false)
			sim.SetProgramRunning(false)
		}
		if strings.Contains(text, startedMarker) && behave != nil {
			behave(sim)
		}
	}
}

type testRig struct {
	sim    *simulator.Controller
	sess   *rtdeconn.Session
	store  *robotstate.Store
	client *Client
}

func newTestRig(t *testing.T, behave robotBehavior, opts ...ClientOption) *testRig {
	t.Helper()
	require := require.New(t)

	sim, err := simulator.New(simulator.Config{OnScript: scriptHandler(behave)})
	require.NoError(err)
	t.Cleanup(sim.Close)

	store := robotstate.New()

	sessCfg, err := rtdeconn.NewSessionConfig(testIP,
		rtdeconn.WithPort(sim.RTDEPort()),
		rtdeconn.WithTimeout(500*time.Millisecond),
	)
	require.NoError(err)
	sess, err := rtdeconn.NewSession(sessCfg, store)
	require.NoError(err)
	t.Cleanup(func() { _ = sess.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(sess.Open(ctx))
	require.True(store.WaitForSample(ctx, 2*time.Second))

	client := newTestClient(t, store, sim.ScriptPort(), opts...)

	return &testRig{sim: sim, sess: sess, store: store, client: client}
}

func newTestClient(t *testing.T, store *robotstate.Store, port int, opts ...ClientOption) *Client {
	t.Helper()

	opts = append([]ClientOption{
		WithPort(port),
		WithTimeout(500 * time.Millisecond),
		WithReconnectDelay(10 * time.Millisecond),
		WithPollInterval(20 * time.Millisecond),
		WithStartTimeout(300*time.Millisecond, 0),
		WithIdlePollLimit(5),
	}, opts...)

	cfg, err := NewClientConfig(testIP, opts...)
	require.NoError(t, err)

	client, err := NewClient(cfg, store)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func waitTimeout(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	return ctx
}

func TestNewClient(t *testing.T) {
	require := require.New(t)

	cfg, err := NewClientConfig(testIP)
	require.NoError(err)

	_, err = NewClient(nil, robotstate.New())
	require.ErrorIs(err, ErrClientConfigNil)

	_, err = NewClient(cfg, nil)
	require.ErrorIs(err, ErrStoreNil)

	client, err := NewClient(cfg, robotstate.New())
	require.NoError(err)
	require.False(client.IsConnected())
	require.NoError(client.Wait(context.Background()))
}

func TestClient_ProgramFinished(t *testing.T) {
	require := require.New(t)

	rig := newTestRig(t, func(sim *simulator.Controller) {
		sim.SetProgramRunning(true)
		sim.SetRegisters(true, false)
		time.AfterFunc(100*time.Millisecond, func() {
			sim.SetRegisters(true, true)
			sim.SetProgramRunning(false)
		})
	})
	ctx := waitTimeout(t)

	require.NoError(rig.client.SendProgram(ctx, testProgram))
	require.True(rig.store.ProgramRunning())
	require.False(rig.store.ProgramError())
	require.True(rig.client.IsConnected())
	require.Equal(rtde.ConnectedState, rig.store.ScriptState())

	require.NoError(rig.client.Wait(ctx))
	require.False(rig.store.ProgramRunning())
	require.False(rig.store.ProgramError())

	require.NoError(rig.sim.WaitScript(ctx, ResetProgram))

	instrumented, err := TokenInstrumenter{}.Instrument(testProgram)
	require.NoError(err)
	require.True(strings.HasPrefix(rig.sim.ScriptText(), instrumented))
}

func TestClient_SafetyStop(t *testing.T) {
	require := require.New(t)

	rig := newTestRig(t, func(sim *simulator.Controller) {
		sim.SetProgramRunning(true)
		sim.SetRegisters(true, false)
	})
	ctx := waitTimeout(t)

	require.NoError(rig.client.SendProgram(ctx, testProgram))
	require.Eventually(func() bool {
		return rig.store.StatusRegisters().Started
	}, 2*time.Second, 5*time.Millisecond)

	rig.sim.SetSafetyStopped(true)
	require.Eventually(func() bool {
		return rig.store.SafetyStopped()
	}, 2*time.Second, time.Millisecond)

	// the monitor reacts within one polling interval of the telemetry
	require.Eventually(func() bool {
		return !rig.store.ProgramRunning()
	}, 100*time.Millisecond, time.Millisecond)
	require.True(rig.store.ProgramError())

	require.ErrorIs(rig.client.Wait(ctx), ErrProgramFailed)
	require.NoError(rig.sim.WaitScript(ctx, ResetProgram))
}

func TestClient_NeverStarted(t *testing.T) {
	require := require.New(t)

	rig := newTestRig(t, nil)
	ctx := waitTimeout(t)

	begin := time.Now()
	require.NoError(rig.client.SendProgram(ctx, testProgram))
	require.NoError(rig.client.Wait(ctx))

	require.GreaterOrEqual(time.Since(begin), 300*time.Millisecond)
	require.False(rig.store.ProgramRunning())
	require.False(rig.store.ProgramError())
	require.NoError(rig.sim.WaitScript(ctx, ResetProgram))
}

func TestClient_Stalled(t *testing.T) {
	require := require.New(t)

	// started but the controller reports no running program
	rig := newTestRig(t, func(sim *simulator.Controller) {
		sim.SetRegisters(true, false)
	})
	ctx := waitTimeout(t)

	require.NoError(rig.client.SendProgram(ctx, testProgram))
	require.ErrorIs(rig.client.Wait(ctx), ErrProgramFailed)
	require.False(rig.store.ProgramRunning())
	require.True(rig.store.ProgramError())
}

func TestClient_Preempt(t *testing.T) {
	require := require.New(t)

	var mu sync.Mutex
	programs := 0
	rig := newTestRig(t, func(sim *simulator.Controller) {
		mu.Lock()
		programs++
		mu.Unlock()

		sim.SetProgramRunning(true)
		sim.SetRegisters(true, false)
	})
	ctx := waitTimeout(t)

	require.NoError(rig.client.SendProgram(ctx, testProgram))
	require.Eventually(func() bool {
		return rig.store.StatusRegisters().Started
	}, 2*time.Second, 5*time.Millisecond)

	second := "def second():\n  textmsg(\"second\")\nend\n"
	require.NoError(rig.client.SendProgram(ctx, second))
	require.True(rig.store.ProgramRunning())
	require.False(rig.store.ProgramError())

	require.NoError(rig.sim.WaitScript(ctx, "textmsg(\"second\")"))
	text := rig.sim.ScriptText()
	first := strings.Index(text, "movej(")
	reset := strings.Index(text, ResetProgram)
	next := strings.Index(text, "textmsg(\"second\")")
	require.True(first >= 0 && first < reset && reset < next, text)

	require.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return programs == 2
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(rig.client.Close())
	require.False(rig.store.ProgramRunning())
	require.Eventually(func() bool {
		return strings.Count(rig.sim.ScriptText(), ResetProgram) == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestClient_Send(t *testing.T) {
	require := require.New(t)

	sim, err := simulator.New(simulator.Config{})
	require.NoError(err)
	t.Cleanup(sim.Close)

	store := robotstate.New()
	client := newTestClient(t, store, sim.ScriptPort())
	ctx := waitTimeout(t)

	require.NoError(client.Send(ctx, "set_digital_out(0, True)"))
	require.NoError(sim.WaitScript(ctx, "set_digital_out(0, True)\n"))
	require.False(store.ProgramRunning())
	require.Equal(rtde.ConnectedState, store.ScriptState())

	require.ErrorIs(client.SendProgram(ctx, "def broken()\nend\n"), ErrMalformedProgram)
	require.False(store.ProgramRunning())

	store.RequestStop()
	require.ErrorIs(client.Send(ctx, "textmsg(1)"), ErrStopRequested)
	require.ErrorIs(client.SendProgram(ctx, testProgram), ErrStopRequested)
	require.False(store.ProgramRunning())

	require.NoError(client.Close())
	require.NoError(client.Close())
	require.Equal(rtde.DisconnectedState, store.ScriptState())
	require.ErrorIs(client.Send(ctx, "textmsg(1)"), ErrClientClosed)
	require.ErrorIs(client.SendProgram(ctx, testProgram), ErrClientClosed)
}

func TestClient_ScriptStateOwnership(t *testing.T) {
	require := require.New(t)

	rig := newTestRig(t, nil)
	ctx := waitTimeout(t)

	require.NoError(rig.client.Send(ctx, "textmsg(1)"))
	require.Equal(rtde.ConnectedState, rig.store.ScriptState())
	rig.store.SetProgramRunning(true)

	// closing the RTDE session leaves the script channel group alone
	require.NoError(rig.sess.Close())
	require.Equal(rtde.DisconnectedState, rig.store.RTDEState())
	require.Equal(rtde.ConnectedState, rig.store.ScriptState())
	require.True(rig.store.ProgramRunning())
	rig.store.SetProgramRunning(false)

	// every successful write reasserts the script state
	rig.store.SetScriptState(rtde.DisconnectedState)
	require.NoError(rig.client.Send(ctx, "textmsg(2)"))
	require.True(rig.client.IsConnected())
	require.Equal(rtde.ConnectedState, rig.store.ScriptState())
	require.NoError(rig.sim.WaitScript(ctx, "textmsg(2)\n"))
}

func TestClient_ConnectFailure(t *testing.T) {
	require := require.New(t)

	ln, err := net.Listen("tcp", net.JoinHostPort(testIP, "0"))
	require.NoError(err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(ln.Close())

	store := robotstate.New()
	client := newTestClient(t, store, port)

	require.Error(client.SendProgram(context.Background(), testProgram))
	require.False(client.IsConnected())
	require.False(store.ProgramRunning())
	require.Equal(rtde.DisconnectedState, store.ScriptState())
}
