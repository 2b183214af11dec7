// Command urctl talks to a Universal Robots controller over RTDE and the script port.
//
// Usage:
//
//	urctl [-config urctl.toml] <command> [arguments]
//
// Commands:
//
//	monitor   print telemetry snapshots as JSON lines
//	run FILE  send a program, wait for it to finish and report the outcome
//	send TEXT send a raw script command without monitoring
//	set N=V.. write input fields and push them to the controller
//	bridge    publish telemetry and state to an MQTT broker
//	simulate  serve a fake controller on the configured ports
//
// The config file is optional. The .env file of the working directory and the
// URCTL_HOST, URCTL_LOG_LEVEL and URCTL_MQTT_BROKER environment variables override it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/arloliu/go-rtde/internal/bridge"
	"github.com/arloliu/go-rtde/internal/simulator"
	"github.com/arloliu/go-rtde/logger"
	"github.com/arloliu/go-rtde/robotstate"
	"github.com/arloliu/go-rtde/rtdeconn"
	"github.com/arloliu/go-rtde/urscript"
)

var log logger.Logger

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "urctl: %v\n", err)
		os.Exit(1)
	}
}

func usage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "usage: urctl [-config file] <monitor|run|send|set|bridge|simulate> [arguments]\n")
	fs.PrintDefaults()
}

func run(args []string) error {
	fs := flag.NewFlagSet("urctl", flag.ContinueOnError)
	configPath := fs.String("config", "", "path of the TOML config file")
	interval := fs.Duration("interval", 0, "monitor: minimum interval between printed snapshots")
	finishAfter := fs.Duration("finish-after", time.Second, "simulate: time a received program runs before it finishes")
	fs.Usage = func() { usage(fs) }

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		usage(fs)
		return errors.New("missing command")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	log = logger.NewSlog(cfg.LogLevel, false)
	logger.SetLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "monitor":
		return monitorCmd(ctx, cfg, *interval)
	case "run":
		if len(cmdArgs) != 1 {
			return errors.New("run: expected one program file")
		}
		return runCmd(ctx, cfg, cmdArgs[0])
	case "send":
		if len(cmdArgs) == 0 {
			return errors.New("send: expected script text")
		}
		return sendCmd(ctx, cfg, strings.Join(cmdArgs, " "))
	case "set":
		if len(cmdArgs) == 0 {
			return errors.New("set: expected name=value pairs")
		}
		return setCmd(ctx, cfg, cmdArgs)
	case "bridge":
		return bridgeCmd(ctx, cfg)
	case "simulate":
		return simulateCmd(ctx, cfg, *finishAfter)
	default:
		usage(fs)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// openSession opens an RTDE session feeding store.
func openSession(ctx context.Context, cfg appConfig, store *robotstate.Store) (*rtdeconn.Session, error) {
	sessCfg, err := cfg.sessionConfig(log)
	if err != nil {
		return nil, err
	}

	sess, err := rtdeconn.NewSession(sessCfg, store)
	if err != nil {
		return nil, err
	}

	if err := sess.Open(ctx); err != nil {
		return nil, err
	}

	return sess, nil
}

func monitorCmd(ctx context.Context, cfg appConfig, interval time.Duration) error {
	store := robotstate.New()
	sess, err := openSession(ctx, cfg, store)
	if err != nil {
		return err
	}
	defer sess.Close()

	enc := json.NewEncoder(os.Stdout)
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sess.Done():
			return sess.Err()
		default:
		}

		if !store.WaitForSample(ctx, cfg.ReconnectTimeout) {
			continue
		}

		snap := store.Snapshot()
		if interval > 0 && snap.ReceivedAt.Sub(last) < interval {
			continue
		}
		last = snap.ReceivedAt

		if err := enc.Encode(bridge.TelemetryMessage{Snapshot: snap, Values: snap.ValueMap()}); err != nil {
			return err
		}
	}
}

func runCmd(ctx context.Context, cfg appConfig, path string) error {
	program, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	store := robotstate.New()
	sess, err := openSession(ctx, cfg, store)
	if err != nil {
		return err
	}
	defer sess.Close()

	client, err := newClient(cfg, store)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.SendProgram(ctx, string(program)); err != nil {
		return err
	}
	log.Info("program sent", "file", path, "bytes", len(program))

	if err := client.Wait(ctx); err != nil {
		return err
	}
	log.Info("program finished", "file", path)

	return nil
}

func sendCmd(ctx context.Context, cfg appConfig, text string) error {
	client, err := newClient(cfg, robotstate.New())
	if err != nil {
		return err
	}
	defer client.Close()

	return client.Send(ctx, text)
}

func setCmd(ctx context.Context, cfg appConfig, pairs []string) error {
	names := make([]string, 0, len(pairs))
	values := make([]any, 0, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return fmt.Errorf("set: invalid pair %q", pair)
		}
		names = append(names, name)
		values = append(values, parseScalar(raw))
	}

	sess, err := openSession(ctx, cfg, robotstate.New())
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.SetFields(names, values); err != nil {
		return err
	}

	return sess.PushOutput()
}

// parseScalar returns raw as int64, float64 or bool when it parses as one.
func parseScalar(raw string) any {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}

	return raw
}

func newClient(cfg appConfig, store *robotstate.Store) (*urscript.Client, error) {
	clientCfg, err := cfg.clientConfig(log)
	if err != nil {
		return nil, err
	}

	return urscript.NewClient(clientCfg, store)
}

func bridgeCmd(ctx context.Context, cfg appConfig) error {
	if cfg.MQTT.Broker == "" {
		return errors.New("bridge: no mqtt broker configured")
	}

	store := robotstate.New()
	sess, err := openSession(ctx, cfg, store)
	if err != nil {
		return err
	}
	defer sess.Close()

	mqttCfg := cfg.MQTT
	mqttCfg.Logger = log
	client, err := bridge.Connect(mqttCfg)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	b, err := bridge.New(client, store,
		bridge.WithTopicPrefix(cfg.MQTT.TopicPrefix),
		bridge.WithQoS(cfg.QoS),
		bridge.WithMinInterval(cfg.MinInterval),
		bridge.WithLogger(log),
	)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-sess.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	if err := b.Run(runCtx); err != nil {
		return err
	}

	return sess.Err()
}

func simulateCmd(ctx context.Context, cfg appConfig, finishAfter time.Duration) error {
	sim, err := simulator.New(simulator.Config{
		Host:       cfg.Host,
		RTDEPort:   cfg.RTDEPort,
		ScriptPort: cfg.ScriptPort,
		Logger:     log,
		OnScript:   simulatedProgram(finishAfter),
	})
	if err != nil {
		return err
	}
	defer sim.Close()

	log.Info("simulator listening", "host", sim.Host(), "rtde_port", sim.RTDEPort(), "script_port", sim.ScriptPort())
	<-ctx.Done()

	return nil
}

// simulatedProgram runs every monitored program for d, and clears the status registers
// on the reset program.
func simulatedProgram(d time.Duration) func(*simulator.Controller, string) {
	return func(sim *simulator.Controller, text string) {
		if strings.Contains(text, urscript.ResetProgram) {
			sim.SetRegisters(false, false)
			sim.SetProgramRunning(false)
		}
		if !strings.Contains(text, "write_output_boolean_register(0, True)") {
			return
		}

		sim.SetProgramRunning(true)
		sim.SetRegisters(true, false)
		time.AfterFunc(d, func() {
			sim.SetRegisters(true, true)
			sim.SetProgramRunning(false)
		})
	}
}
