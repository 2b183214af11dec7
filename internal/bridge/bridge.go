// Package bridge republishes the shared robot state to an MQTT broker.
//
// Every ingested data package is published as a JSON snapshot on <prefix>/telemetry.
// The connection states and program flags are published, retained, on <prefix>/state
// whenever they change, and "offline" is published there when the bridge stops.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-rtde/logger"
	"github.com/arloliu/go-rtde/robotstate"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var (
	// ErrPublisherNil indicates that a nil publisher was passed to New.
	ErrPublisherNil = errors.New("bridge: publisher is nil")
	// ErrStoreNil indicates that a nil store was passed to New.
	ErrStoreNil = errors.New("bridge: store is nil")
)

const (
	// TelemetryTopic and StateTopic are appended to the topic prefix.
	TelemetryTopic = "telemetry"
	StateTopic     = "state"

	// OfflinePayload is the retained state payload of a stopped bridge.
	OfflinePayload = "offline"

	stateCheckInterval = 100 * time.Millisecond
)

// Publisher is the part of mqtt.Client used by the bridge.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
}

// StateMessage is the payload of the state topic.
type StateMessage struct {
	RTDE           string `json:"rtde"`
	Script         string `json:"script"`
	StopRequested  bool   `json:"stop_requested"`
	ProgramRunning bool   `json:"program_running"`
	ProgramError   bool   `json:"program_error"`
}

// TelemetryMessage is the payload of the telemetry topic.
type TelemetryMessage struct {
	robotstate.Snapshot
	Values map[string]any `json:"values"`
}

// Bridge publishes a Store to MQTT.
type Bridge struct {
	pub     Publisher
	store   *robotstate.Store
	prefix  string
	qos     byte
	timeout time.Duration
	every   time.Duration
	logger  logger.Logger

	lastState  StateMessage
	lastSample time.Time
	lastSeq    uint64
	published  atomic.Uint64
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithTopicPrefix sets the topic prefix. Default: "ur".
func WithTopicPrefix(prefix string) Option {
	return func(b *Bridge) {
		if prefix != "" {
			b.prefix = prefix
		}
	}
}

// WithQoS sets the QoS of published messages. Values above 2 are ignored. Default: 0.
func WithQoS(qos byte) Option {
	return func(b *Bridge) {
		if qos <= 2 {
			b.qos = qos
		}
	}
}

// WithPublishTimeout bounds the wait for each publish acknowledgement. Default: 2s.
func WithPublishTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithMinInterval drops samples arriving less than d after the last published one.
// Default: 0, every sample is published.
func WithMinInterval(d time.Duration) Option {
	return func(b *Bridge) {
		if d >= 0 {
			b.every = d
		}
	}
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l logger.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a Bridge publishing store through pub.
func New(pub Publisher, store *robotstate.Store, opts ...Option) (*Bridge, error) {
	if pub == nil {
		return nil, ErrPublisherNil
	}
	if store == nil {
		return nil, ErrStoreNil
	}

	b := &Bridge{
		pub:     pub,
		store:   store,
		prefix:  "ur",
		timeout: 2 * time.Second,
		logger:  logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "bridge", "prefix", b.prefix)

	return b, nil
}

// Topic returns the full topic name of name.
func (b *Bridge) Topic(name string) string {
	return b.prefix + "/" + name
}

// Published returns the number of telemetry messages published.
func (b *Bridge) Published() uint64 {
	return b.published.Load()
}

// Run publishes until ctx is done, then publishes the offline state. Publish failures
// are logged and do not stop the bridge; the latest sample is retried on the next
// check.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("bridge started", "method", "Run")

	b.publishState(true)
	for ctx.Err() == nil {
		b.store.WaitForSample(ctx, stateCheckInterval)
		b.publishTelemetry()
		b.publishState(false)
	}

	if err := b.publish(b.Topic(StateTopic), true, []byte(OfflinePayload)); err != nil {
		b.logger.Warn("failed to publish offline state", "method", "Run", "error", err)
	}
	b.logger.Info("bridge stopped", "method", "Run", "published", b.published.Load())

	return nil
}

func (b *Bridge) currentState() StateMessage {
	return StateMessage{
		RTDE:           b.store.RTDEState().String(),
		Script:         b.store.ScriptState().String(),
		StopRequested:  b.store.StopRequested(),
		ProgramRunning: b.store.ProgramRunning(),
		ProgramError:   b.store.ProgramError(),
	}
}

func (b *Bridge) publishState(force bool) {
	state := b.currentState()
	if !force && state == b.lastState {
		return
	}

	payload, err := json.Marshal(state)
	if err != nil {
		b.logger.Error("failed to encode state", "method", "publishState", "error", err)
		return
	}

	if err := b.publish(b.Topic(StateTopic), true, payload); err != nil {
		b.logger.Warn("failed to publish state", "method", "publishState", "error", err)
		return
	}
	b.lastState = state
}

func (b *Bridge) publishTelemetry() {
	snap := b.store.Snapshot()
	if snap.Seq == 0 || snap.Seq == b.lastSeq {
		return
	}
	if b.every > 0 && !b.lastSample.IsZero() && snap.ReceivedAt.Sub(b.lastSample) < b.every {
		return
	}

	payload, err := json.Marshal(TelemetryMessage{Snapshot: snap, Values: snap.ValueMap()})
	if err != nil {
		b.logger.Error("failed to encode telemetry", "method", "publishTelemetry", "error", err)
		return
	}

	if err := b.publish(b.Topic(TelemetryTopic), false, payload); err != nil {
		b.logger.Warn("failed to publish telemetry", "method", "publishTelemetry", "seq", snap.Seq, "error", err)
		return
	}
	b.lastSeq = snap.Seq
	b.lastSample = snap.ReceivedAt
	b.published.Add(1)
}

func (b *Bridge) publish(topic string, retained bool, payload []byte) error {
	token := b.pub.Publish(topic, b.qos, retained, payload)
	if !token.WaitTimeout(b.timeout) {
		return fmt.Errorf("publish %s: timeout after %s", topic, b.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	return nil
}
