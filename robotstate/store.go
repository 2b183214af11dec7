// Package robotstate holds the control state shared by the RTDE session, the script
// channel and external callers.
//
// Fields are grouped by owner. The RTDE session writes the telemetry group and its
// connection state; the script channel writes the program flags and its connection
// state. Every field is guarded by an atomic or by the telemetry mutex, so any goroutine
// may read at any time.
package robotstate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-rtde/internal/pool"
	"github.com/arloliu/go-rtde/rtde"
	"github.com/puzpuzpuz/xsync/v3"
)

// Store is the shared control-state blackboard. The zero value is not usable; call New.
type Store struct {
	rtdeState   atomic.Uint32
	scriptState atomic.Uint32

	stopRequested  atomic.Bool
	programRunning atomic.Bool
	programError   atomic.Bool

	values *xsync.MapOf[string, rtde.Value]

	mu         sync.RWMutex
	last       *rtde.DataRecord
	receivedAt time.Time
	registers  StatusRegisters
	safety     SafetyStatus
	robot      RobotStatus
	seq        uint64
	resetGen   uint64
	notify     chan struct{}
}

// Snapshot is a consistent copy of the telemetry group.
type Snapshot struct {
	Seq        uint64                `json:"seq"`
	ReceivedAt time.Time             `json:"received_at"`
	Values     map[string]rtde.Value `json:"-"`
	Registers  StatusRegisters       `json:"registers"`
	Safety     SafetyStatus          `json:"safety"`
	Robot      RobotStatus           `json:"robot"`
}

// ValueMap returns the telemetry values in their natural Go representation.
func (s Snapshot) ValueMap() map[string]any {
	out := make(map[string]any, len(s.Values))
	for name, v := range s.Values {
		out[name] = v.Interface()
	}

	return out
}

// New creates a Store in its default state: both channels disconnected, no flags set
// and no telemetry.
func New() *Store {
	s := &Store{
		values: xsync.NewMapOf[string, rtde.Value](),
		notify: make(chan struct{}),
	}
	s.rtdeState.Store(uint32(rtde.DisconnectedState))
	s.scriptState.Store(uint32(rtde.DisconnectedState))

	return s
}

// RTDEState returns the state of the RTDE channel.
func (s *Store) RTDEState() rtde.ConnState { return rtde.ConnState(s.rtdeState.Load()) }

// SetRTDEState records the state of the RTDE channel.
func (s *Store) SetRTDEState(state rtde.ConnState) { s.rtdeState.Store(uint32(state)) }

// ScriptState returns the state of the script channel.
func (s *Store) ScriptState() rtde.ConnState { return rtde.ConnState(s.scriptState.Load()) }

// SetScriptState records the state of the script channel.
func (s *Store) SetScriptState(state rtde.ConnState) { s.scriptState.Store(uint32(state)) }

// StopRequested reports whether cooperative stop has been requested.
func (s *Store) StopRequested() bool { return s.stopRequested.Load() }

// RequestStop raises the stop flag. Every loop polling the store exits at its next
// suspension point.
func (s *Store) RequestStop() { s.stopRequested.Store(true) }

// ClearStop lowers the stop flag.
func (s *Store) ClearStop() { s.stopRequested.Store(false) }

// ProgramRunning reports whether a monitored program is in flight.
func (s *Store) ProgramRunning() bool { return s.programRunning.Load() }

// SetProgramRunning sets the program running flag.
func (s *Store) SetProgramRunning(v bool) { s.programRunning.Store(v) }

// ProgramError reports whether the last monitored program failed.
func (s *Store) ProgramError() bool { return s.programError.Load() }

// SetProgramError sets the program execution error flag.
func (s *Store) SetProgramError(v bool) { s.programError.Store(v) }

// IngestTelemetry applies a decoded data package. Values overwrite the previous ones
// by field name; the status register, safety status and robot status fields are
// decoded when present. Waiters blocked in WaitForSample are woken.
func (s *Store) IngestTelemetry(rec *rtde.DataRecord) {
	if rec == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec.Range(func(name string, v rtde.Value) bool {
		s.values.Store(name, v)

		switch name {
		case OutputBitRegistersField:
			s.registers = DecodeStatusRegisters(v.Uint())
		case SafetyStatusBitsField:
			s.safety = DecodeSafetyStatus(v.Uint())
		case RobotStatusBitsField:
			s.robot = DecodeRobotStatus(v.Uint())
		}

		return true
	})

	s.last = rec.Clone()
	s.receivedAt = time.Now()
	s.seq++
	s.wakeLocked()
}

// Telemetry returns the latest value of the named field.
func (s *Store) Telemetry(name string) (rtde.Value, bool) {
	return s.values.Load(name)
}

// LastRecord returns a copy of the most recent data package, or nil before the first one.
func (s *Store) LastRecord() *rtde.DataRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.last == nil {
		return nil
	}

	return s.last.Clone()
}

// Snapshot returns a consistent copy of the telemetry group.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Seq:        s.seq,
		ReceivedAt: s.receivedAt,
		Values:     make(map[string]rtde.Value, s.values.Size()),
		Registers:  s.registers,
		Safety:     s.safety,
		Robot:      s.robot,
	}
	s.values.Range(func(name string, v rtde.Value) bool {
		snap.Values[name] = v
		return true
	})

	return snap
}

// StatusRegisters returns the latest started/finished registers.
func (s *Store) StatusRegisters() StatusRegisters {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.registers
}

// SafetyStatus returns the latest decoded safety status.
func (s *Store) SafetyStatus() SafetyStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.safety
}

// RobotStatus returns the latest decoded robot status.
func (s *Store) RobotStatus() RobotStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.robot
}

// SafetyStopped reports whether the robot stopped because of a safety event.
func (s *Store) SafetyStopped() bool { return s.SafetyStatus().StoppedDueToSafety }

// RobotProgramRunning reports whether the controller reports a program running.
func (s *Store) RobotProgramRunning() bool { return s.RobotStatus().ProgramRunning }

// SampleCount returns the number of data packages ingested since the last ResetRTDE.
func (s *Store) SampleCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.seq
}

// WaitForSample blocks until a data package newer than the call is ingested.
//
// It returns true for a fresh sample, and false when timeout elapses, ctx is done,
// or the store is reset while waiting. A non-positive timeout waits on ctx only.
func (s *Store) WaitForSample(ctx context.Context, timeout time.Duration) bool {
	s.mu.RLock()
	ch, gen := s.notify, s.resetGen
	s.mu.RUnlock()

	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := pool.GetTimer(timeout)
		defer pool.PutTimer(timer)
		timeoutC = timer.C
	}

	select {
	case <-ch:
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.resetGen == gen
	case <-timeoutC:
		return false
	case <-ctx.Done():
		return false
	}
}

// ResetRTDE restores the RTDE-owned group on disconnect: the RTDE state goes to
// disconnected and the telemetry is dropped. The script channel state and the program
// flags are owned by the script channel and kept. Waiters in WaitForSample return false.
func (s *Store) ResetRTDE() {
	s.SetRTDEState(rtde.DisconnectedState)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.values.Clear()
	s.last = nil
	s.receivedAt = time.Time{}
	s.registers = StatusRegisters{}
	s.safety = SafetyStatus{}
	s.robot = RobotStatus{}
	s.seq = 0
	s.resetGen++
	s.wakeLocked()
}

// wakeLocked wakes every waiter. Callers hold s.mu.
func (s *Store) wakeLocked() {
	close(s.notify)
	s.notify = make(chan struct{})
}
