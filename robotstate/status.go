package robotstate

// Telemetry field names decoded into structured status by Store.IngestTelemetry.
const (
	// OutputBitRegistersField carries the general-purpose output bit registers 0 to 31.
	// Bits 0 and 1 are the started and finished status registers of instrumented programs.
	OutputBitRegistersField = "output_bit_registers0_to_31"
	// SafetyStatusBitsField carries the safety status bit mask.
	SafetyStatusBitsField = "safety_status_bits"
	// RobotStatusBitsField carries the robot status bit mask.
	RobotStatusBitsField = "robot_status_bits"
)

// StatusRegisters are the two boolean registers written by an instrumented program.
type StatusRegisters struct {
	// Started is set by the first statement of the program.
	Started bool `json:"started"`
	// Finished is set by the last statement of the program.
	Finished bool `json:"finished"`
}

// DecodeStatusRegisters extracts registers 0 and 1 from the output bit register mask.
func DecodeStatusRegisters(bits uint64) StatusRegisters {
	return StatusRegisters{
		Started:  bits&(1<<0) != 0,
		Finished: bits&(1<<1) != 0,
	}
}

// SafetyStatus is the decoded safety_status_bits mask.
type SafetyStatus struct {
	NormalMode             bool `json:"normal_mode"`
	ReducedMode            bool `json:"reduced_mode"`
	ProtectiveStopped      bool `json:"protective_stopped"`
	RecoveryMode           bool `json:"recovery_mode"`
	SafeguardStopped       bool `json:"safeguard_stopped"`
	SystemEmergencyStopped bool `json:"system_emergency_stopped"`
	RobotEmergencyStopped  bool `json:"robot_emergency_stopped"`
	EmergencyStopped       bool `json:"emergency_stopped"`
	Violation              bool `json:"violation"`
	Fault                  bool `json:"fault"`
	StoppedDueToSafety     bool `json:"stopped_due_to_safety"`
}

// DecodeSafetyStatus decodes the safety status bit mask.
func DecodeSafetyStatus(bits uint64) SafetyStatus {
	bit := func(n uint) bool { return bits&(1<<n) != 0 }

	return SafetyStatus{
		NormalMode:             bit(0),
		ReducedMode:            bit(1),
		ProtectiveStopped:      bit(2),
		RecoveryMode:           bit(3),
		SafeguardStopped:       bit(4),
		SystemEmergencyStopped: bit(5),
		RobotEmergencyStopped:  bit(6),
		EmergencyStopped:       bit(7),
		Violation:              bit(8),
		Fault:                  bit(9),
		StoppedDueToSafety:     bit(10),
	}
}

// RobotStatus is the decoded robot_status_bits mask.
type RobotStatus struct {
	PowerOn            bool `json:"power_on"`
	ProgramRunning     bool `json:"program_running"`
	TeachButtonPressed bool `json:"teach_button_pressed"`
	PowerButtonPressed bool `json:"power_button_pressed"`
}

// DecodeRobotStatus decodes the robot status bit mask.
func DecodeRobotStatus(bits uint64) RobotStatus {
	return RobotStatus{
		PowerOn:            bits&(1<<0) != 0,
		ProgramRunning:     bits&(1<<1) != 0,
		TeachButtonPressed: bits&(1<<2) != 0,
		PowerButtonPressed: bits&(1<<3) != 0,
	}
}
