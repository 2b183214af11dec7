package rtdeconn

import (
	"fmt"

	"github.com/arloliu/go-rtde/robotstate"
	"github.com/arloliu/go-rtde/rtde"
)

// DefaultOutputFields returns the telemetry recipe negotiated when no output fields are
// configured. It carries everything the script channel monitor needs.
func DefaultOutputFields() []rtde.FieldDesc {
	return []rtde.FieldDesc{
		{Name: "timestamp", Type: "DOUBLE"},
		{Name: "actual_q", Type: "VECTOR6D"},
		{Name: "actual_qd", Type: "VECTOR6D"},
		{Name: "actual_TCP_pose", Type: "VECTOR6D"},
		{Name: "actual_TCP_speed", Type: "VECTOR6D"},
		{Name: "actual_TCP_force", Type: "VECTOR6D"},
		{Name: "target_q", Type: "VECTOR6D"},
		{Name: "joint_mode", Type: "VECTOR6INT32"},
		{Name: "speed_scaling", Type: "DOUBLE"},
		{Name: "robot_mode", Type: "INT32"},
		{Name: "safety_mode", Type: "INT32"},
		{Name: "runtime_state", Type: "UINT32"},
		{Name: robotstate.RobotStatusBitsField, Type: "UINT32"},
		{Name: robotstate.SafetyStatusBitsField, Type: "UINT32"},
		{Name: robotstate.OutputBitRegistersField, Type: "UINT32"},
		{Name: "actual_digital_input_bits", Type: "UINT64"},
		{Name: "actual_digital_output_bits", Type: "UINT64"},
	}
}

// DefaultInputFields returns the setpoint recipe negotiated when no input fields are
// configured: six double registers for a pose and one int register for a command word.
func DefaultInputFields() []rtde.FieldDesc {
	fields := make([]rtde.FieldDesc, 0, 7)
	for i := 0; i < 6; i++ {
		fields = append(fields, rtde.FieldDesc{
			Name: fmt.Sprintf("input_double_register_%d", i),
			Type: "DOUBLE",
			Init: 0.0,
		})
	}

	return append(fields, rtde.FieldDesc{Name: "input_int_register_0", Type: "INT32", Init: 0})
}
