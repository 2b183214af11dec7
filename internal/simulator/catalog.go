package simulator

import "fmt"

// DefaultOutputs returns the output variables the simulated controller knows, keyed by
// name, valued by the catalog type name.
func DefaultOutputs() map[string]string {
	out := map[string]string{
		"timestamp":                   "DOUBLE",
		"target_q":                    "VECTOR6D",
		"target_qd":                   "VECTOR6D",
		"actual_q":                    "VECTOR6D",
		"actual_qd":                   "VECTOR6D",
		"actual_current":              "VECTOR6D",
		"actual_TCP_pose":             "VECTOR6D",
		"actual_TCP_speed":            "VECTOR6D",
		"actual_TCP_force":            "VECTOR6D",
		"target_TCP_pose":             "VECTOR6D",
		"joint_temperatures":          "VECTOR6D",
		"joint_mode":                  "VECTOR6INT32",
		"actual_tool_accelerometer":   "VECTOR3D",
		"elbow_position":              "VECTOR3D",
		"speed_scaling":               "DOUBLE",
		"target_speed_fraction":       "DOUBLE",
		"actual_main_voltage":         "DOUBLE",
		"actual_robot_voltage":        "DOUBLE",
		"actual_robot_current":        "DOUBLE",
		"robot_mode":                  "INT32",
		"safety_mode":                 "INT32",
		"runtime_state":               "UINT32",
		"robot_status_bits":           "UINT32",
		"safety_status_bits":          "UINT32",
		"output_bit_registers0_to_31": "UINT32",
		"actual_digital_input_bits":   "UINT64",
		"actual_digital_output_bits":  "UINT64",
		"tool_output_voltage":         "INT32",
		"tool_analog_input_types":     "UINT32",
		"standard_analog_input0":      "DOUBLE",
		"standard_analog_input1":      "DOUBLE",
	}
	for i := 0; i < 24; i++ {
		out[fmt.Sprintf("output_int_register_%d", i)] = "INT32"
		out[fmt.Sprintf("output_double_register_%d", i)] = "DOUBLE"
	}

	return out
}

// DefaultInputs returns the input variables the simulated controller accepts.
func DefaultInputs() map[string]string {
	in := map[string]string{
		"speed_slider_mask":                "UINT32",
		"speed_slider_fraction":            "DOUBLE",
		"standard_digital_output_mask":     "UINT8",
		"standard_digital_output":          "UINT8",
		"configurable_digital_output_mask": "UINT8",
		"configurable_digital_output":      "UINT8",
		"tool_digital_output_mask":         "UINT8",
		"tool_digital_output":              "UINT8",
		"input_bit_registers0_to_31":       "UINT32",
	}
	for i := 0; i < 24; i++ {
		in[fmt.Sprintf("input_int_register_%d", i)] = "INT32"
		in[fmt.Sprintf("input_double_register_%d", i)] = "DOUBLE"
	}

	return in
}
