package rtde

// FieldDesc describes one field of a recipe request as supplied by the caller's
// configuration.
type FieldDesc struct {
	// Name is the controller variable name, e.g. "actual_TCP_pose".
	Name string
	// Type is the expected catalog type name. It is optional; when set, the type
	// reported by the controller must match it.
	Type string
	// Init is the initial value of an input field. Nil leaves the field unset until
	// the first write.
	Init any
}

// FieldNames returns the names of fields in order.
func FieldNames(fields []FieldDesc) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}

	return names
}
