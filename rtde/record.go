package rtde

import "fmt"

// DataRecord maps the field names of one recipe to values.
//
// Every write is validated against the owning recipe: unknown names fail with
// ErrUnknownField and values are converted with ValueOf. Records decoded by
// Recipe.Unpack are fully populated; records built for sending start empty.
//
// A DataRecord is not safe for concurrent use.
type DataRecord struct {
	recipe *Recipe
	values []Value
}

// Recipe returns the recipe the record is bound to.
func (d *DataRecord) Recipe() *Recipe { return d.recipe }

// Set converts v to the type of the named field and stores it.
func (d *DataRecord) Set(name string, v any) error {
	i, ok := d.recipe.index[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}

	val, err := ValueOf(d.recipe.types[i], v)
	if err != nil {
		return fmt.Errorf("field %q: %w", name, err)
	}
	d.values[i] = val

	return nil
}

// SetMany assigns values to names pairwise. Either every assignment succeeds
// or the record is left unchanged.
func (d *DataRecord) SetMany(names []string, values []any) error {
	if len(names) != len(values) {
		return fmt.Errorf("%w: %d names, %d values", ErrLengthMismatch, len(names), len(values))
	}

	staged := make([]Value, len(names))
	idx := make([]int, len(names))
	for n, name := range names {
		i, ok := d.recipe.index[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownField, name)
		}

		val, err := ValueOf(d.recipe.types[i], values[n])
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		staged[n] = val
		idx[n] = i
	}

	for n, i := range idx {
		d.values[i] = staged[n]
	}

	return nil
}

// Get returns the value of the named field. The second result is false when the
// name is unknown or the field is unset.
func (d *DataRecord) Get(name string) (Value, bool) {
	i, ok := d.recipe.index[name]
	if !ok || !d.values[i].IsValid() {
		return Value{}, false
	}

	return d.values[i], true
}

// Missing returns the names of unset fields in recipe order.
func (d *DataRecord) Missing() []string {
	var missing []string
	for i, v := range d.values {
		if !v.IsValid() {
			missing = append(missing, d.recipe.names[i])
		}
	}

	return missing
}

// Complete reports whether every field is set.
func (d *DataRecord) Complete() bool {
	for _, v := range d.values {
		if !v.IsValid() {
			return false
		}
	}

	return true
}

// Range calls fn for every set field in recipe order until fn returns false.
func (d *DataRecord) Range(fn func(name string, v Value) bool) {
	for i, v := range d.values {
		if !v.IsValid() {
			continue
		}
		if !fn(d.recipe.names[i], v) {
			return
		}
	}
}

// Clone returns an independent copy bound to the same recipe.
func (d *DataRecord) Clone() *DataRecord {
	values := make([]Value, len(d.values))
	copy(values, d.values)

	return &DataRecord{recipe: d.recipe, values: values}
}

// Equal reports whether both records belong to the same recipe layout and hold equal values.
func (d *DataRecord) Equal(o *DataRecord) bool {
	if d == nil || o == nil {
		return d == o
	}
	if len(d.values) != len(o.values) {
		return false
	}
	for i := range d.values {
		if d.recipe.names[i] != o.recipe.names[i] || !d.values[i].Equal(o.values[i]) {
			return false
		}
	}

	return true
}

// ToMap returns the set fields in their natural Go representation.
func (d *DataRecord) ToMap() map[string]any {
	out := make(map[string]any, len(d.values))
	d.Range(func(name string, v Value) bool {
		out[name] = v.Interface()
		return true
	})

	return out
}
