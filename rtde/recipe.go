package rtde

import (
	"fmt"
	"strings"
)

// Recipe is an ordered list of named, typed fields describing the binary layout of
// one data package.
//
// Output recipes (controller to client) carry no id. Input recipes carry the one byte id
// assigned by the controller, which prefixes every packed input package.
//
// A Recipe is immutable once built and safe for concurrent use.
type Recipe struct {
	id    uint8
	hasID bool
	names []string
	types []FieldType
	index map[string]int
	size  int
}

// NewRecipe builds an id-less recipe from parallel name and type-name sequences.
//
// It fails with ErrLengthMismatch when the sequences differ in length, ErrUnknownFieldType
// (or ErrFieldNotFound / ErrFieldInUse for the matching controller tokens) when a type name is
// not recognized, and ErrEmptyFieldName / ErrDuplicateField for invalid names.
func NewRecipe(names []string, typeNames []string) (*Recipe, error) {
	return buildRecipe(0, false, names, typeNames)
}

// NewInputRecipe builds a recipe carrying the recipe id assigned by the controller.
func NewInputRecipe(id uint8, names []string, typeNames []string) (*Recipe, error) {
	return buildRecipe(id, true, names, typeNames)
}

func buildRecipe(id uint8, hasID bool, names []string, typeNames []string) (*Recipe, error) {
	if len(names) != len(typeNames) {
		return nil, fmt.Errorf("%w: %d names, %d types", ErrLengthMismatch, len(names), len(typeNames))
	}

	r := &Recipe{
		id:    id,
		hasID: hasID,
		names: make([]string, len(names)),
		types: make([]FieldType, len(names)),
		index: make(map[string]int, len(names)),
	}
	if hasID {
		r.size = 1
	}

	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("%w: position %d", ErrEmptyFieldName, i)
		}
		if _, dup := r.index[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateField, name)
		}

		t, err := ParseFieldType(typeNames[i])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}

		r.names[i] = name
		r.types[i] = t
		r.index[name] = i
		r.size += t.Size()
	}

	return r, nil
}

// ID returns the recipe id and whether the recipe carries one.
func (r *Recipe) ID() (uint8, bool) { return r.id, r.hasID }

// Len returns the number of fields.
func (r *Recipe) Len() int { return len(r.names) }

// PayloadSize returns the size of a packed data package payload, id byte included.
func (r *Recipe) PayloadSize() int { return r.size }

// Names returns a copy of the field names in recipe order.
func (r *Recipe) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)

	return out
}

// Types returns a copy of the field types in recipe order.
func (r *Recipe) Types() []FieldType {
	out := make([]FieldType, len(r.types))
	copy(out, r.types)

	return out
}

// TypeNames returns the catalog names of the field types in recipe order.
func (r *Recipe) TypeNames() []string {
	out := make([]string, len(r.types))
	for i, t := range r.types {
		out[i] = t.String()
	}

	return out
}

// Has reports whether name is a field of the recipe.
func (r *Recipe) Has(name string) bool {
	_, ok := r.index[name]
	return ok
}

// TypeOf returns the type of the named field.
func (r *Recipe) TypeOf(name string) (FieldType, bool) {
	i, ok := r.index[name]
	if !ok {
		return InvalidType, false
	}

	return r.types[i], true
}

// NewRecord returns an empty record bound to the recipe.
func (r *Recipe) NewRecord() *DataRecord {
	return &DataRecord{
		recipe: r,
		values: make([]Value, len(r.names)),
	}
}

// Pack serializes rec in recipe order, prefixed with the recipe id when present.
//
// It fails with ErrRecipeMismatch when rec was created by another recipe and with
// ErrFieldUninitialized when any field of rec is unset.
func (r *Recipe) Pack(rec *DataRecord) ([]byte, error) {
	if rec == nil || rec.recipe != r {
		return nil, ErrRecipeMismatch
	}

	if missing := rec.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrFieldUninitialized, strings.Join(missing, ","))
	}

	return r.AppendPack(make([]byte, 0, r.size), rec), nil
}

// AppendPack appends the payload of a complete record to b. Callers must have
// validated rec with Pack rules; unset fields are written as zero.
func (r *Recipe) AppendPack(b []byte, rec *DataRecord) []byte {
	if r.hasID {
		b = append(b, r.id)
	}

	for i, t := range r.types {
		v := rec.values[i]
		if v.typ != t {
			v = Value{typ: t}
		}
		b = v.appendTo(b)
	}

	return b
}

// Unpack decodes a data package payload into a fresh, fully populated record.
//
// The payload must start with the recipe id when the recipe has one. Trailing bytes
// beyond the recipe layout are ignored.
func (r *Recipe) Unpack(payload []byte) (*DataRecord, error) {
	if len(payload) < r.size {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrShortPayload, len(payload), r.size)
	}

	off := 0
	if r.hasID {
		if payload[0] != r.id {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrRecipeIDMismatch, payload[0], r.id)
		}
		off = 1
	}

	rec := r.NewRecord()
	for i, t := range r.types {
		rec.values[i] = decodeValue(t, payload[off:])
		off += t.Size()
	}

	return rec, nil
}

// String returns the recipe as comma-joined name:type pairs.
func (r *Recipe) String() string {
	var sb strings.Builder
	if r.hasID {
		fmt.Fprintf(&sb, "#%d ", r.id)
	}
	for i, name := range r.names {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(name)
		sb.WriteByte(':')
		sb.WriteString(r.types[i].String())
	}

	return sb.String()
}
