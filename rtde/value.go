package rtde

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
)

// Value is a typed RTDE field value: a numeric scalar or a fixed-length numeric vector.
//
// Slots are kept in their wire representation, so a value packs and unpacks without
// conversion and Equal compares bit patterns (NaN doubles compare equal to themselves).
// The zero Value has InvalidType.
type Value struct {
	typ  FieldType
	slot [maxSlots]uint64
}

// NewInt32 returns an INT32 value.
func NewInt32(v int32) Value {
	return Value{typ: Int32Type, slot: [maxSlots]uint64{uint64(uint32(v))}}
}

// NewUint32 returns a UINT32 value.
func NewUint32(v uint32) Value {
	return Value{typ: Uint32Type, slot: [maxSlots]uint64{uint64(v)}}
}

// NewUint64 returns a UINT64 value.
func NewUint64(v uint64) Value {
	return Value{typ: Uint64Type, slot: [maxSlots]uint64{v}}
}

// NewUint8 returns a UINT8 value.
func NewUint8(v uint8) Value {
	return Value{typ: Uint8Type, slot: [maxSlots]uint64{uint64(v)}}
}

// NewDouble returns a DOUBLE value.
func NewDouble(v float64) Value {
	return Value{typ: DoubleType, slot: [maxSlots]uint64{math.Float64bits(v)}}
}

// NewVector3D returns a VECTOR3D value.
func NewVector3D(v [3]float64) Value {
	val := Value{typ: Vector3DType}
	for i, f := range v {
		val.slot[i] = math.Float64bits(f)
	}

	return val
}

// NewVector6D returns a VECTOR6D value, the representation of poses and joint vectors.
func NewVector6D(v [6]float64) Value {
	val := Value{typ: Vector6DType}
	for i, f := range v {
		val.slot[i] = math.Float64bits(f)
	}

	return val
}

// NewVector6Int32 returns a VECTOR6INT32 value.
func NewVector6Int32(v [6]int32) Value {
	val := Value{typ: Vector6Int32Type}
	for i, n := range v {
		val.slot[i] = uint64(uint32(n))
	}

	return val
}

// NewVector6Uint32 returns a VECTOR6UINT32 value.
func NewVector6Uint32(v [6]uint32) Value {
	val := Value{typ: Vector6Uint32Type}
	for i, n := range v {
		val.slot[i] = uint64(n)
	}

	return val
}

// ValueOf converts an arbitrary Go value to a Value of type t.
//
// Scalar types accept any Go integer or float. Vector types accept a slice or array
// with exactly t.Slots() numeric elements. A Value argument must already have type t.
//
// Conversions never wrap or truncate: an integer outside the range of the field,
// a negative number for an unsigned field or a non-integral float for an integer
// field fails with ErrValueOutOfRange. Non-numeric input fails with ErrTypeMismatch.
func ValueOf(t FieldType, v any) (Value, error) {
	if !t.IsValid() {
		return Value{}, fmt.Errorf("%w: %s", ErrUnknownFieldType, t)
	}

	if val, ok := v.(Value); ok {
		if val.typ != t {
			return Value{}, fmt.Errorf("%w: %s value for %s field", ErrTypeMismatch, val.typ, t)
		}
		return val, nil
	}

	info := t.info()
	val := Value{typ: t}

	if info.slots == 1 {
		s, err := convertSlot(info, v)
		if err != nil {
			return Value{}, err
		}
		val.slot[0] = s

		return val, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return Value{}, fmt.Errorf("%w: %T for %s field", ErrTypeMismatch, v, t)
	}
	if rv.Len() != info.slots {
		return Value{}, fmt.Errorf("%w: %d elements for %s field", ErrLengthMismatch, rv.Len(), t)
	}

	for i := 0; i < info.slots; i++ {
		s, err := convertSlot(info, rv.Index(i).Interface())
		if err != nil {
			return Value{}, fmt.Errorf("element %d: %w", i, err)
		}
		val.slot[i] = s
	}

	return val, nil
}

// Type returns the field type of the value.
func (v Value) Type() FieldType { return v.typ }

// IsValid reports whether the value carries a catalog type.
func (v Value) IsValid() bool { return v.typ.IsValid() }

// Len returns the number of slots.
func (v Value) Len() int { return v.typ.Slots() }

// Float returns the first slot converted to float64.
func (v Value) Float() float64 { return v.floatAt(0) }

// Int returns the first slot converted to int64.
func (v Value) Int() int64 { return v.intAt(0) }

// Uint returns the first slot converted to uint64.
func (v Value) Uint() uint64 { return v.uintAt(0) }

// Floats returns every slot converted to float64.
func (v Value) Floats() []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.floatAt(i)
	}

	return out
}

// Ints returns every slot converted to int64.
func (v Value) Ints() []int64 {
	out := make([]int64, v.Len())
	for i := range out {
		out[i] = v.intAt(i)
	}

	return out
}

// Uints returns every slot converted to uint64.
func (v Value) Uints() []uint64 {
	out := make([]uint64, v.Len())
	for i := range out {
		out[i] = v.uintAt(i)
	}

	return out
}

// Interface returns the value in its natural Go representation: int32, uint32, uint64,
// uint8, float64, [3]float64, [6]float64, [6]int32 or [6]uint32. It returns nil for
// an invalid value.
func (v Value) Interface() any {
	switch v.typ {
	case Int32Type:
		return int32(uint32(v.slot[0]))
	case Uint32Type:
		return uint32(v.slot[0])
	case Uint64Type:
		return v.slot[0]
	case Uint8Type:
		return uint8(v.slot[0])
	case DoubleType:
		return math.Float64frombits(v.slot[0])
	case Vector3DType:
		var out [3]float64
		for i := range out {
			out[i] = math.Float64frombits(v.slot[i])
		}
		return out
	case Vector6DType:
		var out [6]float64
		for i := range out {
			out[i] = math.Float64frombits(v.slot[i])
		}
		return out
	case Vector6Int32Type:
		var out [6]int32
		for i := range out {
			out[i] = int32(uint32(v.slot[i]))
		}
		return out
	case Vector6Uint32Type:
		var out [6]uint32
		for i := range out {
			out[i] = uint32(v.slot[i])
		}
		return out
	default:
		return nil
	}
}

// Equal reports whether v and o have the same type and identical slots.
func (v Value) Equal(o Value) bool {
	return v.typ == o.typ && v.slot == o.slot
}

// String implements fmt.Stringer.
func (v Value) String() string {
	if !v.IsValid() {
		return "<invalid>"
	}

	return fmt.Sprintf("%s(%v)", v.typ, v.Interface())
}

func (v Value) floatAt(i int) float64 {
	switch v.typ.info().kind {
	case floatKind:
		return math.Float64frombits(v.slot[i])
	case signedKind:
		return float64(int32(uint32(v.slot[i])))
	default:
		return float64(v.slot[i])
	}
}

func (v Value) intAt(i int) int64 {
	switch v.typ.info().kind {
	case floatKind:
		return int64(math.Float64frombits(v.slot[i]))
	case signedKind:
		return int64(int32(uint32(v.slot[i])))
	default:
		return int64(v.slot[i])
	}
}

func (v Value) uintAt(i int) uint64 {
	switch v.typ.info().kind {
	case floatKind:
		return uint64(math.Float64frombits(v.slot[i]))
	case signedKind:
		return uint64(int32(uint32(v.slot[i])))
	default:
		return v.slot[i]
	}
}

// appendTo appends the big-endian wire form of v to b.
func (v Value) appendTo(b []byte) []byte {
	info := v.typ.info()
	for i := 0; i < info.slots; i++ {
		switch info.width {
		case 1:
			b = append(b, byte(v.slot[i]))
		case 4:
			b = binary.BigEndian.AppendUint32(b, uint32(v.slot[i]))
		case 8:
			b = binary.BigEndian.AppendUint64(b, v.slot[i])
		}
	}

	return b
}

// decodeValue decodes a value of type t from the front of b. The caller guarantees len(b) >= t.Size().
func decodeValue(t FieldType, b []byte) Value {
	info := t.info()
	val := Value{typ: t}
	for i := 0; i < info.slots; i++ {
		off := i * info.width
		switch info.width {
		case 1:
			val.slot[i] = uint64(b[off])
		case 4:
			val.slot[i] = uint64(binary.BigEndian.Uint32(b[off:]))
		case 8:
			val.slot[i] = binary.BigEndian.Uint64(b[off:])
		}
	}

	return val
}

func convertSlot(info typeInfo, x any) (uint64, error) {
	switch info.kind {
	case floatKind:
		f, err := asFloat(x)
		if err != nil {
			return 0, err
		}
		return math.Float64bits(f), nil

	case signedKind:
		n, err := asInt(x)
		if err != nil {
			return 0, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return 0, fmt.Errorf("%w: %d does not fit %s", ErrValueOutOfRange, n, info.name)
		}
		return uint64(uint32(int32(n))), nil

	default:
		n, err := asUint(x)
		if err != nil {
			return 0, err
		}
		if info.width < 8 && n > (uint64(1)<<(8*info.width))-1 {
			return 0, fmt.Errorf("%w: %d does not fit %s", ErrValueOutOfRange, n, info.name)
		}
		return n, nil
	}
}

func asFloat(x any) (float64, error) {
	switch n := x.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%w: %T is not numeric", ErrTypeMismatch, x)
	}
}

func asInt(x any) (int64, error) {
	switch n := x.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint, uint8, uint16, uint32, uint64:
		u, _ := asUint(n)
		if u > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d", ErrValueOutOfRange, u)
		}
		return int64(u), nil
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	default:
		return 0, fmt.Errorf("%w: %T is not numeric", ErrTypeMismatch, x)
	}
}

func asUint(x any) (uint64, error) {
	switch n := x.(type) {
	case uint:
		return uint64(n), nil
	case uint8:
		return uint64(n), nil
	case uint16:
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case uint64:
		return n, nil
	case int, int8, int16, int32, int64:
		i, _ := asInt(n)
		if i < 0 {
			return 0, fmt.Errorf("%w: %d is negative", ErrValueOutOfRange, i)
		}
		return uint64(i), nil
	case float32:
		return floatToUint(float64(n))
	case float64:
		return floatToUint(n)
	default:
		return 0, fmt.Errorf("%w: %T is not numeric", ErrTypeMismatch, x)
	}
}

func floatToInt(f float64) (int64, error) {
	if math.Trunc(f) != f || f < -(1<<63) || f >= 1<<63 {
		return 0, fmt.Errorf("%w: %v is not an int64", ErrValueOutOfRange, f)
	}

	return int64(f), nil
}

func floatToUint(f float64) (uint64, error) {
	if math.Trunc(f) != f || f < 0 || f >= 1<<64 {
		return 0, fmt.Errorf("%w: %v is not a uint64", ErrValueOutOfRange, f)
	}

	return uint64(f), nil
}
