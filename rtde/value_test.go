package rtde

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueOf(t *testing.T) {
	tests := []struct {
		name    string
		typ     FieldType
		in      any
		want    Value
		wantErr error
	}{
		{name: "double from float64", typ: DoubleType, in: 1.5, want: NewDouble(1.5)},
		{name: "double from int", typ: DoubleType, in: 3, want: NewDouble(3)},
		{name: "int32 from int", typ: Int32Type, in: -7, want: NewInt32(-7)},
		{name: "int32 from integral float", typ: Int32Type, in: 12.0, want: NewInt32(12)},
		{name: "int32 min", typ: Int32Type, in: int64(math.MinInt32), want: NewInt32(math.MinInt32)},
		{name: "int32 overflow", typ: Int32Type, in: int64(math.MaxInt32) + 1, wantErr: ErrValueOutOfRange},
		{name: "int32 fractional", typ: Int32Type, in: 1.25, wantErr: ErrValueOutOfRange},
		{name: "uint8 max", typ: Uint8Type, in: 255, want: NewUint8(255)},
		{name: "uint8 overflow", typ: Uint8Type, in: 256, wantErr: ErrValueOutOfRange},
		{name: "uint32 negative", typ: Uint32Type, in: -1, wantErr: ErrValueOutOfRange},
		{name: "uint32 from float", typ: Uint32Type, in: float64(math.MaxUint32), want: NewUint32(math.MaxUint32)},
		{name: "uint64 max", typ: Uint64Type, in: uint64(math.MaxUint64), want: NewUint64(math.MaxUint64)},
		{name: "uint64 NaN", typ: Uint64Type, in: math.NaN(), wantErr: ErrValueOutOfRange},
		{name: "string rejected", typ: DoubleType, in: "1.0", wantErr: ErrTypeMismatch},
		{name: "bool rejected", typ: Uint8Type, in: true, wantErr: ErrTypeMismatch},
		{name: "vector3d from slice", typ: Vector3DType, in: []float64{1, 2, 3}, want: NewVector3D([3]float64{1, 2, 3})},
		{name: "vector6d from array", typ: Vector6DType, in: [6]float64{1, 2, 3, 4, 5, 6}, want: NewVector6D([6]float64{1, 2, 3, 4, 5, 6})},
		{name: "vector6d from any slice", typ: Vector6DType, in: []any{1, 2.0, 3, 4, 5, 6}, want: NewVector6D([6]float64{1, 2, 3, 4, 5, 6})},
		{name: "vector6d wrong length", typ: Vector6DType, in: []float64{1, 2, 3}, wantErr: ErrLengthMismatch},
		{name: "vector from scalar", typ: Vector3DType, in: 1.0, wantErr: ErrTypeMismatch},
		{name: "vector6int32 element overflow", typ: Vector6Int32Type, in: []int64{0, 0, 0, 0, 0, math.MaxInt64}, wantErr: ErrValueOutOfRange},
		{name: "vector6uint32 from ints", typ: Vector6Uint32Type, in: []int{1, 2, 3, 4, 5, 6}, want: NewVector6Uint32([6]uint32{1, 2, 3, 4, 5, 6})},
		{name: "value passthrough", typ: DoubleType, in: NewDouble(2), want: NewDouble(2)},
		{name: "value type mismatch", typ: Int32Type, in: NewDouble(2), wantErr: ErrTypeMismatch},
		{name: "invalid type", typ: InvalidType, in: 1, wantErr: ErrUnknownFieldType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			got, err := ValueOf(tt.typ, tt.in)
			if tt.wantErr != nil {
				require.ErrorIs(err, tt.wantErr)
				return
			}
			require.NoError(err)
			require.True(tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestValueAccessors(t *testing.T) {
	require := require.New(t)

	v := NewInt32(-5)
	require.Equal(int64(-5), v.Int())
	require.InDelta(-5.0, v.Float(), 0)
	require.Equal(int32(-5), v.Interface())

	u := NewUint32(0x401)
	require.Equal(uint64(0x401), u.Uint())
	require.Equal(uint32(0x401), u.Interface())

	pose := NewVector6D([6]float64{0.1, 0.2, 0.3, 0, 3.14, 0})
	require.Equal(6, pose.Len())
	require.Equal([]float64{0.1, 0.2, 0.3, 0, 3.14, 0}, pose.Floats())
	require.Equal([6]float64{0.1, 0.2, 0.3, 0, 3.14, 0}, pose.Interface())

	ints := NewVector6Int32([6]int32{-1, 2, -3, 4, -5, 6})
	require.Equal([]int64{-1, 2, -3, 4, -5, 6}, ints.Ints())

	var zero Value
	require.False(zero.IsValid())
	require.Nil(zero.Interface())
	require.Equal("<invalid>", zero.String())

	nan := NewDouble(math.NaN())
	require.True(nan.Equal(NewDouble(math.NaN())))
	require.False(NewDouble(1).Equal(NewInt32(1)))
}
