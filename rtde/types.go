package rtde

import (
	"fmt"
	"strings"
)

// FieldType is a recipe field type from the RTDE type catalog.
type FieldType uint8

// Field types. The zero value InvalidType never appears in a valid recipe.
const (
	InvalidType FieldType = iota
	Int32Type
	Uint32Type
	Uint64Type
	Uint8Type
	DoubleType
	Vector3DType
	Vector6DType
	Vector6Int32Type
	Vector6Uint32Type
)

// Controller tokens returned in place of a type during recipe setup.
const (
	notFoundToken = "NOT_FOUND"
	inUseToken    = "IN_USE"
)

type slotKind uint8

const (
	signedKind slotKind = iota
	unsignedKind
	floatKind
)

type typeInfo struct {
	name  string
	slots int
	width int
	kind  slotKind
}

var typeCatalog = [...]typeInfo{
	InvalidType:       {name: "INVALID"},
	Int32Type:         {name: "INT32", slots: 1, width: 4, kind: signedKind},
	Uint32Type:        {name: "UINT32", slots: 1, width: 4, kind: unsignedKind},
	Uint64Type:        {name: "UINT64", slots: 1, width: 8, kind: unsignedKind},
	Uint8Type:         {name: "UINT8", slots: 1, width: 1, kind: unsignedKind},
	DoubleType:        {name: "DOUBLE", slots: 1, width: 8, kind: floatKind},
	Vector3DType:      {name: "VECTOR3D", slots: 3, width: 8, kind: floatKind},
	Vector6DType:      {name: "VECTOR6D", slots: 6, width: 8, kind: floatKind},
	Vector6Int32Type:  {name: "VECTOR6INT32", slots: 6, width: 4, kind: signedKind},
	Vector6Uint32Type: {name: "VECTOR6UINT32", slots: 6, width: 4, kind: unsignedKind},
}

// maxSlots is the slot count of the widest vector type.
const maxSlots = 6

// ParseFieldType parses a catalog type name such as "DOUBLE" or "VECTOR6D".
//
// The controller tokens NOT_FOUND and IN_USE map to ErrFieldNotFound and ErrFieldInUse,
// any other unrecognized token to ErrUnknownFieldType.
func ParseFieldType(name string) (FieldType, error) {
	token := strings.TrimSpace(name)
	switch token {
	case notFoundToken:
		return InvalidType, ErrFieldNotFound
	case inUseToken:
		return InvalidType, ErrFieldInUse
	}

	for t := Int32Type; t <= Vector6Uint32Type; t++ {
		if typeCatalog[t].name == token {
			return t, nil
		}
	}

	return InvalidType, fmt.Errorf("%w: %q", ErrUnknownFieldType, name)
}

// IsValid reports whether t is a catalog type.
func (t FieldType) IsValid() bool {
	return t > InvalidType && t <= Vector6Uint32Type
}

// String returns the catalog name of the type.
func (t FieldType) String() string {
	if int(t) >= len(typeCatalog) {
		return fmt.Sprintf("FieldType(%d)", uint8(t))
	}

	return typeCatalog[t].name
}

// Slots returns the number of scalar slots, 1 for scalar types.
func (t FieldType) Slots() int { return t.info().slots }

// Width returns the wire width of one slot in bytes.
func (t FieldType) Width() int { return t.info().width }

// Size returns the wire size of a value of this type in bytes.
func (t FieldType) Size() int { return t.Slots() * t.Width() }

// IsVector reports whether the type has more than one slot.
func (t FieldType) IsVector() bool { return t.Slots() > 1 }

func (t FieldType) info() typeInfo {
	if !t.IsValid() {
		return typeCatalog[InvalidType]
	}

	return typeCatalog[t]
}
