package rtde

import "errors"

var (
	// ErrUnknownFieldType indicates that a field type token is not part of the type catalog.
	ErrUnknownFieldType = errors.New("rtde: unknown field type")

	// ErrFieldNotFound indicates that the controller does not know a requested field name.
	ErrFieldNotFound = errors.New("rtde: field not found on controller")

	// ErrFieldInUse indicates that an input field is already claimed by another RTDE client.
	ErrFieldInUse = errors.New("rtde: field is in use by another client")

	// ErrLengthMismatch indicates that two parallel sequences differ in length.
	ErrLengthMismatch = errors.New("rtde: length mismatch")

	// ErrEmptyFieldName indicates that a recipe contains an empty field name.
	ErrEmptyFieldName = errors.New("rtde: empty field name")

	// ErrDuplicateField indicates that a recipe lists the same field twice.
	ErrDuplicateField = errors.New("rtde: duplicate field name")

	// ErrUnknownField indicates that a field name is not part of the recipe.
	ErrUnknownField = errors.New("rtde: field is not part of the recipe")

	// ErrFieldUninitialized indicates that a record is packed while a field is still unset.
	ErrFieldUninitialized = errors.New("rtde: field is not initialized")

	// ErrTypeMismatch indicates that a value does not fit the type of the field it is assigned to.
	ErrTypeMismatch = errors.New("rtde: type mismatch")

	// ErrValueOutOfRange indicates that a value cannot be represented by the wire width of its field.
	ErrValueOutOfRange = errors.New("rtde: value out of range")
)

var (
	// ErrRecipeMismatch indicates that a record is packed by a recipe it does not belong to.
	ErrRecipeMismatch = errors.New("rtde: record belongs to another recipe")

	// ErrRecipeIDMismatch indicates that a payload carries a recipe id different from the recipe's.
	ErrRecipeIDMismatch = errors.New("rtde: recipe id mismatch")

	// ErrShortPayload indicates that a payload is shorter than the layout it is decoded against.
	ErrShortPayload = errors.New("rtde: payload too short")

	// ErrMalformedPayload indicates that a control payload does not have the expected shape.
	ErrMalformedPayload = errors.New("rtde: malformed payload")

	// ErrFrameTooLarge indicates that a frame would exceed the 16-bit size field.
	ErrFrameTooLarge = errors.New("rtde: frame exceeds 65535 bytes")
)

var (
	// ErrInvalidTransition is returned when an attempt is made to transition the session
	// state to a state not reachable from the current one.
	ErrInvalidTransition = errors.New("rtde: invalid state transition")

	// ErrUnsupportedController indicates that the controller firmware is older than the minimum supported version.
	ErrUnsupportedController = errors.New("rtde: unsupported controller version")

	// ErrProtocolVersion indicates that the controller refused the requested protocol version.
	ErrProtocolVersion = errors.New("rtde: protocol version not accepted")
)
