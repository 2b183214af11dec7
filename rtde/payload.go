package rtde

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ControllerVersion is the firmware version reported by GET_URCONTROL_VERSION.
type ControllerVersion struct {
	Major  uint32
	Minor  uint32
	Bugfix uint32
	Build  uint32
}

// MinControllerVersion is the oldest controller firmware supporting RTDE.
var MinControllerVersion = ControllerVersion{Major: 3, Minor: 2, Bugfix: 19171}

// Less reports whether v is older than o, comparing major, minor and bugfix in that order.
// The build number is not compared.
func (v ControllerVersion) Less(o ControllerVersion) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor < o.Minor
	}

	return v.Bugfix < o.Bugfix
}

// String returns the dotted version, e.g. "5.9.0.0".
func (v ControllerVersion) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Bugfix, v.Build)
}

// Encode returns the 16 byte reply payload.
func (v ControllerVersion) Encode() []byte {
	b := make([]byte, 0, 16)
	b = binary.BigEndian.AppendUint32(b, v.Major)
	b = binary.BigEndian.AppendUint32(b, v.Minor)
	b = binary.BigEndian.AppendUint32(b, v.Bugfix)
	b = binary.BigEndian.AppendUint32(b, v.Build)

	return b
}

// DecodeControllerVersion decodes a 12 or 16 byte controller version reply.
// The build number is 0 when the reply has 12 bytes.
func DecodeControllerVersion(p []byte) (ControllerVersion, error) {
	if len(p) != 12 && len(p) != 16 {
		return ControllerVersion{}, fmt.Errorf("%w: controller version has %d bytes", ErrMalformedPayload, len(p))
	}

	v := ControllerVersion{
		Major:  binary.BigEndian.Uint32(p[0:]),
		Minor:  binary.BigEndian.Uint32(p[4:]),
		Bugfix: binary.BigEndian.Uint32(p[8:]),
	}
	if len(p) == 16 {
		v.Build = binary.BigEndian.Uint32(p[12:])
	}

	return v, nil
}

// EncodeProtocolVersionRequest returns the REQUEST_PROTOCOL_VERSION payload.
func EncodeProtocolVersionRequest(version uint16) []byte {
	return binary.BigEndian.AppendUint16(make([]byte, 0, 2), version)
}

// DecodeProtocolVersionRequest decodes a REQUEST_PROTOCOL_VERSION request payload.
func DecodeProtocolVersionRequest(p []byte) (uint16, error) {
	if len(p) != 2 {
		return 0, fmt.Errorf("%w: protocol version request has %d bytes", ErrMalformedPayload, len(p))
	}

	return binary.BigEndian.Uint16(p), nil
}

// EncodeBoolAck returns a one byte acknowledgement payload.
func EncodeBoolAck(ok bool) []byte {
	if ok {
		return []byte{1}
	}

	return []byte{0}
}

// DecodeBoolAck decodes the one byte acknowledgement of protocol version, start and pause requests.
func DecodeBoolAck(p []byte) (bool, error) {
	if len(p) != 1 {
		return false, fmt.Errorf("%w: ack has %d bytes", ErrMalformedPayload, len(p))
	}

	return p[0] != 0, nil
}

// MessageLevel is the severity of a controller text message.
type MessageLevel uint8

// Text message severities.
const (
	ExceptionMessage MessageLevel = iota
	ErrorMessage
	WarningMessage
	InfoMessage
)

// String returns the lower-case severity name.
func (l MessageLevel) String() string {
	switch l {
	case ExceptionMessage:
		return "exception"
	case ErrorMessage:
		return "error"
	case WarningMessage:
		return "warning"
	case InfoMessage:
		return "info"
	default:
		return fmt.Sprintf("level(%d)", uint8(l))
	}
}

// TextMessage is a log message sent by the controller.
type TextMessage struct {
	Level MessageLevel
	Text  string
}

// Encode returns the TEXT_MESSAGE payload.
func (m TextMessage) Encode() []byte {
	b := make([]byte, 0, 1+len(m.Text))
	b = append(b, byte(m.Level))

	return append(b, m.Text...)
}

// DecodeTextMessage decodes a TEXT_MESSAGE payload: a level byte followed by ASCII text.
func DecodeTextMessage(p []byte) (TextMessage, error) {
	if len(p) < 1 {
		return TextMessage{}, fmt.Errorf("%w: empty text message", ErrMalformedPayload)
	}

	return TextMessage{Level: MessageLevel(p[0]), Text: string(p[1:])}, nil
}

// EncodeSetupRequest returns the SETUP_OUTPUTS / SETUP_INPUTS request payload: the
// comma-joined field names.
func EncodeSetupRequest(names []string) []byte {
	return []byte(strings.Join(names, ","))
}

// DecodeSetupRequest splits a setup request payload into field names.
func DecodeSetupRequest(p []byte) []string {
	if len(p) == 0 {
		return nil
	}

	return strings.Split(string(p), ",")
}

// SetupAck is the controller reply to a recipe setup request.
type SetupAck struct {
	// ID is the recipe id; only input setup replies carry one.
	ID    uint8
	HasID bool
	// Types holds one type token per requested field, NOT_FOUND and IN_USE included.
	Types []string
}

// Encode returns the reply payload.
func (a SetupAck) Encode() []byte {
	var b []byte
	if a.HasID {
		b = append(b, a.ID)
	}

	return append(b, strings.Join(a.Types, ",")...)
}

// Recipe builds the recipe described by the acknowledgement for the requested names.
func (a SetupAck) Recipe(names []string) (*Recipe, error) {
	if a.HasID {
		return NewInputRecipe(a.ID, names, a.Types)
	}

	return NewRecipe(names, a.Types)
}

// DecodeSetupAck decodes a setup reply. Input replies (hasID true) start with the recipe id byte.
func DecodeSetupAck(p []byte, hasID bool) (SetupAck, error) {
	var ack SetupAck
	if hasID {
		if len(p) < 1 {
			return ack, fmt.Errorf("%w: setup reply without recipe id", ErrMalformedPayload)
		}
		ack.ID = p[0]
		ack.HasID = true
		p = p[1:]
	}

	if len(p) == 0 {
		return ack, fmt.Errorf("%w: setup reply without types", ErrMalformedPayload)
	}
	ack.Types = strings.Split(string(p), ",")

	return ack, nil
}
