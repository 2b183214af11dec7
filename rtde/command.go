package rtde

import "fmt"

// Command is the single byte command code carried in every RTDE frame header.
type Command uint8

// RTDE command codes.
const (
	CmdRequestProtocolVersion Command = 'V' // 86
	CmdGetURControlVersion    Command = 'v' // 118
	CmdTextMessage            Command = 'M' // 77
	CmdDataPackage            Command = 'U' // 85
	CmdSetupOutputs           Command = 'O' // 79
	CmdSetupInputs            Command = 'I' // 73
	CmdStart                  Command = 'S' // 83
	CmdPause                  Command = 'P' // 80
)

// IsKnown reports whether c is one of the defined command codes.
func (c Command) IsKnown() bool {
	switch c {
	case CmdRequestProtocolVersion, CmdGetURControlVersion, CmdTextMessage, CmdDataPackage,
		CmdSetupOutputs, CmdSetupInputs, CmdStart, CmdPause:
		return true
	default:
		return false
	}
}

// String returns the protocol name of the command.
func (c Command) String() string {
	switch c {
	case CmdRequestProtocolVersion:
		return "REQUEST_PROTOCOL_VERSION"
	case CmdGetURControlVersion:
		return "GET_URCONTROL_VERSION"
	case CmdTextMessage:
		return "TEXT_MESSAGE"
	case CmdDataPackage:
		return "DATA_PACKAGE"
	case CmdSetupOutputs:
		return "CONTROL_PACKAGE_SETUP_OUTPUTS"
	case CmdSetupInputs:
		return "CONTROL_PACKAGE_SETUP_INPUTS"
	case CmdStart:
		return "CONTROL_PACKAGE_START"
	case CmdPause:
		return "CONTROL_PACKAGE_PAUSE"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(c))
	}
}
