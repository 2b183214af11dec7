package urscript

import (
	"fmt"
	"strings"
)

const (
	startedMarker  = "  write_output_boolean_register(0, True)\n"
	finishedMarker = "\n  write_output_boolean_register(1, True)\n"

	// ResetProgram clears both status registers. The monitor sends it when it exits.
	ResetProgram = "def resetRegister():\n" +
		"  write_output_boolean_register(0, False)\n" +
		"  write_output_boolean_register(1, False)\n" +
		"end\n"
)

// Instrumenter rewrites a program so that it writes output boolean register 0 when it
// starts and register 1 when it finishes.
type Instrumenter interface {
	Instrument(program string) (string, error)
}

// TokenInstrumenter instruments programs by a textual scan instead of parsing.
//
// The start marker goes right after the first "):\n" that closes a definition header,
// the finish marker right before the last standalone "end" token. A text without any
// "def " is taken as a sequence of statements and wrapped in a "def script():"
// definition carrying both markers.
//
// Texts with several top-level definitions, or with nested definitions after the main
// one, are not instrumented reliably: the finish marker lands in whichever definition
// owns the last "end".
type TokenInstrumenter struct{}

var _ Instrumenter = TokenInstrumenter{}

// Instrument implements Instrumenter.
func (TokenInstrumenter) Instrument(program string) (string, error) {
	if !strings.Contains(program, "def ") {
		return "def script():\n" + startedMarker + "  " + program + finishedMarker + "end\n", nil
	}

	header := strings.Index(program, "):\n")
	if header < 0 {
		return "", fmt.Errorf("%w: no definition header ending in \"):\\n\"", ErrMalformedProgram)
	}
	header += len("):\n")
	program = program[:header] + startedMarker + program[header:]

	end := lastEndToken(program, header+len(startedMarker))
	if end < 0 {
		return "", fmt.Errorf("%w: no closing end", ErrMalformedProgram)
	}

	return program[:end] + finishedMarker + program[end:], nil
}

// lastEndToken returns the index of the last "end" at or after from that is neither
// preceded nor followed by an identifier character, or -1.
func lastEndToken(s string, from int) int {
	for i := strings.LastIndex(s, "end"); i >= from; i = strings.LastIndex(s[:i], "end") {
		if (i == 0 || !isIdentByte(s[i-1])) && (i+3 == len(s) || !isIdentByte(s[i+3])) {
			return i
		}
	}

	return -1
}

func isIdentByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}
