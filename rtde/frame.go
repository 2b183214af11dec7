package rtde

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the size of the frame header: uint16 size plus the command byte.
	HeaderSize = 3
	// MaxFrameSize is the largest frame the 16-bit size field can declare.
	MaxFrameSize = 65535
)

// Frame is one length-prefixed, command-tagged unit of the RTDE protocol.
type Frame struct {
	Cmd     Command
	Payload []byte
}

// EncodeFrame builds the wire form of a frame.
func EncodeFrame(cmd Command, payload []byte) ([]byte, error) {
	return AppendFrame(nil, cmd, payload)
}

// AppendFrame appends the wire form of a frame to b.
func AppendFrame(b []byte, cmd Command, payload []byte) ([]byte, error) {
	size := HeaderSize + len(payload)
	if size > MaxFrameSize {
		return b, fmt.Errorf("%w: %s with %d payload bytes", ErrFrameTooLarge, cmd, len(payload))
	}

	b = binary.BigEndian.AppendUint16(b, uint16(size))
	b = append(b, byte(cmd))
	b = append(b, payload...)

	return b, nil
}

// FrameAssembler re-assembles frames from a byte stream received in arbitrary chunks.
//
// Feeding a stream in any number of chunks yields the same frames, in the same order,
// as feeding it at once. An incomplete trailing frame is kept until the next Feed.
// A header declaring a size below HeaderSize or a zero command byte cannot be
// re-synchronized; the assembler then drops everything buffered.
//
// FrameAssembler is not safe for concurrent use.
type FrameAssembler struct {
	buf       []byte
	discarded uint64
}

// Feed appends chunk to the stream and returns every frame completed by it.
// The returned payloads do not alias chunk or the assembler's buffer.
func (a *FrameAssembler) Feed(chunk []byte) []Frame {
	a.buf = append(a.buf, chunk...)

	var frames []Frame
	off := 0
	for len(a.buf)-off >= HeaderSize {
		size := int(binary.BigEndian.Uint16(a.buf[off:]))
		cmd := Command(a.buf[off+2])
		if size < HeaderSize || cmd == 0 {
			a.discarded += uint64(len(a.buf) - off)
			a.buf = a.buf[:0]

			return frames
		}
		if len(a.buf)-off < size {
			break
		}

		payload := make([]byte, size-HeaderSize)
		copy(payload, a.buf[off+HeaderSize:off+size])
		frames = append(frames, Frame{Cmd: cmd, Payload: payload})
		off += size
	}

	n := copy(a.buf, a.buf[off:])
	a.buf = a.buf[:n]

	return frames
}

// Buffered returns the number of bytes held for an incomplete frame.
func (a *FrameAssembler) Buffered() int { return len(a.buf) }

// Discarded returns the number of bytes dropped because of corrupt headers.
func (a *FrameAssembler) Discarded() uint64 { return a.discarded }

// Reset drops any buffered bytes, e.g. after the underlying connection was replaced.
func (a *FrameAssembler) Reset() {
	a.buf = a.buf[:0]
}
