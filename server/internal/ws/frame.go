package ws

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

const (
	finBit = 0x80

	opText  = 0x1
	opClose = 0x8

	maskBit = 0x80
)

// closeFrame is an empty close frame with no status code.
var closeFrame = []byte{finBit | opClose, 0x00}

var errFrameTooLarge = errors.New("ws: inbound frame length overflows")

// EncodeText returns payload as a single unmasked text frame.
func EncodeText(payload []byte) []byte {
	return AppendText(make([]byte, 0, headerLen(len(payload))+len(payload)), payload)
}

// AppendText appends the text frame for payload to dst.
func AppendText(dst, payload []byte) []byte {
	dst = append(dst, finBit|opText)
	n := len(payload)
	switch {
	case n < 126:
		dst = append(dst, byte(n))
	case n < 65536:
		dst = append(dst, 126)
		dst = binary.BigEndian.AppendUint16(dst, uint16(n))
	default:
		dst = append(dst, 127)
		dst = binary.BigEndian.AppendUint64(dst, uint64(n))
	}
	return append(dst, payload...)
}

func headerLen(n int) int {
	switch {
	case n < 126:
		return 2
	case n < 65536:
		return 4
	default:
		return 10
	}
}

// readFrame consumes one inbound frame, discards its payload and returns the
// opcode. Fragmentation and masking are skipped over, not interpreted.
func readFrame(r *bufio.Reader) (byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, err
	}
	op := hdr[0] & 0x0F

	n := uint64(hdr[1] &^ maskBit)
	switch n {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return 0, err
		}
		n = uint64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return 0, err
		}
		n = binary.BigEndian.Uint64(ext[:])
	}
	if n > math.MaxInt64-4 {
		return 0, errFrameTooLarge
	}
	if hdr[1]&maskBit != 0 {
		n += 4 // masking key
	}

	if _, err := io.CopyN(io.Discard, r, int64(n)); err != nil {
		return 0, err
	}
	return op, nil
}
