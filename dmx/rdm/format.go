package rdm

import (
	"encoding/binary"
	"fmt"
)

// DataType classifies a parameter's storage for default-value
// initialization and ASCII-safe copying (§4.4).
type DataType int

const (
	DataTypeBinary DataType = iota
	DataTypeASCII
)

// PackFormat packs values according to a format string of 'b' (byte),
// 'w' (16-bit word, big-endian), and 'l' (32-bit long, big-endian), e.g.
// "bwl" packs one byte, one word, and one long in sequence. Values must be
// uint64-representable and are truncated to the field width.
func PackFormat(format string, values ...uint64) ([]byte, error) {
	if len(format) != len(values) {
		return nil, fmt.Errorf("rdm: format %q wants %d values, got %d", format, len(format), len(values))
	}

	var out []byte
	for i, c := range format {
		v := values[i]
		switch c {
		case 'b':
			out = append(out, byte(v))
		case 'w':
			var b [2]byte
			binary.BigEndian.PutUint16(b[:], uint16(v))
			out = append(out, b[:]...)
		case 'l':
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], uint32(v))
			out = append(out, b[:]...)
		default:
			return nil, fmt.Errorf("rdm: unknown format character %q", c)
		}
	}

	return out, nil
}

// UnpackFormat is the inverse of PackFormat.
func UnpackFormat(format string, data []byte) ([]uint64, error) {
	out := make([]uint64, 0, len(format))
	off := 0

	for _, c := range format {
		switch c {
		case 'b':
			if off+1 > len(data) {
				return nil, fmt.Errorf("rdm: short data for format %q", format)
			}
			out = append(out, uint64(data[off]))
			off++
		case 'w':
			if off+2 > len(data) {
				return nil, fmt.Errorf("rdm: short data for format %q", format)
			}
			out = append(out, uint64(binary.BigEndian.Uint16(data[off:])))
			off += 2
		case 'l':
			if off+4 > len(data) {
				return nil, fmt.Errorf("rdm: short data for format %q", format)
			}
			out = append(out, uint64(binary.BigEndian.Uint32(data[off:])))
			off += 4
		default:
			return nil, fmt.Errorf("rdm: unknown format character %q", c)
		}
	}

	return out, nil
}

// FormatSize returns the byte length a format string packs to.
func FormatSize(format string) int {
	n := 0
	for _, c := range format {
		switch c {
		case 'b':
			n++
		case 'w':
			n += 2
		case 'l':
			n += 4
		}
	}
	return n
}
