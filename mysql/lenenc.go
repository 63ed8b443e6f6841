package mysql

import "encoding/binary"

// Length-encoded integers and strings, spec.md §4.1. This is the one
// encoding used throughout every MySQL packet: column counts, field
// lengths, OK-packet affected-row counts, and so on.

// PutLengthEncodedInt appends the shortest length-encoded-integer form
// of n to dst and returns the extended slice.
func PutLengthEncodedInt(dst []byte, n uint64) []byte {
	switch {
	case n < 251:
		return append(dst, byte(n))
	case n < 1<<16:
		return append(dst, LenEnc2ByteByte, byte(n), byte(n>>8))
	case n < 1<<24:
		return append(dst, LenEnc3ByteByte, byte(n), byte(n>>8), byte(n>>16))
	default:
		b := make([]byte, 9)
		b[0] = LenEnc8ByteByte
		binary.LittleEndian.PutUint64(b[1:], n)
		return append(dst, b...)
	}
}

// ReadLengthEncodedInt decodes a length-encoded integer from the head of
// data. It reports isNull when the sentinel 0xFB is seen (valid only in
// a value context, never for pure integer fields per spec.md §4.1) and
// n, the number of bytes consumed from data.
func ReadLengthEncodedInt(data []byte) (value uint64, isNull bool, n int) {
	if len(data) == 0 {
		return 0, false, 0
	}
	switch data[0] {
	case LenEncNullByte:
		return 0, true, 1
	case LenEnc2ByteByte:
		if len(data) < 3 {
			return 0, false, 0
		}
		return uint64(data[1]) | uint64(data[2])<<8, false, 3
	case LenEnc3ByteByte:
		if len(data) < 4 {
			return 0, false, 0
		}
		return uint64(data[1]) | uint64(data[2])<<8 | uint64(data[3])<<16, false, 4
	case LenEnc8ByteByte:
		if len(data) < 9 {
			return 0, false, 0
		}
		return binary.LittleEndian.Uint64(data[1:9]), false, 9
	default:
		return uint64(data[0]), false, 1
	}
}

// ReadLengthEncodedBytes decodes a length-encoded string: a
// length-encoded integer immediately followed by that many raw bytes.
// isNull mirrors the 0xFB sentinel of ReadLengthEncodedInt.
func ReadLengthEncodedBytes(data []byte) (value []byte, isNull bool, n int, ok bool) {
	strLen, isNull, m := ReadLengthEncodedInt(data)
	if m == 0 {
		return nil, false, 0, false
	}
	if isNull {
		return nil, true, m, true
	}
	end := m + int(strLen)
	if end > len(data) || end < m {
		return nil, false, 0, false
	}
	return data[m:end], false, end, true
}

// PutLengthEncodedBytes appends the length-encoded-string form of b.
func PutLengthEncodedBytes(dst []byte, b []byte) []byte {
	dst = PutLengthEncodedInt(dst, uint64(len(b)))
	return append(dst, b...)
}

// LengthEncodedIntSize returns the number of bytes PutLengthEncodedInt
// would emit for n, without allocating.
func LengthEncodedIntSize(n uint64) int {
	switch {
	case n < 251:
		return 1
	case n < 1<<16:
		return 3
	case n < 1<<24:
		return 4
	default:
		return 9
	}
}
