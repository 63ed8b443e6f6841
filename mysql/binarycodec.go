package mysql

import (
	"encoding/binary"
	"math"
)

// nullBitmapSize returns ceil((fieldCount+extraBits)/8).
func nullBitmapSize(fieldCount, extraBits int) int {
	return (fieldCount + extraBits + 7) / 8
}

// RowNullBitmapSize is the bitmap length for a binary result-set row,
// spec.md §4.3: offset 2, so two extra header bits are folded in.
func RowNullBitmapSize(fieldCount int) int { return nullBitmapSize(fieldCount, 2) }

// ParamNullBitmapSize is the bitmap length for COM_STMT_EXECUTE
// parameters, spec.md §4.3: no offset.
func ParamNullBitmapSize(fieldCount int) int { return nullBitmapSize(fieldCount, 0) }

func bitmapBitSet(bitmap []byte, k, offset int) bool {
	idx := (k + offset) >> 3
	if idx >= len(bitmap) {
		return false
	}
	return bitmap[idx]&(1<<uint((k+offset)&7)) != 0
}

func setBitmapBit(bitmap []byte, k, offset int) {
	bitmap[(k+offset)>>3] |= 1 << uint((k+offset)&7)
}

// DecodeBinaryRow decodes one binary-protocol result-set row, spec.md
// §4.3. data is the full row packet payload including the leading 0x00
// packet-header byte (this is a row-packet marker, not the OK-packet
// leading byte — spec.md §9 flags the conflation as a reference-source
// bug this implementation avoids by never routing row bytes through
// IsOKPacket).
func DecodeBinaryRow(data []byte, columns []*ColumnDef) ([]Value, error) {
	if len(data) < 1 || data[0] != 0x00 {
		return nil, newDecodeErrorf("binaryRow", "missing 0x00 row header")
	}
	bitmapLen := RowNullBitmapSize(len(columns))
	if 1+bitmapLen > len(data) {
		return nil, newDecodeError("binaryRow.bitmap", errShortPacket)
	}
	bitmap := data[1 : 1+bitmapLen]
	pos := 1 + bitmapLen

	row := make([]Value, len(columns))
	for i, col := range columns {
		if bitmapBitSet(bitmap, i, 2) {
			row[i] = Null()
			continue
		}
		v, n, err := decodeBinaryField(col, data[pos:])
		if err != nil {
			return nil, err
		}
		pos += n
		row[i] = v
	}
	return row, nil
}

func decodeBinaryField(col *ColumnDef, data []byte) (Value, int, error) {
	switch col.ColumnType {
	case TypeNull:
		return Null(), 0, nil

	case TypeTiny:
		if len(data) < 1 {
			return Value{}, 0, newDecodeError("binaryField.tiny", errShortPacket)
		}
		if col.Unsigned() {
			return NewInt8U(data[0]), 1, nil
		}
		return NewInt8(int8(data[0])), 1, nil

	case TypeShort, TypeYear:
		if len(data) < 2 {
			return Value{}, 0, newDecodeError("binaryField.short", errShortPacket)
		}
		u := binary.LittleEndian.Uint16(data)
		if col.ColumnType == TypeYear {
			return NewYear(u), 2, nil
		}
		if col.Unsigned() {
			return NewInt16U(u), 2, nil
		}
		return NewInt16(int16(u)), 2, nil

	case TypeLong, TypeInt24:
		if len(data) < 4 {
			return Value{}, 0, newDecodeError("binaryField.long", errShortPacket)
		}
		u := binary.LittleEndian.Uint32(data)
		if col.Unsigned() {
			return NewInt32U(u), 4, nil
		}
		return NewInt32(int32(u)), 4, nil

	case TypeLongLong:
		if len(data) < 8 {
			return Value{}, 0, newDecodeError("binaryField.longlong", errShortPacket)
		}
		u := binary.LittleEndian.Uint64(data)
		if col.Unsigned() {
			return NewInt64U(u), 8, nil
		}
		return NewInt64(int64(u)), 8, nil

	case TypeFloat:
		if len(data) < 4 {
			return Value{}, 0, newDecodeError("binaryField.float", errShortPacket)
		}
		return NewFloat(math.Float32frombits(binary.LittleEndian.Uint32(data))), 4, nil

	case TypeDouble:
		if len(data) < 8 {
			return Value{}, 0, newDecodeError("binaryField.double", errShortPacket)
		}
		return NewDouble(math.Float64frombits(binary.LittleEndian.Uint64(data))), 8, nil

	case TypeTimestamp, TypeDateTime:
		return decodeBinaryDateTime(data)

	case TypeDate, TypeNewDate:
		return decodeBinaryDate(data)

	case TypeTime:
		return decodeBinaryTime(data)

	case TypeDecimal, TypeNewDecimal, TypeTimestamp2, TypeDateTime2, TypeTime2:
		return Value{}, 0, newDecodeErrorf("binaryField", "unsupported binary type 0x%02x", byte(col.ColumnType))

	case TypeGeometry:
		raw, n, ok := readBinaryLenEncBytes(data)
		if !ok {
			return Value{}, 0, newDecodeError("binaryField.geometry", errShortPacket)
		}
		return NewBytes(raw), n, nil

	default:
		raw, n, ok := readBinaryLenEncBytes(data)
		if !ok {
			return Value{}, 0, newDecodeError("binaryField.string", errShortPacket)
		}
		if col.IsBinary() {
			return NewBytes(raw), n, nil
		}
		return NewText(decodeToUTF8(col.CharSet, raw)), n, nil
	}
}

func readBinaryLenEncBytes(data []byte) ([]byte, int, bool) {
	raw, isNull, n, ok := ReadLengthEncodedBytes(data)
	if !ok {
		return nil, 0, false
	}
	if isNull {
		return nil, n, true
	}
	return raw, n, true
}

func decodeBinaryDateTime(data []byte) (Value, int, error) {
	n, isNull, m := ReadLengthEncodedInt(data)
	if m == 0 {
		return Value{}, 0, newDecodeError("binaryField.datetime", errShortPacket)
	}
	if isNull {
		return Null(), m, nil
	}
	pos := m
	var dt DateTime
	switch n {
	case 0:
	case 4, 7, 11:
		if pos+4 > len(data) {
			return Value{}, 0, newDecodeError("binaryField.datetime", errShortPacket)
		}
		dt.Year = binary.LittleEndian.Uint16(data[pos:])
		dt.Month = uint16(data[pos+2])
		dt.Day = uint16(data[pos+3])
		pos += 4
		if n >= 7 {
			if pos+3 > len(data) {
				return Value{}, 0, newDecodeError("binaryField.datetime", errShortPacket)
			}
			dt.Hour = data[pos]
			dt.Minute = data[pos+1]
			dt.Second = data[pos+2]
			pos += 3
		}
		if n == 11 {
			if pos+4 > len(data) {
				return Value{}, 0, newDecodeError("binaryField.datetime", errShortPacket)
			}
			dt.Microsecond = binary.LittleEndian.Uint32(data[pos:])
			pos += 4
		}
	default:
		return Value{}, 0, newDecodeErrorf("binaryField.datetime", "unexpected length %d", n)
	}
	return NewDateTime(dt), pos, nil
}

func decodeBinaryDate(data []byte) (Value, int, error) {
	n, isNull, m := ReadLengthEncodedInt(data)
	if m == 0 {
		return Value{}, 0, newDecodeError("binaryField.date", errShortPacket)
	}
	if isNull {
		return Null(), m, nil
	}
	pos := m
	var d Date
	switch n {
	case 0:
	case 4:
		if pos+4 > len(data) {
			return Value{}, 0, newDecodeError("binaryField.date", errShortPacket)
		}
		d.Year = binary.LittleEndian.Uint16(data[pos:])
		d.Month = uint16(data[pos+2])
		d.Day = uint16(data[pos+3])
		pos += 4
	default:
		return Value{}, 0, newDecodeErrorf("binaryField.date", "unexpected length %d", n)
	}
	return NewDate(d), pos, nil
}

// decodeBinaryTime parses TIME's on-wire form. Sign and day-count are
// present on the wire but discarded per spec.md §4.3.
func decodeBinaryTime(data []byte) (Value, int, error) {
	n, isNull, m := ReadLengthEncodedInt(data)
	if m == 0 {
		return Value{}, 0, newDecodeError("binaryField.time", errShortPacket)
	}
	if isNull {
		return Null(), m, nil
	}
	pos := m
	var t Time
	switch n {
	case 0:
	case 8, 12:
		if pos+8 > len(data) {
			return Value{}, 0, newDecodeError("binaryField.time", errShortPacket)
		}
		// data[pos] = sign, data[pos+1:pos+5] = days — both discarded.
		t.Hour = data[pos+5]
		t.Minute = data[pos+6]
		t.Second = data[pos+7]
		pos += 8
		if n == 12 {
			if pos+4 > len(data) {
				return Value{}, 0, newDecodeError("binaryField.time", errShortPacket)
			}
			t.Microsecond = binary.LittleEndian.Uint32(data[pos:])
			pos += 4
		}
	default:
		return Value{}, 0, newDecodeErrorf("binaryField.time", "unexpected length %d", n)
	}
	return NewTime(t), pos, nil
}

// ParamTypeByte is the (FieldType, flag) pair COM_STMT_EXECUTE advertises
// per bound parameter, spec.md §4.3.
type ParamTypeByte struct {
	Type FieldType
	Flag byte
}

// ParamTypeFor returns the wire type-byte pair for v's Kind.
func ParamTypeFor(v Value) ParamTypeByte {
	switch v.Kind {
	case KindDecimal:
		return ParamTypeByte{TypeDecimal, 0x00}
	case KindInt8:
		return ParamTypeByte{TypeLong, 0x00}
	case KindInt8U:
		return ParamTypeByte{TypeLong, 0x01}
	case KindInt16:
		return ParamTypeByte{TypeLongLong, 0x00}
	case KindInt16U:
		return ParamTypeByte{TypeLongLong, 0x01}
	case KindInt32:
		return ParamTypeByte{TypeLongLong, 0x00}
	case KindInt32U:
		return ParamTypeByte{TypeLongLong, 0x01}
	case KindInt64:
		return ParamTypeByte{TypeLongLong, 0x00}
	case KindInt64U:
		return ParamTypeByte{TypeLongLong, 0x01}
	case KindFloat:
		return ParamTypeByte{TypeFloat, 0x00}
	case KindDouble:
		return ParamTypeByte{TypeDouble, 0x00}
	case KindYear:
		return ParamTypeByte{TypeYear, 0x00}
	case KindDateTime:
		return ParamTypeByte{TypeDateTime, 0x00}
	case KindDate:
		return ParamTypeByte{TypeDate, 0x00}
	case KindTime:
		return ParamTypeByte{TypeTime, 0x00}
	case KindBytes:
		return ParamTypeByte{TypeBlob, 0x00}
	case KindText:
		return ParamTypeByte{TypeString, 0x00}
	default:
		return ParamTypeByte{TypeNull, 0x00}
	}
}

// MakeNullBitmap builds the COM_STMT_EXECUTE parameter null-bitmap:
// offset 0, length ceil(len(params)/8), bit k set iff params[k] is Null.
func MakeNullBitmap(params []Value) []byte {
	bitmap := make([]byte, ParamNullBitmapSize(len(params)))
	for i, p := range params {
		if p.IsNull() {
			setBitmapBit(bitmap, i, 0)
		}
	}
	return bitmap
}

// PutBinaryParam appends the fixed-width or length-encoded binary
// encoding of v. Dates/times always use the extended form (11 bytes for
// DATETIME/TIMESTAMP, 12 for TIME) including microseconds, per spec.md
// §4.3's "Binary field encoding (parameters)" rule.
func PutBinaryParam(dst []byte, v Value) []byte {
	switch v.Kind {
	case KindNull:
		return dst
	case KindDecimal:
		return PutLengthEncodedBytes(dst, []byte(v.String()))
	case KindInt8:
		return putUint32LE(dst, uint32(int32(int8(v.i64))))
	case KindInt8U:
		return putUint32LE(dst, uint32(v.u64))
	case KindInt16, KindInt32, KindInt64:
		return putUint64LE(dst, uint64(v.i64))
	case KindInt16U, KindInt32U, KindInt64U:
		return putUint64LE(dst, v.u64)
	case KindFloat:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(v.f32))
		return append(dst, b[:]...)
	case KindDouble:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v.f64))
		return append(dst, b[:]...)
	case KindYear:
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], v.year)
		return append(dst, b[:]...)
	case KindDateTime:
		return putBinaryDateTime(dst, v.datetime)
	case KindDate:
		return putBinaryDateTime(dst, DateTime{Year: v.date.Year, Month: v.date.Month, Day: v.date.Day})
	case KindTime:
		return putBinaryTime(dst, v.time)
	case KindBytes:
		return PutLengthEncodedBytes(dst, v.bytes)
	case KindText:
		return PutLengthEncodedBytes(dst, hackBytes(v.text))
	default:
		return dst
	}
}

func hackBytes(s string) []byte { return []byte(s) }

func putUint64LE(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func putUint32LE(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func putBinaryDateTime(dst []byte, dt DateTime) []byte {
	dst = append(dst, 11)
	var head [7]byte
	binary.LittleEndian.PutUint16(head[0:], dt.Year)
	head[2] = byte(dt.Month)
	head[3] = byte(dt.Day)
	head[4] = dt.Hour
	head[5] = dt.Minute
	head[6] = dt.Second
	dst = append(dst, head[:]...)
	var micro [4]byte
	binary.LittleEndian.PutUint32(micro[:], dt.Microsecond)
	return append(dst, micro[:]...)
}

func putBinaryTime(dst []byte, t Time) []byte {
	dst = append(dst, 12)
	var body [8]byte
	body[0] = 0 // sign: always non-negative, days/sign are not modeled
	// body[1:5] days, left zero
	body[5] = t.Hour
	body[6] = t.Minute
	body[7] = t.Second
	dst = append(dst, body[:]...)
	var micro [4]byte
	binary.LittleEndian.PutUint32(micro[:], t.Microsecond)
	return append(dst, micro[:]...)
}
