package mysql

import (
	"math/big"
	"strconv"
	"strings"

	"mysqlwire/util/hack"
)

// DecodeTextRow decodes one COM_QUERY result-set row, spec.md §4.3. Each
// column is either the NULL sentinel 0xFB or a length-encoded string;
// dispatch on columns[i].ColumnType picks the target Value kind. Values
// referencing column bytes are zero-copy views (SPEC_FULL §4.7) — callers
// that retain a row past the iteration step must call Value.CopyRetained.
func DecodeTextRow(data []byte, columns []*ColumnDef) ([]Value, error) {
	row := make([]Value, len(columns))
	pos := 0
	for i, col := range columns {
		if pos >= len(data) {
			return nil, newDecodeErrorf("textRow", "column %d: packet truncated", i)
		}
		if data[pos] == LenEncNullByte {
			row[i] = Null()
			pos++
			continue
		}
		raw, isNull, n, ok := ReadLengthEncodedBytes(data[pos:])
		if !ok {
			return nil, newDecodeErrorf("textRow", "column %d: bad length-encoded string", i)
		}
		pos += n
		if isNull {
			row[i] = Null()
			continue
		}
		v, err := decodeTextField(col, raw)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

func decodeTextField(col *ColumnDef, raw []byte) (Value, error) {
	s := hack.String(raw)

	switch col.ColumnType {
	case TypeNull:
		return Null(), nil

	case TypeDecimal, TypeNewDecimal:
		if len(s) == 0 {
			return Null(), nil
		}
		d, ok := new(big.Rat).SetString(s)
		if !ok {
			return Value{}, newDecodeErrorf("textField.decimal", "invalid decimal %q", s)
		}
		return NewDecimal(d), nil

	case TypeTiny, TypeShort, TypeLong, TypeInt24, TypeLongLong, TypeYear:
		if len(s) == 0 {
			return Null(), nil
		}
		return decodeTextInteger(col, s)

	case TypeFloat:
		if len(s) == 0 {
			return Null(), nil
		}
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return Value{}, newDecodeErrorf("textField.float", "invalid float %q", s)
		}
		return NewFloat(float32(f)), nil

	case TypeDouble:
		if len(s) == 0 {
			return Null(), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, newDecodeErrorf("textField.double", "invalid double %q", s)
		}
		return NewDouble(f), nil

	case TypeTimestamp, TypeDateTime, TypeTimestamp2, TypeDateTime2:
		if len(s) == 0 {
			return Null(), nil
		}
		dt, err := parseDateTimeText(s)
		if err != nil {
			return Value{}, err
		}
		return NewDateTime(dt), nil

	case TypeDate, TypeNewDate:
		if len(s) == 0 {
			return Null(), nil
		}
		d, err := parseDateText(s)
		if err != nil {
			return Value{}, err
		}
		return NewDate(d), nil

	case TypeTime, TypeTime2:
		if len(s) == 0 {
			return Null(), nil
		}
		t, err := parseTimeText(s)
		if err != nil {
			return Value{}, err
		}
		return NewTime(t), nil

	case TypeGeometry:
		return NewBytes(raw), nil

	default:
		if col.IsBinary() {
			return NewBytes(raw), nil
		}
		return NewText(decodeToUTF8(col.CharSet, raw)), nil
	}
}

func decodeTextInteger(col *ColumnDef, s string) (Value, error) {
	if col.Unsigned() {
		u, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return Value{}, newDecodeErrorf("textField.int", "invalid unsigned integer %q", s)
		}
		switch col.ColumnType {
		case TypeTiny:
			return NewInt8U(uint8(u)), nil
		case TypeShort, TypeYear:
			return NewInt16U(uint16(u)), nil
		case TypeLong, TypeInt24:
			return NewInt32U(uint32(u)), nil
		default:
			return NewInt64U(u), nil
		}
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Value{}, newDecodeErrorf("textField.int", "invalid integer %q", s)
	}
	switch col.ColumnType {
	case TypeTiny:
		return NewInt8(int8(i)), nil
	case TypeShort, TypeYear:
		return NewInt16(int16(i)), nil
	case TypeLong, TypeInt24:
		return NewInt32(int32(i)), nil
	default:
		return NewInt64(i), nil
	}
}

func parseDateText(s string) (Date, error) {
	parts := strings.SplitN(s, "-", 3)
	if len(parts) != 3 {
		return Date{}, newDecodeErrorf("textField.date", "invalid date %q", s)
	}
	y, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	d, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return Date{}, newDecodeErrorf("textField.date", "invalid date %q", s)
	}
	return Date{Year: uint16(y), Month: uint16(m), Day: uint16(d)}, nil
}

func parseTimeText(s string) (Time, error) {
	sec := s
	var micro uint32
	if i := strings.IndexByte(s, '.'); i >= 0 {
		sec = s[:i]
		frac := s[i+1:]
		for len(frac) < 6 {
			frac += "0"
		}
		u, err := strconv.ParseUint(frac[:6], 10, 32)
		if err == nil {
			micro = uint32(u)
		}
	}
	parts := strings.SplitN(sec, ":", 3)
	if len(parts) != 3 {
		return Time{}, newDecodeErrorf("textField.time", "invalid time %q", s)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	se, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return Time{}, newDecodeErrorf("textField.time", "invalid time %q", s)
	}
	return Time{Hour: uint8(h), Minute: uint8(m), Second: uint8(se), Microsecond: micro}, nil
}

func parseDateTimeText(s string) (DateTime, error) {
	parts := strings.SplitN(s, " ", 2)
	d, err := parseDateText(parts[0])
	if err != nil {
		return DateTime{}, err
	}
	dt := DateTime{Year: d.Year, Month: d.Month, Day: d.Day}
	if len(parts) == 2 {
		t, err := parseTimeText(parts[1])
		if err != nil {
			return DateTime{}, err
		}
		dt.Hour, dt.Minute, dt.Second, dt.Microsecond = t.Hour, t.Minute, t.Second, t.Microsecond
	}
	return dt, nil
}

// PutTextField renders v in the canonical text-protocol form described
// by spec.md §4.3. The caller is responsible for applying the
// surrounding length-encoding (PutLengthEncodedBytes); this function
// returns raw bytes/NULL-marker only.
//
// Null renders as the single byte 0xFB, the real MySQL wire NULL
// sentinel for length-encoded strings — not the library-local 0x79 byte
// spec.md §9 flags as a likely source bug in the reference
// implementation.
func PutTextField(v Value) (isNull bool, rendered []byte) {
	if v.IsNull() {
		return true, []byte{LenEncNullByte}
	}
	switch v.Kind {
	case KindBytes:
		return false, v.bytes
	case KindText:
		return false, []byte(v.text)
	default:
		return false, []byte(v.String())
	}
}
