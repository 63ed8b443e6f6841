package mysql

import (
	"fmt"
	"math/big"
)

// ValueKind discriminates the MySQLValue tagged union, spec.md §3.
type ValueKind byte

const (
	KindNull ValueKind = iota
	KindDecimal
	KindInt8
	KindInt8U
	KindInt16
	KindInt16U
	KindInt32
	KindInt32U
	KindInt64
	KindInt64U
	KindFloat
	KindDouble
	KindYear
	KindDateTime
	KindDate
	KindTime
	KindBytes
	KindText
)

// DateTime is a local wall-clock date/time with sub-second precision
// carried as microseconds, matching the binary protocol's widest form.
type DateTime struct {
	Year, Month, Day      uint16
	Hour, Minute, Second  uint8
	Microsecond           uint32
}

// Date is a bare calendar date, no time-of-day component.
type Date struct {
	Year, Month, Day uint16
}

// Time is a duration-of-day value; the protocol's sign and day-count
// fields are intentionally not modeled here (spec.md §4.3: "Sign and
// days are discarded").
type Time struct {
	Hour, Minute, Second uint8
	Microsecond          uint32
}

// Value is the closed tagged union MySQLValue of spec.md §3. Exactly
// one of the typed fields is meaningful, selected by Kind; consumers
// are expected to switch exhaustively on Kind.
type Value struct {
	Kind     ValueKind
	decimal  *big.Rat
	i64      int64
	u64      uint64
	f32      float32
	f64      float64
	year     uint16
	datetime DateTime
	date     Date
	time     Time
	bytes    []byte
	text     string
}

func Null() Value                    { return Value{Kind: KindNull} }
func NewDecimal(d *big.Rat) Value     { return Value{Kind: KindDecimal, decimal: d} }
func NewInt8(v int8) Value            { return Value{Kind: KindInt8, i64: int64(v)} }
func NewInt8U(v uint8) Value          { return Value{Kind: KindInt8U, u64: uint64(v)} }
func NewInt16(v int16) Value          { return Value{Kind: KindInt16, i64: int64(v)} }
func NewInt16U(v uint16) Value        { return Value{Kind: KindInt16U, u64: uint64(v)} }
func NewInt32(v int32) Value          { return Value{Kind: KindInt32, i64: int64(v)} }
func NewInt32U(v uint32) Value        { return Value{Kind: KindInt32U, u64: uint64(v)} }
func NewInt64(v int64) Value          { return Value{Kind: KindInt64, i64: v} }
func NewInt64U(v uint64) Value        { return Value{Kind: KindInt64U, u64: v} }
func NewFloat(v float32) Value        { return Value{Kind: KindFloat, f32: v} }
func NewDouble(v float64) Value       { return Value{Kind: KindDouble, f64: v} }
func NewYear(v uint16) Value          { return Value{Kind: KindYear, year: v} }
func NewDateTime(v DateTime) Value    { return Value{Kind: KindDateTime, datetime: v} }
func NewDate(v Date) Value            { return Value{Kind: KindDate, date: v} }
func NewTime(v Time) Value            { return Value{Kind: KindTime, time: v} }
func NewBytes(b []byte) Value         { return Value{Kind: KindBytes, bytes: b} }
func NewText(s string) Value          { return Value{Kind: KindText, text: s} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// Decimal returns the arbitrary-precision value for KindDecimal.
func (v Value) Decimal() *big.Rat { return v.decimal }

// Int64 returns the signed 64-bit view for any signed integer kind.
func (v Value) Int64() int64 { return v.i64 }

// Uint64 returns the unsigned 64-bit view for any unsigned integer kind.
func (v Value) Uint64() uint64 { return v.u64 }

func (v Value) Float32() float32    { return v.f32 }
func (v Value) Float64() float64    { return v.f64 }
func (v Value) Year() uint16        { return v.year }
func (v Value) DateTime() DateTime  { return v.datetime }
func (v Value) Date() Date          { return v.date }
func (v Value) Time() Time          { return v.time }
func (v Value) Bytes() []byte       { return v.bytes }
func (v Value) Text() string        { return v.text }

// CopyRetained returns a Value safe to retain past the row-stream
// iteration step (spec.md §4.9 of SPEC_FULL.md): byte slices that may
// alias the packet buffer are defensively copied, everything else is
// already a value type.
func (v Value) CopyRetained() Value {
	if v.Kind == KindBytes && v.bytes != nil {
		b := make([]byte, len(v.bytes))
		copy(b, v.bytes)
		v.bytes = b
	}
	return v
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "NULL"
	case KindDecimal:
		if v.decimal == nil {
			return "0"
		}
		return v.decimal.RatString()
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return fmt.Sprintf("%d", v.i64)
	case KindInt8U, KindInt16U, KindInt32U, KindInt64U:
		return fmt.Sprintf("%d", v.u64)
	case KindFloat:
		return fmt.Sprintf("%g", v.f32)
	case KindDouble:
		return fmt.Sprintf("%g", v.f64)
	case KindYear:
		return fmt.Sprintf("%04d", v.year)
	case KindDateTime:
		return formatDateTime(v.datetime)
	case KindDate:
		return formatDate(v.date)
	case KindTime:
		return formatTime(v.time)
	case KindBytes:
		return string(v.bytes)
	case KindText:
		return v.text
	default:
		return ""
	}
}

func formatDate(d Date) string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func formatTime(t Time) string {
	if t.Microsecond == 0 {
		return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	}
	return fmt.Sprintf("%02d:%02d:%02d.%06d", t.Hour, t.Minute, t.Second, t.Microsecond)
}

func formatDateTime(dt DateTime) string {
	if dt.Microsecond == 0 {
		return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", dt.Year, dt.Month, dt.Day, dt.Hour, dt.Minute, dt.Second)
	}
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d.%06d", dt.Year, dt.Month, dt.Day, dt.Hour, dt.Minute, dt.Second, dt.Microsecond)
}
