package mysql

import (
	"github.com/pingcap/errors"
)

// ColumnDef describes one result-set column (spec.md §3). Only the
// accessors the value codec needs are exposed; the rest of the
// ColumnDef packet (table/schema/org-names, decimals, default value)
// is parsed but left as plain fields for callers building higher-level
// tooling on top of this core.
type ColumnDef struct {
	Catalog      string
	Schema       string
	Table        string
	OrgTable     string
	Name         string
	OrgName      string
	CharSet      uint16
	ColumnLength uint32
	ColumnType   FieldType
	ColumnFlags  uint16
	Decimals     uint8
}

// Unsigned reports whether FlagUnsigned is set.
func (c *ColumnDef) Unsigned() bool { return c.ColumnFlags&FlagUnsigned != 0 }

// IsBinary reports whether this column's charset is the binary pseudo-charset.
func (c *ColumnDef) IsBinary() bool { return c.CharSet == BinaryCharsetID }

// ParseColumnDef41 parses a Protocol::ColumnDefinition41 packet.
func ParseColumnDef41(data []byte) (*ColumnDef, error) {
	col := &ColumnDef{}
	var ok bool
	pos := 0

	readStr := func(field string) (string, bool) {
		s, isNull, n, valid := ReadLengthEncodedBytes(data[pos:])
		if !valid {
			return "", false
		}
		pos += n
		if isNull {
			return "", true
		}
		return string(s), true
	}

	if col.Catalog, ok = readStr("catalog"); !ok {
		return nil, newDecodeError("ColumnDef.catalog", errShortPacket)
	}
	if col.Schema, ok = readStr("schema"); !ok {
		return nil, newDecodeError("ColumnDef.schema", errShortPacket)
	}
	if col.Table, ok = readStr("table"); !ok {
		return nil, newDecodeError("ColumnDef.table", errShortPacket)
	}
	if col.OrgTable, ok = readStr("org_table"); !ok {
		return nil, newDecodeError("ColumnDef.org_table", errShortPacket)
	}
	if col.Name, ok = readStr("name"); !ok {
		return nil, newDecodeError("ColumnDef.name", errShortPacket)
	}
	if col.OrgName, ok = readStr("org_name"); !ok {
		return nil, newDecodeError("ColumnDef.org_name", errShortPacket)
	}

	// length of fixed-length fields, always 0x0c
	_, _, n := ReadLengthEncodedInt(data[pos:])
	pos += n

	if pos+10 > len(data) {
		return nil, newDecodeError("ColumnDef.fixed", errShortPacket)
	}
	col.CharSet = uint16(data[pos]) | uint16(data[pos+1])<<8
	pos += 2
	col.ColumnLength = uint32(data[pos]) | uint32(data[pos+1])<<8 | uint32(data[pos+2])<<16 | uint32(data[pos+3])<<24
	pos += 4
	col.ColumnType = FieldType(data[pos])
	pos++
	col.ColumnFlags = uint16(data[pos]) | uint16(data[pos+1])<<8
	pos += 2
	col.Decimals = data[pos]
	pos++

	return col, nil
}

var errShortPacket = errors.New("packet too short")

// OKPacket is the OK response, spec.md §3.
type OKPacket struct {
	AffectedRows uint64
	LastInsertID uint64
	StatusFlags  uint16
	Warnings     uint16
	Message      string
}

// ErrPacket is the ERR response, spec.md §3.
type ErrPacket struct {
	Code     uint16
	SQLState string
	Message  string
}

// EOFPacket is the legacy short-form EOF response, spec.md §3.
type EOFPacket struct {
	Warnings    uint16
	StatusFlags uint16
}

// Greeting is the server's initial handshake packet, spec.md §3.
type Greeting struct {
	ProtocolVersion byte
	ServerVersion   string
	ThreadID        uint32
	Salt1           []byte
	Salt2           []byte
	Capability      uint32
	Charset         byte
	Status          uint16
	AuthPlugin      string
}

// StmtPrepareOK is COM_STMT_PREPARE's success response, spec.md §3.
type StmtPrepareOK struct {
	StmtID      uint32
	ColumnCount uint16
	ParamCount  uint16
	Warnings    uint16
}

// IsOKPacket reports whether the leading byte marks data as an OK packet.
// OK and EOF share the 0x00/0xfe leading-byte convention with the
// length-encoded affected-rows field, so the conservative check spec.md
// §4.5 calls for is: 0x00 is always OK, and a short 0xfe payload is EOF
// (longer 0xfe payloads are a length-encoded integer in another
// context, e.g. a huge string length, and must not be misread as EOF).
func IsOKPacket(data []byte) bool {
	return len(data) > 0 && data[0] == OKHeader
}

// IsErrPacket reports whether the leading byte marks data as an ERR packet.
func IsErrPacket(data []byte) bool {
	return len(data) > 0 && data[0] == ErrHeader
}

// IsEOFPacket reports whether data is the short-form legacy EOF packet.
func IsEOFPacket(data []byte) bool {
	return len(data) > 0 && data[0] == EOFHeader && len(data) < 9
}

// ParseOK decodes an OK packet body (leading 0x00 byte already confirmed
// by the caller via IsOKPacket).
func ParseOK(data []byte) (*OKPacket, error) {
	if len(data) < 1 {
		return nil, newDecodeError("OK", errShortPacket)
	}
	pos := 1
	affected, _, n := ReadLengthEncodedInt(data[pos:])
	if n == 0 {
		return nil, newDecodeError("OK.affectedRows", errShortPacket)
	}
	pos += n
	lastInsert, _, n := ReadLengthEncodedInt(data[pos:])
	if n == 0 {
		return nil, newDecodeError("OK.lastInsertId", errShortPacket)
	}
	pos += n
	if pos+4 > len(data) {
		return nil, newDecodeError("OK.flags", errShortPacket)
	}
	status := uint16(data[pos]) | uint16(data[pos+1])<<8
	warnings := uint16(data[pos+2]) | uint16(data[pos+3])<<8
	pos += 4
	msg := ""
	if pos < len(data) {
		msg = string(data[pos:])
	}
	return &OKPacket{
		AffectedRows: affected,
		LastInsertID: lastInsert,
		StatusFlags:  status,
		Warnings:     warnings,
		Message:      msg,
	}, nil
}

// ParseErr decodes an ERR packet body (leading 0xff byte already
// confirmed by the caller via IsErrPacket).
func ParseErr(data []byte) (*ErrPacket, error) {
	if len(data) < 3 {
		return nil, newDecodeError("ERR", errShortPacket)
	}
	code := uint16(data[1]) | uint16(data[2])<<8
	pos := 3
	sqlState := ""
	if pos < len(data) && data[pos] == '#' {
		if pos+6 > len(data) {
			return nil, newDecodeError("ERR.sqlState", errShortPacket)
		}
		sqlState = string(data[pos+1 : pos+6])
		pos += 6
	}
	return &ErrPacket{Code: code, SQLState: sqlState, Message: string(data[pos:])}, nil
}

// ParseEOF decodes the legacy short-form EOF packet body.
func ParseEOF(data []byte) (*EOFPacket, error) {
	if len(data) < 5 {
		return nil, newDecodeError("EOF", errShortPacket)
	}
	warnings := uint16(data[1]) | uint16(data[2])<<8
	status := uint16(data[3]) | uint16(data[4])<<8
	return &EOFPacket{Warnings: warnings, StatusFlags: status}, nil
}

// ParseGreeting decodes the protocol version 10 initial handshake packet.
func ParseGreeting(data []byte) (*Greeting, error) {
	if len(data) < 1 {
		return nil, newDecodeError("Greeting", errShortPacket)
	}
	g := &Greeting{ProtocolVersion: data[0]}
	pos := 1

	end := indexByte(data[pos:], 0)
	if end < 0 {
		return nil, newDecodeError("Greeting.serverVersion", errShortPacket)
	}
	g.ServerVersion = string(data[pos : pos+end])
	pos += end + 1

	if pos+4 > len(data) {
		return nil, newDecodeError("Greeting.threadId", errShortPacket)
	}
	g.ThreadID = uint32(data[pos]) | uint32(data[pos+1])<<8 | uint32(data[pos+2])<<16 | uint32(data[pos+3])<<24
	pos += 4

	if pos+8 > len(data) {
		return nil, newDecodeError("Greeting.salt1", errShortPacket)
	}
	g.Salt1 = append([]byte{}, data[pos:pos+8]...)
	pos += 8

	pos++ // filler

	if pos+2 > len(data) {
		return nil, newDecodeError("Greeting.capabilityLower", errShortPacket)
	}
	capLower := uint32(data[pos]) | uint32(data[pos+1])<<8
	pos += 2

	if pos >= len(data) {
		return nil, newDecodeError("Greeting.charset", errShortPacket)
	}
	g.Charset = data[pos]
	pos++

	if pos+2 > len(data) {
		return nil, newDecodeError("Greeting.status", errShortPacket)
	}
	g.Status = uint16(data[pos]) | uint16(data[pos+1])<<8
	pos += 2

	if pos+2 > len(data) {
		return nil, newDecodeError("Greeting.capabilityUpper", errShortPacket)
	}
	capUpper := uint32(data[pos]) | uint32(data[pos+1])<<8
	pos += 2
	g.Capability = capLower | capUpper<<16

	if pos >= len(data) {
		return g, nil
	}
	saltLen := int(data[pos])
	pos++

	pos += 10 // reserved

	salt2Len := saltLen - 8 - 1
	if salt2Len < 0 {
		salt2Len = 0
	}
	if pos+salt2Len > len(data) {
		salt2Len = len(data) - pos
	}
	if salt2Len > 0 {
		raw := data[pos : pos+salt2Len]
		g.Salt2 = append([]byte{}, raw...)
		pos += salt2Len
		if pos < len(data) {
			pos++ // skip auth-plugin-data-part-2's NUL terminator
		}
	}

	if g.Capability&ClientPluginAuth != 0 && pos < len(data) {
		end := indexByte(data[pos:], 0)
		if end < 0 {
			g.AuthPlugin = string(data[pos:])
		} else {
			g.AuthPlugin = string(data[pos : pos+end])
		}
	}

	return g, nil
}

// ParseStmtPrepareOK decodes COM_STMT_PREPARE's success response.
func ParseStmtPrepareOK(data []byte) (*StmtPrepareOK, error) {
	if len(data) < 12 {
		return nil, newDecodeError("StmtPrepareOK", errShortPacket)
	}
	return &StmtPrepareOK{
		StmtID:      uint32(data[1]) | uint32(data[2])<<8 | uint32(data[3])<<16 | uint32(data[4])<<24,
		ColumnCount: uint16(data[5]) | uint16(data[6])<<8,
		ParamCount:  uint16(data[7]) | uint16(data[8])<<8,
		Warnings:    uint16(data[10]) | uint16(data[11])<<8,
	}, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
