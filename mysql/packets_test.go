package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsOKIsErrIsEOF(t *testing.T) {
	assert.True(t, IsOKPacket([]byte{0x00, 0x00, 0x00}))
	assert.False(t, IsOKPacket(nil))

	assert.True(t, IsErrPacket([]byte{0xff, 0x01, 0x02}))
	assert.False(t, IsErrPacket([]byte{0x00}))

	assert.True(t, IsEOFPacket([]byte{0xfe, 0x00, 0x00, 0x02, 0x00}))
	assert.False(t, IsEOFPacket(append([]byte{0xfe}, make([]byte, 10)...)), "long 0xfe payload is a length-encoded int, not EOF")
}

func TestParseOK(t *testing.T) {
	var data []byte
	data = append(data, OKHeader)
	data = PutLengthEncodedInt(data, 3)  // affected rows
	data = PutLengthEncodedInt(data, 17) // last insert id
	data = append(data, 0x02, 0x00)      // status
	data = append(data, 0x00, 0x00)      // warnings
	data = append(data, "ok"...)

	ok, err := ParseOK(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), ok.AffectedRows)
	assert.Equal(t, uint64(17), ok.LastInsertID)
	assert.Equal(t, uint16(2), ok.StatusFlags)
	assert.Equal(t, "ok", ok.Message)
}

func TestParseErr(t *testing.T) {
	data := append([]byte{ErrHeader, 0x10, 0x04}, "#42000Syntax error"...)
	e, err := ParseErr(data)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0410), e.Code)
	assert.Equal(t, "42000", e.SQLState)
	assert.Equal(t, "Syntax error", e.Message)
}

func TestParseGreetingWithAuthPlugin(t *testing.T) {
	var data []byte
	data = append(data, 0x0a)
	data = append(data, "5.7.30-mysqlwire"...)
	data = append(data, 0x00)
	data = append(data, 0x2a, 0x00, 0x00, 0x00) // thread id
	salt1 := []byte("abcdefgh")
	data = append(data, salt1...)
	data = append(data, 0x00) // filler
	caps := uint32(BaseCapabilities)
	data = append(data, byte(caps), byte(caps>>8))
	data = append(data, 0x21)       // charset
	data = append(data, 0x02, 0x00) // status
	data = append(data, byte(caps>>16), byte(caps>>24))
	data = append(data, 13) // auth plugin data len
	data = append(data, make([]byte, 10)...)
	salt2 := []byte("ijkl")
	data = append(data, salt2...)
	data = append(data, 0x00)
	data = append(data, AuthNativePassword...)

	g, err := ParseGreeting(data)
	require.NoError(t, err)
	assert.Equal(t, byte(0x0a), g.ProtocolVersion)
	assert.Equal(t, uint32(0x2a), g.ThreadID)
	assert.Equal(t, salt1, g.Salt1)
	assert.Equal(t, salt2, g.Salt2)
}

func TestParseColumnDef41(t *testing.T) {
	var data []byte
	data = PutLengthEncodedBytes(data, []byte("def"))
	data = PutLengthEncodedBytes(data, []byte("db"))
	data = PutLengthEncodedBytes(data, []byte("t"))
	data = PutLengthEncodedBytes(data, []byte("t"))
	data = PutLengthEncodedBytes(data, []byte("id"))
	data = PutLengthEncodedBytes(data, []byte("id"))
	data = PutLengthEncodedInt(data, 0x0c)
	data = append(data, 0x2d, 0x00) // charset
	data = append(data, 0x04, 0x00, 0x00, 0x00)
	data = append(data, byte(TypeLong))
	data = append(data, byte(FlagUnsigned), 0x00)
	data = append(data, 0x00)

	col, err := ParseColumnDef41(data)
	require.NoError(t, err)
	assert.Equal(t, "id", col.Name)
	assert.Equal(t, TypeLong, col.ColumnType)
	assert.True(t, col.Unsigned())
}

func TestParseStmtPrepareOK(t *testing.T) {
	data := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x02, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00}
	ok, err := ParseStmtPrepareOK(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), ok.StmtID)
	assert.Equal(t, uint16(2), ok.ColumnCount)
	assert.Equal(t, uint16(1), ok.ParamCount)
}
