package client

import (
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mysqlwire/mysql"
)

func buildColumnDef41(name string, colType mysql.FieldType, flags uint16) []byte {
	var data []byte
	data = mysql.PutLengthEncodedBytes(data, []byte("def"))
	data = mysql.PutLengthEncodedBytes(data, []byte("db"))
	data = mysql.PutLengthEncodedBytes(data, []byte("t"))
	data = mysql.PutLengthEncodedBytes(data, []byte("t"))
	data = mysql.PutLengthEncodedBytes(data, []byte(name))
	data = mysql.PutLengthEncodedBytes(data, []byte(name))
	data = mysql.PutLengthEncodedInt(data, 0x0c)
	data = append(data, 0x2d, 0x00)
	data = append(data, 0x00, 0x00, 0x00, 0x00)
	data = append(data, byte(colType))
	data = append(data, byte(flags), byte(flags>>8))
	data = append(data, 0x00)
	return data
}

// runFakeServer performs the server side of the handshake on conn, then
// hands control to script for the rest of the session.
func runFakeServer(conn net.Conn, script func(pkt *PacketIO)) {
	pkt := NewPacketIO(newBufferedReadConn(conn), nil, nil)
	_ = pkt.WritePacket(buildGreetingPacket([]byte("abcdefgh"), []byte("ijklm")))
	_ = pkt.Flush()
	_, _, _ = pkt.ReadPacket()
	pkt.ResetSeq(2)
	_ = pkt.WritePacket(buildOKPacket())
	_ = pkt.Flush()
	script(pkt)
}

func dialTestConnection(t *testing.T, script func(pkt *PacketIO)) (*Connection, func()) {
	t.Helper()
	c1, c2 := net.Pipe()
	go runFakeServer(c2, script)

	conn, err := newConnection(c1, &Config{User: "root", Password: "secret"})
	require.NoError(t, err)
	return conn, func() { c1.Close(); c2.Close() }
}

// readCommand reads one client command packet and returns its command
// byte and body.
func readCommand(pkt *PacketIO) (byte, []byte) {
	raw, _, err := pkt.ReadPacket()
	if err != nil || len(raw) == 0 {
		return 0, nil
	}
	return raw[0], raw[1:]
}

func respondOK(pkt *PacketIO) {
	pkt.ResetSeq(1)
	_ = pkt.WritePacket(buildOKPacket())
	_ = pkt.Flush()
}

func TestConnectionPing(t *testing.T) {
	conn, closeAll := dialTestConnection(t, func(pkt *PacketIO) {
		cmd, _ := readCommand(pkt)
		if cmd != mysql.ComPing {
			return
		}
		respondOK(pkt)
	})
	defer closeAll()

	require.NoError(t, conn.Ping())
}

func TestConnectionExecute(t *testing.T) {
	conn, closeAll := dialTestConnection(t, func(pkt *PacketIO) {
		cmd, body := readCommand(pkt)
		require.Equal(t, byte(mysql.ComQuery), cmd)
		require.Equal(t, "update t set x=1", string(body))
		respondOK(pkt)
	})
	defer closeAll()

	ok, err := conn.Execute("update t set x=1")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), ok.AffectedRows)
}

func TestConnectionQueryStreamsTextRows(t *testing.T) {
	conn, closeAll := dialTestConnection(t, func(pkt *PacketIO) {
		cmd, _ := readCommand(pkt)
		require.Equal(t, byte(mysql.ComQuery), cmd)

		pkt.ResetSeq(1)
		_ = pkt.WritePacket(mysql.PutLengthEncodedInt(nil, 1))
		_ = pkt.WritePacket(buildColumnDef41("id", mysql.TypeLong, 0))
		_ = pkt.WritePacket([]byte{mysql.EOFHeader, 0x00, 0x00, 0x02, 0x00})

		row1 := mysql.PutLengthEncodedBytes(nil, []byte("1"))
		row2 := mysql.PutLengthEncodedBytes(nil, []byte("2"))
		_ = pkt.WritePacket(row1)
		_ = pkt.WritePacket(row2)
		_ = pkt.WritePacket([]byte{mysql.EOFHeader, 0x00, 0x00, 0x02, 0x00})
		_ = pkt.Flush()
	})
	defer closeAll()

	columns, rows, err := conn.Query("select id from t")
	require.NoError(t, err)
	require.Len(t, columns, 1)
	assert.Equal(t, "id", columns[0].Name)

	var got []int64
	for {
		row, err := rows.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, row[0].Int64())
	}
	assert.Equal(t, []int64{1, 2}, got)
	require.NoError(t, rows.Err())
}

func TestConnectionQueryIssuedWhileUnconsumedFails(t *testing.T) {
	conn, closeAll := dialTestConnection(t, func(pkt *PacketIO) {
		cmd, _ := readCommand(pkt)
		require.Equal(t, byte(mysql.ComQuery), cmd)

		pkt.ResetSeq(1)
		_ = pkt.WritePacket(mysql.PutLengthEncodedInt(nil, 1))
		_ = pkt.WritePacket(buildColumnDef41("id", mysql.TypeLong, 0))
		_ = pkt.WritePacket([]byte{mysql.EOFHeader, 0x00, 0x00, 0x02, 0x00})
		_ = pkt.Flush()
		// Intentionally never sends rows/EOF: the client must never get
		// far enough to need them in this test.
	})
	defer closeAll()

	_, _, err := conn.Query("select id from t")
	require.NoError(t, err)

	_, err = conn.Execute("select 1")
	assert.Equal(t, mysql.ErrUnconsumedResultSet, err)

	err = conn.Ping()
	assert.Equal(t, mysql.ErrUnconsumedResultSet, err)
}

func TestConnectionPrepareExecuteQueryStmtAndReset(t *testing.T) {
	conn, closeAll := dialTestConnection(t, func(pkt *PacketIO) {
		// COM_STMT_PREPARE
		cmd, body := readCommand(pkt)
		require.Equal(t, byte(mysql.ComStmtPrepare), cmd)
		require.Equal(t, "select id from t where id = ?", string(body))

		pkt.ResetSeq(1)
		okBody := make([]byte, 12)
		okBody[0] = 0x00
		binary.LittleEndian.PutUint32(okBody[1:5], 7)
		binary.LittleEndian.PutUint16(okBody[5:7], 1) // column count
		binary.LittleEndian.PutUint16(okBody[7:9], 1) // param count
		_ = pkt.WritePacket(okBody)
		_ = pkt.WritePacket(buildColumnDef41("id", mysql.TypeLong, 0)) // param def
		_ = pkt.WritePacket([]byte{mysql.EOFHeader, 0x00, 0x00, 0x02, 0x00})
		_ = pkt.WritePacket(buildColumnDef41("id", mysql.TypeLong, 0)) // result def
		_ = pkt.WritePacket([]byte{mysql.EOFHeader, 0x00, 0x00, 0x02, 0x00})
		_ = pkt.Flush()

		// COM_STMT_EXECUTE
		cmd, _ = readCommand(pkt)
		require.Equal(t, byte(mysql.ComStmtExecute), cmd)

		pkt.ResetSeq(1)
		_ = pkt.WritePacket(mysql.PutLengthEncodedInt(nil, 1))
		_ = pkt.WritePacket(buildColumnDef41("id", mysql.TypeLong, 0))
		_ = pkt.WritePacket([]byte{mysql.EOFHeader, 0x00, 0x00, 0x02, 0x00})

		binRow := append([]byte{0x00}, make([]byte, mysql.RowNullBitmapSize(1))...)
		binRow = mysql.PutBinaryParam(binRow, mysql.NewInt32(5))
		_ = pkt.WritePacket(binRow)
		_ = pkt.WritePacket([]byte{mysql.EOFHeader, 0x00, 0x00, 0x02, 0x00})
		_ = pkt.Flush()

		// COM_STMT_RESET
		cmd, _ = readCommand(pkt)
		require.Equal(t, byte(mysql.ComStmtReset), cmd)
		respondOK(pkt)
	})
	defer closeAll()

	stmtOK, params, results, err := conn.PrepareStmt("select id from t where id = ?")
	require.NoError(t, err)
	assert.Equal(t, uint32(7), stmtOK.StmtID)
	require.Len(t, params, 1)
	require.Len(t, results, 1)

	columns, rows, err := conn.QueryStmt(stmtOK.StmtID, []mysql.Value{mysql.NewInt64(5)})
	require.NoError(t, err)
	require.Len(t, columns, 1)

	row, err := rows.Next()
	require.NoError(t, err)
	assert.Equal(t, int32(5), int32(row[0].Int64()))

	_, err = rows.Next()
	assert.Equal(t, io.EOF, err)

	require.NoError(t, conn.ResetStmt(stmtOK.StmtID))
}
