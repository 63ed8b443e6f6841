package client

import (
	"net"
	"testing"

	pingcaperrors "github.com/pingcap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mysqlwire/mysql"
)

func buildGreetingPacket(salt1, salt2 []byte) []byte {
	var data []byte
	data = append(data, 0x0a)
	data = append(data, "5.7.30-mysqlwire"...)
	data = append(data, 0x00)
	data = append(data, 0x01, 0x00, 0x00, 0x00)
	data = append(data, salt1...)
	data = append(data, 0x00)
	capability := mysql.BaseCapabilities | mysql.ClientPluginAuth
	data = append(data, byte(capability), byte(capability>>8))
	data = append(data, 0x2d)
	data = append(data, 0x02, 0x00)
	data = append(data, byte(capability>>16), byte(capability>>24))
	data = append(data, byte(len(salt2)+8+1))
	data = append(data, make([]byte, 10)...)
	data = append(data, salt2...)
	data = append(data, 0x00)
	data = append(data, mysql.AuthNativePassword...)
	data = append(data, 0x00)
	return data
}

func buildOKPacket() []byte {
	var data []byte
	data = append(data, mysql.OKHeader)
	data = mysql.PutLengthEncodedInt(data, 0)
	data = mysql.PutLengthEncodedInt(data, 0)
	data = append(data, 0x02, 0x00, 0x00, 0x00)
	return data
}

func buildErrPacket(code uint16, msg string) []byte {
	data := []byte{mysql.ErrHeader, byte(code), byte(code >> 8)}
	data = append(data, "#28000"...)
	data = append(data, msg...)
	return data
}

func newHandshakePipe() (clientPkt, serverPkt *PacketIO, closeAll func()) {
	c1, c2 := net.Pipe()
	clientPkt = NewPacketIO(newBufferedReadConn(c1), nil, nil)
	serverPkt = NewPacketIO(newBufferedReadConn(c2), nil, nil)
	return clientPkt, serverPkt, func() { c1.Close(); c2.Close() }
}

func TestPerformHandshakeSuccess(t *testing.T) {
	clientPkt, serverPkt, closeAll := newHandshakePipe()
	defer closeAll()

	salt1 := []byte("abcdefgh")
	salt2 := []byte("ijklm")

	done := make(chan error, 1)
	go func() {
		if err := serverPkt.WritePacket(buildGreetingPacket(salt1, salt2)); err != nil {
			done <- err
			return
		}
		if err := serverPkt.Flush(); err != nil {
			done <- err
			return
		}
		if _, _, err := serverPkt.ReadPacket(); err != nil {
			done <- err
			return
		}
		serverPkt.ResetSeq(2)
		if err := serverPkt.WritePacket(buildOKPacket()); err != nil {
			done <- err
			return
		}
		done <- serverPkt.Flush()
	}()

	cfg := &Config{User: "root", Password: "secret", Database: "app", Charset: 0x2d}
	greeting, err := performHandshake(clientPkt, cfg)
	require.NoError(t, <-done)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), greeting.ThreadID)
	assert.Equal(t, salt1, greeting.Salt1)
}

func TestPerformHandshakeAuthFailure(t *testing.T) {
	clientPkt, serverPkt, closeAll := newHandshakePipe()
	defer closeAll()

	done := make(chan error, 1)
	go func() {
		if err := serverPkt.WritePacket(buildGreetingPacket([]byte("abcdefgh"), []byte("ijklm"))); err != nil {
			done <- err
			return
		}
		if err := serverPkt.Flush(); err != nil {
			done <- err
			return
		}
		if _, _, err := serverPkt.ReadPacket(); err != nil {
			done <- err
			return
		}
		serverPkt.ResetSeq(2)
		if err := serverPkt.WritePacket(buildErrPacket(1045, "Access denied")); err != nil {
			done <- err
			return
		}
		done <- serverPkt.Flush()
	}()

	cfg := &Config{User: "root", Password: "wrong"}
	_, err := performHandshake(clientPkt, cfg)
	require.NoError(t, <-done)
	require.Error(t, err)

	cause := pingcaperrors.Cause(err)
	authErr, ok := cause.(*mysql.AuthError)
	require.True(t, ok, "expected *mysql.AuthError, got %T", cause)
	assert.Equal(t, "Access denied", authErr.Payload.Message)
}
