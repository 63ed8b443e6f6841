package client

import (
	"bufio"
	"net"
)

const defaultReaderSize = 1024 * 16

// bufferedReadConn wraps a net.Conn with a buffered reader so the packet
// framer's 4-byte header reads don't each cost a syscall.
type bufferedReadConn struct {
	net.Conn
	rb *bufio.Reader
}

func (conn *bufferedReadConn) Read(b []byte) (n int, err error) {
	return conn.rb.Read(b)
}

func newBufferedReadConn(conn net.Conn) *bufferedReadConn {
	return &bufferedReadConn{
		Conn: conn,
		rb:   bufio.NewReaderSize(conn, defaultReaderSize),
	}
}
