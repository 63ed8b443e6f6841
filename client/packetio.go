package client

import (
	"bufio"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"mysqlwire/mysql"
)

const defaultWriterSize = 16 * 1024

// PacketIO frames and reassembles MySQL's 24-bit-length packets
// (spec.md §4.2). A packet whose declared length is exactly
// mysql.MaxPayloadLen signals continuation: PacketIO keeps reading
// frames and concatenating payloads until one arrives short of that
// boundary. On write, a payload is split into chunks of at most
// mysql.MaxPayloadLen bytes, and a payload whose length is an exact
// multiple of that boundary gets an explicit empty terminating frame.
//
// Unlike a server-side framer, PacketIO never rejects an inbound
// sequence number against what it expects: spec.md §3 invariant 1
// says the client may assume seq monotonicity only within a single
// request/response, not across it, so this type simply records
// whatever seq the server last sent and hands it back to the caller.
type PacketIO struct {
	conn         *bufferedReadConn
	bufWriter    *bufio.Writer
	seq          uint8
	readTimeout  time.Duration
	writeTimeout time.Duration
	metrics      *mysql.Metrics
	log          logrus.FieldLogger
}

// NewPacketIO wraps conn. metrics and log may both be nil.
func NewPacketIO(conn *bufferedReadConn, metrics *mysql.Metrics, log logrus.FieldLogger) *PacketIO {
	if log == nil {
		log = noopLogger()
	}
	return &PacketIO{
		conn:      conn,
		bufWriter: bufio.NewWriterSize(conn, defaultWriterSize),
		metrics:   metrics,
		log:       log,
	}
}

// Seq returns the sequence number the next outbound frame will use.
func (p *PacketIO) Seq() uint8 { return p.seq }

// ResetSeq sets the sequence number the next outbound frame will use.
// Inbound frames are not checked against it; each read overwrites it
// with the seq the frame carried. Used at the start of every new logical
// command per spec.md §3 invariant 1 ("every outbound command begins
// with seq = 0").
func (p *PacketIO) ResetSeq(seq uint8) { p.seq = seq }

// SetReadTimeout applies a deadline to every subsequent Read.
func (p *PacketIO) SetReadTimeout(d time.Duration) { p.readTimeout = d }

// SetWriteTimeout applies a deadline to every subsequent Write.
func (p *PacketIO) SetWriteTimeout(d time.Duration) { p.writeTimeout = d }

func (p *PacketIO) readOneFrame() ([]byte, error) {
	if p.readTimeout > 0 {
		if err := p.conn.SetReadDeadline(time.Now().Add(p.readTimeout)); err != nil {
			return nil, mysql.WrapNetworkErr(err)
		}
	}
	var head [4]byte
	if _, err := io.ReadFull(p.conn, head[:]); err != nil {
		return nil, mysql.WrapNetworkErr(err)
	}
	length := int(uint32(head[0]) | uint32(head[1])<<8 | uint32(head[2])<<16)
	p.seq = head[3]

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(p.conn, payload); err != nil {
			return nil, mysql.WrapNetworkErr(err)
		}
	}
	p.metrics.AddRead(1, length)
	p.log.WithFields(logrus.Fields{"len": length, "seq": p.seq}).Debug("packet read")
	return payload, nil
}

// ReadPacket reads one logical packet, following the continuation
// rule of spec.md §4.2/§3-invariant-3. It returns the reassembled
// payload and the sequence number of the final fragment.
func (p *PacketIO) ReadPacket() (payload []byte, seq uint8, err error) {
	frame, err := p.readOneFrame()
	if err != nil {
		return nil, 0, err
	}
	if len(frame) < mysql.MaxPayloadLen {
		return frame, p.seq, nil
	}
	data := frame
	for {
		frame, err = p.readOneFrame()
		if err != nil {
			return nil, 0, err
		}
		data = append(data, frame...)
		if len(frame) < mysql.MaxPayloadLen {
			break
		}
	}
	return data, p.seq, nil
}

func (p *PacketIO) writeOneFrame(payload []byte, seq uint8) error {
	var head [4]byte
	length := len(payload)
	head[0] = byte(length)
	head[1] = byte(length >> 8)
	head[2] = byte(length >> 16)
	head[3] = seq
	if p.writeTimeout > 0 {
		if err := p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout)); err != nil {
			return mysql.WrapNetworkErr(err)
		}
	}
	if _, err := p.bufWriter.Write(head[:]); err != nil {
		return mysql.WrapNetworkErr(err)
	}
	if length > 0 {
		if _, err := p.bufWriter.Write(payload); err != nil {
			return mysql.WrapNetworkErr(err)
		}
	}
	p.metrics.AddWritten(1, length)
	p.log.WithFields(logrus.Fields{"len": length, "seq": seq}).Debug("packet written")
	return nil
}

// WritePacket frames payload, splitting it into chunks of at most
// mysql.MaxPayloadLen bytes with monotonically increasing sequence
// numbers starting at the framer's current seq. It does not flush;
// call Flush when the logical command is complete.
func (p *PacketIO) WritePacket(payload []byte) error {
	for len(payload) > mysql.MaxPayloadLen {
		if err := p.writeOneFrame(payload[:mysql.MaxPayloadLen], p.seq); err != nil {
			return err
		}
		p.seq++
		payload = payload[mysql.MaxPayloadLen:]
	}
	if err := p.writeOneFrame(payload, p.seq); err != nil {
		return err
	}
	p.seq++
	if len(payload) == mysql.MaxPayloadLen {
		// exact multiple: emit the empty terminating frame, spec.md §4.2.
		if err := p.writeOneFrame(nil, p.seq); err != nil {
			return err
		}
		p.seq++
	}
	return nil
}

// Flush pushes any buffered output to the transport.
func (p *PacketIO) Flush() error {
	return mysql.WrapNetworkErr(p.bufWriter.Flush())
}

func noopLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
