package client

import (
	"mysqlwire/mysql"

	"github.com/pingcap/errors"
)

// performHandshake runs spec.md §4.4: read the server greeting, compute
// the scrambled password, send the handshake response, and verify the
// server's reply. On success the connection is in the Ready state; on
// any error, including an AuthError, the transport is left open and the
// caller must close it (newConnection does).
func performHandshake(pkt *PacketIO, cfg *Config) (*mysql.Greeting, error) {
	raw, seq, err := pkt.ReadPacket()
	if err != nil {
		return nil, err
	}
	greeting, err := mysql.ParseGreeting(raw)
	if err != nil {
		return nil, err
	}

	salt := append(append([]byte{}, greeting.Salt1...), greeting.Salt2...)
	scramble := scramblePassword(cfg.Password, salt)

	capability := mysql.BaseCapabilities
	if cfg.Database != "" {
		capability |= mysql.ClientConnectWithDB
	}

	authData := buildHandshakeResponse(capability, cfg, scramble)

	pkt.ResetSeq(seq + 1)
	if err := pkt.WritePacket(authData); err != nil {
		return nil, err
	}
	if err := pkt.Flush(); err != nil {
		return nil, err
	}

	reply, _, err := pkt.ReadPacket()
	if err != nil {
		return nil, err
	}
	switch {
	case mysql.IsOKPacket(reply):
		return greeting, nil
	case mysql.IsErrPacket(reply):
		errPkt, perr := mysql.ParseErr(reply)
		if perr != nil {
			return nil, perr
		}
		return nil, errors.Trace(&mysql.AuthError{Payload: errPkt})
	default:
		leading := byte(0)
		if len(reply) > 0 {
			leading = reply[0]
		}
		return nil, errors.Trace(&mysql.UnexpectedPacketError{Context: "handshake response", Leading: leading})
	}
}

// buildHandshakeResponse encodes Protocol::HandshakeResponse41.
func buildHandshakeResponse(capability uint32, cfg *Config, scramble []byte) []byte {
	var maxPacketSize uint32 = 16 * 1024 * 1024

	data := make([]byte, 0, 64+len(cfg.User)+len(cfg.Database))
	data = append(data, byte(capability), byte(capability>>8), byte(capability>>16), byte(capability>>24))
	data = append(data, byte(maxPacketSize), byte(maxPacketSize>>8), byte(maxPacketSize>>16), byte(maxPacketSize>>24))
	data = append(data, cfg.charsetOrDefault())
	data = append(data, make([]byte, 23)...)

	data = append(data, cfg.User...)
	data = append(data, 0)

	data = append(data, byte(len(scramble)))
	data = append(data, scramble...)

	if cfg.Database != "" {
		data = append(data, cfg.Database...)
		data = append(data, 0)
	}

	return data
}
