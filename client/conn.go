package client

import (
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"mysqlwire/mysql"
)

// Connection is a single MySQL wire-protocol connection, spec.md §4.5.
// It is a single-threaded serial resource (spec.md §5): the caller must
// not drive concurrent commands from multiple goroutines without its
// own mutex, and commands are strictly request/response — no
// pipelining.
type Connection struct {
	netConn  net.Conn
	pkt      *PacketIO
	cfg      *Config
	log      logrus.FieldLogger
	metrics  *mysql.Metrics
	greeting *mysql.Greeting

	// consumed is the single piece of shared mutable state described by
	// spec.md §9: false while a row stream from query/queryStmt is open.
	consumed bool
}

// Dial connects to cfg.Addr(), performs the protocol handshake, and
// returns a Connection in the Ready state.
func Dial(cfg *Config) (*Connection, error) {
	netConn, err := net.Dial("tcp", cfg.Addr())
	if err != nil {
		return nil, mysql.WrapNetworkErr(err)
	}
	return newConnection(netConn, cfg)
}

// newConnection runs the handshake over an already-established
// transport. Split out from Dial so tests can drive the handshake over
// an in-memory net.Pipe instead of a real TCP dial.
func newConnection(netConn net.Conn, cfg *Config) (*Connection, error) {
	log := cfg.Logger
	if log == nil {
		log = noopLogger()
	}

	pkt := NewPacketIO(newBufferedReadConn(netConn), cfg.Metrics, log)
	if cfg.ReadTimeoutMillis > 0 {
		pkt.SetReadTimeout(time.Duration(cfg.ReadTimeoutMillis) * time.Millisecond)
	}
	if cfg.WriteTimeoutMillis > 0 {
		pkt.SetWriteTimeout(time.Duration(cfg.WriteTimeoutMillis) * time.Millisecond)
	}

	greeting, err := performHandshake(pkt, cfg)
	if err != nil {
		netConn.Close()
		return nil, err
	}

	log.WithFields(logrus.Fields{"server": greeting.ServerVersion, "thread_id": greeting.ThreadID}).Debug("handshake complete")

	return &Connection{
		netConn:  netConn,
		pkt:      pkt,
		cfg:      cfg,
		log:      log,
		metrics:  cfg.Metrics,
		greeting: greeting,
		consumed: true,
	}, nil
}

// Greeting returns the server greeting captured during the handshake.
func (c *Connection) Greeting() *mysql.Greeting { return c.greeting }

func (c *Connection) checkConsumed() error {
	if !c.consumed {
		return mysql.ErrUnconsumedResultSet
	}
	return nil
}

func (c *Connection) sendCommand(cmd byte, body []byte) error {
	c.pkt.ResetSeq(0)
	payload := make([]byte, 1+len(body))
	payload[0] = cmd
	copy(payload[1:], body)
	if err := c.pkt.WritePacket(payload); err != nil {
		return err
	}
	return c.pkt.Flush()
}

func classifyResponse(context string, data []byte) error {
	leading := byte(0)
	if len(data) > 0 {
		leading = data[0]
	}
	return &mysql.UnexpectedPacketError{Context: context, Leading: leading}
}

func errFromErrPacket(data []byte) error {
	p, err := mysql.ParseErr(data)
	if err != nil {
		return err
	}
	return &mysql.ErrError{Code: p.Code, SQLState: p.SQLState, Message: p.Message}
}

// Ping sends COM_PING and expects OK or ERR.
func (c *Connection) Ping() error {
	if err := c.checkConsumed(); err != nil {
		return err
	}
	if err := c.sendCommand(mysql.ComPing, nil); err != nil {
		return err
	}
	c.metrics.ObserveCommand("ping")
	reply, _, err := c.pkt.ReadPacket()
	if err != nil {
		return err
	}
	switch {
	case mysql.IsOKPacket(reply):
		return nil
	case mysql.IsErrPacket(reply):
		return errFromErrPacket(reply)
	default:
		return classifyResponse("ping", reply)
	}
}

// Execute sends COM_QUERY(sql) for statements that return no result set
// (spec.md §4.5). Issuing a SELECT through Execute surfaces as an
// UnexpectedPacketError since the server's column-count reply matches
// neither OK nor ERR.
func (c *Connection) Execute(sql string) (*mysql.OKPacket, error) {
	if err := c.checkConsumed(); err != nil {
		return nil, err
	}
	if err := c.sendCommand(mysql.ComQuery, []byte(sql)); err != nil {
		return nil, err
	}
	c.metrics.ObserveCommand("query")
	reply, _, err := c.pkt.ReadPacket()
	if err != nil {
		return nil, err
	}
	switch {
	case mysql.IsOKPacket(reply):
		return mysql.ParseOK(reply)
	case mysql.IsErrPacket(reply):
		return nil, errFromErrPacket(reply)
	default:
		return nil, classifyResponse("execute", reply)
	}
}

// Query sends COM_QUERY(sql) and, for a result-set response, reads the
// column definitions and leaves the connection in the Streaming state
// until the returned RowStream is drained (spec.md §4.5).
func (c *Connection) Query(sql string) ([]*mysql.ColumnDef, *RowStream, error) {
	if err := c.checkConsumed(); err != nil {
		return nil, nil, err
	}
	if err := c.sendCommand(mysql.ComQuery, []byte(sql)); err != nil {
		return nil, nil, err
	}
	c.metrics.ObserveCommand("query")
	start := nowFunc()

	reply, _, err := c.pkt.ReadPacket()
	if err != nil {
		return nil, nil, err
	}
	if mysql.IsErrPacket(reply) {
		return nil, nil, errFromErrPacket(reply)
	}

	columns, err := c.readColumnDefs(reply)
	if err != nil {
		return nil, nil, err
	}
	c.consumed = false
	return columns, &RowStream{conn: c, columns: columns, binary: false, start: start}, nil
}

// readColumnDefs reads colCountPacket's length-encoded column count,
// then that many ColumnDefinition41 packets, then the trailing EOF.
func (c *Connection) readColumnDefs(colCountPacket []byte) ([]*mysql.ColumnDef, error) {
	n, _, m := mysql.ReadLengthEncodedInt(colCountPacket)
	if m == 0 {
		return nil, classifyResponse("column count", colCountPacket)
	}
	columns := make([]*mysql.ColumnDef, 0, n)
	for i := uint64(0); i < n; i++ {
		raw, _, err := c.pkt.ReadPacket()
		if err != nil {
			return nil, err
		}
		col, err := mysql.ParseColumnDef41(raw)
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}
	if n > 0 {
		eof, _, err := c.pkt.ReadPacket()
		if err != nil {
			return nil, err
		}
		if !mysql.IsEOFPacket(eof) {
			return nil, classifyResponse("column definitions EOF", eof)
		}
	}
	return columns, nil
}

// PrepareStmt sends COM_STMT_PREPARE(sql) and reads back the prepared
// statement's parameter and result column metadata (spec.md §4.5).
func (c *Connection) PrepareStmt(sql string) (*mysql.StmtPrepareOK, []*mysql.ColumnDef, []*mysql.ColumnDef, error) {
	if err := c.checkConsumed(); err != nil {
		return nil, nil, nil, err
	}
	if err := c.sendCommand(mysql.ComStmtPrepare, []byte(sql)); err != nil {
		return nil, nil, nil, err
	}
	c.metrics.ObserveCommand("stmt_prepare")

	reply, _, err := c.pkt.ReadPacket()
	if err != nil {
		return nil, nil, nil, err
	}
	if mysql.IsErrPacket(reply) {
		return nil, nil, nil, errFromErrPacket(reply)
	}
	stmtOK, err := mysql.ParseStmtPrepareOK(reply)
	if err != nil {
		return nil, nil, nil, err
	}

	params, err := c.readDefList(int(stmtOK.ParamCount))
	if err != nil {
		return nil, nil, nil, err
	}
	results, err := c.readDefList(int(stmtOK.ColumnCount))
	if err != nil {
		return nil, nil, nil, err
	}
	return stmtOK, params, results, nil
}

func (c *Connection) readDefList(count int) ([]*mysql.ColumnDef, error) {
	if count == 0 {
		return nil, nil
	}
	defs := make([]*mysql.ColumnDef, 0, count)
	for i := 0; i < count; i++ {
		raw, _, err := c.pkt.ReadPacket()
		if err != nil {
			return nil, err
		}
		col, err := mysql.ParseColumnDef41(raw)
		if err != nil {
			return nil, err
		}
		defs = append(defs, col)
	}
	eof, _, err := c.pkt.ReadPacket()
	if err != nil {
		return nil, err
	}
	if !mysql.IsEOFPacket(eof) {
		return nil, classifyResponse("prepare metadata EOF", eof)
	}
	return defs, nil
}

// ExecuteStmt sends COM_STMT_EXECUTE for a prepared statement that
// returns no result set.
func (c *Connection) ExecuteStmt(stmtID uint32, params []mysql.Value) (*mysql.OKPacket, error) {
	if err := c.checkConsumed(); err != nil {
		return nil, err
	}
	if err := c.sendCommand(mysql.ComStmtExecute, buildStmtExecuteBody(stmtID, params)); err != nil {
		return nil, err
	}
	c.metrics.ObserveCommand("stmt_execute")

	reply, _, err := c.pkt.ReadPacket()
	if err != nil {
		return nil, err
	}
	switch {
	case mysql.IsOKPacket(reply):
		return mysql.ParseOK(reply)
	case mysql.IsErrPacket(reply):
		return nil, errFromErrPacket(reply)
	default:
		return nil, classifyResponse("execute stmt", reply)
	}
}

// QueryStmt sends COM_STMT_EXECUTE for a prepared statement that returns
// a result set, and streams rows through the binary protocol (spec.md
// §4.5). The parameter wire types are derived from the values
// themselves, not from paramDefs — see DESIGN.md, "Open Question
// resolutions" (resolving the
// reference source's likely bug flagged in spec.md §9).
func (c *Connection) QueryStmt(stmtID uint32, params []mysql.Value) ([]*mysql.ColumnDef, *RowStream, error) {
	if err := c.checkConsumed(); err != nil {
		return nil, nil, err
	}
	if err := c.sendCommand(mysql.ComStmtExecute, buildStmtExecuteBody(stmtID, params)); err != nil {
		return nil, nil, err
	}
	c.metrics.ObserveCommand("stmt_execute")
	start := nowFunc()

	reply, _, err := c.pkt.ReadPacket()
	if err != nil {
		return nil, nil, err
	}
	if mysql.IsErrPacket(reply) {
		return nil, nil, errFromErrPacket(reply)
	}

	columns, err := c.readColumnDefs(reply)
	if err != nil {
		return nil, nil, err
	}
	c.consumed = false
	return columns, &RowStream{conn: c, columns: columns, binary: true, start: start}, nil
}

// ResetStmt sends COM_STMT_RESET. Unlike every other command, it does
// not require consumed == true first: it is the one explicit
// state-clearing hook spec.md §9 describes, and forcibly sets
// consumed = true on success so a caller can abandon an open stream
// without draining it.
func (c *Connection) ResetStmt(stmtID uint32) error {
	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, stmtID)
	if err := c.sendCommand(mysql.ComStmtReset, body); err != nil {
		return err
	}
	c.metrics.ObserveCommand("stmt_reset")

	reply, _, err := c.pkt.ReadPacket()
	if err != nil {
		return err
	}
	switch {
	case mysql.IsOKPacket(reply):
		c.consumed = true
		return nil
	case mysql.IsErrPacket(reply):
		return errFromErrPacket(reply)
	default:
		return classifyResponse("stmt reset", reply)
	}
}

// CloseStmt sends COM_STMT_CLOSE. No reply is expected on the wire.
func (c *Connection) CloseStmt(stmtID uint32) error {
	if err := c.checkConsumed(); err != nil {
		return err
	}
	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, stmtID)
	if err := c.sendCommand(mysql.ComStmtClose, body); err != nil {
		return err
	}
	c.metrics.ObserveCommand("stmt_close")
	return nil
}

// Close closes the outbound side first (COM_QUIT, best-effort) then the
// transport, per spec.md §4.5.
func (c *Connection) Close() error {
	_ = c.sendCommand(mysql.ComQuit, nil)
	return mysql.WrapNetworkErr(c.netConn.Close())
}

func buildStmtExecuteBody(stmtID uint32, params []mysql.Value) []byte {
	body := make([]byte, 0, 9+len(params)*10)
	idBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(idBuf, stmtID)
	body = append(body, idBuf...)
	body = append(body, 0x00) // CURSOR_TYPE_NO_CURSOR
	iterBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(iterBuf, 1)
	body = append(body, iterBuf...)

	if len(params) == 0 {
		return body
	}

	body = append(body, mysql.MakeNullBitmap(params)...)
	body = append(body, 0x01) // new-params-bound-flag

	for _, p := range params {
		tb := mysql.ParamTypeFor(p)
		body = append(body, byte(tb.Type), tb.Flag)
	}
	for _, p := range params {
		if p.IsNull() {
			continue
		}
		body = mysql.PutBinaryParam(body, p)
	}
	return body
}

// nowFunc supplies the start time of a query/queryStmt for the
// query-duration metric; the end of the interval is taken with
// time.Since.
var nowFunc = time.Now

// RowStream is the lazy, single-pass row iterator of spec.md §9. Each
// call to Next performs blocking I/O and is not restartable; once it
// returns io.EOF or a non-nil error, the stream is done.
type RowStream struct {
	conn    *Connection
	columns []*mysql.ColumnDef
	binary  bool
	done    bool
	err     error
	start   time.Time
}

// Columns returns the result set's column metadata.
func (rs *RowStream) Columns() []*mysql.ColumnDef { return rs.columns }

// Err returns the error that ended the stream, if any. Resolves
// spec.md §9's "drop semantics" note for a language without
// destructors: Err plus the connection's consumed flag are the
// enforcement points, not an implicit drain.
func (rs *RowStream) Err() error { return rs.err }

// Next reads and decodes one row. It returns io.EOF when the result set
// is exhausted — at that point the connection transitions back to the
// Ready state and new commands may be issued.
func (rs *RowStream) Next() ([]mysql.Value, error) {
	if rs.done {
		return nil, io.EOF
	}
	raw, _, err := rs.conn.pkt.ReadPacket()
	if err != nil {
		rs.done = true
		rs.err = err
		return nil, err
	}
	if mysql.IsEOFPacket(raw) {
		rs.done = true
		rs.conn.consumed = true
		rs.conn.metrics.ObserveQueryDuration(time.Since(rs.start).Seconds())
		return nil, io.EOF
	}
	if mysql.IsErrPacket(raw) {
		rs.done = true
		rs.conn.consumed = true
		rs.err = errFromErrPacket(raw)
		return nil, rs.err
	}
	var row []mysql.Value
	if rs.binary {
		row, err = mysql.DecodeBinaryRow(raw, rs.columns)
	} else {
		row, err = mysql.DecodeTextRow(raw, rs.columns)
	}
	if err != nil {
		rs.done = true
		rs.err = err
		return nil, err
	}
	return row, nil
}
