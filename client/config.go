package client

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/prometheus/client_golang/prometheus"

	"mysqlwire/mysql"
)

// Config describes what's needed to dial and authenticate a single
// connection (spec.md §6). SQL parsing, pooling, and TLS negotiation
// live outside this module; CertFile/KeyFile/CAFile are accepted but,
// per spec.md §6, an implementation MAY omit wiring them into an
// actual TLS handshake, and this one does — they're stubbed fields a
// caller may inspect, not acted on.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string

	// Charset is the charset byte advertised in the handshake response
	// (e.g. 0x2d for utf8mb4, 0x21 for utf8). Defaults to utf8mb4.
	Charset byte

	// TLS paths are accepted for interface completeness but unused —
	// see the doc comment above.
	CertFile string
	KeyFile  string
	CAFile   string

	ReadTimeoutMillis  int
	WriteTimeoutMillis int

	Logger  logrus.FieldLogger
	Metrics *mysql.Metrics
}

const charsetUTF8MB4 = 0x2d

// Addr returns the "host:port" dial target, applying mysql.DefaultPort
// when Port is unset.
func (c *Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = mysql.DefaultPort
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

func (c *Config) charsetOrDefault() byte {
	if c.Charset == 0 {
		return charsetUTF8MB4
	}
	return c.Charset
}

// NewMetricsForConfig is a convenience constructor wiring a Prometheus
// registry into cfg.Metrics in one call.
func NewMetricsForConfig(cfg *Config, reg prometheus.Registerer, namespace string) {
	cfg.Metrics = mysql.NewMetrics(reg, namespace)
}
