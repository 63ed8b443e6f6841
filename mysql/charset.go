package mysql

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// legacyCharsets maps a handful of well-known MySQL collation ids to the
// x/text decoder that turns their bytes into UTF-8. This is
// intentionally not exhaustive: an unrecognized charset id is passed
// through as raw bytes decoded as if they were already UTF-8 (SPEC_FULL
// §4.6 — unrecognized charsets degrade, they never fail decode).
var legacyCharsets = map[uint16]encoding.Encoding{
	5:  charmap.ISO8859_1, // latin1_german1_ci
	8:  charmap.ISO8859_1, // latin1_swedish_ci (MySQL default latin1)
	15: charmap.ISO8859_1, // latin1_danish_ci
	31: charmap.ISO8859_1, // latin1_bin
	47: charmap.ISO8859_1, // latin1_general_ci / latin1_bin variants
	48: charmap.ISO8859_1, // latin1_general_cs
	94: charmap.ISO8859_1, // cp1252 West European
	7:  charmap.KOI8R,      // koi8r_general_ci
	13: charmap.KOI8R,      // koi8r_bin
	40: charmap.KOI8R,      // koi8r_general_ci (alt id in some builds)
}

// decodeToUTF8 converts raw column bytes tagged with charsetID into a
// UTF-8 Go string. Charset 63 (binary) and any id not in legacyCharsets
// bypass transcoding entirely: the bytes are assumed already UTF-8 (or
// opaque binary, which is never routed here — see decodeTextField and
// decodeBinaryField).
func decodeToUTF8(charsetID uint16, raw []byte) string {
	dec, ok := legacyCharsets[charsetID]
	if !ok {
		return string(raw)
	}
	out, err := dec.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}
