// Package hack holds the one unsafe trick the value codec needs: viewing
// a packet's payload bytes as a string without copying, for columns the
// row stream promises never to retain past the current iteration step.
package hack

import (
	"reflect"
	"unsafe"
)

// String reinterprets b as a string sharing b's backing array. The
// result is only valid for as long as b is not mutated or garbage
// collected out from under it — callers that need to keep the value
// must copy it first (see mysql.Value.CopyRetained).
func String(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	pbytes := (*reflect.SliceHeader)(unsafe.Pointer(&b))
	var s string
	pstring := (*reflect.StringHeader)(unsafe.Pointer(&s))
	pstring.Data = pbytes.Data
	pstring.Len = pbytes.Len
	return s
}
