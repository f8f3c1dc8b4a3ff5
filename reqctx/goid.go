package reqctx

import (
	"bytes"
	"runtime"
	"strconv"
)

// goid extracts the calling goroutine's id from its stack trace header
// ("goroutine 123 [running]: ..."). The runtime does not expose goroutine
// ids directly; this is the standard workaround. It is only ever used to
// key the per-goroutine context stack registry below.
func goid() int64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		buf = buf[:i]
	}
	id, _ := strconv.ParseInt(string(buf), 10, 64)
	return id
}
