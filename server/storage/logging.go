package storage

import (
	"fmt"
	"os"
	"strings"
	"time"

	"lockwatch/common/logger"
)

// Log is injected by the server at startup via SetLogger. Before
// injection (and in bare store tests) messages fall back to stderr so
// schema and open/close problems are never silently dropped.
var Log *logger.Logger

// SetLogger injects the structured logger from the main application
func SetLogger(l *logger.Logger) {
	Log = l
}

func logInfo(msg string, kv ...interface{}) {
	if Log != nil {
		Log.Info(msg, kv...)
		return
	}
	fallback("INFO", msg, kv)
}

func logWarn(msg string, kv ...interface{}) {
	if Log != nil {
		Log.Warn(msg, kv...)
		return
	}
	fallback("WARN", msg, kv)
}

// fallback renders key=value pairs inline; an odd trailing key is
// printed bare rather than dropped
func fallback(level, msg string, kv []interface{}) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [storage][%s] %s", time.Now().Format(time.RFC3339), level, msg)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	if len(kv)%2 != 0 {
		fmt.Fprintf(&b, " %v", kv[len(kv)-1])
	}
	fmt.Fprintln(os.Stderr, b.String())
}
