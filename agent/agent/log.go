package agent

import (
	"fmt"
	"os"
	"time"

	"lockwatch/common/logger"
)

// Package-level logger injected by main at startup
var Log *logger.Logger

// SetLogger injects the structured logger from the main application
func SetLogger(l *logger.Logger) {
	Log = l
}

func logError(msg string, kv ...interface{}) {
	if Log != nil {
		Log.Error(msg, kv...)
		return
	}
	fmt.Fprintf(os.Stderr, "%s [agent][ERROR] %s\n", time.Now().Format(time.RFC3339), msg)
}

func logWarn(msg string, kv ...interface{}) {
	if Log != nil {
		Log.Warn(msg, kv...)
		return
	}
	fmt.Fprintf(os.Stderr, "%s [agent][WARN] %s\n", time.Now().Format(time.RFC3339), msg)
}

func logInfo(msg string, kv ...interface{}) {
	if Log != nil {
		Log.Info(msg, kv...)
		return
	}
	fmt.Fprintf(os.Stderr, "%s [agent][INFO] %s\n", time.Now().Format(time.RFC3339), msg)
}

func logDebug(msg string, kv ...interface{}) {
	if Log != nil {
		Log.Debug(msg, kv...)
	}
}
