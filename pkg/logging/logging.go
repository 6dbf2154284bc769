/*
Package logging is the secondary, line-oriented audit sink. The primary
logger throughout the gateway is charmbracelet/log; this one exists
specifically for the push notifier (C6), which needs a durable, greppable
delivery trail independent of wherever the structured logger happens to be
pointed. The file is rotated by lumberjack so a long-lived gateway process
doesn't grow it unbounded.
*/
package logging

import (
	"fmt"
	"log"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	globalLogger *log.Logger
	rotator      *lumberjack.Logger
)

// Init points the audit sink at logFilePath, rotating at 50MB with 5
// backups kept for 28 days.
func Init(logFilePath string) error {
	rotator = &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	}

	globalLogger = log.New(rotator, "", 0)
	Log("audit log opened at %s", logFilePath)
	return nil
}

// Log formats and writes a message to the audit sink with a timestamp and
// caller info. It is safe to call before Init; messages are dropped to
// stdout with a warning prefix instead of panicking.
func Log(format string, v ...any) {
	if globalLogger == nil {
		fmt.Printf("[audit:no-sink] "+format+"\n", v...)
		return
	}

	_, file, line, ok := runtime.Caller(1)
	caller := ""
	if ok {
		caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}

	msg := fmt.Sprintf(format, v...)
	timestamp := time.Now().Format("2006-01-02 15:04:05.000000")
	globalLogger.Printf("%s [%s] %s", timestamp, caller, msg)
}

// Close flushes and closes the rotator's underlying file.
func Close() {
	if rotator != nil {
		Log("audit log closed")
		_ = rotator.Close()
	}
}
