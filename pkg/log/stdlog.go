package log

import (
	stdlog "log"
	"strings"
)

// RedirectStdLog routes standard library log output (used by Pebble and
// net/http) through the provided Logger at InfoLevel.
func RedirectStdLog(l Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(stdWriter{l: l})
}

type stdWriter struct{ l Logger }

func (w stdWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	if msg != "" {
		w.l.Info(msg, Str("source", "stdlog"))
	}
	return len(p), nil
}
