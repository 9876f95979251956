// Package runlog writes the human-readable audit log uploaded with each batch run.
package runlog

import (
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Log appends lines to a file. The file is opened and closed on every write,
// so a crash mid-run leaves every earlier line readable. Writes are
// serialized, so concurrent callers never interleave within a line.
type Log struct {
	path string
	mu   sync.Mutex
	log  zerolog.Logger
}

// New returns a Log appending to path. The file is created on first write.
func New(path string, log zerolog.Logger) *Log {
	return &Log{path: path, log: log}
}

// Path returns the log file location.
func (l *Log) Path() string { return l.path }

// Write appends msg followed by a newline. Failures go to the process log;
// the audit log is never allowed to fail a run.
func (l *Log) Write(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.log.Warn().Err(err).Str("path", l.path).Msg("run log open failed")
		return
	}
	if _, err := f.WriteString(msg + "\n"); err != nil {
		l.log.Warn().Err(err).Str("path", l.path).Msg("run log write failed")
	}
	if err := f.Close(); err != nil {
		l.log.Warn().Err(err).Str("path", l.path).Msg("run log close failed")
	}
}

// Writef formats according to a format specifier and appends the result.
func (l *Log) Writef(format string, args ...any) {
	l.Write(fmt.Sprintf(format, args...))
}
