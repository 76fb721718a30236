// Package gethlog is a small leveled, keyed logger in the style this codebase's
// packages expect: log.Info("message", "key", value, ...). It prints a
// colorized line to stderr when stderr is a terminal, and a plain line
// otherwise.
package gethlog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

type Level int

const (
	LvlCrit Level = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Level) String() string {
	switch l {
	case LvlCrit:
		return "CRIT"
	case LvlError:
		return "ERROR"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DEBUG"
	case LvlTrace:
		return "TRACE"
	default:
		return "?"
	}
}

var levelColor = map[Level]*color.Color{
	LvlCrit:  color.New(color.FgMagenta, color.Bold),
	LvlError: color.New(color.FgRed, color.Bold),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgWhite),
}

// Logger writes leveled, keyed log lines to an output stream.
type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	colorize bool
	level    Level
	module   string
	ctx      []interface{}
}

var root = New("")

// Root returns the process-wide root logger.
func Root() *Logger { return root }

// New returns a logger scoped to module, writing to stderr at LvlInfo; it
// reads no settings from Root(). Extra key/value pairs are attached to every
// line it writes.
func New(module string, ctx ...interface{}) *Logger {
	out := colorable.NewColorableStderr()
	return &Logger{
		out:      out,
		colorize: isatty.IsTerminal(os.Stderr.Fd()),
		level:    LvlInfo,
		module:   module,
		ctx:      ctx,
	}
}

// SetLevel adjusts the minimum level this logger emits.
func (l *Logger) SetLevel(lvl Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = lvl
}

func (l *Logger) write(lvl Level, msg string, ctx []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lvl > l.level {
		return
	}
	var b strings.Builder
	ts := time.Now().Format("2006-01-02T15:04:05.000")
	tag := fmt.Sprintf("[%s] %-5s", ts, lvl.String())
	if l.colorize {
		tag = levelColor[lvl].Sprint(tag)
	}
	b.WriteString(tag)
	b.WriteByte(' ')
	if l.module != "" {
		b.WriteString(l.module)
		b.WriteByte(' ')
	}
	b.WriteString(msg)
	all := append(append([]interface{}{}, l.ctx...), ctx...)
	for i := 0; i+1 < len(all); i += 2 {
		fmt.Fprintf(&b, " %v=%v", all[i], all[i+1])
	}
	b.WriteByte('\n')
	io.WriteString(l.out, b.String())
}

func (l *Logger) Trace(msg string, ctx ...interface{}) { l.write(LvlTrace, msg, ctx) }
func (l *Logger) Debug(msg string, ctx ...interface{}) { l.write(LvlDebug, msg, ctx) }
func (l *Logger) Info(msg string, ctx ...interface{})  { l.write(LvlInfo, msg, ctx) }
func (l *Logger) Warn(msg string, ctx ...interface{})  { l.write(LvlWarn, msg, ctx) }
func (l *Logger) Error(msg string, ctx ...interface{}) { l.write(LvlError, msg, ctx) }
func (l *Logger) Crit(msg string, ctx ...interface{})  { l.write(LvlCrit, msg, ctx) }

// New returns a sub-logger of l named module (replacing l's module name),
// with l's level and with ctx appended to l's own key/value pairs.
func (l *Logger) New(module string, ctx ...interface{}) *Logger {
	child := New(module, append(append([]interface{}{}, l.ctx...), ctx...)...)
	child.level = l.level
	return child
}
