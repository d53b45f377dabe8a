package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Leveled logger shared by the front server and primebankctl.
// Package-level functions log without a component; Named returns a logger
// that tags every line with component=<name>.

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var (
	mu     sync.RWMutex
	logger *log.Logger = log.New(os.Stdout, "", 0)
	level  Level       = LevelInfo
)

// ParseLevel maps debug|info|warn|warning|error|fatal (any case) to a Level.
// Unknown input yields LevelInfo.
func ParseLevel(l string) Level {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Init sets the global log level. Call early during startup. Default level is Info.
func Init(l string) {
	mu.Lock()
	defer mu.Unlock()
	level = ParseLevel(l)
}

// SetOutput redirects all log output (the CLI sends logs to stderr).
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = log.New(w, "", 0)
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	}
	return "info"
}

func shouldLog(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= level
}

func output(lvl Level, component, format string, v ...interface{}) {
	if lvl != LevelFatal && !shouldLog(lvl) {
		return
	}
	var b strings.Builder
	b.WriteString(time.Now().Format(time.RFC3339))
	b.WriteString(" [")
	b.WriteString(strings.ToUpper(lvl.String()))
	b.WriteString("] ")
	if component != "" {
		b.WriteString("component=")
		b.WriteString(component)
		b.WriteString(" ")
	}
	b.WriteString(fmt.Sprintf(format, v...))
	mu.RLock()
	out := logger
	mu.RUnlock()
	out.Print(b.String())
}

func Debugf(format string, v ...interface{}) { output(LevelDebug, "", format, v...) }
func Infof(format string, v ...interface{})  { output(LevelInfo, "", format, v...) }
func Warnf(format string, v ...interface{})  { output(LevelWarn, "", format, v...) }
func Errorf(format string, v ...interface{}) { output(LevelError, "", format, v...) }

func Fatalf(format string, v ...interface{}) {
	output(LevelFatal, "", format, v...)
	os.Exit(1)
}

func Debug(v string) { Debugf("%s", v) }
func Info(v string)  { Infof("%s", v) }
func Warn(v string)  { Warnf("%s", v) }
func Error(v string) { Errorf("%s", v) }

// LevelString returns the current level as text.
func LevelString() string {
	mu.RLock()
	defer mu.RUnlock()
	return level.String()
}

// Logger is a component-scoped view of the global logger.
type Logger struct {
	component string
}

// Named returns a logger whose lines carry component=<name>.
func Named(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) Debugf(format string, v ...interface{}) { output(LevelDebug, l.component, format, v...) }
func (l *Logger) Infof(format string, v ...interface{})  { output(LevelInfo, l.component, format, v...) }
func (l *Logger) Warnf(format string, v ...interface{})  { output(LevelWarn, l.component, format, v...) }
func (l *Logger) Errorf(format string, v ...interface{}) { output(LevelError, l.component, format, v...) }
