// Package nlog implements the flight-software diagnostic logging contract:
// eight Cyphal severities, a default package logger, and a pluggable set of
// sinks (UART, USB-CDC, stderr, diagnostic.Record). Only the severity
// contract is part of the core; sinks are peripheral collaborators.
package nlog

import (
	"fmt"
	"os"
	"sync"
)

// Severity mirrors the Cyphal diagnostic.Record severity scale (spec §6):
// trace..alert, values 0..7.
type Severity uint8

const (
	Trace Severity = iota
	Debug
	Info
	Notice
	Warning
	Error
	Critical
	Alert
)

func (s Severity) String() string {
	switch s {
	case Trace:
		return "trace"
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Notice:
		return "notice"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Critical:
		return "critical"
	case Alert:
		return "alert"
	default:
		return "unknown"
	}
}

// Record is a single diagnostic event: severity plus text, timestamped by
// the caller (never by nlog itself, since the board's monotonic clock is
// the only source of truth for "now").
type Record struct {
	Severity Severity
	Text     string
	AtMs     uint32
}

// Sink receives log records. UART/USB-CDC drivers, a stderr sink for host
// tests, and a Cyphal diagnostic.Record publisher all implement this.
type Sink interface {
	Write(Record)
}

// StderrSink backs test runs and the host simulation (cmd/simsat), the way
// aistore's tests log to stderr when no cluster logging is configured.
type StderrSink struct{ mu sync.Mutex }

func (s *StderrSink) Write(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(os.Stderr, "[%s] %s\n", r.Severity, r.Text)
}

// Logger fans a Record out to every attached Sink at or above MinSeverity.
// Per spec design notes §9 ("Global state"), the adapter/sink list is
// write-once after boot.
type Logger struct {
	mu          sync.RWMutex
	sinks       []Sink
	MinSeverity Severity
	now         func() uint32
}

// Default is the process-wide logger singleton, mirroring aistore's
// package-level nlog functions (nlog.Infof, nlog.Infoln, ...).
var Default = New()

// New constructs a Logger with a stderr sink attached by default so that
// early-boot logging before peripheral sinks attach is never silently lost.
func New() *Logger {
	l := &Logger{now: func() uint32 { return 0 }}
	l.sinks = append(l.sinks, &StderrSink{})
	return l
}

// SetClock lets cmd/simsat (or board-support init) wire the monotonic
// millisecond clock in so records carry an accurate AtMs.
func (l *Logger) SetClock(now func() uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// AddSink attaches a peripheral log sink. Called once at boot; see §9.
func (l *Logger) AddSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

func (l *Logger) log(sev Severity, text string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if sev < l.MinSeverity {
		return
	}
	rec := Record{Severity: sev, Text: text, AtMs: l.now()}
	for _, s := range l.sinks {
		s.Write(rec)
	}
}

func (l *Logger) Tracef(f string, a ...any)    { l.log(Trace, fmt.Sprintf(f, a...)) }
func (l *Logger) Debugf(f string, a ...any)    { l.log(Debug, fmt.Sprintf(f, a...)) }
func (l *Logger) Infof(f string, a ...any)     { l.log(Info, fmt.Sprintf(f, a...)) }
func (l *Logger) Noticef(f string, a ...any)   { l.log(Notice, fmt.Sprintf(f, a...)) }
func (l *Logger) Warningf(f string, a ...any)  { l.log(Warning, fmt.Sprintf(f, a...)) }
func (l *Logger) Errorf(f string, a ...any)    { l.log(Error, fmt.Sprintf(f, a...)) }
func (l *Logger) Criticalf(f string, a ...any) { l.log(Critical, fmt.Sprintf(f, a...)) }
func (l *Logger) Alertf(f string, a ...any)    { l.log(Alert, fmt.Sprintf(f, a...)) }

func (l *Logger) Infoln(a ...any)  { l.log(Info, sprintln(a...)) }
func (l *Logger) Debugln(a ...any) { l.log(Debug, sprintln(a...)) }

func sprintln(a ...any) string {
	s := fmt.Sprintln(a...)
	return s[:len(s)-1] // drop the trailing newline fmt.Sprintln appends
}

// Package-level convenience wrappers over Default, mirroring the
// package-level nlog.Infof/nlog.Infoln calls used throughout the teacher.
func Tracef(f string, a ...any)    { Default.Tracef(f, a...) }
func Debugf(f string, a ...any)    { Default.Debugf(f, a...) }
func Infof(f string, a ...any)     { Default.Infof(f, a...) }
func Noticef(f string, a ...any)   { Default.Noticef(f, a...) }
func Warningf(f string, a ...any)  { Default.Warningf(f, a...) }
func Errorf(f string, a ...any)    { Default.Errorf(f, a...) }
func Criticalf(f string, a ...any) { Default.Criticalf(f, a...) }
func Alertf(f string, a ...any)    { Default.Alertf(f, a...) }
func Infoln(a ...any)              { Default.Infoln(a...) }
func Debugln(a ...any)             { Default.Debugln(a...) }

// SetVerbose raises/lowers the minimum emitted severity at runtime (e.g.
// from a register.Access command), matching the spirit of aistore's
// cmn.Rom.FastV verbosity gate.
func SetVerbose(min Severity) { Default.MinSeverity = min }
