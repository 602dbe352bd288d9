package logging

// Logger is the minimal logging surface used across the supervisor.
type Logger interface {
	Debugf(msg string, args ...interface{})
	Infof(msg string, args ...interface{})
	Warnf(msg string, args ...interface{})
	Errorf(msg string, args ...interface{})
}

type LogFunc func(format string, args ...interface{})

// LogFuncs allows composing a Logger out of plain printf-style functions,
// e.g. to derive a per-service logger from the supervisor logger.
type LogFuncs struct {
	Debugf LogFunc
	Infof  LogFunc
	Warnf  LogFunc
	Errorf LogFunc
}

type logger struct {
	prefix string
	funcs  LogFuncs
}

// NewLogger returns a Logger that prepends prefix to every message and
// forwards to the given functions. Nil functions drop their level.
func NewLogger(prefix string, funcs LogFuncs) Logger {
	return &logger{
		prefix: prefix,
		funcs:  funcs,
	}
}

// NewPrefixLogger derives a prefixed Logger from an existing one.
func NewPrefixLogger(prefix string, base Logger) Logger {
	return NewLogger(prefix, LogFuncs{
		Debugf: base.Debugf,
		Infof:  base.Infof,
		Warnf:  base.Warnf,
		Errorf: base.Errorf,
	})
}

func (l *logger) logf(fn LogFunc, msg string, args ...interface{}) {
	if fn == nil {
		return
	}
	if l.prefix != "" {
		msg = l.prefix + msg
	}
	fn(msg, args...)
}

func (l *logger) Debugf(msg string, args ...interface{}) {
	l.logf(l.funcs.Debugf, msg, args...)
}

func (l *logger) Infof(msg string, args ...interface{}) {
	l.logf(l.funcs.Infof, msg, args...)
}

func (l *logger) Warnf(msg string, args ...interface{}) {
	l.logf(l.funcs.Warnf, msg, args...)
}

func (l *logger) Errorf(msg string, args ...interface{}) {
	l.logf(l.funcs.Errorf, msg, args...)
}
