package logging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type impl struct {
	name  string
	level AtomicLevel
	inUTC bool

	// fields are bound by WithFields and written ahead of each entry's own.
	fields    []zapcore.Field
	appenders []Appender
}

func newImpl(name string, level Level, inUTC bool, appenders ...Appender) *impl {
	return &impl{
		name:      name,
		level:     NewAtomicLevelAt(level),
		inUTC:     inUTC,
		appenders: appenders,
	}
}

func (imp *impl) AddAppender(appender Appender) {
	imp.appenders = append(imp.appenders, appender)
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) GetLevel() Level {
	return imp.level.Get()
}

func (imp *impl) Sublogger(subname string) Logger {
	name := subname
	if imp.name != "" {
		name = imp.name + "." + subname
	}
	return &impl{
		name:      name,
		level:     NewAtomicLevelAt(imp.level.Get()),
		inUTC:     imp.inUTC,
		fields:    imp.fields,
		appenders: imp.appenders,
	}
}

func (imp *impl) WithFields(keysAndValues ...interface{}) Logger {
	child := *imp
	child.fields = imp.withFields(keysAndValues)
	return &child
}

// withFields returns the bound fields followed by keysAndValues, never aliasing imp.fields.
func (imp *impl) withFields(keysAndValues []interface{}) []zapcore.Field {
	if len(keysAndValues) == 0 {
		return imp.fields
	}
	fields := make([]zapcore.Field, 0, len(imp.fields)+len(keysAndValues)/2)
	fields = append(fields, imp.fields...)
	return append(fields, toFields(keysAndValues)...)
}

func (imp *impl) Sync() error {
	var err error
	for _, appender := range imp.appenders {
		err = multierr.Combine(err, appender.Sync())
	}
	return err
}

// toFields pairs up keysAndValues as zap fields. Struct values are encoded with their public
// fields only. A trailing key without a value gets an error in its place.
func toFields(keysAndValues []interface{}) []zapcore.Field {
	fields := make([]zapcore.Field, 0, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if i+1 == len(keysAndValues) {
			fields = append(fields, zap.Any(key, errors.New("unpaired log key")))
			break
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}

// emit writes one entry to every appender when level is enabled or force is set. It must be
// called directly from the exported logging methods for the caller lookup to be right.
func (imp *impl) emit(level Level, force bool, msg string, keysAndValues []interface{}) {
	if !force && level < imp.level.Get() {
		return
	}

	entry := zapcore.Entry{
		Level:      level.AsZap(),
		Time:       time.Now(),
		LoggerName: imp.name,
		Message:    msg,
		Caller:     getCaller(),
	}
	if imp.inUTC {
		entry.Time = entry.Time.UTC()
	}

	fields := imp.withFields(keysAndValues)
	for _, appender := range imp.appenders {
		if err := appender.Write(entry, fields); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

func (imp *impl) Debug(args ...interface{}) {
	imp.emit(DEBUG, false, fmt.Sprint(args...), nil)
}

func (imp *impl) Debugf(template string, args ...interface{}) {
	imp.emit(DEBUG, false, fmt.Sprintf(template, args...), nil)
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	imp.emit(DEBUG, false, msg, keysAndValues)
}

func (imp *impl) CDebugw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	key := debugKey(ctx)
	if key != "" {
		keysAndValues = append([]interface{}{"debug_key", key}, keysAndValues...)
	}
	imp.emit(DEBUG, key != "", msg, keysAndValues)
}

func (imp *impl) Info(args ...interface{}) {
	imp.emit(INFO, false, fmt.Sprint(args...), nil)
}

func (imp *impl) Infof(template string, args ...interface{}) {
	imp.emit(INFO, false, fmt.Sprintf(template, args...), nil)
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	imp.emit(INFO, false, msg, keysAndValues)
}

func (imp *impl) Warn(args ...interface{}) {
	imp.emit(WARN, false, fmt.Sprint(args...), nil)
}

func (imp *impl) Warnf(template string, args ...interface{}) {
	imp.emit(WARN, false, fmt.Sprintf(template, args...), nil)
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	imp.emit(WARN, false, msg, keysAndValues)
}

func (imp *impl) Error(args ...interface{}) {
	imp.emit(ERROR, false, fmt.Sprint(args...), nil)
}

func (imp *impl) Errorf(template string, args ...interface{}) {
	imp.emit(ERROR, false, fmt.Sprintf(template, args...), nil)
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	imp.emit(ERROR, false, msg, keysAndValues)
}

// getCaller returns the code location that called the logger: three frames up, past emit and the
// exported logging method.
func getCaller() zapcore.EntryCaller {
	const skipToLogCaller = 3
	pc, file, line, ok := runtime.Caller(skipToLogCaller)
	if !ok {
		return zapcore.EntryCaller{}
	}
	caller := zapcore.EntryCaller{Defined: true, PC: pc, File: file, Line: line}
	if fn := runtime.FuncForPC(pc); fn != nil {
		caller.Function = fn.Name()
	}
	return caller
}
