package logger

// LevelWrapper adapts a Base implementation (level-check plus a single
// Log entrypoint) into the full Logger interface, accumulating With() pairs
// so backends like zaplogger only ever need to implement Base.
type LevelWrapper struct {
	Base
	kv []any
}

func WrapLogger(l Base) Logger {
	return &LevelWrapper{Base: l}
}

func (w *LevelWrapper) With(kv ...any) Logger {
	combined := make([]any, 0, len(w.kv)+len(kv))
	combined = append(combined, w.kv...)
	combined = append(combined, kv...)
	return &LevelWrapper{Base: w.Base, kv: combined}
}

func (w *LevelWrapper) Debug(msg string, kv ...any) {
	w.Log(DebugLevel, msg, append(w.kv, kv...)...)
}

func (w *LevelWrapper) Info(msg string, kv ...any) {
	w.Log(InfoLevel, msg, append(w.kv, kv...)...)
}

func (w *LevelWrapper) Warn(msg string, kv ...any) {
	w.Log(WarnLevel, msg, append(w.kv, kv...)...)
}

func (w *LevelWrapper) Error(msg string, kv ...any) {
	w.Log(ErrorLevel, msg, append(w.kv, kv...)...)
}
