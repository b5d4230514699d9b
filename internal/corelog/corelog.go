package corelog

import "go.uber.org/zap"

// Logger is the narrow logging surface the engine's components depend on.
type Logger interface {
	Debugw(msg string, kv ...interface{})
	Infow(msg string, kv ...interface{})
	Warnw(msg string, kv ...interface{})
	Errorw(msg string, kv ...interface{})
	Sync() error
}

type zapLogger struct {
	s *zap.SugaredLogger
}

func (z *zapLogger) Debugw(msg string, kv ...interface{}) { z.s.Debugw(msg, kv...) }
func (z *zapLogger) Infow(msg string, kv ...interface{})  { z.s.Infow(msg, kv...) }
func (z *zapLogger) Warnw(msg string, kv ...interface{})  { z.s.Warnw(msg, kv...) }
func (z *zapLogger) Errorw(msg string, kv ...interface{}) { z.s.Errorw(msg, kv...) }
func (z *zapLogger) Sync() error                          { return z.s.Sync() }

// New builds a production-profile JSON logger at the given level ("debug",
// "info", "warn", "error").
func New(level string) (Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{s: l.Sugar()}, nil
}

// Nop returns a Logger that discards everything, for tests and embedders
// that don't want engine log output.
func Nop() Logger {
	return &zapLogger{s: zap.NewNop().Sugar()}
}
