package logging

import (
	"context"
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type zapLogger struct {
	l *zap.Logger
}

func newZap(cfg Config) Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	enc := zapcore.NewConsoleEncoder(encCfg)
	if cfg.json() {
		enc = zapcore.NewJSONEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(cfg.output()), zap.NewAtomicLevelAt(zapLevel(parseLevel(cfg.Level))))

	var opts []zap.Option
	if cfg.AddSource {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(2))
	}
	return &zapLogger{l: zap.New(core, opts...)}
}

func (z *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{l: z.l.With(zapFields(nil, fields)...)}
}

func (z *zapLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	z.log(ctx, zapcore.DebugLevel, msg, fields)
}

func (z *zapLogger) Info(ctx context.Context, msg string, fields ...Field) {
	z.log(ctx, zapcore.InfoLevel, msg, fields)
}

func (z *zapLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	z.log(ctx, zapcore.WarnLevel, msg, fields)
}

func (z *zapLogger) Error(ctx context.Context, msg string, fields ...Field) {
	z.log(ctx, zapcore.ErrorLevel, msg, fields)
}

func (z *zapLogger) log(ctx context.Context, level zapcore.Level, msg string, fields []Field) {
	ce := z.l.Check(level, msg)
	if ce == nil {
		return
	}
	var extra []zap.Field
	if id := RequestIDFromContext(ctx); id != "" {
		extra = append(extra, zap.String(requestIDField, id))
	}
	ce.Write(zapFields(extra, fields)...)
}

func zapFields(dst []zap.Field, fields []Field) []zap.Field {
	for _, f := range fields {
		dst = append(dst, zap.Any(f.Key, f.Value))
	}
	return dst
}

func zapLevel(l slog.Level) zapcore.Level {
	switch {
	case l >= slog.LevelError:
		return zapcore.ErrorLevel
	case l >= slog.LevelWarn:
		return zapcore.WarnLevel
	case l >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
