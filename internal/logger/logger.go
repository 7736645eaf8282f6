package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. Debug mode switches to the console
// encoder with debug-level output.
func New(debug bool) (*zap.SugaredLogger, error) {
	level := zapcore.InfoLevel
	encoding := "json"
	if debug {
		level = zapcore.DebugLevel
		encoding = "console"
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         encoding,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
	}

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return zapLogger.Sugar(), nil
}

// Nop returns a logger that discards everything. Used in tests and as
// a fallback before configuration is loaded.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
