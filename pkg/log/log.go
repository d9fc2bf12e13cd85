// Package log configures the process-wide zap logger shared by the
// scheduler, the workers and the CLI binaries.
package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// encoderConfig keeps log lines grep-friendly: console encoding with
// RFC3339 timestamps, since the binaries run under a supervisor that
// captures plain stdout.
func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "severity",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// InitLog builds the logger at the given level. Stacktraces are
// reserved for DPanic and above; error-level lines stay single-line.
func InitLog(lvl zap.AtomicLevel) *zap.Logger {
	cfg := zap.Config{
		Level:            lvl,
		Encoding:         "console",
		EncoderConfig:    encoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build(zap.AddStacktrace(zap.DPanicLevel))
	if err != nil {
		panic(err)
	}
	return logger
}
