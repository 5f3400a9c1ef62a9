package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Component logger names. Each shows up as the "logger" key of an entry.
const (
	ComponentHTTP       = "http"
	ComponentPostgres   = "postgres"
	ComponentNotify     = "notify"
	ComponentMatchRun   = "match_run"
	ComponentConsent    = "consent"
	ComponentReminders  = "reminders"
	ComponentRedelivery = "redelivery"
	ComponentMigration  = "migration"
	ComponentSeeder     = "seeder"
)

type Options struct {
	JSON  bool
	Debug bool
	// Service and Environment are attached to every entry when set.
	Service     string
	Environment string
}

func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	encoder := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "time",
		NameKey:        "logger",
		CallerKey:      "caller",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
	encoding := "json"
	if !opts.JSON {
		encoding = "console"
		encoder.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	cfg := zap.Config{
		Encoding:          encoding,
		Level:             zap.NewAtomicLevelAt(level),
		Development:       opts.Debug,
		DisableStacktrace: !opts.Debug,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		EncoderConfig:     encoder,
	}

	fields := make([]zap.Field, 0, 2)
	if opts.Service != "" {
		fields = append(fields, zap.String("service", opts.Service))
	}
	if opts.Environment != "" {
		fields = append(fields, zap.String("env", opts.Environment))
	}
	return cfg.Build(zap.Fields(fields...))
}

// Component returns the named child logger for one part of the service. A nil l gives a no-op logger.
func Component(l *zap.Logger, name string) *zap.Logger {
	return OrNop(l).Named(name)
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
