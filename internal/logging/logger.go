package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level      string `mapstructure:"level"`
	Directory  string `mapstructure:"directory"` // empty disables file output
	MaxSize    int    `mapstructure:"max_size"`  // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
	Console    bool   `mapstructure:"console"`
}

// New builds a logger with one rotating JSON file per level (sync-info.log,
// sync-error.log, ...) plus an optional console core.
func New(cfg Config) (*zap.Logger, error) {
	floor := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := floor.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("logging level %q: %w", cfg.Level, err)
		}
	}

	var cores []zapcore.Core
	if cfg.Directory != "" {
		if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
			return nil, fmt.Errorf("could not create log directory: %w", err)
		}
		for _, lvl := range []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel} {
			if lvl < floor {
				continue
			}
			cores = append(cores, fileCore(cfg, lvl))
		}
	}
	if cfg.Console {
		cores = append(cores, consoleCore(floor))
	}
	if len(cores) == 0 {
		return zap.NewNop(), nil
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func fileCore(cfg Config, level zapcore.Level) zapcore.Core {
	enc := zapcore.EncoderConfig{
		MessageKey:   "message",
		LevelKey:     "level",
		TimeKey:      "time",
		CallerKey:    "caller",
		EncodeLevel:  zapcore.CapitalLevelEncoder,
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(cfg.Directory, fmt.Sprintf("sync-%s.log", level.String())),
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	})
	// error file also takes dpanic/panic/fatal
	only := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		if level == zapcore.ErrorLevel {
			return l >= level
		}
		return l == level
	})
	return zapcore.NewCore(zapcore.NewJSONEncoder(enc), w, only)
}

func consoleCore(floor zapcore.Level) zapcore.Core {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc),
		zapcore.AddSync(os.Stderr),
		zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= floor }),
	)
}
