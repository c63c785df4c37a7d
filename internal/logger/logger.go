// Package logger builds the process-wide zap.Logger: JSON to a
// size-rotated file via lumberjack, optionally teed to stdout in console
// encoding for local development.  cmd/ddoccached calls New after
// internal/config.Load, passing the root directory Load discovered; New
// installs the logger with zap.ReplaceGlobals and logs its own install
// through it.
package logger

import (
	"os"
	"path/filepath"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds and installs the global zap logger, writing JSON lines to
// <rootDir>/log/ddoccached.log, rotated at 100 MB and keeping up to 14
// compressed backups for at most 30 days.  When tee is
// true, a second, human-readable core also writes to stdout — local
// development's equivalent of the teacher's interactive-TTY tee.
func New(rootDir string, tee bool) (*zap.Logger, error) {
	logPath := filepath.Join(rootDir, "log", "ddoccached.log")

	rotator := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    100, // megabytes
		MaxBackups: 14,
		MaxAge:     30, // days
		Compress:   true,
	}

	fileEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	cores := []zapcore.Core{
		zapcore.NewCore(fileEncoder, zapcore.AddSync(rotator), zap.InfoLevel),
	}

	if tee {
		consoleCfg := zap.NewDevelopmentEncoderConfig()
		consoleEncoder := zapcore.NewConsoleEncoder(consoleCfg)
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.Lock(zapcore.AddSync(os.Stdout)), zap.DebugLevel))
	}

	core := zapcore.NewTee(cores...)
	l := zap.New(core, zap.AddCaller())
	zap.ReplaceGlobals(l)

	l.Info("logger online", zap.Bool("tee", tee), zap.String("file", logPath))
	return l, nil
}
