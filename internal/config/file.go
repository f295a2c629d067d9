package config

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults used when the corresponding FileConfig field is zero.
const (
	DefaultFileMaxSizeMB  = 100
	DefaultFileMaxAgeDays = 7
	DefaultFileMaxBackups = 5
)

// NewFileWriter opens the rotating log file at cfg.Path, or returns nil
// when no path is set.
func NewFileWriter(cfg FileConfig) io.Writer {
	if cfg.Path == "" {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    positiveOr(cfg.MaxSizeMB, DefaultFileMaxSizeMB),
		MaxAge:     positiveOr(cfg.MaxAgeDays, DefaultFileMaxAgeDays),
		MaxBackups: positiveOr(cfg.MaxBackups, DefaultFileMaxBackups),
		Compress:   cfg.Compress,
		LocalTime:  true,
	}
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
