package core

import (
	"os"
	"strings"

	"github.com/eli0shin/obs-playground/internal/config"
	"go.opentelemetry.io/contrib/bridges/otelzap"
	otellog "go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapFactoryResult holds the result of constructing the zap logger.
type ZapFactoryResult struct {
	Logger *zap.Logger

	// AtomicLevel is the global level. Sinks without their own level
	// follow it at runtime; sinks with an override keep theirs.
	AtomicLevel zap.AtomicLevel
}

// NewZapLogger builds the zap logger from console, file and OTel cores.
// Records reach the OTel log pipelines through lp; a nil lp disables
// the bridge.
func NewZapLogger(cfg config.Config, lp otellog.LoggerProvider) *ZapFactoryResult {
	atomicLevel := zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	consoleLevel := sinkLevel(cfg.Console.Level, atomicLevel)
	fileLevel := sinkLevel(cfg.File.Level, atomicLevel)
	otelLevel := sinkLevel(cfg.OTEL.Level, atomicLevel)

	bridged := cfg.OTEL.Enabled && lp != nil

	cores := make([]zapcore.Core, 0, 4)

	if cfg.Console.Enabled {
		for _, c := range buildConsoleCores(cfg, consoleLevel) {
			cores = append(cores, NewFilteringCore(c, SentinelKey))
		}
	}

	if cfg.File.Enabled && cfg.File.Path != "" {
		if fileCore := buildFileCore(cfg, fileLevel); fileCore != nil {
			cores = append(cores, NewFilteringCore(fileCore, SentinelKey))
		}
	}

	if bridged {
		// otelzap reads the sentinel ctx itself to fill TraceID/SpanID on the
		// record; trace_id/span_id fields stay as explicit attributes.
		otelCore := otelzap.NewCore(cfg.ServiceName, otelzap.WithLoggerProvider(lp))
		cores = append(cores, &levelEnforcer{Core: otelCore, level: otelLevel})
	}

	var core zapcore.Core
	switch len(cores) {
	case 0:
		core = zapcore.NewNopCore()
	case 1:
		core = cores[0]
	default:
		core = zapcore.NewTee(cores...)
	}

	opts := buildZapOptions(cfg)
	// Critical logs at fatal level and returns.
	opts = append(opts, zap.WithFatalHook(noExitHook{}))

	return &ZapFactoryResult{
		Logger:      zap.New(core, opts...),
		AtomicLevel: atomicLevel,
	}
}

func sinkLevel(override string, fallback zap.AtomicLevel) zapcore.LevelEnabler {
	if override == "" {
		return fallback
	}
	return parseLevel(override)
}

type noExitHook struct{}

func (noExitHook) OnWrite(*zapcore.CheckedEntry, []zapcore.Field) {}

func buildZapOptions(cfg config.Config) []zap.Option {
	opts := []zap.Option{
		zap.AddCallerSkip(1),
	}

	if cfg.Development {
		opts = append(opts, zap.Development())
		opts = append(opts, zap.AddCaller())
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	if cfg.ServiceName != "" {
		opts = append(opts, zap.Fields(zap.String("service", cfg.ServiceName)))
	}
	if cfg.Version != "" {
		opts = append(opts, zap.Fields(zap.String("version", cfg.Version)))
	}

	return opts
}

func buildConsoleCores(cfg config.Config, level zapcore.LevelEnabler) []zapcore.Core {
	encoder := buildConsoleEncoder(cfg)

	if !cfg.Console.ErrorsToStderr {
		return []zapcore.Core{zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)}
	}

	// Split at warn: the configured level still applies to both halves.
	belowWarn := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return level.Enabled(lvl) && lvl < zapcore.WarnLevel
	})
	warnAndAbove := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return level.Enabled(lvl) && lvl >= zapcore.WarnLevel
	})
	return []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), belowWarn),
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), warnAndAbove),
	}
}

func buildConsoleEncoder(cfg config.Config) zapcore.Encoder {
	switch cfg.Console.Format {
	case "systemd":
		return buildSystemdEncoder()
	case "pretty":
		return buildPrettyEncoder(cfg)
	case "json":
		return buildJSONEncoder()
	default:
		if cfg.Development {
			return buildPrettyEncoder(cfg)
		}
		return buildJSONEncoder()
	}
}

// syslogPriority returns the RFC 5424 priority prefix journald strips.
func syslogPriority(level zapcore.Level) string {
	switch level {
	case zapcore.DebugLevel:
		return "<7>"
	case zapcore.WarnLevel:
		return "<4>"
	case zapcore.ErrorLevel:
		return "<3>"
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return "<2>"
	default:
		return "<6>"
	}
}

// buildSystemdEncoder writes "<6>INFO  msg  key=value" lines. Journald adds
// its own timestamp, so time and caller are omitted.
func buildSystemdEncoder() zapcore.Encoder {
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.TimeKey = ""
	encoderCfg.EncodeTime = nil
	encoderCfg.CallerKey = ""
	encoderCfg.EncodeCaller = nil
	encoderCfg.EncodeLevel = func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(syslogPriority(l) + l.CapitalString())
	}
	return zapcore.NewConsoleEncoder(encoderCfg)
}

func buildPrettyEncoder(cfg config.Config) zapcore.Encoder {
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeCaller = zapcore.ShortCallerEncoder
	if cfg.Console.Color {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	return zapcore.NewConsoleEncoder(encoderCfg)
}

func buildJSONEncoder() zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.MessageKey = "msg"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(encoderCfg)
}

func buildFileCore(cfg config.Config, level zapcore.LevelEnabler) zapcore.Core {
	writer := config.NewFileWriter(cfg.File)
	if writer == nil {
		return nil
	}
	return zapcore.NewCore(buildJSONEncoder(), zapcore.AddSync(writer), level)
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
