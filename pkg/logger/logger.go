package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/amoylab/sessionkv/internal/common/cnst"
	"github.com/amoylab/sessionkv/internal/common/config"
	"github.com/amoylab/sessionkv/pkg/version"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	outputStdout = "stdout"
	outputStderr = "stderr"
	outputFile   = "file"

	defaultTimeLayout = "2006-01-02 15:04:05.000"
)

// NewLogger builds the process logger. Every entry carries the app name and
// build version so logs from several sessionkv nodes can be told apart.
func NewLogger(cfg *config.LoggerConfig) (*zap.Logger, error) {
	setLoggerDefaults(cfg)

	sink, err := openSink(cfg)
	if err != nil {
		return nil, err
	}

	opts := []zap.Option{
		zap.AddCaller(),
		zap.Fields(
			zap.String("app", cnst.AppName),
			zap.String("version", version.Get()),
		),
	}
	if cfg.Stacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	core := zapcore.NewCore(newEncoder(cfg), sink, getLogLevel(cfg.Level))
	return zap.New(core, opts...), nil
}

func setLoggerDefaults(cfg *config.LoggerConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
	if cfg.Output == "" {
		cfg.Output = outputStdout
	}
	if cfg.Output == outputFile && cfg.FilePath == "" {
		cfg.FilePath = filepath.Join("logs", cnst.AppName+".log")
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = 100 // MB
	}
	if cfg.MaxBackups == 0 {
		cfg.MaxBackups = 3
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 7 // days
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = "Local"
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = defaultTimeLayout
	}
}

func openSink(cfg *config.LoggerConfig) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(cfg.Output) {
	case outputStdout:
		return zapcore.Lock(os.Stdout), nil
	case outputStderr:
		return zapcore.Lock(os.Stderr), nil
	case outputFile:
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			LocalTime:  true,
			Compress:   cfg.Compress,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported log output %q", cfg.Output)
	}
}

func newEncoder(cfg *config.LoggerConfig) zapcore.Encoder {
	loc := resolveTimeZone(cfg)
	layout := cfg.TimeFormat

	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "time"
	ec.EncodeDuration = zapcore.StringDurationEncoder
	ec.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.In(loc).Format(layout))
	}

	if strings.EqualFold(cfg.Format, "console") {
		if cfg.Color {
			ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			ec.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

// resolveTimeZone falls back to local time for unknown zones
func resolveTimeZone(cfg *config.LoggerConfig) *time.Location {
	if cfg.TimeZone == "" || cfg.TimeZone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}

func getLogLevel(level string) zapcore.Level {
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}
