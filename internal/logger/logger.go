package logger

import (
    "fmt"
    "io"
    "os"
    "strings"

    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
)

type Config struct {
    Level  string // debug, info, warn, error
    Format string // json, console
    Output string // stdout, stderr, or file path
}

// New builds the process logger. Unknown levels fall back to info.
func New(cfg Config) (*zap.Logger, error) {
    writer, err := openOutput(cfg.Output)
    if err != nil {
        return nil, err
    }
    return newWithWriter(cfg, writer), nil
}

func newWithWriter(cfg Config, w io.Writer) *zap.Logger {
    core := zapcore.NewCore(newEncoder(cfg.Format), zapcore.AddSync(w), parseLevel(cfg.Level))
    return zap.New(core,
        zap.AddCaller(),
        zap.AddStacktrace(zapcore.ErrorLevel),
    )
}

func parseLevel(level string) zapcore.Level {
    switch strings.ToLower(level) {
    case "debug":
        return zapcore.DebugLevel
    case "warn", "warning":
        return zapcore.WarnLevel
    case "error":
        return zapcore.ErrorLevel
    default:
        return zapcore.InfoLevel
    }
}

func newEncoder(format string) zapcore.Encoder {
    encoderConfig := zapcore.EncoderConfig{
        TimeKey:        "ts",
        LevelKey:       "level",
        NameKey:        "logger",
        CallerKey:      "caller",
        FunctionKey:    zapcore.OmitKey,
        MessageKey:     "msg",
        StacktraceKey:  "stacktrace",
        LineEnding:     zapcore.DefaultLineEnding,
        EncodeLevel:    zapcore.LowercaseLevelEncoder,
        EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
        EncodeDuration: zapcore.MillisDurationEncoder,
        EncodeCaller:   zapcore.ShortCallerEncoder,
    }
    if strings.ToLower(format) == "console" {
        encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
        return zapcore.NewConsoleEncoder(encoderConfig)
    }
    return zapcore.NewJSONEncoder(encoderConfig)
}

func openOutput(output string) (io.Writer, error) {
    switch strings.ToLower(output) {
    case "", "stdout":
        return os.Stdout, nil
    case "stderr":
        return os.Stderr, nil
    }
    file, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
    if err != nil {
        return nil, fmt.Errorf("open log output %s: %w", output, err)
    }
    return file, nil
}
