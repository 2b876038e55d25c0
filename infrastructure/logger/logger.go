package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 封装 zap，提供模拟成交、风控准入与档位调整的结构化事件。
type Logger struct {
	*zap.Logger
	config Config
}

// Config 日志配置
type Config struct {
	Level      string   `yaml:"level"`       // debug, info, warn, error
	Outputs    []string `yaml:"outputs"`     // stdout, stderr, file
	OutputFile string   `yaml:"output_file"` // 日志文件路径
	ErrorFile  string   `yaml:"error_file"`  // 错误日志单独文件
	Format     string   `yaml:"format"`      // json 或 console
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Outputs: []string{"stderr"},
		Format:  "console",
	}
}

// New 创建新的Logger实例
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	newEncoder := func() zapcore.Encoder {
		if cfg.Format == "console" {
			return zapcore.NewConsoleEncoder(encoderConfig)
		}
		return zapcore.NewJSONEncoder(encoderConfig)
	}

	var cores []zapcore.Core
	for _, out := range cfg.Outputs {
		switch out {
		case "stdout":
			cores = append(cores, zapcore.NewCore(newEncoder(), zapcore.Lock(os.Stdout), level))
		case "stderr":
			cores = append(cores, zapcore.NewCore(newEncoder(), zapcore.Lock(os.Stderr), level))
		case "file":
			if cfg.OutputFile == "" {
				return nil, fmt.Errorf("log output file required when outputs contains file")
			}
			w, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
			if err != nil {
				return nil, fmt.Errorf("open log file failed: %w", err)
			}
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(w), level))
		default:
			return nil, fmt.Errorf("unknown log output %q", out)
		}
	}

	// 错误日志单独文件
	if cfg.ErrorFile != "" {
		w, err := os.OpenFile(cfg.ErrorFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open error log file failed: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(w), zapcore.ErrorLevel))
	}

	return &Logger{
		Logger: zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)),
		config: cfg,
	}, nil
}

// Nop 丢弃所有输出，库默认值与测试使用。
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Wrap 包装已有的 zap.Logger（例如测试中的 zaptest/observer）。
func Wrap(z *zap.Logger) *Logger {
	if z == nil {
		return Nop()
	}
	return &Logger{Logger: z}
}

// Named 返回带组件名的子 logger。
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name), config: l.config}
}

// With 添加字段返回新的logger
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...), config: l.config}
}

// LogFill 记录一次模拟成交结果
func (l *Logger) LogFill(orderID, profile, status string, fields ...zap.Field) {
	l.Info("fill_event", append([]zap.Field{
		zap.String("order_id", orderID),
		zap.String("profile", profile),
		zap.String("status", status),
	}, fields...)...)
}

// LogRisk 记录风控准入事件，拒单为 warn。
func (l *Logger) LogRisk(admitted bool, reason string, fields ...zap.Field) {
	fs := append([]zap.Field{zap.Bool("admitted", admitted), zap.String("reason", reason)}, fields...)
	if admitted {
		l.Debug("risk_event", fs...)
		return
	}
	l.Warn("risk_event", fs...)
}

// LogNotch 记录日终档位调整
func (l *Logger) LogNotch(oldIndex, newIndex int, reason string, fields ...zap.Field) {
	fs := append([]zap.Field{
		zap.Int("old_index", oldIndex),
		zap.Int("new_index", newIndex),
		zap.String("reason", reason),
	}, fields...)
	if oldIndex == newIndex {
		l.Debug("notch_event", fs...)
		return
	}
	l.Info("notch_event", fs...)
}

// LogError 记录错误并附带上下文
func (l *Logger) LogError(err error, fields ...zap.Field) {
	l.Error("error_event", append([]zap.Field{zap.Error(err)}, fields...)...)
}

// Close 关闭日志器
func (l *Logger) Close() error {
	err := l.Sync()
	// stdout/stderr 在部分平台上 Sync 会返回 EINVAL
	if err != nil && strings.Contains(err.Error(), "invalid argument") {
		return nil
	}
	return err
}
