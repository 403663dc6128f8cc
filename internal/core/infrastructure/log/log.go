// Package log 提供基于zap的日志实现
// 支持控制台输出、按模块分文件写入以及lumberjack日志轮转
package log

import (
	"fmt"
	"os"
	"path/filepath"

	logconfig "github.com/weisyn/shopflow/internal/config/log"
	logInterface "github.com/weisyn/shopflow/pkg/interfaces/infrastructure/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// 日志级别定义
const (
	DebugLevel = string(logInterface.DebugLevel)
	InfoLevel  = string(logInterface.InfoLevel)
	WarnLevel  = string(logInterface.WarnLevel)
	ErrorLevel = string(logInterface.ErrorLevel)
	FatalLevel = string(logInterface.FatalLevel)
)

// Logger 是日志记录器的结构体，实现了log.Logger接口
type Logger struct {
	zapLogger *zap.Logger
	sugar     *zap.SugaredLogger
}

// moduleRoutingCore 基于 module 字段的路由 Core
// 链交互模块写入 chain 日志，流程模块写入 flow 日志，其余两边都写
type moduleRoutingCore struct {
	chainCore zapcore.Core
	flowCore  zapcore.Core
}

// Enabled 实现 zapcore.Core 接口
func (c *moduleRoutingCore) Enabled(level zapcore.Level) bool {
	return c.chainCore.Enabled(level) || c.flowCore.Enabled(level)
}

// With 实现 zapcore.Core 接口
// With 附加的字段在 Write 阶段看不到，所以这里提前解析 module 并固定路由
func (c *moduleRoutingCore) With(fields []zapcore.Field) zapcore.Core {
	module := moduleOf(fields)
	if isChainModule(module) {
		return c.chainCore.With(fields)
	}
	if isFlowModule(module) {
		return c.flowCore.With(fields)
	}
	return &moduleRoutingCore{
		chainCore: c.chainCore.With(fields),
		flowCore:  c.flowCore.With(fields),
	}
}

// Check 实现 zapcore.Core 接口
func (c *moduleRoutingCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

// Write 实现 zapcore.Core 接口
func (c *moduleRoutingCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	module := moduleOf(fields)
	switch {
	case isChainModule(module):
		return c.chainCore.Write(entry, fields)
	case isFlowModule(module):
		return c.flowCore.Write(entry, fields)
	}

	var errs []error
	if err := c.chainCore.Write(entry, fields); err != nil {
		errs = append(errs, err)
	}
	if err := c.flowCore.Write(entry, fields); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("write log entry: %v", errs)
	}
	return nil
}

// Sync 实现 zapcore.Core 接口
func (c *moduleRoutingCore) Sync() error {
	var errs []error
	if err := c.chainCore.Sync(); err != nil {
		errs = append(errs, err)
	}
	if err := c.flowCore.Sync(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("sync log files: %v", errs)
	}
	return nil
}

// moduleOf 从字段中取出 module 值
func moduleOf(fields []zapcore.Field) string {
	for _, field := range fields {
		if field.Key != "module" {
			continue
		}
		switch field.Type {
		case zapcore.StringType:
			return field.String
		case zapcore.StringerType:
			if s, ok := field.Interface.(fmt.Stringer); ok && s != nil {
				return s.String()
			}
		default:
			if str, ok := field.Interface.(string); ok {
				return str
			}
		}
	}
	return ""
}

// isChainModule 与链交互的模块
func isChainModule(module string) bool {
	switch module {
	case "ledger", "txn", "transport", "wallet", "contracts":
		return true
	}
	return false
}

// isFlowModule 购买流程相关模块
func isFlowModule(module string) bool {
	switch module {
	case "checkout", "allowance", "purchase", "cli", "app":
		return true
	}
	return false
}

// createFileWriter 创建带轮转的日志文件写入器
func createFileWriter(logPath string, config *logconfig.Config) zapcore.WriteSyncer {
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		fmt.Fprintf(os.Stderr, "create log dir %s: %v\n", logDir, err)
		return zapcore.AddSync(os.Stderr)
	}

	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    config.GetMaxSize(), // megabytes
		MaxBackups: config.GetMaxBackups(),
		MaxAge:     config.GetMaxAge(), // days
		Compress:   config.IsCompressionEnabled(),
	})
}

// New 根据配置创建新的日志记录器
func New(config *logconfig.Config) (logInterface.Logger, error) {
	level := zap.NewAtomicLevelAt(config.GetZapLevel())
	outputPath := config.GetFilePath()

	var cores []zapcore.Core

	// 1. 控制台输出
	toStdStream := outputPath == "stdout" || outputPath == "stderr"
	if toStdStream || config.IsConsoleEnabled() {
		output := zapcore.AddSync(os.Stdout)
		if outputPath == "stderr" {
			output = zapcore.AddSync(os.Stderr)
		}
		cores = append(cores, zapcore.NewCore(config.CreateConsoleEncoder(), output, level))
	}

	// 2. 文件输出
	if !toStdStream && outputPath != "" {
		fileEncoder := config.CreateFileEncoder()
		if config.IsMultiFileEnabled() {
			logDir, err := config.GetLogDir()
			if err != nil {
				return nil, fmt.Errorf("resolve log dir: %w", err)
			}
			chainWriter := createFileWriter(filepath.Join(logDir, config.GetChainLogFile()), config)
			flowWriter := createFileWriter(filepath.Join(logDir, config.GetFlowLogFile()), config)

			cores = append(cores, &moduleRoutingCore{
				chainCore: zapcore.NewCore(fileEncoder, chainWriter, level),
				flowCore:  zapcore.NewCore(fileEncoder, flowWriter, level),
			})
		} else {
			absPath, err := filepath.Abs(outputPath)
			if err != nil {
				return nil, fmt.Errorf("resolve log path: %w", err)
			}
			cores = append(cores, zapcore.NewCore(fileEncoder, createFileWriter(absPath, config), level))
		}
	}

	var zapOptions []zap.Option
	if config.IsCallerEnabled() {
		// 跳过一层封装，使调用位置指向业务代码
		zapOptions = append(zapOptions, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	if config.IsStacktraceEnabled() {
		zapOptions = append(zapOptions, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return NewFromZap(zap.New(zapcore.NewTee(cores...), zapOptions...)), nil
}

// NewFromZap 包装已有的 zap.Logger
func NewFromZap(zapLogger *zap.Logger) logInterface.Logger {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &Logger{
		zapLogger: zapLogger,
		sugar:     zapLogger.Sugar(),
	}
}

// NewNop 返回丢弃所有输出的日志记录器，供测试和未配置日志的调用方使用
func NewNop() logInterface.Logger {
	return NewFromZap(zap.NewNop())
}

// NewModuleLogger 创建带 module 字段的 logger
func NewModuleLogger(baseLogger logInterface.Logger, module string) logInterface.Logger {
	if baseLogger == nil {
		baseLogger = NewNop()
	}
	return baseLogger.With("module", module)
}

// toZapFields 将 key, value 成对的可变参数转换为zap字段，落单的最后一个参数被丢弃
func toZapFields(args ...interface{}) []zap.Field {
	if len(args)%2 != 0 {
		args = args[:len(args)-1]
	}

	fields := make([]zap.Field, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		fields = append(fields, zap.Any(key, args[i+1]))
	}
	return fields
}

// GetZapLogger 获取底层的zap日志记录器
func (l *Logger) GetZapLogger() *zap.Logger {
	return l.zapLogger
}

// Debug 记录调试级别的日志
func (l *Logger) Debug(msg string) {
	l.sugar.Debug(msg)
}

// Debugf 使用格式化字符串记录调试级别的日志
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info 记录信息级别的日志
func (l *Logger) Info(msg string) {
	l.sugar.Info(msg)
}

// Infof 使用格式化字符串记录信息级别的日志
func (l *Logger) Infof(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn 记录警告级别的日志
func (l *Logger) Warn(msg string) {
	l.sugar.Warn(msg)
}

// Warnf 使用格式化字符串记录警告级别的日志
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error 记录错误级别的日志
func (l *Logger) Error(msg string) {
	l.sugar.Error(msg)
}

// Errorf 使用格式化字符串记录错误级别的日志
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// With 返回一个带有额外字段的Logger
func (l *Logger) With(args ...interface{}) logInterface.Logger {
	zl := l.zapLogger.With(toZapFields(args...)...)
	return &Logger{
		zapLogger: zl,
		sugar:     zl.Sugar(),
	}
}

// Sync 同步日志缓冲区到输出
func (l *Logger) Sync() error {
	return l.zapLogger.Sync()
}
