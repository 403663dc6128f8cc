// Package log 提供日志配置：默认值、用户覆盖、编码器
package log

import (
	"path/filepath"

	"github.com/weisyn/shopflow/pkg/types"
	"go.uber.org/zap/zapcore"
)

// LogOptions 日志配置选项
type LogOptions struct {
	// === 基础配置 ===
	Level     string `json:"level"`      // 日志级别 (debug, info, warn, error, fatal)
	ToConsole bool   `json:"to_console"` // 是否输出到控制台
	FilePath  string `json:"file_path"`  // 日志文件路径，stdout/stderr表示只写控制台

	// === 轮转配置 ===
	MaxSize    int  `json:"max_size"`    // 单个日志文件最大大小(MB)
	MaxBackups int  `json:"max_backups"` // 最大备份文件数
	MaxAge     int  `json:"max_age"`     // 日志文件最大保留天数
	Compress   bool `json:"compress"`    // 是否压缩历史日志文件

	// === 调试配置 ===
	EnableCaller     bool `json:"enable_caller"`
	EnableStacktrace bool `json:"enable_stacktrace"`

	// === 多文件配置 ===
	EnableMultiFile bool   `json:"enable_multi_file"`
	ChainLogFile    string `json:"chain_log_file"`
	FlowLogFile     string `json:"flow_log_file"`

	LevelMap map[string]zapcore.Level `json:"-"`
}

// Config 日志配置实现
type Config struct {
	options *LogOptions
}

// New 创建日志配置，userConfig 可以是 *types.UserLogConfig 或 *LogOptions
func New(userConfig interface{}) *Config {
	options := createDefaultLogOptions()

	switch uc := userConfig.(type) {
	case *types.UserLogConfig:
		applyUserLogConfig(options, uc)
	case *LogOptions:
		if uc != nil {
			applyLogOptions(options, uc)
		}
	}

	return &Config{options: options}
}

// createDefaultLogOptions 创建默认日志配置
func createDefaultLogOptions() *LogOptions {
	return &LogOptions{
		Level:            defaultLogLevel,
		ToConsole:        defaultToConsole,
		FilePath:         defaultFilePath,
		MaxSize:          defaultMaxSize,
		MaxBackups:       defaultMaxBackups,
		MaxAge:           defaultMaxAge,
		Compress:         defaultCompress,
		EnableCaller:     defaultEnableCaller,
		EnableStacktrace: defaultEnableStacktrace,
		EnableMultiFile:  defaultEnableMultiFile,
		ChainLogFile:     defaultChainLogFile,
		FlowLogFile:      defaultFlowLogFile,
		LevelMap:         defaultLevelMap,
	}
}

// applyUserLogConfig 只覆盖Profile中实际出现的字段
func applyUserLogConfig(options *LogOptions, uc *types.UserLogConfig) {
	if uc == nil {
		return
	}
	if uc.Level != nil {
		options.Level = *uc.Level
	}
	if uc.FilePath != nil {
		options.FilePath = *uc.FilePath
	}
}

// applyLogOptions 用显式给出的选项覆盖默认值（零值字段保持默认）
func applyLogOptions(options *LogOptions, in *LogOptions) {
	if in.Level != "" {
		options.Level = in.Level
	}
	if in.FilePath != "" {
		options.FilePath = in.FilePath
	}
	options.ToConsole = in.ToConsole
	if in.MaxSize > 0 {
		options.MaxSize = in.MaxSize
	}
	if in.MaxBackups > 0 {
		options.MaxBackups = in.MaxBackups
	}
	if in.MaxAge > 0 {
		options.MaxAge = in.MaxAge
	}
	options.EnableCaller = in.EnableCaller
	options.EnableStacktrace = in.EnableStacktrace
	options.EnableMultiFile = in.EnableMultiFile
	if in.ChainLogFile != "" {
		options.ChainLogFile = in.ChainLogFile
	}
	if in.FlowLogFile != "" {
		options.FlowLogFile = in.FlowLogFile
	}
}

// GetLevel 获取日志级别
func (c *Config) GetLevel() string {
	return c.options.Level
}

// GetZapLevel 获取zap日志级别，未知级别按info处理
func (c *Config) GetZapLevel() zapcore.Level {
	if level, exists := c.options.LevelMap[c.options.Level]; exists {
		return level
	}
	return zapcore.InfoLevel
}

// IsConsoleEnabled 是否启用控制台输出
func (c *Config) IsConsoleEnabled() bool {
	return c.options.ToConsole
}

// GetFilePath 获取日志文件路径
func (c *Config) GetFilePath() string {
	return c.options.FilePath
}

// GetLogDir 多文件模式下的日志目录（绝对路径）
func (c *Config) GetLogDir() (string, error) {
	absPath, err := filepath.Abs(c.options.FilePath)
	if err != nil {
		return "", err
	}
	return filepath.Dir(absPath), nil
}

// IsMultiFileEnabled 是否启用多文件日志
func (c *Config) IsMultiFileEnabled() bool {
	return c.options.EnableMultiFile
}

// GetChainLogFile 链交互日志文件名
func (c *Config) GetChainLogFile() string {
	return c.options.ChainLogFile
}

// GetFlowLogFile 流程日志文件名
func (c *Config) GetFlowLogFile() string {
	return c.options.FlowLogFile
}

// GetMaxSize 获取单个文件最大大小(MB)
func (c *Config) GetMaxSize() int {
	return c.options.MaxSize
}

// GetMaxBackups 获取最大备份文件数
func (c *Config) GetMaxBackups() int {
	return c.options.MaxBackups
}

// GetMaxAge 获取最大保留天数
func (c *Config) GetMaxAge() int {
	return c.options.MaxAge
}

// IsCompressionEnabled 是否启用压缩
func (c *Config) IsCompressionEnabled() bool {
	return c.options.Compress
}

// IsCallerEnabled 是否启用调用者信息
func (c *Config) IsCallerEnabled() bool {
	return c.options.EnableCaller
}

// IsStacktraceEnabled 是否启用堆栈跟踪
func (c *Config) IsStacktraceEnabled() bool {
	return c.options.EnableStacktrace
}

// CreateFileEncoder 创建文件编码器（JSON）
func (c *Config) CreateFileEncoder() zapcore.Encoder {
	return zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
	})
}

// CreateConsoleEncoder 创建控制台编码器
func (c *Config) CreateConsoleEncoder() zapcore.Encoder {
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.TimeEncoderOfLayout("15:04:05.000"),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
	})
}
