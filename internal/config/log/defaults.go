package log

import (
	"go.uber.org/zap/zapcore"
)

// 日志配置默认值
const (
	// defaultLogLevel 默认日志级别
	defaultLogLevel = "info"

	// defaultToConsole CLI默认不向控制台输出日志，避免与命令输出混在一起
	defaultToConsole = false

	// defaultFilePath 默认日志文件路径（相对于工作目录）
	defaultFilePath = "data/logs/shop.log"

	// defaultMaxSize 单个日志文件最大大小(MB)
	defaultMaxSize = 50

	// defaultMaxBackups 最大备份文件数
	defaultMaxBackups = 5

	// defaultMaxAge 日志文件最大保留天数
	defaultMaxAge = 14

	// defaultCompress 默认压缩历史日志
	defaultCompress = true

	// defaultEnableCaller 默认记录调用者位置
	defaultEnableCaller = true

	// defaultEnableStacktrace Error级别附带堆栈
	defaultEnableStacktrace = false

	// defaultEnableMultiFile 默认把链交互日志和流程日志分开写
	defaultEnableMultiFile = true

	// defaultChainLogFile 链交互日志（ledger / txn / transport / wallet）
	defaultChainLogFile = "shop-chain.log"

	// defaultFlowLogFile 流程日志（checkout / allowance / purchase / cli）
	defaultFlowLogFile = "shop-flow.log"
)

// 默认的日志级别映射
var defaultLevelMap = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
	"panic": zapcore.PanicLevel,
	"fatal": zapcore.FatalLevel,
}
