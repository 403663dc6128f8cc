package app

import (
	"os"

	"github.com/weisyn/shopflow/pkg/types"
)

// Option 应用程序选项函数类型
type Option func(*Options)

// Options 应用程序选项，命令行参数覆盖 profile 中的值
type Options struct {
	ConfigDir   string // 配置目录，空为 ~/.shop
	ProfileName string // 空为当前profile
	ProfilePath string // 直接指定profile文件，优先于 ProfileName

	ProductID uint64

	// 签名来源，都为空时以只读模式运行
	PrivateKey       string
	KeystorePath     string
	KeystorePassword string

	Referrer string

	// 日志覆盖
	LogLevel string
	LogFile  string

	// Lookup 读取环境变量，测试时替换
	Lookup func(string) (string, bool)
}

// WithConfigDir 设置配置目录
func WithConfigDir(dir string) Option {
	return func(o *Options) { o.ConfigDir = dir }
}

// WithProfile 使用指定profile
func WithProfile(name string) Option {
	return func(o *Options) { o.ProfileName = name }
}

// WithProfileFile 使用指定profile文件
func WithProfileFile(path string) Option {
	return func(o *Options) { o.ProfilePath = path }
}

// WithProduct 设置商品ID
func WithProduct(id uint64) Option {
	return func(o *Options) { o.ProductID = id }
}

// WithPrivateKey 使用十六进制私钥签名
func WithPrivateKey(hexKey string) Option {
	return func(o *Options) { o.PrivateKey = hexKey }
}

// WithKeystore 使用 keystore 文件签名
func WithKeystore(path, password string) Option {
	return func(o *Options) {
		o.KeystorePath = path
		o.KeystorePassword = password
	}
}

// WithReferrer 设置推荐人地址
func WithReferrer(addr string) Option {
	return func(o *Options) { o.Referrer = addr }
}

// WithLog 覆盖日志级别和文件
func WithLog(level, file string) Option {
	return func(o *Options) {
		o.LogLevel = level
		o.LogFile = file
	}
}

// WithLookup 替换环境变量读取
func WithLookup(lookup func(string) (string, bool)) Option {
	return func(o *Options) { o.Lookup = lookup }
}

// NewOptions 创建选项
func NewOptions(opts ...Option) *Options {
	o := &Options{Lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(o)
	}
	if o.Lookup == nil {
		o.Lookup = os.LookupEnv
	}
	return o
}

// userLogConfig 合并profile和命令行的日志配置
func (o *Options) userLogConfig(fromProfile *types.UserLogConfig) *types.UserLogConfig {
	cfg := &types.UserLogConfig{}
	if fromProfile != nil {
		cfg.Level = fromProfile.Level
		cfg.FilePath = fromProfile.FilePath
	}
	if o.LogLevel != "" {
		level := o.LogLevel
		cfg.Level = &level
	}
	if o.LogFile != "" {
		file := o.LogFile
		cfg.FilePath = &file
	}
	return cfg
}
