package app

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// New 创建 fx 应用，extra 通常是 fx.Populate 或 fx.Invoke
func New(opts *Options, extra ...fx.Option) *fx.App {
	return fx.New(
		Module(opts),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		fx.Options(extra...),
	)
}
