package log

import (
	"fmt"

	logconfig "github.com/weisyn/shopflow/internal/config/log"
	logInterface "github.com/weisyn/shopflow/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/shopflow/pkg/types"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ModuleParams 定义日志模块的依赖参数
type ModuleParams struct {
	fx.In

	UserConfig *types.UserLogConfig `optional:"true"`
}

// ModuleOutput 定义日志模块的输出结构
type ModuleOutput struct {
	fx.Out

	Logger    logInterface.Logger
	ZapLogger *zap.Logger
}

// Module 返回日志模块
func Module() fx.Option {
	return fx.Module("log",
		fx.Provide(ProvideServices),
	)
}

// ProvideServices 根据用户配置初始化日志记录器
func ProvideServices(params ModuleParams) (ModuleOutput, error) {
	logger, err := New(logconfig.New(params.UserConfig))
	if err != nil {
		return ModuleOutput{}, fmt.Errorf("create logger from profile: %w", err)
	}

	return ModuleOutput{
		Logger:    logger,
		ZapLogger: logger.GetZapLogger(),
	}, nil
}
