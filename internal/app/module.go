// Package app 用 fx 组装购物客户端的各个组件
package app

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	evbus "github.com/asaskevich/EventBus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/weisyn/shopflow/client/core/allowance"
	"github.com/weisyn/shopflow/client/core/checkout"
	"github.com/weisyn/shopflow/client/core/config"
	"github.com/weisyn/shopflow/client/core/contracts"
	"github.com/weisyn/shopflow/client/core/ledger"
	"github.com/weisyn/shopflow/client/core/purchase"
	"github.com/weisyn/shopflow/client/core/transport"
	"github.com/weisyn/shopflow/client/core/txn"
	"github.com/weisyn/shopflow/client/core/wallet"
	logimpl "github.com/weisyn/shopflow/internal/core/infrastructure/log"
	"github.com/weisyn/shopflow/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/shopflow/pkg/types"
	"go.uber.org/fx"
)

// Module 返回完整的应用模块
func Module(opts *Options) fx.Option {
	return fx.Options(
		fx.Supply(opts),
		ConfigModule(),
		logimpl.Module(),
		ChainModule(),
		CheckoutModule(),
	)
}

// ConfigModule 提供profile和日志配置
func ConfigModule() fx.Option {
	return fx.Module("config",
		fx.Provide(ProvideProfile),
	)
}

// ChainModule 提供链连接、读取器、合约绑定和签名器
func ChainModule() fx.Option {
	return fx.Module("chain",
		fx.Provide(
			ProvideConnection,
			ProvideReader,
			ProvideContracts,
			ProvideSigner,
			ProvideWaiter,
		),
	)
}

// CheckoutModule 提供授权、购买和流程控制器
func CheckoutModule() fx.Option {
	return fx.Module("checkout",
		fx.Provide(
			ProvideAllowanceManager,
			ProvideExecutor,
			ProvideEventBus,
			ProvideMetrics,
			ProvideController,
		),
	)
}

// ProfileOutput profile及派生的日志配置
type ProfileOutput struct {
	fx.Out

	Profile    *config.Profile
	UserConfig *types.UserLogConfig
}

// ProvideProfile 加载profile，应用环境变量和命令行覆盖并校验
func ProvideProfile(opts *Options) (ProfileOutput, error) {
	profile, err := LoadProfile(opts)
	if err != nil {
		return ProfileOutput{}, err
	}
	return ProfileOutput{
		Profile:    profile,
		UserConfig: opts.userLogConfig(profile.Log),
	}, nil
}

// LoadProfile 按 ProfilePath > ProfileName > 当前profile 的顺序加载
func LoadProfile(opts *Options) (*config.Profile, error) {
	var profile *config.Profile
	var err error

	switch {
	case opts.ProfilePath != "":
		profile, err = config.LoadProfileFile(opts.ProfilePath)
	default:
		var pm *config.ProfileManager
		pm, err = config.NewProfileManager(opts.ConfigDir)
		if err != nil {
			return nil, err
		}
		if opts.ProfileName != "" {
			profile, err = pm.GetProfile(opts.ProfileName)
		} else {
			profile, err = pm.GetCurrentProfile()
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	profile.ApplyEnv(opts.Lookup)
	if opts.Referrer != "" {
		profile.Referrer = opts.Referrer
	}
	if opts.KeystorePath != "" {
		profile.KeystorePath = opts.KeystorePath
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return profile, nil
}

// ProvideConnection 连接节点，应用停止时关闭
func ProvideConnection(lc fx.Lifecycle, profile *config.Profile, logger log.Logger) (*transport.Connection, error) {
	cfg := profile.ClientConfig()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout*3)
	defer cancel()

	conn, err := transport.Dial(ctx, cfg, logimpl.NewModuleLogger(logger, "transport"))
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			conn.Close()
			return nil
		},
	})
	return conn, nil
}

// ProvideReader 创建账本读取器
func ProvideReader(conn *transport.Connection, profile *config.Profile, logger log.Logger) *ledger.Reader {
	return ledger.NewReader(conn.Client, profile.Marketplace(), profile.Token(), logimpl.NewModuleLogger(logger, "ledger"))
}

// ContractsOutput 合约绑定
type ContractsOutput struct {
	fx.Out

	Marketplace *contracts.Marketplace
	Token       *contracts.Token
}

// ProvideContracts 创建可写的合约绑定
func ProvideContracts(conn *transport.Connection, profile *config.Profile) ContractsOutput {
	return ContractsOutput{
		Marketplace: contracts.NewMarketplace(profile.Marketplace(), conn.Client),
		Token:       contracts.NewToken(profile.Token(), conn.Client),
	}
}

// ProvideSigner 按 私钥参数 > SHOP_PRIVATE_KEY > keystore 的顺序创建签名器
//
// 都未配置时返回 nil，流程仍可浏览商品，提交交易时报 ErrNoSignerAvailable。
func ProvideSigner(opts *Options, profile *config.Profile, conn *transport.Connection, logger log.Logger) (wallet.Signer, error) {
	return LoadSigner(opts, profile, conn.ChainID, logimpl.NewModuleLogger(logger, "wallet"))
}

// LoadSigner 创建签名器，未配置签名来源时返回 nil
func LoadSigner(opts *Options, profile *config.Profile, chainID *big.Int, logger log.Logger) (wallet.Signer, error) {
	key := strings.TrimSpace(opts.PrivateKey)
	if key == "" {
		if v, ok := opts.Lookup(config.EnvPrivateKey); ok {
			key = strings.TrimSpace(v)
		}
	}
	if key != "" {
		signer, err := wallet.NewKeySigner(key, chainID)
		if err != nil {
			return nil, err
		}
		logger.Infof("signer loaded from private key: %s", signer.Address().Hex())
		return signer, nil
	}

	if profile.KeystorePath != "" {
		password := opts.KeystorePassword
		if password == "" {
			if v, ok := opts.Lookup(config.EnvKeystorePassword); ok {
				password = v
			}
		}
		signer, err := wallet.NewKeystoreSigner(profile.KeystorePath, password, chainID)
		if err != nil {
			return nil, err
		}
		logger.Infof("signer loaded from keystore: %s", signer.Address().Hex())
		return signer, nil
	}

	logger.Info("no signer configured, running read-only")
	return nil, nil
}

// ProvideWaiter 创建交易确认等待器
func ProvideWaiter(conn *transport.Connection, logger log.Logger) txn.Waiter {
	return txn.NewChainWaiter(conn.Client, logimpl.NewModuleLogger(logger, "txn"))
}

// ProvideAllowanceManager 创建授权管理器
func ProvideAllowanceManager(reader *ledger.Reader, token *contracts.Token, signer wallet.Signer, waiter txn.Waiter, logger log.Logger) *allowance.Manager {
	return allowance.NewManager(reader, token, signer, waiter, logimpl.NewModuleLogger(logger, "allowance"))
}

// ProvideExecutor 创建购买执行器
func ProvideExecutor(market *contracts.Marketplace, signer wallet.Signer, waiter txn.Waiter, logger log.Logger) *purchase.Executor {
	return purchase.NewExecutor(market, signer, waiter, logimpl.NewModuleLogger(logger, "purchase"))
}

// ProvideEventBus 创建事件总线
func ProvideEventBus() evbus.Bus {
	return evbus.New()
}

// MetricsOutput 指标注册表和流程指标
type MetricsOutput struct {
	fx.Out

	Registry *prometheus.Registry
	Metrics  *checkout.Metrics
}

// ProvideMetrics 创建私有注册表，附带进程和Go运行时指标
func ProvideMetrics() MetricsOutput {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return MetricsOutput{Registry: reg, Metrics: checkout.NewMetrics(reg)}
}

// ControllerParams 控制器依赖
type ControllerParams struct {
	fx.In

	Options   *Options
	Profile   *config.Profile
	Reader    *ledger.Reader
	Allowance *allowance.Manager
	Executor  *purchase.Executor
	Signer    wallet.Signer `optional:"true"`
	Bus       evbus.Bus
	Metrics   *checkout.Metrics
	Logger    log.Logger
}

// ProvideController 创建购买流程控制器
func ProvideController(p ControllerParams) *checkout.Controller {
	return checkout.New(checkout.Deps{
		Reader:    p.Reader,
		Allowance: p.Allowance,
		Buyer:     p.Executor,
		Signer:    p.Signer,
		Logger:    p.Logger,
		Bus:       p.Bus,
		Metrics:   p.Metrics,
	}, checkout.Options{
		ProductID:   p.Options.ProductID,
		Marketplace: p.Profile.Marketplace(),
		Referrer:    p.Profile.ReferrerAddress(),
	})
}
