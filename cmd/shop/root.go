package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/weisyn/shopflow/client/core/output"
	"github.com/weisyn/shopflow/internal/app"
	"go.uber.org/fx"
)

// GlobalFlags 全局标志
type GlobalFlags struct {
	Profile      string // Profile名称
	ProfileFile  string // Profile文件
	ConfigDir    string // 配置目录
	OutputFormat string // 输出格式
	Silent       bool   // 静默模式
	Verbose      bool   // 详细日志输出到 stderr
	LogLevel     string
	LogFile      string

	PrivateKey string
	Keystore   string
}

var (
	globalFlags GlobalFlags
	formatter   *output.Formatter
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "shop",
	Short: "链上商城购买客户端",
	Long: `shop - 链上商城的命令行购买客户端

查看商品、查询余额与授权、按数量购买商品。
购买时如授权不足会先提交精确额度的授权交易，确认后再提交购买。

签名来源（按优先级）:
  --private-key 参数
  SHOP_PRIVATE_KEY 环境变量
  --keystore 或 profile 中的 keystore_path（密码取自 SHOP_KEYSTORE_PASSWORD）`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(globalFlags.OutputFormat)
		if err != nil {
			return err
		}
		formatter = output.NewFormatter(format, os.Stdout)
		formatter.SetSilent(globalFlags.Silent)
		return nil
	},
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if formatter != nil && formatter.Format() == output.FormatJSON {
			_ = formatter.Print(output.NewErrorOutput(err, nil))
		} else {
			fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&globalFlags.Profile, "profile", "", "使用指定的Profile (默认使用当前Profile)")
	pf.StringVar(&globalFlags.ProfileFile, "profile-file", "", "直接使用指定的Profile文件")
	pf.StringVar(&globalFlags.ConfigDir, "config-dir", "", "配置目录 (默认: ~/.shop)")
	pf.StringVarP(&globalFlags.OutputFormat, "output", "o", "table", "输出格式: json|pretty|table|text")
	pf.BoolVar(&globalFlags.Silent, "silent", false, "静默模式 (仅输出结果)")
	pf.BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "调试日志输出到 stderr")
	pf.StringVar(&globalFlags.LogLevel, "log-level", "", "日志级别: debug|info|warn|error")
	pf.StringVar(&globalFlags.LogFile, "log-file", "", "日志文件 (stdout/stderr 表示控制台)")
	pf.StringVar(&globalFlags.PrivateKey, "private-key", "", "十六进制私钥 (建议改用 SHOP_PRIVATE_KEY)")
	pf.StringVar(&globalFlags.Keystore, "keystore", "", "keystore 文件路径")

	rootCmd.AddCommand(productCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(allowanceCmd)
	rootCmd.AddCommand(buyCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(versionCmd)
}

// appOptions 把全局标志转换为应用选项
func appOptions(extra ...app.Option) []app.Option {
	opts := []app.Option{
		app.WithConfigDir(globalFlags.ConfigDir),
		app.WithProfile(globalFlags.Profile),
		app.WithProfileFile(globalFlags.ProfileFile),
		app.WithPrivateKey(globalFlags.PrivateKey),
	}
	if globalFlags.Keystore != "" {
		opts = append(opts, app.WithKeystore(globalFlags.Keystore, ""))
	}

	level, file := globalFlags.LogLevel, globalFlags.LogFile
	if globalFlags.Verbose {
		if level == "" {
			level = "debug"
		}
		if file == "" {
			file = "stderr"
		}
	}
	opts = append(opts, app.WithLog(level, file))
	return append(opts, extra...)
}

// startApp 启动应用并填充 targets，返回停止函数
func startApp(ctx context.Context, opts []app.Option, targets ...interface{}) (func(), error) {
	fxApp := app.New(app.NewOptions(opts...), fx.Populate(targets...))
	if err := fxApp.Start(ctx); err != nil {
		return func() {}, err
	}
	return func() {
		_ = fxApp.Stop(context.Background())
	}, nil
}

// parseProductID 解析商品ID
func parseProductID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid product id %q", s)
	}
	return id, nil
}
