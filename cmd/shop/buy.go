package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/weisyn/shopflow/client/core/checkout"
	"github.com/weisyn/shopflow/client/core/config"
	"github.com/weisyn/shopflow/client/core/output"
	"github.com/weisyn/shopflow/client/core/txn"
	"github.com/weisyn/shopflow/internal/app"
)

var buyFlags struct {
	Quantity    string
	Yes         bool
	ApproveOnly bool
	Referrer    string
	MetricsFile string
}

var buyCmd = &cobra.Command{
	Use:   "buy <id>",
	Short: "购买商品",
	Long: `购买商品

授权不足时先提交恰好为总价的授权交易，等待确认后再提交购买。
Ctrl-C 只停止等待，已提交的交易不会撤回。`,
	Args: cobra.ExactArgs(1),
	RunE: runBuy,
}

func init() {
	f := buyCmd.Flags()
	f.StringVarP(&buyFlags.Quantity, "quantity", "q", "1", "购买数量，超过库存时按库存购买")
	f.BoolVarP(&buyFlags.Yes, "yes", "y", false, "跳过确认")
	f.BoolVar(&buyFlags.ApproveOnly, "approve-only", false, "只提交授权，不购买")
	f.StringVar(&buyFlags.Referrer, "referrer", "", "推荐人地址")
	f.StringVar(&buyFlags.MetricsFile, "metrics-file", "", "结束时把指标写入文件 (Prometheus 文本格式)")
}

func runBuy(cmd *cobra.Command, args []string) error {
	id, err := parseProductID(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var ctrl *checkout.Controller
	var profile *config.Profile
	var registry *prometheus.Registry
	opts := appOptions(app.WithProduct(id), app.WithReferrer(buyFlags.Referrer))
	stop, err := startApp(ctx, opts, &ctrl, &profile, &registry)
	defer stop()
	if err != nil {
		return err
	}
	defer writeMetrics(registry)

	prog := newProgress(!globalFlags.Silent && formatter.Format() != output.FormatJSON)
	defer prog.stop()
	unsubscribe, err := ctrl.Subscribe(prog.render)
	if err != nil {
		return err
	}
	defer unsubscribe()

	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	if err := ctrl.SetQuantity(ctx, buyFlags.Quantity); err != nil {
		return err
	}

	s := ctrl.Snapshot()
	prog.stop()
	if !buyFlags.Yes && !globalFlags.Silent {
		ok, err := confirm(s)
		if err != nil {
			return err
		}
		if !ok {
			formatter.PrintWarning("cancelled")
			return nil
		}
	}

	err = purchase(ctx, ctrl, time.Duration(profile.ConfirmTimeout))
	prog.stop()

	final := ctrl.Snapshot()
	if printErr := formatter.Print(output.NewStateView(final)); printErr != nil {
		return printErr
	}
	if err != nil {
		return err
	}

	switch {
	case final.Purchase.Confirmed():
		formatter.PrintSuccess(fmt.Sprintf("bought %s, tx %s", final.Product.Name, final.Purchase.Handle.Hex()))
	case final.Purchase.Status == txn.StatusPending:
		formatter.PrintWarning(fmt.Sprintf("purchase submitted but not confirmed yet: %s", final.Purchase.Handle.Hex()))
	case final.Approval.Confirmed():
		formatter.PrintSuccess(fmt.Sprintf("approved %s tokens", final.RequiredTotal()))
	}
	return nil
}

// purchase 授权不足时先授权，再购买；--approve-only 时授权后停止
func purchase(ctx context.Context, ctrl *checkout.Controller, confirmTimeout time.Duration) error {
	for step := 0; step < 2; step++ {
		before := ctrl.Snapshot()
		if buyFlags.ApproveOnly && before.Phase == checkout.PhaseReadyToBuy {
			return nil
		}

		attemptCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
		err := ctrl.AttemptPurchase(attemptCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("gave up waiting after %s: %w", confirmTimeout, err)
			}
			return err
		}

		after := ctrl.Snapshot()
		if after.Purchase.Status != txn.StatusNone {
			return nil
		}
	}
	return nil
}

func confirm(s checkout.State) (bool, error) {
	if s.Product == nil {
		return false, checkout.ErrNotReady
	}
	msg := fmt.Sprintf("Buy %d x %s for %s tokens?", s.Quantity, s.Product.Name, s.RequiredTotal())
	if s.Phase == checkout.PhaseNeedsApproval {
		msg = fmt.Sprintf("Approve %s tokens and buy %d x %s?", s.RequiredTotal(), s.Quantity, s.Product.Name)
	}
	return pterm.DefaultInteractiveConfirm.WithDefaultValue(false).Show(msg)
}

func writeMetrics(reg *prometheus.Registry) {
	if buyFlags.MetricsFile == "" || reg == nil {
		return
	}
	if err := prometheus.WriteToTextfile(buyFlags.MetricsFile, reg); err != nil {
		formatter.PrintWarning(fmt.Sprintf("write metrics: %v", err))
	}
}
