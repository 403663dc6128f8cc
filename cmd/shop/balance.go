package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/weisyn/shopflow/client/core/chainerr"
	"github.com/weisyn/shopflow/client/core/ledger"
	"github.com/weisyn/shopflow/client/core/output"
	"github.com/weisyn/shopflow/client/core/wallet"
)

var balanceCmd = &cobra.Command{
	Use:   "balance [address]",
	Short: "查询代币余额和对商城的授权",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printBalance(cmd, args, true)
	},
}

var allowanceCmd = &cobra.Command{
	Use:   "allowance [address]",
	Short: "查询对商城合约的授权额度",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printBalance(cmd, args, false)
	},
}

func printBalance(cmd *cobra.Command, args []string, withBalance bool) error {
	var reader *ledger.Reader
	var signer wallet.Signer
	stop, err := startApp(cmd.Context(), appOptions(), &reader, &signer)
	defer stop()
	if err != nil {
		return err
	}

	owner, err := resolveOwner(args, signer)
	if err != nil {
		return err
	}

	view := output.BalanceView{Owner: owner, Spender: reader.Marketplace()}
	if withBalance {
		view.Balance, err = reader.GetTokenBalance(cmd.Context(), owner)
		if err != nil {
			return err
		}
	}
	allowance, err := reader.GetAllowance(cmd.Context(), owner, reader.Marketplace())
	if err != nil {
		return err
	}
	view.Allowance = &allowance
	return formatter.Print(view)
}

// resolveOwner 参数中的地址优先，否则使用签名器地址
func resolveOwner(args []string, signer wallet.Signer) (common.Address, error) {
	if len(args) == 1 {
		if !common.IsHexAddress(args[0]) {
			return common.Address{}, fmt.Errorf("invalid address %q", args[0])
		}
		return common.HexToAddress(args[0]), nil
	}
	if signer == nil {
		return common.Address{}, fmt.Errorf("%w: pass an address or configure a signer", chainerr.ErrNoSignerAvailable)
	}
	return signer.Address(), nil
}
