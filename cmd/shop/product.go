package main

import (
	"github.com/spf13/cobra"
	"github.com/weisyn/shopflow/client/core/config"
	"github.com/weisyn/shopflow/client/core/ledger"
	"github.com/weisyn/shopflow/client/core/output"
)

var productCmd = &cobra.Command{
	Use:   "product <id>",
	Short: "查看商品详情",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseProductID(args[0])
		if err != nil {
			return err
		}

		var reader *ledger.Reader
		var profile *config.Profile
		stop, err := startApp(cmd.Context(), appOptions(), &reader, &profile)
		defer stop()
		if err != nil {
			return err
		}

		product, err := reader.GetProduct(cmd.Context(), id)
		if err != nil {
			return err
		}
		return formatter.Print(output.NewProductView(product, profile.ContentGateway))
	},
}
