package main

import (
	"github.com/spf13/cobra"
	"github.com/weisyn/shopflow/internal/app/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	RunE: func(cmd *cobra.Command, args []string) error {
		return formatter.Print(version.Get())
	},
}
