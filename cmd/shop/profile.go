package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/weisyn/shopflow/client/core/config"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "管理配置Profile",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出所有Profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		pm, err := config.NewProfileManager(globalFlags.ConfigDir)
		if err != nil {
			return err
		}
		current, _ := pm.GetCurrentProfile()

		rows := make([]map[string]interface{}, 0)
		for _, name := range pm.ListProfiles() {
			rows = append(rows, map[string]interface{}{
				"name":    name,
				"current": current != nil && current.Name == name,
			})
		}
		return formatter.Print(rows)
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "显示Profile内容",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pm, err := config.NewProfileManager(globalFlags.ConfigDir)
		if err != nil {
			return err
		}

		var p *config.Profile
		if len(args) == 1 {
			p, err = pm.GetProfile(args[0])
		} else {
			p, err = pm.GetCurrentProfile()
		}
		if err != nil {
			return err
		}
		return formatter.Print(p)
	},
}

var profileUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "切换当前Profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pm, err := config.NewProfileManager(globalFlags.ConfigDir)
		if err != nil {
			return err
		}
		if err := pm.SwitchProfile(args[0]); err != nil {
			return err
		}
		formatter.PrintSuccess(fmt.Sprintf("current profile: %s", args[0]))
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileUseCmd)
}
