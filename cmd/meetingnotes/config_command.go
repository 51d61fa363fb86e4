package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

func newConfigCommand(app *appContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "配置相关命令",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "打印生效的配置（隐藏密钥）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := app.ensureConfig()
			if err != nil {
				return err
			}
			data, err := config.MaskedJSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init <path>",
		Short: "将当前生效的配置写入文件",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := app.ensureConfig()
			if err != nil {
				return err
			}
			if utils.CheckFileExists(args[0]) && !force {
				return fmt.Errorf("%s 已存在，使用 --force 覆盖", args[0])
			}
			if err := config.SaveToFile(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "配置已写入 %s\n", args[0])
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "覆盖已存在的文件")
	cmd.AddCommand(initCmd)
	return cmd
}
