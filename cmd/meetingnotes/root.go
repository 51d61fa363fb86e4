package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var opts globalOptions
	app := newAppContext(&opts)

	rootCmd := &cobra.Command{
		Use:           "meetingnotes",
		Short:         "会议录音转写、说话人分离与摘要",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipConfig(cmd) {
				return nil
			}
			_, err := app.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "配置文件路径 (json/yaml/toml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "日志级别 (debug, info, warn, error)")
	flags.StringVar(&opts.logFile, "log-file", "", "日志文件路径")

	rootCmd.AddCommand(newProcessCommand(app))
	rootCmd.AddCommand(newServeCommand(app))
	rootCmd.AddCommand(newWatchCommand(app))
	rootCmd.AddCommand(newRunsCommand(app))
	rootCmd.AddCommand(newBenchmarksCommand(app))
	rootCmd.AddCommand(newWERCommand(app))
	rootCmd.AddCommand(newConfigCommand(app))

	return rootCmd
}

// help/completion 不需要加载配置
func skipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return true
		}
	}
	return false
}
