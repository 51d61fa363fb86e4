package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ccp-p/meeting-transcriber/internal/adapters"
	"github.com/ccp-p/meeting-transcriber/internal/watcher"
	"github.com/ccp-p/meeting-transcriber/pkg/export"
)

// 处理成功的录音移入收件目录下的该子目录
const archiveDirName = "processed"

func newWatchCommand(app *appContext) *cobra.Command {
	var (
		inbox          string
		keep           bool
		statusInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "监听收件目录，新录音写入完成后自动处理",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := app.ensureConfig()
			if err != nil {
				return err
			}
			defer app.runCleanup()

			if inbox == "" {
				inbox = config.InboxFolder
			}

			ctx, cancel := app.signalContext(cmd.Context())
			defer cancel()

			recordStore, err := app.openStore(config)
			if err != nil {
				return err
			}

			orch := app.newOrchestrator(config, false)
			app.addCleanup(orch.PrintErrorStats)
			adapter := adapters.NewPipelineAdapter(orch, export.NewExporter(config.OutputFolder), recordStore, config)

			opts := watcher.Options{
				Inbox:    inbox,
				Debounce: time.Duration(config.WatchDebounceSec * float64(time.Second)),
			}
			if !keep {
				opts.ArchiveDir = filepath.Join(inbox, archiveDirName)
			}

			w := watcher.NewInboxWatcher(opts, adapter)
			if err := w.Start(ctx); err != nil {
				if errors.Is(err, watcher.ErrLocked) {
					return fmt.Errorf("%s 已被另一个进程监听", inbox)
				}
				return err
			}
			app.addCleanup(w.Stop)
			app.addCleanup(watcher.StartStatusMonitoring(w.Stats, statusInterval))

			color.Green("正在监听: %s (按 Ctrl+C 停止)", inbox)
			<-ctx.Done()

			stats := w.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "已处理 %d, 失败 %d, 跳过 %d\n", stats.Processed, stats.Failed, stats.Skipped)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&inbox, "inbox", "i", "", "收件目录，覆盖配置中的 inbox_folder")
	flags.BoolVar(&keep, "keep", false, "处理后保留录音，不移入 processed 目录")
	flags.DurationVar(&statusInterval, "status-interval", 30*time.Second, "状态日志间隔")
	return cmd
}
