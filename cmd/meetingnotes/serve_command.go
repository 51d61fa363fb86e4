package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ccp-p/meeting-transcriber/internal/server"
	"github.com/ccp-p/meeting-transcriber/pkg/evaluation"
	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

func newServeCommand(app *appContext) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务：上传录音、查询结果、下载导出文件",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := app.ensureConfig()
			if err != nil {
				return err
			}
			defer app.runCleanup()

			if addr != "" {
				config.ListenAddr = addr
			}
			config.PrintConfig()

			ctx, cancel := app.signalContext(cmd.Context())
			defer cancel()

			recordStore, err := app.openStore(config)
			if err != nil {
				return err
			}

			benchmarks, err := evaluation.LoadEntries(config.BenchmarkFile)
			if err != nil {
				return err
			}

			orch := app.newOrchestrator(config, false)
			app.addCleanup(orch.PrintErrorStats)

			// 启动时加载模型，请求处理时不再重复构造
			caps := orch.Models().Warmup(ctx, config.ModelChoice)
			fmt.Fprintf(cmd.OutOrStdout(), "转写: %s, 说话人分离: %s, 摘要: %s\n",
				caps.Transcriber, caps.Diarization, caps.Summarization)
			printNotes(cmd.OutOrStdout(), caps.Notes)

			svc := server.NewService(server.Deps{
				Config:     config,
				Runner:     orch,
				Store:      recordStore,
				Stats:      app.asrSelector(),
				ErrorStats: orch.ErrorStats,
				Benchmarks: benchmarks,
			})

			errCh := make(chan error, 1)
			go func() {
				errCh <- svc.ListenAndServe(ctx)
			}()
			color.Green("服务已启动: http://%s", displayAddr(config.ListenAddr))

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				return svc.Stop()
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "监听地址，覆盖配置中的 listen_addr")
	return cmd
}

// 降级说明可能带有外部进程输出，只作为参数传给格式化函数
func printNotes(out io.Writer, notes []string) {
	for _, note := range notes {
		color.New(color.FgYellow).Fprintf(out, "注意: %s\n", note)
		utils.Warn("%s", note)
	}
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
