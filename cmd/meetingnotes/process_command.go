package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ccp-p/meeting-transcriber/internal/pipeline"
	"github.com/ccp-p/meeting-transcriber/pkg/audio"
	"github.com/ccp-p/meeting-transcriber/pkg/export"
	"github.com/ccp-p/meeting-transcriber/pkg/models"
	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

func newProcessCommand(app *appContext) *cobra.Command {
	var (
		model     string
		formats   []string
		outputDir string
		noStore   bool
		showTrace bool
	)

	cmd := &cobra.Command{
		Use:   "process <recording>",
		Short: "处理一个会议录音：转写、分离说话人、生成摘要并导出",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := app.ensureConfig()
			if err != nil {
				return err
			}
			defer app.runCleanup()

			path := args[0]
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("无法访问录音: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s 是目录", path)
			}
			if !audio.IsSupported(path) {
				return fmt.Errorf("不支持的文件格式: %s", path)
			}

			if model == "" {
				model = config.ModelChoice
			}
			if len(formats) == 0 {
				formats = config.EnabledFormats()
			}
			for _, f := range formats {
				if _, err := export.ParseFormat(f); err != nil {
					return err
				}
			}
			if outputDir == "" {
				outputDir = config.OutputFolder
			}

			ctx, cancel := app.signalContext(cmd.Context())
			defer cancel()

			orch := app.newOrchestrator(config, stdoutIsTerminal())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "处理录音: %s (%s, 模型 %s)\n", info.Name(), utils.FormatFileSize(info.Size()), model)

			result, err := orch.RunFile(ctx, path, model)
			if err != nil {
				printFailure(out, err, showTrace)
				return err
			}

			outputs, err := export.NewExporter(outputDir).Export(result.Record, result.FileName, formats)
			if err != nil {
				return err
			}
			result.OutputFiles = outputs

			if !noStore {
				s, err := app.openStore(config)
				if err != nil {
					return err
				}
				if err := s.Save(ctx, result); err != nil {
					return fmt.Errorf("保存记录失败: %w", err)
				}
			}

			printResult(out, result)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&model, "model", "m", "", "转写模型 (fast | accurate)")
	flags.StringSliceVarP(&formats, "formats", "f", nil, "导出格式 (json,markdown,csv,srt)")
	flags.StringVarP(&outputDir, "output", "o", "", "输出目录")
	flags.BoolVar(&noStore, "no-store", false, "不写入记录库")
	flags.BoolVar(&showTrace, "trace", false, "失败时输出完整诊断信息")
	return cmd
}

func printFailure(out io.Writer, err error, showTrace bool) {
	var failure *pipeline.Failure
	if !errors.As(err, &failure) {
		color.New(color.FgRed).Fprintf(out, "\n处理失败: %v\n", err)
		return
	}

	color.New(color.FgRed, color.Bold).Fprintf(out, "\n处理在阶段 %s 中止\n", failure.Stage)
	fmt.Fprintf(out, "原因: %v\n", failure.Cause())
	if showTrace {
		fmt.Fprintln(out, strings.TrimRight(failure.Trace, "\n"))
	} else {
		utils.Debug("诊断信息:\n%s", failure.Trace)
	}
}

func printResult(out io.Writer, result *models.RunResult) {
	record := result.Record
	color.New(color.FgGreen, color.Bold).Fprintln(out, "\n处理完成")
	fmt.Fprintf(out, "记录编号: %s\n", result.RunID)
	fmt.Fprintf(out, "录音时长: %s, 处理用时: %s\n",
		utils.FormatTimeDuration(result.DurationSec),
		utils.FormatTimeDuration(float64(result.ProcessTimeMs)/1000))
	fmt.Fprintf(out, "片段: %d, 说话人: %d, 词数: %d\n",
		len(record.Segments), record.SpeakerCount(), record.WordCount())

	for _, note := range result.Notes {
		color.New(color.FgYellow).Fprintf(out, "注意: %s\n", note)
	}

	color.New(color.FgCyan).Fprintln(out, "\n摘要:")
	fmt.Fprintln(out, record.Summary)

	if len(result.OutputFiles) > 0 {
		names := make([]string, 0, len(result.OutputFiles))
		for name := range result.OutputFiles {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintln(out, "\n输出文件:")
		for _, name := range names {
			fmt.Fprintf(out, "  %-8s %s\n", name, result.OutputFiles[name])
		}
	}
}
