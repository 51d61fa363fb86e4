package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ccp-p/meeting-transcriber/pkg/evaluation"
	"github.com/ccp-p/meeting-transcriber/pkg/models"
)

func newBenchmarksCommand(app *appContext) *cobra.Command {
	var (
		asJSON bool
		save   string
	)

	cmd := &cobra.Command{
		Use:   "benchmarks",
		Short: "显示各转写模型的基准指标",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := app.ensureConfig()
			if err != nil {
				return err
			}

			entries, err := evaluation.LoadEntries(config.BenchmarkFile)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if save != "" {
				if err := evaluation.SaveEntries(save, entries); err != nil {
					return err
				}
				fmt.Fprintf(out, "基准数据已写入 %s\n", save)
				return nil
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(evaluation.ReportFromEntries(entries))
			}
			fmt.Fprintln(out, benchmarkTable(entries))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "以 JSON 输出 模型 -> 指标 映射")
	cmd.Flags().StringVar(&save, "save", "", "写出基准文件，可作为 benchmark_file 编辑后加载")
	return cmd
}

func benchmarkTable(entries []models.BenchmarkEntry) string {
	metrics := evaluation.MetricNames(entries)

	headers := append([]string{"Model"}, metrics...)
	aligns := []columnAlignment{alignLeft}
	for range metrics {
		aligns = append(aligns, alignRight)
	}

	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		row := []string{entry.Model}
		for _, name := range metrics {
			value, ok := entry.Metrics[name]
			if !ok {
				row = append(row, "-")
				continue
			}
			row = append(row, strconv.FormatFloat(value, 'f', -1, 64))
		}
		rows = append(rows, row)
	}
	return renderTable(headers, rows, aligns)
}
