package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ccp-p/meeting-transcriber/internal/store"
	"github.com/ccp-p/meeting-transcriber/pkg/evaluation"
)

func newWERCommand(app *appContext) *cobra.Command {
	var (
		runID  string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "wer <reference> [hypothesis]",
		Short: "计算词错误率，参数可以是文本或文本文件路径",
		Long: "计算参考文本与识别结果之间的词错误率 (WER)。\n" +
			"使用 --run 时以记录库中该次处理的转写全文作为识别结果。",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := app.ensureConfig()
			if err != nil {
				return err
			}
			defer app.runCleanup()

			reference, err := textArg(args[0])
			if err != nil {
				return err
			}

			var hypothesis string
			switch {
			case len(args) == 2:
				if hypothesis, err = textArg(args[1]); err != nil {
					return err
				}
			case runID != "":
				s, err := app.openStore(config)
				if err != nil {
					return err
				}
				result, err := s.Get(cmd.Context(), runID)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("记录不存在: %s", runID)
				}
				if err != nil {
					return err
				}
				hypothesis = result.Record.FullText()
			default:
				return errors.New("需要识别结果文本或 --run")
			}

			measures := evaluation.Compare(reference, hypothesis)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(measures)
			}
			fmt.Fprintln(out, measuresTable(measures))
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "使用记录库中该次处理的转写作为识别结果")
	cmd.Flags().BoolVar(&asJSON, "json", false, "以 JSON 输出")
	return cmd
}

// textArg 参数是已存在的文件时读取文件内容，否则按文本处理
func textArg(arg string) (string, error) {
	info, err := os.Stat(arg)
	if err != nil || info.IsDir() {
		return arg, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return "", fmt.Errorf("读取文本文件失败: %w", err)
	}
	return string(data), nil
}

func measuresTable(m evaluation.Measures) string {
	rows := [][]string{
		{"WER", strconv.FormatFloat(m.WER, 'f', 4, 64)},
		{"Reference words", strconv.Itoa(m.RefWords)},
		{"Hypothesis words", strconv.Itoa(m.HypWords)},
		{"Hits", strconv.Itoa(m.Hits)},
		{"Substitutions", strconv.Itoa(m.Substitutions)},
		{"Deletions", strconv.Itoa(m.Deletions)},
		{"Insertions", strconv.Itoa(m.Insertions)},
	}
	return renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}
