package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ccp-p/meeting-transcriber/pkg/models"
	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

func newRunsCommand(app *appContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "列出记录库中已完成的处理",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := app.ensureConfig()
			if err != nil {
				return err
			}
			defer app.runCleanup()

			s, err := app.openStore(config)
			if err != nil {
				return err
			}
			results, err := s.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "记录库为空")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), runsTable(results))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "最多显示的条数")
	return cmd
}

func runsTable(results []*models.RunResult) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		speakers, words := 0, 0
		if r.Record != nil {
			speakers = r.Record.SpeakerCount()
			words = r.Record.WordCount()
		}
		rows = append(rows, []string{
			r.RunID,
			r.FileName,
			r.Model,
			utils.FormatTimeDuration(r.DurationSec),
			strconv.Itoa(speakers),
			strconv.Itoa(words),
			utils.FormatRelativeTime(r.CreatedAt),
		})
	}
	return renderTable(
		[]string{"Run", "File", "Model", "Duration", "Speakers", "Words", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	)
}
