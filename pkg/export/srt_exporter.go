package export

import (
	"fmt"
	"strings"

	"github.com/ccp-p/meeting-transcriber/pkg/models"
	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

// minCueSeconds 零长度片段在字幕中的最短显示时间
const minCueSeconds = 5.0

// GenerateSRTContent 生成带说话人前缀的 SRT 字幕
func GenerateSRTContent(record *models.TranscriptRecord) string {
	var lines []string
	index := 0
	for _, seg := range record.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		index++

		end := seg.End
		if end <= seg.Start {
			end = seg.Start + minCueSeconds
		}

		lines = append(lines,
			fmt.Sprintf("%d", index),
			fmt.Sprintf("%s --> %s", utils.FormatSRTTimestamp(seg.Start), utils.FormatSRTTimestamp(end)),
			fmt.Sprintf("%s: %s", seg.Speaker, text),
			"",
		)
	}
	return strings.Join(lines, "\n")
}
