package export

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/ccp-p/meeting-transcriber/pkg/models"
)

var csvHeader = []string{"speaker", "start", "end", "text"}

// GenerateCSVContent 生成 CSV，表头 speaker,start,end,text，每个片段一行
// 行尾使用 CRLF，文本中的逗号、引号和换行按标准规则加引号
func GenerateCSVContent(record *models.TranscriptRecord) (string, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)
	w.UseCRLF = true

	if err := w.Write(csvHeader); err != nil {
		return "", fmt.Errorf("写入CSV表头失败: %w", err)
	}
	for _, seg := range record.Segments {
		row := []string{seg.Speaker, formatSeconds(seg.Start), formatSeconds(seg.End), seg.Text}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("写入CSV行失败: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return b.String(), nil
}
