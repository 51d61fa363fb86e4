package export

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ccp-p/meeting-transcriber/pkg/models"
)

// GenerateJSONContent 生成两空格缩进的 JSON，键为 segments 和 summary
func GenerateJSONContent(record *models.TranscriptRecord) (string, error) {
	out := record
	if out.Segments == nil {
		out = &models.TranscriptRecord{Segments: []models.Segment{}, Summary: record.Summary}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return "", fmt.Errorf("JSON编码失败: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
