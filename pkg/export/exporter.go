package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ccp-p/meeting-transcriber/pkg/models"
	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

// Exporter 将记录写入输出目录，每个录音一个子目录
type Exporter struct {
	OutputFolder string
}

// NewExporter 创建导出器
func NewExporter(outputFolder string) *Exporter {
	return &Exporter{OutputFolder: outputFolder}
}

// Export 按格式写出文件，返回 格式 -> 文件路径
// 文件写在 <OutputFolder>/<录音名>/meeting_transcript.<ext>
func (e *Exporter) Export(record *models.TranscriptRecord, sourceName string, formats []string) (map[string]string, error) {
	dir := filepath.Join(e.OutputFolder, utils.BaseNameWithoutExt(sourceName))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	outputs := make(map[string]string, len(formats))
	for _, name := range formats {
		format, err := ParseFormat(name)
		if err != nil {
			return outputs, err
		}

		content, err := Render(format, record)
		if err != nil {
			return outputs, err
		}

		path := filepath.Join(dir, format.FileName())
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return outputs, fmt.Errorf("写入%s文件失败: %w", format, err)
		}
		outputs[string(format)] = path
		utils.Info("已导出%s文件: %s", format, path)
	}
	return outputs, nil
}
