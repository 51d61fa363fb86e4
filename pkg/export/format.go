package export

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ccp-p/meeting-transcriber/pkg/models"
)

// Format 导出格式
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatSRT      Format = "srt"
)

// DownloadBaseName 下载文件的基础文件名
const DownloadBaseName = "meeting_transcript"

// ParseFormat 解析格式名，接受 md 等别名
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	case "srt":
		return FormatSRT, nil
	}
	return "", fmt.Errorf("不支持的导出格式: %s", name)
}

// Extension 文件扩展名（不含点）
func (f Format) Extension() string {
	if f == FormatMarkdown {
		return "md"
	}
	return string(f)
}

// FileName 下载文件名，如 meeting_transcript.md
func (f Format) FileName() string {
	return DownloadBaseName + "." + f.Extension()
}

// MIMEType 下载时的内容类型
func (f Format) MIMEType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatMarkdown:
		return "text/markdown"
	case FormatCSV:
		return "text/csv"
	case FormatSRT:
		return "application/x-subrip"
	}
	return "application/octet-stream"
}

// Render 按格式生成内容
func Render(f Format, record *models.TranscriptRecord) (string, error) {
	switch f {
	case FormatJSON:
		return GenerateJSONContent(record)
	case FormatMarkdown:
		return GenerateMarkdownContent(record), nil
	case FormatCSV:
		return GenerateCSVContent(record)
	case FormatSRT:
		return GenerateSRTContent(record), nil
	}
	return "", fmt.Errorf("不支持的导出格式: %s", f)
}

// 秒数使用最短表示：10 -> "10"，2.5 -> "2.5"
func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
