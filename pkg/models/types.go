package models

import "strings"

// DefaultSpeaker 单说话人模式下的说话人标签
const DefaultSpeaker = "Speaker 1"

// Segment 表示一段带说话人标签的转写文本
type Segment struct {
	Speaker string  `json:"speaker"` // 说话人标识
	Start   float64 `json:"start"`   // 开始时间（秒）
	End     float64 `json:"end"`     // 结束时间（秒），不小于Start
	Text    string  `json:"text"`    // 文本内容
}

// Duration 片段时长（秒）
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// TranscriptRecord 一次处理的完整结果
type TranscriptRecord struct {
	Segments []Segment `json:"segments"`
	Summary  string    `json:"summary"`
}

// WordCount 统计所有片段中的单词总数
func (r *TranscriptRecord) WordCount() int {
	total := 0
	for _, seg := range r.Segments {
		total += len(strings.Fields(seg.Text))
	}
	return total
}

// SpeakerCount 统计不同说话人的数量
func (r *TranscriptRecord) SpeakerCount() int {
	seen := make(map[string]struct{}, len(r.Segments))
	for _, seg := range r.Segments {
		seen[seg.Speaker] = struct{}{}
	}
	return len(seen)
}

// FullText 按顺序拼接所有片段文本
func (r *TranscriptRecord) FullText() string {
	parts := make([]string, 0, len(r.Segments))
	for _, seg := range r.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Clone 深拷贝记录，调用方修改副本不会影响原记录
func (r *TranscriptRecord) Clone() *TranscriptRecord {
	if r == nil {
		return nil
	}
	segments := make([]Segment, len(r.Segments))
	copy(segments, r.Segments)
	return &TranscriptRecord{Segments: segments, Summary: r.Summary}
}

// BenchmarkEntry 模型基准数据（静态参考数据）
type BenchmarkEntry struct {
	Model   string             `json:"model" mapstructure:"model"`
	Metrics map[string]float64 `json:"metrics" mapstructure:"metrics"`
}

// WER 返回词错误率指标，缺失时返回-1
func (e BenchmarkEntry) WER() float64 {
	if v, ok := e.Metrics["WER"]; ok {
		return v
	}
	return -1
}
