package models

import "time"

// RunStatus 处理任务状态
type RunStatus string

const (
	StatusPending RunStatus = "PENDING"
	StatusRunning RunStatus = "RUNNING"
	StatusSuccess RunStatus = "SUCCESS"
	StatusFailed  RunStatus = "FAILED"
)

// RunResult 一次处理的结果统计信息
type RunResult struct {
	RunID         string            `json:"run_id"`          // 处理编号
	FileName      string            `json:"file_name"`       // 上传的文件名
	Fingerprint   string            `json:"fingerprint"`     // 音频内容指纹
	Model         string            `json:"model"`           // 使用的转写模型
	Record        *TranscriptRecord `json:"record"`          // 完整记录
	Notes         []string          `json:"notes,omitempty"` // 降级说明
	OutputFiles   map[string]string `json:"output_files,omitempty"`
	DurationSec   float64           `json:"duration_sec"`    // 音频时长（秒）
	ProcessTimeMs int64             `json:"process_time_ms"` // 处理时间（毫秒）
	CreatedAt     time.Time         `json:"created_at"`
}
