package server

import (
	"time"

	"github.com/ccp-p/meeting-transcriber/pkg/evaluation"
	"github.com/ccp-p/meeting-transcriber/pkg/models"
)

// --- 请求结构体 ---

// WERRequest 计算词错误率，hypothesis 为空时使用 run_id 对应记录的全文
type WERRequest struct {
	Reference  string `json:"reference"`
	Hypothesis string `json:"hypothesis"`
	RunID      string `json:"run_id"`
}

// --- 响应结构体 ---

type BaseResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg,omitempty"`
}

type CreateRunResponse struct {
	BaseResponse
	Data *CreateRunData `json:"data,omitempty"`
}

type CreateRunData struct {
	TaskID string `json:"task_id"`
	Cached bool   `json:"cached,omitempty"` // 相同内容已处理过，直接复用
}

type TaskStatusResponse struct {
	BaseResponse
	Data *TaskStatusData `json:"data,omitempty"`
}

type TaskStatusData struct {
	TaskID   string            `json:"task_id"`
	Status   models.RunStatus  `json:"status"` // PENDING, RUNNING, SUCCESS, FAILED
	FileName string            `json:"file_name"`
	Model    string            `json:"model"`
	Result   *models.RunResult `json:"result,omitempty"`
	Metrics  *RecordMetrics    `json:"metrics,omitempty"`
	Error    string            `json:"error,omitempty"`
	Stage    string            `json:"stage,omitempty"` // 失败的阶段
	Trace    string            `json:"trace,omitempty"` // 完整诊断信息
}

// RecordMetrics 会话统计
type RecordMetrics struct {
	WordCount    int `json:"word_count"`
	SpeakerCount int `json:"speaker_count"`
	SegmentCount int `json:"segment_count"`
}

type RunListResponse struct {
	BaseResponse
	Data []*models.RunResult `json:"data"`
}

type BenchmarkResponse struct {
	BaseResponse
	Data *BenchmarkData `json:"data,omitempty"`
}

type BenchmarkData struct {
	Report  map[string]map[string]float64 `json:"report"`
	Entries []models.BenchmarkEntry       `json:"entries"`
}

type WERResponse struct {
	BaseResponse
	Data *evaluation.Measures `json:"data,omitempty"`
}

type StatsResponse struct {
	BaseResponse
	Data *StatsData `json:"data,omitempty"`
}

type StatsData struct {
	Transcribers map[string]map[string]interface{} `json:"transcribers"`
	Errors       map[string]map[string]int         `json:"errors"`
	Tasks        map[models.RunStatus]int          `json:"tasks"`
}

// --- 任务内部表示 ---

// Task 一次上传对应的处理任务
type Task struct {
	ID        string
	Status    models.RunStatus
	FileName  string
	Model     string
	Result    *models.RunResult
	Error     string
	Stage     string
	Trace     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
