package asr

import (
	"context"

	"github.com/ccp-p/meeting-transcriber/pkg/models"
)

// NoSpeechPlaceholder 未识别到语音时返回的文本
const NoSpeechPlaceholder = "No speech detected"

// DataSegment 表示一个带时间戳的识别段落
type DataSegment struct {
	Text      string  // 识别出的文本内容
	StartTime float64 // 开始时间（秒）
	EndTime   float64 // 结束时间（秒）
}

// Result 一次识别的完整结果
type Result struct {
	Text     string
	Language string
	Segments []DataSegment // 引擎不提供时间戳时为空
}

// Engine 语音识别引擎，构造时加载模型
type Engine interface {
	// Transcribe 识别整段录音
	Transcribe(ctx context.Context, audioPath string) (*Result, error)
	// Close 释放模型资源
	Close()
}

// EngineCreator 创建引擎实例的函数类型
type EngineCreator func(config *models.Config) (Engine, error)
