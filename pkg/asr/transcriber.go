package asr

import (
	"context"
	"strings"

	"github.com/ccp-p/meeting-transcriber/pkg/models"
	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

// 阶段名，用于错误和日志
const (
	StageLoad       = "load_model"
	StageTranscribe = "transcribe"
)

// Transcriber 转写适配器，构造时加载一次模型
// 加载失败不会返回错误，之后每次调用都返回 ModelUnavailable
type Transcriber struct {
	name     string
	engine   Engine
	loadErr  error
	selector *ASRSelector
}

// NewTranscriber 加载指定模型
func NewTranscriber(selector *ASRSelector, name string, config *models.Config) *Transcriber {
	t := &Transcriber{name: name, selector: selector}

	engine, err := selector.Create(name, config)
	if err != nil {
		t.loadErr = utils.NewStageError(StageLoad, utils.KindModelUnavailable,
			"ERROR: transcription model '"+name+"' failed to load", err)
		utils.WithField("model", name).Warnf("转写模型加载失败: %v", err)
		return t
	}

	t.engine = engine
	utils.WithField("model", name).Info("转写模型已加载")
	return t
}

// Name 模型名
func (t *Transcriber) Name() string {
	return t.name
}

// Available 模型是否加载成功
func (t *Transcriber) Available() bool {
	return t.loadErr == nil
}

// LoadError 模型加载错误
func (t *Transcriber) LoadError() error {
	return t.loadErr
}

// Transcribe 返回识别文本，没有语音时返回 NoSpeechPlaceholder
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	result, err := t.TranscribeDetailed(ctx, audioPath)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// TranscribeDetailed 返回带时间戳的识别结果
func (t *Transcriber) TranscribeDetailed(ctx context.Context, audioPath string) (*Result, error) {
	if t.loadErr != nil {
		return nil, t.loadErr
	}

	result, err := t.engine.Transcribe(ctx, audioPath)
	t.selector.ReportResult(t.name, err == nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, utils.NewStageError(StageTranscribe, utils.KindRuntime, "transcription cancelled", ctx.Err())
		}
		return nil, utils.NewStageError(StageTranscribe, utils.KindRuntime, "ERROR: transcription failed", err)
	}

	if result == nil || strings.TrimSpace(result.Text) == "" {
		utils.WithField("model", t.name).Info("未检测到语音")
		return &Result{Text: NoSpeechPlaceholder}, nil
	}

	result.Text = strings.TrimSpace(result.Text)
	return result, nil
}

// Close 释放模型
func (t *Transcriber) Close() {
	if t.engine != nil {
		t.engine.Close()
	}
}
