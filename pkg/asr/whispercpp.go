//go:build whispercpp

package asr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/ccp-p/meeting-transcriber/pkg/audio"
	"github.com/ccp-p/meeting-transcriber/pkg/models"
)

// WhisperCppEngine 本地 whisper.cpp 模型（fast）
type WhisperCppEngine struct {
	mu       sync.Mutex
	model    whisper.Model
	language string
}

// NewWhisperCppEngine 加载 ggml 模型文件
func NewWhisperCppEngine(config *models.Config) (Engine, error) {
	path := strings.TrimSpace(config.WhisperModelPath)
	if path == "" {
		return nil, errors.New("未配置 whisper 模型路径")
	}

	model, err := whisper.New(path)
	if err != nil {
		return nil, fmt.Errorf("加载 whisper 模型失败: %w", err)
	}

	language := strings.TrimSpace(config.Language)
	if language == "" {
		language = "auto"
	}
	return &WhisperCppEngine{model: model, language: language}, nil
}

// Transcribe 解码为 16kHz 单声道后本地识别
func (e *WhisperCppEngine) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	samples, err := audio.DecodePCM(ctx, audioPath, int(whisper.SampleRate))
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return &Result{}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return nil, errors.New("whisper 模型已关闭")
	}

	wctx, err := e.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("创建 whisper 上下文失败: %w", err)
	}
	wctx.SetThreads(uint(runtime.NumCPU()))
	wctx.SetTranslate(false)
	wctx.SetTemperature(0)
	if err := wctx.SetLanguage(e.language); err != nil {
		return nil, err
	}

	encoderCb := func() bool { return ctx.Err() == nil }
	if err := wctx.Process(samples, encoderCb, nil, nil); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{}
	var text strings.Builder
	for {
		seg, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		segText := strings.TrimSpace(seg.Text)
		result.Segments = append(result.Segments, DataSegment{
			Text:      segText,
			StartTime: seg.Start.Seconds(),
			EndTime:   seg.End.Seconds(),
		})
		if text.Len() > 0 {
			text.WriteByte(' ')
		}
		text.WriteString(segText)
	}

	result.Text = text.String()
	result.Language = wctx.DetectedLanguage()
	return result, nil
}

// Close 释放模型
func (e *WhisperCppEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model != nil {
		_ = e.model.Close()
		e.model = nil
	}
}
