package asr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/ccp-p/meeting-transcriber/pkg/models"
	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

// OpenAIEngine 通过 OpenAI Whisper API 转写（accurate）
type OpenAIEngine struct {
	client   openai.Client
	model    string
	language string
}

type verboseTranscription struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// NewOpenAIEngine 创建 OpenAI 引擎，缺少 API Key 时视为模型不可用
func NewOpenAIEngine(config *models.Config) (Engine, error) {
	if strings.TrimSpace(config.OpenAIAPIKey) == "" {
		return nil, errors.New("未配置 OpenAI API Key")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.OpenAIAPIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(time.Duration(config.RequestTimeoutSec) * time.Second),
	}
	if config.OpenAIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.OpenAIBaseURL))
	}

	model := config.TranscriptionModel
	if model == "" {
		model = string(openai.AudioModelWhisper1)
	}

	return &OpenAIEngine{
		client:   openai.NewClient(opts...),
		model:    model,
		language: config.Language,
	}, nil
}

// Transcribe 上传录音并返回带段落时间戳的结果
func (e *OpenAIEngine) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("打开音频失败: %w", err)
	}
	defer f.Close()

	params := openai.AudioTranscriptionNewParams{
		File:           f,
		Model:          openai.AudioModel(e.model),
		ResponseFormat: openai.AudioResponseFormatVerboseJSON,
		Temperature:    openai.Float(0),
	}
	if lang := strings.TrimSpace(e.language); lang != "" && lang != "auto" {
		params.Language = openai.String(lang)
	}

	var out verboseTranscription
	if _, err := e.client.Audio.Transcriptions.New(ctx, params, option.WithResponseBodyInto(&out)); err != nil {
		return nil, fmt.Errorf("OpenAI 转写请求失败: %w", err)
	}

	result := &Result{Text: strings.TrimSpace(out.Text), Language: out.Language}
	for _, seg := range out.Segments {
		result.Segments = append(result.Segments, DataSegment{
			Text:      strings.TrimSpace(seg.Text),
			StartTime: seg.Start,
			EndTime:   seg.End,
		})
	}

	utils.Debug("OpenAI 转写完成: %d 个段落, 语言 %s", len(result.Segments), result.Language)
	return result, nil
}

// Close 无需释放资源
func (e *OpenAIEngine) Close() {}
