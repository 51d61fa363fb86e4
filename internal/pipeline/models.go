package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/ccp-p/meeting-transcriber/pkg/asr"
	"github.com/ccp-p/meeting-transcriber/pkg/diarize"
	"github.com/ccp-p/meeting-transcriber/pkg/models"
	"github.com/ccp-p/meeting-transcriber/pkg/summarize"
	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

// SpeechToText 转写适配器
type SpeechToText interface {
	Name() string
	Available() bool
	LoadError() error
	TranscribeDetailed(ctx context.Context, audioPath string) (*asr.Result, error)
	Close()
}

// SpeakerSegmenter 说话人分离适配器
type SpeakerSegmenter interface {
	Mode() diarize.Mode
	Degraded() (bool, string)
	Segments(ctx context.Context, audioPath, transcript string) ([]models.Segment, error)
}

// TextSummarizer 摘要适配器
type TextSummarizer interface {
	Available() bool
	SummarizeWithMethod(ctx context.Context, text string) (string, summarize.Method)
}

// Factory 构造各个适配器，测试中可替换
type Factory struct {
	Transcriber func(model string) SpeechToText
	Diarizer    func(ctx context.Context) SpeakerSegmenter
	Summarizer  func() TextSummarizer
}

// DefaultFactory 按配置构造真实模型
func DefaultFactory(config *models.Config, selector *asr.ASRSelector) Factory {
	return Factory{
		Transcriber: func(model string) SpeechToText {
			return asr.NewTranscriber(selector, model, config)
		},
		Diarizer: func(ctx context.Context) SpeakerSegmenter {
			return diarize.New(ctx, diarize.OptionsFromConfig(config))
		},
		Summarizer: func() TextSummarizer {
			return summarize.NewFromConfig(config)
		},
	}
}

// Capabilities 本次运行实际可用的能力
type Capabilities struct {
	Transcriber          string   `json:"transcriber"`
	TranscriberAvailable bool     `json:"transcriber_available"`
	Diarization          string   `json:"diarization"`
	Summarization        string   `json:"summarization"`
	Notes                []string `json:"notes,omitempty"`
}

// Models 模型缓存，每种模型只构造一次并在多次运行间复用
type Models struct {
	mu           sync.Mutex
	factory      Factory
	transcribers map[string]SpeechToText
	diarizer     SpeakerSegmenter
	summarizer   TextSummarizer
}

// NewModels 创建模型缓存，模型在第一次使用时加载
func NewModels(factory Factory) *Models {
	return &Models{
		factory:      factory,
		transcribers: make(map[string]SpeechToText),
	}
}

// Transcriber 获取指定模型的转写器
func (m *Models) Transcriber(model string) SpeechToText {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.transcribers[model]; ok {
		return t
	}
	t := m.factory.Transcriber(model)
	m.transcribers[model] = t
	return t
}

// Diarizer 获取说话人分离器
func (m *Models) Diarizer(ctx context.Context) SpeakerSegmenter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.diarizer == nil {
		m.diarizer = m.factory.Diarizer(ctx)
	}
	return m.diarizer
}

// Summarizer 获取摘要器
func (m *Models) Summarizer() TextSummarizer {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.summarizer == nil {
		m.summarizer = m.factory.Summarizer()
	}
	return m.summarizer
}

// Warmup 预先加载模型，服务启动时调用
func (m *Models) Warmup(ctx context.Context, modelNames ...string) Capabilities {
	var caps Capabilities
	for _, name := range modelNames {
		caps = m.Capabilities(ctx, name)
	}
	return caps
}

// Capabilities 汇总指定转写模型下的能力和降级说明
func (m *Models) Capabilities(ctx context.Context, model string) Capabilities {
	t := m.Transcriber(model)
	d := m.Diarizer(ctx)
	s := m.Summarizer()

	caps := Capabilities{
		Transcriber:          t.Name(),
		TranscriberAvailable: t.Available(),
		Diarization:          string(d.Mode()),
		Summarization:        string(summarize.MethodAbstractive),
	}

	if !t.Available() {
		caps.Notes = append(caps.Notes, fmt.Sprintf("transcription model '%s' unavailable", t.Name()))
	}
	if degraded, reason := d.Degraded(); degraded {
		note := "speaker diarization unavailable, single-speaker mode used"
		if reason != "" {
			note += " (" + reason + ")"
		}
		caps.Notes = append(caps.Notes, note)
	}
	if !s.Available() {
		caps.Summarization = string(summarize.MethodExtractive)
		caps.Notes = append(caps.Notes, "abstractive summarizer unavailable, extractive summary used")
	}
	return caps
}

// Close 释放已加载的模型
func (m *Models) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, t := range m.transcribers {
		t.Close()
		utils.Debug("已释放转写模型: %s", name)
	}
	m.transcribers = make(map[string]SpeechToText)
}
