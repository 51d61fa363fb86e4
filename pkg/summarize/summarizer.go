package summarize

import (
	"context"
	"strings"

	"github.com/ccp-p/meeting-transcriber/pkg/llm"
	"github.com/ccp-p/meeting-transcriber/pkg/models"
	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

// NoTextMessage 输入为空时返回的摘要
const NoTextMessage = "No text to summarize."

// Generator 抽象摘要模型
type Generator interface {
	GenerateSummary(ctx context.Context, content string, minWords, maxWords int) (string, error)
}

// Options 摘要长度相关参数
type Options struct {
	MinWords       int // 摘要最少单词数
	MaxWords       int // 摘要最多单词数
	InputWords     int // 送入模型的最大单词数
	ShortTextWords int // 少于该单词数的文本原样返回
}

// DefaultOptions 默认参数：30-130 词摘要，截取前 500 词，少于 50 词不摘要
func DefaultOptions() Options {
	return Options{MinWords: 30, MaxWords: 130, InputWords: 500, ShortTextWords: 50}
}

// Method 摘要实际使用的方式
type Method string

const (
	MethodNone        Method = "none"        // 空文本或短文本，未调用模型
	MethodAbstractive Method = "abstractive" // 模型生成
	MethodExtractive  Method = "extractive"  // 回退为截取前两句
)

// Summarizer 摘要适配器
type Summarizer struct {
	generator Generator
	opts      Options
}

// New 创建摘要器，generator 为 nil 时只使用抽取式回退
func New(generator Generator, opts Options) *Summarizer {
	return &Summarizer{generator: generator, opts: opts}
}

// NewFromConfig 按配置创建 OpenAI 兼容的摘要模型，不可用时降级
func NewFromConfig(config *models.Config) *Summarizer {
	opts := Options{
		MinWords:       config.SummaryMinWords,
		MaxWords:       config.SummaryMaxWords,
		InputWords:     config.SummaryInputWords,
		ShortTextWords: config.ShortTextWords,
	}

	client, err := llm.NewChatClient(config)
	if err != nil {
		utils.Warn("摘要模型不可用，将使用抽取式摘要: %v", err)
		return New(nil, opts)
	}
	utils.WithField("model", client.Model()).Info("摘要模型已就绪")
	return New(client, opts)
}

// Available 是否有可用的摘要模型
func (s *Summarizer) Available() bool {
	return s.generator != nil
}

// Summarize 生成摘要，永不失败
func (s *Summarizer) Summarize(ctx context.Context, text string) string {
	summary, _ := s.SummarizeWithMethod(ctx, text)
	return summary
}

// SummarizeWithMethod 生成摘要并返回使用的方式
func (s *Summarizer) SummarizeWithMethod(ctx context.Context, text string) (string, Method) {
	if strings.TrimSpace(text) == "" {
		return NoTextMessage, MethodNone
	}

	words := strings.Fields(text)
	if len(words) < s.opts.ShortTextWords {
		utils.Debug("文本过短 (%d 词)，原样返回", len(words))
		return text, MethodNone
	}

	if s.generator == nil {
		return SimpleSummary(text), MethodExtractive
	}

	if s.opts.InputWords > 0 && len(words) > s.opts.InputWords {
		text = strings.Join(words[:s.opts.InputWords], " ")
	}

	utils.Debug("正在摘要 %d 个单词", len(words))
	summary, err := s.generator.GenerateSummary(ctx, text, s.opts.MinWords, s.opts.MaxWords)
	if err != nil {
		utils.Warn("摘要生成失败，使用抽取式摘要: %v", err)
		return SimpleSummary(text), MethodExtractive
	}
	return summary, MethodAbstractive
}

// SimpleSummary 抽取式摘要：按 ". " 切分，返回前两句
// 不超过两句时原样返回
func SimpleSummary(text string) string {
	sentences := strings.Split(text, ". ")
	if len(sentences) <= 2 {
		return text
	}
	return strings.Join(sentences[:2], ". ") + "."
}
