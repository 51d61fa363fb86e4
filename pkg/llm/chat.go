package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/ccp-p/meeting-transcriber/pkg/models"
	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

// ChatClient 封装 OpenAI 兼容的 chat completions 接口（OpenAI、火山方舟等）
type ChatClient struct {
	client openai.Client
	model  string
}

// NewChatClient 创建客户端，缺少 API Key 时返回错误
func NewChatClient(config *models.Config) (*ChatClient, error) {
	if strings.TrimSpace(config.OpenAIAPIKey) == "" {
		return nil, errors.New("未配置 API Key，摘要模型不可用")
	}
	if strings.TrimSpace(config.SummaryModel) == "" {
		return nil, errors.New("未配置摘要模型")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.OpenAIAPIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(time.Duration(config.RequestTimeoutSec) * time.Second),
	}
	if config.OpenAIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.OpenAIBaseURL))
	}

	return &ChatClient{
		client: openai.NewClient(opts...),
		model:  config.SummaryModel,
	}, nil
}

// Model 返回模型名
func (c *ChatClient) Model() string {
	return c.model
}

// GenerateSummary 生成摘要，长度限制在 minWords 到 maxWords 个单词之间，温度为0保证结果确定
func (c *ChatClient) GenerateSummary(ctx context.Context, content string, minWords, maxWords int) (string, error) {
	system := fmt.Sprintf(
		"You summarize meeting transcripts. Write a concise summary of %d to %d words. "+
			"Keep key decisions and action items. Reply with the summary only.",
		minWords, maxWords)

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(content),
		},
		Temperature: openai.Float(0),
		// 单词与 token 的比例按 1:2 预留
		MaxCompletionTokens: openai.Int(int64(maxWords * 2)),
	}

	utils.Debug("发送摘要请求, 模型 %s", c.model)
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("摘要请求失败: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("摘要响应为空")
	}

	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", errors.New("摘要内容为空")
	}
	return summary, nil
}
