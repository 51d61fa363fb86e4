package adapters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ccp-p/meeting-transcriber/internal/pipeline"
	"github.com/ccp-p/meeting-transcriber/internal/store"
	"github.com/ccp-p/meeting-transcriber/pkg/export"
	"github.com/ccp-p/meeting-transcriber/pkg/models"
	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

// MediaProcessor 是处理录音文件的接口
type MediaProcessor interface {
	ProcessFile(ctx context.Context, filePath string) (*models.RunResult, error)
	IsRecognizedFile(filePath string) bool
}

// Runner 执行一次完整处理
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*models.RunResult, error)
}

// RecordStore 记录存储
type RecordStore interface {
	Save(ctx context.Context, result *models.RunResult) error
	FindByFingerprint(ctx context.Context, fingerprint, model string) (*models.RunResult, error)
}

// PipelineAdapter 把流水线、导出和存储组合为 MediaProcessor
type PipelineAdapter struct {
	Runner   Runner
	Exporter *export.Exporter
	Store    RecordStore // 可为空，为空时不去重
	Formats  []string
	Model    string

	mu           sync.Mutex
	fingerprints map[string]cachedFingerprint
}

type cachedFingerprint struct {
	size    int64
	modTime time.Time
	value   string
}

// NewPipelineAdapter 创建适配器
func NewPipelineAdapter(runner Runner, exporter *export.Exporter, recordStore RecordStore, config *models.Config) *PipelineAdapter {
	return &PipelineAdapter{
		Runner:       runner,
		Exporter:     exporter,
		Store:        recordStore,
		Formats:      config.EnabledFormats(),
		Model:        config.ModelChoice,
		fingerprints: make(map[string]cachedFingerprint),
	}
}

// ProcessFile 处理文件：运行流水线、导出并保存记录
func (a *PipelineAdapter) ProcessFile(ctx context.Context, filePath string) (*models.RunResult, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取录音失败: %w", err)
	}

	result, err := a.Runner.Run(ctx, pipeline.Request{
		FileName: filepath.Base(filePath),
		Data:     data,
		Model:    a.Model,
	})
	if err != nil {
		return nil, err
	}

	outputs, err := a.Exporter.Export(result.Record, result.FileName, a.Formats)
	if err != nil {
		return nil, fmt.Errorf("导出失败: %w", err)
	}
	result.OutputFiles = outputs

	if a.Store != nil {
		if err := a.Store.Save(ctx, result); err != nil {
			return result, err
		}
	}
	a.remember(filePath, result.Fingerprint)
	return result, nil
}

// IsRecognizedFile 检查相同内容的录音是否已处理过
func (a *PipelineAdapter) IsRecognizedFile(filePath string) bool {
	if a.Store == nil {
		return false
	}

	fingerprint, err := a.fingerprint(filePath)
	if err != nil {
		utils.Debug("计算指纹失败 %s: %v", filePath, err)
		return false
	}

	_, err = a.Store.FindByFingerprint(context.Background(), fingerprint, a.Model)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		utils.Warn("查询记录失败: %v", err)
	}
	return err == nil
}

func (a *PipelineAdapter) fingerprint(filePath string) (string, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	cached, ok := a.fingerprints[filePath]
	a.mu.Unlock()
	if ok && cached.size == info.Size() && cached.modTime.Equal(info.ModTime()) {
		return cached.value, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	value := store.Fingerprint(data)
	a.remember(filePath, value)
	return value, nil
}

func (a *PipelineAdapter) remember(filePath, fingerprint string) {
	info, err := os.Stat(filePath)
	if err != nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fingerprints == nil {
		a.fingerprints = make(map[string]cachedFingerprint)
	}
	a.fingerprints[filePath] = cachedFingerprint{size: info.Size(), modTime: info.ModTime(), value: fingerprint}
}
