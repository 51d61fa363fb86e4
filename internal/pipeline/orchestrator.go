package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ccp-p/meeting-transcriber/internal/store"
	"github.com/ccp-p/meeting-transcriber/internal/ui"
	"github.com/ccp-p/meeting-transcriber/pkg/asr"
	"github.com/ccp-p/meeting-transcriber/pkg/diarize"
	"github.com/ccp-p/meeting-transcriber/pkg/models"
	"github.com/ccp-p/meeting-transcriber/pkg/summarize"
	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

// 阶段名
const (
	StageInit       = "initialize_models"
	StageTranscribe = asr.StageTranscribe
	StageDiarize    = diarize.StageDiarize
	StageSummarize  = "summarize"
)

// Stages 按执行顺序排列的阶段
var Stages = []string{StageInit, StageTranscribe, StageDiarize, StageSummarize}

// Request 一次处理请求
type Request struct {
	FileName string // 原始文件名，用于扩展名和导出目录
	Data     []byte // 音频内容
	Model    string // fast | accurate，空表示使用配置
	RunID    string // 运行 ID，空时自动生成
}

// Orchestrator 串行执行 初始化 -> 转写 -> 分离 -> 摘要
type Orchestrator struct {
	config   *models.Config
	models   *Models
	progress *ui.ProgressManager
	errors   *utils.ErrorHandler
}

// 单次运行的状态，只由 Run 持有
type run struct {
	id        string
	model     string
	audioPath string
	log       *logrus.Entry

	transcriber SpeechToText
	diarizer    SpeakerSegmenter
	summarizer  TextSummarizer
	caps        Capabilities

	transcript *asr.Result
	segments   []models.Segment
	summary    string
	method     summarize.Method
}

// New 创建编排器
func New(config *models.Config, m *Models) *Orchestrator {
	return &Orchestrator{
		config: config,
		models: m,
		errors: utils.NewErrorHandler(),
	}
}

// SetProgressManager 设置终端进度显示
func (o *Orchestrator) SetProgressManager(pm *ui.ProgressManager) {
	o.progress = pm
}

// Models 返回模型缓存
func (o *Orchestrator) Models() *Models {
	return o.models
}

// ErrorStats 各阶段错误统计
func (o *Orchestrator) ErrorStats() map[string]map[string]int {
	return o.errors.GetErrorStats()
}

// PrintErrorStats 输出错误统计日志
func (o *Orchestrator) PrintErrorStats() {
	o.errors.PrintErrorStats()
}

// RunFile 读取文件后处理
func (o *Orchestrator) RunFile(ctx context.Context, path, model string) (*models.RunResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取录音失败: %w", err)
	}
	return o.Run(ctx, Request{FileName: filepath.Base(path), Data: data, Model: model})
}

// Run 处理一段录音，任一阶段失败都中止并返回 *Failure
// 临时音频文件在所有退出路径上都会删除
func (o *Orchestrator) Run(ctx context.Context, req Request) (result *models.RunResult, err error) {
	start := time.Now()
	r := &run{id: req.RunID, model: req.Model}
	if r.id == "" {
		r.id = uuid.NewString()
	}
	if r.model == "" {
		r.model = o.config.ModelChoice
	}
	r.log = utils.WithFields(logrus.Fields{"run_id": r.id, "file": req.FileName, "model": r.model})

	if err := validateRequest(req, r.model); err != nil {
		return nil, o.abort(r, StageInit, err)
	}

	audioPath, cleanup, err := utils.WriteTempAudio(o.config.TempDir, req.FileName, req.Data)
	if err != nil {
		return nil, o.abort(r, StageInit, err)
	}
	defer cleanup()
	r.audioPath = audioPath

	o.progress.CreateProgressBar(r.id, len(Stages), req.FileName, StageInit)
	r.log.Infof("开始处理 (%s)", utils.FormatFileSize(int64(len(req.Data))))

	stages := []struct {
		name string
		fn   func(context.Context, *run) error
	}{
		{StageInit, o.initModels},
		{StageTranscribe, o.transcribe},
		{StageDiarize, o.diarize},
		{StageSummarize, o.summarize},
	}

	for i, stage := range stages {
		o.progress.UpdateProgressBar(r.id, i, stage.name)
		stageLog := r.log.WithField("stage", stage.name)
		stageLog.Debug("阶段开始")

		stageStart := time.Now()
		if err := o.errors.SafeExecute(stage.name, func() error {
			return runStage(ctx, r, stage.fn)
		}, nil); err != nil {
			o.progress.FailProgressBar(r.id, "失败: "+stage.name)
			return nil, o.abort(r, stage.name, err)
		}
		stageLog.Infof("阶段完成，耗时 %s", time.Since(stageStart).Round(time.Millisecond))
	}

	record := &models.TranscriptRecord{Segments: r.segments, Summary: r.summary}
	result = &models.RunResult{
		RunID:         r.id,
		FileName:      req.FileName,
		Fingerprint:   store.Fingerprint(req.Data),
		Model:         r.model,
		Record:        record,
		Notes:         r.caps.Notes,
		DurationSec:   maxEnd(r.segments),
		ProcessTimeMs: time.Since(start).Milliseconds(),
		CreatedAt:     time.Now(),
	}

	o.progress.CompleteProgressBar(r.id, "完成")
	r.log.Infof("处理完成: %d 段, %d 位说话人, %d 词, 用时 %s",
		len(record.Segments), record.SpeakerCount(), record.WordCount(),
		utils.FormatTimeDuration(time.Since(start).Seconds()))
	return result, nil
}

// 执行单个阶段，阶段内 panic 转为错误；每个阶段开始前检查取消
func runStage(ctx context.Context, r *run, fn func(context.Context, *run) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &panicError{value: p, stack: debug.Stack()}
		}
	}()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fn(ctx, r)
}

type panicError struct {
	value interface{}
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

func (o *Orchestrator) abort(r *run, stage string, cause error) error {
	stack := debug.Stack()
	var pe *panicError
	if errors.As(cause, &pe) {
		stack = pe.stack
	}

	failure := newFailure(r.id, stage, cause, stack)
	r.log.WithField("stage", stage).Errorf("处理中止: %v", cause)
	r.log.Debug(failure.Trace)
	return failure
}

func validateRequest(req Request, model string) error {
	if len(req.Data) == 0 {
		return utils.NewStageError(StageInit, utils.KindPipeline, "empty audio upload", nil)
	}
	switch model {
	case models.ModelFast, models.ModelAccurate:
		return nil
	}
	return utils.NewStageError(StageInit, utils.KindPipeline, fmt.Sprintf("unknown model '%s'", model), nil)
}

func (o *Orchestrator) initModels(ctx context.Context, r *run) error {
	r.transcriber = o.models.Transcriber(r.model)
	r.diarizer = o.models.Diarizer(ctx)
	r.summarizer = o.models.Summarizer()
	r.caps = o.models.Capabilities(ctx, r.model)

	for _, note := range r.caps.Notes {
		r.log.Warn(note)
	}
	return nil
}

func (o *Orchestrator) transcribe(ctx context.Context, r *run) error {
	result, err := r.transcriber.TranscribeDetailed(ctx, r.audioPath)
	if err != nil {
		return err
	}
	r.transcript = result
	r.log.Debugf("识别文本 %d 字符, %d 个时间段", len(result.Text), len(result.Segments))
	return nil
}

func (o *Orchestrator) diarize(ctx context.Context, r *run) error {
	segments, err := r.diarizer.Segments(ctx, r.audioPath, r.transcript.Text)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !utils.IsKind(err, utils.KindRuntime) || len(segments) == 0 {
			return err
		}
		// 分离失败不影响转写结果：保留回退片段，文本换成完整转写
		o.errors.Record(StageDiarize, err)
		r.log.WithField("stage", StageDiarize).Warnf("说话人分离失败，使用单一说话人: %v", err)
		fallback := segments[0]
		fallback.Text = r.transcript.Text
		r.segments = []models.Segment{fallback}
		r.caps.Notes = append(r.caps.Notes, "speaker diarization failed, full transcript attributed to "+fallback.Speaker)
		return nil
	}

	// 有真实的多说话人结果且转写带时间戳时，按时间把文本分给各说话人
	if degraded, _ := r.diarizer.Degraded(); !degraded && len(r.transcript.Segments) > 0 {
		segments = diarize.AttributeText(segments, toSegments(r.transcript.Segments))
	}
	r.segments = segments
	return nil
}

func (o *Orchestrator) summarize(ctx context.Context, r *run) error {
	summary, method := r.summarizer.SummarizeWithMethod(ctx, r.transcript.Text)
	if err := ctx.Err(); err != nil {
		return err
	}
	if method == summarize.MethodExtractive && r.summarizer.Available() {
		r.caps.Notes = append(r.caps.Notes, "abstractive summary failed, extractive summary used")
	}
	r.summary = summary
	r.method = method
	r.log.Debugf("摘要方式: %s", method)
	return nil
}

func toSegments(pieces []asr.DataSegment) []models.Segment {
	out := make([]models.Segment, 0, len(pieces))
	for _, p := range pieces {
		out = append(out, models.Segment{Start: p.StartTime, End: p.EndTime, Text: p.Text})
	}
	return out
}

func maxEnd(segments []models.Segment) float64 {
	end := 0.0
	for _, seg := range segments {
		if seg.End > end {
			end = seg.End
		}
	}
	return end
}
