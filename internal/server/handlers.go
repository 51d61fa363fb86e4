package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ccp-p/meeting-transcriber/internal/pipeline"
	"github.com/ccp-p/meeting-transcriber/internal/store"
	"github.com/ccp-p/meeting-transcriber/pkg/audio"
	"github.com/ccp-p/meeting-transcriber/pkg/evaluation"
	"github.com/ccp-p/meeting-transcriber/pkg/export"
	"github.com/ccp-p/meeting-transcriber/pkg/models"
	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

func respondWithError(c *gin.Context, code int, message string) {
	c.JSON(code, BaseResponse{Code: code, Msg: message})
}

// handleCreateRun 上传录音并创建处理任务
func (s *Service) handleCreateRun(c *gin.Context) {
	maxBytes := int64(s.deps.Config.MaxUploadMB) << 20
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+1<<20)

	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondWithError(c, http.StatusRequestEntityTooLarge, "文件过大")
			return
		}
		respondWithError(c, http.StatusBadRequest, "获取上传文件失败: "+err.Error())
		return
	}
	if header.Size > maxBytes {
		respondWithError(c, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("文件过大: %s", utils.FormatFileSize(header.Size)))
		return
	}
	if !audio.IsSupported(header.Filename) {
		respondWithError(c, http.StatusBadRequest, "不支持的文件格式: "+header.Filename)
		return
	}

	model := c.DefaultPostForm("model", s.deps.Config.ModelChoice)
	if model != models.ModelFast && model != models.ModelAccurate {
		respondWithError(c, http.StatusBadRequest, "model 必须是 fast 或 accurate")
		return
	}

	file, err := header.Open()
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, "读取上传文件失败")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, "读取上传文件失败")
		return
	}
	if len(data) == 0 {
		respondWithError(c, http.StatusBadRequest, "上传文件为空")
		return
	}
	utils.Info("接收到文件上传: %s, 大小: %s", header.Filename, utils.FormatFileSize(int64(len(data))))

	if s.deps.Store != nil {
		existing, err := s.deps.Store.FindByFingerprint(c.Request.Context(), store.Fingerprint(data), model)
		if err == nil {
			taskID := s.tasks.Complete(existing)
			c.JSON(http.StatusOK, CreateRunResponse{
				BaseResponse: BaseResponse{Code: 0, Msg: "已处理过相同内容的录音"},
				Data:         &CreateRunData{TaskID: taskID, Cached: true},
			})
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			utils.Warn("查询记录失败: %v", err)
		}
	}

	taskID, err := s.tasks.Submit(pipeline.Request{FileName: header.Filename, Data: data, Model: model})
	if err != nil {
		respondWithError(c, http.StatusServiceUnavailable, err.Error())
		return
	}

	c.JSON(http.StatusOK, CreateRunResponse{
		BaseResponse: BaseResponse{Code: 0},
		Data:         &CreateRunData{TaskID: taskID},
	})
}

// handleGetRun 查询任务状态，内存中没有时查记录库
func (s *Service) handleGetRun(c *gin.Context) {
	data, ok := s.lookup(c.Request.Context(), c.Param("id"))
	if !ok {
		respondWithError(c, http.StatusNotFound, "任务不存在")
		return
	}
	c.JSON(http.StatusOK, TaskStatusResponse{BaseResponse: BaseResponse{Code: 0}, Data: data})
}

func (s *Service) lookup(ctx context.Context, id string) (*TaskStatusData, bool) {
	if task, ok := s.tasks.Get(id); ok {
		data := &TaskStatusData{
			TaskID:   task.ID,
			Status:   task.Status,
			FileName: task.FileName,
			Model:    task.Model,
			Error:    task.Error,
			Stage:    task.Stage,
			Trace:    task.Trace,
		}
		if task.Result != nil {
			data.Result = snapshot(task.Result)
			data.Metrics = metricsOf(task.Result.Record)
		}
		return data, true
	}

	if s.deps.Store == nil {
		return nil, false
	}
	result, err := s.deps.Store.Get(ctx, id)
	if err != nil {
		return nil, false
	}
	return &TaskStatusData{
		TaskID:   result.RunID,
		Status:   models.StatusSuccess,
		FileName: result.FileName,
		Model:    result.Model,
		Result:   result,
		Metrics:  metricsOf(result.Record),
	}, true
}

// 返回结果副本，已完成的记录不会被调用方修改
func snapshot(result *models.RunResult) *models.RunResult {
	out := *result
	out.Record = result.Record.Clone()
	return &out
}

func metricsOf(record *models.TranscriptRecord) *RecordMetrics {
	if record == nil {
		return nil
	}
	return &RecordMetrics{
		WordCount:    record.WordCount(),
		SpeakerCount: record.SpeakerCount(),
		SegmentCount: len(record.Segments),
	}
}

// handleExport 下载或预览导出文件
func (s *Service) handleExport(c *gin.Context) {
	format, err := export.ParseFormat(c.DefaultQuery("format", string(export.FormatJSON)))
	if err != nil {
		respondWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	data, ok := s.lookup(c.Request.Context(), c.Param("id"))
	if !ok {
		respondWithError(c, http.StatusNotFound, "任务不存在")
		return
	}
	if data.Status != models.StatusSuccess || data.Result == nil {
		respondWithError(c, http.StatusConflict, "任务尚未完成: "+string(data.Status))
		return
	}

	content, err := export.Render(format, data.Result.Record)
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, err.Error())
		return
	}

	disposition := "attachment"
	if c.Query("inline") == "1" {
		disposition = "inline"
	}
	c.Header("Content-Disposition", fmt.Sprintf(`%s; filename="%s"`, disposition, format.FileName()))
	c.Data(http.StatusOK, format.MIMEType(), []byte(content))
}

// handleListRuns 列出已保存的记录
func (s *Service) handleListRuns(c *gin.Context) {
	if s.deps.Store == nil {
		c.JSON(http.StatusOK, RunListResponse{BaseResponse: BaseResponse{Code: 0}, Data: []*models.RunResult{}})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		respondWithError(c, http.StatusBadRequest, "limit 无效")
		return
	}

	results, err := s.deps.Store.List(c.Request.Context(), limit)
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []*models.RunResult{}
	}
	c.JSON(http.StatusOK, RunListResponse{BaseResponse: BaseResponse{Code: 0}, Data: results})
}

// handleBenchmarks 模型基准对比
func (s *Service) handleBenchmarks(c *gin.Context) {
	entries := s.deps.Benchmarks
	if entries == nil {
		entries = evaluation.Entries()
	}
	c.JSON(http.StatusOK, BenchmarkResponse{
		BaseResponse: BaseResponse{Code: 0},
		Data: &BenchmarkData{
			Report:  evaluation.ReportFromEntries(entries),
			Entries: entries,
		},
	})
}

// handleWER 计算当前会话质量
func (s *Service) handleWER(c *gin.Context) {
	var req WERRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, "无效的请求体: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Reference) == "" {
		respondWithError(c, http.StatusBadRequest, "缺少 reference")
		return
	}

	hypothesis := req.Hypothesis
	if hypothesis == "" && req.RunID != "" {
		data, ok := s.lookup(c.Request.Context(), req.RunID)
		if !ok || data.Result == nil {
			respondWithError(c, http.StatusNotFound, "记录不存在或尚未完成")
			return
		}
		hypothesis = data.Result.Record.FullText()
	}

	measures := evaluation.Compare(req.Reference, hypothesis)
	c.JSON(http.StatusOK, WERResponse{BaseResponse: BaseResponse{Code: 0}, Data: &measures})
}

// handleStats 服务统计
func (s *Service) handleStats(c *gin.Context) {
	data := &StatsData{
		Transcribers: map[string]map[string]interface{}{},
		Errors:       map[string]map[string]int{},
		Tasks:        s.tasks.Counts(),
	}
	if s.deps.Stats != nil {
		data.Transcribers = s.deps.Stats.GetStats()
	}
	if s.deps.ErrorStats != nil {
		data.Errors = s.deps.ErrorStats()
	}
	c.JSON(http.StatusOK, StatsResponse{BaseResponse: BaseResponse{Code: 0}, Data: data})
}
