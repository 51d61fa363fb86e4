package utils

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrorKind 错误分类
type ErrorKind string

const (
	// KindModelUnavailable 依赖缺失或模型加载失败
	KindModelUnavailable ErrorKind = "ModelUnavailable"
	// KindRuntime 模型调用过程中的运行时错误
	KindRuntime ErrorKind = "Runtime"
	// KindPipeline 流水线级错误，整次运行中止
	KindPipeline ErrorKind = "Pipeline"
)

// AppError 是通用错误的基础类型
type AppError struct {
	Message string
	Cause   error
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Cause.Error())
	}
	return e.Message
}

// Unwrap 支持error chain
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewError 创建一个新的AppError
func NewError(message string, cause error) error {
	return &AppError{
		Message: message,
		Cause:   cause,
	}
}

// StageError 带阶段和分类的错误
type StageError struct {
	Stage   string
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *StageError) Error() string {
	var b strings.Builder
	if e.Stage != "" {
		fmt.Fprintf(&b, "[%s] ", e.Stage)
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// NewStageError 创建阶段错误
func NewStageError(stage string, kind ErrorKind, message string, cause error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Message: message, Cause: cause}
}

// KindOf 返回错误链中第一个StageError的分类，不存在时返回空字符串
func KindOf(err error) ErrorKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsKind 判断错误链中是否包含指定分类的StageError
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// ErrorHandler 统计错误并负责失败清理
type ErrorHandler struct {
	mu         sync.Mutex
	ErrorStats map[string]map[string]int // 操作 -> 错误信息 -> 计数
}

// NewErrorHandler 创建新的错误处理器
func NewErrorHandler() *ErrorHandler {
	return &ErrorHandler{
		ErrorStats: make(map[string]map[string]int),
	}
}

// SafeExecute 执行函数，失败时记录统计并执行清理
func (h *ErrorHandler) SafeExecute(operation string, fn func() error, cleanup func()) error {
	err := fn()
	if err != nil {
		h.Record(operation, err)

		if cleanup != nil {
			Debug("执行清理操作: %s", operation)
			cleanup()
		}

		// 已分类的错误原样返回，调用方依赖errors.As取得分类
		var se *StageError
		if errors.As(err, &se) {
			return err
		}
		return NewError(fmt.Sprintf("操作 %s 失败", operation), err)
	}
	return nil
}

// Record 记录一次错误
func (h *ErrorHandler) Record(operation string, err error) {
	if err == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ErrorStats[operation] == nil {
		h.ErrorStats[operation] = make(map[string]int)
	}
	h.ErrorStats[operation][err.Error()]++
}

// GetErrorStats 获取错误统计信息的副本
func (h *ErrorHandler) GetErrorStats() map[string]map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]map[string]int, len(h.ErrorStats))
	for op, errs := range h.ErrorStats {
		inner := make(map[string]int, len(errs))
		for msg, n := range errs {
			inner[msg] = n
		}
		out[op] = inner
	}
	return out
}

// PrintErrorStats 打印错误统计信息
func (h *ErrorHandler) PrintErrorStats() {
	stats := h.GetErrorStats()
	if len(stats) == 0 {
		Info("没有错误记录")
		return
	}

	Info("错误统计:")
	for operation, errs := range stats {
		Info("操作: %s", operation)
		for errMsg, count := range errs {
			Info("  - %s: %d次", errMsg, count)
		}
	}
}
