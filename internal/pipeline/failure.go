package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

// Failure 中止的运行，携带完整诊断信息
type Failure struct {
	RunID string
	Stage string
	Err   *utils.StageError // Pipeline 分类，Cause 为阶段原始错误
	Trace string
}

func (f *Failure) Error() string {
	return f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Cause 阶段返回的原始错误
func (f *Failure) Cause() error {
	return f.Err.Cause
}

func newFailure(runID, stage string, cause error, stack []byte) *Failure {
	return &Failure{
		RunID: runID,
		Stage: stage,
		Err:   utils.NewStageError(stage, utils.KindPipeline, "processing aborted", cause),
		Trace: buildTrace(runID, stage, cause, stack),
	}
}

func buildTrace(runID, stage string, err error, stack []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run: %s\n", runID)
	fmt.Fprintf(&b, "stage: %s\n", stage)
	if kind := utils.KindOf(err); kind != "" {
		fmt.Fprintf(&b, "kind: %s\n", kind)
	}
	b.WriteString("error chain:\n")
	for e := err; e != nil; e = errors.Unwrap(e) {
		fmt.Fprintf(&b, "  %T: %v\n", e, e)
	}
	if len(stack) > 0 {
		b.WriteString("\n")
		b.Write(stack)
	}
	return b.String()
}
