//go:build !whispercpp

package asr

import (
	"errors"

	"github.com/ccp-p/meeting-transcriber/pkg/models"
)

// NewWhisperCppEngine 未启用 whispercpp 构建标签时本地模型不可用
func NewWhisperCppEngine(config *models.Config) (Engine, error) {
	return nil, errors.New("本地 whisper.cpp 模型未编译，请使用 -tags whispercpp 构建")
}
