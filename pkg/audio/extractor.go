package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

// ConvertToWAV 使用 ffmpeg 将任意音视频文件转换为单声道 PCM WAV
func ConvertToWAV(ctx context.Context, inputPath, outputPath string, sampleRate int) error {
	if !utils.CheckFFmpeg() {
		return fmt.Errorf("未找到 ffmpeg，无法转换 %s", filepath.Base(inputPath))
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	cmd := exec.CommandContext(ctx,
		"ffmpeg",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-c:a", "pcm_s16le",
		outputPath,
	)

	utils.Debug("正在转换音频: %s", filepath.Base(inputPath))
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("音频转换失败: %w: %s", err, lastLine(string(output)))
	}

	if _, err := os.Stat(outputPath); err != nil {
		return fmt.Errorf("转换后的音频文件不存在: %s", outputPath)
	}
	return nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
