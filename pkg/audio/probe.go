package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

// Duration 返回录音时长（秒）
// wav/mp3/flac 直接解码头部，m4a/mp4 读取 mvhd，其余格式或解析失败时交给 ffprobe
func Duration(path string) (float64, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, fmt.Errorf("音频文件不可用: %w", err)
	}

	switch ext(path) {
	case ".wav", ".mp3", ".flac":
		d, err := streamDuration(path)
		if err == nil {
			return d, nil
		}
		utils.Debug("直接解码失败，改用 ffprobe: %v", err)
	case ".m4a", ".mp4", ".mov":
		d, err := mp4Duration(path)
		if err == nil {
			return d, nil
		}
		utils.Debug("mp4 头部解析失败，改用 ffprobe: %v", err)
	}

	return ffprobeDuration(context.Background(), path)
}

func streamDuration(path string) (float64, error) {
	stream, err := openStream(path)
	if err != nil {
		return 0, err
	}
	defer stream.Close()
	rate := float64(stream.format.SampleRate)
	if rate <= 0 {
		return 0, fmt.Errorf("无效的采样率: %s", path)
	}
	return float64(stream.Len()) / rate, nil
}

func mp4Duration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	parsed, err := mp4.DecodeFile(f)
	if err != nil {
		return 0, fmt.Errorf("解析 mp4 容器失败: %w", err)
	}
	if parsed.Moov == nil || parsed.Moov.Mvhd == nil {
		return 0, fmt.Errorf("缺少 mvhd 信息: %s", path)
	}
	mvhd := parsed.Moov.Mvhd
	if mvhd.Timescale == 0 {
		return 0, fmt.Errorf("mvhd timescale 为 0: %s", path)
	}
	return float64(mvhd.Duration) / float64(mvhd.Timescale), nil
}

func ffprobeDuration(ctx context.Context, path string) (float64, error) {
	if !utils.CheckFFprobe() {
		return 0, fmt.Errorf("不支持的音频格式且未找到 ffprobe: %s", path)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx,
		"ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("获取音频时长失败: %w", err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("解析音频时长失败: %w", err)
	}
	return duration, nil
}
