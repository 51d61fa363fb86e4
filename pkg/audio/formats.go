package audio

import (
	"path/filepath"
	"strings"
)

// 支持的录音格式
var (
	AudioExtensions = []string{".wav", ".mp3", ".m4a", ".flac", ".ogg", ".aac", ".webm"}
	VideoExtensions = []string{".mp4", ".mov", ".mkv", ".avi"}
)

// 可由 beep 直接解码的格式，其余格式需要先经 ffmpeg 转换
var nativeDecoders = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".flac": true,
}

func ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

// IsAudioFile 判断是否为支持的音频文件
func IsAudioFile(path string) bool {
	return contains(AudioExtensions, ext(path))
}

// IsVideoFile 判断是否为支持的视频文件（会议录屏）
func IsVideoFile(path string) bool {
	return contains(VideoExtensions, ext(path))
}

// IsSupported 判断文件能否进入转写流程
func IsSupported(path string) bool {
	return IsAudioFile(path) || IsVideoFile(path)
}

// IsNativelyDecodable 判断能否不借助 ffmpeg 解码
func IsNativelyDecodable(path string) bool {
	return nativeDecoders[ext(path)]
}
