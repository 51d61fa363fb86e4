package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/wav"

	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

// DefaultSampleRate 语音模型使用的采样率
const DefaultSampleRate = 16000

const resampleQuality = 4

type stream struct {
	beep.StreamSeekCloser
	format beep.Format
	file   *os.File
	gain   float64
}

// 解码器的 Close 可能已关闭底层文件，这里忽略重复关闭的错误
func (s *stream) Close() error {
	err := s.StreamSeekCloser.Close()
	s.file.Close()
	return err
}

func openStream(path string) (*stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch ext(path) {
	case ".wav":
		s, format, err = wav.Decode(f)
	case ".mp3":
		s, format, err = mp3.Decode(f)
	case ".flac":
		s, format, err = flac.Decode(f)
	default:
		err = fmt.Errorf("不支持直接解码的格式: %s", ext(path))
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("解码音频失败 %s: %w", filepath.Base(path), err)
	}
	return &stream{StreamSeekCloser: s, format: format, file: f, gain: pcmGain(ext(path), format)}, nil
}

// beep 的 wav 解码器把 16/24 位整数除以 2^n-1 而不是 2^(n-1)，幅度只有一半，这里补回
func pcmGain(extension string, format beep.Format) float64 {
	if extension != ".wav" {
		return 1
	}
	switch format.Precision {
	case 2, 3:
		bits := uint(format.Precision * 8)
		return float64(uint64(1)<<bits-1) / float64(uint64(1)<<(bits-1))
	}
	return 1
}

// DecodePCM 解码为指定采样率的单声道 float32 采样
// 非原生格式先用 ffmpeg 转成临时 WAV
func DecodePCM(ctx context.Context, path string, sampleRate int) ([]float32, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	var s *stream
	if IsNativelyDecodable(path) {
		native, err := openStream(path)
		if err != nil {
			// 例如 32 位浮点 WAV，交给 ffmpeg 转换
			utils.Debug("直接解码失败，改用 ffmpeg: %v", err)
		} else {
			s = native
		}
	}

	if s == nil {
		tmp, err := os.CreateTemp("", "meeting-pcm-*.wav")
		if err != nil {
			return nil, fmt.Errorf("创建临时文件失败: %w", err)
		}
		tmpPath := tmp.Name()
		tmp.Close()
		defer os.Remove(tmpPath)

		if err := ConvertToWAV(ctx, path, tmpPath, sampleRate); err != nil {
			return nil, err
		}
		if s, err = openStream(tmpPath); err != nil {
			return nil, err
		}
	}
	defer s.Close()

	var source beep.Streamer = s
	if int(s.format.SampleRate) != sampleRate {
		source = beep.Resample(resampleQuality, s.format.SampleRate, beep.SampleRate(sampleRate), s)
	}

	estimate := s.Len()
	if s.format.SampleRate > 0 {
		estimate = int(float64(s.Len()) * float64(sampleRate) / float64(s.format.SampleRate))
	}
	out := make([]float32, 0, estimate+1)

	buf := make([][2]float64, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, ok := source.Stream(buf)
		for i := 0; i < n; i++ {
			// 双声道取平均
			out = append(out, float32((buf[i][0]+buf[i][1])/2*s.gain))
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("读取音频流失败: %w", err)
	}

	return out, nil
}
