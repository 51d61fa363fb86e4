package diarize

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ccp-p/meeting-transcriber/pkg/audio"
	"github.com/ccp-p/meeting-transcriber/pkg/models"
	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

//go:embed pyannote_helper.py
var helperScript []byte

// StageDiarize 阶段名
const StageDiarize = "diarize"

// ErrorPrefix 回退片段文本前缀
const ErrorPrefix = "Diarization error: "

const probeTimeout = 2 * time.Minute

// Mode 说话人分离的工作方式
type Mode string

const (
	ModePyannote      Mode = "pyannote"
	ModeSingleSpeaker Mode = "single_speaker"
)

// Options 分离器参数
type Options struct {
	Enabled   bool   // false 时直接使用单说话人模式
	Python    string // python 解释器
	Model     string // pyannote 预训练管线名
	HFToken   string // HuggingFace token
	ScriptDir string // 辅助脚本释放目录，空为系统临时目录
}

// Diarizer 说话人分离适配器
type Diarizer struct {
	opts       Options
	scriptPath string
	mode       Mode
	reason     string // 降级原因
}

type helperTurn struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

type helperResponse struct {
	OK    bool         `json:"ok"`
	Error string       `json:"error"`
	Turns []helperTurn `json:"turns"`
}

// OptionsFromConfig 从配置生成参数
func OptionsFromConfig(config *models.Config) Options {
	return Options{
		Enabled: config.EnableDiarization,
		Python:  config.DiarizationPython,
		Model:   config.DiarizationModel,
		HFToken: config.HFToken,
	}
}

// New 创建分离器并探测 pyannote 管线，不可用时降级为单说话人模式
func New(ctx context.Context, opts Options) *Diarizer {
	d := &Diarizer{opts: opts, mode: ModeSingleSpeaker}

	if !opts.Enabled {
		d.reason = "speaker diarization disabled"
		utils.Info("说话人分离已关闭，使用单说话人模式")
		return d
	}

	if err := d.probe(ctx); err != nil {
		d.reason = "pyannote unavailable: " + err.Error()
		utils.Warn("pyannote 不可用，使用单说话人模式: %v", err)
		return d
	}

	d.mode = ModePyannote
	utils.WithField("model", opts.Model).Info("pyannote 管线已加载")
	return d
}

func (d *Diarizer) probe(ctx context.Context) error {
	if d.opts.Python == "" {
		d.opts.Python = "python3"
	}
	if _, err := exec.LookPath(d.opts.Python); err != nil {
		return fmt.Errorf("python 不可用: %w", err)
	}

	dir := d.opts.ScriptDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "meeting-transcriber")
	}
	if err := utils.EnsureDirExists(dir); err != nil {
		return err
	}
	d.scriptPath = filepath.Join(dir, "pyannote_helper.py")
	if err := ensureScript(d.scriptPath); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	_, err := d.runHelper(ctx, "--probe")
	return err
}

func ensureScript(path string) error {
	if current, err := os.ReadFile(path); err == nil && bytes.Equal(current, helperScript) {
		return nil
	}
	if err := os.WriteFile(path, helperScript, 0o644); err != nil {
		return fmt.Errorf("写入 pyannote 辅助脚本失败: %w", err)
	}
	return nil
}

func (d *Diarizer) runHelper(ctx context.Context, args ...string) (*helperResponse, error) {
	cmdArgs := append([]string{d.scriptPath, "--model", d.opts.Model}, args...)
	cmd := exec.CommandContext(ctx, d.opts.Python, cmdArgs...)
	env := append([]string{}, os.Environ()...)
	env = append(env, "PYTHONIOENCODING=utf-8")
	if d.opts.HFToken != "" {
		env = append(env, "HF_TOKEN="+d.opts.HFToken)
	}
	cmd.Env = env

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("pyannote 辅助进程失败: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var resp helperResponse
	if err := json.Unmarshal(bytes.TrimSpace(output), &resp); err != nil {
		return nil, fmt.Errorf("解析 pyannote 输出失败: %w", err)
	}
	if !resp.OK {
		return nil, errors.New(resp.Error)
	}
	return &resp, nil
}

// Mode 当前工作方式
func (d *Diarizer) Mode() Mode {
	return d.mode
}

// Degraded 是否降级，以及降级原因
func (d *Diarizer) Degraded() (bool, string) {
	return d.mode != ModePyannote, d.reason
}

// Segments 返回按时间排序的说话人片段，转写文本写入第一个片段
// 失败时同时返回回退片段和 Runtime 错误
func (d *Diarizer) Segments(ctx context.Context, audioPath, transcript string) ([]models.Segment, error) {
	segments, err := d.segments(ctx, audioPath, transcript)
	if err != nil {
		utils.WithField("stage", StageDiarize).Errorf("说话人分离失败: %v", err)
		return []models.Segment{FallbackSegment(err)},
			utils.NewStageError(StageDiarize, utils.KindRuntime, "speaker diarization failed", err)
	}
	return segments, nil
}

func (d *Diarizer) segments(ctx context.Context, audioPath, transcript string) ([]models.Segment, error) {
	duration, err := audio.Duration(audioPath)
	if err != nil {
		return nil, err
	}
	utils.Debug("音频时长: %.2f 秒", duration)

	if d.mode != ModePyannote {
		return []models.Segment{SingleSpeaker(duration, transcript)}, nil
	}

	input, cleanup, err := prepareInput(ctx, audioPath)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	resp, err := d.runHelper(ctx, "--audio", input)
	if err != nil {
		return nil, err
	}

	segments := turnsToSegments(resp.Turns, duration)
	if len(segments) == 0 {
		return []models.Segment{SingleSpeaker(duration, transcript)}, nil
	}
	segments[0].Text = transcript
	return segments, nil
}

// pyannote 只可靠支持 wav/mp3/flac，其他容器先转换
func prepareInput(ctx context.Context, audioPath string) (string, func(), error) {
	if audio.IsNativelyDecodable(audioPath) {
		return audioPath, func() {}, nil
	}

	samples, err := audio.DecodePCM(ctx, audioPath, audio.DefaultSampleRate)
	if err != nil {
		return "", func() {}, err
	}
	tmp, err := os.CreateTemp("", "meeting-diarize-*.wav")
	if err != nil {
		return "", func() {}, err
	}
	path := tmp.Name()
	tmp.Close()
	cleanup := func() { os.Remove(path) }

	if err := audio.WriteWAV(path, samples, audio.DefaultSampleRate); err != nil {
		cleanup()
		return "", func() {}, err
	}
	return path, cleanup, nil
}

// SingleSpeaker 单说话人片段，结束时间取整秒
func SingleSpeaker(duration float64, text string) models.Segment {
	end := math.Floor(duration)
	if end < 0 {
		end = 0
	}
	return models.Segment{Speaker: models.DefaultSpeaker, Start: 0, End: end, Text: text}
}

// FallbackSegment 出错时返回的零长度片段
func FallbackSegment(err error) models.Segment {
	return models.Segment{Speaker: models.DefaultSpeaker, Start: 0, End: 0, Text: ErrorPrefix + err.Error()}
}

// 将 pyannote 标签映射为 "Speaker N"（按首次出现顺序），合并相邻的同一说话人
func turnsToSegments(turns []helperTurn, duration float64) []models.Segment {
	labels := make(map[string]string)
	var segments []models.Segment

	for _, turn := range turns {
		start := math.Max(0, turn.Start)
		end := turn.End
		if duration > 0 {
			end = math.Min(end, duration)
		}
		if end < start {
			continue
		}

		name, ok := labels[turn.Speaker]
		if !ok {
			name = fmt.Sprintf("Speaker %d", len(labels)+1)
			labels[turn.Speaker] = name
		}

		if n := len(segments); n > 0 && segments[n-1].Speaker == name {
			segments[n-1].End = math.Max(segments[n-1].End, end)
			continue
		}
		segments = append(segments, models.Segment{Speaker: name, Start: start, End: end})
	}
	return segments
}
