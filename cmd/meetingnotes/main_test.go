package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccp-p/meeting-transcriber/internal/store"
	"github.com/ccp-p/meeting-transcriber/pkg/audio"
	"github.com/ccp-p/meeting-transcriber/pkg/evaluation"
	"github.com/ccp-p/meeting-transcriber/pkg/models"
	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	dbPath     string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	t.Setenv("MEETING_OPENAI_API_KEY", "")
	t.Setenv("MEETING_HF_TOKEN", "")

	base := t.TempDir()
	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "config.yaml"),
		dbPath:     filepath.Join(base, "data", "meetings.db"),
	}

	content := strings.Join([]string{
		"output_folder: " + filepath.Join(base, "output"),
		"inbox_folder: " + filepath.Join(base, "inbox"),
		"database_path: " + env.dbPath,
		"temp_dir: " + filepath.Join(base, "tmp"),
		"model_choice: fast",
		"enable_diarization: false",
		"log_level: warn",
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(env.configPath, []byte(content), 0644))
	return env
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.configPath, "--log-file", filepath.Join(e.baseDir, "cli.log")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *cliTestEnv) seedRun(t *testing.T) *models.RunResult {
	t.Helper()
	s, err := store.Open(e.dbPath)
	require.NoError(t, err)
	defer s.Close()

	result := &models.RunResult{
		RunID:       "run-1",
		FileName:    "standup.wav",
		Fingerprint: store.Fingerprint([]byte("audio")),
		Model:       models.ModelFast,
		Record: &models.TranscriptRecord{
			Segments: []models.Segment{
				{Speaker: models.DefaultSpeaker, Start: 0, End: 10, Text: "hello world good morning"},
			},
			Summary: "hello world good morning",
		},
		DurationSec: 10,
		CreatedAt:   time.Now().Add(-2 * time.Hour),
	}
	require.NoError(t, s.Save(context.Background(), result))
	return result
}

func TestBenchmarksCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "benchmarks")
	require.NoError(t, err)
	assert.Contains(t, out, "Model")
	assert.Contains(t, out, "WER")
	for _, entry := range evaluation.Entries() {
		assert.Contains(t, out, entry.Model)
	}

	out, err = env.run(t, "benchmarks", "--json")
	require.NoError(t, err)
	var report map[string]map[string]float64
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, evaluation.BenchmarkReport(), report)
}

func TestBenchmarksSaveAndReload(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(env.baseDir, "bench.json")

	_, err := env.run(t, "benchmarks", "--save", path)
	require.NoError(t, err)

	entries, err := evaluation.LoadEntries(path)
	require.NoError(t, err)
	assert.Equal(t, evaluation.Entries(), entries)
}

func TestBenchmarkTableMissingMetric(t *testing.T) {
	table := benchmarkTable([]models.BenchmarkEntry{
		{Model: "a", Metrics: map[string]float64{"WER": 0.1, "RTF": 0.2}},
		{Model: "b", Metrics: map[string]float64{"WER": 0.3}},
	})
	lines := strings.Split(table, "\n")
	var rowB string
	for _, line := range lines {
		if strings.Contains(line, " b ") {
			rowB = line
		}
	}
	require.NotEmpty(t, rowB)
	assert.Contains(t, rowB, "-")
}

func TestWERCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "wer", "the cat sat", "the cat sit", "--json")
	require.NoError(t, err)
	var m evaluation.Measures
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.InDelta(t, 1.0/3, m.WER, 1e-9)
	assert.Equal(t, 1, m.Substitutions)

	// 参考文本来自文件
	refPath := filepath.Join(env.baseDir, "ref.txt")
	require.NoError(t, os.WriteFile(refPath, []byte("hello world good morning\n"), 0644))
	env.seedRun(t)

	out, err = env.run(t, "wer", refPath, "--run", "run-1")
	require.NoError(t, err)
	assert.Contains(t, out, "0.0000")

	_, err = env.run(t, "wer", "only reference")
	assert.Error(t, err)

	_, err = env.run(t, "wer", "x", "--run", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestRunsCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "记录库为空")

	env.seedRun(t)
	out, err = env.run(t, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "standup.wav")
	assert.Contains(t, out, "2 hours ago")
}

func TestConfigShowMasksSecrets(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv("MEETING_OPENAI_API_KEY", "sk-test-secret")

	out, err := env.run(t, "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-test-secret")
	assert.Contains(t, out, `"model_choice": "fast"`)
}

func TestConfigInitWritesLoadableFile(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(env.baseDir, "written", "config.json")

	_, err := env.run(t, "config", "init", path)
	require.NoError(t, err)

	loaded := models.NewDefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, models.ModelFast, loaded.ModelChoice)

	_, err = env.run(t, "config", "init", path)
	assert.Error(t, err)
	_, err = env.run(t, "config", "init", path, "--force")
	assert.NoError(t, err)
}

func TestProcessRejectsBadInput(t *testing.T) {
	env := setupCLITestEnv(t)

	_, err := env.run(t, "process", filepath.Join(env.baseDir, "missing.wav"))
	assert.Error(t, err)

	notes := filepath.Join(env.baseDir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("x"), 0644))
	_, err = env.run(t, "process", notes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "不支持")

	wav := filepath.Join(env.baseDir, "meeting.wav")
	require.NoError(t, audio.WriteWAV(wav, make([]float32, audio.DefaultSampleRate), audio.DefaultSampleRate))
	_, err = env.run(t, "process", wav, "--formats", "pdf")
	assert.Error(t, err)
}

func TestProcessReportsFailedStage(t *testing.T) {
	env := setupCLITestEnv(t)

	// 未配置 API Key，accurate 模型无法加载
	wav := filepath.Join(env.baseDir, "meeting.wav")
	require.NoError(t, audio.WriteWAV(wav, make([]float32, audio.DefaultSampleRate), audio.DefaultSampleRate))

	out, err := env.run(t, "process", wav, "--model", models.ModelAccurate, "--trace")
	require.Error(t, err)
	assert.Contains(t, out, "处理在阶段 transcribe 中止")
	assert.Contains(t, out, "ModelUnavailable")

	_, statErr := os.Stat(filepath.Join(env.baseDir, "output", "meeting"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDisplayAddr(t *testing.T) {
	assert.Equal(t, "localhost:8080", displayAddr(":8080"))
	assert.Equal(t, "0.0.0.0:80", displayAddr("0.0.0.0:80"))
}

func TestPrintNotesKeepsPercent(t *testing.T) {
	var logs bytes.Buffer
	previous, level := utils.Log.Out, utils.Log.GetLevel()
	utils.Log.SetOutput(&logs)
	utils.Log.SetLevel(logrus.InfoLevel)
	t.Cleanup(func() {
		utils.Log.SetOutput(previous)
		utils.Log.SetLevel(level)
	})

	var out bytes.Buffer
	printNotes(&out, []string{"pyannote unavailable: 100% %d done"})

	assert.Contains(t, out.String(), "注意: pyannote unavailable: 100% %d done")
	assert.Contains(t, logs.String(), "100% %d done")
	assert.NotContains(t, logs.String(), "%!")
}
