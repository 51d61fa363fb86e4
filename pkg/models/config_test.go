package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig(t *testing.T) *Config {
	config := NewDefaultConfig()
	config.OutputFolder = filepath.Join(t.TempDir(), "output")
	return config
}

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, "./inbox", config.InboxFolder)
	assert.Equal(t, "./output", config.OutputFolder)
	assert.Equal(t, ModelAccurate, config.ModelChoice)
	assert.Equal(t, 30, config.SummaryMinWords)
	assert.Equal(t, 130, config.SummaryMaxWords)
	assert.Equal(t, 500, config.SummaryInputWords)
	assert.Equal(t, 50, config.ShortTextWords)
	assert.True(t, config.ExportJSON)
	assert.False(t, config.ExportSRT)
}

func TestConfigValidate(t *testing.T) {
	config := newTestConfig(t)
	assert.NoError(t, config.Validate())

	// 无效的模型选择
	config.ModelChoice = "vosk"
	err := config.Validate()
	require.Error(t, err)
	configErr, ok := err.(*ConfigValidationError)
	require.True(t, ok)
	assert.Equal(t, "ModelChoice", configErr.Field)

	// 摘要上下限颠倒
	config.ModelChoice = ModelFast
	config.SummaryMinWords = 200
	err = config.Validate()
	require.Error(t, err)
	configErr, ok = err.(*ConfigValidationError)
	require.True(t, ok)
	assert.Equal(t, "SummaryMinWords", configErr.Field)
}

func TestConfigSaveAndLoad(t *testing.T) {
	tempFile := filepath.Join(t.TempDir(), "config.json")

	originalConfig := newTestConfig(t)
	originalConfig.ModelChoice = ModelFast
	originalConfig.SummaryMaxWords = 100
	originalConfig.ExportSRT = true

	require.NoError(t, originalConfig.SaveToFile(tempFile))

	loadedConfig := NewDefaultConfig()
	require.NoError(t, loadedConfig.LoadFromFile(tempFile))

	assert.Equal(t, originalConfig.OutputFolder, loadedConfig.OutputFolder)
	assert.Equal(t, ModelFast, loadedConfig.ModelChoice)
	assert.Equal(t, 100, loadedConfig.SummaryMaxWords)
	assert.True(t, loadedConfig.ExportSRT)
}

func TestConfigLoadYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "model_choice: fast\noutput_folder: " + filepath.Join(dir, "out") + "\nsummary_model: gpt-4o\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("MEETING_SUMMARY_MODEL", "gpt-4.1-mini")
	t.Setenv("MEETING_LISTEN_ADDR", ":9090")

	config := NewDefaultConfig()
	require.NoError(t, config.LoadFromFile(path))

	assert.Equal(t, ModelFast, config.ModelChoice)
	assert.Equal(t, "gpt-4.1-mini", config.SummaryModel)
	assert.Equal(t, ":9090", config.ListenAddr)
}

func TestConfigUpdate(t *testing.T) {
	config := newTestConfig(t)

	updates := map[string]interface{}{
		"model_choice":      "fast",
		"summary_max_words": 120,
		"export_srt":        true,
	}

	require.NoError(t, config.Update(updates))
	assert.Equal(t, ModelFast, config.ModelChoice)
	assert.Equal(t, 120, config.SummaryMaxWords)
	assert.True(t, config.ExportSRT)

	// 无效更新应回滚
	err := config.Update(map[string]interface{}{"model_choice": "vosk"})
	assert.Error(t, err)
	assert.Equal(t, ModelFast, config.ModelChoice)
}

func TestConfigReset(t *testing.T) {
	config := NewDefaultConfig()
	config.ModelChoice = ModelFast
	config.ExportSRT = true

	config.Reset()

	assert.Equal(t, ModelAccurate, config.ModelChoice)
	assert.False(t, config.ExportSRT)
}

func TestEnabledFormats(t *testing.T) {
	config := NewDefaultConfig()
	assert.Equal(t, []string{"json", "markdown", "csv"}, config.EnabledFormats())

	config.ExportCSV = false
	config.ExportSRT = true
	assert.Equal(t, []string{"json", "markdown", "srt"}, config.EnabledFormats())
}

func TestRecordMetrics(t *testing.T) {
	record := &TranscriptRecord{
		Segments: []Segment{
			{Speaker: "Speaker 1", Start: 0, End: 4, Text: "hello world"},
			{Speaker: "Speaker 2", Start: 4, End: 9, Text: "good morning everyone"},
			{Speaker: "Speaker 1", Start: 9, End: 10, Text: "  "},
		},
		Summary: "greetings",
	}

	assert.Equal(t, 5, record.WordCount())
	assert.Equal(t, 2, record.SpeakerCount())
	assert.Equal(t, "hello world good morning everyone", record.FullText())

	clone := record.Clone()
	clone.Segments[0].Text = "changed"
	assert.Equal(t, "hello world", record.Segments[0].Text)
}

func TestMaskedJSON(t *testing.T) {
	config := NewDefaultConfig()
	config.OpenAIAPIKey = "sk-secret"

	data, err := config.MaskedJSON()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-secret")
	assert.Contains(t, string(data), `"openai_api_key": "******"`)
	assert.Equal(t, "sk-secret", config.OpenAIAPIKey)
}
