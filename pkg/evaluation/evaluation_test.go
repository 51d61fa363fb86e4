package evaluation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccp-p/meeting-transcriber/pkg/models"
)

func TestWERIdentical(t *testing.T) {
	assert.Equal(t, 0.0, WER("hello world", "hello world"))
	// 大小写和标点不影响
	assert.Equal(t, 0.0, WER("Hello, World!", "hello world"))
}

func TestWERCounts(t *testing.T) {
	m := Compare("the cat sat on the mat", "the cat sat on mat today")
	assert.Equal(t, 6, m.RefWords)
	assert.Equal(t, 6, m.HypWords)
	assert.InDelta(t, 2.0/6.0, m.WER, 1e-9)
	assert.Equal(t, 2, m.Substitutions+m.Deletions+m.Insertions)
	assert.Equal(t, 6, m.Hits+m.Substitutions+m.Deletions)

	m = Compare("a b c", "a c")
	assert.Equal(t, 1, m.Deletions)
	assert.Equal(t, 2, m.Hits)

	m = Compare("a c", "a b c")
	assert.Equal(t, 1, m.Insertions)
}

func TestWERCanExceedOne(t *testing.T) {
	assert.InDelta(t, 3.0, WER("hi", "one two three"), 1e-9)
}

func TestWEREmptyReference(t *testing.T) {
	assert.Equal(t, 0.0, WER("", "  "))
	assert.Equal(t, 1.0, WER("", "extra words"))
	assert.Equal(t, 1.0, WER("all gone", ""))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []string{"don't", "stop", "fi"}, Normalize("Don't - STOP... 'ﬁ'"))
	assert.Equal(t, []string{"café", "ok"}, Normalize("CAFÉ, ok?"))
	assert.Empty(t, Normalize(" ... "))
}

func TestBenchmarkReport(t *testing.T) {
	report := BenchmarkReport()
	require.NotEmpty(t, report)
	for model, metrics := range report {
		_, ok := metrics[MetricWER]
		assert.True(t, ok, "model %s lacks WER", model)
	}

	// 返回副本
	for model := range report {
		report[model][MetricWER] = 99
	}
	for _, metrics := range BenchmarkReport() {
		assert.NotEqual(t, 99.0, metrics[MetricWER])
	}
}

func TestEntriesSortedByWER(t *testing.T) {
	entries := Entries()
	for i := 1; i < len(entries); i++ {
		assert.LessOrEqual(t, entries[i-1].WER(), entries[i].WER())
	}
	assert.Equal(t, MetricWER, MetricNames(entries)[0])
}

func TestLoadEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.json")
	content := `{"benchmarks": [
		{"model": "whisper-1 (accurate)", "metrics": {"WER": 0.05}},
		{"model": "parakeet", "metrics": {"WER": 0.04, "LatencySec": 3}}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	entries, err := LoadEntries(path)
	require.NoError(t, err)
	assert.Equal(t, "parakeet", entries[0].Model)
	assert.Equal(t, 3.0, entries[0].Metrics["LatencySec"])

	report := ReportFromEntries(entries)
	assert.Equal(t, 0.05, report["whisper-1 (accurate)"][MetricWER])
	assert.Len(t, report, len(defaultBenchmarks)+1)
}

func TestLoadEntriesErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadEntries(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"benchmarks":[{"metrics":{"WER":1}}]}`), 0644))
	_, err = LoadEntries(bad)
	assert.Error(t, err)

	unknown := filepath.Join(dir, "unknown.json")
	require.NoError(t, os.WriteFile(unknown, []byte(`{"models":[]}`), 0644))
	_, err = LoadEntries(unknown)
	assert.Error(t, err)

	entries, err := LoadEntries("")
	require.NoError(t, err)
	assert.Len(t, entries, len(defaultBenchmarks))
}

func TestSaveEntriesRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "bench.json")
	custom := []models.BenchmarkEntry{
		{Model: "local-large", Metrics: map[string]float64{MetricWER: 0.06, MetricRTF: 0.5}},
	}
	require.NoError(t, SaveEntries(path, custom))

	entries, err := LoadEntries(path)
	require.NoError(t, err)
	assert.Len(t, entries, len(defaultBenchmarks)+1)
	assert.Equal(t, "local-large", entries[0].Model)
	assert.Equal(t, 0.5, entries[0].Metrics[MetricRTF])
}
