package diarize

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccp-p/meeting-transcriber/pkg/audio"
	"github.com/ccp-p/meeting-transcriber/pkg/models"
	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

func writeSilence(t *testing.T, seconds float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meeting.wav")
	samples := make([]float32, int(seconds*audio.DefaultSampleRate))
	require.NoError(t, audio.WriteWAV(path, samples, audio.DefaultSampleRate))
	return path
}

// 模拟 python 解释器：--probe 返回 ok，否则返回固定的说话人轮次
func fakePython(t *testing.T, probeOK bool, turnsJSON string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake interpreter needs a POSIX shell")
	}
	probe := `{"ok":true}`
	if !probeOK {
		probe = `{"ok":false,"error":"load: no module named pyannote"}`
	}
	script := "#!/bin/sh\n" +
		"for a in \"$@\"; do if [ \"$a\" = \"--probe\" ]; then echo '" + probe + "'; exit 0; fi; done\n" +
		"echo '" + turnsJSON + "'\n"
	path := filepath.Join(t.TempDir(), "python")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestSingleSpeakerTenSeconds(t *testing.T) {
	path := writeSilence(t, 10)
	d := New(context.Background(), Options{Enabled: false})

	assert.Equal(t, ModeSingleSpeaker, d.Mode())
	degraded, reason := d.Degraded()
	assert.True(t, degraded)
	assert.NotEmpty(t, reason)

	segments, err := d.Segments(context.Background(), path, "hello world this is a test")
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, models.Segment{Speaker: "Speaker 1", Start: 0, End: 10, Text: "hello world this is a test"}, segments[0])
}

func TestSingleSpeakerFloorsDuration(t *testing.T) {
	path := writeSilence(t, 3.7)
	d := New(context.Background(), Options{Enabled: false})

	segments, err := d.Segments(context.Background(), path, "hi")
	require.NoError(t, err)
	assert.Equal(t, 3.0, segments[0].End)
}

func TestSegmentsFailureReturnsFallback(t *testing.T) {
	d := New(context.Background(), Options{Enabled: false})

	segments, err := d.Segments(context.Background(), filepath.Join(t.TempDir(), "gone.wav"), "text")
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindRuntime))

	require.Len(t, segments, 1)
	assert.Equal(t, "Speaker 1", segments[0].Speaker)
	assert.Equal(t, 0.0, segments[0].Start)
	assert.Equal(t, 0.0, segments[0].End)
	assert.True(t, strings.HasPrefix(segments[0].Text, ErrorPrefix))
}

func TestProbeMissingPythonDegrades(t *testing.T) {
	d := New(context.Background(), Options{Enabled: true, Python: "definitely-not-python-xyz", Model: "m"})
	assert.Equal(t, ModeSingleSpeaker, d.Mode())
	_, reason := d.Degraded()
	assert.Contains(t, reason, "pyannote unavailable")
}

func TestProbeLoadFailureDegrades(t *testing.T) {
	python := fakePython(t, false, `{}`)
	d := New(context.Background(), Options{Enabled: true, Python: python, Model: "m", ScriptDir: t.TempDir()})
	assert.Equal(t, ModeSingleSpeaker, d.Mode())
	_, reason := d.Degraded()
	assert.Contains(t, reason, "no module named pyannote")
}

func TestPyannoteSegments(t *testing.T) {
	turns := `{"ok":true,"turns":[` +
		`{"speaker":"SPEAKER_01","start":0.2,"end":3.5},` +
		`{"speaker":"SPEAKER_01","start":3.6,"end":4.0},` +
		`{"speaker":"SPEAKER_00","start":4.2,"end":8.0},` +
		`{"speaker":"SPEAKER_01","start":8.1,"end":12.0}]}`
	python := fakePython(t, true, turns)
	d := New(context.Background(), Options{Enabled: true, Python: python, Model: "m", ScriptDir: t.TempDir()})
	require.Equal(t, ModePyannote, d.Mode())
	degraded, _ := d.Degraded()
	assert.False(t, degraded)

	path := writeSilence(t, 10)
	segments, err := d.Segments(context.Background(), path, "full transcript")
	require.NoError(t, err)
	require.Len(t, segments, 3)

	assert.Equal(t, models.Segment{Speaker: "Speaker 1", Start: 0.2, End: 4.0, Text: "full transcript"}, segments[0])
	assert.Equal(t, "Speaker 2", segments[1].Speaker)
	assert.Equal(t, "Speaker 1", segments[2].Speaker)
	// 结束时间截断到音频时长
	assert.Equal(t, 10.0, segments[2].End)
}

func TestPyannoteRuntimeError(t *testing.T) {
	python := fakePython(t, true, `{"ok":false,"error":"CUDA out of memory"}`)
	d := New(context.Background(), Options{Enabled: true, Python: python, Model: "m", ScriptDir: t.TempDir()})
	require.Equal(t, ModePyannote, d.Mode())

	segments, err := d.Segments(context.Background(), writeSilence(t, 2), "text")
	require.Error(t, err)
	assert.Equal(t, ErrorPrefix+"CUDA out of memory", segments[0].Text)
}

func TestAttributeText(t *testing.T) {
	turns := []models.Segment{
		{Speaker: "Speaker 1", Start: 0, End: 4},
		{Speaker: "Speaker 2", Start: 4, End: 8},
		{Speaker: "Speaker 1", Start: 8, End: 9},
	}
	timed := []models.Segment{
		{Start: 0, End: 2, Text: "hello"},
		{Start: 2, End: 5, Text: "world"},
		{Start: 5, End: 7.5, Text: "good morning"},
		{Start: 20, End: 21, Text: "late"},
	}

	out := AttributeText(turns, timed)
	require.Len(t, out, 3)
	assert.Equal(t, "hello world", out[0].Text)
	assert.Equal(t, "good morning", out[1].Text)
	// 没有重叠时归入中点最近的片段
	assert.Equal(t, "late", out[2].Text)
}

func TestAttributeTextDropsSilentTurns(t *testing.T) {
	turns := []models.Segment{
		{Speaker: "Speaker 1", Start: 0, End: 4},
		{Speaker: "Speaker 2", Start: 4, End: 8},
	}
	out := AttributeText(turns, []models.Segment{{Start: 5, End: 6, Text: "only me"}})
	require.Len(t, out, 1)
	assert.Equal(t, "Speaker 2", out[0].Speaker)

	assert.Equal(t, turns, AttributeText(turns, nil))
}
