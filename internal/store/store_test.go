package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccp-p/meeting-transcriber/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "meetings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleResult(id, fingerprint string, created time.Time) *models.RunResult {
	return &models.RunResult{
		RunID:       id,
		FileName:    "standup.wav",
		Fingerprint: fingerprint,
		Model:       models.ModelAccurate,
		Record: &models.TranscriptRecord{
			Segments: []models.Segment{{Speaker: "Speaker 1", Start: 0, End: 10, Text: "hello world"}},
			Summary:  "hello world",
		},
		Notes:         []string{"speaker diarization disabled"},
		DurationSec:   10,
		ProcessTimeMs: 1234,
		CreatedAt:     created,
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("audio-a"))
	assert.Equal(t, a, Fingerprint([]byte("audio-a")))
	assert.NotEqual(t, a, Fingerprint([]byte("audio-b")))
	assert.NotEmpty(t, Fingerprint(nil))
}

func TestSaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, sampleResult("run-1", "abc", created)))

	got, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "standup.wav", got.FileName)
	assert.Equal(t, "abc", got.Fingerprint)
	assert.Equal(t, models.ModelAccurate, got.Model)
	assert.Equal(t, []string{"speaker diarization disabled"}, got.Notes)
	assert.Equal(t, int64(1234), got.ProcessTimeMs)
	assert.True(t, created.Equal(got.CreatedAt))
	require.Len(t, got.Record.Segments, 1)
	assert.Equal(t, "hello world", got.Record.Segments[0].Text)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveRejectsIncomplete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.Save(ctx, nil))
	assert.Error(t, s.Save(ctx, &models.RunResult{RunID: "x"}))

	result := sampleResult("", "abc", time.Now())
	assert.Error(t, s.Save(ctx, result))
}

func TestFindByFingerprint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, sampleResult("old", "same", base)))
	require.NoError(t, s.Save(ctx, sampleResult("new", "same", base.Add(time.Hour))))

	fast := sampleResult("fast", "same", base.Add(2*time.Hour))
	fast.Model = models.ModelFast
	require.NoError(t, s.Save(ctx, fast))

	got, err := s.FindByFingerprint(ctx, "same", models.ModelAccurate)
	require.NoError(t, err)
	assert.Equal(t, "new", got.RunID)

	got, err = s.FindByFingerprint(ctx, "same", models.ModelFast)
	require.NoError(t, err)
	assert.Equal(t, "fast", got.RunID)

	_, err = s.FindByFingerprint(ctx, "other", models.ModelFast)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		result := sampleResult(id, id, base.Add(time.Duration(i)*time.Minute))
		result.Notes = nil
		require.NoError(t, s.Save(ctx, result))
	}

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].RunID)
	assert.Nil(t, all[0].Notes)

	limited, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestListOrdersWithinSecond(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, sampleResult("whole", "fp1", base)))
	require.NoError(t, s.Save(ctx, sampleResult("later", "fp2", base.Add(100*time.Millisecond))))

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "later", all[0].RunID)
	assert.Equal(t, "whole", all[1].RunID)
	assert.True(t, all[1].CreatedAt.Equal(base))
}
