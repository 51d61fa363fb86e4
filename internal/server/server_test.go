package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccp-p/meeting-transcriber/internal/pipeline"
	"github.com/ccp-p/meeting-transcriber/internal/store"
	"github.com/ccp-p/meeting-transcriber/pkg/models"
	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeRunner) Run(ctx context.Context, req pipeline.Request) (*models.RunResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.fail {
		return nil, &pipeline.Failure{
			RunID: "run-failed",
			Stage: pipeline.StageTranscribe,
			Err: utils.NewStageError(pipeline.StageTranscribe, utils.KindPipeline, "processing aborted",
				utils.NewStageError("load_model", utils.KindModelUnavailable, "ERROR: transcription model 'fast' failed to load", errors.New("no model"))),
			Trace: "stage: transcribe\nkind: ModelUnavailable\n",
		}
	}
	return &models.RunResult{
		RunID:       req.RunID,
		FileName:    req.FileName,
		Fingerprint: store.Fingerprint(req.Data),
		Model:       req.Model,
		Record: &models.TranscriptRecord{
			Segments: []models.Segment{
				{Speaker: "Speaker 1", Start: 0, End: 4, Text: "hello world"},
				{Speaker: "Speaker 2", Start: 4, End: 9, Text: "good morning, team"},
			},
			Summary: "greetings",
		},
		CreatedAt: time.Now(),
	}, nil
}

type fakeStats struct{}

func (fakeStats) GetStats() map[string]map[string]interface{} {
	return map[string]map[string]interface{}{"fast": {"count": 1}}
}

func newTestService(t *testing.T, runner Runner) (*Service, *store.Store) {
	t.Helper()
	config := models.NewDefaultConfig()
	config.MaxUploadMB = 1

	s, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	svc := NewService(Deps{
		Config:     config,
		Runner:     runner,
		Store:      s,
		Stats:      fakeStats{},
		ErrorStats: func() map[string]map[string]int { return map[string]map[string]int{"transcribe": {"boom": 2}} },
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	svc.StartWorker(ctx)
	return svc, s
}

func upload(t *testing.T, router http.Handler, fileName string, data []byte, model string) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	if model != "" {
		require.NoError(t, mw.WriteField("model", model))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/runs", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func createRun(t *testing.T, router http.Handler, fileName string, data []byte) CreateRunData {
	t.Helper()
	rec := upload(t, router, fileName, data, models.ModelFast)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp CreateRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 0, resp.Code)
	require.NotNil(t, resp.Data)
	return *resp.Data
}

func waitForStatus(t *testing.T, router http.Handler, taskID string, want models.RunStatus) TaskStatusData {
	t.Helper()
	var data TaskStatusData
	require.Eventually(t, func() bool {
		rec := get(router, "/api/runs/"+taskID)
		if rec.Code != http.StatusOK {
			return false
		}
		var resp TaskStatusResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Data == nil {
			return false
		}
		data = *resp.Data
		return data.Status == want
	}, 3*time.Second, 20*time.Millisecond)
	return data
}

func TestHealth(t *testing.T) {
	svc, _ := newTestService(t, &fakeRunner{})
	rec := get(svc.Router(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateRunAndExport(t *testing.T) {
	runner := &fakeRunner{}
	svc, st := newTestService(t, runner)
	router := svc.Router()

	created := createRun(t, router, "standup.wav", []byte("audio"))
	data := waitForStatus(t, router, created.TaskID, models.StatusSuccess)

	require.NotNil(t, data.Result)
	assert.Equal(t, "standup.wav", data.FileName)
	assert.Equal(t, models.ModelFast, data.Model)
	assert.Equal(t, 5, data.Metrics.WordCount)
	assert.Equal(t, 2, data.Metrics.SpeakerCount)

	// 完成的记录已保存
	saved, err := st.Get(context.Background(), data.Result.RunID)
	require.NoError(t, err)
	assert.Equal(t, "greetings", saved.Record.Summary)

	rec := get(router, "/api/runs/"+created.TaskID+"/export?format=csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `attachment; filename="meeting_transcript.csv"`)
	assert.Equal(t, 3, strings.Count(rec.Body.String(), "\n"))
	assert.Contains(t, rec.Body.String(), `"good morning, team"`)

	rec = get(router, "/api/runs/"+created.TaskID+"/export?format=md&inline=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "# Meeting Summary\n\ngreetings\n"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "inline")

	rec = get(router, "/api/runs/"+created.TaskID+"/export")
	require.Equal(t, http.StatusOK, rec.Code)
	var record models.TranscriptRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Len(t, record.Segments, 2)

	// 通过 run id 也能从记录库查到
	rec = get(router, "/api/runs/"+data.Result.RunID)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(router, "/api/runs/"+created.TaskID+"/export?format=pdf")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDuplicateUploadIsCached(t *testing.T) {
	runner := &fakeRunner{}
	svc, _ := newTestService(t, runner)
	router := svc.Router()

	first := createRun(t, router, "a.wav", []byte("same audio"))
	waitForStatus(t, router, first.TaskID, models.StatusSuccess)

	second := createRun(t, router, "b.wav", []byte("same audio"))
	assert.True(t, second.Cached)
	assert.Equal(t, first.TaskID, second.TaskID)
	data := waitForStatus(t, router, second.TaskID, models.StatusSuccess)
	assert.Equal(t, "a.wav", data.FileName)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, 1, runner.calls)
}

func TestFailedRunCarriesTrace(t *testing.T) {
	svc, _ := newTestService(t, &fakeRunner{fail: true})
	router := svc.Router()

	created := createRun(t, router, "a.wav", []byte("x"))
	data := waitForStatus(t, router, created.TaskID, models.StatusFailed)
	assert.Contains(t, data.Error, "ERROR")
	assert.Equal(t, pipeline.StageTranscribe, data.Stage)
	assert.Contains(t, data.Trace, "ModelUnavailable")
	assert.Nil(t, data.Result)

	rec := get(router, "/api/runs/"+created.TaskID+"/export?format=json")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateRunValidation(t *testing.T) {
	svc, _ := newTestService(t, &fakeRunner{})
	router := svc.Router()

	rec := upload(t, router, "notes.txt", []byte("x"), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = upload(t, router, "a.wav", []byte("x"), "vosk")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = upload(t, router, "a.wav", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = upload(t, router, "big.wav", bytes.Repeat([]byte("x"), 3<<19), "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader("not multipart"))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusNotFound, get(router, "/api/runs/missing").Code)
}

func TestListRuns(t *testing.T) {
	svc, _ := newTestService(t, &fakeRunner{})
	router := svc.Router()

	created := createRun(t, router, "a.wav", []byte("one"))
	waitForStatus(t, router, created.TaskID, models.StatusSuccess)

	rec := get(router, "/api/runs?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp RunListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 1)

	assert.Equal(t, http.StatusBadRequest, get(router, "/api/runs?limit=abc").Code)
}

func TestBenchmarks(t *testing.T) {
	svc, _ := newTestService(t, &fakeRunner{})
	rec := get(svc.Router(), "/api/benchmarks")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BenchmarkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data)
	assert.NotEmpty(t, resp.Data.Entries)
	for model, metrics := range resp.Data.Report {
		_, ok := metrics["WER"]
		assert.True(t, ok, model)
	}
}

func postJSON(router http.Handler, path string, payload interface{}) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestWER(t *testing.T) {
	svc, _ := newTestService(t, &fakeRunner{})
	router := svc.Router()

	rec := postJSON(router, "/api/wer", WERRequest{Reference: "hello world", Hypothesis: "hello word"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp WERResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 0.5, resp.Data.WER, 1e-9)

	// 使用会话转写作为假设文本
	created := createRun(t, router, "a.wav", []byte("x"))
	waitForStatus(t, router, created.TaskID, models.StatusSuccess)
	rec = postJSON(router, "/api/wer", WERRequest{Reference: "hello world good morning team", RunID: created.TaskID})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0.0, resp.Data.WER)

	assert.Equal(t, http.StatusBadRequest, postJSON(router, "/api/wer", WERRequest{}).Code)
	assert.Equal(t, http.StatusNotFound,
		postJSON(router, "/api/wer", WERRequest{Reference: "x", RunID: "missing"}).Code)
}

func TestStats(t *testing.T) {
	svc, _ := newTestService(t, &fakeRunner{})
	rec := get(svc.Router(), "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Data.Transcribers, "fast")
	assert.Equal(t, 2, resp.Data.Errors["transcribe"]["boom"])
	assert.Equal(t, 0, resp.Data.Tasks[models.StatusRunning])
}

func TestRunVisibleAfterRestart(t *testing.T) {
	config := models.NewDefaultConfig()
	s, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	start := func(runner Runner) http.Handler {
		svc := NewService(Deps{Config: config, Runner: runner, Store: s})
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		svc.StartWorker(ctx)
		return svc.Router()
	}

	first := start(&fakeRunner{})
	created := createRun(t, first, "standup.wav", []byte("audio"))
	data := waitForStatus(t, first, created.TaskID, models.StatusSuccess)
	assert.Equal(t, created.TaskID, data.Result.RunID)

	// 新的服务实例只剩记录库
	restarted := start(&fakeRunner{})
	data = waitForStatus(t, restarted, created.TaskID, models.StatusSuccess)
	assert.Equal(t, "standup.wav", data.FileName)

	rec := get(restarted, "/api/runs/"+created.TaskID+"/export?format=json")
	assert.Equal(t, http.StatusOK, rec.Code)

	runner := &fakeRunner{}
	again := start(runner)
	cached := createRun(t, again, "copy.wav", []byte("audio"))
	assert.True(t, cached.Cached)
	assert.Equal(t, created.TaskID, cached.TaskID)
	assert.Zero(t, runner.calls)
}
