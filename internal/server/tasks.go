package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ccp-p/meeting-transcriber/internal/pipeline"
	"github.com/ccp-p/meeting-transcriber/pkg/models"
	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

type job struct {
	taskID string
	req    pipeline.Request
}

// TaskManager 保存任务状态，所有运行由单个工作协程串行执行
type TaskManager struct {
	mu     sync.RWMutex
	tasks  map[string]*Task
	queue  chan job
	runner Runner
	store  RecordStore
}

// NewTaskManager 创建任务管理器
func NewTaskManager(runner Runner, recordStore RecordStore, queueSize int) *TaskManager {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &TaskManager{
		tasks:  make(map[string]*Task),
		queue:  make(chan job, queueSize),
		runner: runner,
		store:  recordStore,
	}
}

// ErrQueueFull 等待队列已满
var ErrQueueFull = errors.New("task queue is full")

// Submit 创建任务并排队
func (m *TaskManager) Submit(req pipeline.Request) (string, error) {
	now := time.Now()
	task := &Task{
		ID:        uuid.New().String(),
		Status:    models.StatusPending,
		FileName:  req.FileName,
		Model:     req.Model,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.tasks[task.ID] = task
	m.mu.Unlock()

	// 任务 ID 即运行 ID，重启后仍可从记录库查到
	req.RunID = task.ID
	select {
	case m.queue <- job{taskID: task.ID, req: req}:
	default:
		m.mu.Lock()
		delete(m.tasks, task.ID)
		m.mu.Unlock()
		return "", ErrQueueFull
	}

	utils.WithField("task_id", task.ID).Infof("创建任务: %s (%s)", req.FileName, req.Model)
	return task.ID, nil
}

// Complete 直接以已有结果完成任务（内容已处理过），返回原运行 ID
func (m *TaskManager) Complete(result *models.RunResult) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[result.RunID]; ok {
		return result.RunID
	}
	now := time.Now()
	m.tasks[result.RunID] = &Task{
		ID:        result.RunID,
		Status:    models.StatusSuccess,
		FileName:  result.FileName,
		Model:     result.Model,
		Result:    result,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return result.RunID
}

// Get 返回任务快照
func (m *TaskManager) Get(taskID string) (Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// Counts 各状态的任务数
func (m *TaskManager) Counts() map[models.RunStatus]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := map[models.RunStatus]int{
		models.StatusPending: 0,
		models.StatusRunning: 0,
		models.StatusSuccess: 0,
		models.StatusFailed:  0,
	}
	for _, task := range m.tasks {
		counts[task.Status]++
	}
	return counts
}

// Run 工作协程，ctx 取消后返回
func (m *TaskManager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-m.queue:
			m.process(ctx, j)
		}
	}
}

func (m *TaskManager) process(ctx context.Context, j job) {
	m.update(j.taskID, func(t *Task) { t.Status = models.StatusRunning })
	log := utils.WithField("task_id", j.taskID)

	result, err := m.runner.Run(ctx, j.req)
	if err != nil {
		log.Errorf("任务失败: %v", err)
		m.update(j.taskID, func(t *Task) {
			t.Status = models.StatusFailed
			t.Error = err.Error()
			var failure *pipeline.Failure
			if errors.As(err, &failure) {
				t.Stage = failure.Stage
				t.Trace = failure.Trace
			}
		})
		return
	}

	if m.store != nil {
		if err := m.store.Save(ctx, result); err != nil {
			log.Warnf("保存记录失败: %v", err)
		}
	}

	m.update(j.taskID, func(t *Task) {
		t.Status = models.StatusSuccess
		t.Result = result
	})
	log.Info("任务完成")
}

func (m *TaskManager) update(taskID string, fn func(*Task)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task, ok := m.tasks[taskID]; ok {
		fn(task)
		task.UpdatedAt = time.Now()
	}
}
