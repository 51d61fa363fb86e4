package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/ccp-p/meeting-transcriber/internal/adapters"
	"github.com/ccp-p/meeting-transcriber/pkg/scanner"
	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

// LockFileName 收件目录中的锁文件，防止两个监听进程处理同一目录
const LockFileName = ".meetingnotes.lock"

// ErrLocked 收件目录已被其他进程监听
var ErrLocked = errors.New("inbox is already being watched by another process")

// Stats 监听模式统计
type Stats struct {
	Queued    int `json:"queued"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Options 监听参数
type Options struct {
	Inbox      string
	ArchiveDir string // 处理成功的录音移入该目录，空表示保留在原处
	Debounce   time.Duration
}

// InboxWatcher 监听收件目录，录音写入完成后逐个送入流水线
type InboxWatcher struct {
	opts      Options
	processor adapters.MediaProcessor
	monitor   *FolderMonitor
	archiver  *FileMovementHandler
	lock      *flock.Flock

	queue   chan string
	mu      sync.Mutex
	pending map[string]bool
	stats   Stats

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewInboxWatcher 创建监听器
func NewInboxWatcher(opts Options, processor adapters.MediaProcessor) *InboxWatcher {
	if opts.Debounce <= 0 {
		opts.Debounce = 3 * time.Second
	}
	w := &InboxWatcher{
		opts:      opts,
		processor: processor,
		lock:      flock.New(filepath.Join(opts.Inbox, LockFileName)),
		queue:     make(chan string, 256),
		pending:   make(map[string]bool),
	}
	if opts.ArchiveDir != "" {
		w.archiver = NewFileMovementHandler(opts.ArchiveDir)
	}
	return w
}

// Start 加锁、扫描积压的录音并开始监听
func (w *InboxWatcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.opts.Inbox, 0755); err != nil {
		return fmt.Errorf("创建收件目录失败: %w", err)
	}

	ok, err := w.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}

	monitor, err := NewFolderMonitor(w.opts.Inbox, w, w.opts.Debounce)
	if err != nil {
		_ = w.lock.Unlock()
		return err
	}
	if err := monitor.Start(); err != nil {
		_ = w.lock.Unlock()
		return err
	}
	w.monitor = monitor

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.worker(ctx)

	w.scanBacklog()
	utils.Info("收件目录监听已启动: %s", w.opts.Inbox)
	return nil
}

// Stop 停止监听，等待当前录音处理结束后释放锁
func (w *InboxWatcher) Stop() {
	if w.monitor != nil {
		w.monitor.Stop()
	}
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	if err := w.lock.Unlock(); err != nil {
		utils.Warn("释放锁失败: %v", err)
	}
	utils.Info("收件目录监听已停止")
}

// Stats 返回统计副本
func (w *InboxWatcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// OnFileReady 文件写入完成
func (w *InboxWatcher) OnFileReady(filePath string) {
	w.enqueue(filePath)
}

// OnFileDeleted 文件在处理前被删除或移走
func (w *InboxWatcher) OnFileDeleted(filePath string) {
	utils.Debug("文件已移除: %s", filePath)
}

func (w *InboxWatcher) scanBacklog() {
	recordings, err := scanner.ScanDirectory(w.opts.Inbox)
	if err != nil {
		utils.Warn("扫描收件目录失败: %v", err)
		return
	}

	fresh := scanner.FilterNew(recordings, func(r scanner.Recording) bool {
		if w.processor.IsRecognizedFile(r.Path) {
			w.markSkipped(r.Path)
			return true
		}
		return false
	})
	for _, rec := range fresh {
		w.enqueue(rec.Path)
	}
}

func (w *InboxWatcher) enqueue(filePath string) {
	w.mu.Lock()
	if w.pending[filePath] {
		w.mu.Unlock()
		return
	}
	w.pending[filePath] = true
	w.stats.Queued++
	w.mu.Unlock()

	select {
	case w.queue <- filePath:
	default:
		// 队列已满时丢弃，下次启动的积压扫描会重新发现
		utils.Warn("处理队列已满，跳过: %s", filePath)
		w.mu.Lock()
		delete(w.pending, filePath)
		w.stats.Queued--
		w.mu.Unlock()
	}
}

// 单个工作协程，保证同一时间只有一次运行
func (w *InboxWatcher) worker(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case filePath := <-w.queue:
			w.handle(ctx, filePath)
		}
	}
}

func (w *InboxWatcher) handle(ctx context.Context, filePath string) {
	defer func() {
		w.mu.Lock()
		delete(w.pending, filePath)
		w.stats.Queued--
		w.mu.Unlock()
	}()

	if _, err := os.Stat(filePath); err != nil {
		return
	}
	if w.processor.IsRecognizedFile(filePath) {
		utils.Info("已处理过相同内容的录音，跳过: %s", filepath.Base(filePath))
		w.markSkipped(filePath)
		return
	}

	result, err := w.processor.ProcessFile(ctx, filePath)
	if err != nil {
		w.mu.Lock()
		w.stats.Failed++
		w.mu.Unlock()
		utils.Error("处理失败 %s: %v", filepath.Base(filePath), err)
		return
	}

	w.mu.Lock()
	w.stats.Processed++
	w.mu.Unlock()
	utils.WithField("run_id", result.RunID).Infof("处理完成: %s", filepath.Base(filePath))

	if w.archiver != nil {
		if _, err := w.archiver.MoveFile(filePath); err != nil {
			utils.Warn("%v", err)
		}
	}
}

func (w *InboxWatcher) markSkipped(filePath string) {
	w.mu.Lock()
	w.stats.Skipped++
	w.mu.Unlock()
	utils.Debug("跳过已处理的录音: %s", filePath)
}
