package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ccp-p/meeting-transcriber/pkg/audio"
	"github.com/ccp-p/meeting-transcriber/pkg/scanner"
	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

// FileEventHandler 是处理文件事件的接口
type FileEventHandler interface {
	OnFileReady(filePath string)
	OnFileDeleted(filePath string)
}

// FolderMonitor 监控文件夹变化，文件在去抖时间内不再变化才回调
type FolderMonitor struct {
	watcher      *fsnotify.Watcher
	folderPath   string
	handler      FileEventHandler
	debounceTime time.Duration
	pendingFiles map[string]*time.Timer
	mutex        sync.Mutex
	stopChan     chan struct{}
	stopOnce     sync.Once
}

// NewFolderMonitor 创建新的文件夹监控器
func NewFolderMonitor(folderPath string, handler FileEventHandler, debounceTime time.Duration) (*FolderMonitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监控器失败: %w", err)
	}

	return &FolderMonitor{
		watcher:      watcher,
		folderPath:   folderPath,
		handler:      handler,
		debounceTime: debounceTime,
		pendingFiles: make(map[string]*time.Timer),
		stopChan:     make(chan struct{}),
	}, nil
}

// Start 开始监控文件夹
func (m *FolderMonitor) Start() error {
	if err := os.MkdirAll(m.folderPath, 0755); err != nil {
		return fmt.Errorf("创建文件夹失败: %w", err)
	}

	if err := m.watcher.Add(m.folderPath); err != nil {
		return fmt.Errorf("添加监控文件夹失败: %w", err)
	}

	go m.watchLoop()

	utils.Info("开始监控文件夹: %s", m.folderPath)
	return nil
}

// Stop 停止监控，可重复调用
func (m *FolderMonitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
		m.watcher.Close()
		utils.Info("停止监控文件夹: %s", m.folderPath)

		// 取消所有待处理的文件定时器
		m.mutex.Lock()
		defer m.mutex.Unlock()
		for path, timer := range m.pendingFiles {
			timer.Stop()
			delete(m.pendingFiles, path)
		}
	})
}

// PendingCount 等待去抖的文件数
func (m *FolderMonitor) PendingCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.pendingFiles)
}

func (m *FolderMonitor) watchLoop() {
	for {
		select {
		case <-m.stopChan:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handleFileEvent(event)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			utils.Error("监控文件夹时出错: %v", err)
		}
	}
}

func (m *FolderMonitor) handleFileEvent(event fsnotify.Event) {
	filePath := event.Name

	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		m.cancelPending(filePath)
		if m.handler != nil && IsRecording(filePath) {
			m.handler.OnFileDeleted(filePath)
		}
		return
	}

	// 只处理创建和写入事件
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if !m.isTargetFile(filePath) {
		return
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	select {
	case <-m.stopChan:
		return
	default:
	}

	// 文件仍在写入时重置定时器
	if timer, exists := m.pendingFiles[filePath]; exists {
		timer.Stop()
	}
	m.pendingFiles[filePath] = time.AfterFunc(m.debounceTime, func() {
		m.processFile(filePath)
	})

	utils.Debug("检测到文件变化: %s", filePath)
}

func (m *FolderMonitor) cancelPending(filePath string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if timer, exists := m.pendingFiles[filePath]; exists {
		timer.Stop()
		delete(m.pendingFiles, filePath)
	}
}

// IsRecording 判断文件名是否为可处理的录音
func IsRecording(filePath string) bool {
	name := filepath.Base(filePath)
	if strings.HasPrefix(name, ".") || scanner.IsPartial(name) {
		return false
	}
	return audio.IsSupported(filePath)
}

func (m *FolderMonitor) isTargetFile(filePath string) bool {
	if !IsRecording(filePath) {
		return false
	}
	fileInfo, err := os.Stat(filePath)
	return err == nil && !fileInfo.IsDir()
}

func (m *FolderMonitor) processFile(filePath string) {
	m.mutex.Lock()
	delete(m.pendingFiles, filePath)
	m.mutex.Unlock()

	info, err := os.Stat(filePath)
	if err != nil || info.Size() == 0 {
		return
	}

	utils.Info("准备处理文件: %s", filePath)
	if m.handler != nil {
		m.handler.OnFileReady(filePath)
	}
}

// FileMovementHandler 把处理完的录音移入归档目录
type FileMovementHandler struct {
	targetFolder string
}

// NewFileMovementHandler 创建文件移动处理器
func NewFileMovementHandler(targetFolder string) *FileMovementHandler {
	return &FileMovementHandler{targetFolder: targetFolder}
}

// MoveFile 将文件移动到目标文件夹，重名时追加时间戳，返回新路径
func (h *FileMovementHandler) MoveFile(sourcePath string) (string, error) {
	if err := os.MkdirAll(h.targetFolder, 0755); err != nil {
		return "", fmt.Errorf("创建归档目录失败: %w", err)
	}

	filename := filepath.Base(sourcePath)
	targetPath := filepath.Join(h.targetFolder, filename)

	if _, err := os.Stat(targetPath); err == nil {
		ext := filepath.Ext(filename)
		name := filename[:len(filename)-len(ext)]
		timestamp := time.Now().Format("20060102150405")
		targetPath = filepath.Join(h.targetFolder, fmt.Sprintf("%s_%s%s", name, timestamp, ext))
	}

	if err := os.Rename(sourcePath, targetPath); err != nil {
		return "", fmt.Errorf("移动文件失败 %s -> %s: %w", sourcePath, targetPath, err)
	}

	utils.Info("文件已归档: %s -> %s", sourcePath, targetPath)
	return targetPath, nil
}
