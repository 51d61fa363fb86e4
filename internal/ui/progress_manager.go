package ui

import (
	"sync"
)

// ProgressManager 管理多个进度条，每次运行一个
type ProgressManager struct {
	progressBars map[string]*ProgressBar
	mutex        sync.Mutex
	enabled      bool
}

// NewProgressManager 创建新的进度管理器，enabled 为 false 时所有方法都是空操作
func NewProgressManager(enabled bool) *ProgressManager {
	return &ProgressManager{
		progressBars: make(map[string]*ProgressBar),
		enabled:      enabled,
	}
}

// Enabled 是否输出进度
func (pm *ProgressManager) Enabled() bool {
	return pm != nil && pm.enabled
}

// CreateProgressBar 创建并注册一个新的进度条
func (pm *ProgressManager) CreateProgressBar(id string, total int, prefix string, suffix string) *ProgressBar {
	if !pm.Enabled() {
		return nil
	}

	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	// 如果已经存在同名进度条，先完成它
	if bar, exists := pm.progressBars[id]; exists {
		bar.Complete("已被替换")
	}

	bar := NewProgressBar(total, prefix, suffix)
	pm.progressBars[id] = bar
	bar.draw()
	return bar
}

// GetProgressBar 获取已存在的进度条
func (pm *ProgressManager) GetProgressBar(id string) *ProgressBar {
	if pm == nil {
		return nil
	}
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	return pm.progressBars[id]
}

// UpdateProgressBar 更新进度条
func (pm *ProgressManager) UpdateProgressBar(id string, current int, suffix string) {
	if bar := pm.active(id); bar != nil {
		bar.Update(current, suffix)
	}
}

// CompleteProgressBar 完成并移除进度条
func (pm *ProgressManager) CompleteProgressBar(id string, suffix string) {
	if bar := pm.active(id); bar != nil {
		bar.Complete(suffix)
		pm.RemoveProgressBar(id)
	}
}

// FailProgressBar 以失败状态结束并移除进度条
func (pm *ProgressManager) FailProgressBar(id string, suffix string) {
	if bar := pm.active(id); bar != nil {
		bar.Fail(suffix)
		pm.RemoveProgressBar(id)
	}
}

func (pm *ProgressManager) active(id string) *ProgressBar {
	if !pm.Enabled() {
		return nil
	}
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	return pm.progressBars[id]
}

// RemoveProgressBar 移除进度条
func (pm *ProgressManager) RemoveProgressBar(id string) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	delete(pm.progressBars, id)
}

// CloseAll 完成所有进度条
func (pm *ProgressManager) CloseAll(suffix string) {
	if !pm.Enabled() {
		return
	}

	pm.mutex.Lock()
	bars := make([]*ProgressBar, 0, len(pm.progressBars))
	for _, bar := range pm.progressBars {
		bars = append(bars, bar)
	}
	pm.progressBars = make(map[string]*ProgressBar)
	pm.mutex.Unlock()

	for _, bar := range bars {
		bar.Complete(suffix)
	}
}
