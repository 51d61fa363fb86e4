package watcher

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

// StatusMonitor 定期输出监听状态
type StatusMonitor struct {
	Source   func() Stats
	Interval time.Duration
	StopChan chan struct{}
	last     Stats
}

// NewStatusMonitor 创建状态监控器
func NewStatusMonitor(source func() Stats, interval time.Duration) *StatusMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &StatusMonitor{
		Source:   source,
		Interval: interval,
		StopChan: make(chan struct{}),
	}
}

// Start 开始监控
func (m *StatusMonitor) Start() {
	go m.monitorRoutine()
}

// Stop 停止监控
func (m *StatusMonitor) Stop() {
	close(m.StopChan)
}

func (m *StatusMonitor) monitorRoutine() {
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.report()
		case <-m.StopChan:
			return
		}
	}
}

// report 状态有变化时才输出，返回是否输出
func (m *StatusMonitor) report() bool {
	stats := m.Source()
	if stats == m.last {
		return false
	}
	m.last = stats
	utils.WithFields(logrus.Fields{
		"queued":    stats.Queued,
		"processed": stats.Processed,
		"failed":    stats.Failed,
		"skipped":   stats.Skipped,
	}).Info("监听状态")
	return true
}

// StartStatusMonitoring 便捷函数：开始监控并返回停止函数
func StartStatusMonitoring(source func() Stats, interval time.Duration) func() {
	monitor := NewStatusMonitor(source, interval)
	monitor.Start()
	return monitor.Stop
}
