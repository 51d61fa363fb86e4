package asr

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ccp-p/meeting-transcriber/pkg/models"
	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

// ServiceStats 服务统计数据
type ServiceStats struct {
	SuccessCount int
	TotalCount   int
	Available    bool
}

// ASRSelector 识别引擎注册表，按模型名创建引擎并记录调用统计
type ASRSelector struct {
	mu       sync.RWMutex
	services map[string]EngineCreator
	counters map[string]int
	stats    map[string]*ServiceStats
}

// NewASRSelector 创建空的注册表
func NewASRSelector() *ASRSelector {
	return &ASRSelector{
		services: make(map[string]EngineCreator),
		counters: make(map[string]int),
		stats:    make(map[string]*ServiceStats),
	}
}

// DefaultSelector 注册 fast（whisper.cpp）和 accurate（OpenAI）两种模型
func DefaultSelector() *ASRSelector {
	s := NewASRSelector()
	s.RegisterService(models.ModelFast, NewWhisperCppEngine)
	s.RegisterService(models.ModelAccurate, NewOpenAIEngine)
	return s
}

// RegisterService 注册识别引擎
func (s *ASRSelector) RegisterService(name string, creator EngineCreator) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.services[name] = creator
	s.counters[name] = 0
	s.stats[name] = &ServiceStats{Available: true}

	utils.Log.Debugf("注册ASR服务: %s", name)
}

// Services 返回已注册的服务名（已排序）
func (s *ASRSelector) Services() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.services))
	for name := range s.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create 按名称创建引擎，创建失败计入统计并标记不可用
func (s *ASRSelector) Create(name string, config *models.Config) (Engine, error) {
	s.mu.RLock()
	creator, ok := s.services[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("未知的ASR服务: %s", name)
	}

	engine, err := creator(config)
	if err != nil {
		s.mu.Lock()
		if stat := s.stats[name]; stat != nil {
			stat.Available = false
		}
		s.mu.Unlock()
		return nil, err
	}
	return engine, nil
}

// ReportResult 报告服务调用结果
func (s *ASRSelector) ReportResult(serviceName string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stat, exists := s.stats[serviceName]
	if !exists {
		return
	}
	s.counters[serviceName]++
	if success {
		stat.SuccessCount++
	}
	stat.TotalCount++

	if !success && stat.TotalCount > 5 && float64(stat.SuccessCount)/float64(stat.TotalCount) < 0.2 {
		if stat.Available {
			utils.Log.Warnf("ASR服务 %s 成功率过低", serviceName)
		}
		stat.Available = false
	} else if success && !stat.Available {
		stat.Available = true
		utils.Log.Infof("ASR服务 %s 恢复可用", serviceName)
	}
}

// GetStats 获取服务使用统计信息
func (s *ASRSelector) GetStats() map[string]map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]map[string]interface{})
	for name, stat := range s.stats {
		successRate := 0.0
		if stat.TotalCount > 0 {
			successRate = float64(stat.SuccessCount) / float64(stat.TotalCount) * 100
		}

		result[name] = map[string]interface{}{
			"count":        s.counters[name],
			"success_rate": fmt.Sprintf("%.1f%%", successRate),
			"available":    stat.Available,
		}
	}

	return result
}
