package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/ccp-p/meeting-transcriber/internal/pipeline"
	"github.com/ccp-p/meeting-transcriber/internal/store"
	"github.com/ccp-p/meeting-transcriber/internal/ui"
	"github.com/ccp-p/meeting-transcriber/pkg/asr"
	"github.com/ccp-p/meeting-transcriber/pkg/models"
	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

type globalOptions struct {
	configFile string
	logLevel   string
	logFile    string
}

// appContext 各子命令共享的配置与资源
type appContext struct {
	opts *globalOptions

	configOnce sync.Once
	config     *models.Config
	configErr  error

	selectorOnce sync.Once
	selector     *asr.ASRSelector

	mu      sync.Mutex
	cleanup []func()
}

func newAppContext(opts *globalOptions) *appContext {
	return &appContext{opts: opts}
}

func (a *appContext) ensureConfig() (*models.Config, error) {
	a.configOnce.Do(func() {
		a.config, a.configErr = loadConfig(a.opts)
	})
	return a.config, a.configErr
}

// loadConfig 读取配置文件（或仅环境变量），然后初始化日志
func loadConfig(opts *globalOptions) (*models.Config, error) {
	config := models.NewDefaultConfig()

	path := strings.TrimSpace(opts.configFile)
	if path != "" {
		if err := config.LoadFromFile(path); err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
	} else {
		if err := config.ApplyEnv(); err != nil {
			return nil, fmt.Errorf("读取环境变量失败: %w", err)
		}
		if err := config.Validate(); err != nil {
			return nil, err
		}
	}

	level := config.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logFile := config.LogFile
	if opts.logFile != "" {
		logFile = opts.logFile
	}
	if err := utils.InitLogger(level, logFile); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return config, nil
}

// addCleanup 注册退出时执行的清理函数，按注册的逆序执行
func (a *appContext) addCleanup(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleanup = append(a.cleanup, fn)
}

func (a *appContext) runCleanup() {
	a.mu.Lock()
	fns := a.cleanup
	a.cleanup = nil
	a.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// signalContext 收到 SIGINT/SIGTERM 时取消，第二次信号直接退出
func (a *appContext) signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			color.Yellow("\n接收到信号 %v，正在停止...", sig)
			utils.Info("接收到信号: %v", sig)
			cancel()
		case <-ctx.Done():
			signal.Stop(sigChan)
			return
		}

		select {
		case <-sigChan:
			color.Red("强制退出")
			a.runCleanup()
			os.Exit(1)
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// openStore 打开记录库，命令结束时关闭
func (a *appContext) openStore(config *models.Config) (*store.Store, error) {
	s, err := store.Open(config.DatabasePath)
	if err != nil {
		return nil, err
	}
	a.addCleanup(func() {
		if err := s.Close(); err != nil {
			utils.Warn("关闭记录库失败: %v", err)
		}
	})
	return s, nil
}

// asrSelector 进程内共享的转写引擎选择器，统计信息在各处一致
func (a *appContext) asrSelector() *asr.ASRSelector {
	a.selectorOnce.Do(func() {
		a.selector = asr.DefaultSelector()
	})
	return a.selector
}

// newOrchestrator 创建流水线，模型缓存在命令结束时释放
func (a *appContext) newOrchestrator(config *models.Config, progress bool) *pipeline.Orchestrator {
	m := pipeline.NewModels(pipeline.DefaultFactory(config, a.asrSelector()))
	a.addCleanup(m.Close)

	orch := pipeline.New(config, m)
	if progress {
		orch.SetProgressManager(ui.NewProgressManager(true))
		utils.EnableTerminalProgress()
		a.addCleanup(utils.DisableTerminalProgress)
	}
	return orch
}

func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}
