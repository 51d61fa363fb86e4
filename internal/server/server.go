package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ccp-p/meeting-transcriber/internal/pipeline"
	"github.com/ccp-p/meeting-transcriber/pkg/models"
	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

// Runner 执行一次完整处理
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*models.RunResult, error)
}

// RecordStore 已完成记录的存储
type RecordStore interface {
	Save(ctx context.Context, result *models.RunResult) error
	Get(ctx context.Context, id string) (*models.RunResult, error)
	FindByFingerprint(ctx context.Context, fingerprint, model string) (*models.RunResult, error)
	List(ctx context.Context, limit int) ([]*models.RunResult, error)
}

// StatsSource 转写服务统计
type StatsSource interface {
	GetStats() map[string]map[string]interface{}
}

// Deps 服务依赖
type Deps struct {
	Config     *models.Config
	Runner     Runner
	Store      RecordStore // 可为空
	Stats      StatsSource // 可为空
	ErrorStats func() map[string]map[string]int
	Benchmarks []models.BenchmarkEntry
}

// Service HTTP 服务
type Service struct {
	deps   Deps
	tasks  *TaskManager
	router *gin.Engine
	server *http.Server
	cancel context.CancelFunc
}

// NewService 创建服务并注册路由
func NewService(deps Deps) *Service {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if err := router.SetTrustedProxies(nil); err != nil {
		utils.Warn("设置可信代理失败: %v", err)
	}
	router.Use(
		gin.Recovery(),
		gin.LoggerWithWriter(utils.Log.Writer(), "/health"),
	)
	router.MaxMultipartMemory = int64(deps.Config.MaxUploadMB) << 20

	s := &Service{
		deps:   deps,
		tasks:  NewTaskManager(deps.Runner, deps.Store, 0),
		router: router,
	}
	s.initRouter()
	return s
}

func (s *Service) initRouter() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, BaseResponse{Code: 0, Msg: "ok"})
	})

	api := s.router.Group("/api")
	{
		api.POST("/runs", s.handleCreateRun)
		api.GET("/runs", s.handleListRuns)
		api.GET("/runs/:id", s.handleGetRun)
		api.GET("/runs/:id/export", s.handleExport)
		api.GET("/benchmarks", s.handleBenchmarks)
		api.POST("/wer", s.handleWER)
		api.GET("/stats", s.handleStats)
	}
}

// StartWorker 启动串行处理协程
func (s *Service) StartWorker(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.tasks.Run(ctx)
}

// ListenAndServe 启动工作协程并阻塞监听
func (s *Service) ListenAndServe(ctx context.Context) error {
	s.StartWorker(ctx)
	s.server = &http.Server{
		Addr:              s.deps.Config.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	utils.Info("HTTP 服务启动在 %s", s.deps.Config.ListenAddr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 优雅关闭
func (s *Service) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		utils.Debug("关闭 HTTP 服务失败: %v", err)
		return err
	}
	utils.Info("HTTP 服务已停止")
	return nil
}

// Router 返回路由，测试中使用
func (s *Service) Router() *gin.Engine {
	return s.router
}
