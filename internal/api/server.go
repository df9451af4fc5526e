package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"transferdesk/internal/connection"
	"transferdesk/internal/errors"
	"transferdesk/internal/provider"
	"transferdesk/pkg/models"
)

// Server API服务器，向视图层暴露编排器状态与操作
type Server struct {
	provider   *provider.Provider
	errHandler *errors.ErrorHandler
	settings   *SettingsManager
	health     *connection.HealthChecker
	logger     *logrus.Logger
	logManager *LogManager
	server     *http.Server
	port       int
	// opCtx 提交与刷新使用的上下文，不随单个请求取消
	opCtx context.Context
}

// NewServer 创建API服务器
func NewServer(p *provider.Provider, errHandler *errors.ErrorHandler, logger *logrus.Logger, port int) *Server {
	logManager := NewLogManager(1000)
	logger.AddHook(NewLogHook(logManager))

	return &Server{
		provider:   p,
		errHandler: errHandler,
		logger:     logger,
		logManager: logManager,
		port:       port,
		opCtx:      context.Background(),
	}
}

// WithSettings 启用数据库配置接口
func (s *Server) WithSettings(settings *SettingsManager) *Server {
	s.settings = settings
	return s
}

// WithHealth 在健康检查中包含钱包探测结果
func (s *Server) WithHealth(hc *connection.HealthChecker) *Server {
	s.health = hc
	return s
}

// WithContext 设置链上操作使用的上下文，停机时取消
func (s *Server) WithContext(ctx context.Context) *Server {
	s.opCtx = ctx
	return s
}

// Router 构建路由
func (s *Server) Router() *gin.Engine {
	router := gin.New()

	// CORS
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})
	router.Use(gin.Recovery())

	s.setupRoutes(router)
	return router
}

// Start 启动API服务器，阻塞直到服务器关闭
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("API服务器启动在端口 %d", s.port)
	if err := s.server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 停止API服务器
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// setupRoutes 设置路由
func (s *Server) setupRoutes(router *gin.Engine) {
	router.GET("/health", s.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		// 状态
		api.GET("/state", s.getState)
		api.POST("/connect", s.connect)
		api.POST("/refresh", s.refresh)

		// 表单
		api.PUT("/form", s.setForm)
		api.PATCH("/form/:name", s.changeField)

		// 交易
		api.GET("/transactions", s.getTransactions)
		api.POST("/transactions", s.sendTransaction)

		// 错误统计
		api.GET("/errors", s.getErrors)

		// 日志管理
		api.GET("/logs", s.getLogs)
		api.DELETE("/logs", s.clearLogs)

		// 数据库配置
		api.GET("/settings/:type", s.getSettings)
		api.PUT("/settings/:type", s.updateSettings)
	}
}

// StatusFor 错误种类对应的HTTP状态码
func StatusFor(err error) int {
	switch errors.KindOf(err) {
	case errors.KindInvalidInput:
		return http.StatusBadRequest
	case errors.KindBusy:
		return http.StatusConflict
	case errors.KindUserRejected:
		return http.StatusForbidden
	case errors.KindWalletUnavailable:
		return http.StatusServiceUnavailable
	case errors.KindNetwork:
		return http.StatusBadGateway
	case errors.KindCallReverted:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondError 以统一格式返回错误
func (s *Server) respondError(c *gin.Context, err error) {
	te := errors.Classify(err)
	c.JSON(StatusFor(err), gin.H{
		"error":   te.Message,
		"kind":    te.Kind,
		"code":    te.Code,
		"message": err.Error(),
	})
}

// walletAbsent 钱包未注入时返回安装提示
func (s *Server) walletAbsent(c *gin.Context) bool {
	if s.provider.WalletInjected() {
		return false
	}
	c.JSON(http.StatusOK, gin.H{
		"prompt": s.provider.InstallPrompt(),
		"state":  s.provider.Snapshot(),
	})
	return true
}

// healthCheck 健康检查
func (s *Server) healthCheck(c *gin.Context) {
	resp := gin.H{
		"status":         "healthy",
		"timestamp":      time.Now().Unix(),
		"service":        "transferdesk-api",
		"walletInjected": s.provider.WalletInjected(),
		"currentAccount": s.provider.CurrentAccount(),
	}
	if s.health != nil {
		resp["wallet"] = s.health.Status()
		if !s.health.IsHealthy() {
			resp["status"] = "degraded"
		}
	}
	c.JSON(http.StatusOK, resp)
}

// getState 获取完整状态
func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.provider.Snapshot())
}

// connect 请求钱包授权
func (s *Server) connect(c *gin.Context) {
	err := s.provider.Connect(c.Request.Context())
	if s.walletAbsent(c) {
		return
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"currentAccount": s.provider.CurrentAccount(),
	})
}

// refresh 手动刷新
func (s *Server) refresh(c *gin.Context) {
	if s.walletAbsent(c) {
		return
	}
	if err := s.provider.Refresh(s.opCtx); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.provider.Snapshot())
}

// setForm 整体替换表单
func (s *Server) setForm(c *gin.Context) {
	var form models.FormData
	if err := c.ShouldBindJSON(&form); err != nil {
		s.respondError(c, errors.Wrap(err, errors.KindInvalidInput, errors.SeverityLow, "BAD_REQUEST", "请求参数错误"))
		return
	}
	s.provider.SetFormData(form)
	c.JSON(http.StatusOK, gin.H{"formData": s.provider.FormData()})
}

// changeField 修改单个字段
func (s *Server) changeField(c *gin.Context) {
	var req struct {
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, errors.Wrap(err, errors.KindInvalidInput, errors.SeverityLow, "BAD_REQUEST", "请求参数错误"))
		return
	}
	if err := s.provider.HandleChange(c.Param("name"), req.Value); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"formData": s.provider.FormData()})
}

// getTransactions 获取记录列表
func (s *Server) getTransactions(c *gin.Context) {
	transactions := s.provider.Transactions()
	c.JSON(http.StatusOK, gin.H{
		"transactions":     transactions,
		"total":            len(transactions),
		"transactionCount": s.provider.TransactionCount(),
	})
}

// sendTransaction 提交当前表单。请求体非空时先替换表单
func (s *Server) sendTransaction(c *gin.Context) {
	if s.walletAbsent(c) {
		return
	}

	if c.Request.ContentLength > 0 {
		var form models.FormData
		if err := c.ShouldBindJSON(&form); err != nil {
			s.respondError(c, errors.Wrap(err, errors.KindInvalidInput, errors.SeverityLow, "BAD_REQUEST", "请求参数错误"))
			return
		}
		s.provider.SetFormData(form)
	}

	// 交易已广播后不因客户端断开而放弃等待确认
	result, err := s.provider.SendTransaction(s.opCtx)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"result": result,
		"state":  s.provider.Snapshot(),
	})
}

// getErrors 获取错误统计
func (s *Server) getErrors(c *gin.Context) {
	c.JSON(http.StatusOK, s.errHandler.GetStats())
}

// getLogs 获取日志
func (s *Server) getLogs(c *gin.Context) {
	level := c.Query("level")

	page := 1
	if p, err := strconv.Atoi(c.Query("page")); err == nil && p > 0 {
		page = p
	}
	pageSize := 20
	if ps, err := strconv.Atoi(c.Query("pageSize")); err == nil && ps > 0 {
		pageSize = ps
	}

	logs, total := s.logManager.GetLogsWithPagination(level, page, pageSize)

	c.JSON(http.StatusOK, gin.H{
		"logs":     logs,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
		"level":    level,
	})
}

// clearLogs 清空日志
func (s *Server) clearLogs(c *gin.Context) {
	s.logManager.ClearLogs()
	c.JSON(http.StatusOK, gin.H{"message": "日志已清空"})
}

func (s *Server) getSettings(c *gin.Context) {
	if s.settings == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "未启用数据库配置"})
		return
	}
	s.settings.GetConfig(c)
}

func (s *Server) updateSettings(c *gin.Context) {
	if s.settings == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "未启用数据库配置"})
		return
	}
	s.settings.UpdateConfig(c)
}
