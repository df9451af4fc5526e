package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"transferdesk/internal/api"
	"transferdesk/internal/config"
	"transferdesk/internal/connection"
	"transferdesk/internal/errors"
	"transferdesk/internal/logging"
	"transferdesk/internal/metrics"
	"transferdesk/internal/output"
	"transferdesk/internal/provider"
	"transferdesk/internal/shutdown"
	"transferdesk/internal/wallet"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "配置文件路径")
	port       = flag.Int("port", 0, "API 服务端口，0 表示使用配置")
	verbose    = flag.Bool("verbose", false, "详细输出")
)

func main() {
	flag.Parse()

	boot := logrus.New()
	boot.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// 自动检测并加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		boot.Fatalf("加载配置失败: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		boot.Fatalf("创建日志失败: %v", err)
	}
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	errHandler := errors.NewErrorHandler(logger)
	metrics.ObserveErrors(errHandler)

	outputter, err := output.NewOutputWithConfig(cfg.Output, logger)
	if err != nil {
		logger.Fatalf("创建输出器失败: %v", err)
	}

	gs := shutdown.NewGracefulShutdown(30*time.Second, logger)
	gs.Start()
	ctx := gs.Context()

	w := connection.Dial(ctx, cfg.Wallet, logger)
	rt, err := provider.Assemble(cfg, w, &wallet.LogPrompter{Logger: logger}, outputter, errHandler, logger)
	if err != nil {
		logger.Fatalf("初始化失败: %v", err)
	}

	if err := rt.Provider.Init(ctx); err != nil {
		logger.WithError(err).Warn("初始化未完全成功")
	}
	rt.Provider.Start(ctx)

	listenPort := cfg.API.Port
	if *port > 0 {
		listenPort = *port
	}
	server := api.NewServer(rt.Provider, errHandler, logger, listenPort).WithContext(ctx)

	health := connection.NewHealthChecker(w.Client(), 30*time.Second, logger)
	go health.Run(ctx)
	server.WithHealth(health)

	// 使用数据库配置源时开放配置接口
	if dsn := os.Getenv(config.EnvDatabaseDSN); dsn != "" {
		dbConfig, err := config.NewDatabaseConfig(dsn, logger)
		if err != nil {
			logger.WithError(err).Warn("配置接口不可用")
		} else {
			server.WithSettings(api.NewSettingsManager(dbConfig, logger))
			gs.Register("settings", shutdown.OrderCloseStore, func(context.Context) error { return dbConfig.Close() })
		}
	}

	gs.Register("api", shutdown.OrderStopServer, server.Stop)
	gs.Register("publisher", shutdown.OrderFlushPublisher, func(context.Context) error { return outputter.Close() })
	gs.Register("counter", shutdown.OrderCloseStore, func(context.Context) error { return rt.Counter.Close() })
	gs.Register("wallet", shutdown.OrderCloseWallet, func(context.Context) error {
		w.Close()
		return nil
	})

	go func() {
		if err := server.Start(); err != nil {
			logger.Errorf("API服务器异常退出: %v", err)
			gs.Shutdown()
		}
	}()

	gs.Wait()
	logger.Info("服务器已关闭")
}
