package connection

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"

	"transferdesk/internal/config"
	"transferdesk/internal/wallet"
)

// MethodChainID 连接探测使用的方法
const MethodChainID = "eth_chainId"

// Dial 连接钱包端点并探测。端点为空或探测失败时返回未注入的钱包
func Dial(ctx context.Context, cfg *config.WalletConfig, logger *logrus.Logger) *wallet.Wallet {
	if cfg == nil || cfg.Endpoint == "" {
		logger.Info("未配置钱包端点")
		return wallet.Absent(logger)
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeoutDuration())
	defer cancel()

	client, err := rpc.DialContext(dialCtx, cfg.Endpoint)
	if err != nil {
		logger.WithError(err).WithField("endpoint", cfg.Endpoint).Warn("连接钱包失败")
		return wallet.Absent(logger)
	}

	w, err := FromClient(dialCtx, client, cfg.Endpoint, logger)
	if err != nil {
		client.Close()
		logger.WithError(err).WithField("endpoint", cfg.Endpoint).Warn("钱包探测失败")
		return wallet.Absent(logger)
	}
	return w
}

// FromClient 探测已建立的连接，成功后包装为钱包
func FromClient(ctx context.Context, client *rpc.Client, endpoint string, logger *logrus.Logger) (*wallet.Wallet, error) {
	chainID, err := ChainID(ctx, client)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"chain_id": chainID.String(),
	}).Info("已连接钱包")
	return wallet.NewFromRPC(client, endpoint, logger), nil
}

// ChainID 读取链ID
func ChainID(ctx context.Context, client *rpc.Client) (*big.Int, error) {
	var result hexutil.Big
	if err := client.CallContext(ctx, &result, MethodChainID); err != nil {
		return nil, fmt.Errorf("%s 调用失败: %w", MethodChainID, err)
	}
	return (*big.Int)(&result), nil
}

// HealthChecker 定期探测钱包连接
type HealthChecker struct {
	client   *rpc.Client
	interval time.Duration
	timeout  time.Duration
	logger   *logrus.Entry

	mu        sync.RWMutex
	healthy   bool
	lastCheck time.Time
	lastErr   error
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(client *rpc.Client, interval time.Duration, logger *logrus.Logger) *HealthChecker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HealthChecker{
		client:   client,
		interval: interval,
		timeout:  5 * time.Second,
		healthy:  client != nil,
		logger:   logger.WithField("component", "wallet_health"),
	}
}

// Check 执行一次探测
func (hc *HealthChecker) Check(ctx context.Context) error {
	if hc.client == nil {
		return fmt.Errorf("钱包未连接")
	}

	checkCtx, cancel := context.WithTimeout(ctx, hc.timeout)
	defer cancel()
	_, err := ChainID(checkCtx, hc.client)

	hc.mu.Lock()
	wasHealthy := hc.healthy
	hc.healthy = err == nil
	hc.lastCheck = time.Now()
	hc.lastErr = err
	hc.mu.Unlock()

	switch {
	case err != nil && wasHealthy:
		hc.logger.WithError(err).Warn("钱包连接不健康")
	case err == nil && !wasHealthy:
		hc.logger.Info("钱包连接已恢复")
	}
	return err
}

// Run 按间隔探测直到 ctx 结束
func (hc *HealthChecker) Run(ctx context.Context) {
	if hc.client == nil {
		return
	}
	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = hc.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Status 健康状态
func (hc *HealthChecker) Status() map[string]interface{} {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	status := map[string]interface{}{
		"healthy":    hc.healthy,
		"last_check": hc.lastCheck,
	}
	if hc.lastErr != nil {
		status["error"] = hc.lastErr.Error()
	}
	return status
}

// IsHealthy 最近一次探测是否成功
func (hc *HealthChecker) IsHealthy() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.healthy
}
