package errors

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrorCallback 错误回调函数
type ErrorCallback func(err *TransferError)

// ThresholdConfig 阈值配置
type ThresholdConfig struct {
	MaxErrorsPerHour int           `json:"max_errors_per_hour"`
	CooldownPeriod   time.Duration `json:"cooldown_period"`
}

// ErrorHandler 错误处理器：归类、统计、记录日志后返回带标签的错误
type ErrorHandler struct {
	logger *logrus.Logger
	stats  *ErrorStats
	mu     sync.RWMutex

	callbacks  []ErrorCallback
	thresholds map[ErrorSeverity]ThresholdConfig
	lastWarned map[ErrorSeverity]time.Time
}

// NewErrorHandler 创建错误处理器
func NewErrorHandler(logger *logrus.Logger) *ErrorHandler {
	eh := &ErrorHandler{
		logger:     logger,
		stats:      NewErrorStats(),
		callbacks:  make([]ErrorCallback, 0),
		thresholds: make(map[ErrorSeverity]ThresholdConfig),
		lastWarned: make(map[ErrorSeverity]time.Time),
	}
	eh.setupDefaultThresholds()
	return eh
}

// setupDefaultThresholds 设置默认阈值
func (eh *ErrorHandler) setupDefaultThresholds() {
	eh.thresholds[SeverityLow] = ThresholdConfig{MaxErrorsPerHour: 200, CooldownPeriod: 5 * time.Minute}
	eh.thresholds[SeverityMedium] = ThresholdConfig{MaxErrorsPerHour: 60, CooldownPeriod: 10 * time.Minute}
	eh.thresholds[SeverityHigh] = ThresholdConfig{MaxErrorsPerHour: 20, CooldownPeriod: 30 * time.Minute}
	eh.thresholds[SeverityCritical] = ThresholdConfig{MaxErrorsPerHour: 5, CooldownPeriod: time.Hour}
}

// HandleError 处理错误。err 为 nil 时返回 nil。
// 返回值始终是 *TransferError，调用方可直接向上返回。
func (eh *ErrorHandler) HandleError(ctx context.Context, component string, err error) error {
	if err == nil {
		return nil
	}

	// 复制一份，避免修改预定义错误
	cp := *Classify(err)
	te := &cp
	if te.Component == "" {
		te.Component = component
	}

	eh.mu.Lock()
	eh.stats.RecordError(te)
	eh.mu.Unlock()

	eh.checkThresholds(te)
	eh.log(ctx, te)
	eh.executeCallbacks(te)

	return te
}

// checkThresholds 检查阈值，冷却期内只告警一次
func (eh *ErrorHandler) checkThresholds(err *TransferError) {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	threshold, exists := eh.thresholds[err.Severity]
	if !exists {
		return
	}

	hourlyRate := eh.stats.GetErrorRate(time.Hour)
	if hourlyRate <= float64(threshold.MaxErrorsPerHour) {
		return
	}
	if time.Since(eh.lastWarned[err.Severity]) < threshold.CooldownPeriod {
		return
	}
	eh.lastWarned[err.Severity] = time.Now()
	eh.logger.Warnf("每小时错误数超过阈值: %.2f > %d", hourlyRate, threshold.MaxErrorsPerHour)
}

// log 根据严重级别选择日志级别
func (eh *ErrorHandler) log(ctx context.Context, err *TransferError) {
	fields := logrus.Fields{
		"error_kind": err.Kind.String(),
		"error_code": err.Code,
		"component":  err.Component,
		"retryable":  err.Retryable,
	}
	if err.TxHash != nil {
		fields["tx_hash"] = *err.TxHash
	}
	if len(err.Context) > 0 {
		fields["context"] = err.Context
	}
	entry := eh.logger.WithContext(ctx).WithFields(fields)

	switch err.Severity {
	case SeverityLow:
		entry.Info(err.Error())
	case SeverityMedium:
		entry.Warn(err.Error())
	default:
		entry.Error(err.Error())
	}
}

// executeCallbacks 执行错误回调
func (eh *ErrorHandler) executeCallbacks(err *TransferError) {
	eh.mu.RLock()
	callbacks := make([]ErrorCallback, len(eh.callbacks))
	copy(callbacks, eh.callbacks)
	eh.mu.RUnlock()

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					eh.logger.Errorf("错误回调执行时发生panic: %v", r)
				}
			}()
			cb(err)
		}()
	}
}

// AddCallback 添加错误回调
func (eh *ErrorHandler) AddCallback(callback ErrorCallback) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.callbacks = append(eh.callbacks, callback)
}

// GetStats 获取错误统计信息快照
func (eh *ErrorHandler) GetStats() *ErrorStats {
	eh.mu.RLock()
	defer eh.mu.RUnlock()
	return eh.stats.clone()
}

// SetThreshold 设置阈值
func (eh *ErrorHandler) SetThreshold(severity ErrorSeverity, config ThresholdConfig) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.thresholds[severity] = config
}

// ClearStats 清除统计信息
func (eh *ErrorHandler) ClearStats() {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.stats = NewErrorStats()
}
