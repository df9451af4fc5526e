package errors

import (
	"fmt"
	"time"
)

// Kind 错误种类，由失败的真实原因推导而来
type Kind int

const (
	// KindUnknown 无法归类的失败，保留原始原因
	KindUnknown Kind = iota
	// KindWalletUnavailable 钱包未注入、未授权或已断开
	KindWalletUnavailable
	// KindUserRejected 用户在钱包中拒绝了请求 (EIP-1193 4001)
	KindUserRejected
	// KindCallReverted 合约调用或交易执行被回滚
	KindCallReverted
	// KindNetwork 传输层失败，读操作可重试
	KindNetwork
	// KindInvalidInput 表单或参数不合法
	KindInvalidInput
	// KindBusy 已有提交在进行中
	KindBusy
)

// ErrorSeverity 错误严重级别
type ErrorSeverity int

const (
	SeverityLow ErrorSeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// TransferError 带种类标签的错误
type TransferError struct {
	Kind      Kind                   `json:"kind"`
	Severity  ErrorSeverity          `json:"severity"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Cause     error                  `json:"-"`
	Retryable bool                   `json:"retryable"`
	Component string                 `json:"component"`
	TxHash    *string                `json:"tx_hash,omitempty"`
}

// Error 实现error接口
func (e *TransferError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 支持errors.Unwrap
func (e *TransferError) Unwrap() error {
	return e.Cause
}

// Is 同种类同代码的错误视为相等，便于 errors.Is 比较预定义错误
func (e *TransferError) Is(target error) bool {
	t, ok := target.(*TransferError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// IsRetryable 判断是否可重试
func (e *TransferError) IsRetryable() bool {
	return e.Retryable
}

// WithContext 添加上下文信息
func (e *TransferError) WithContext(key string, value interface{}) *TransferError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithTxHash 添加交易哈希
func (e *TransferError) WithTxHash(txHash string) *TransferError {
	e.TxHash = &txHash
	return e
}

// WithComponent 设置出错组件
func (e *TransferError) WithComponent(component string) *TransferError {
	e.Component = component
	return e
}

// New 创建新的错误
func New(kind Kind, severity ErrorSeverity, code, message string) *TransferError {
	return &TransferError{
		Kind:      kind,
		Severity:  severity,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Retryable: kind == KindNetwork,
	}
}

// Wrap 包装现有错误
func Wrap(err error, kind Kind, severity ErrorSeverity, code, message string) *TransferError {
	e := New(kind, severity, code, message)
	e.Cause = err
	return e
}

// 预定义错误
var (
	ErrWalletNotInjected = New(
		KindWalletUnavailable,
		SeverityMedium,
		"WALLET_NOT_INJECTED",
		"未检测到注入的钱包",
	)

	ErrNoAccount = New(
		KindWalletUnavailable,
		SeverityMedium,
		"NO_ACCOUNT",
		"钱包未授权任何账户",
	)

	ErrSubmissionInFlight = New(
		KindBusy,
		SeverityLow,
		"SUBMISSION_IN_FLIGHT",
		"已有交易提交正在进行",
	)

	ErrInvalidForm = New(
		KindInvalidInput,
		SeverityLow,
		"INVALID_FORM",
		"表单数据无效",
	)

	ErrTransactionReverted = New(
		KindCallReverted,
		SeverityHigh,
		"TX_REVERTED",
		"交易执行失败",
	)
)

var kindNames = map[Kind]string{
	KindUnknown:           "Unknown",
	KindWalletUnavailable: "WalletUnavailable",
	KindUserRejected:      "UserRejected",
	KindCallReverted:      "CallReverted",
	KindNetwork:           "NetworkError",
	KindInvalidInput:      "InvalidInput",
	KindBusy:              "Busy",
}

// String 返回错误种类的字符串表示
func (k Kind) String() string {
	if name, exists := kindNames[k]; exists {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText 使 JSON 输出使用种类名称
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

var severityNames = map[ErrorSeverity]string{
	SeverityLow:      "Low",
	SeverityMedium:   "Medium",
	SeverityHigh:     "High",
	SeverityCritical: "Critical",
}

// String 返回严重级别的字符串表示
func (es ErrorSeverity) String() string {
	if name, exists := severityNames[es]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", es)
}

// MarshalText 使 JSON 输出使用级别名称
func (es ErrorSeverity) MarshalText() ([]byte, error) {
	return []byte(es.String()), nil
}

// ErrorStats 错误统计
type ErrorStats struct {
	TotalErrors       int                   `json:"total_errors"`
	ErrorsByKind      map[Kind]int          `json:"errors_by_kind"`
	ErrorsBySeverity  map[ErrorSeverity]int `json:"errors_by_severity"`
	ErrorsByComponent map[string]int        `json:"errors_by_component"`
	RecentErrors      []*TransferError      `json:"recent_errors"`
	LastError         *TransferError        `json:"last_error"`
	LastErrorTime     time.Time             `json:"last_error_time"`
}

// NewErrorStats 创建错误统计
func NewErrorStats() *ErrorStats {
	return &ErrorStats{
		ErrorsByKind:      make(map[Kind]int),
		ErrorsBySeverity:  make(map[ErrorSeverity]int),
		ErrorsByComponent: make(map[string]int),
		RecentErrors:      make([]*TransferError, 0),
	}
}

// RecordError 记录错误
func (es *ErrorStats) RecordError(err *TransferError) {
	es.TotalErrors++
	es.ErrorsByKind[err.Kind]++
	es.ErrorsBySeverity[err.Severity]++
	if err.Component != "" {
		es.ErrorsByComponent[err.Component]++
	}

	es.LastError = err
	es.LastErrorTime = err.Timestamp

	// 保留最近50个错误
	es.RecentErrors = append(es.RecentErrors, err)
	if len(es.RecentErrors) > 50 {
		es.RecentErrors = es.RecentErrors[1:]
	}
}

// GetErrorRate 获取错误率（错误/小时）
func (es *ErrorStats) GetErrorRate(duration time.Duration) float64 {
	if duration <= 0 {
		return 0
	}

	cutoff := time.Now().Add(-duration)
	recentCount := 0
	for _, err := range es.RecentErrors {
		if err.Timestamp.After(cutoff) {
			recentCount++
		}
	}

	return float64(recentCount) / duration.Hours()
}

// clone 返回统计数据的快照
func (es *ErrorStats) clone() *ErrorStats {
	cp := &ErrorStats{
		TotalErrors:       es.TotalErrors,
		ErrorsByKind:      make(map[Kind]int, len(es.ErrorsByKind)),
		ErrorsBySeverity:  make(map[ErrorSeverity]int, len(es.ErrorsBySeverity)),
		ErrorsByComponent: make(map[string]int, len(es.ErrorsByComponent)),
		RecentErrors:      append([]*TransferError(nil), es.RecentErrors...),
		LastError:         es.LastError,
		LastErrorTime:     es.LastErrorTime,
	}
	for k, v := range es.ErrorsByKind {
		cp.ErrorsByKind[k] = v
	}
	for k, v := range es.ErrorsBySeverity {
		cp.ErrorsBySeverity[k] = v
	}
	for k, v := range es.ErrorsByComponent {
		cp.ErrorsByComponent[k] = v
	}
	return cp
}
