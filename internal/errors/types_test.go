package errors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// walletRPCError 模拟钱包返回的 JSON-RPC 错误
type walletRPCError struct {
	code int
	msg  string
}

func (e *walletRPCError) Error() string  { return e.msg }
func (e *walletRPCError) ErrorCode() int { return e.code }

var _ rpc.Error = (*walletRPCError)(nil)

func TestNew(t *testing.T) {
	err := New(KindNetwork, SeverityHigh, "TEST_ERROR", "测试错误")

	assert.Equal(t, KindNetwork, err.Kind)
	assert.Equal(t, SeverityHigh, err.Severity)
	assert.Equal(t, "TEST_ERROR", err.Code)
	assert.True(t, err.Retryable) // 网络错误默认可重试
	assert.False(t, err.Timestamp.IsZero())

	assert.False(t, New(KindCallReverted, SeverityHigh, "X", "x").Retryable)
}

func TestTransferError_Error(t *testing.T) {
	err := New(KindInvalidInput, SeverityLow, "TEST_CODE", "测试消息")
	assert.Equal(t, "[TEST_CODE] 测试消息", err.Error())

	wrapped := Wrap(errors.New("原始错误"), KindInvalidInput, SeverityLow, "TEST_CODE", "测试消息")
	assert.Equal(t, "[TEST_CODE] 测试消息: 原始错误", wrapped.Error())
}

func TestTransferError_Unwrap(t *testing.T) {
	original := errors.New("原始错误")
	wrapped := Wrap(original, KindUnknown, SeverityMedium, "WRAPPED", "包装")

	assert.Equal(t, original, wrapped.Unwrap())
	assert.True(t, errors.Is(wrapped, original))
	assert.Nil(t, New(KindBusy, SeverityLow, "STANDALONE", "独立错误").Unwrap())
}

func TestTransferError_Is(t *testing.T) {
	err := fmt.Errorf("提交失败: %w", Wrap(errors.New("boom"), KindWalletUnavailable, SeverityMedium, "WALLET_NOT_INJECTED", "x"))
	assert.True(t, errors.Is(err, ErrWalletNotInjected))
	assert.False(t, errors.Is(err, ErrSubmissionInFlight))
}

func TestTransferError_WithContext(t *testing.T) {
	err := New(KindCallReverted, SeverityHigh, "TX", "交易错误").
		WithContext("to", "0xabc").
		WithTxHash("0x01").
		WithComponent("submitter")

	assert.Equal(t, "0xabc", err.Context["to"])
	require.NotNil(t, err.TxHash)
	assert.Equal(t, "0x01", *err.TxHash)
	assert.Equal(t, "submitter", err.Component)
}

func TestKind_JSON(t *testing.T) {
	data, err := json.Marshal(New(KindUserRejected, SeverityLow, "USER_REJECTED", "拒绝"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"UserRejected"`)
	assert.Contains(t, string(data), `"severity":"Low"`)
	assert.Equal(t, "Kind(99)", Kind(99).String())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"用户拒绝", &walletRPCError{code: 4001, msg: "User rejected the request."}, KindUserRejected},
		{"未授权", &walletRPCError{code: 4100, msg: "unauthorized"}, KindWalletUnavailable},
		{"钱包断开", &walletRPCError{code: 4900, msg: "disconnected"}, KindWalletUnavailable},
		{"执行回滚错误码", &walletRPCError{code: 3, msg: "execution reverted: nope"}, KindCallReverted},
		{"执行回滚消息", &walletRPCError{code: -32000, msg: "execution reverted"}, KindCallReverted},
		{"余额不足", &walletRPCError{code: -32603, msg: "insufficient funds for gas * price + value"}, KindCallReverted},
		{"HTTP错误", rpc.HTTPError{StatusCode: 502, Status: "502 Bad Gateway"}, KindNetwork},
		{"超时", context.DeadlineExceeded, KindNetwork},
		{"收据未找到", ethereum.NotFound, KindNetwork},
		{"连接被拒绝", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), KindNetwork},
		{"意外EOF", io.ErrUnexpectedEOF, KindNetwork},
		{"预定义钱包错误", ErrWalletNotInjected, KindWalletUnavailable},
		{"包装后的标签错误", fmt.Errorf("外层: %w", ErrSubmissionInFlight), KindBusy},
		{"无法归类", errors.New("something odd"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
			assert.True(t, IsKind(tt.err, tt.want))
		})
	}

	assert.Nil(t, Classify(nil))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestClassify_PreservesCause(t *testing.T) {
	cause := &walletRPCError{code: 4001, msg: "denied"}
	got := Classify(cause)

	var rpcErr rpc.Error
	require.True(t, errors.As(got, &rpcErr))
	assert.Equal(t, 4001, rpcErr.ErrorCode())
	assert.Equal(t, "USER_REJECTED", got.Code)
}

func TestErrorStats(t *testing.T) {
	stats := NewErrorStats()
	stats.RecordError(New(KindNetwork, SeverityMedium, "A", "a").WithComponent("ledger"))
	stats.RecordError(New(KindNetwork, SeverityMedium, "A", "a").WithComponent("ledger"))
	stats.RecordError(New(KindBusy, SeverityLow, "B", "b"))

	assert.Equal(t, 3, stats.TotalErrors)
	assert.Equal(t, 2, stats.ErrorsByKind[KindNetwork])
	assert.Equal(t, 2, stats.ErrorsByComponent["ledger"])
	assert.Equal(t, "B", stats.LastError.Code)
	assert.InDelta(t, 3.0, stats.GetErrorRate(time.Hour), 0.001)
	assert.Equal(t, 0.0, stats.GetErrorRate(0))

	for i := 0; i < 60; i++ {
		stats.RecordError(New(KindUnknown, SeverityHigh, "C", "c"))
	}
	assert.Len(t, stats.RecentErrors, 50)
}

func TestErrorHandler_HandleError(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	handler := NewErrorHandler(logger)

	var seen []*TransferError
	handler.AddCallback(func(err *TransferError) { seen = append(seen, err) })

	assert.NoError(t, handler.HandleError(context.Background(), "wallet", nil))

	err := handler.HandleError(context.Background(), "wallet", &walletRPCError{code: 4001, msg: "User rejected"})
	require.Error(t, err)

	var te *TransferError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, KindUserRejected, te.Kind)
	assert.Equal(t, "wallet", te.Component)

	require.Len(t, seen, 1)
	assert.Contains(t, buf.String(), `"error_kind":"UserRejected"`)

	stats := handler.GetStats()
	assert.Equal(t, 1, stats.TotalErrors)
	assert.Equal(t, 1, stats.ErrorsByComponent["wallet"])

	handler.ClearStats()
	assert.Equal(t, 0, handler.GetStats().TotalErrors)
}

func TestErrorHandler_CallbackPanic(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	handler := NewErrorHandler(logger)
	handler.AddCallback(func(*TransferError) { panic("boom") })

	assert.NotPanics(t, func() {
		_ = handler.HandleError(context.Background(), "x", errors.New("y"))
	})
}
