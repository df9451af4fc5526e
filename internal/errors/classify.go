package errors

import (
	"context"
	stderrors "errors"
	"net"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/rpc"
)

// EIP-1193 / JSON-RPC 错误码
const (
	CodeUserRejected       = 4001
	CodeUnauthorized       = 4100
	CodeUnsupportedMethod  = 4200
	CodeDisconnected       = 4900
	CodeChainDisconnected  = 4901
	CodeExecutionReverted  = 3
	CodeInternalRPCFailure = -32603
)

// Classify 根据原始失败推导错误种类并返回带标签的错误。
// 已经带标签的错误原样返回。
func Classify(err error) *TransferError {
	if err == nil {
		return nil
	}

	var te *TransferError
	if stderrors.As(err, &te) {
		return te
	}

	kind, code := classifyCause(err)
	return Wrap(err, kind, severityFor(kind), code, messageFor(kind))
}

// KindOf 返回错误的种类，nil 返回 KindUnknown
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	return Classify(err).Kind
}

// IsKind 判断错误是否属于指定种类
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func classifyCause(err error) (Kind, string) {
	var rpcErr rpc.Error
	if stderrors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case CodeUserRejected:
			return KindUserRejected, "USER_REJECTED"
		case CodeUnauthorized, CodeUnsupportedMethod, CodeDisconnected, CodeChainDisconnected:
			return KindWalletUnavailable, "WALLET_UNAVAILABLE"
		case CodeExecutionReverted:
			return KindCallReverted, "EXECUTION_REVERTED"
		}
		if isRevertMessage(rpcErr.Error()) {
			return KindCallReverted, "EXECUTION_REVERTED"
		}
	}

	var httpErr rpc.HTTPError
	if stderrors.As(err, &httpErr) {
		return KindNetwork, "HTTP_ERROR"
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return KindNetwork, "TIMEOUT"
	}
	if stderrors.Is(err, context.Canceled) {
		return KindNetwork, "CANCELED"
	}
	if stderrors.Is(err, ethereum.NotFound) {
		return KindNetwork, "NOT_FOUND"
	}
	if stderrors.Is(err, syscall.ECONNREFUSED) || stderrors.Is(err, syscall.ECONNRESET) {
		return KindNetwork, "CONNECTION_FAILED"
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return KindNetwork, "NETWORK_ERROR"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case isRevertMessage(msg):
		return KindCallReverted, "EXECUTION_REVERTED"
	case strings.Contains(msg, "user rejected") || strings.Contains(msg, "user denied"):
		return KindUserRejected, "USER_REJECTED"
	case strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.HasSuffix(msg, "eof"):
		return KindNetwork, "CONNECTION_FAILED"
	}

	return KindUnknown, "UNKNOWN"
}

func isRevertMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "execution reverted") ||
		strings.Contains(msg, "insufficient funds") ||
		strings.Contains(msg, "out of gas")
}

func severityFor(kind Kind) ErrorSeverity {
	switch kind {
	case KindInvalidInput, KindBusy, KindUserRejected:
		return SeverityLow
	case KindNetwork, KindWalletUnavailable:
		return SeverityMedium
	default:
		return SeverityHigh
	}
}

func messageFor(kind Kind) string {
	switch kind {
	case KindWalletUnavailable:
		return "钱包不可用"
	case KindUserRejected:
		return "用户拒绝了请求"
	case KindCallReverted:
		return "合约调用被回滚"
	case KindNetwork:
		return "网络请求失败"
	case KindInvalidInput:
		return "输入无效"
	case KindBusy:
		return "操作正在进行"
	default:
		return "未知错误"
	}
}
