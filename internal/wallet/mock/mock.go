package mock

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"transferdesk/internal/contract"
	"transferdesk/internal/wallet"
	"transferdesk/pkg/models"
)

// Provider 可编排的注入钱包
type Provider struct {
	mu sync.Mutex

	Accounts        []string
	AccountsErr     error
	RequestAccounts []string
	RequestErr      error
	// TransferErr 原生转账 (无 data) 的错误
	TransferErr error
	// RecordErr 合约调用 (带 data) 的错误
	RecordErr error

	sent  []wallet.TxRequest
	calls []string
	nonce uint64
}

// NewProvider 创建返回指定账户的钱包
func NewProvider(accounts ...string) *Provider {
	return &Provider{
		Accounts:        accounts,
		RequestAccounts: accounts,
	}
}

// SetAccounts 修改已授权账户
func (p *Provider) SetAccounts(accounts ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Accounts = accounts
}

// CallContext 实现 wallet.Provider
func (p *Provider) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, method)

	switch method {
	case wallet.MethodAccounts:
		if p.AccountsErr != nil {
			return p.AccountsErr
		}
		*result.(*[]string) = append([]string(nil), p.Accounts...)
		return nil
	case wallet.MethodRequestAccounts:
		if p.RequestErr != nil {
			return p.RequestErr
		}
		*result.(*[]string) = append([]string(nil), p.RequestAccounts...)
		return nil
	case wallet.MethodSendTransaction:
		if len(args) != 1 {
			return errors.New("invalid params")
		}
		req, ok := args[0].(wallet.TxRequest)
		if !ok {
			return fmt.Errorf("unexpected params %T", args[0])
		}
		p.sent = append(p.sent, req)
		if len(req.Data) == 0 && p.TransferErr != nil {
			return p.TransferErr
		}
		if len(req.Data) > 0 && p.RecordErr != nil {
			return p.RecordErr
		}
		p.nonce++
		*result.(*common.Hash) = common.BigToHash(new(big.Int).SetUint64(p.nonce))
		return nil
	default:
		return fmt.Errorf("method %s not supported", method)
	}
}

// Sent 已发送的交易请求
func (p *Provider) Sent() []wallet.TxRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]wallet.TxRequest(nil), p.sent...)
}

// RecordCalls 带 data 的合约调用次数
func (p *Provider) RecordCalls() int {
	n := 0
	for _, req := range p.Sent() {
		if len(req.Data) > 0 {
			n++
		}
	}
	return n
}

// Records 解码后的合约记录调用
func (p *Provider) Records() []*contract.RecordCall {
	var calls []*contract.RecordCall
	for _, req := range p.Sent() {
		if len(req.Data) == 0 {
			continue
		}
		if call, err := contract.DecodeRecordCall(req.Data); err == nil {
			calls = append(calls, call)
		}
	}
	return calls
}

// CallCount 某方法的调用次数
func (p *Provider) CallCount(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.calls {
		if m == method {
			n++
		}
	}
	return n
}

// Backend 可编排的合约后端
type Backend struct {
	mu sync.Mutex

	Transfers []models.RawTransfer
	Count     uint64
	CallErr   error

	ReceiptStatus uint64
	ReceiptErr    error
	// PendingPolls 收据返回 NotFound 的次数
	PendingPolls int
	// OnReceipt 每次查询收据时调用
	OnReceipt func()

	listCalls  int
	countCalls int
}

// NewBackend 创建合约后端
func NewBackend(transfers ...models.RawTransfer) *Backend {
	return &Backend{
		Transfers:     transfers,
		Count:         uint64(len(transfers)),
		ReceiptStatus: types.ReceiptStatusSuccessful,
	}
}

// AddTransfer 追加一条链上记录
func (b *Backend) AddTransfer(t models.RawTransfer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Transfers = append(b.Transfers, t)
	b.Count++
}

// CallContract 实现 wallet.Backend
func (b *Backend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(call.Data) < 4 {
		return nil, errors.New("missing selector")
	}

	parsed := contract.ABI()
	selector := call.Data[:4]

	switch {
	case bytes.Equal(selector, parsed.Methods[contract.MethodGetAllTransactions].ID):
		b.listCalls++
		if b.CallErr != nil {
			return nil, b.CallErr
		}
		transfers := b.Transfers
		if transfers == nil {
			transfers = []models.RawTransfer{}
		}
		return parsed.Methods[contract.MethodGetAllTransactions].Outputs.Pack(transfers)
	case bytes.Equal(selector, parsed.Methods[contract.MethodGetTransactionCount].ID):
		b.countCalls++
		if b.CallErr != nil {
			return nil, b.CallErr
		}
		return parsed.Methods[contract.MethodGetTransactionCount].Outputs.Pack(new(big.Int).SetUint64(b.Count))
	default:
		return nil, fmt.Errorf("unknown selector %x", selector)
	}
}

// TransactionReceipt 实现 wallet.Backend
func (b *Backend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	hook := b.OnReceipt
	b.mu.Unlock()
	if hook != nil {
		hook()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ReceiptErr != nil {
		return nil, b.ReceiptErr
	}
	if b.PendingPolls > 0 {
		b.PendingPolls--
		return nil, ethereum.NotFound
	}
	return &types.Receipt{
		Status:      b.ReceiptStatus,
		TxHash:      txHash,
		BlockNumber: big.NewInt(1),
	}, nil
}

// ListCalls getAllTransactions 调用次数
func (b *Backend) ListCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listCalls
}

// CountCalls getTransactionCount 调用次数
func (b *Backend) CountCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.countCalls
}
