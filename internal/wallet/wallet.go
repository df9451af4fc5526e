package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"

	"transferdesk/internal/errors"
	"transferdesk/internal/logging"
)

// 钱包请求方法
const (
	MethodAccounts        = "eth_accounts"
	MethodRequestAccounts = "eth_requestAccounts"
	MethodSendTransaction = "eth_sendTransaction"
)

// Provider 注入钱包对象的请求接口，*rpc.Client 满足该接口
type Provider interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// Backend 合约读取与收据查询接口，*ethclient.Client 满足该接口
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// TxRequest eth_sendTransaction 参数
type TxRequest struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
}

// Wallet 注入的钱包对象。provider 为空表示未注入
type Wallet struct {
	provider Provider
	backend  Backend
	client   *rpc.Client
	endpoint string
	logger   *logrus.Logger
}

// New 使用任意 Provider/Backend 创建钱包
func New(provider Provider, backend Backend, logger *logrus.Logger) *Wallet {
	return &Wallet{
		provider: provider,
		backend:  backend,
		logger:   logger,
	}
}

// NewFromRPC 使用 go-ethereum RPC 客户端创建钱包，读操作复用同一连接
func NewFromRPC(client *rpc.Client, endpoint string, logger *logrus.Logger) *Wallet {
	return &Wallet{
		provider: client,
		backend:  ethclient.NewClient(client),
		client:   client,
		endpoint: endpoint,
		logger:   logger,
	}
}

// Absent 未注入的钱包
func Absent(logger *logrus.Logger) *Wallet {
	return &Wallet{logger: logger}
}

// Injected 是否检测到钱包
func (w *Wallet) Injected() bool {
	return w != nil && w.provider != nil
}

// Backend 返回读操作后端
func (w *Wallet) Backend() Backend {
	return w.backend
}

// Client 底层 RPC 连接，未通过 RPC 创建时为 nil
func (w *Wallet) Client() *rpc.Client {
	if w == nil {
		return nil
	}
	return w.client
}

// Endpoint 钱包地址
func (w *Wallet) Endpoint() string {
	return w.endpoint
}

// Accounts 已授权账户
func (w *Wallet) Accounts(ctx context.Context) ([]string, error) {
	return w.accounts(ctx, MethodAccounts)
}

// RequestAccounts 请求用户授权账户
func (w *Wallet) RequestAccounts(ctx context.Context) ([]string, error) {
	return w.accounts(ctx, MethodRequestAccounts)
}

func (w *Wallet) accounts(ctx context.Context, method string) ([]string, error) {
	if !w.Injected() {
		return nil, errors.ErrWalletNotInjected
	}

	var accounts []string
	if err := w.provider.CallContext(ctx, &accounts, method); err != nil {
		return nil, fmt.Errorf("%s 调用失败: %w", method, err)
	}
	logging.NewRPCLogger(w.logger, method, w.endpoint).Debugf("返回 %d 个账户", len(accounts))
	return accounts, nil
}

// SendTransaction 请求钱包签名并广播交易
func (w *Wallet) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	if !w.Injected() {
		return common.Hash{}, errors.ErrWalletNotInjected
	}

	var hash common.Hash
	if err := w.provider.CallContext(ctx, &hash, MethodSendTransaction, req); err != nil {
		return common.Hash{}, fmt.Errorf("%s 调用失败: %w", MethodSendTransaction, err)
	}
	logging.NewRPCLogger(w.logger, MethodSendTransaction, w.endpoint).
		WithField("tx_hash", hash.Hex()).Debug("钱包已广播交易")
	return hash, nil
}

// Close 关闭底层连接
func (w *Wallet) Close() {
	if w != nil && w.client != nil {
		w.client.Close()
	}
}
