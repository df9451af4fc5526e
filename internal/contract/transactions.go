package contract

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"transferdesk/internal/errors"
	"transferdesk/internal/wallet"
	"transferdesk/pkg/models"
)

// Factory 合约句柄工厂，每次调用都创建新的句柄
type Factory struct {
	wallet  *wallet.Wallet
	address common.Address
	poll    time.Duration
	logger  *logrus.Logger
}

// NewFactory 创建合约句柄工厂
func NewFactory(w *wallet.Wallet, address common.Address, poll time.Duration, logger *logrus.Logger) *Factory {
	if poll <= 0 {
		poll = time.Second
	}
	return &Factory{
		wallet:  w,
		address: address,
		poll:    poll,
		logger:  logger,
	}
}

// Address 合约地址
func (f *Factory) Address() common.Address {
	return f.address
}

// Build 创建绑定到注入钱包的合约句柄
func (f *Factory) Build() (*Transactions, error) {
	if !f.wallet.Injected() {
		return nil, errors.ErrWalletNotInjected
	}
	return &Transactions{
		address: f.address,
		abi:     parsedABI,
		wallet:  f.wallet,
		backend: f.wallet.Backend(),
		poll:    f.poll,
		logger:  f.logger.WithFields(logrus.Fields{"component": "contract", "address": f.address.Hex()}),
	}, nil
}

// TransactionCount 使用新句柄读取链上记录数
func (f *Factory) TransactionCount(ctx context.Context) (uint64, error) {
	h, err := f.Build()
	if err != nil {
		return 0, err
	}
	return h.GetTransactionCount(ctx)
}

// AllTransactions 使用新句柄读取全部链上记录
func (f *Factory) AllTransactions(ctx context.Context) ([]models.RawTransfer, error) {
	h, err := f.Build()
	if err != nil {
		return nil, err
	}
	return h.GetAllTransactions(ctx)
}

// Transactions 转账记录合约句柄
type Transactions struct {
	address common.Address
	abi     abi.ABI
	wallet  *wallet.Wallet
	backend wallet.Backend
	poll    time.Duration
	logger  *logrus.Entry
}

func (t *Transactions) call(ctx context.Context, method string) ([]interface{}, error) {
	data, err := t.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("打包 %s 失败: %w", method, err)
	}

	out, err := t.backend.CallContract(ctx, ethereum.CallMsg{To: &t.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("调用 %s 失败: %w", method, err)
	}

	values, err := t.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("解析 %s 返回值失败: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s 没有返回值", method)
	}
	return values, nil
}

// GetAllTransactions 读取合约中的全部转账记录，保持合约顺序
func (t *Transactions) GetAllTransactions(ctx context.Context) ([]models.RawTransfer, error) {
	values, err := t.call(ctx, MethodGetAllTransactions)
	if err != nil {
		return nil, err
	}
	transfers := *abi.ConvertType(values[0], new([]models.RawTransfer)).(*[]models.RawTransfer)
	return transfers, nil
}

// GetTransactionCount 读取合约记录数
func (t *Transactions) GetTransactionCount(ctx context.Context) (uint64, error) {
	values, err := t.call(ctx, MethodGetTransactionCount)
	if err != nil {
		return 0, err
	}
	count, ok := values[0].(*big.Int)
	if !ok || !count.IsUint64() {
		return 0, fmt.Errorf("无效的记录数: %v", values[0])
	}
	return count.Uint64(), nil
}

// AddToBlockchain 通过钱包发送记录交易
func (t *Transactions) AddToBlockchain(ctx context.Context, from, receiver common.Address, amount *big.Int, message, keyword string) (*PendingTx, error) {
	data, err := t.abi.Pack(MethodAddToBlockchain, receiver, amount, message, keyword)
	if err != nil {
		return nil, fmt.Errorf("打包 %s 失败: %w", MethodAddToBlockchain, err)
	}

	hash, err := t.wallet.SendTransaction(ctx, wallet.TxRequest{
		From: from,
		To:   &t.address,
		Data: data,
	})
	if err != nil {
		return nil, err
	}

	return &PendingTx{
		Hash:    hash,
		backend: t.backend,
		poll:    t.poll,
	}, nil
}

// PendingTx 已广播待确认的交易
type PendingTx struct {
	Hash    common.Hash
	backend wallet.Backend
	poll    time.Duration
}

// Wait 轮询收据直到交易被打包。执行失败返回回滚错误
func (p *PendingTx) Wait(ctx context.Context) (*types.Receipt, error) {
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for {
		receipt, err := p.backend.TransactionReceipt(ctx, p.Hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, errors.Wrap(
					fmt.Errorf("交易 %s 状态为失败", p.Hash.Hex()),
					errors.KindCallReverted, errors.SeverityHigh, "TX_REVERTED", "交易执行失败",
				).WithTxHash(p.Hash.Hex())
			}
			return receipt, nil
		case err != nil && err != ethereum.NotFound:
			return nil, fmt.Errorf("查询交易收据失败: %w", err)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
