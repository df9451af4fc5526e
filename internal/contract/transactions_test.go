package contract_test

import (
	"context"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transferdesk/internal/contract"
	"transferdesk/internal/errors"
	"transferdesk/internal/wallet"
	"transferdesk/internal/wallet/mock"
	"transferdesk/pkg/models"
)

var (
	contractAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	alice        = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob          = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newFactory(provider *mock.Provider, backend *mock.Backend) *contract.Factory {
	return contract.NewFactory(wallet.New(provider, backend, quietLogger()), contractAddr, time.Millisecond, quietLogger())
}

func TestFactory_WalletAbsent(t *testing.T) {
	f := contract.NewFactory(wallet.Absent(quietLogger()), contractAddr, time.Millisecond, quietLogger())

	_, err := f.Build()
	assert.ErrorIs(t, err, errors.ErrWalletNotInjected)
	assert.Equal(t, errors.KindWalletUnavailable, errors.KindOf(err))
}

func TestFactory_FreshHandle(t *testing.T) {
	f := newFactory(mock.NewProvider(), mock.NewBackend())

	h1, err := f.Build()
	require.NoError(t, err)
	h2, err := f.Build()
	require.NoError(t, err)
	assert.NotSame(t, h1, h2)
}

func TestGetAllTransactions(t *testing.T) {
	backend := mock.NewBackend(
		models.RawTransfer{Sender: alice, Receiver: bob, Amount: big.NewInt(1e18), Message: "first", Timestamp: big.NewInt(100), Keyword: "a"},
		models.RawTransfer{Sender: bob, Receiver: alice, Amount: big.NewInt(5e17), Message: "second", Timestamp: big.NewInt(200), Keyword: "b"},
	)
	f := newFactory(mock.NewProvider(), backend)

	transfers, err := f.AllTransactions(context.Background())
	require.NoError(t, err)
	require.Len(t, transfers, 2)

	assert.Equal(t, alice, transfers[0].Sender)
	assert.Equal(t, bob, transfers[0].Receiver)
	assert.Equal(t, "first", transfers[0].Message)
	assert.Equal(t, int64(1e18), transfers[0].Amount.Int64())
	assert.Equal(t, "second", transfers[1].Message)
	assert.Equal(t, int64(200), transfers[1].Timestamp.Int64())
}

func TestGetAllTransactions_Empty(t *testing.T) {
	f := newFactory(mock.NewProvider(), mock.NewBackend())

	transfers, err := f.AllTransactions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, transfers)
}

func TestGetTransactionCount(t *testing.T) {
	backend := mock.NewBackend()
	backend.Count = 42
	f := newFactory(mock.NewProvider(), backend)

	count, err := f.TransactionCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), count)
}

func TestGetTransactionCount_CallError(t *testing.T) {
	backend := mock.NewBackend()
	backend.CallErr = io.ErrUnexpectedEOF
	f := newFactory(mock.NewProvider(), backend)

	_, err := f.TransactionCount(context.Background())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestAddToBlockchain(t *testing.T) {
	provider := mock.NewProvider(alice.Hex())
	f := newFactory(provider, mock.NewBackend())

	h, err := f.Build()
	require.NoError(t, err)

	pending, err := h.AddToBlockchain(context.Background(), alice, bob, big.NewInt(1e18), "hi", "wave")
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, pending.Hash)

	sent := provider.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, alice, sent[0].From)
	require.NotNil(t, sent[0].To)
	assert.Equal(t, contractAddr, *sent[0].To)

	call, err := contract.DecodeRecordCall(sent[0].Data)
	require.NoError(t, err)
	assert.Equal(t, bob, call.Receiver)
	assert.Equal(t, big.NewInt(1e18), call.Amount)
	assert.Equal(t, "hi", call.Message)
	assert.Equal(t, "wave", call.Keyword)
}

func TestDecodeRecordCall_Errors(t *testing.T) {
	_, err := contract.DecodeRecordCall([]byte{0x01})
	assert.Error(t, err)

	countCall, err := contract.ABI().Pack(contract.MethodGetTransactionCount)
	require.NoError(t, err)
	_, err = contract.DecodeRecordCall(countCall)
	assert.Error(t, err)

	_, err = contract.DecodeRecordCall([]byte{0xde, 0xad, 0xbe, 0xef})
	assert.Error(t, err)
}

func TestPendingTx_Wait(t *testing.T) {
	backend := mock.NewBackend()
	backend.PendingPolls = 2
	provider := mock.NewProvider(alice.Hex())
	f := newFactory(provider, backend)

	h, err := f.Build()
	require.NoError(t, err)
	pending, err := h.AddToBlockchain(context.Background(), alice, bob, big.NewInt(1), "", "")
	require.NoError(t, err)

	receipt, err := pending.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	assert.Equal(t, pending.Hash, receipt.TxHash)
}

func TestPendingTx_Reverted(t *testing.T) {
	backend := mock.NewBackend()
	backend.ReceiptStatus = types.ReceiptStatusFailed
	f := newFactory(mock.NewProvider(alice.Hex()), backend)

	h, err := f.Build()
	require.NoError(t, err)
	pending, err := h.AddToBlockchain(context.Background(), alice, bob, big.NewInt(1), "", "")
	require.NoError(t, err)

	_, err = pending.Wait(context.Background())
	assert.Equal(t, errors.KindCallReverted, errors.KindOf(err))
}

func TestPendingTx_ContextCanceled(t *testing.T) {
	backend := mock.NewBackend()
	backend.PendingPolls = 1 << 30
	f := newFactory(mock.NewProvider(alice.Hex()), backend)

	h, err := f.Build()
	require.NoError(t, err)
	pending, err := h.AddToBlockchain(context.Background(), alice, bob, big.NewInt(1), "", "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pending.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
