package provider_test

import (
	"context"
	stderrors "errors"
	"io"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transferdesk/internal/config"
	"transferdesk/internal/errors"
	"transferdesk/internal/provider"
	"transferdesk/internal/submit"
	"transferdesk/internal/wallet"
	"transferdesk/internal/wallet/mock"
	"transferdesk/pkg/models"
)

const bob = "0x2222222222222222222222222222222222222222"

type countingPrompter struct {
	count int
}

func (p *countingPrompter) PromptInstall(string) { p.count++ }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.GetDefaultConfig()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "counter.db")
	cfg.Contract.Address = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	cfg.Contract.ReceiptPoll = "1ms"
	return cfg
}

func assemble(t *testing.T, cfg *config.Config, w *wallet.Wallet, prompter wallet.Prompter) *provider.Runtime {
	t.Helper()
	logger := quietLogger()
	rt, err := provider.Assemble(cfg, w, prompter, nil, errors.NewErrorHandler(logger), logger)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Counter.Close() })
	return rt
}

func sampleTransfer() models.RawTransfer {
	return models.RawTransfer{
		Sender:    common.HexToAddress("0xABC"),
		Receiver:  common.HexToAddress(bob),
		Amount:    big.NewInt(1e18),
		Message:   "hi",
		Timestamp: big.NewInt(1700000000),
		Keyword:   "gm",
	}
}

func TestInit_ExistingAccount(t *testing.T) {
	backend := mock.NewBackend(sampleTransfer())
	rt := assemble(t, testConfig(t), wallet.New(mock.NewProvider("0xABC"), backend, quietLogger()), nil)
	p := rt.Provider

	require.NoError(t, p.Init(context.Background()))

	assert.Equal(t, "0xABC", p.CurrentAccount())
	assert.Equal(t, 1, backend.ListCalls())
	require.Len(t, p.Transactions(), 1)
	assert.Equal(t, 1.0, p.Transactions()[0].Amount)

	count := p.TransactionCount()
	require.NotNil(t, count)
	assert.Equal(t, uint64(1), *count)

	stored, err := rt.Counter.Load()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, uint64(1), *stored)
}

func TestInit_NoAccounts(t *testing.T) {
	backend := mock.NewBackend()
	rt := assemble(t, testConfig(t), wallet.New(mock.NewProvider(), backend, quietLogger()), nil)

	require.NoError(t, rt.Provider.Init(context.Background()))

	assert.Equal(t, "", rt.Provider.CurrentAccount())
	assert.Equal(t, 0, backend.ListCalls())
}

func TestInit_WalletAbsentKeepsCountUnset(t *testing.T) {
	prompter := &countingPrompter{}
	rt := assemble(t, testConfig(t), wallet.Absent(quietLogger()), prompter)

	require.NoError(t, rt.Provider.Init(context.Background()))

	assert.Nil(t, rt.Provider.TransactionCount())
	assert.Equal(t, 1, prompter.count)
	assert.False(t, rt.Provider.Snapshot().WalletInjected)
}

func TestInit_SeedsStoredCount(t *testing.T) {
	cfg := testConfig(t)
	rt := assemble(t, cfg, wallet.Absent(quietLogger()), &countingPrompter{})
	require.NoError(t, rt.Counter.Store(7))

	require.NoError(t, rt.Provider.Init(context.Background()))

	count := rt.Provider.TransactionCount()
	require.NotNil(t, count)
	assert.Equal(t, uint64(7), *count)
}

func TestInit_CountSyncFailure(t *testing.T) {
	backend := mock.NewBackend()
	backend.CallErr = stderrors.New("boom")
	rt := assemble(t, testConfig(t), wallet.New(mock.NewProvider(), backend, quietLogger()), nil)

	err := rt.Provider.Init(context.Background())
	require.Error(t, err)
	assert.Nil(t, rt.Provider.TransactionCount())
}

func TestConnect_WalletAbsent(t *testing.T) {
	prompter := &countingPrompter{}
	rt := assemble(t, testConfig(t), wallet.Absent(quietLogger()), prompter)

	require.NoError(t, rt.Provider.Connect(context.Background()))
	assert.Equal(t, 1, prompter.count)
	assert.Equal(t, "", rt.Provider.CurrentAccount())
	assert.Equal(t, config.DefaultInstallPrompt, rt.Provider.InstallPrompt())
}

func TestConnect_RefreshesLedger(t *testing.T) {
	backend := mock.NewBackend(sampleTransfer())
	walletProvider := mock.NewProvider()
	walletProvider.RequestAccounts = []string{"0xABC"}
	rt := assemble(t, testConfig(t), wallet.New(walletProvider, backend, quietLogger()), nil)

	require.NoError(t, rt.Provider.Connect(context.Background()))
	assert.Equal(t, "0xABC", rt.Provider.CurrentAccount())
	assert.Equal(t, 1, backend.ListCalls())
}

func TestHandleChange(t *testing.T) {
	rt := assemble(t, testConfig(t), wallet.Absent(quietLogger()), &countingPrompter{})
	p := rt.Provider

	require.NoError(t, p.HandleChange(models.FieldAmount, "0.1"))
	require.NoError(t, p.HandleChange(models.FieldAddressTo, bob))
	assert.Equal(t, "0.1", p.FormData().Amount)
	assert.Equal(t, bob, p.FormData().AddressTo)

	err := p.HandleChange("gasPrice", "1")
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))

	p.SetFormData(models.FormData{Keyword: "k"})
	assert.Equal(t, models.FormData{Keyword: "k"}, p.FormData())
}

func sendForm(p *provider.Provider) {
	p.SetFormData(models.FormData{AddressTo: bob, Amount: "1", Keyword: "gm", Message: "hi"})
}

func TestSendTransaction_ReloadPolicy(t *testing.T) {
	backend := mock.NewBackend()
	rt := assemble(t, testConfig(t), wallet.New(mock.NewProvider("0xABC"), backend, quietLogger()), nil)
	p := rt.Provider
	require.NoError(t, p.Init(context.Background()))

	var loadingDuringWait bool
	backend.OnReceipt = func() {
		loadingDuringWait = p.IsLoading()
		backend.AddTransfer(sampleTransfer())
		backend.OnReceipt = nil
	}

	sendForm(p)
	assert.False(t, p.IsLoading())

	result, err := p.SendTransaction(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.Count)

	assert.True(t, loadingDuringWait)
	assert.False(t, p.IsLoading())
	assert.Equal(t, models.FormData{}, p.FormData())
	assert.Equal(t, "0xABC", p.CurrentAccount())
	assert.Len(t, p.Transactions(), 1)
	assert.Equal(t, submit.StateIdle, p.SubmissionState())

	count := p.TransactionCount()
	require.NotNil(t, count)
	assert.Equal(t, uint64(1), *count)
}

func TestSendTransaction_RefreshPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Submit.AfterSuccess = config.PolicyRefresh
	backend := mock.NewBackend()
	rt := assemble(t, cfg, wallet.New(mock.NewProvider("0xABC"), backend, quietLogger()), nil)
	p := rt.Provider
	require.NoError(t, p.Init(context.Background()))

	sendForm(p)
	_, err := p.SendTransaction(context.Background())
	require.NoError(t, err)

	assert.Equal(t, bob, p.FormData().AddressTo)
	assert.Equal(t, submit.StateDone, p.SubmissionState())
}

func TestSendTransaction_FailureClearsLoading(t *testing.T) {
	walletProvider := mock.NewProvider("0xABC")
	walletProvider.RecordErr = errors.New(errors.KindUserRejected, errors.SeverityLow, "USER_REJECTED", "拒绝")
	rt := assemble(t, testConfig(t), wallet.New(walletProvider, mock.NewBackend(), quietLogger()), nil)
	p := rt.Provider
	require.NoError(t, p.Init(context.Background()))

	sendForm(p)
	_, err := p.SendTransaction(context.Background())
	require.Error(t, err)

	assert.Equal(t, errors.KindUserRejected, errors.KindOf(err))
	assert.False(t, p.IsLoading())
	assert.Equal(t, submit.StateFailed, p.SubmissionState())
	assert.Equal(t, bob, p.FormData().AddressTo)
}

func TestAccountChangeRefreshesOnce(t *testing.T) {
	backend := mock.NewBackend(sampleTransfer())
	walletProvider := mock.NewProvider()
	rt := assemble(t, testConfig(t), wallet.New(walletProvider, backend, quietLogger()), nil)
	require.NoError(t, rt.Provider.Init(context.Background()))
	require.Equal(t, 0, backend.ListCalls())

	walletProvider.SetAccounts("0xDEF")
	assert.True(t, rt.Session.PollOnce(context.Background()))
	assert.Equal(t, 1, backend.ListCalls())
	assert.Equal(t, "0xDEF", rt.Provider.CurrentAccount())

	assert.False(t, rt.Session.PollOnce(context.Background()))
	assert.Equal(t, 1, backend.ListCalls())

	walletProvider.SetAccounts()
	assert.True(t, rt.Session.PollOnce(context.Background()))
	assert.Empty(t, rt.Provider.Transactions())
}

func TestOnAccountChanged_RunsAfterLedger(t *testing.T) {
	backend := mock.NewBackend(sampleTransfer())
	walletProvider := mock.NewProvider("0xABC")
	rt := assemble(t, testConfig(t), wallet.New(walletProvider, backend, quietLogger()), nil)
	require.NoError(t, rt.Provider.Init(context.Background()))
	require.Len(t, rt.Provider.Transactions(), 1)

	var seen []string
	var listed []int
	rt.Provider.OnAccountChanged(func(_ context.Context, account string) {
		seen = append(seen, account)
		listed = append(listed, len(rt.Provider.Transactions()))
	})

	walletProvider.SetAccounts()
	assert.True(t, rt.Session.PollOnce(context.Background()))
	assert.Empty(t, rt.Provider.Transactions())

	walletProvider.SetAccounts("0xDEF")
	assert.True(t, rt.Session.PollOnce(context.Background()))

	assert.Equal(t, []string{"", "0xDEF"}, seen)
	assert.Equal(t, []int{0, 1}, listed)
	assert.Equal(t, 2, backend.ListCalls())
}

func TestRefresh_WalletAbsent(t *testing.T) {
	rt := assemble(t, testConfig(t), wallet.Absent(quietLogger()), &countingPrompter{})
	err := rt.Provider.Refresh(context.Background())
	assert.ErrorIs(t, err, errors.ErrWalletNotInjected)
}
