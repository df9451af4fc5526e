package provider

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"

	"transferdesk/internal/config"
	"transferdesk/internal/contract"
	"transferdesk/internal/counter"
	"transferdesk/internal/errors"
	"transferdesk/internal/ledger"
	"transferdesk/internal/output"
	"transferdesk/internal/retry"
	"transferdesk/internal/submit"
	"transferdesk/internal/validation"
	"transferdesk/internal/wallet"
)

// Runtime 按配置组装好的组件
type Runtime struct {
	Provider   *Provider
	Session    *wallet.Session
	Wallet     *wallet.Wallet
	Counter    *counter.Cache
	Output     output.Output
	ErrHandler *errors.ErrorHandler
}

// Assemble 根据配置组装编排器。out 为 nil 时不输出事件
func Assemble(cfg *config.Config, w *wallet.Wallet, prompter wallet.Prompter, out output.Output, errHandler *errors.ErrorHandler, logger *logrus.Logger) (*Runtime, error) {
	if out == nil {
		out = output.NopOutput{}
	}

	gas, err := hexutil.DecodeUint64(cfg.Contract.TransferGas)
	if err != nil {
		return nil, fmt.Errorf("解析 transfer_gas 失败: %w", err)
	}

	cache, err := counter.NewCache(cfg.Storage.Path, cfg.Storage.CountKey, errHandler, logger)
	if err != nil {
		return nil, err
	}

	session := wallet.NewSession(w, prompter, cfg.Wallet.InstallPrompt, errHandler, logger)
	factory := contract.NewFactory(w, common.HexToAddress(cfg.Contract.Address), cfg.Contract.ReceiptPollDuration(), logger)
	reader := ledger.NewReader(factory, retry.NewRetrier(retry.DefaultRetryConfig, logger), errHandler, out, logger)

	submitter := submit.NewSubmitter(session, factory, cache, validation.NewValidator(logger, false), errHandler, out,
		submit.Options{
			TransferGas:    hexutil.Uint64(gas),
			ConfirmTimeout: cfg.Submit.ConfirmTimeoutDuration(),
		}, logger)

	p := New(Deps{
		Session:       session,
		Factory:       factory,
		Ledger:        reader,
		Counter:       cache,
		Submitter:     submitter,
		ErrHandler:    errHandler,
		AfterSuccess:  cfg.Submit.AfterSuccess,
		WatchInterval: cfg.Wallet.WatchIntervalDuration(),
		Logger:        logger,
	})

	return &Runtime{
		Provider:   p,
		Session:    session,
		Wallet:     w,
		Counter:    cache,
		Output:     out,
		ErrHandler: errHandler,
	}, nil
}
