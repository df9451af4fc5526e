package submit

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"transferdesk/internal/contract"
	"transferdesk/internal/errors"
	"transferdesk/internal/logging"
	"transferdesk/internal/metrics"
	"transferdesk/internal/output"
	"transferdesk/internal/validation"
	"transferdesk/internal/wallet"
	"transferdesk/pkg/models"
	"transferdesk/pkg/units"
)

// DefaultTransferGas 原生转账的 gas 上限 (21000)
const DefaultTransferGas = hexutil.Uint64(0x5208)

// State 提交状态
type State int

const (
	StateIdle State = iota
	StateAwaitingSignature
	StateAwaitingConfirmation
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:                 "Idle",
	StateAwaitingSignature:    "AwaitingSignature",
	StateAwaitingConfirmation: "AwaitingConfirmation",
	StateDone:                 "Done",
	StateFailed:               "Failed",
}

// String 返回状态名
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText 使 JSON 输出使用状态名
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// InFlight 是否有提交正在进行
func (s State) InFlight() bool {
	return s == StateAwaitingSignature || s == StateAwaitingConfirmation
}

// CountStore 记录数的唯一写入路径
type CountStore interface {
	Store(count uint64) error
}

// Options 提交器配置
type Options struct {
	TransferGas    hexutil.Uint64
	ConfirmTimeout time.Duration
}

// Result 提交结果
type Result struct {
	ID           string      `json:"id"`
	TransferHash common.Hash `json:"transferHash"`
	RecordHash   common.Hash `json:"recordHash"`
	BlockNumber  uint64      `json:"blockNumber"`
	Count        uint64      `json:"transactionCount"`
}

// Submitter 交易提交器：原生转账、合约记录、等待确认、重新计数
type Submitter struct {
	session    *wallet.Session
	factory    *contract.Factory
	counter    CountStore
	validator  *validation.Validator
	errHandler *errors.ErrorHandler
	out        output.Output
	opts       Options
	logger     *logrus.Logger

	mu      sync.Mutex
	state   State
	lastErr error

	onState func(State)
}

// NewSubmitter 创建提交器
func NewSubmitter(
	session *wallet.Session,
	factory *contract.Factory,
	counter CountStore,
	validator *validation.Validator,
	errHandler *errors.ErrorHandler,
	out output.Output,
	opts Options,
	logger *logrus.Logger,
) *Submitter {
	if opts.TransferGas == 0 {
		opts.TransferGas = DefaultTransferGas
	}
	if out == nil {
		out = output.NopOutput{}
	}
	return &Submitter{
		session:    session,
		factory:    factory,
		counter:    counter,
		validator:  validator,
		errHandler: errHandler,
		out:        out,
		opts:       opts,
		logger:     logger,
	}
}

// OnStateChange 状态变化回调，在提交协程中同步调用
func (s *Submitter) OnStateChange(fn func(State)) {
	s.onState = fn
}

// State 当前状态
func (s *Submitter) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError 最近一次失败的错误
func (s *Submitter) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Reset 回到空闲状态，提交进行中时不生效
func (s *Submitter) Reset() {
	s.mu.Lock()
	if s.state.InFlight() {
		s.mu.Unlock()
		return
	}
	s.state = StateIdle
	s.lastErr = nil
	s.mu.Unlock()
	s.notify(StateIdle)
}

func (s *Submitter) admit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.InFlight() {
		return errors.ErrSubmissionInFlight
	}
	s.state = StateAwaitingSignature
	s.lastErr = nil
	return nil
}

func (s *Submitter) transition(state State, err error) {
	s.mu.Lock()
	s.state = state
	if err != nil {
		s.lastErr = err
	}
	s.mu.Unlock()
	s.notify(state)
}

func (s *Submitter) notify(state State) {
	if s.onState != nil {
		s.onState(state)
	}
}

// Submit 按顺序执行一次完整提交。任一步失败后不再执行后续步骤，也不回滚已完成的转账
func (s *Submitter) Submit(ctx context.Context, form models.FormData) (*Result, error) {
	if !s.session.Wallet().Injected() {
		s.session.PromptInstall()
		return nil, errors.ErrWalletNotInjected
	}

	if err := s.admit(); err != nil {
		metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeBusy).Inc()
		return nil, s.errHandler.HandleError(ctx, "submitter", err)
	}
	s.notify(StateAwaitingSignature)

	id := uuid.NewString()
	from := s.session.Account()
	log := logging.NewSubmissionLogger(s.logger, id, from, form.AddressTo)

	ev := &models.SubmissionEvent{
		ID:      id,
		From:    from,
		To:      form.AddressTo,
		Keyword: form.Keyword,
		Message: form.Message,
	}

	result, err := s.run(ctx, form, from, ev, log)
	if err != nil {
		tagged := s.errHandler.HandleError(ctx, "submitter", err)
		s.transition(StateFailed, tagged)

		ev.Stage = models.StageFailed
		ev.ErrorKind = errors.KindOf(tagged).String()
		ev.Error = tagged.Error()
		s.publish(ev, log)

		metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return nil, tagged
	}
	result.ID = id

	s.transition(StateDone, nil)
	metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return result, nil
}

func (s *Submitter) run(ctx context.Context, form models.FormData, from string, ev *models.SubmissionEvent, log *logrus.Entry) (*Result, error) {
	transfer, err := s.validator.Parse(&form)
	if err != nil {
		return nil, err
	}
	ev.AmountWei = transfer.Amount.String()

	if from == "" {
		return nil, errors.ErrNoAccount
	}
	fromAddr := common.HexToAddress(from)

	// 原生转账
	gas := s.opts.TransferGas
	transferHash, err := s.session.Wallet().SendTransaction(ctx, wallet.TxRequest{
		From:  fromAddr,
		To:    &transfer.To,
		Gas:   &gas,
		Value: (*hexutil.Big)(new(big.Int).Set(transfer.Amount)),
	})
	if err != nil {
		return nil, err
	}
	ev.TransferHash = transferHash.Hex()
	log.WithFields(logrus.Fields{
		"tx_hash": transferHash.Hex(),
		"amount":  units.FormatEther(transfer.Amount),
	}).Info("原生转账已提交")

	// 合约记录
	handle, err := s.factory.Build()
	if err != nil {
		return nil, err
	}
	pending, err := handle.AddToBlockchain(ctx, fromAddr, transfer.To, transfer.Amount, transfer.Message, transfer.Keyword)
	if err != nil {
		return nil, err
	}
	ev.RecordHash = pending.Hash.Hex()
	ev.Stage = models.StageSubmitted
	s.publish(ev, log)

	// 等待确认
	s.transition(StateAwaitingConfirmation, nil)
	log.Infof("Loading - %s", pending.Hash.Hex())

	waitCtx := ctx
	if s.opts.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.opts.ConfirmTimeout)
		defer cancel()
	}

	started := time.Now()
	receipt, err := pending.Wait(waitCtx)
	metrics.ConfirmationLatency.Observe(time.Since(started).Seconds())
	if err != nil {
		return nil, err
	}
	log.Infof("Success - %s", pending.Hash.Hex())

	// 重新计数
	count, err := handle.GetTransactionCount(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.counter.Store(count); err != nil {
		return nil, err
	}

	result := &Result{
		TransferHash: transferHash,
		RecordHash:   pending.Hash,
		Count:        count,
	}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}

	ev.Stage = models.StageConfirmed
	ev.BlockNumber = result.BlockNumber
	s.publish(ev, log)

	return result, nil
}

func (s *Submitter) publish(ev *models.SubmissionEvent, log *logrus.Entry) {
	ev.Time = time.Now()
	cp := *ev
	if err := s.out.WriteSubmission(&cp); err != nil {
		log.WithError(err).Warn("输出提交事件失败")
	}
}
