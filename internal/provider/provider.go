package provider

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"transferdesk/internal/config"
	"transferdesk/internal/contract"
	"transferdesk/internal/counter"
	"transferdesk/internal/errors"
	"transferdesk/internal/ledger"
	"transferdesk/internal/metrics"
	"transferdesk/internal/submit"
	"transferdesk/internal/wallet"
	"transferdesk/pkg/models"
)

// Deps 编排器依赖
type Deps struct {
	Session    *wallet.Session
	Factory    *contract.Factory
	Ledger     *ledger.Reader
	Counter    *counter.Cache
	Submitter  *submit.Submitter
	ErrHandler *errors.ErrorHandler
	// AfterSuccess 提交成功后的策略，reload 或 refresh
	AfterSuccess  string
	WatchInterval time.Duration
	Logger        *logrus.Logger
}

// Provider 面向视图层的状态持有者
type Provider struct {
	session    *wallet.Session
	factory    *contract.Factory
	ledger     *ledger.Reader
	counter    *counter.Cache
	submitter  *submit.Submitter
	errHandler *errors.ErrorHandler
	policy     string
	interval   time.Duration
	logger     *logrus.Entry

	mu      sync.RWMutex
	form    models.FormData
	loading bool
	count   *uint64

	onAccountChanged func(ctx context.Context, account string)
}

// Snapshot 视图层读取的完整状态
type Snapshot struct {
	CurrentAccount   string                     `json:"currentAccount"`
	FormData         models.FormData            `json:"formData"`
	Transactions     []models.TransactionRecord `json:"transactions"`
	IsLoading        bool                       `json:"isLoading"`
	TransactionCount *uint64                    `json:"transactionCount"`
	Submission       submit.State               `json:"submissionState"`
	WalletInjected   bool                       `json:"walletInjected"`
	FetchedAt        time.Time                  `json:"fetchedAt"`
}

// OnAccountChanged 在账本处理完账户变化之后调用 fn
func (p *Provider) OnAccountChanged(fn func(ctx context.Context, account string)) {
	p.mu.Lock()
	p.onAccountChanged = fn
	p.mu.Unlock()
}

func (p *Provider) accountHook() func(ctx context.Context, account string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.onAccountChanged
}

// New 创建编排器并挂接各组件的回调
func New(deps Deps) *Provider {
	policy := deps.AfterSuccess
	if policy == "" {
		policy = config.PolicyReload
	}
	p := &Provider{
		session:    deps.Session,
		factory:    deps.Factory,
		ledger:     deps.Ledger,
		counter:    deps.Counter,
		submitter:  deps.Submitter,
		errHandler: deps.ErrHandler,
		policy:     policy,
		interval:   deps.WatchInterval,
		logger:     deps.Logger.WithField("component", "provider"),
	}

	// 已有授权账户时刷新一次账本
	p.session.OnConnected(func(ctx context.Context) {
		_ = p.ledger.Refresh(ctx, p.session.Account())
	})
	p.session.OnAccountChanged(func(ctx context.Context, account string) {
		if account == "" {
			p.ledger.Clear()
		} else {
			_ = p.ledger.Refresh(ctx, account)
		}
		if fn := p.accountHook(); fn != nil {
			fn(ctx, account)
		}
	})
	p.submitter.OnStateChange(func(s submit.State) {
		p.setLoading(s == submit.StateAwaitingConfirmation)
	})

	return p
}

func (p *Provider) setLoading(loading bool) {
	p.mu.Lock()
	p.loading = loading
	p.mu.Unlock()
	if loading {
		metrics.Loading.Set(1)
	} else {
		metrics.Loading.Set(0)
	}
}

func (p *Provider) setCount(count *uint64) {
	p.mu.Lock()
	p.count = count
	p.mu.Unlock()
}

// Init 一次性初始化：读取本地计数、检查已有连接、从链上同步计数。
// 各步骤独立执行，返回第一个错误。
func (p *Provider) Init(ctx context.Context) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	count, err := p.counter.Load()
	if err != nil {
		p.logger.WithError(err).Warn("读取本地计数失败")
	}
	p.setCount(count)

	keep(p.session.CheckExistingConnection(ctx))
	keep(p.syncCount(ctx))

	return firstErr
}

// syncCount 从链上同步计数，钱包未注入时跳过
func (p *Provider) syncCount(ctx context.Context) error {
	if !p.session.Wallet().Injected() {
		return nil
	}
	count, err := p.counter.SyncFromChain(ctx, p.factory)
	if err != nil {
		return err
	}
	p.setCount(&count)
	return nil
}

// Refresh 手动刷新账本与计数
func (p *Provider) Refresh(ctx context.Context) error {
	if !p.session.Wallet().Injected() {
		p.session.PromptInstall()
		return errors.ErrWalletNotInjected
	}

	var firstErr error
	if account := p.session.Account(); account != "" {
		firstErr = p.ledger.Refresh(ctx, account)
	}
	if err := p.syncCount(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Reload 清空全部界面状态后重新初始化
func (p *Provider) Reload(ctx context.Context) error {
	p.mu.Lock()
	p.form = models.FormData{}
	p.count = nil
	p.mu.Unlock()

	p.ledger.Clear()
	p.session.Reset()
	p.submitter.Reset()

	return p.Init(ctx)
}

// Start 启动账户监听，直到 ctx 结束
func (p *Provider) Start(ctx context.Context) {
	go p.session.Watch(ctx, p.interval)
}

// Connect 请求钱包授权，成功后刷新账本
func (p *Provider) Connect(ctx context.Context) error {
	if err := p.session.Connect(ctx); err != nil {
		return err
	}
	account := p.session.Account()
	if account == "" {
		return nil
	}
	_ = p.ledger.Refresh(ctx, account)
	return nil
}

// HandleChange 修改单个表单字段
func (p *Provider) HandleChange(name, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.form.Set(name, value) {
		return errors.New(errors.KindInvalidInput, errors.SeverityLow, "UNKNOWN_FIELD", "未知的表单字段").
			WithContext("field", name)
	}
	return nil
}

// SetFormData 整体替换表单
func (p *Provider) SetFormData(form models.FormData) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.form = form
}

// FormData 当前表单
func (p *Provider) FormData() models.FormData {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.form
}

// SendTransaction 提交当前表单，成功后按策略刷新状态
func (p *Provider) SendTransaction(ctx context.Context) (*submit.Result, error) {
	result, err := p.submitter.Submit(ctx, p.FormData())
	if err != nil {
		return nil, err
	}

	count := result.Count
	p.setCount(&count)

	switch p.policy {
	case config.PolicyRefresh:
		err = p.Refresh(ctx)
	default:
		err = p.Reload(ctx)
	}
	if err != nil {
		p.logger.WithError(err).Warn("提交后刷新状态失败")
	}
	return result, nil
}

// Transactions 当前记录列表
func (p *Provider) Transactions() []models.TransactionRecord {
	return p.ledger.Transactions()
}

// IsLoading 是否正在等待确认
func (p *Provider) IsLoading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading
}

// TransactionCount 记录数，从未存储过时为 nil
func (p *Provider) TransactionCount() *uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.count == nil {
		return nil
	}
	c := *p.count
	return &c
}

// CurrentAccount 当前账户
func (p *Provider) CurrentAccount() string {
	return p.session.Account()
}

// SubmissionState 提交状态
func (p *Provider) SubmissionState() submit.State {
	return p.submitter.State()
}

// WalletInjected 是否检测到钱包
func (p *Provider) WalletInjected() bool {
	return p.session.Wallet().Injected()
}

// InstallPrompt 钱包未注入时展示给用户的提示
func (p *Provider) InstallPrompt() string {
	return p.session.Prompt()
}

// Snapshot 返回完整状态
func (p *Provider) Snapshot() Snapshot {
	p.mu.RLock()
	form := p.form
	loading := p.loading
	p.mu.RUnlock()

	return Snapshot{
		CurrentAccount:   p.session.Account(),
		FormData:         form,
		Transactions:     p.ledger.Transactions(),
		IsLoading:        loading,
		TransactionCount: p.TransactionCount(),
		Submission:       p.submitter.State(),
		WalletInjected:   p.session.Wallet().Injected(),
		FetchedAt:        p.ledger.FetchedAt(),
	}
}
