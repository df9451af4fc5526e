package wallet

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"transferdesk/internal/errors"
)

// Session 钱包会话，维护当前账户
type Session struct {
	wallet     *Wallet
	prompter   Prompter
	prompt     string
	errHandler *errors.ErrorHandler
	logger     *logrus.Entry

	mu      sync.RWMutex
	account string

	onConnected      func(ctx context.Context)
	onAccountChanged func(ctx context.Context, account string)
}

// NewSession 创建钱包会话
func NewSession(w *Wallet, prompter Prompter, prompt string, errHandler *errors.ErrorHandler, logger *logrus.Logger) *Session {
	if prompter == nil {
		prompter = &LogPrompter{Logger: logger}
	}
	return &Session{
		wallet:     w,
		prompter:   prompter,
		prompt:     prompt,
		errHandler: errHandler,
		logger:     logger.WithField("component", "wallet_session"),
	}
}

// OnConnected 已有授权账户时调用，一次检查只触发一次
func (s *Session) OnConnected(fn func(ctx context.Context)) {
	s.onConnected = fn
}

// OnAccountChanged 账户变化时调用
func (s *Session) OnAccountChanged(fn func(ctx context.Context, account string)) {
	s.onAccountChanged = fn
}

// Wallet 返回底层钱包
func (s *Session) Wallet() *Wallet {
	return s.wallet
}

// Account 当前账户，未连接时为空
func (s *Session) Account() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

func (s *Session) setAccount(account string) {
	s.mu.Lock()
	s.account = account
	s.mu.Unlock()
}

// Reset 清除当前账户
func (s *Session) Reset() {
	s.setAccount("")
}

// Prompt 安装提示文本
func (s *Session) Prompt() string {
	return s.prompt
}

// PromptInstall 提示用户安装钱包
func (s *Session) PromptInstall() {
	s.prompter.PromptInstall(s.prompt)
}

// CheckExistingConnection 读取已授权账户，不弹出授权请求
func (s *Session) CheckExistingConnection(ctx context.Context) error {
	if !s.wallet.Injected() {
		s.PromptInstall()
		return nil
	}

	accounts, err := s.wallet.Accounts(ctx)
	if err != nil {
		return s.errHandler.HandleError(ctx, "wallet_session", err)
	}

	if len(accounts) == 0 {
		s.logger.Info("No accounts found")
		return nil
	}

	s.setAccount(accounts[0])
	s.logger.WithField("account", accounts[0]).Info("检测到已授权账户")

	if s.onConnected != nil {
		s.onConnected(ctx)
	}
	return nil
}

// Connect 请求用户授权并设置当前账户
func (s *Session) Connect(ctx context.Context) error {
	if !s.wallet.Injected() {
		s.PromptInstall()
		return nil
	}

	accounts, err := s.wallet.RequestAccounts(ctx)
	if err != nil {
		return s.errHandler.HandleError(ctx, "wallet_session", err)
	}
	if len(accounts) == 0 {
		return s.errHandler.HandleError(ctx, "wallet_session", errors.ErrNoAccount)
	}

	s.setAccount(accounts[0])
	s.logger.WithField("account", accounts[0]).Info("钱包已连接")
	return nil
}

// applyAccounts 处理账户列表变化，返回是否变化
func (s *Session) applyAccounts(ctx context.Context, accounts []string) bool {
	next := ""
	if len(accounts) > 0 {
		next = accounts[0]
	}

	s.mu.Lock()
	changed := next != s.account
	s.account = next
	s.mu.Unlock()

	if !changed {
		return false
	}

	s.logger.WithField("account", next).Info("钱包账户已变化")
	if s.onAccountChanged != nil {
		s.onAccountChanged(ctx, next)
	}
	return true
}
