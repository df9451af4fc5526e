package wallet

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

// EventAccountsChanged 钱包账户变化事件
const EventAccountsChanged = "accountsChanged"

// Watch 跟踪账户变化直到 ctx 结束。
// 传输层支持通知时使用订阅，否则按 interval 轮询 eth_accounts。
func (s *Session) Watch(ctx context.Context, interval time.Duration) {
	if !s.wallet.Injected() {
		return
	}

	if s.wallet.client != nil {
		err := s.subscribe(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}
		if stderrors.Is(err, rpc.ErrNotificationsUnsupported) {
			s.logger.Debug("传输层不支持订阅，改为轮询账户")
		} else {
			s.logger.WithError(err).Warn("账户订阅失败，改为轮询账户")
		}
	}

	s.poll(ctx, interval)
}

// subscribe 订阅 accountsChanged，订阅中断时返回错误
func (s *Session) subscribe(ctx context.Context) error {
	ch := make(chan []string, 4)
	sub, err := s.wallet.client.Subscribe(ctx, "eth", ch, EventAccountsChanged)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	s.logger.Info("已订阅钱包账户变化")
	for {
		select {
		case accounts := <-ch:
			s.applyAccounts(ctx, accounts)
		case err := <-sub.Err():
			if err == nil {
				return nil
			}
			return err
		case <-ctx.Done():
			return nil
		}
	}
}

// poll 定时读取已授权账户
func (s *Session) poll(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 4 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.PollOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// PollOnce 读取一次账户并应用变化，返回是否变化
func (s *Session) PollOnce(ctx context.Context) bool {
	accounts, err := s.wallet.Accounts(ctx)
	if err != nil {
		s.logger.WithError(err).Debug("轮询账户失败")
		return false
	}
	return s.applyAccounts(ctx, accounts)
}
