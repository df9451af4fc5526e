package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"transferdesk/internal/errors"
	"transferdesk/internal/metrics"
	"transferdesk/internal/output"
	"transferdesk/internal/retry"
	"transferdesk/pkg/models"
)

// Source 链上记录来源，每次调用使用新的合约句柄
type Source interface {
	AllTransactions(ctx context.Context) ([]models.RawTransfer, error)
}

// Reader 账本读取器，维护最近一次成功读取的记录
type Reader struct {
	source     Source
	retrier    *retry.Retrier
	errHandler *errors.ErrorHandler
	out        output.Output
	location   *time.Location
	logger     *logrus.Entry

	mu           sync.RWMutex
	transactions []models.TransactionRecord
	fetchedAt    time.Time
}

// NewReader 创建账本读取器
func NewReader(source Source, retrier *retry.Retrier, errHandler *errors.ErrorHandler, out output.Output, logger *logrus.Logger) *Reader {
	if out == nil {
		out = output.NopOutput{}
	}
	return &Reader{
		source:       source,
		retrier:      retrier,
		errHandler:   errHandler,
		out:          out,
		location:     time.Local,
		logger:       logger.WithField("component", "ledger"),
		transactions: []models.TransactionRecord{},
	}
}

// SetLocation 设置时间戳展示时区
func (r *Reader) SetLocation(loc *time.Location) {
	r.location = loc
}

// Refresh 重新读取全部记录并整体替换。
// 失败时保留上一次的记录，错误已记录日志。
func (r *Reader) Refresh(ctx context.Context, account string) error {
	raw, err := retry.Do(ctx, r.retrier, "getAllTransactions", func() ([]models.RawTransfer, error) {
		return r.source.AllTransactions(ctx)
	})
	if err != nil {
		metrics.LedgerRefreshesTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return r.errHandler.HandleError(ctx, "ledger", err)
	}

	records := make([]models.TransactionRecord, 0, len(raw))
	for _, t := range raw {
		records = append(records, models.FromRawTransfer(t, r.location))
	}

	now := time.Now()
	r.mu.Lock()
	r.transactions = records
	r.fetchedAt = now
	r.mu.Unlock()

	metrics.LedgerRefreshesTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	metrics.LedgerSize.Set(float64(len(records)))
	r.logger.WithField("count", len(records)).Debug("账本已刷新")

	snapshot := &models.LedgerSnapshot{
		Account:      account,
		Count:        len(records),
		Transactions: records,
		FetchedAt:    now,
	}
	if err := r.out.WriteLedgerSnapshot(snapshot); err != nil {
		r.logger.WithError(err).Warn("输出账本快照失败")
	}
	return nil
}

// Transactions 返回记录副本
func (r *Reader) Transactions() []models.TransactionRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.TransactionRecord{}, r.transactions...)
}

// FetchedAt 最近一次成功读取的时间
func (r *Reader) FetchedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fetchedAt
}

// Clear 清空记录
func (r *Reader) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactions = []models.TransactionRecord{}
	r.fetchedAt = time.Time{}
}
