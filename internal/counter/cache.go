package counter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"transferdesk/internal/errors"
	"transferdesk/internal/metrics"
)

const (
	// DefaultDBPath 默认数据库路径
	DefaultDBPath = "./data/transferdesk.db"
	// DefaultKey 默认计数键
	DefaultKey = "transactionCount"

	// CounterBucket 存储桶名称
	CounterBucket = "counter"
)

// CountSource 链上记录数来源
type CountSource interface {
	TransactionCount(ctx context.Context) (uint64, error)
}

// Cache 本地记录数缓存
type Cache struct {
	db         *bolt.DB
	dbPath     string
	key        []byte
	errHandler *errors.ErrorHandler
	logger     *logrus.Entry
	mu         sync.Mutex
}

// NewCache 打开本地缓存
func NewCache(dbPath, key string, errHandler *errors.ErrorHandler, logger *logrus.Logger) (*Cache, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}
	if key == "" {
		key = DefaultKey
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("打开计数数据库失败: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(CounterBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("创建计数存储桶失败: %w", err)
	}

	logger.Infof("计数缓存已初始化，数据库路径: %s", dbPath)
	return &Cache{
		db:         db,
		dbPath:     dbPath,
		key:        []byte(key),
		errHandler: errHandler,
		logger:     logger.WithField("component", "counter"),
	}, nil
}

// Load 读取缓存的记录数，不存在时返回 nil。
// 无法解析的值按不存在处理。
func (c *Cache) Load() (*uint64, error) {
	var raw []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		if data := tx.Bucket([]byte(CounterBucket)).Get(c.key); data != nil {
			raw = append([]byte(nil), data...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("读取计数失败: %w", err)
	}
	if raw == nil {
		return nil, nil
	}

	count, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		c.logger.Warnf("缓存的计数无效: %q", raw)
		return nil, nil
	}
	return &count, nil
}

// Store 写入记录数，所有写入都经过这里
func (c *Cache) Store(count uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(CounterBucket)).Put(c.key, []byte(strconv.FormatUint(count, 10)))
	})
	if err != nil {
		return fmt.Errorf("写入计数失败: %w", err)
	}
	metrics.TransactionCount.Set(float64(count))
	c.logger.WithField("count", count).Debug("计数已更新")
	return nil
}

// SyncFromChain 读取链上记录数并写入缓存。失败时记录日志并返回带标签的错误
func (c *Cache) SyncFromChain(ctx context.Context, source CountSource) (uint64, error) {
	count, err := source.TransactionCount(ctx)
	if err != nil {
		return 0, c.errHandler.HandleError(ctx, "counter", err)
	}
	if err := c.Store(count); err != nil {
		return 0, c.errHandler.HandleError(ctx, "counter", err)
	}
	return count, nil
}

// Reset 删除缓存的记录数
func (c *Cache) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(CounterBucket)).Delete(c.key)
	})
}

// Path 数据库路径
func (c *Cache) Path() string {
	return c.dbPath
}

// Close 关闭数据库
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
