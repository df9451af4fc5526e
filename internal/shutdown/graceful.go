package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// 停机顺序，数字越小越早执行
const (
	OrderStopServer     = 10 // 停止接受请求
	OrderStopWatchers   = 20 // 停止账户监听，取消进行中的等待
	OrderFlushPublisher = 30 // 刷新事件输出缓冲
	OrderCloseStore     = 40 // 关闭本地计数库
	OrderCloseWallet    = 50 // 关闭钱包连接
)

// Func 停机处理函数
type Func struct {
	Name  string
	Order int
	Fn    func(ctx context.Context) error
}

// GracefulShutdown 优雅停机管理器
type GracefulShutdown struct {
	logger  *logrus.Logger
	timeout time.Duration

	mu           sync.Mutex
	funcs        []Func
	shuttingDown bool

	signals chan os.Signal
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	errs    []error
}

// NewGracefulShutdown 创建优雅停机管理器
func NewGracefulShutdown(timeout time.Duration, logger *logrus.Logger) *GracefulShutdown {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &GracefulShutdown{
		logger:  logger,
		timeout: timeout,
		signals: make(chan os.Signal, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Register 注册停机处理函数
func (gs *GracefulShutdown) Register(name string, order int, fn func(ctx context.Context) error) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.funcs = append(gs.funcs, Func{Name: name, Order: order, Fn: fn})
	gs.logger.Debugf("注册停机处理函数: %s (order: %d)", name, order)
}

// Start 监听 SIGINT/SIGTERM，收到后执行停机
func (gs *GracefulShutdown) Start() {
	signal.Notify(gs.signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-gs.signals:
			gs.logger.Infof("收到停机信号: %v", sig)
			gs.Shutdown()
		case <-gs.done:
		}
	}()
}

// Context 停机开始时取消，供长时间运行的任务使用
func (gs *GracefulShutdown) Context() context.Context {
	return gs.ctx
}

// Done 停机完成后关闭
func (gs *GracefulShutdown) Done() <-chan struct{} {
	return gs.done
}

// Wait 阻塞直到停机完成，返回各处理函数的错误
func (gs *GracefulShutdown) Wait() []error {
	<-gs.done
	return gs.errs
}

// IsShuttingDown 是否正在停机
func (gs *GracefulShutdown) IsShuttingDown() bool {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	return gs.shuttingDown
}

// Shutdown 按顺序执行停机处理函数，只执行一次
func (gs *GracefulShutdown) Shutdown() {
	gs.mu.Lock()
	if gs.shuttingDown {
		gs.mu.Unlock()
		return
	}
	gs.shuttingDown = true
	funcs := append([]Func(nil), gs.funcs...)
	gs.mu.Unlock()

	signal.Stop(gs.signals)
	defer close(gs.done)

	gs.logger.Info("开始优雅停机流程...")
	gs.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
	defer cancel()

	sort.SliceStable(funcs, func(i, j int) bool { return funcs[i].Order < funcs[j].Order })

	for _, f := range funcs {
		if ctx.Err() != nil {
			gs.logger.Warnf("停机超时，跳过: %s", f.Name)
			gs.errs = append(gs.errs, fmt.Errorf("%s: %w", f.Name, ctx.Err()))
			continue
		}

		start := time.Now()
		if err := f.Fn(ctx); err != nil {
			gs.logger.Errorf("停机处理 '%s' 失败 (耗时: %v): %v", f.Name, time.Since(start), err)
			gs.errs = append(gs.errs, fmt.Errorf("%s: %w", f.Name, err))
			continue
		}
		gs.logger.Debugf("停机处理 '%s' 完成 (耗时: %v)", f.Name, time.Since(start))
	}

	gs.logger.Info("优雅停机流程完成")
}
