package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"transferdesk/internal/config"
	"transferdesk/internal/connection"
	"transferdesk/internal/errors"
	"transferdesk/internal/logging"
	"transferdesk/internal/metrics"
	"transferdesk/internal/output"
	"transferdesk/internal/provider"
	"transferdesk/internal/shutdown"
	"transferdesk/internal/wallet"
	"transferdesk/pkg/models"
)

var (
	configFile string
	verbose    bool

	// send 参数
	sendTo      string
	sendAmount  string
	sendKeyword string
	sendMessage string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "transferdesk",
		Short:        "钱包转账与链上记录工具",
		Long:         `通过注入钱包发送原生转账，并在合约中记录转账信息`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "configs/config.yaml", "配置文件路径")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "详细输出")

	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "发送转账并记录到合约",
		RunE:  withApp(runSend),
	}
	sendCmd.Flags().StringVar(&sendTo, "to", "", "接收地址")
	sendCmd.Flags().StringVar(&sendAmount, "amount", "", "金额 (ETH)")
	sendCmd.Flags().StringVar(&sendKeyword, "keyword", "", "关键词")
	sendCmd.Flags().StringVar(&sendMessage, "message", "", "留言")
	_ = sendCmd.MarkFlagRequired("to")
	_ = sendCmd.MarkFlagRequired("amount")

	rootCmd.AddCommand(
		&cobra.Command{Use: "accounts", Short: "显示已授权账户", RunE: withApp(runAccounts)},
		&cobra.Command{Use: "connect", Short: "请求钱包授权", RunE: withApp(runConnect)},
		&cobra.Command{Use: "list", Short: "列出链上转账记录", RunE: withApp(runList)},
		&cobra.Command{Use: "count", Short: "显示记录数", RunE: withApp(runCount)},
		&cobra.Command{Use: "watch", Short: "监听账户变化并刷新记录", RunE: withApp(runWatch)},
		sendCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app 一次命令执行所需的组件
type app struct {
	rt       *provider.Runtime
	logger   *logrus.Logger
	shutdown *shutdown.GracefulShutdown
}

func withApp(fn func(ctx context.Context, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer func() {
			a.shutdown.Shutdown()
			a.shutdown.Wait()
		}()

		err = fn(a.shutdown.Context(), a)
		if err != nil {
			te := errors.Classify(err)
			fmt.Fprintf(os.Stderr, "失败 (%s): %v\n", te.Kind, err)
		}
		return err
	}
}

func setup() (*app, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("创建日志失败: %w", err)
	}
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	errHandler := errors.NewErrorHandler(logger)
	metrics.ObserveErrors(errHandler)

	out, err := output.NewOutputWithConfig(cfg.Output, logger)
	if err != nil {
		return nil, fmt.Errorf("创建输出器失败: %w", err)
	}

	gs := shutdown.NewGracefulShutdown(30*time.Second, logger)
	gs.Start()

	w := connection.Dial(gs.Context(), cfg.Wallet, logger)
	rt, err := provider.Assemble(cfg, w, &wallet.WriterPrompter{W: os.Stderr}, out, errHandler, logger)
	if err != nil {
		out.Close()
		w.Close()
		return nil, err
	}

	gs.Register("publisher", shutdown.OrderFlushPublisher, func(context.Context) error { return out.Close() })
	gs.Register("counter", shutdown.OrderCloseStore, func(context.Context) error { return rt.Counter.Close() })
	gs.Register("wallet", shutdown.OrderCloseWallet, func(context.Context) error {
		w.Close()
		return nil
	})

	return &app{rt: rt, logger: logger, shutdown: gs}, nil
}

func runAccounts(ctx context.Context, a *app) error {
	if err := a.rt.Session.CheckExistingConnection(ctx); err != nil {
		return err
	}
	printAccount(a.rt.Provider.CurrentAccount())
	return nil
}

func runConnect(ctx context.Context, a *app) error {
	if err := a.rt.Provider.Connect(ctx); err != nil {
		return err
	}
	printAccount(a.rt.Provider.CurrentAccount())
	return nil
}

func runList(ctx context.Context, a *app) error {
	if err := a.rt.Provider.Init(ctx); err != nil {
		return err
	}
	printTransactions(a.rt.Provider.Transactions())
	return nil
}

func runCount(ctx context.Context, a *app) error {
	stored, err := a.rt.Counter.Load()
	if err != nil {
		return err
	}
	if stored == nil {
		fmt.Println("本地缓存: 无")
	} else {
		fmt.Printf("本地缓存: %d\n", *stored)
	}

	if err := a.rt.Provider.Init(ctx); err != nil {
		return err
	}
	if count := a.rt.Provider.TransactionCount(); count != nil {
		fmt.Printf("链上记录: %d\n", *count)
	}
	return nil
}

func runSend(ctx context.Context, a *app) error {
	p := a.rt.Provider
	if err := p.Init(ctx); err != nil {
		a.logger.WithError(err).Warn("初始化未完全成功")
	}

	p.SetFormData(models.FormData{
		AddressTo: sendTo,
		Amount:    sendAmount,
		Keyword:   sendKeyword,
		Message:   sendMessage,
	})

	result, err := p.SendTransaction(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("提交ID:   %s\n", result.ID)
	fmt.Printf("转账哈希: %s\n", result.TransferHash.Hex())
	fmt.Printf("记录哈希: %s\n", result.RecordHash.Hex())
	fmt.Printf("区块:     %d\n", result.BlockNumber)
	fmt.Printf("记录数:   %d\n", result.Count)
	return nil
}

func runWatch(ctx context.Context, a *app) error {
	p := a.rt.Provider
	if err := p.Init(ctx); err != nil {
		a.logger.WithError(err).Warn("初始化未完全成功")
	}
	printAccount(p.CurrentAccount())

	p.OnAccountChanged(func(_ context.Context, account string) {
		printAccount(account)
		if account != "" {
			printTransactions(p.Transactions())
		}
	})
	p.Start(ctx)

	<-ctx.Done()
	return nil
}

func printAccount(account string) {
	if account == "" {
		fmt.Println("当前账户: 未连接")
		return
	}
	fmt.Printf("当前账户: %s\n", account)
}

func printTransactions(records []models.TransactionRecord) {
	fmt.Printf("共 %d 条记录\n", len(records))
	fmt.Println(strings.Repeat("=", 60))
	for i, r := range records {
		fmt.Printf("#%d %s\n", i+1, r.Timestamp)
		fmt.Printf("   %s -> %s  %g ETH\n", r.AddressFrom, r.AddressTo, r.Amount)
		if r.Keyword != "" || r.Message != "" {
			fmt.Printf("   [%s] %s\n", r.Keyword, r.Message)
		}
	}
}
