package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"transferdesk/internal/config"
	"transferdesk/pkg/models"
)

// 主题键
const (
	TopicSubmissions = "submissions"
	TopicLedger      = "ledger"
)

// Output 事件输出接口
type Output interface {
	WriteSubmission(ev *models.SubmissionEvent) error
	WriteLedgerSnapshot(snapshot *models.LedgerSnapshot) error
	Close() error
}

// NewOutputWithConfig 根据配置创建输出器
func NewOutputWithConfig(cfg *config.OutputConfig, logger *logrus.Logger) (Output, error) {
	if cfg == nil {
		return NopOutput{}, nil
	}

	switch cfg.Format {
	case "", "none":
		return NopOutput{}, nil
	case "json":
		return NewFileOutput(cfg.Directory, logger)
	case "kafka", "kafka_async":
		if cfg.Kafka == nil || len(cfg.Kafka.Brokers) == 0 {
			return nil, fmt.Errorf("kafka输出缺少broker配置")
		}
		if cfg.Format == "kafka_async" {
			return NewAsyncKafkaOutput(cfg.Kafka.Brokers, cfg.Kafka.Topics, logger)
		}
		return NewKafkaOutput(cfg.Kafka.Brokers, cfg.Kafka.Topics, logger)
	default:
		return nil, fmt.Errorf("不支持的输出格式: %s", cfg.Format)
	}
}

// NopOutput 不输出任何事件
type NopOutput struct{}

// WriteSubmission 实现 Output
func (NopOutput) WriteSubmission(*models.SubmissionEvent) error { return nil }

// WriteLedgerSnapshot 实现 Output
func (NopOutput) WriteLedgerSnapshot(*models.LedgerSnapshot) error { return nil }

// Close 实现 Output
func (NopOutput) Close() error { return nil }

// FileOutput JSON Lines 文件输出
type FileOutput struct {
	outputDir      string
	submissionFile *os.File
	ledgerFile     *os.File
	logger         *logrus.Logger
	mu             sync.Mutex
}

// NewFileOutput 创建文件输出器
func NewFileOutput(outputDir string, logger *logrus.Logger) (*FileOutput, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")

	submissionFile, err := os.Create(filepath.Join(outputDir, fmt.Sprintf("submissions_%s.json", timestamp)))
	if err != nil {
		return nil, fmt.Errorf("创建提交事件文件失败: %w", err)
	}

	ledgerFile, err := os.Create(filepath.Join(outputDir, fmt.Sprintf("ledger_%s.json", timestamp)))
	if err != nil {
		submissionFile.Close()
		return nil, fmt.Errorf("创建账本快照文件失败: %w", err)
	}

	logger.Infof("文件输出已初始化，目录: %s", outputDir)
	return &FileOutput{
		outputDir:      outputDir,
		submissionFile: submissionFile,
		ledgerFile:     ledgerFile,
		logger:         logger,
	}, nil
}

func (f *FileOutput) writeLine(file *os.File, data interface{}) error {
	line, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("序列化数据失败: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("写入文件失败: %w", err)
	}
	return nil
}

// WriteSubmission 写入提交事件
func (f *FileOutput) WriteSubmission(ev *models.SubmissionEvent) error {
	if ev == nil {
		return nil
	}
	return f.writeLine(f.submissionFile, ev)
}

// WriteLedgerSnapshot 写入账本快照
func (f *FileOutput) WriteLedgerSnapshot(snapshot *models.LedgerSnapshot) error {
	if snapshot == nil {
		return nil
	}
	return f.writeLine(f.ledgerFile, snapshot)
}

// Close 关闭文件
func (f *FileOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var firstErr error
	for _, file := range []*os.File{f.submissionFile, f.ledgerFile} {
		if file == nil {
			continue
		}
		if err := file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func topicFor(topics map[string]string, key string) string {
	if topic, ok := topics[key]; ok && topic != "" {
		return topic
	}
	return "transferdesk_" + key
}
