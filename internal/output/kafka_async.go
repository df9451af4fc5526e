package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"transferdesk/pkg/models"
)

// ErrOutputClosed 输出器已关闭
var ErrOutputClosed = errors.New("异步Kafka输出器已关闭")

// AsyncKafkaOutput 异步Kafka输出器
type AsyncKafkaOutput struct {
	logger   *logrus.Logger
	topics   map[string]string
	producer sarama.AsyncProducer
	wg       sync.WaitGroup

	// mu 保护 closed，发送持读锁，关闭持写锁
	mu     sync.RWMutex
	closed bool

	sentCount  atomic.Int64
	errorCount atomic.Int64
}

// NewAsyncKafkaOutput 创建异步Kafka输出器
func NewAsyncKafkaOutput(brokers []string, topics map[string]string, logger *logrus.Logger) (*AsyncKafkaOutput, error) {
	logger.Infof("初始化异步Kafka输出器，brokers: %v", brokers)

	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Retry.Max = 3
	config.Producer.Timeout = 3 * time.Second
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Compression = sarama.CompressionSnappy
	config.Version = sarama.V2_8_0_0

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("创建异步Kafka生产者失败: %w", err)
	}

	return NewAsyncKafkaOutputWithProducer(producer, topics, logger), nil
}

// NewAsyncKafkaOutputWithProducer 使用已有生产者创建输出器
func NewAsyncKafkaOutputWithProducer(producer sarama.AsyncProducer, topics map[string]string, logger *logrus.Logger) *AsyncKafkaOutput {
	k := &AsyncKafkaOutput{
		logger:   logger,
		topics:   topics,
		producer: producer,
	}

	k.wg.Add(2)
	go func() {
		defer k.wg.Done()
		for msg := range producer.Successes() {
			k.sentCount.Add(1)
			k.logger.Debugf("消息成功发送到 topic %s, partition %d, offset %d", msg.Topic, msg.Partition, msg.Offset)
		}
	}()
	go func() {
		defer k.wg.Done()
		for perr := range producer.Errors() {
			k.errorCount.Add(1)
			k.logger.Errorf("Kafka发送失败: topic=%s, error=%v", perr.Msg.Topic, perr.Err)
		}
	}()

	return k
}

func (k *AsyncKafkaOutput) enqueue(topic, key string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("序列化数据失败: %w", err)
	}

	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return ErrOutputClosed
	}
	k.producer.Input() <- &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(jsonData),
	}
	return nil
}

// WriteSubmission 写入提交事件
func (k *AsyncKafkaOutput) WriteSubmission(ev *models.SubmissionEvent) error {
	if ev == nil {
		return nil
	}
	return k.enqueue(topicFor(k.topics, TopicSubmissions), ev.ID, ev.ToKafkaMessage())
}

// WriteLedgerSnapshot 写入账本快照
func (k *AsyncKafkaOutput) WriteLedgerSnapshot(snapshot *models.LedgerSnapshot) error {
	if snapshot == nil {
		return nil
	}
	return k.enqueue(topicFor(k.topics, TopicLedger), snapshot.Account, snapshot.ToKafkaMessage())
}

// Stats 已发送与失败的消息数
func (k *AsyncKafkaOutput) Stats() (sent, failed int64) {
	return k.sentCount.Load(), k.errorCount.Load()
}

// Close 刷新并关闭生产者
func (k *AsyncKafkaOutput) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	k.producer.AsyncClose()
	k.mu.Unlock()

	k.wg.Wait()

	sent, failed := k.Stats()
	k.logger.Infof("异步Kafka输出器已关闭，成功: %d，失败: %d", sent, failed)
	return nil
}
