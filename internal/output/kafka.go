package output

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"transferdesk/pkg/models"
)

// KafkaOutput Kafka同步输出器
type KafkaOutput struct {
	logger   *logrus.Logger
	topics   map[string]string
	producer sarama.SyncProducer
}

// NewKafkaOutput 创建Kafka输出器
func NewKafkaOutput(brokers []string, topics map[string]string, logger *logrus.Logger) (*KafkaOutput, error) {
	logger.Infof("初始化Kafka输出器，brokers: %v", brokers)

	producer, err := sarama.NewSyncProducer(brokers, newSyncConfig())
	if err != nil {
		return nil, fmt.Errorf("创建Kafka生产者失败: %w", err)
	}

	return NewKafkaOutputWithProducer(producer, topics, logger), nil
}

// NewKafkaOutputWithProducer 使用已有生产者创建输出器
func NewKafkaOutputWithProducer(producer sarama.SyncProducer, topics map[string]string, logger *logrus.Logger) *KafkaOutput {
	return &KafkaOutput{
		logger:   logger,
		topics:   topics,
		producer: producer,
	}
}

func newSyncConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 5 * time.Second
	config.Version = sarama.V2_8_0_0
	return config
}

// sendToKafka 发送数据到Kafka
func (k *KafkaOutput) sendToKafka(topic, key string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("序列化数据失败: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(jsonData),
	}

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("发送消息到Kafka失败: %w", err)
	}

	k.logger.Debugf("已发送到Kafka topic '%s' (partition: %d, offset: %d)", topic, partition, offset)
	return nil
}

// WriteSubmission 写入提交事件
func (k *KafkaOutput) WriteSubmission(ev *models.SubmissionEvent) error {
	if ev == nil {
		return nil
	}
	return k.sendToKafka(topicFor(k.topics, TopicSubmissions), ev.ID, ev.ToKafkaMessage())
}

// WriteLedgerSnapshot 写入账本快照
func (k *KafkaOutput) WriteLedgerSnapshot(snapshot *models.LedgerSnapshot) error {
	if snapshot == nil {
		return nil
	}
	return k.sendToKafka(topicFor(k.topics, TopicLedger), snapshot.Account, snapshot.ToKafkaMessage())
}

// Close 关闭生产者
func (k *KafkaOutput) Close() error {
	if k.producer != nil {
		return k.producer.Close()
	}
	return nil
}
