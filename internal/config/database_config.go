package config

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// 配置类型与表名
var configTables = map[string]string{
	"wallet":   "wallet_config",
	"contract": "contract_config",
	"submit":   "submit_config",
	"output":   "output_config",
}

// DatabaseConfig 数据库配置管理器
type DatabaseConfig struct {
	DB     *sql.DB
	logger *logrus.Logger
}

// NewDatabaseConfig 创建数据库配置管理器
func NewDatabaseConfig(dsn string, logger *logrus.Logger) (*DatabaseConfig, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	return NewDatabaseConfigFromDB(db, logger), nil
}

// NewDatabaseConfigFromDB 使用已有连接创建配置管理器
func NewDatabaseConfigFromDB(db *sql.DB, logger *logrus.Logger) *DatabaseConfig {
	return &DatabaseConfig{
		DB:     db,
		logger: logger,
	}
}

// LoadConfig 从数据库加载完整配置，表中缺少的键使用默认值
func (dc *DatabaseConfig) LoadConfig() (*Config, error) {
	config := GetDefaultConfig()

	for _, configType := range []string{"wallet", "contract", "submit", "output"} {
		values, err := dc.ListConfigs(configType)
		if err != nil {
			return nil, fmt.Errorf("加载%s配置失败: %w", configType, err)
		}
		if err := applyValues(config, configType, values); err != nil {
			return nil, err
		}
	}

	if config.Output.Format == "kafka" || config.Output.Format == "kafka_async" {
		topics, err := dc.loadKafkaTopics()
		if err != nil {
			return nil, fmt.Errorf("加载Kafka主题失败: %w", err)
		}
		for k, v := range topics {
			config.Output.Kafka.Topics[k] = v
		}
	}

	return config, nil
}

// applyValues 将键值对写入对应的配置部分
func applyValues(config *Config, configType string, values map[string]string) error {
	for key, value := range values {
		switch configType {
		case "wallet":
			switch key {
			case "endpoint":
				config.Wallet.Endpoint = value
			case "dial_timeout":
				config.Wallet.DialTimeout = value
			case "watch_interval":
				config.Wallet.WatchInterval = value
			case "install_prompt":
				config.Wallet.InstallPrompt = value
			}
		case "contract":
			switch key {
			case "address":
				config.Contract.Address = value
			case "transfer_gas":
				config.Contract.TransferGas = value
			case "receipt_poll":
				config.Contract.ReceiptPoll = value
			}
		case "submit":
			switch key {
			case "after_success":
				config.Submit.AfterSuccess = value
			case "confirm_timeout":
				config.Submit.ConfirmTimeout = value
			}
		case "output":
			switch key {
			case "format":
				config.Output.Format = value
			case "directory":
				config.Output.Directory = value
			case "kafka_brokers":
				var brokers []string
				if err := json.Unmarshal([]byte(value), &brokers); err != nil {
					return fmt.Errorf("解析kafka_brokers失败: %w", err)
				}
				config.Output.Kafka.Brokers = brokers
			case "api_port":
				port, err := strconv.Atoi(value)
				if err != nil {
					return fmt.Errorf("解析api_port失败: %w", err)
				}
				config.API.Port = port
			}
		}
	}
	return nil
}

// loadKafkaTopics 加载Kafka主题配置
func (dc *DatabaseConfig) loadKafkaTopics() (map[string]string, error) {
	rows, err := dc.DB.Query(`SELECT data_type, topic_name FROM kafka_topics WHERE is_active = true`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	topics := make(map[string]string)
	for rows.Next() {
		var dataType, topicName string
		if err := rows.Scan(&dataType, &topicName); err != nil {
			return nil, err
		}
		topics[dataType] = topicName
	}

	return topics, rows.Err()
}

func tableFor(configType string) (string, error) {
	table, ok := configTables[configType]
	if !ok {
		return "", fmt.Errorf("不支持的配置类型: %s", configType)
	}
	return table, nil
}

// UpdateConfig 更新配置
func (dc *DatabaseConfig) UpdateConfig(configType, key, value string) error {
	table, err := tableFor(configType)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (config_key, config_value, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (config_key)
		DO UPDATE SET config_value = $2, updated_at = CURRENT_TIMESTAMP
	`, table)

	if _, err := dc.DB.Exec(query, key, value); err != nil {
		return err
	}
	dc.logger.WithFields(logrus.Fields{"type": configType, "key": key}).Info("配置已更新")
	return nil
}

// GetConfig 获取配置值
func (dc *DatabaseConfig) GetConfig(configType, key string) (string, error) {
	table, err := tableFor(configType)
	if err != nil {
		return "", err
	}

	query := fmt.Sprintf(`SELECT config_value FROM %s WHERE config_key = $1 AND is_active = true`, table)
	var value string
	err = dc.DB.QueryRow(query, key).Scan(&value)
	return value, err
}

// ListConfigs 列出某类全部配置
func (dc *DatabaseConfig) ListConfigs(configType string) (map[string]string, error) {
	table, err := tableFor(configType)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT config_key, config_value FROM %s WHERE is_active = true`, table)
	rows, err := dc.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		configs[key] = value
	}

	return configs, rows.Err()
}

// Close 关闭数据库连接
func (dc *DatabaseConfig) Close() error {
	if dc.DB != nil {
		return dc.DB.Close()
	}
	return nil
}
