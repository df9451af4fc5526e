package config

import (
	"fmt"
	"os"
	"time"

	"transferdesk/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// 环境变量
const (
	EnvDatabaseDSN = "TRANSFERDESK_DB_DSN"
	EnvWalletURL   = "TRANSFERDESK_WALLET_URL"
)

// 提交成功后的处理策略
const (
	PolicyReload  = "reload"
	PolicyRefresh = "refresh"
)

// DefaultInstallPrompt 未检测到钱包时的提示
const DefaultInstallPrompt = "Please install MetaMask."

// Config 主配置
type Config struct {
	Wallet   *WalletConfig      `mapstructure:"wallet"`
	Contract *ContractConfig    `mapstructure:"contract"`
	Storage  *StorageConfig     `mapstructure:"storage"`
	Submit   *SubmitConfig      `mapstructure:"submit"`
	Output   *OutputConfig      `mapstructure:"output"`
	API      *APIConfig         `mapstructure:"api"`
	Logging  *logging.LogConfig `mapstructure:"logging"`
}

// WalletConfig 注入钱包配置
type WalletConfig struct {
	Endpoint      string `mapstructure:"endpoint"`
	DialTimeout   string `mapstructure:"dial_timeout"`
	WatchInterval string `mapstructure:"watch_interval"`
	InstallPrompt string `mapstructure:"install_prompt"`
}

// ContractConfig 转账合约配置
type ContractConfig struct {
	Address     string `mapstructure:"address"`
	TransferGas string `mapstructure:"transfer_gas"`
	ReceiptPoll string `mapstructure:"receipt_poll"`
}

// StorageConfig 本地计数缓存配置
type StorageConfig struct {
	Path     string `mapstructure:"path"`
	CountKey string `mapstructure:"count_key"`
}

// SubmitConfig 交易提交配置
type SubmitConfig struct {
	AfterSuccess   string `mapstructure:"after_success"`
	ConfirmTimeout string `mapstructure:"confirm_timeout"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Brokers []string          `mapstructure:"brokers"`
	Topics  map[string]string `mapstructure:"topics"`
}

// OutputConfig 事件输出配置
type OutputConfig struct {
	Format    string       `mapstructure:"format"`
	Directory string       `mapstructure:"directory"`
	Kafka     *KafkaConfig `mapstructure:"kafka"`
}

// APIConfig HTTP服务配置
type APIConfig struct {
	Port int `mapstructure:"port"`
}

// DialTimeoutDuration 钱包连接超时
func (w *WalletConfig) DialTimeoutDuration() time.Duration {
	return parseDuration(w.DialTimeout, 10*time.Second)
}

// WatchIntervalDuration 账户轮询间隔
func (w *WalletConfig) WatchIntervalDuration() time.Duration {
	return parseDuration(w.WatchInterval, 4*time.Second)
}

// ReceiptPollDuration 交易收据轮询间隔
func (c *ContractConfig) ReceiptPollDuration() time.Duration {
	return parseDuration(c.ReceiptPoll, time.Second)
}

// ConfirmTimeoutDuration 等待确认超时，0 表示不限时
func (s *SubmitConfig) ConfirmTimeoutDuration() time.Duration {
	return parseDuration(s.ConfirmTimeout, 0)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// LoadConfig 加载配置（自动检测配置源）
func LoadConfig(configPath string) (*Config, error) {
	if dsn := os.Getenv(EnvDatabaseDSN); dsn != "" {
		logger := logrus.New()
		dbConfig, err := NewDatabaseConfig(dsn, logger)
		if err != nil {
			return nil, fmt.Errorf("连接数据库失败: %w", err)
		}
		defer dbConfig.Close()

		config, err := dbConfig.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("从数据库加载配置失败: %w", err)
		}

		logger.Info("已从数据库加载配置")
		return finalize(config)
	}

	config, err := LoadConfigFromFile(configPath)
	if err != nil {
		return nil, err
	}
	return finalize(config)
}

// LoadConfigFromFile 从文件加载配置，缺省字段使用默认值
func LoadConfigFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := GetDefaultConfig()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return config, nil
}

// finalize 应用环境变量覆盖并校验
func finalize(config *Config) (*Config, error) {
	if url := os.Getenv(EnvWalletURL); url != "" {
		config.Wallet.Endpoint = url
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// GetDefaultConfig 获取默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Wallet: &WalletConfig{
			Endpoint:      "", // 为空表示未注入钱包
			DialTimeout:   "10s",
			WatchInterval: "4s",
			InstallPrompt: DefaultInstallPrompt,
		},
		Contract: &ContractConfig{
			Address:     "",
			TransferGas: "0x5208",
			ReceiptPoll: "1s",
		},
		Storage: &StorageConfig{
			Path:     "./data/transferdesk.db",
			CountKey: "transactionCount",
		},
		Submit: &SubmitConfig{
			AfterSuccess:   PolicyReload,
			ConfirmTimeout: "0s",
		},
		Output: &OutputConfig{
			Format:    "none",
			Directory: "./outputs",
			Kafka: &KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topics: map[string]string{
					"submissions": "transferdesk_submissions",
					"ledger":      "transferdesk_ledger",
				},
			},
		},
		API: &APIConfig{
			Port: 8080,
		},
		Logging: logging.DefaultLogConfig(),
	}
}
