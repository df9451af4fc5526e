package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Wallet == nil || c.Contract == nil || c.Storage == nil || c.Submit == nil {
		return fmt.Errorf("配置缺少必要的部分")
	}
	if err := validateWalletConfig(c.Wallet); err != nil {
		return err
	}
	if err := validateContractConfig(c.Contract); err != nil {
		return err
	}
	if err := validateStorageConfig(c.Storage); err != nil {
		return err
	}
	if err := validateSubmitConfig(c.Submit); err != nil {
		return err
	}
	if c.Output != nil {
		if err := validateOutputConfig(c.Output); err != nil {
			return err
		}
	}
	if c.API != nil && (c.API.Port < 0 || c.API.Port > 65535) {
		return fmt.Errorf("无效的API端口: %d", c.API.Port)
	}
	return nil
}

func validateWalletConfig(w *WalletConfig) error {
	if w.Endpoint != "" &&
		!strings.HasPrefix(w.Endpoint, "http://") &&
		!strings.HasPrefix(w.Endpoint, "https://") &&
		!strings.HasPrefix(w.Endpoint, "ws://") &&
		!strings.HasPrefix(w.Endpoint, "wss://") &&
		!strings.HasSuffix(w.Endpoint, ".ipc") {
		return fmt.Errorf("无效的钱包地址: %s", w.Endpoint)
	}
	if err := validateDuration("wallet.dial_timeout", w.DialTimeout, false); err != nil {
		return err
	}
	return validateDuration("wallet.watch_interval", w.WatchInterval, false)
}

func validateContractConfig(c *ContractConfig) error {
	if !common.IsHexAddress(c.Address) {
		return fmt.Errorf("无效的合约地址: %q", c.Address)
	}
	if _, err := hexutil.DecodeUint64(c.TransferGas); err != nil {
		return fmt.Errorf("无效的转账gas: %q: %w", c.TransferGas, err)
	}
	return validateDuration("contract.receipt_poll", c.ReceiptPoll, false)
}

func validateStorageConfig(s *StorageConfig) error {
	if s.Path == "" {
		return fmt.Errorf("存储路径不能为空")
	}
	if s.CountKey == "" {
		return fmt.Errorf("计数键不能为空")
	}
	return nil
}

func validateSubmitConfig(s *SubmitConfig) error {
	switch s.AfterSuccess {
	case PolicyReload, PolicyRefresh:
	default:
		return fmt.Errorf("不支持的提交后策略: %q", s.AfterSuccess)
	}
	return validateDuration("submit.confirm_timeout", s.ConfirmTimeout, true)
}

func validateOutputConfig(o *OutputConfig) error {
	switch o.Format {
	case "", "none":
		return nil
	case "json":
		if o.Directory == "" {
			return fmt.Errorf("json输出需要指定目录")
		}
		return nil
	case "kafka", "kafka_async":
		if o.Kafka == nil || len(o.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka输出需要至少一个broker")
		}
		for _, topic := range []string{"submissions", "ledger"} {
			if o.Kafka.Topics[topic] == "" {
				return fmt.Errorf("缺少kafka主题: %s", topic)
			}
		}
		return nil
	default:
		return fmt.Errorf("不支持的输出格式: %s", o.Format)
	}
}

func validateDuration(name, value string, allowZero bool) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s 格式无效: %w", name, err)
	}
	if d < 0 || (d == 0 && !allowZero) {
		return fmt.Errorf("%s 必须为正数", name)
	}
	return nil
}

// CheckSetting 校验单个配置项写入后配置仍然合法。
// 合约地址等必填项未设置时只校验被修改的部分
func CheckSetting(configType, key, value string) error {
	if _, err := tableFor(configType); err != nil {
		return err
	}
	config := GetDefaultConfig()
	if err := applyValues(config, configType, map[string]string{key: value}); err != nil {
		return err
	}
	switch configType {
	case "wallet":
		return validateWalletConfig(config.Wallet)
	case "contract":
		if key == "address" && !common.IsHexAddress(value) {
			return fmt.Errorf("无效的合约地址: %q", value)
		}
		if _, err := hexutil.DecodeUint64(config.Contract.TransferGas); err != nil {
			return fmt.Errorf("无效的转账gas: %q: %w", config.Contract.TransferGas, err)
		}
		return validateDuration("contract.receipt_poll", config.Contract.ReceiptPoll, false)
	case "submit":
		return validateSubmitConfig(config.Submit)
	default:
		return validateOutputConfig(config.Output)
	}
}
