package validation

import (
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"transferdesk/internal/errors"
	"transferdesk/pkg/models"
	"transferdesk/pkg/units"
)

// MaxTextLength 留言与关键词的建议最大长度
const MaxTextLength = 280

// ValidationRule 表单验证规则
type ValidationRule interface {
	Validate(form *models.FormData) error
	Name() string
}

// ValidationResult 验证结果
type ValidationResult struct {
	Valid    bool                    `json:"valid"`
	Errors   []*errors.TransferError `json:"errors,omitempty"`
	Warnings []string                `json:"warnings,omitempty"`
}

// Err 将验证结果合并为一个错误，合法时返回 nil
func (r *ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return errors.Wrap(fmt.Errorf("%s", strings.Join(msgs, "; ")),
		errors.KindInvalidInput, errors.SeverityLow, errors.ErrInvalidForm.Code, errors.ErrInvalidForm.Message)
}

// Transfer 验证通过后的转账参数
type Transfer struct {
	To      common.Address
	Amount  *big.Int
	Message string
	Keyword string
}

// Validator 表单验证器
type Validator struct {
	logger     *logrus.Logger
	strictMode bool // 严格模式下警告也视为错误
	rules      []ValidationRule
}

// NewValidator 创建表单验证器
func NewValidator(logger *logrus.Logger, strictMode bool) *Validator {
	v := &Validator{
		logger:     logger,
		strictMode: strictMode,
	}
	v.AddRule(&AddressRule{})
	v.AddRule(&AmountRule{})
	return v
}

// AddRule 添加验证规则
func (v *Validator) AddRule(rule ValidationRule) {
	v.rules = append(v.rules, rule)
	v.logger.Debugf("已注册验证规则: %s", rule.Name())
}

// SetStrictMode 设置严格模式
func (v *Validator) SetStrictMode(strict bool) {
	v.strictMode = strict
}

// ValidateForm 验证表单
func (v *Validator) ValidateForm(form *models.FormData) *ValidationResult {
	result := &ValidationResult{Valid: true}
	if form == nil {
		result.Valid = false
		result.Errors = append(result.Errors, errors.New(errors.KindInvalidInput, errors.SeverityLow, "FORM_EMPTY", "表单为空"))
		return result
	}

	for _, rule := range v.rules {
		if err := rule.Validate(form); err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, errors.Wrap(err,
				errors.KindInvalidInput, errors.SeverityLow, strings.ToUpper(rule.Name())+"_INVALID", "表单字段无效"))
		}
	}

	for name, value := range map[string]string{models.FieldMessage: form.Message, models.FieldKeyword: form.Keyword} {
		if utf8.RuneCountInString(value) > MaxTextLength {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s 超过 %d 个字符", name, MaxTextLength))
		}
	}
	if amount, err := units.ParseEther(form.Amount); err == nil && amount.Sign() == 0 {
		result.Warnings = append(result.Warnings, "金额为0")
	}

	if v.strictMode && len(result.Warnings) > 0 {
		result.Valid = false
		for _, w := range result.Warnings {
			result.Errors = append(result.Errors, errors.New(errors.KindInvalidInput, errors.SeverityLow, "STRICT_WARNING", w))
		}
	}

	return result
}

// Parse 验证并转换为转账参数
func (v *Validator) Parse(form *models.FormData) (*Transfer, error) {
	result := v.ValidateForm(form)
	if err := result.Err(); err != nil {
		return nil, err
	}
	for _, w := range result.Warnings {
		v.logger.Warn(w)
	}

	amount, _ := units.ParseEther(form.Amount)
	return &Transfer{
		To:      common.HexToAddress(form.AddressTo),
		Amount:  amount,
		Message: form.Message,
		Keyword: form.Keyword,
	}, nil
}

// AddressRule 收款地址规则
type AddressRule struct{}

// Name 规则名称
func (r *AddressRule) Name() string { return "address" }

// Validate 校验收款地址
func (r *AddressRule) Validate(form *models.FormData) error {
	addr := strings.TrimSpace(form.AddressTo)
	if addr == "" {
		return fmt.Errorf("收款地址为空")
	}
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("无效的收款地址: %s", addr)
	}
	if common.HexToAddress(addr) == (common.Address{}) {
		return fmt.Errorf("收款地址不能为零地址")
	}
	return nil
}

// AmountRule 金额规则
type AmountRule struct{}

// Name 规则名称
func (r *AmountRule) Name() string { return "amount" }

// Validate 校验金额可以精确转换为最小单位
func (r *AmountRule) Validate(form *models.FormData) error {
	_, err := units.ParseEther(form.Amount)
	return err
}
