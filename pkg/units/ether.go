package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/params"
)

// Decimals 以太币最小单位精度
const Decimals = 18

var (
	// ErrEmptyAmount 金额为空
	ErrEmptyAmount = errors.New("金额为空")
	// ErrNegativeAmount 金额为负
	ErrNegativeAmount = errors.New("金额不能为负")
	// ErrTooManyDecimals 小数位超过18位
	ErrTooManyDecimals = errors.New("小数位超过18位")
)

var weiPerEther = big.NewInt(params.Ether)

// ParseEther 将十进制字符串金额精确转换为最小单位 (wei)
func ParseEther(amount string) (*big.Int, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return nil, ErrEmptyAmount
	}
	if strings.HasPrefix(s, "-") {
		return nil, ErrNegativeAmount
	}
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return nil, fmt.Errorf("无效金额: %q", amount)
	}

	whole, frac, hasDot := strings.Cut(s, ".")
	if hasDot && whole == "" && frac == "" {
		return nil, fmt.Errorf("无效金额: %q", amount)
	}
	if len(frac) > Decimals {
		return nil, ErrTooManyDecimals
	}
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return nil, fmt.Errorf("无效金额: %q", amount)
	}

	wei, ok := new(big.Int).SetString(whole+frac+strings.Repeat("0", Decimals-len(frac)), 10)
	if !ok {
		return nil, fmt.Errorf("无效金额: %q", amount)
	}
	return wei, nil
}

// FormatEther 将最小单位格式化为十进制字符串，去掉末尾的0
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}

	sign := ""
	v := new(big.Int).Set(wei)
	if v.Sign() < 0 {
		sign = "-"
		v.Neg(v)
	}

	q, r := new(big.Int).QuoRem(v, weiPerEther, new(big.Int))
	if r.Sign() == 0 {
		return sign + q.String()
	}
	frac := fmt.Sprintf("%0*s", Decimals, r.String())
	return sign + q.String() + "." + strings.TrimRight(frac, "0")
}

// ToFloat 展示用金额: wei / 10^18
func ToFloat(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := new(big.Float).SetPrec(256).Quo(
		new(big.Float).SetInt(wei),
		new(big.Float).SetInt(weiPerEther),
	).Float64()
	return f
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
