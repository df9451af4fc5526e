package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"transferdesk/pkg/units"
)

// TimestampLayout 账本时间戳的展示格式
const TimestampLayout = "1/2/2006, 3:04:05 PM"

// FormData 转账表单
type FormData struct {
	AddressTo string `json:"addressTo"`
	Amount    string `json:"amount"`
	Keyword   string `json:"keyword"`
	Message   string `json:"message"`
}

// 表单字段名
const (
	FieldAddressTo = "addressTo"
	FieldAmount    = "amount"
	FieldKeyword   = "keyword"
	FieldMessage   = "message"
)

// Set 按字段名修改表单，未知字段返回 false
func (f *FormData) Set(name, value string) bool {
	switch name {
	case FieldAddressTo:
		f.AddressTo = value
	case FieldAmount:
		f.Amount = value
	case FieldKeyword:
		f.Keyword = value
	case FieldMessage:
		f.Message = value
	default:
		return false
	}
	return true
}

// RawTransfer 合约 TransferStruct 的原始字段
type RawTransfer struct {
	Sender    common.Address
	Receiver  common.Address
	Amount    *big.Int
	Message   string
	Timestamp *big.Int
	Keyword   string
}

// TransactionRecord 账本中的一条转账记录
type TransactionRecord struct {
	AddressTo   string  `json:"addressTo"`
	AddressFrom string  `json:"addressFrom"`
	Timestamp   string  `json:"timestamp"`
	Message     string  `json:"message"`
	Keyword     string  `json:"keyword"`
	Amount      float64 `json:"amount"`
}

// FromRawTransfer 从合约记录转换为展示记录
func FromRawTransfer(raw RawTransfer, loc *time.Location) TransactionRecord {
	if loc == nil {
		loc = time.Local
	}

	var ts int64
	if raw.Timestamp != nil {
		ts = raw.Timestamp.Int64()
	}

	return TransactionRecord{
		AddressTo:   raw.Receiver.Hex(),
		AddressFrom: raw.Sender.Hex(),
		Timestamp:   time.Unix(ts, 0).In(loc).Format(TimestampLayout),
		Message:     raw.Message,
		Keyword:     raw.Keyword,
		Amount:      units.ToFloat(raw.Amount),
	}
}
