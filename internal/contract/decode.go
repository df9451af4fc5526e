package contract

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RecordCall 解码后的 addToBlockchain 调用参数
type RecordCall struct {
	Receiver common.Address
	Amount   *big.Int
	Message  string
	Keyword  string
}

// DecodeRecordCall 解码发往合约的交易数据
func DecodeRecordCall(data []byte) (*RecordCall, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("调用数据过短: %d 字节", len(data))
	}

	method, err := parsedABI.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	if method.Name != MethodAddToBlockchain {
		return nil, fmt.Errorf("不是 %s 调用: %s", MethodAddToBlockchain, method.Name)
	}

	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("解码 %s 参数失败: %w", method.Name, err)
	}
	if len(args) != 4 {
		return nil, fmt.Errorf("%s 参数数量错误: %d", method.Name, len(args))
	}

	receiver, ok1 := args[0].(common.Address)
	amount, ok2 := args[1].(*big.Int)
	message, ok3 := args[2].(string)
	keyword, ok4 := args[3].(string)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, fmt.Errorf("%s 参数类型不匹配", method.Name)
	}

	return &RecordCall{
		Receiver: receiver,
		Amount:   amount,
		Message:  message,
		Keyword:  keyword,
	}, nil
}
