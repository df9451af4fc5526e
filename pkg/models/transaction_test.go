package models

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestFormData_Set(t *testing.T) {
	var f FormData

	assert.True(t, f.Set(FieldAddressTo, "0xabc"))
	assert.True(t, f.Set(FieldAmount, "0.1"))
	assert.True(t, f.Set(FieldKeyword, "cat"))
	assert.True(t, f.Set(FieldMessage, "hi"))
	assert.False(t, f.Set("gas", "1"))

	assert.Equal(t, FormData{AddressTo: "0xabc", Amount: "0.1", Keyword: "cat", Message: "hi"}, f)
}

func TestFromRawTransfer(t *testing.T) {
	sender := common.HexToAddress("0x1111111111111111111111111111111111111111")
	receiver := common.HexToAddress("0x2222222222222222222222222222222222222222")

	rec := FromRawTransfer(RawTransfer{
		Sender:    sender,
		Receiver:  receiver,
		Amount:    big.NewInt(1e18),
		Message:   "hello",
		Timestamp: big.NewInt(1700000000),
		Keyword:   "wave",
	}, time.UTC)

	assert.Equal(t, receiver.Hex(), rec.AddressTo)
	assert.Equal(t, sender.Hex(), rec.AddressFrom)
	assert.Equal(t, 1.0, rec.Amount)
	assert.Equal(t, "11/14/2023, 10:13:20 PM", rec.Timestamp)
	assert.Equal(t, "hello", rec.Message)
	assert.Equal(t, "wave", rec.Keyword)
}

func TestFromRawTransfer_NilFields(t *testing.T) {
	rec := FromRawTransfer(RawTransfer{}, time.UTC)
	assert.Equal(t, 0.0, rec.Amount)
	assert.Equal(t, "1/1/1970, 12:00:00 AM", rec.Timestamp)
}

func TestSubmissionEvent_ToKafkaMessage(t *testing.T) {
	ev := &SubmissionEvent{ID: "x", Stage: StageFailed, ErrorKind: "UserRejected", Error: "denied", Time: time.Unix(10, 0)}
	msg := ev.ToKafkaMessage()

	assert.Equal(t, "submission", msg["type"])
	assert.Equal(t, "UserRejected", msg["error_kind"])
	assert.Equal(t, int64(10), msg["time"])
	assert.NotContains(t, msg, "record_hash")
}
