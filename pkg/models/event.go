package models

import (
	"time"
)

// SubmissionEvent 交易提交事件
type SubmissionEvent struct {
	ID           string    `json:"id"`
	Stage        string    `json:"stage"` // submitted, confirmed, failed
	From         string    `json:"from"`
	To           string    `json:"to"`
	AmountWei    string    `json:"amount_wei"`
	Keyword      string    `json:"keyword"`
	Message      string    `json:"message"`
	TransferHash string    `json:"transfer_hash,omitempty"`
	RecordHash   string    `json:"record_hash,omitempty"`
	BlockNumber  uint64    `json:"block_number,omitempty"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	Error        string    `json:"error,omitempty"`
	Time         time.Time `json:"time"`
}

// 提交事件阶段
const (
	StageSubmitted = "submitted"
	StageConfirmed = "confirmed"
	StageFailed    = "failed"
)

// ToKafkaMessage 转换为Kafka消息格式
func (e *SubmissionEvent) ToKafkaMessage() map[string]interface{} {
	msg := map[string]interface{}{
		"type":       "submission",
		"id":         e.ID,
		"stage":      e.Stage,
		"from":       e.From,
		"to":         e.To,
		"amount_wei": e.AmountWei,
		"keyword":    e.Keyword,
		"message":    e.Message,
		"time":       e.Time.Unix(),
	}
	if e.TransferHash != "" {
		msg["transfer_hash"] = e.TransferHash
	}
	if e.RecordHash != "" {
		msg["record_hash"] = e.RecordHash
		msg["block_number"] = e.BlockNumber
	}
	if e.ErrorKind != "" {
		msg["error_kind"] = e.ErrorKind
		msg["error"] = e.Error
	}
	return msg
}

// LedgerSnapshot 账本刷新快照
type LedgerSnapshot struct {
	Account      string              `json:"account"`
	Count        int                 `json:"count"`
	Transactions []TransactionRecord `json:"transactions"`
	FetchedAt    time.Time           `json:"fetched_at"`
}

// ToKafkaMessage 转换为Kafka消息格式
func (s *LedgerSnapshot) ToKafkaMessage() map[string]interface{} {
	return map[string]interface{}{
		"type":         "ledger_snapshot",
		"account":      s.Account,
		"count":        s.Count,
		"transactions": s.Transactions,
		"fetched_at":   s.FetchedAt.Unix(),
	}
}
