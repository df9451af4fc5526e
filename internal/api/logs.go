package api

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LogEntry 日志条目
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// LogManager 内存日志环，保留最近 maxLogs 条
type LogManager struct {
	mu      sync.RWMutex
	logs    []LogEntry
	next    int
	full    bool
	maxLogs int
}

// NewLogManager 创建日志管理器
func NewLogManager(maxLogs int) *LogManager {
	if maxLogs <= 0 {
		maxLogs = 1000
	}
	return &LogManager{
		logs:    make([]LogEntry, maxLogs),
		maxLogs: maxLogs,
	}
}

// AddLog 添加日志
func (lm *LogManager) AddLog(entry *logrus.Entry) {
	var fields map[string]interface{}
	if len(entry.Data) > 0 {
		fields = make(map[string]interface{}, len(entry.Data))
		for k, v := range entry.Data {
			// error 类型直接序列化为 {}
			if err, ok := v.(error); ok {
				v = err.Error()
			} else if s, ok := v.(fmt.Stringer); ok {
				v = s.String()
			}
			fields[k] = v
		}
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.logs[lm.next] = LogEntry{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
		Fields:    fields,
	}
	lm.next = (lm.next + 1) % lm.maxLogs
	if lm.next == 0 {
		lm.full = true
	}
}

// ordered 按时间顺序返回全部日志，调用方持有读锁
func (lm *LogManager) ordered() []LogEntry {
	if !lm.full {
		return append([]LogEntry(nil), lm.logs[:lm.next]...)
	}
	out := make([]LogEntry, 0, lm.maxLogs)
	out = append(out, lm.logs[lm.next:]...)
	return append(out, lm.logs[:lm.next]...)
}

// GetLogsWithPagination 获取分页日志，level 为空时不过滤
func (lm *LogManager) GetLogsWithPagination(level string, page, pageSize int) ([]LogEntry, int) {
	lm.mu.RLock()
	all := lm.ordered()
	lm.mu.RUnlock()

	if level != "" {
		filtered := all[:0]
		for _, log := range all {
			if log.Level == level {
				filtered = append(filtered, log)
			}
		}
		all = filtered
	}

	total := len(all)
	start := (page - 1) * pageSize
	if start >= total {
		return []LogEntry{}, total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total
}

// ClearLogs 清空日志
func (lm *LogManager) ClearLogs() {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.logs = make([]LogEntry, lm.maxLogs)
	lm.next = 0
	lm.full = false
}

// LogHook 将日志写入 LogManager 的 logrus 钩子
type LogHook struct {
	manager *LogManager
}

// NewLogHook 创建日志钩子
func NewLogHook(manager *LogManager) *LogHook {
	return &LogHook{manager: manager}
}

// Fire 实现 logrus.Hook 接口
func (h *LogHook) Fire(entry *logrus.Entry) error {
	h.manager.AddLog(entry)
	return nil
}

// Levels 实现 logrus.Hook 接口
func (h *LogHook) Levels() []logrus.Level {
	return logrus.AllLevels
}
