package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(nil)
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())

	logger, err = NewLogger(&LogConfig{Level: "debug", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}

func TestNewLogger_Invalid(t *testing.T) {
	_, err := NewLogger(&LogConfig{Level: "loud"})
	assert.Error(t, err)

	_, err = NewLogger(&LogConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestNewLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "desk.log")

	logger, err := NewLogger(&LogConfig{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	WithComponent(logger, "ledger").Info("刷新完成")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"ledger"`)
}

func TestComponentLoggers(t *testing.T) {
	logger := logrus.New()

	entry := NewSubmissionLogger(logger, "id-1", "0xfrom", "0xto")
	assert.Equal(t, "submitter", entry.Data["component"])
	assert.Equal(t, "id-1", entry.Data["submission_id"])

	entry = NewRPCLogger(logger, "eth_accounts", "http://localhost:8545")
	assert.Equal(t, "eth_accounts", entry.Data["method"])
}
