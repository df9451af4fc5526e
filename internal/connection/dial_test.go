package connection

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transferdesk/internal/config"
)

type ethService struct {
	accounts []string
}

func (s *ethService) ChainId() hexutil.Uint64 { return 1337 }

func (s *ethService) Accounts() []string { return s.accounts }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newInProcClient(t *testing.T, svc *ethService) *rpc.Client {
	t.Helper()
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", svc))
	t.Cleanup(server.Stop)
	return rpc.DialInProc(server)
}

func TestDial_EmptyEndpoint(t *testing.T) {
	w := Dial(context.Background(), &config.WalletConfig{}, quietLogger())
	assert.False(t, w.Injected())
}

func TestDial_Unreachable(t *testing.T) {
	cfg := &config.WalletConfig{Endpoint: "http://127.0.0.1:1", DialTimeout: "500ms"}
	w := Dial(context.Background(), cfg, quietLogger())
	assert.False(t, w.Injected())
}

func TestFromClient(t *testing.T) {
	client := newInProcClient(t, &ethService{accounts: []string{"0xabc"}})
	defer client.Close()

	chainID, err := ChainID(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, int64(1337), chainID.Int64())

	w, err := FromClient(context.Background(), client, "inproc", quietLogger())
	require.NoError(t, err)
	assert.True(t, w.Injected())
	assert.Equal(t, "inproc", w.Endpoint())

	accounts, err := w.Accounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"0xabc"}, accounts)
}

func TestHealthChecker(t *testing.T) {
	client := newInProcClient(t, &ethService{})
	hc := NewHealthChecker(client, time.Second, quietLogger())

	require.NoError(t, hc.Check(context.Background()))
	assert.True(t, hc.IsHealthy())
	assert.Equal(t, true, hc.Status()["healthy"])

	client.Close()
	assert.Error(t, hc.Check(context.Background()))
	assert.False(t, hc.IsHealthy())
	assert.Contains(t, hc.Status(), "error")

	absent := NewHealthChecker(nil, time.Second, quietLogger())
	assert.False(t, absent.IsHealthy())
	assert.Error(t, absent.Check(context.Background()))
}
