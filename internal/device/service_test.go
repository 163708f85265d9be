package device

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netedge-siem/internal/auth"
	"netedge-siem/internal/model"
	"netedge-siem/pkg/logger"
)

type fakeStore struct {
	devices   map[int64]*model.Device
	status    map[int64]string
	osVersion map[int64]string
}

func (f *fakeStore) EnabledDevice(ctx context.Context, id int64) (*model.Device, error) {
	return f.devices[id], nil
}

func (f *fakeStore) UpdateDeviceStatus(ctx context.Context, id int64, status, osVersion string) error {
	if f.status == nil {
		f.status = map[int64]string{}
	}
	if f.osVersion == nil {
		f.osVersion = map[int64]string{}
	}
	f.status[id] = status
	f.osVersion[id] = osVersion
	return nil
}

type fakeConnector struct {
	openErr   error
	blockErr  error
	blockedIP string
}

func (c *fakeConnector) Open(ctx context.Context) error  { return c.openErr }
func (c *fakeConnector) Close() error                    { return nil }
func (c *fakeConnector) SystemIdentity(ctx context.Context) (*SystemIdentity, error) {
	return &SystemIdentity{Name: "test"}, nil
}
func (c *fakeConnector) SystemResourceInfo(ctx context.Context) (*SystemResourceInfo, error) {
	return &SystemResourceInfo{Version: "7.10"}, nil
}
func (c *fakeConnector) ConfigureSyslog(ctx context.Context, host string, port int, actionNamePrefix, topics string) error {
	return nil
}
func (c *fakeConnector) ConfigureNetflow(ctx context.Context, host string, port int, interfaces string, version int) error {
	return nil
}
func (c *fakeConnector) FirewallRules(ctx context.Context, chain string) ([]FirewallRule, error) {
	return nil, nil
}
func (c *fakeConnector) BlockIP(ctx context.Context, listName, ip, comment string) error {
	if c.blockErr != nil {
		return c.blockErr
	}
	c.blockedIP = ip
	return nil
}
func (c *fakeConnector) UnblockIP(ctx context.Context, listName, ip string) error { return nil }

func TestBlockIP_RecordsReachableStatusOnSuccess(t *testing.T) {
	conn := &fakeConnector{}
	Registry["fake"] = func(host string, port int, username, password string) Connector { return conn }
	defer delete(Registry, "fake")

	store := &fakeStore{devices: map[int64]*model.Device{
		1: {ID: 1, Name: "edge-1", DeviceType: "fake", IsEnabled: true},
	}}
	svc := New(store, auth.NoopCipher{}, logger.NewNoop(), 0)

	err := svc.BlockIP(context.Background(), 1, "siem_blocked_ips", "1.2.3.4", "test block")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4", conn.blockedIP)
	assert.Equal(t, model.DeviceStatusReachable, store.status[1])
	assert.Equal(t, "7.10", store.osVersion[1])
}

func TestBlockIP_RecordsErrorStatusOnFailure(t *testing.T) {
	conn := &fakeConnector{blockErr: NewCommandError("block_ip", errors.New("rule exists"))}
	Registry["fake"] = func(host string, port int, username, password string) Connector { return conn }
	defer delete(Registry, "fake")

	store := &fakeStore{devices: map[int64]*model.Device{
		1: {ID: 1, Name: "edge-1", DeviceType: "fake", IsEnabled: true},
	}}
	svc := New(store, auth.NoopCipher{}, logger.NewNoop(), 0)

	err := svc.BlockIP(context.Background(), 1, "siem_blocked_ips", "1.2.3.4", "test block")
	require.Error(t, err)
	assert.Equal(t, model.DeviceStatusError, store.status[1])
}

func TestSafeActionNamePrefix(t *testing.T) {
	assert.Equal(t, "edge_router_1", SafeActionNamePrefix("edge router-1", 42))
	assert.Equal(t, "42", SafeActionNamePrefix("", 42))
}
