// Package device abstracts RPC access to managed network-edge devices:
// connect/disconnect, identity and resource queries, syslog/netflow
// provisioning, and firewall block/unblock actions. Grounded on
// base_connector.py's BaseConnector contract and its ConnectorError
// hierarchy; MikrotikConnector implements it over the RouterOS binary API
// protocol the way mikrotik_connector.py drives it through routeros_api.
package device

import (
	"context"
	"fmt"

	"netedge-siem/internal/model"
)

// ConnectorError is the base of every error this package returns, mirroring
// base_connector.py's ConnectorError/ConnectorConnectionError/ConnectorCommandError
// split so callers can tell a dead device apart from a rejected command.
type ConnectorError struct {
	Op  string
	Err error
}

func (e *ConnectorError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectorError) Unwrap() error { return e.Err }

// ConnectionError wraps failures to establish or maintain a session with the
// device (dial, auth, transport reset).
type ConnectionError struct{ ConnectorError }

func NewConnectionError(op string, err error) *ConnectionError {
	return &ConnectionError{ConnectorError{Op: op, Err: err}}
}

// CommandError wraps a rejected or failed command issued over an otherwise
// healthy connection.
type CommandError struct{ ConnectorError }

func NewCommandError(op string, err error) *CommandError {
	return &CommandError{ConnectorError{Op: op, Err: err}}
}

// SystemIdentity is the device's reported name/board identity.
type SystemIdentity struct {
	Name string
}

// SystemResourceInfo is the device's reported platform/resource summary.
type SystemResourceInfo struct {
	Version      string
	BoardName    string
	CPULoad      int
	FreeMemory   int64
	Uptime       string
	Architecture string
}

// FirewallRule is one row of a device's firewall filter chain.
type FirewallRule struct {
	ID       string
	Chain    string
	Action   string
	Disabled bool
	Fields   map[string]string
}

// Connector is the RPC surface every managed device type must implement.
// Open must be called before any other method; Close releases the session
// and is safe to call on an already-closed or never-opened Connector.
type Connector interface {
	Open(ctx context.Context) error
	Close() error

	SystemIdentity(ctx context.Context) (*SystemIdentity, error)
	SystemResourceInfo(ctx context.Context) (*SystemResourceInfo, error)

	ConfigureSyslog(ctx context.Context, targetHost string, targetPort int, actionNamePrefix, topics string) error
	ConfigureNetflow(ctx context.Context, targetHost string, targetPort int, interfaces string, version int) error

	FirewallRules(ctx context.Context, chain string) ([]FirewallRule, error)
	BlockIP(ctx context.Context, listName, ip, comment string) error
	UnblockIP(ctx context.Context, listName, ip string) error
}

// Dialer builds a Connector for a device type given its connection
// parameters. The RPC orchestrator looks one up per model.Device.DeviceType.
type Dialer func(host string, port int, username, password string) Connector

// Registry maps device types to their Dialer.
var Registry = map[string]Dialer{}

func init() {
	Registry[model.DeviceTypeMikrotikRouterOS] = func(host string, port int, username, password string) Connector {
		return NewMikrotikConnector(host, port, username, password)
	}
}
