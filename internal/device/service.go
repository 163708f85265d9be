package device

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/ratelimit"

	"netedge-siem/internal/auth"
	"netedge-siem/internal/model"
	"netedge-siem/pkg/logger"
)

// Store is the relational-store dependency for device records: fetching an
// enabled device's connection parameters and recording the outcome of the
// last operation against it. Implemented by internal/relstore.
type Store interface {
	EnabledDevice(ctx context.Context, id int64) (*model.Device, error)
	UpdateDeviceStatus(ctx context.Context, id int64, status, osVersion string) error
}

// Service wraps the connector registry with credential resolution and the
// status-bookkeeping every operation performs in the reference
// implementation (CONFIGURING while in flight, REACHABLE/ERROR/UNREACHABLE
// after, OS version refreshed from get_system_resource_info when available).
// Grounded on device_interaction/services.py's DeviceService.
type Service struct {
	store   Store
	cipher  auth.CredentialCipher
	log     logger.Logger
	limiter ratelimit.Limiter
}

// New creates a device service. ratePerSecond bounds how often this process
// opens a connector and issues RPCs, counted across all managed devices
// together (one limiter per Service), independent of the per-call 30s
// deadline each connector enforces; pass 0
// to disable rate limiting (e.g. in tests).
func New(store Store, cipher auth.CredentialCipher, log logger.Logger, ratePerSecond int) *Service {
	var limiter ratelimit.Limiter
	if ratePerSecond > 0 {
		limiter = ratelimit.New(ratePerSecond)
	} else {
		limiter = ratelimit.NewUnlimited()
	}
	return &Service{store: store, cipher: cipher, log: log, limiter: limiter}
}

func (s *Service) connect(ctx context.Context, device *model.Device) (Connector, error) {
	dial, ok := Registry[device.DeviceType]
	if !ok {
		return nil, fmt.Errorf("connector for device type %q not implemented", device.DeviceType)
	}
	password, err := s.cipher.Decrypt(device.EncryptedPassword)
	if err != nil {
		return nil, fmt.Errorf("decrypt device credential: %w", err)
	}
	c := dial(device.Host, device.Port, device.Username, password)
	if err := c.Open(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// withConnector opens a connector for device, refreshes its OS version from
// get_system_resource_info, runs op, and records the resulting device
// status — REACHABLE if op succeeds, UNREACHABLE/ERROR otherwise. commit
// happens even when op fails, matching the reference service's always-persist
// status bookkeeping.
func (s *Service) withConnector(ctx context.Context, deviceID int64, op func(ctx context.Context, c Connector) error) error {
	s.limiter.Take()

	device, err := s.store.EnabledDevice(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("load device: %w", err)
	}
	if device == nil {
		return fmt.Errorf("enabled device %d not found", deviceID)
	}

	osVersion := device.OSVersion
	status := model.DeviceStatusError

	if uerr := s.store.UpdateDeviceStatus(ctx, deviceID, model.DeviceStatusConfiguring, osVersion); uerr != nil {
		s.log.Warn("failed to record device status", "device", device.Name, "error", uerr)
	}

	c, err := s.connect(ctx, device)
	if err != nil {
		s.log.Error("device connect failed", "device", device.Name, "error", err)
		if isConnectionError(err) {
			status = model.DeviceStatusUnreachable
		}
		if uerr := s.store.UpdateDeviceStatus(ctx, deviceID, status, osVersion); uerr != nil {
			s.log.Warn("failed to record device status", "device", device.Name, "error", uerr)
		}
		return err
	}
	defer c.Close()

	if resources, rerr := c.SystemResourceInfo(ctx); rerr == nil && resources != nil && resources.Version != "" {
		osVersion = resources.Version
	}

	opErr := op(ctx, c)
	if opErr == nil {
		status = model.DeviceStatusReachable
	} else {
		s.log.Error("device operation failed", "device", device.Name, "error", opErr)
		if isConnectionError(opErr) {
			status = model.DeviceStatusUnreachable
		}
	}

	if uerr := s.store.UpdateDeviceStatus(ctx, deviceID, status, osVersion); uerr != nil {
		s.log.Warn("failed to record device status", "device", device.Name, "error", uerr)
	}
	return opErr
}

func isConnectionError(err error) bool {
	ce, ok := err.(*ConnectionError)
	return ok && ce != nil
}

func (s *Service) ConfigureSyslog(ctx context.Context, deviceID int64, targetHost string, targetPort int, actionNamePrefix, topics string) error {
	return s.withConnector(ctx, deviceID, func(ctx context.Context, c Connector) error {
		return c.ConfigureSyslog(ctx, targetHost, targetPort, actionNamePrefix, topics)
	})
}

func (s *Service) ConfigureNetflow(ctx context.Context, deviceID int64, targetHost string, targetPort int, interfaces string, version int) error {
	return s.withConnector(ctx, deviceID, func(ctx context.Context, c Connector) error {
		return c.ConfigureNetflow(ctx, targetHost, targetPort, interfaces, version)
	})
}

func (s *Service) FirewallRules(ctx context.Context, deviceID int64, chain string) ([]FirewallRule, error) {
	var rules []FirewallRule
	err := s.withConnector(ctx, deviceID, func(ctx context.Context, c Connector) error {
		r, err := c.FirewallRules(ctx, chain)
		rules = r
		return err
	})
	return rules, err
}

// BlockIP implements response.DeviceExecutor.
func (s *Service) BlockIP(ctx context.Context, deviceID int64, listName, ip, comment string) error {
	return s.withConnector(ctx, deviceID, func(ctx context.Context, c Connector) error {
		return c.BlockIP(ctx, listName, ip, comment)
	})
}

// UnblockIP implements response.DeviceExecutor.
func (s *Service) UnblockIP(ctx context.Context, deviceID int64, listName, ip string) error {
	return s.withConnector(ctx, deviceID, func(ctx context.Context, c Connector) error {
		return c.UnblockIP(ctx, listName, ip)
	})
}

// SafeActionNamePrefix mirrors the reference implementation's
// non-alphanumeric-to-underscore device-name sanitizer used to build a
// per-device syslog action name.
func SafeActionNamePrefix(deviceName string, deviceID int64) string {
	if deviceName == "" {
		return fmt.Sprintf("%d", deviceID)
	}
	var b strings.Builder
	for _, r := range deviceName {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// PollStatuses refreshes the status of every enabled device on an interval,
// the background status poller supplementing the original's pull-on-demand
// status endpoint with periodic reachability checks (SPEC_FULL §7).
func (s *Service) PollStatuses(ctx context.Context, deviceIDs func(ctx context.Context) ([]int64, error), interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := deviceIDs(ctx)
			if err != nil {
				s.log.Error("failed to list devices for status poll", "error", err)
				continue
			}
			for _, id := range ids {
				_ = s.withConnector(ctx, id, func(ctx context.Context, c Connector) error {
					_, err := c.SystemResourceInfo(ctx)
					return err
				})
			}
		}
	}
}
