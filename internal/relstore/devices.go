package relstore

import (
	"context"
	"fmt"
	"time"

	"netedge-siem/internal/model"
)

const deviceColumns = `id, name, host, port, username, encrypted_password, device_type, status, is_enabled,
	os_version, syslog_configured_by_siem, netflow_configured_by_siem, last_successful_connection, last_status_update`

func scanDevice(row interface {
	Scan(dest ...interface{}) error
}) (model.Device, error) {
	var d model.Device
	err := row.Scan(&d.ID, &d.Name, &d.Host, &d.Port, &d.Username, &d.EncryptedPassword, &d.DeviceType, &d.Status,
		&d.IsEnabled, &d.OSVersion, &d.SyslogConfiguredBySIEM, &d.NetflowConfiguredBySIEM,
		&d.LastSuccessfulConnection, &d.LastStatusUpdate)
	return d, err
}

// EnabledDevice implements device.Store.
func (s *Store) EnabledDevice(ctx context.Context, id int64) (*model.Device, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1 AND is_enabled = true`, id)
	d, err := scanDevice(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load enabled device: %w", err)
	}
	return &d, nil
}

// UpdateDeviceStatus implements device.Store: records the outcome of the
// last operation against a device, refreshing last_successful_connection
// only when the device became reachable. Grounded on
// DeviceService._update_device_status_and_info.
func (s *Store) UpdateDeviceStatus(ctx context.Context, id int64, status, osVersion string) error {
	now := time.Now().UTC()
	var err error
	if status == model.DeviceStatusReachable {
		_, err = s.db.ExecContext(ctx,
			`UPDATE devices SET status = $1, os_version = $2, last_successful_connection = $3, last_status_update = $3 WHERE id = $4`,
			status, osVersion, now, id)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE devices SET status = $1, os_version = $2, last_status_update = $3 WHERE id = $4`,
			status, osVersion, now, id)
	}
	if err != nil {
		return fmt.Errorf("update device status: %w", err)
	}
	return nil
}

func (s *Store) ListDevices(ctx context.Context) ([]model.Device, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// EnabledDeviceIDs feeds the background status poller (device.Service.PollStatuses).
func (s *Store) EnabledDeviceIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM devices WHERE is_enabled = true ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list enabled device ids: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan device id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) CreateDevice(ctx context.Context, d model.Device) (model.Device, error) {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO devices (name, host, port, username, encrypted_password, device_type, status, is_enabled)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 RETURNING id, last_status_update`,
		d.Name, d.Host, d.Port, d.Username, d.EncryptedPassword, d.DeviceType, model.DeviceStatusUnknown, d.IsEnabled,
	).Scan(&d.ID, &d.LastStatusUpdate)
	if err != nil {
		return model.Device{}, fmt.Errorf("insert device: %w", err)
	}
	d.Status = model.DeviceStatusUnknown
	return d, nil
}
