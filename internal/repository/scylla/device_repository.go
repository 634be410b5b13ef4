package scylla

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"crm-backend/internal/models"
	"crm-backend/internal/util"
)

var ErrDeviceNotFound = errors.New("device not found")

type DeviceRepository struct {
	client *ScyllaClient
}

func NewDeviceRepository(client *ScyllaClient, logger *zap.Logger) *DeviceRepository {
	return &DeviceRepository{
		client: client,
	}
}

func (r *DeviceRepository) FindByFingerprint(userID, fingerprint string) (*models.Device, error) {
	device := &models.Device{}

	query := r.client.Prepared.GetDeviceByPrint.Bind(userID, fingerprint)
	err := r.client.ScanWithRetry(query,
		&device.UserID, &device.Fingerprint, &device.DeviceID,
		&device.IsTrusted, &device.LastUsedAt, &device.LastIPAddress,
		&device.CreatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrDeviceNotFound
		}
		util.Error("Failed to look up device",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to look up device: %w", err)
	}

	return device, nil
}

// CreateDevice registers a previously unseen fingerprint. New devices start
// untrusted.
func (r *DeviceRepository) CreateDevice(userID, fingerprint string, ip net.IP) (*models.Device, error) {
	now := time.Now().UTC()
	device := &models.Device{
		UserID:        userID,
		Fingerprint:   fingerprint,
		DeviceID:      uuid.New().String(),
		IsTrusted:     false,
		LastUsedAt:    now,
		LastIPAddress: ip,
		CreatedAt:     now,
	}

	query := r.client.Prepared.CreateDevice.Bind(
		device.UserID, device.Fingerprint, device.DeviceID,
		device.IsTrusted, device.LastUsedAt, device.LastIPAddress,
		device.CreatedAt)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to create device",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	util.Info("New device registered",
		zap.String("user_id", userID),
		zap.String("device_id", device.DeviceID))
	return device, nil
}

// Touch refreshes last-seen metadata for a known device.
func (r *DeviceRepository) Touch(userID, fingerprint string, ip net.IP, at time.Time) error {
	query := r.client.Prepared.TouchDevice.Bind(at, ip, userID, fingerprint)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		return fmt.Errorf("failed to touch device: %w", err)
	}
	return nil
}

func (r *DeviceRepository) ListByUser(userID string) ([]*models.Device, error) {
	iter := r.client.Prepared.ListDevicesByUser.Bind(userID).Iter()

	var devices []*models.Device
	for {
		d := &models.Device{}
		if !iter.Scan(&d.UserID, &d.Fingerprint, &d.DeviceID, &d.IsTrusted,
			&d.LastUsedAt, &d.LastIPAddress, &d.CreatedAt) {
			break
		}
		devices = append(devices, d)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

func (r *DeviceRepository) SetTrusted(userID, fingerprint string, trusted bool) error {
	query := r.client.Prepared.UpdateDeviceTrusted.Bind(trusted, userID, fingerprint)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		return fmt.Errorf("failed to update device trust: %w", err)
	}

	util.Info("Device trust updated",
		zap.String("user_id", userID),
		zap.Bool("trusted", trusted))
	return nil
}
