package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrDeviceConflict = errors.New("device with this mac already exists")

type DeviceCreate struct {
	MAC            string
	Name           string
	Location       string
	Description    string
	Status         DeviceStatus
	CollectEnabled bool
	IngressType    IngressType
	IngressConfig  datatypes.JSON
	UserID         *uuid.UUID
}

// DeviceUpdate carries a partial update; nil fields are left untouched.
type DeviceUpdate struct {
	Name           *string
	Location       *string
	Description    *string
	Status         *DeviceStatus
	CollectEnabled *bool
	IngressType    *IngressType
	IngressConfig  datatypes.JSON
}

func (r *Repo) CreateDevice(ctx context.Context, in DeviceCreate) (*Device, error) {
	dev := &Device{
		MAC:            in.MAC,
		Name:           in.Name,
		Location:       in.Location,
		Description:    in.Description,
		Status:         in.Status,
		CollectEnabled: in.CollectEnabled,
		IngressType:    in.IngressType,
		IngressConfig:  in.IngressConfig,
		UserID:         in.UserID,
	}
	if dev.Name == "" {
		dev.Name = dev.MAC
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Device{}).Where("mac = ?", dev.MAC).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDeviceConflict
		}
		return tx.Create(dev).Error
	})
	if err != nil {
		return nil, err
	}
	return dev, nil
}

func (r *Repo) GetDeviceByID(ctx context.Context, id uuid.UUID) (*Device, error) {
	var dev Device
	err := r.db.WithContext(ctx).First(&dev, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

func (r *Repo) GetDeviceByMAC(ctx context.Context, mac string) (*Device, error) {
	var dev Device
	err := r.db.WithContext(ctx).First(&dev, "mac = ?", mac).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

func (r *Repo) UpdateDevice(ctx context.Context, mac string, in DeviceUpdate) (*Device, error) {
	dev, err := r.GetDeviceByMAC(ctx, mac)
	if err != nil || dev == nil {
		return dev, err
	}
	if in.Name != nil {
		dev.Name = *in.Name
	}
	if in.Location != nil {
		dev.Location = *in.Location
	}
	if in.Description != nil {
		dev.Description = *in.Description
	}
	if in.Status != nil {
		dev.Status = *in.Status
	}
	if in.CollectEnabled != nil {
		dev.CollectEnabled = *in.CollectEnabled
	}
	if in.IngressType != nil {
		dev.IngressType = *in.IngressType
	}
	if in.IngressConfig != nil {
		dev.IngressConfig = in.IngressConfig
	}
	if err := r.db.WithContext(ctx).Save(dev).Error; err != nil {
		return nil, err
	}
	return dev, nil
}

func (r *Repo) ListDevices(ctx context.Context, status *DeviceStatus) ([]Device, error) {
	q := r.db.WithContext(ctx).Order("mac")
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	var out []Device
	return out, q.Find(&out).Error
}

func (r *Repo) ListDevicesByUser(ctx context.Context, userID uuid.UUID) ([]Device, error) {
	var out []Device
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("name").Find(&out).Error
	return out, err
}

// ListEligibleDevices returns the desired connector set: enabled devices
// with collection switched on.
func (r *Repo) ListEligibleDevices(ctx context.Context) ([]Device, error) {
	var out []Device
	err := r.db.WithContext(ctx).
		Where("status = ? AND collect_enabled = ?", DeviceEnabled, true).
		Order("mac").Find(&out).Error
	return out, err
}
