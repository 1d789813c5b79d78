package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DeviceStatus int

const (
	DeviceDisabled DeviceStatus = 0
	DeviceEnabled  DeviceStatus = 1
)

// Valid reports whether the value is one of the declared states.
func (s DeviceStatus) Valid() bool {
	return s == DeviceDisabled || s == DeviceEnabled
}

type IngressType int

const (
	IngressMQTT IngressType = 0
	IngressTCP  IngressType = 1
)

func (t IngressType) String() string {
	if t == IngressTCP {
		return "tcp"
	}
	return "mqtt"
}

type Device struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	MAC            string         `gorm:"column:mac;size:12;uniqueIndex;not null" json:"mac"`
	Name           string         `json:"name"`
	Location       string         `json:"location"`
	Description    string         `gorm:"type:text" json:"description"`
	Status         DeviceStatus   `json:"status"`
	CollectEnabled bool           `json:"collect_enabled"`
	IngressType    IngressType    `json:"ingress_type"`
	IngressConfig  datatypes.JSON `gorm:"type:jsonb" json:"ingress_config"`
	UserID         *uuid.UUID     `gorm:"type:uuid;index" json:"user_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (d *Device) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// Eligible reports whether the device should have a live connector.
func (d *Device) Eligible() bool {
	return d.Status == DeviceEnabled && d.CollectEnabled
}

// Reading is one telemetry sample. (device_id, ts) is the idempotency key:
// redelivered messages collapse onto the same row.
type Reading struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DeviceID   uuid.UUID      `gorm:"type:uuid;uniqueIndex:idx_readings_device_ts,priority:1" json:"device_id"`
	TS         time.Time      `gorm:"uniqueIndex:idx_readings_device_ts,priority:2" json:"ts"`
	MAC        string         `gorm:"column:mac;size:12;index" json:"mac"`
	EnergyKWh  float64        `json:"energy_kwh"`
	PowerKW    float64        `json:"power_kw"`
	Voltage    float64        `json:"voltage"`
	Current    float64        `json:"current"`
	Key        string         `gorm:"size:64" json:"key,omitempty"`
	Payload    datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	IngestedAt time.Time      `json:"ingested_at"`
}

type DeadLetter struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DeviceID      *uuid.UUID     `gorm:"type:uuid;index" json:"device_id,omitempty"`
	MAC           string         `gorm:"column:mac;size:12;index" json:"mac"`
	RawPayload    datatypes.JSON `gorm:"type:jsonb" json:"raw_payload"`
	FailureReason string         `gorm:"size:255" json:"failure_reason"`
	Retryable     bool           `json:"retryable"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

type User struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Username     string     `gorm:"size:150;uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"size:128" json:"-"`
	FailCount    int        `json:"-"`
	LockedUntil  *time.Time `json:"-"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
