package status

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/MeGustas-5427/powermoniter/internal/store"
)

// OnlineThreshold is how stale the latest reading may be before a device
// counts as offline. Devices report every five minutes, so two missed
// cycles flips the state.
const OnlineThreshold = 10 * time.Minute

type State string

const (
	StateOnline      State = "online"
	StateOffline     State = "offline"
	StateMaintenance State = "maintenance"
)

// DeviceStatus is one device's inferred state with its registry fields.
type DeviceStatus struct {
	ID         uuid.UUID `json:"id"`
	MAC        string    `json:"mac"`
	Name       string    `json:"name"`
	Location   string    `json:"location"`
	State      State     `json:"state"`
	LastSeenAt *string   `json:"last_seen_at"`
}

// Page is one page of device states.
type Page struct {
	Devices []DeviceStatus `json:"devices"`
	Total   int            `json:"total"`
	Page    int            `json:"page"`
	Size    int            `json:"size"`
}

// DeviceSource is the slice of the store the service reads from.
type DeviceSource interface {
	ListDevices(ctx context.Context, status *store.DeviceStatus) ([]store.Device, error)
	LastSeen(ctx context.Context, deviceID uuid.UUID) (time.Time, bool, error)
}

// Service derives device state from registry flags and reading freshness.
// State is never stored; it is computed at query time.
type Service struct {
	source DeviceSource
	now    func() time.Time
}

func NewService(source DeviceSource) *Service {
	return &Service{source: source, now: time.Now}
}

// Infer computes one device's state.
func (s *Service) Infer(ctx context.Context, dev *store.Device) (State, *time.Time, error) {
	var lastSeen *time.Time
	if ts, ok, err := s.source.LastSeen(ctx, dev.ID); err != nil {
		return "", nil, err
	} else if ok {
		t := ts.UTC()
		lastSeen = &t
	}

	if dev.Status == store.DeviceDisabled || !dev.CollectEnabled {
		return StateMaintenance, lastSeen, nil
	}
	if lastSeen != nil && s.now().Sub(*lastSeen) <= OnlineThreshold {
		return StateOnline, lastSeen, nil
	}
	return StateOffline, lastSeen, nil
}

// List returns a page of devices with inferred state. filter narrows to a
// single state when non-empty. page is 1-based; size defaults to 20 and is
// capped at 100.
func (s *Service) List(ctx context.Context, filter State, page, size int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	if size > 100 {
		size = 100
	}

	devices, err := s.source.ListDevices(ctx, nil)
	if err != nil {
		return nil, err
	}

	var all []DeviceStatus
	for i := range devices {
		dev := &devices[i]
		state, lastSeen, err := s.Infer(ctx, dev)
		if err != nil {
			return nil, err
		}
		if filter != "" && state != filter {
			continue
		}
		ds := DeviceStatus{
			ID:       dev.ID,
			MAC:      dev.MAC,
			Name:     dev.Name,
			Location: dev.Location,
			State:    state,
		}
		if lastSeen != nil {
			formatted := lastSeen.Format(time.RFC3339)
			ds.LastSeenAt = &formatted
		}
		all = append(all, ds)
	}

	total := len(all)
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return &Page{Devices: all[start:end], Total: total, Page: page, Size: size}, nil
}
