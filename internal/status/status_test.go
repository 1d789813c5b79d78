package status

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MeGustas-5427/powermoniter/internal/store"
)

type fakeSource struct {
	devices  []store.Device
	lastSeen map[uuid.UUID]time.Time
}

func (s *fakeSource) ListDevices(_ context.Context, status *store.DeviceStatus) ([]store.Device, error) {
	if status == nil {
		return s.devices, nil
	}
	var out []store.Device
	for _, d := range s.devices {
		if d.Status == *status {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *fakeSource) LastSeen(_ context.Context, deviceID uuid.UUID) (time.Time, bool, error) {
	ts, ok := s.lastSeen[deviceID]
	return ts, ok, nil
}

func testService(src *fakeSource, now time.Time) *Service {
	svc := NewService(src)
	svc.now = func() time.Time { return now }
	return svc
}

func enabledDevice(mac string) store.Device {
	return store.Device{ID: uuid.New(), MAC: mac, Status: store.DeviceEnabled, CollectEnabled: true}
}

func TestInferStates(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	fresh := enabledDevice("AABBCCDDEE01")
	stale := enabledDevice("AABBCCDDEE02")
	never := enabledDevice("AABBCCDDEE03")
	disabled := enabledDevice("AABBCCDDEE04")
	disabled.Status = store.DeviceDisabled
	paused := enabledDevice("AABBCCDDEE05")
	paused.CollectEnabled = false

	src := &fakeSource{
		devices: []store.Device{fresh, stale, never, disabled, paused},
		lastSeen: map[uuid.UUID]time.Time{
			fresh.ID:    now.Add(-10 * time.Minute), // exactly at threshold
			stale.ID:    now.Add(-10*time.Minute - time.Second),
			disabled.ID: now.Add(-time.Minute),
		},
	}
	svc := testService(src, now)

	cases := []struct {
		name string
		dev  store.Device
		want State
	}{
		{"fresh reading is online", fresh, StateOnline},
		{"past threshold is offline", stale, StateOffline},
		{"never reported is offline", never, StateOffline},
		{"disabled wins over fresh reading", disabled, StateMaintenance},
		{"collection paused is maintenance", paused, StateMaintenance},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state, _, err := svc.Infer(context.Background(), &tc.dev)
			if err != nil {
				t.Fatalf("Infer: %v", err)
			}
			if state != tc.want {
				t.Errorf("state = %s, want %s", state, tc.want)
			}
		})
	}
}

func TestInferLastSeenReported(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	dev := enabledDevice("AABBCCDDEE01")
	src := &fakeSource{
		devices:  []store.Device{dev},
		lastSeen: map[uuid.UUID]time.Time{dev.ID: now.Add(-time.Minute)},
	}
	svc := testService(src, now)

	_, lastSeen, err := svc.Infer(context.Background(), &dev)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if lastSeen == nil || !lastSeen.Equal(now.Add(-time.Minute)) {
		t.Errorf("lastSeen = %v, want %v", lastSeen, now.Add(-time.Minute))
	}
}

func TestListFilterAndPagination(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{lastSeen: map[uuid.UUID]time.Time{}}
	for i := 0; i < 5; i++ {
		dev := enabledDevice(fmt.Sprintf("AABBCCDDEE0%d", i))
		src.devices = append(src.devices, dev)
		src.lastSeen[dev.ID] = now.Add(-time.Minute)
	}
	offline := enabledDevice("AABBCCDDEEFF")
	src.devices = append(src.devices, offline)
	svc := testService(src, now)

	page, err := svc.List(context.Background(), StateOnline, 1, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 5 {
		t.Errorf("total = %d, want 5", page.Total)
	}
	if len(page.Devices) != 2 {
		t.Errorf("page size = %d, want 2", len(page.Devices))
	}

	page, err = svc.List(context.Background(), StateOnline, 3, 2)
	if err != nil {
		t.Fatalf("List page 3: %v", err)
	}
	if len(page.Devices) != 1 {
		t.Errorf("last page size = %d, want 1", len(page.Devices))
	}

	page, err = svc.List(context.Background(), StateOffline, 1, 20)
	if err != nil {
		t.Fatalf("List offline: %v", err)
	}
	if page.Total != 1 || page.Devices[0].MAC != "AABBCCDDEEFF" {
		t.Errorf("offline page = %+v", page)
	}

	page, err = svc.List(context.Background(), "", 1, 20)
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if page.Total != 6 {
		t.Errorf("unfiltered total = %d, want 6", page.Total)
	}
}

func TestListPageBeyondEnd(t *testing.T) {
	now := time.Now().UTC()
	dev := enabledDevice("AABBCCDDEE01")
	src := &fakeSource{devices: []store.Device{dev}, lastSeen: map[uuid.UUID]time.Time{}}
	svc := testService(src, now)

	page, err := svc.List(context.Background(), "", 9, 20)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Devices) != 0 || page.Total != 1 {
		t.Errorf("page = %+v, want empty slice with total 1", page)
	}
}
