package subscription

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/MeGustas-5427/powermoniter/internal/ingress"
	"github.com/MeGustas-5427/powermoniter/internal/retry"
	"github.com/MeGustas-5427/powermoniter/internal/store"
	"github.com/MeGustas-5427/powermoniter/internal/telemetry"
)

// Registry is the slice of the device store the manager reconciles against.
type Registry interface {
	GetDeviceByID(ctx context.Context, id uuid.UUID) (*store.Device, error)
	ListEligibleDevices(ctx context.Context) ([]store.Device, error)
}

// ConnectorFactory builds a connector for a device and its parsed config.
type ConnectorFactory interface {
	New(dev *store.Device, cfg ingress.Config) (ingress.Connector, error)
}

// Manager owns the connector fleet: one live connector per eligible device,
// bound to that device's current ingress config. All connector creation and
// destruction happens here and nowhere else.
type Manager struct {
	registry Registry
	factory  ConnectorFactory
	policy   retry.Policy

	mu     sync.Mutex
	slots  map[uuid.UUID]*slot
	closed bool

	active atomic.Int64
}

// slot serializes reconciliation for one device. Its mutex is per-device, so
// applies for independent devices never contend.
type slot struct {
	mu          sync.Mutex
	conn        ingress.Connector
	cfg         ingress.Config
	attempts    int
	retryCancel context.CancelFunc
}

func NewManager(registry Registry, factory ConnectorFactory) *Manager {
	return &Manager{
		registry: registry,
		factory:  factory,
		policy:   retry.DefaultPolicy(),
		slots:    make(map[uuid.UUID]*slot),
	}
}

func (m *Manager) slot(id uuid.UUID) (*slot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false
	}
	s, ok := m.slots[id]
	if !ok {
		s = &slot{}
		m.slots[id] = s
	}
	return s, true
}

// ReconcileAll brings the connector set in line with the registry's desired
// state. Devices reconcile in parallel; per-device work stays serialized.
func (m *Manager) ReconcileAll(ctx context.Context) error {
	devices, err := m.registry.ListEligibleDevices(ctx)
	if err != nil {
		return err
	}
	var wg sync.WaitGroup
	for _, dev := range devices {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			if err := m.ApplyDevice(ctx, id); err != nil {
				slog.Error("reconcile failed", "device_id", id, "error", err)
			}
		}(dev.ID)
	}
	wg.Wait()
	slog.Info("reconciliation complete", "eligible", len(devices), "active", m.ActiveCount())
	return nil
}

// ApplyDevice re-reads one device's registry state and converges its
// connector: stop when ineligible, start when missing, restart when the
// bound config drifted from the stored one, no-op otherwise.
func (m *Manager) ApplyDevice(ctx context.Context, id uuid.UUID) error {
	return m.apply(ctx, id, true)
}

func (m *Manager) apply(ctx context.Context, id uuid.UUID, fresh bool) error {
	s, ok := m.slot(id)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// A new evaluation supersedes any pending backoff retry.
	if s.retryCancel != nil {
		s.retryCancel()
		s.retryCancel = nil
	}
	if fresh {
		s.attempts = 0
	}

	dev, err := m.registry.GetDeviceByID(ctx, id)
	if err != nil {
		return err
	}
	if dev == nil || !dev.Eligible() {
		m.stopLocked(s, id)
		return nil
	}

	cfg, err := ingress.ParseConfig(dev.IngressType, dev.IngressConfig)
	if err != nil {
		// Config validation happens at write time; a bad stored config
		// means the device cannot collect until it is fixed.
		m.stopLocked(s, id)
		slog.Error("stored ingress config invalid", "mac", dev.MAC, "error", err)
		return err
	}

	if s.conn != nil && s.cfg == cfg {
		return nil
	}
	m.stopLocked(s, id)

	conn, err := m.factory.New(dev, cfg)
	if err == nil {
		err = conn.Start(ctx)
	}
	if err != nil {
		telemetry.RecordRetry(dev.MAC, "start_error")
		slog.Warn("connector start failed", "mac", dev.MAC, "ingress", dev.IngressType.String(), "error", err)
		m.scheduleRetryLocked(s, id)
		return nil
	}

	s.conn = conn
	s.cfg = cfg
	s.attempts = 0
	telemetry.SetActiveSubscribers(int(m.active.Add(1)))
	slog.Info("connector started", "mac", dev.MAC, "ingress", dev.IngressType.String())
	return nil
}

// stopLocked tears down the slot's connector if one is running. Stopping an
// already-stopped slot is a no-op.
func (m *Manager) stopLocked(s *slot, id uuid.UUID) {
	if s.conn == nil {
		return
	}
	s.conn.Stop()
	s.conn = nil
	s.cfg = ingress.Config{}
	telemetry.SetActiveSubscribers(int(m.active.Add(-1)))
	slog.Info("connector stopped", "device_id", id)
}

// scheduleRetryLocked arms a single backoff retry that re-runs the full
// apply, re-reading the registry so a device disabled in the meantime is
// simply dropped.
func (m *Manager) scheduleRetryLocked(s *slot, id uuid.UUID) {
	s.attempts++
	attempt := s.attempts
	if _, err := m.policy.NextDelay(attempt); err != nil {
		if errors.Is(err, retry.ErrAttemptsExhausted) {
			slog.Error("connector start retries exhausted", "device_id", id)
		}
		s.attempts = 0
		return
	}

	// rctx only guards the backoff sleep. The re-apply runs on a fresh
	// context: apply itself cancels the pending retry handle on entry, and
	// that must not tear down the registry re-read.
	rctx, cancel := context.WithCancel(context.Background())
	s.retryCancel = cancel
	go func() {
		if err := m.policy.Wait(rctx, attempt); err != nil {
			return
		}
		if err := m.apply(context.Background(), id, false); err != nil {
			slog.Error("connector retry failed", "device_id", id, "error", err)
		}
	}()
}

// ActiveCount reports the number of live connectors.
func (m *Manager) ActiveCount() int {
	return int(m.active.Load())
}

// Shutdown stops every connector and cancels pending retries. Further
// applies become no-ops.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	slots := make(map[uuid.UUID]*slot, len(m.slots))
	for id, s := range m.slots {
		slots[id] = s
	}
	m.mu.Unlock()

	for id, s := range slots {
		s.mu.Lock()
		if s.retryCancel != nil {
			s.retryCancel()
			s.retryCancel = nil
		}
		m.stopLocked(s, id)
		s.mu.Unlock()
	}
	slog.Info("subscription manager stopped")
}
