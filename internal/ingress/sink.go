package ingress

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/datatypes"

	"github.com/MeGustas-5427/powermoniter/internal/store"
	"github.com/MeGustas-5427/powermoniter/internal/telemetry"
)

// ReadingStore is the slice of the repository the ingestion path needs.
type ReadingStore interface {
	InsertReading(ctx context.Context, p *store.Reading) (bool, error)
	InsertDeadLetter(ctx context.Context, d *store.DeadLetter) error
}

// Sink is the shared write path behind every connector: decode, dead-letter
// on failure, idempotent upsert on success.
type Sink struct {
	Store ReadingStore
}

func (s *Sink) HandleMessage(ctx context.Context, dev *store.Device, raw []byte, receivedAt time.Time) {
	telemetry.RecordIngress(dev.MAC)

	sample, err := decodeSample(dev.MAC, raw, receivedAt)
	if err != nil {
		s.deadLetter(ctx, dev, raw, err)
		return
	}

	inserted, err := s.Store.InsertReading(ctx, &store.Reading{
		DeviceID:  dev.ID,
		TS:        sample.TS,
		MAC:       dev.MAC,
		EnergyKWh: sample.EnergyKWh,
		PowerKW:   sample.PowerKW,
		Voltage:   sample.Voltage,
		Current:   sample.Current,
		Key:       sample.Key,
		Payload:   datatypes.JSON(append([]byte(nil), raw...)),
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		slog.Error("reading insert failed", "mac", dev.MAC, "ts", sample.TS, "error", err)
		return
	}
	if !inserted {
		telemetry.RecordDuplicate(dev.MAC)
		slog.Debug("duplicate reading skipped", "mac", dev.MAC, "ts", sample.TS)
		return
	}
	telemetry.RecordCommit(dev.MAC)
}

func (s *Sink) deadLetter(ctx context.Context, dev *store.Device, raw []byte, cause error) {
	reason := "ingest_error"
	switch {
	case errors.Is(cause, errInvalidJSON):
		reason = "invalid_json"
	case errors.Is(cause, errMACMismatch):
		reason = "mac_mismatch"
	}
	telemetry.RecordDeadLetter(reason)

	deviceID := dev.ID
	dl := &store.DeadLetter{
		DeviceID:      &deviceID,
		MAC:           dev.MAC,
		RawPayload:    datatypes.JSON(append([]byte(nil), raw...)),
		FailureReason: reason + ": " + cause.Error(),
	}
	if err := s.Store.InsertDeadLetter(ctx, dl); err != nil {
		slog.Error("dead letter insert failed", "mac", dev.MAC, "error", err)
		return
	}
	slog.Warn("message dead-lettered", "mac", dev.MAC, "reason", reason)
}
