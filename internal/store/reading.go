package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

// InsertReading idempotently stores one sample. The timestamp is truncated to
// the transport's second resolution before keying; a redelivery with the same
// (device_id, ts) is a silent no-op and reports inserted=false.
func (r *Repo) InsertReading(ctx context.Context, p *Reading) (inserted bool, err error) {
	p.TS = p.TS.UTC().Truncate(time.Second)
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.IngestedAt.IsZero() {
		p.IngestedAt = time.Now().UTC()
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}, {Name: "ts"}},
		DoNothing: true,
	}).Create(p)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListReadings returns samples in [from, to) ordered by timestamp ascending.
func (r *Repo) ListReadings(ctx context.Context, deviceID uuid.UUID, from, to time.Time) ([]Reading, error) {
	var out []Reading
	err := r.db.WithContext(ctx).
		Where("device_id = ? AND ts >= ? AND ts < ?", deviceID, from, to).
		Order("ts").Find(&out).Error
	return out, err
}

// LastSeen returns the timestamp of the device's most recent reading, or
// ok=false when no reading was ever stored.
func (r *Repo) LastSeen(ctx context.Context, deviceID uuid.UUID) (time.Time, bool, error) {
	var rows []Reading
	err := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("ts DESC").Limit(1).Find(&rows).Error
	if err != nil || len(rows) == 0 {
		return time.Time{}, false, err
	}
	return rows[0].TS.UTC(), true, nil
}

func (r *Repo) InsertDeadLetter(ctx context.Context, d *DeadLetter) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.OccurredAt.IsZero() {
		d.OccurredAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *Repo) ListDeadLetters(ctx context.Context, mac string, limit, offset int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	q := r.db.WithContext(ctx).Order("occurred_at DESC").Limit(limit).Offset(offset)
	if mac != "" {
		q = q.Where("mac = ?", mac)
	}
	var out []DeadLetter
	return out, q.Find(&out).Error
}
