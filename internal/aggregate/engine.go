package aggregate

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/MeGustas-5427/powermoniter/internal/store"
)

var (
	ErrInvalidWindow  = errors.New("invalid window")
	ErrDeviceNotFound = errors.New("device not found")
)

// Window selects one of the fixed reporting ranges.
type Window string

const (
	Window24h Window = "24h"
	Window7d  Window = "7d"
	Window30d Window = "30d"
)

type windowSpec struct {
	span     time.Duration
	interval time.Duration
	label    string
}

var windows = map[Window]windowSpec{
	Window24h: {span: 24 * time.Hour, interval: 5 * time.Minute, label: "pt5m"},
	Window7d:  {span: 7 * 24 * time.Hour, interval: 30 * time.Minute, label: "pt30m"},
	Window30d: {span: 30 * 24 * time.Hour, interval: 120 * time.Minute, label: "pt120m"},
}

// Point is one populated bucket. Energy is the meter delta within the
// bucket, the instantaneous fields carry the bucket's last sample.
type Point struct {
	TS        string  `json:"ts"`
	EnergyKWh float64 `json:"energy_kwh"`
	PowerKW   float64 `json:"power_kw"`
	Voltage   float64 `json:"voltage"`
	Current   float64 `json:"current"`
	Count     int     `json:"count"`
}

// Series is the aggregation result for one device and window.
type Series struct {
	DeviceID uuid.UUID `json:"device_id"`
	MAC      string    `json:"mac"`
	Window   string    `json:"window"`
	Interval string    `json:"interval"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	Points   []Point   `json:"points"`
}

// ReadingSource is the slice of the store the engine reads from.
type ReadingSource interface {
	GetDeviceByID(ctx context.Context, id uuid.UUID) (*store.Device, error)
	ListReadings(ctx context.Context, deviceID uuid.UUID, from, to time.Time) ([]store.Reading, error)
}

// Engine folds raw readings into fixed-interval buckets on demand. Nothing
// is precomputed; each query scans the window's readings.
type Engine struct {
	source ReadingSource
	now    func() time.Time
}

func NewEngine(source ReadingSource) *Engine {
	return &Engine{source: source, now: time.Now}
}

// Query aggregates one device's readings over the window ending now.
// A device owned by a different user is reported as not found.
func (e *Engine) Query(ctx context.Context, deviceID, userID uuid.UUID, window Window) (*Series, error) {
	spec, ok := windows[window]
	if !ok {
		return nil, ErrInvalidWindow
	}

	dev, err := e.source.GetDeviceByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if dev == nil || (dev.UserID != nil && *dev.UserID != userID) {
		return nil, ErrDeviceNotFound
	}

	end := e.now().UTC().Truncate(time.Second)
	start := end.Add(-spec.span)

	readings, err := e.source.ListReadings(ctx, deviceID, start, end)
	if err != nil {
		return nil, err
	}
	sort.Slice(readings, func(i, j int) bool { return readings[i].TS.Before(readings[j].TS) })

	series := &Series{
		DeviceID: dev.ID,
		MAC:      dev.MAC,
		Window:   string(window),
		Interval: spec.label,
		From:     start.Format(time.RFC3339),
		To:       end.Format(time.RFC3339),
		Points:   bucketize(readings, spec.interval),
	}
	return series, nil
}

type bucket struct {
	key         int64
	count       int
	firstEnergy float64
	lastEnergy  float64
	power       float64
	voltage     float64
	current     float64
}

// bucketize folds readings into interval-aligned buckets keyed by
// floor(unix_ts / interval) * interval. Readings arrive sorted ascending,
// so the first sample seen per bucket is its earliest, the last its latest.
func bucketize(readings []store.Reading, interval time.Duration) []Point {
	secs := int64(interval / time.Second)
	byKey := make(map[int64]*bucket)
	var keys []int64
	for i := range readings {
		r := &readings[i]
		key := (r.TS.Unix() / secs) * secs
		b, ok := byKey[key]
		if !ok {
			b = &bucket{key: key, firstEnergy: r.EnergyKWh}
			byKey[key] = b
			keys = append(keys, key)
		}
		b.count++
		b.lastEnergy = r.EnergyKWh
		b.power = r.PowerKW
		b.voltage = r.Voltage
		b.current = r.Current
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	points := make([]Point, 0, len(keys))
	for _, key := range keys {
		b := byKey[key]
		// A meter reset inside the bucket would make the delta negative;
		// report zero consumption instead of a negative number.
		energy := b.lastEnergy - b.firstEnergy
		if energy < 0 {
			energy = 0
		}
		points = append(points, Point{
			TS:        time.Unix(key, 0).UTC().Format(time.RFC3339),
			EnergyKWh: energy,
			PowerKW:   b.power,
			Voltage:   b.voltage,
			Current:   b.current,
			Count:     b.count,
		})
	}
	return points
}
