package ingress

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	errInvalidJSON = errors.New("invalid_json")
	errMACMismatch = errors.New("mac_mismatch")
)

// Sample is one decoded telemetry message. Energy is the cumulative meter
// value; power/voltage/current are instantaneous gauges and default to zero
// when the payload omits them.
type Sample struct {
	MAC       string
	TS        time.Time
	EnergyKWh float64
	PowerKW   float64
	Voltage   float64
	Current   float64
	Key       string
}

// decodeSample parses a raw transport payload for the given device.
// deviceMAC is the MAC the connector is bound to; a payload claiming a
// different device is rejected rather than misattributed.
func decodeSample(deviceMAC string, raw []byte, receivedAt time.Time) (*Sample, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errInvalidJSON
	}

	mac := deviceMAC
	if v := toString(m["mac"]); v != "" {
		mac = v
	}
	if !strings.EqualFold(mac, deviceMAC) {
		return nil, fmt.Errorf("%w: payload=%s expected=%s", errMACMismatch, mac, deviceMAC)
	}

	energy, ok := toFloat(m["energy"])
	if !ok {
		return nil, errors.New("missing energy")
	}

	s := &Sample{
		MAC:       strings.ToUpper(mac),
		TS:        parseTimestamp(m, receivedAt),
		EnergyKWh: energy,
		Key:       toString(m["key"]),
	}
	if v, ok := toFloat(m["power"]); ok {
		s.PowerKW = v
	}
	if v, ok := toFloat(m["voltage"]); ok {
		s.Voltage = v
	}
	if v, ok := toFloat(m["current"]); ok {
		s.Current = v
	}
	return s, nil
}

// parseTimestamp accepts epoch seconds or RFC3339; anything else falls back
// to the receive time, matching the transports' at-least-once behavior of
// stamping late rather than dropping.
func parseTimestamp(m map[string]any, receivedAt time.Time) time.Time {
	raw, ok := m["ts"]
	if !ok {
		raw = m["timestamp"]
	}
	switch v := raw.(type) {
	case float64:
		return time.Unix(int64(v), 0).UTC()
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UTC()
		}
	}
	return receivedAt.UTC()
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
