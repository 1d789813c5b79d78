package ingress

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/MeGustas-5427/powermoniter/internal/store"
)

// Config is the parsed, validated form of a device's opaque ingress_config.
// It is a plain comparable value so the subscription manager can detect
// config drift with ==.
type Config struct {
	Type store.IngressType
	MQTT MQTTConfig
	TCP  TCPConfig
}

type MQTTConfig struct {
	Broker   string
	Port     int
	SubTopic string
	PubTopic string
	ClientID string
	Username string
	Password string
}

type TCPConfig struct {
	Host string
	Port int
}

// ParseConfig validates the tagged variant at config-write time so a broken
// config is rejected before any connector tries to start with it.
func ParseConfig(typ store.IngressType, raw []byte) (Config, error) {
	var m map[string]any
	if len(raw) == 0 {
		m = map[string]any{}
	} else if err := json.Unmarshal(raw, &m); err != nil {
		return Config{}, fmt.Errorf("ingress_config is not a json object: %w", err)
	}

	switch typ {
	case store.IngressMQTT:
		cfg := MQTTConfig{
			Broker:   getString(m, "broker"),
			Port:     getInt(m, "port"),
			SubTopic: getString(m, "topic"),
			PubTopic: getString(m, "pub_topic"),
			ClientID: getString(m, "client_id"),
			Username: getString(m, "username"),
			Password: getString(m, "password"),
		}
		if cfg.SubTopic == "" {
			cfg.SubTopic = getString(m, "sub_topic")
		}
		var missing []string
		if cfg.Broker == "" {
			missing = append(missing, "broker")
		}
		if cfg.Port == 0 {
			missing = append(missing, "port")
		}
		if cfg.SubTopic == "" {
			missing = append(missing, "topic")
		}
		if cfg.ClientID == "" {
			missing = append(missing, "client_id")
		}
		if len(missing) > 0 {
			return Config{}, fmt.Errorf("mqtt ingress_config missing %s", strings.Join(missing, "/"))
		}
		return Config{Type: store.IngressMQTT, MQTT: cfg}, nil

	case store.IngressTCP:
		cfg := TCPConfig{
			Host: getString(m, "host"),
			Port: getInt(m, "port"),
		}
		if cfg.Host == "" {
			cfg.Host = getString(m, "broker")
		}
		if cfg.Host == "" || cfg.Port == 0 {
			return Config{}, fmt.Errorf("tcp ingress_config missing host/port")
		}
		return Config{Type: store.IngressTCP, TCP: cfg}, nil
	}
	return Config{}, fmt.Errorf("unknown ingress_type %d", typ)
}

func getString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
}

func getInt(m map[string]any, key string) int {
	v, ok := m[key]
	if !ok || v == nil {
		return 0
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
