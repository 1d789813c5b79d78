package ingress

import (
	"errors"
	"fmt"

	"github.com/MeGustas-5427/powermoniter/internal/mqtt"
	"github.com/MeGustas-5427/powermoniter/internal/store"
)

// ErrPublishConfig marks a settings publish rejected for configuration
// reasons (wrong ingress type, missing pub_topic), as opposed to broker
// unavailability.
var ErrPublishConfig = errors.New("invalid mqtt publish config")

// Publisher pushes operator settings down to a device over its configured
// publish topic using a short-lived session, so it never disturbs the
// collecting connector's subscription.
type Publisher struct{}

func (Publisher) PublishSettings(dev *store.Device, payload []byte) error {
	if dev.IngressType != store.IngressMQTT {
		return fmt.Errorf("%w: device ingress_type is not mqtt", ErrPublishConfig)
	}
	cfg, err := ParseConfig(dev.IngressType, dev.IngressConfig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPublishConfig, err)
	}
	if cfg.MQTT.PubTopic == "" {
		return fmt.Errorf("%w: missing pub_topic", ErrPublishConfig)
	}

	client, err := mqtt.Connect(mqtt.Options{
		Broker:   cfg.MQTT.Broker,
		Port:     cfg.MQTT.Port,
		ClientID: cfg.MQTT.ClientID + "-pub",
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
	})
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Publish(cfg.MQTT.PubTopic, payload)
}
