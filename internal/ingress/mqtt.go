package ingress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MeGustas-5427/powermoniter/internal/mqtt"
	"github.com/MeGustas-5427/powermoniter/internal/store"
)

type mqttConnector struct {
	dev  *store.Device
	cfg  MQTTConfig
	sink *Sink

	mu     sync.Mutex
	client *mqtt.Client
	cancel context.CancelFunc
}

func newMQTTConnector(dev *store.Device, cfg MQTTConfig, sink *Sink) *mqttConnector {
	return &mqttConnector{dev: dev, cfg: cfg, sink: sink}
}

func (c *mqttConnector) Start(ctx context.Context) error {
	client, err := mqtt.Connect(mqtt.Options{
		Broker:   c.cfg.Broker,
		Port:     c.cfg.Port,
		ClientID: c.cfg.ClientID,
		Username: c.cfg.Username,
		Password: c.cfg.Password,
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	err = client.Subscribe(c.cfg.SubTopic, func(m mqtt.Message) {
		if runCtx.Err() != nil {
			return
		}
		c.sink.HandleMessage(runCtx, c.dev, m.Payload(), time.Now().UTC())
	})
	if err != nil {
		cancel()
		client.Close()
		return err
	}

	c.mu.Lock()
	c.client = client
	c.cancel = cancel
	c.mu.Unlock()
	slog.Info("mqtt connector started", "mac", c.dev.MAC, "topic", c.cfg.SubTopic)
	return nil
}

func (c *mqttConnector) Stop() {
	c.mu.Lock()
	client := c.client
	cancel := c.cancel
	c.client = nil
	c.cancel = nil
	c.mu.Unlock()
	if client == nil {
		return
	}
	cancel()
	if err := client.Unsubscribe(c.cfg.SubTopic); err != nil {
		slog.Warn("mqtt unsubscribe failed", "mac", c.dev.MAC, "topic", c.cfg.SubTopic, "error", err)
	}
	client.Close()
	slog.Info("mqtt connector stopped", "mac", c.dev.MAC)
}
