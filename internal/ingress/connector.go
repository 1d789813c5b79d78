package ingress

import (
	"context"

	"github.com/MeGustas-5427/powermoniter/internal/store"
)

// Connector is one live transport session bound to a single device. Start
// returns once the session is established (or fails); message handling runs
// until Stop. Stop is idempotent and safe to call concurrently with an
// in-flight message handler.
type Connector interface {
	Start(ctx context.Context) error
	Stop()
}

// Factory builds the transport-appropriate connector for a device.
type Factory struct {
	Sink *Sink
}

func (f *Factory) New(dev *store.Device, cfg Config) (Connector, error) {
	if cfg.Type == store.IngressTCP {
		return newTCPConnector(dev, cfg.TCP, f.Sink), nil
	}
	return newMQTTConnector(dev, cfg.MQTT, f.Sink), nil
}
