package ingress

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/MeGustas-5427/powermoniter/internal/retry"
	"github.com/MeGustas-5427/powermoniter/internal/store"
	"github.com/MeGustas-5427/powermoniter/internal/telemetry"
)

// tcpConnector holds a persistent connection to the device endpoint and
// frames inbound records as newline-delimited JSON. Mid-session drops are
// re-dialed with backoff; the initial dial failure is returned to the
// subscription manager, which owns start retries.
type tcpConnector struct {
	dev  *store.Device
	cfg  TCPConfig
	sink *Sink

	policy retry.Policy

	mu     sync.Mutex
	conn   net.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

func newTCPConnector(dev *store.Device, cfg TCPConfig, sink *Sink) *tcpConnector {
	return &tcpConnector{dev: dev, cfg: cfg, sink: sink, policy: retry.DefaultPolicy()}
}

func (c *tcpConnector) addr() string {
	return fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
}

func (c *tcpConnector) Start(ctx context.Context) error {
	conn, err := net.DialTimeout("tcp", c.addr(), 10*time.Second)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.run(runCtx, conn, done)
	slog.Info("tcp connector started", "mac", c.dev.MAC, "addr", c.addr())
	return nil
}

func (c *tcpConnector) run(ctx context.Context, conn net.Conn, done chan struct{}) {
	defer close(done)
	for {
		c.read(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return
		}

		// Session dropped: re-dial with backoff until the context is
		// canceled or the policy gives up.
		attempt := 0
		for {
			attempt++
			if err := c.policy.Wait(ctx, attempt); err != nil {
				if errors.Is(err, retry.ErrAttemptsExhausted) {
					slog.Error("tcp reconnect gave up", "mac", c.dev.MAC, "addr", c.addr())
				}
				return
			}
			next, err := net.DialTimeout("tcp", c.addr(), 10*time.Second)
			if err != nil {
				telemetry.RecordRetry(c.dev.MAC, "dial_error")
				slog.Warn("tcp reconnect failed", "mac", c.dev.MAC, "attempt", attempt, "error", err)
				continue
			}
			c.mu.Lock()
			if ctx.Err() != nil {
				// Stop won the race: it already snapshotted the old
				// connection, so the fresh one is ours to close.
				c.mu.Unlock()
				next.Close()
				return
			}
			c.conn = next
			c.mu.Unlock()
			telemetry.RecordReconnect(c.dev.MAC)
			conn = next
			break
		}
	}
}

func (c *tcpConnector) read(ctx context.Context, conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 256*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		c.sink.HandleMessage(ctx, c.dev, append([]byte(nil), line...), time.Now().UTC())
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		slog.Warn("tcp read failed", "mac", c.dev.MAC, "error", err)
	}
}

func (c *tcpConnector) Stop() {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	done := c.done
	if cancel != nil {
		// Canceled under the lock: a concurrent re-dial sees the shutdown
		// before it can publish a fresh connection that nothing would close.
		cancel()
	}
	c.conn = nil
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	if conn != nil {
		conn.Close()
	}
	if done != nil {
		<-done
	}
	slog.Info("tcp connector stopped", "mac", c.dev.MAC)
}
