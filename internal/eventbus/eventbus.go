// Package eventbus embeds a small MQTT broker as the gateway's internal
// event bus: driver toggles, coil routes, and TLS command activity are
// published as retained-free messages any local subscriber can observe,
// without the gateway depending on an external broker.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/sirupsen/logrus"
)

// Bus wraps an embedded mochi-mqtt broker.
type Bus struct {
	server *mqtt.Server
	log    logrus.FieldLogger
}

// Event is one message published onto the bus.
type Event struct {
	Topic     string    `json:"topic"`
	Source    string    `json:"source"`
	Action    string    `json:"action"`
	Detail    any       `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New starts an embedded broker listening on addr (e.g. "127.0.0.1:1883").
func New(addr string, log logrus.FieldLogger) (*Bus, error) {
	server := mqtt.New(nil)
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("eventbus: add auth hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{ID: "internal", Address: addr})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("eventbus: add listener: %w", err)
	}

	b := &Bus{server: server, log: log}
	go func() {
		if err := server.Serve(); err != nil && log != nil {
			log.WithError(err).Error("eventbus: broker stopped")
		}
	}()
	return b, nil
}

// Server returns the underlying mochi-mqtt server, for components (such as
// the shared HostEnv) that need direct access.
func (b *Bus) Server() *mqtt.Server {
	return b.server
}

// Publish emits an Event on topic, marshaled to JSON at QoS 0.
func (b *Bus) Publish(topic, source, action string, detail any) {
	ev := Event{Topic: topic, Source: source, Action: action, Detail: detail, Timestamp: time.Now()}
	payload, err := json.Marshal(ev)
	if err != nil {
		if b.log != nil {
			b.log.WithError(err).Warn("eventbus: marshal event failed")
		}
		return
	}
	if err := b.server.Publish(topic, payload, false, 0); err != nil && b.log != nil {
		b.log.WithError(err).Warn("eventbus: publish failed")
	}
}

// Close stops the broker.
func (b *Bus) Close() error {
	return b.server.Close()
}
