// Package bus maintains the MQTT subscription that feeds the ingestion
// path. Connection loss is a transient condition: the client retries with
// bounded backoff forever and never takes the process down.
package bus

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"wmnmon/internal/config"
	"wmnmon/internal/telemetry"
)

// Topics covered by the wildcard subscription.
var subscriptions = []string{
	"wmn/metrics/#",
	"wmn/analysis/#",
	"wmn/explain/#",
}

const disconnectQuiesceMs = 250

// Handler receives every successfully decoded message.
type Handler func(msg telemetry.Message)

// Subscriber owns the broker connection lifecycle.
type Subscriber struct {
	cfg       config.BrokerConfig
	handler   Handler
	client    mqtt.Client
	connected atomic.Bool
}

// NewSubscriber creates an unconnected subscriber. handler is invoked from
// the client's receive goroutine and must not block for long.
func NewSubscriber(cfg config.BrokerConfig, handler Handler) *Subscriber {
	return &Subscriber{cfg: cfg, handler: handler}
}

// Run connects and blocks until ctx is cancelled, then disconnects
// gracefully, letting any in-flight message callback finish. Ingested
// state lives in the store and survives the shutdown of this loop.
func (s *Subscriber) Run(ctx context.Context) error {
	if s.cfg.Host == "" {
		return fmt.Errorf("broker host required")
	}

	scheme := "tcp"
	if s.cfg.TLS {
		scheme = "ssl"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, s.cfg.Host, s.cfg.Port))
	opts.SetClientID(fmt.Sprintf("%s-%s", s.cfg.ClientID, uuid.NewString()[:8]))
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}
	if s.cfg.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.SetKeepAlive(60 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(s.cfg.ReconnectMinSec) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(s.cfg.ReconnectMaxSec) * time.Second)

	opts.OnConnect = func(client mqtt.Client) {
		s.connected.Store(true)
		log.Printf("broker connected %s:%d", s.cfg.Host, s.cfg.Port)
		for _, topic := range subscriptions {
			token := client.Subscribe(topic, 1, s.onMessage)
			if token.WaitTimeout(5*time.Second) && token.Error() != nil {
				log.Printf("subscribe %s failed: %v", topic, token.Error())
			}
		}
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		s.connected.Store(false)
		log.Printf("broker connection lost: %v", err)
	}

	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("broker connect: %w", token.Error())
	}

	<-ctx.Done()
	s.client.Disconnect(disconnectQuiesceMs)
	s.connected.Store(false)
	log.Printf("broker disconnected")
	return ctx.Err()
}

// Connected reports whether the broker session is currently up. This is
// observable state, not an error condition.
func (s *Subscriber) Connected() bool {
	return s.connected.Load()
}

// onMessage decodes and forwards one inbound message. A malformed payload
// is dropped here so one bad producer cannot disturb any other device or
// the subscription itself.
func (s *Subscriber) onMessage(_ mqtt.Client, m mqtt.Message) {
	msg, err := telemetry.Decode(m.Topic(), m.Payload(), time.Now().UTC())
	if err != nil {
		log.Printf("drop message on %s: %v", m.Topic(), err)
		return
	}
	s.handler(msg)
}
