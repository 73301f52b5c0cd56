// Package notify publishes fired-reminder alerts to an MQTT broker so
// external consumers (a desktop shell, a dashboard) can subscribe
// without holding an HTTP connection open. Publishing is best-effort:
// the reminder has already completed by the time an alert reaches this
// package.
package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/wren-assistant/wren/internal/config"
)

// Publisher manages the MQTT connection and publishes one message per
// alert.
type Publisher struct {
	cfg    config.MQTTConfig
	logger *slog.Logger
	cm     *autopaho.ConnectionManager
}

// alertPayload is the JSON body published per alert.
type alertPayload struct {
	Message string `json:"message"`
	Time    string `json:"time"`
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// to begin the connection.
func New(cfg config.MQTTConfig, logger *slog.Logger) *Publisher {
	if cfg.Topic == "" {
		cfg.Topic = "wren/alerts"
	}
	return &Publisher{
		cfg:    cfg,
		logger: logger.With("component", "notify"),
	}
}

// Start connects to the MQTT broker. autopaho reconnects in the
// background on failure, so a broker outage at startup is a warning,
// not an error.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "wren-notify",
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	return nil
}

// Stop disconnects from the broker.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	return p.cm.Disconnect(ctx)
}

// Alert publishes one fired-reminder alert. Safe to use as the
// scheduler's alert callback.
func (p *Publisher) Alert(message string) {
	if p.cm == nil {
		return
	}

	payload, err := json.Marshal(alertPayload{
		Message: message,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		p.logger.Error("failed to marshal alert payload", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := p.cm.Publish(ctx, &paho.Publish{
		Topic:   p.cfg.Topic,
		Payload: payload,
		QoS:     1,
	}); err != nil {
		p.logger.Warn("mqtt alert publish failed", "error", err)
		return
	}

	p.logger.Debug("mqtt alert published", "topic", p.cfg.Topic)
}
