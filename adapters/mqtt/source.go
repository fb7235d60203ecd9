// Package mqtt connects the bridge to an MQTT broker using the Eclipse Paho
// client: it subscribes to the configured topic and feeds every received
// message into the delivery pipeline.
package mqtt

import (
	"context"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/coregx/mqttbridge"
	"github.com/coregx/mqttbridge/model"
)

// MessageHandler consumes normalized message events. *mqttbridge.Pipeline
// satisfies this interface.
type MessageHandler interface {
	Handle(ctx context.Context, msg model.InboundMessage) error
}

// Config holds the broker connection settings.
type Config struct {
	// BrokerURL is the broker address, e.g. "tcp://localhost:1883" or
	// "ssl://broker.example.com:8883".
	BrokerURL string

	// Topic is the topic filter to subscribe to, e.g. "data/sensor" or
	// "devices/+/data".
	Topic string

	// ClientID identifies this client to the broker.
	ClientID string

	// Username and Password are optional broker credentials.
	Username string
	Password string

	// QoS is the subscription quality-of-service level (0, 1, or 2).
	QoS byte

	// ConnectTimeout bounds the initial connect. Default: 30s.
	ConnectTimeout time.Duration
}

// Source subscribes to an MQTT topic and forwards messages to the handler.
//
// The paho client auto-reconnects; the subscription is re-established from
// the OnConnect hook, so a broker outage pauses enqueueing and resumes it
// cleanly on reconnect without duplicating in-flight envelopes.
type Source struct {
	cfg     Config
	client  pahomqtt.Client
	handler MessageHandler
	logger  mqttbridge.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSource creates an MQTT source. The handler and logger are required;
// Config.BrokerURL, Config.Topic, and Config.ClientID must be set.
func NewSource(cfg Config, handler MessageHandler, logger mqttbridge.Logger) (*Source, error) {
	if handler == nil {
		return nil, mqttbridge.NewError(mqttbridge.ErrCodeConfiguration, "message handler is required")
	}
	if logger == nil {
		return nil, mqttbridge.NewError(mqttbridge.ErrCodeConfiguration, "logger is required")
	}
	if cfg.BrokerURL == "" {
		return nil, mqttbridge.NewError(mqttbridge.ErrCodeConfiguration, "broker URL is required")
	}
	if cfg.Topic == "" {
		return nil, mqttbridge.NewError(mqttbridge.ErrCodeConfiguration, "topic is required")
	}
	if cfg.ClientID == "" {
		return nil, mqttbridge.NewError(mqttbridge.ErrCodeConfiguration, "client ID is required")
	}
	if cfg.QoS > 2 {
		return nil, mqttbridge.NewError(mqttbridge.ErrCodeConfiguration, fmt.Sprintf("QoS must be 0, 1, or 2, got %d", cfg.QoS))
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}

	return &Source{cfg: cfg, handler: handler, logger: logger}, nil
}

// Start connects to the broker and subscribes. It returns once the initial
// connection is established; reconnects afterwards are handled by the
// client. ctx bounds the lifetime of message handling: canceling it makes
// the subscription callback stop enqueueing.
func (s *Source) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	opts := pahomqtt.NewClientOptions().
		AddBroker(s.cfg.BrokerURL).
		SetClientID(s.cfg.ClientID).
		SetAutoReconnect(true).
		SetOrderMatters(true).
		SetConnectTimeout(s.cfg.ConnectTimeout).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(s.onConnectionLost)

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}

	s.client = pahomqtt.NewClient(opts)

	s.logger.Infof("Connecting to MQTT broker at %s...", s.cfg.BrokerURL)
	token := s.client.Connect()
	if !token.WaitTimeout(s.cfg.ConnectTimeout) {
		return mqttbridge.NewError(mqttbridge.ErrCodeConfiguration,
			fmt.Sprintf("timed out connecting to broker %s", s.cfg.BrokerURL))
	}
	if err := token.Error(); err != nil {
		return mqttbridge.NewErrorWithCause(mqttbridge.ErrCodeConfiguration,
			fmt.Sprintf("failed to connect to broker %s", s.cfg.BrokerURL), err)
	}
	return nil
}

// onConnect runs on every (re)connect and re-establishes the subscription.
func (s *Source) onConnect(client pahomqtt.Client) {
	s.logger.Infof("Connected to MQTT broker at %s", s.cfg.BrokerURL)

	token := client.Subscribe(s.cfg.Topic, s.cfg.QoS, s.onMessage)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			s.logger.Errorf("Failed to subscribe to topic %s: %v", s.cfg.Topic, err)
			return
		}
		s.logger.Infof("Subscribed to topic: %s (qos=%d)", s.cfg.Topic, s.cfg.QoS)
	}()
}

// onConnectionLost logs the outage; enqueueing pauses until reconnect.
func (s *Source) onConnectionLost(_ pahomqtt.Client, err error) {
	s.logger.Warnf("MQTT connection lost: %v", err)
}

// onMessage translates one broker message into an InboundMessage and hands
// it to the pipeline. Under the block overflow policy this suspends the
// paho callback, backpressuring the broker session.
func (s *Source) onMessage(_ pahomqtt.Client, m pahomqtt.Message) {
	msg := model.InboundMessage{
		Topic:      m.Topic(),
		Payload:    m.Payload(),
		QoS:        m.Qos(),
		ReceivedAt: time.Now(),
	}

	if err := s.handler.Handle(s.ctx, msg); err != nil {
		if mqttbridge.IsShutdown(err) {
			s.logger.Debugf("Discarded message on %s: pipeline is shutting down", m.Topic())
			return
		}
		s.logger.Errorf("Failed to enqueue message on %s: %v", m.Topic(), err)
	}
}

// Stop unsubscribes and disconnects, waiting briefly for in-flight
// callbacks to finish. Safe to call more than once.
func (s *Source) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.client == nil || !s.client.IsConnected() {
		return
	}

	if token := s.client.Unsubscribe(s.cfg.Topic); token.WaitTimeout(2*time.Second) && token.Error() != nil {
		s.logger.Warnf("Failed to unsubscribe from %s: %v", s.cfg.Topic, token.Error())
	}
	s.client.Disconnect(250)
	s.logger.Info("Disconnected from MQTT broker")
}
