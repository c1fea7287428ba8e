// Package mqtt feeds weather frames published by the companion app into a handler.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/kjstillabower/simple-weather-service/internal/observability"
)

// ErrStopped is returned by Connect after Disconnect has been called.
var ErrStopped = errors.New("mqtt subscriber stopped")

// Config holds broker and subscription settings.
type Config struct {
	Broker   string
	Port     int
	ClientID string
	Topic    string
	QoS      byte
}

// Handler receives one raw frame per MQTT message. The slice is owned by the handler.
type Handler func(payload []byte)

// Subscriber subscribes to one topic and hands every payload to a Handler.
// The subscription is re-established on every (re)connect.
type Subscriber struct {
	client  paho.Client
	cfg     Config
	logger  *zap.Logger
	handler Handler

	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSubscriber builds a subscriber; nothing is dialled until Connect.
func NewSubscriber(cfg Config, handler Handler, logger *zap.Logger) (*Subscriber, error) {
	if handler == nil {
		return nil, errors.New("mqtt: handler is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("mqtt: topic is required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt: invalid qos %d", cfg.QoS)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Subscriber{
		cfg:     cfg,
		logger:  logger.With(zap.String("broker", cfg.Broker), zap.String("topic", cfg.Topic)),
		handler: handler,
		stopCh:  make(chan struct{}),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(c paho.Client) {
		s.setConnected(true)
		s.logger.Info("mqtt connected")
		// A clean session drops subscriptions, so subscribe again after every reconnect.
		if err := s.subscribe(c); err != nil {
			s.logger.Error("mqtt subscribe failed", zap.Error(err))
		}
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		s.setConnected(false)
		s.logger.Warn("mqtt connection lost", zap.Error(err))
	})

	s.client = paho.NewClient(opts)
	return s, nil
}

// Connect starts the connection and blocks until the first connect succeeds,
// ctx is done, or Disconnect is called. Reconnects after that happen in the background.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return ErrStopped
	default:
	}
	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()
	const poll = 200 * time.Millisecond
	for !token.WaitTimeout(poll) {
		select {
		case <-ctx.Done():
			s.client.Disconnect(0)
			return ctx.Err()
		case <-s.stopCh:
			s.client.Disconnect(0)
			return ErrStopped
		default:
		}
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func (s *Subscriber) subscribe(c paho.Client) error {
	token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, func(_ paho.Client, msg paho.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", s.cfg.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.cfg.Topic, err)
	}
	s.logger.Info("subscribed to mqtt topic", zap.Uint8("qos", s.cfg.QoS))
	return nil
}

// handleMessage copies payload before handing it off; paho may reuse the buffer.
func (s *Subscriber) handleMessage(topic string, payload []byte) {
	observability.MQTTMessagesReceivedTotal.Inc()
	s.logger.Debug("received mqtt message", zap.String("message_topic", topic), zap.Int("size", len(payload)))
	frame := make([]byte, len(payload))
	copy(frame, payload)
	s.handler(frame)
}

// IsConnected reports whether the broker connection is up.
func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect stops the subscriber and closes the connection. Safe to call more than once.
func (s *Subscriber) Disconnect() {
	first := false
	s.stopOnce.Do(func() {
		close(s.stopCh)
		first = true
	})
	if !first {
		return
	}

	if s.IsConnected() {
		s.client.Unsubscribe(s.cfg.Topic).WaitTimeout(2 * time.Second)
	}
	s.client.Disconnect(250)
	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
