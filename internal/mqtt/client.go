package mqtt

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/imagelens/internal/conf"
	"github.com/tphakala/imagelens/internal/errors"
	"github.com/tphakala/imagelens/internal/logger"
)

// Metrics receives client measurements. *metrics.MQTTMetrics satisfies it.
type Metrics interface {
	UpdateConnectionStatus(connected bool)
	IncrementMessagesDelivered()
	IncrementErrors()
	IncrementReconnectAttempts()
	ObservePublish(sizeBytes int, latency time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) UpdateConnectionStatus(bool)       {}
func (noopMetrics) IncrementMessagesDelivered()       {}
func (noopMetrics) IncrementErrors()                  {}
func (noopMetrics) IncrementReconnectAttempts()       {}
func (noopMetrics) ObservePublish(int, time.Duration) {}

// client implements the Client interface.
type client struct {
	config          Config
	internalClient  mqtt.Client
	lastConnAttempt time.Time
	mu              sync.Mutex
	reconnectTimer  *time.Timer
	reconnectStop   chan struct{}
	stopOnce        sync.Once
	metrics         Metrics
}

// NewClient creates a new MQTT client from the mqtt settings section. m may
// be nil.
func NewClient(settings *conf.Settings, m Metrics) (Client, error) {
	cfg := DefaultConfig()
	cfg.Broker = settings.MQTT.Broker
	cfg.ClientID = clientID(settings.Main.Name)
	cfg.Username = settings.MQTT.Username
	cfg.Password = settings.MQTT.Password
	if settings.MQTT.Topic != "" {
		cfg.Topic = settings.MQTT.Topic
	}
	return newClient(cfg, m)
}

func newClient(cfg Config, m Metrics) (*client, error) {
	if _, err := parseBroker(cfg.Broker); err != nil {
		return nil, err
	}
	if m == nil {
		m = noopMetrics{}
	}
	return &client{
		config:        cfg,
		reconnectStop: make(chan struct{}),
		metrics:       m,
	}, nil
}

func clientID(name string) string {
	if name == "" {
		name = "imagelens"
	}
	return fmt.Sprintf("%s-%d", name, time.Now().UnixNano()%100000)
}

func parseBroker(broker string) (*url.URL, error) {
	u, err := url.Parse(broker)
	if err == nil && (u.Scheme == "" || u.Hostname() == "") {
		err = fmt.Errorf("missing scheme or host")
	}
	if err != nil {
		return nil, errors.New(fmt.Errorf("invalid broker URL %q: %w", broker, err)).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return u, nil
}

// Connect attempts to establish a connection to the MQTT broker.
// It first resolves the broker's hostname and then attempts to connect.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if since := time.Since(c.lastConnAttempt); since < c.config.ReconnectCooldown {
		return fmt.Errorf("connection attempt too recent, last attempt was %v ago", since)
	}
	c.lastConnAttempt = time.Now()

	u, err := parseBroker(c.config.Broker)
	if err != nil {
		return err
	}

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			var dnsErr *net.DNSError
			if errors.As(err, &dnsErr) {
				return dnsErr
			}
			return fmt.Errorf("failed to resolve hostname %s: %w", host, err)
		}
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.internalClient = mqtt.NewClient(opts)

	token := c.internalClient.Connect()
	if !waitToken(ctx, token, c.config.ConnectTimeout) {
		return fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connection error: %w", err)
	}

	c.metrics.UpdateConnectionStatus(true)
	return nil
}

// waitToken waits for token until timeout or ctx ends.
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) bool {
	select {
	case <-token.Done():
		return true
	case <-time.After(timeout):
		return false
	case <-ctx.Done():
		return false
	}
}

// Publish sends a message to the specified topic on the MQTT broker.
func (c *client) Publish(ctx context.Context, topic string, payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsConnected() {
		return fmt.Errorf("not connected to MQTT broker")
	}

	GetLogger().Debug("publishing", logger.String("topic", topic), logger.Int("bytes", len(payload)))

	start := time.Now()
	token := c.internalClient.Publish(topic, 0, c.config.Retain, payload)
	if !waitToken(ctx, token, c.config.PublishTimeout) {
		c.metrics.IncrementErrors()
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		c.metrics.IncrementErrors()
		return err
	}

	c.metrics.IncrementMessagesDelivered()
	c.metrics.ObservePublish(len(payload), time.Since(start))
	return nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker and stops reconnecting.
func (c *client) Disconnect() {
	c.stopOnce.Do(func() { close(c.reconnectStop) })

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.internalClient != nil && c.internalClient.IsConnected() {
		c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
		c.metrics.UpdateConnectionStatus(false)
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
}

func (c *client) onConnect(mqtt.Client) {
	GetLogger().Info("connected to MQTT broker", logger.String("broker", c.config.Broker))
	c.metrics.UpdateConnectionStatus(true)
}

func (c *client) onConnectionLost(_ mqtt.Client, err error) {
	GetLogger().Warn("connection to MQTT broker lost",
		logger.String("broker", c.config.Broker),
		logger.Error(err))
	c.metrics.UpdateConnectionStatus(false)
	c.metrics.IncrementErrors()
	c.startReconnectTimer()
}

func (c *client) startReconnectTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnectTimer = time.AfterFunc(c.config.ReconnectDelay, func() {
		select {
		case <-c.reconnectStop:
			return
		default:
			c.reconnectWithBackoff()
		}
	})
}

func (c *client) reconnectWithBackoff() {
	backoff := time.Second
	maxBackoff := 5 * time.Minute

	for {
		c.metrics.IncrementReconnectAttempts()
		ctx, cancel := context.WithTimeout(context.Background(), c.config.ConnectTimeout)
		err := c.Connect(ctx)
		cancel()

		if err == nil {
			GetLogger().Info("reconnected to MQTT broker")
			return
		}

		c.metrics.IncrementErrors()
		GetLogger().Warn("failed to reconnect to MQTT broker",
			logger.Error(err),
			logger.Duration("retry_in", backoff))

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxBackoff)
		case <-c.reconnectStop:
			return
		}
	}
}
