// Package mqtt wraps the Eclipse Paho client behind the small publish and
// subscribe surface the bridge needs. Reconnection is delegated to Paho, the
// wrapper only re-establishes subscriptions.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/mkarlsen/tesla2mqtt/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker          string      `json:"broker"`
	ClientID        string      `json:"client_id"`
	Username        string      `json:"username"`
	Password        string      `json:"password"`
	UseTLS          bool        `json:"use_tls"`
	ClientCert      string      `json:"client_cert"`
	ClientKey       string      `json:"client_key"`
	CABundle        string      `json:"ca_bundle"`
	QoS             byte        `json:"qos"`
	LWTTopic        string      `json:"lwt_topic"`
	LWTPayload      string      `json:"lwt_payload"`
	ConnectTimeoutS int         `json:"connect_timeout_s"`
	TLSConfig       *tls.Config `json:"-"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "tesla2mqtt"
	}
	if c.ConnectTimeoutS == 0 {
		c.ConnectTimeoutS = 5
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt broker is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2")
	}
	return nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// pahoClient is the slice of paho.Client the wrapper uses, split out so
// tests can substitute a mock.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Handler receives inbound messages for a subscription.
type Handler func(topic string, payload []byte)

// PahoClient implements the bridge's Bus interface on top of Paho.
type PahoClient struct {
	raw pahoClient
	qos byte
	log logger.Logger

	mu   sync.Mutex
	subs map[string]paho.MessageHandler
}

// NewPahoClient connects to the broker. Subscriptions made through Subscribe
// are restored automatically after a reconnect.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt_client")
	pc := &PahoClient{qos: cfg.QoS, log: log, subs: make(map[string]paho.MessageHandler)}
	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected to %s", cfg.Broker)
		pc.mu.Lock()
		defer pc.mu.Unlock()
		for topic, h := range pc.subs {
			if token := c.Subscribe(topic, pc.qos, h); token.Wait() && token.Error() != nil {
				log.Errorf("resubscribe %s: %v", topic, token.Error())
			}
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.raw = c
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	opts.SetConnectTimeout(time.Duration(cfg.ConnectTimeoutS) * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.QoS, true)
	}
	return opts, nil
}

// Publish sends payload on topic and waits for the broker handshake at the
// configured QoS.
func (p *PahoClient) Publish(topic string, payload []byte, retain bool) error {
	token := p.raw.Publish(topic, p.qos, retain, payload)
	token.Wait()
	return token.Error()
}

// Subscribe registers handler for topic. The subscription survives broker
// reconnects.
func (p *PahoClient) Subscribe(topic string, handler Handler) error {
	h := func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	}
	p.mu.Lock()
	p.subs[topic] = h
	p.mu.Unlock()
	token := p.raw.Subscribe(topic, p.qos, h)
	token.Wait()
	return token.Error()
}

// Unsubscribe removes the subscription for topic.
func (p *PahoClient) Unsubscribe(topic string) error {
	p.mu.Lock()
	delete(p.subs, topic)
	p.mu.Unlock()
	token := p.raw.Unsubscribe(topic)
	token.Wait()
	return token.Error()
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	if p.raw != nil && p.raw.IsConnected() {
		p.raw.Disconnect(250)
	}
}
