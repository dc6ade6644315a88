package broker

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
)

const (
	// at-least-once delivery for every publish and subscribe.
	qos = 1

	connectTimeout  = 4 * time.Second
	reconnectPeriod = 5 * time.Second
	publishTimeout  = 3 * time.Second
)

// MQTTCfg holds broker connection settings.
type MQTTCfg struct {
	// URL of the broker, e.g. "wss://host:port/mqtt" or "tcp://host:1883".
	URL      string
	ClientID string

	// transport-level credentials, not chat credentials.
	Username string
	Password string
}

// MQTT is the paho-backed Broker. One instance owns one connection; it is
// injected into whoever needs the transport rather than cached globally.
type MQTT struct {
	sync.Mutex

	cfg    *MQTTCfg
	client mqtt.Client

	// handlers by exact subscribed topic filter, re-attached on reconnect.
	handlers map[string]Handler
}

func NewMQTT(cfg *MQTTCfg) *MQTT {
	b := &MQTT{
		cfg:      cfg,
		handlers: make(map[string]Handler),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(reconnectPeriod)

	opts.OnConnect = func(c mqtt.Client) {
		glog.Infof("broker: connected to %s", cfg.URL)
		b.resubscribe()
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		glog.Errorf("broker: connection lost: %v", err)
	}

	b.client = mqtt.NewClient(opts)
	return b
}

// Connect blocks until the initial connection is up or fails.
func (b *MQTT) Connect() error {
	t := b.client.Connect()
	t.Wait()
	if err := t.Error(); err != nil {
		return fmt.Errorf("broker: connect %s: %v", b.cfg.URL, err)
	}
	return nil
}

func (b *MQTT) Disconnect() {
	b.client.Disconnect(uint(publishTimeout / time.Millisecond))
	glog.Info("broker: disconnected")
}

func (b *MQTT) Subscribe(topic string, h Handler) error {
	b.Lock()
	b.handlers[topic] = h
	b.Unlock()

	t := b.client.Subscribe(topic, qos, func(_ mqtt.Client, m mqtt.Message) {
		glog.V(5).Infof("broker: message on %s: %d bytes", m.Topic(), len(m.Payload()))
		h(m.Topic(), m.Payload())
	})
	t.Wait()
	if err := t.Error(); err != nil {
		b.Lock()
		delete(b.handlers, topic)
		b.Unlock()
		return fmt.Errorf("broker: subscribe %s: %v", topic, err)
	}
	return nil
}

func (b *MQTT) Unsubscribe(topics ...string) error {
	b.Lock()
	for _, topic := range topics {
		delete(b.handlers, topic)
	}
	b.Unlock()

	t := b.client.Unsubscribe(topics...)
	t.Wait()
	if err := t.Error(); err != nil {
		return fmt.Errorf("broker: unsubscribe %v: %v", topics, err)
	}
	return nil
}

func (b *MQTT) Publish(topic string, payload []byte) error {
	t := b.client.Publish(topic, qos, false, payload)
	if !t.WaitTimeout(publishTimeout) {
		return fmt.Errorf("broker: publish %s: timeout", topic)
	}
	if err := t.Error(); err != nil {
		return fmt.Errorf("broker: publish %s: %v", topic, err)
	}
	return nil
}

// resubscribe re-attaches handlers after an automatic reconnect; with clean
// sessions the server forgets subscriptions on connection loss.
func (b *MQTT) resubscribe() {
	b.Lock()
	handlers := make(map[string]Handler, len(b.handlers))
	for topic, h := range b.handlers {
		handlers[topic] = h
	}
	b.Unlock()

	for topic, h := range handlers {
		h := h
		t := b.client.Subscribe(topic, qos, func(_ mqtt.Client, m mqtt.Message) {
			h(m.Topic(), m.Payload())
		})
		t.Wait()
		if err := t.Error(); err != nil {
			glog.Errorf("broker: resubscribe %s: %v", topic, err)
		}
	}
}
