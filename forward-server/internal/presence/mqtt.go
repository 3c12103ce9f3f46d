package presence

import (
	"encoding/json"
	"fmt"
	"time"

	"goforward/forward-server/internal/config"
	"goforward/pkg/styles"
	"goforward/pkg/types"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttPublishTimeout = 2 * time.Second
)

// Event es lo que se publica en <topic>/<event> cuando cambia el pool.
type Event struct {
	Event      string    `json:"event"`
	WorkerID   string    `json:"worker_id"`
	RemoteAddr string    `json:"remote_addr"`
	PoolSize   int       `json:"pool_size"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTTracker publica altas y bajas de workers. Los heartbeats no se publican.
type MQTTTracker struct {
	client publisher
	topic  string
	now    func() time.Time
}

// ConnectMQTT abre la conexión con reconexión automática, como el emisor de orion.
func ConnectMQTT(cfg config.MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		styles.PrintFS("success", "[MQTT] Conectado a %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		styles.PrintFS("warn", "[MQTT] Conexión perdida con %s, reintentando: %v", cfg.Broker, err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", cfg.Broker, err)
	}
	return client, nil
}

func NewMQTTTracker(client publisher, topic string) *MQTTTracker {
	return &MQTTTracker{client: client, topic: topic, now: time.Now}
}

func (t *MQTTTracker) WorkerJoined(info types.WorkerInfo, size int) {
	t.publish(Event{Event: "join", WorkerID: info.ID, RemoteAddr: info.RemoteAddr, PoolSize: size})
}

func (t *MQTTTracker) WorkerLeft(info types.WorkerInfo, size int, reason string) {
	t.publish(Event{Event: "leave", WorkerID: info.ID, RemoteAddr: info.RemoteAddr, PoolSize: size, Reason: reason})
}

func (t *MQTTTracker) WorkerAlive(types.WorkerInfo) {}

func (t *MQTTTracker) publish(ev Event) {
	ev.At = t.now().UTC()
	payload, err := json.Marshal(ev)
	if err != nil {
		styles.PrintFS("error", "[MQTT] Error serializando evento %s: %v", ev.Event, err)
		return
	}

	topic := fmt.Sprintf("%s/%s", t.topic, ev.Event)
	token := t.client.Publish(topic, 1, false, payload)
	go func() {
		if !token.WaitTimeout(mqttPublishTimeout) {
			styles.PrintFS("warn", "[MQTT] Timeout publicando en %s", topic)
			return
		}
		if err := token.Error(); err != nil {
			styles.PrintFS("error", "[MQTT] Error publicando en %s: %v", topic, err)
		}
	}()
}
