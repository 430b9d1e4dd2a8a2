// Package publish delivers decoded snapshots to external consumers.
package publish

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/easun/isolar-poller/models"
)

// MQTTPublisher publishes each snapshot as retained JSON under per-field
// topics rooted at TopicPrefix. Reconnection is handled the way the
// teacher's collector handles it, just in the publishing direction.
type MQTTPublisher struct {
	client       mqtt.Client
	topicPrefix  string
}

// NewMQTTPublisher connects to brokerURL and returns a ready publisher.
// An empty brokerURL is not treated specially here; main skips constructing
// the publisher when no broker URL is configured.
func NewMQTTPublisher(brokerURL, topicPrefix, clientID string) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("✅ MQTT connected to %s", brokerURL)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("⚠️ MQTT connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out", brokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", brokerURL, err)
	}

	return &MQTTPublisher{client: client, topicPrefix: topicPrefix}, nil
}

// Publish sends the whole snapshot as one retained JSON message on
// "<prefix>/snapshot", plus per-record messages for consumers that only
// want battery, pv, grid, output or status.
func (p *MQTTPublisher) Publish(snap models.Snapshot) error {
	if err := p.publishJSON("snapshot", snap); err != nil {
		return err
	}
	if snap.Battery != nil {
		if err := p.publishJSON("battery", snap.Battery); err != nil {
			return err
		}
	}
	if snap.PV != nil {
		if err := p.publishJSON("pv", snap.PV); err != nil {
			return err
		}
	}
	if snap.Grid != nil {
		if err := p.publishJSON("grid", snap.Grid); err != nil {
			return err
		}
	}
	if snap.Output != nil {
		if err := p.publishJSON("output", snap.Output); err != nil {
			return err
		}
	}
	if snap.SystemStatus != nil {
		if err := p.publishJSON("status", snap.SystemStatus); err != nil {
			return err
		}
	}
	return nil
}

func (p *MQTTPublisher) publishJSON(subtopic string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("mqtt: marshal %s: %w", subtopic, err)
	}
	topic := fmt.Sprintf("%s/%s", p.topicPrefix, subtopic)
	token := p.client.Publish(topic, 1, true, body)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt: publish %s timed out", topic)
	}
	return token.Error()
}

// Close disconnects cleanly.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
