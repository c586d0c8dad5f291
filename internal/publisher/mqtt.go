// Package publisher pushes zone readings to an MQTT broker so home
// automation stacks can subscribe to them.
package publisher

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/touchline-tools/touchlined/internal/models"
)

const (
	availabilityOnline  = "online"
	availabilityOffline = "offline"
	connectTimeout      = 10 * time.Second
)

// Options configures the MQTT connection and topic layout.
type Options struct {
	Broker      string // host:port
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// MQTTPublisher publishes each zone reading as retained JSON under
// <prefix>/<zone_id>/state, plus an availability topic at <prefix>/status.
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
	logger *logrus.Logger
}

type zoneMessage struct {
	ZoneID      string    `json:"zone_id"`
	Name        string    `json:"name"`
	CurrentTemp *float64  `json:"current_temp"`
	TargetTemp  *float64  `json:"target_temp"`
	ObservedAt  time.Time `json:"observed_at"`
}

// NewMQTTPublisher connects to the broker and announces availability.
func NewMQTTPublisher(opts Options, logger *logrus.Logger) (*MQTTPublisher, error) {
	clientOpts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s", opts.Broker)).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(connectTimeout)
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}
	clientOpts.SetWill(opts.TopicPrefix+"/status", availabilityOffline, 1, true)

	client := mqtt.NewClient(clientOpts)
	if token := client.Connect(); token.WaitTimeout(connectTimeout) && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", opts.Broker, token.Error())
	}

	p := &MQTTPublisher{client: client, prefix: opts.TopicPrefix, logger: logger}
	p.publishAvailability(availabilityOnline)
	return p, nil
}

// Publish sends every reading in the snapshot, then the availability state.
func (p *MQTTPublisher) Publish(snapshot models.ZoneSnapshot) {
	for zoneID, reading := range snapshot.Readings {
		payload, err := json.Marshal(zoneMessage{
			ZoneID:      reading.ZoneID,
			Name:        reading.Name,
			CurrentTemp: reading.CurrentTemp,
			TargetTemp:  reading.TargetTemp,
			ObservedAt:  reading.ObservedAt,
		})
		if err != nil {
			p.logger.WithError(err).WithField("zone_id", zoneID).Error("Failed to encode zone message")
			continue
		}
		topic := fmt.Sprintf("%s/%s/state", p.prefix, zoneID)
		if token := p.client.Publish(topic, 1, true, payload); token.WaitTimeout(connectTimeout) && token.Error() != nil {
			p.logger.WithError(token.Error()).WithField("topic", topic).Error("Failed to publish zone state")
		}
	}

	state := availabilityOnline
	if snapshot.Offline {
		state = availabilityOffline
	}
	p.publishAvailability(state)
}

func (p *MQTTPublisher) publishAvailability(state string) {
	topic := p.prefix + "/status"
	if token := p.client.Publish(topic, 1, true, state); token.WaitTimeout(connectTimeout) && token.Error() != nil {
		p.logger.WithError(token.Error()).WithField("topic", topic).Error("Failed to publish availability")
	}
}

// Close announces offline and disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.publishAvailability(availabilityOffline)
	p.client.Disconnect(250)
}
