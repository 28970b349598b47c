package cli

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/hcsr04/logging"
)

const (
	mqttTimeout = 5 * time.Second
	mqttQoS     = 1
	// Time in milliseconds given to in flight messages when disconnecting.
	mqttQuiesce = 250
)

// A publisher forwards results to some other system.
type publisher interface {
	Publish(payload interface{}) error
	Close() error
}

// newMQTTClient is replaced in tests.
var newMQTTClient = mqtt.NewClient

type mqttPublisher struct {
	client mqtt.Client
	topic  string
	logger logging.Logger
}

func newMQTTPublisher(broker, topic string, logger logging.Logger) (*mqttPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("hcsr04-" + utils.RandomAlphaString(6)).
		SetConnectTimeout(mqttTimeout).
		SetAutoReconnect(true)
	client := newMQTTClient(opts)
	if err := waitToken(client.Connect()); err != nil {
		return nil, errors.Wrapf(err, "cannot connect to MQTT broker %s", broker)
	}
	logger.Debugw("connected to MQTT broker", "broker", broker, "topic", topic)
	return &mqttPublisher{client: client, topic: topic, logger: logger}, nil
}

// Publish sends payload as JSON.
func (p *mqttPublisher) Publish(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := waitToken(p.client.Publish(p.topic, mqttQoS, false, data)); err != nil {
		return errors.Wrapf(err, "cannot publish to %s", p.topic)
	}
	return nil
}

func (p *mqttPublisher) Close() error {
	p.client.Disconnect(mqttQuiesce)
	return nil
}

func waitToken(token mqtt.Token) error {
	if !token.WaitTimeout(mqttTimeout) {
		return errors.New("timed out waiting for the MQTT broker")
	}
	return token.Error()
}
