package publish

import (
	"encoding/json"
	"errors"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/ztkent/lux-meter/internal/config"
)

const (
	DefaultClientID   = "lux-meter"
	DefaultStateTopic = "lux-meter/state"

	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	unitLux                = "lx"
	deviceClassIlluminance = "illuminance"
	stateClassMeasurement  = "measurement"
	valueTemplateLux       = "{{ value_json.lux }}"

	disconnectQuiesceMs = 250
)

var l = logrus.New()

func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		l = logger
	}
}

// MQTTPublisher sends each measurement as a JSON state message. When a
// discovery topic is configured it first announces a Home Assistant
// illuminance sensor, retained.
type MQTTPublisher struct {
	client     mqtt.Client
	stateTopic string
}

func NewMQTT(cfg config.MQTTConfig) (*MQTTPublisher, error) {
	cfg = withDefaults(cfg)
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return newMQTTWithClient(client, cfg), nil
}

func newMQTTWithClient(client mqtt.Client, cfg config.MQTTConfig) *MQTTPublisher {
	cfg = withDefaults(cfg)
	m := &MQTTPublisher{client: client, stateTopic: cfg.StateTopic}
	if cfg.DiscoveryTopic != "" {
		if err := publishJSON(client, cfg.DiscoveryTopic, true, discoveryPayload(cfg)); err != nil {
			l.Errorf("mqtt discovery publish error: %v", err)
		}
	}
	return m
}

func withDefaults(cfg config.MQTTConfig) config.MQTTConfig {
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.StateTopic == "" {
		cfg.StateTopic = DefaultStateTopic
	}
	return cfg
}

func (m *MQTTPublisher) Publish(ms Measurement) error {
	if m.client == nil {
		return errors.New("mqtt client not connected")
	}
	b, err := json.Marshal(ms)
	if err != nil {
		return err
	}
	token := m.client.Publish(m.stateTopic, 0, false, b)
	token.Wait()
	return token.Error()
}

func (m *MQTTPublisher) Close() error {
	if m.client != nil {
		m.client.Disconnect(disconnectQuiesceMs)
	}
	return nil
}

func discoveryPayload(cfg config.MQTTConfig) map[string]interface{} {
	name := cfg.DiscoveryName
	if name == "" {
		name = fmt.Sprintf("VEML7700 %s", cfg.ClientID)
	}
	uid := cfg.DiscoveryUniqueID
	if uid == "" {
		uid = cfg.ClientID
	}
	return map[string]interface{}{
		keyName:                name,
		keyStateTopic:          cfg.StateTopic,
		keyUnitOfMeasurement:   unitLux,
		keyDeviceClass:         deviceClassIlluminance,
		keyStateClass:          stateClassMeasurement,
		keyValueTemplate:       valueTemplateLux,
		keyJSONAttributesTopic: cfg.StateTopic,
		keyUniqueID:            uid,
	}
}

func publishJSON(client mqtt.Client, topic string, retained bool, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	token := client.Publish(topic, 0, retained, b)
	token.Wait()
	return token.Error()
}
