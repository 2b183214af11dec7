package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-rtde/logger"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ClientConfig holds the broker connection parameters of Connect.
type ClientConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	ConnectTimeout time.Duration
	Logger         logger.Logger
}

// Connect connects to the broker with auto reconnect enabled. The offline payload is
// registered as the will of the state topic.
func Connect(cfg ClientConfig) (mqtt.Client, error) {
	if cfg.Broker == "" {
		return nil, errors.New("empty broker address")
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "ur"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	log := cfg.Logger.With("component", "mqtt", "broker", cfg.Broker)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(10 * time.Second)
	opts.SetWill(cfg.TopicPrefix+"/"+StateTopic, OfflinePayload, 1, true)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info("mqtt connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", "error", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect to %s: timeout after %s", cfg.Broker, cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
	}

	return client, nil
}
