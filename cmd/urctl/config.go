package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/arloliu/go-rtde/internal/bridge"
	"github.com/arloliu/go-rtde/logger"
	"github.com/arloliu/go-rtde/rtde"
	"github.com/arloliu/go-rtde/rtdeconn"
	"github.com/arloliu/go-rtde/urscript"
	"github.com/joho/godotenv"
)

// Environment variables overriding the config file.
const (
	envHost       = "URCTL_HOST"
	envLogLevel   = "URCTL_LOG_LEVEL"
	envMQTTBroker = "URCTL_MQTT_BROKER"
)

type fieldConfig struct {
	Name string `toml:"name"`
	Type string `toml:"type"`
	Init any    `toml:"init"`
}

type mqttConfig struct {
	Broker      string `toml:"broker"`
	ClientID    string `toml:"client_id"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	TopicPrefix string `toml:"topic_prefix"`
	QoS         int    `toml:"qos"`
	MinInterval string `toml:"min_interval"`
}

type fileConfig struct {
	Host             string        `toml:"host"`
	RTDEPort         int           `toml:"rtde_port"`
	ScriptPort       int           `toml:"script_port"`
	Timeout          string        `toml:"timeout"`
	ReconnectTimeout string        `toml:"reconnect_timeout"`
	ReconnectDelay   string        `toml:"reconnect_delay"`
	LogLevel         string        `toml:"log_level"`
	Outputs          []fieldConfig `toml:"outputs"`
	Inputs           []fieldConfig `toml:"inputs"`
	MQTT             mqttConfig    `toml:"mqtt"`
}

// appConfig is the resolved urctl configuration.
type appConfig struct {
	Host             string
	RTDEPort         int
	ScriptPort       int
	Timeout          time.Duration
	ReconnectTimeout time.Duration
	ReconnectDelay   time.Duration
	LogLevel         logger.LogLevel
	Outputs          []rtde.FieldDesc
	Inputs           []rtde.FieldDesc

	MQTT        bridge.ClientConfig
	QoS         byte
	MinInterval time.Duration
}

func defaultAppConfig() appConfig {
	return appConfig{
		Host:             "127.0.0.1",
		RTDEPort:         rtdeconn.DefaultPort,
		ScriptPort:       urscript.DefaultPort,
		Timeout:          rtdeconn.DefaultTimeout,
		ReconnectTimeout: rtdeconn.DefaultReconnectTimeout,
		ReconnectDelay:   rtdeconn.DefaultReconnectDelay,
		LogLevel:         logger.InfoLevel,
		MQTT: bridge.ClientConfig{
			ClientID:    "urctl",
			TopicPrefix: "ur",
		},
	}
}

// loadConfig reads the optional TOML file at path, then applies the .env file of the
// working directory and the URCTL_* environment variables.
func loadConfig(path string) (appConfig, error) {
	cfg := defaultAppConfig()

	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return appConfig{}, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return appConfig{}, fmt.Errorf("load .env: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return appConfig{}, err
	}

	return cfg, nil
}

func applyFile(cfg *appConfig, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown config key %q", undecoded[0].String())
	}

	if meta.IsDefined("host") {
		cfg.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("rtde_port") {
		cfg.RTDEPort = raw.RTDEPort
	}
	if meta.IsDefined("script_port") {
		cfg.ScriptPort = raw.ScriptPort
	}

	durations := []struct {
		key string
		val string
		dst *time.Duration
	}{
		{"timeout", raw.Timeout, &cfg.Timeout},
		{"reconnect_timeout", raw.ReconnectTimeout, &cfg.ReconnectTimeout},
		{"reconnect_delay", raw.ReconnectDelay, &cfg.ReconnectDelay},
		{"mqtt.min_interval", raw.MQTT.MinInterval, &cfg.MinInterval},
	}
	for _, d := range durations {
		if !meta.IsDefined(strings.Split(d.key, ".")...) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.val))
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("log_level") {
		level, ok := logger.ParseLevel(raw.LogLevel)
		if !ok {
			return fmt.Errorf("invalid log_level %q", raw.LogLevel)
		}
		cfg.LogLevel = level
	}

	if meta.IsDefined("outputs") {
		cfg.Outputs = toFieldDescs(raw.Outputs)
	}
	if meta.IsDefined("inputs") {
		cfg.Inputs = toFieldDescs(raw.Inputs)
	}

	if meta.IsDefined("mqtt", "broker") {
		cfg.MQTT.Broker = strings.TrimSpace(raw.MQTT.Broker)
	}
	if meta.IsDefined("mqtt", "client_id") {
		cfg.MQTT.ClientID = raw.MQTT.ClientID
	}
	if meta.IsDefined("mqtt", "username") {
		cfg.MQTT.Username = raw.MQTT.Username
	}
	if meta.IsDefined("mqtt", "password") {
		cfg.MQTT.Password = raw.MQTT.Password
	}
	if meta.IsDefined("mqtt", "topic_prefix") {
		cfg.MQTT.TopicPrefix = raw.MQTT.TopicPrefix
	}
	if meta.IsDefined("mqtt", "qos") {
		if raw.MQTT.QoS < 0 || raw.MQTT.QoS > 2 {
			return errors.New("mqtt.qos out of range [0, 2]")
		}
		cfg.QoS = byte(raw.MQTT.QoS)
	}

	return nil
}

func applyEnv(cfg *appConfig) error {
	if v, ok := os.LookupEnv(envHost); ok && strings.TrimSpace(v) != "" {
		cfg.Host = strings.TrimSpace(v)
	}

	if v, ok := os.LookupEnv(envLogLevel); ok && v != "" {
		level, valid := logger.ParseLevel(v)
		if !valid {
			return fmt.Errorf("invalid %s %q", envLogLevel, v)
		}
		cfg.LogLevel = level
	}

	if v, ok := os.LookupEnv(envMQTTBroker); ok {
		cfg.MQTT.Broker = strings.TrimSpace(v)
	}

	return nil
}

func toFieldDescs(in []fieldConfig) []rtde.FieldDesc {
	out := make([]rtde.FieldDesc, 0, len(in))
	for _, f := range in {
		out = append(out, rtde.FieldDesc{
			Name: strings.TrimSpace(f.Name),
			Type: strings.ToUpper(strings.TrimSpace(f.Type)),
			Init: f.Init,
		})
	}

	return out
}

// sessionConfig builds the RTDE session configuration.
func (c appConfig) sessionConfig(log logger.Logger) (*rtdeconn.SessionConfig, error) {
	opts := []rtdeconn.ConnOption{
		rtdeconn.WithPort(c.RTDEPort),
		rtdeconn.WithTimeout(c.Timeout),
		rtdeconn.WithReconnectTimeout(c.ReconnectTimeout),
		rtdeconn.WithReconnectDelay(c.ReconnectDelay),
		rtdeconn.WithLogger(log),
	}
	if c.Outputs != nil {
		opts = append(opts, rtdeconn.WithOutputFields(c.Outputs))
	}
	if c.Inputs != nil {
		opts = append(opts, rtdeconn.WithInputFields(c.Inputs))
	}

	return rtdeconn.NewSessionConfig(c.Host, opts...)
}

// clientConfig builds the script client configuration.
func (c appConfig) clientConfig(log logger.Logger) (*urscript.ClientConfig, error) {
	return urscript.NewClientConfig(c.Host,
		urscript.WithPort(c.ScriptPort),
		urscript.WithTimeout(c.Timeout),
		urscript.WithLogger(log),
	)
}
