package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPPort               string
	LogPayloadPreviewChars int
	RequireKnownDevice     bool

	// Postgres, either a plain DSN or Cloud SQL via the connector
	DatabaseURL            string
	DBUser                 string
	DBPassword             string
	DBName                 string
	InstanceConnectionName string
	PrivateIP              bool
	DBMaxConns             int32

	// Pub/Sub callbacks (optional)
	GCPProjectID     string
	CallbackTopic    string
	CallbackOrdering bool

	// Kafka (optional)
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaDLQTopic string

	// MQTT ingestion (optional)
	MQTTBrokerURL string
	MQTTClientID  string
	MQTTUsername  string
	MQTTPassword  string
	MQTTTopic     string
	MQTTQoS       byte

	// InfluxDB telemetry (optional)
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
}

func (c *Config) pubsubEnabled() bool { return c.GCPProjectID != "" }
func (c *Config) kafkaEnabled() bool  { return len(c.KafkaBrokers) > 0 }
func (c *Config) mqttEnabled() bool   { return c.MQTTBrokerURL != "" }
func (c *Config) influxEnabled() bool { return c.InfluxURL != "" }

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(k string) bool {
	switch strings.ToLower(os.Getenv(k)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type errList []string

func (e *errList) addf(format string, a ...any) { *e = append(*e, fmt.Sprintf(format, a...)) }

func (e *errList) require(key, val string) {
	if val == "" {
		e.addf("missing %s", key)
	}
}

// LoadConfig reads the service configuration from the environment. Postgres is
// required; Pub/Sub, Kafka, MQTT and InfluxDB are enabled by setting their
// first variable and then need the rest of their group.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		HTTPPort:               getenv("HTTPPORT", "8080"),
		LogPayloadPreviewChars: getenvInt("LOG_PAYLOAD_PREVIEW_CHARS", 32),
		RequireKnownDevice:     getenvBool("REQUIRE_KNOWN_DEVICE"),

		DatabaseURL:            os.Getenv("DATABASE_URL"),
		DBUser:                 os.Getenv("DB_USER"),
		DBPassword:             os.Getenv("DB_PASSWORD"),
		DBName:                 os.Getenv("DB_NAME"),
		InstanceConnectionName: os.Getenv("INSTANCE_CONNECTION_NAME"),
		PrivateIP:              os.Getenv("PRIVATE_IP") != "",
		DBMaxConns:             int32(getenvInt("DB_MAX_CONNS", 10)),

		GCPProjectID:     os.Getenv("GCP_PROJECT_ID"),
		CallbackTopic:    os.Getenv("CALLBACK_TOPIC"),
		CallbackOrdering: getenvBool("CALLBACK_ORDERING"),

		KafkaBrokers:  splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:    getenv("KAFKA_TOPIC", "beacon-records"),
		KafkaDLQTopic: os.Getenv("KAFKA_DLQ_TOPIC"),

		MQTTBrokerURL: os.Getenv("MQTT_BROKER_URL"),
		MQTTClientID:  getenv("MQTT_CLIENT_ID", "beacon-parser"),
		MQTTUsername:  os.Getenv("MQTT_USERNAME"),
		MQTTPassword:  os.Getenv("MQTT_PASSWORD"),
		MQTTTopic:     os.Getenv("MQTT_TOPIC"),

		InfluxURL:    os.Getenv("INFLUX_URL"),
		InfluxToken:  os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:    os.Getenv("INFLUX_ORG"),
		InfluxBucket: os.Getenv("INFLUX_BUCKET"),
	}

	var errs errList

	if cfg.DatabaseURL == "" {
		errs.require("DB_USER", cfg.DBUser)
		errs.require("DB_PASSWORD", cfg.DBPassword)
		errs.require("DB_NAME", cfg.DBName)
		errs.require("INSTANCE_CONNECTION_NAME", cfg.InstanceConnectionName)
	}
	if cfg.DBMaxConns <= 0 {
		errs.addf("DB_MAX_CONNS must be > 0")
	}
	if cfg.pubsubEnabled() {
		errs.require("CALLBACK_TOPIC", cfg.CallbackTopic)
	}
	if cfg.mqttEnabled() {
		errs.require("MQTT_TOPIC", cfg.MQTTTopic)
		qos := getenvInt("MQTT_QOS", 1)
		if qos < 0 || qos > 2 {
			errs.addf("MQTT_QOS must be 0..2, got %d", qos)
		}
		cfg.MQTTQoS = byte(qos)
	}
	if cfg.influxEnabled() {
		errs.require("INFLUX_TOKEN", cfg.InfluxToken)
		errs.require("INFLUX_ORG", cfg.InfluxOrg)
		errs.require("INFLUX_BUCKET", cfg.InfluxBucket)
	}

	if len(errs) > 0 {
		for _, e := range errs {
			logger.Error("config", "problem", e)
		}
		return nil, errors.New("missing or invalid environment variables: " + strings.Join(errs, "; "))
	}
	return cfg, nil
}
