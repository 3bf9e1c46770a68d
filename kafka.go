package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// kafkaSink writes decoded records keyed by device, and undecodable
// advertisements to an optional dead-letter topic.
type kafkaSink struct {
	main *kafka.Writer
	dlq  *kafka.Writer
}

func newKafkaSink(cfg *Config) *kafkaSink {
	balancer := &kafka.Hash{}

	s := &kafkaSink{
		main: &kafka.Writer{
			Addr:     kafka.TCP(cfg.KafkaBrokers...),
			Topic:    cfg.KafkaTopic,
			Balancer: balancer,

			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,

			RequiredAcks: kafka.RequireOne,
			Compression:  kafka.Snappy,
		},
	}
	if cfg.KafkaDLQTopic != "" {
		s.dlq = &kafka.Writer{
			Addr:     kafka.TCP(cfg.KafkaBrokers...),
			Topic:    cfg.KafkaDLQTopic,
			Balancer: balancer,

			BatchSize:    20,
			BatchTimeout: 10 * time.Millisecond,

			RequiredAcks: kafka.RequireOne,
			Compression:  kafka.Snappy,
		}
	}
	kafkaLog.Info("kafka writer ready", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic, "dlq", cfg.KafkaDLQTopic)
	return s
}

func (s *kafkaSink) name() string { return "kafka" }

func (s *kafkaSink) Close() {
	_ = s.main.Close()
	if s.dlq != nil {
		_ = s.dlq.Close()
	}
}

func (s *kafkaSink) publish(ctx context.Context, evt CallbackEvent) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return s.main.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.DeviceId),
		Value: b,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(evt.Type)},
			{Key: "gateway_id", Value: []byte(evt.GatewayID)},
		},
	})
}

// dlqEnvelope wraps a rejected message with the reason it was rejected.
type dlqEnvelope struct {
	Error      string      `json:"error"`
	Original   MQTTMessage `json:"original"`
	ReceivedAt time.Time   `json:"receivedAt"`
}

func (s *kafkaSink) publishDLQ(ctx context.Context, in MQTTMessage, reason error) error {
	b, err := json.Marshal(dlqEnvelope{
		Error:      reason.Error(),
		Original:   in,
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return s.dlq.WriteMessages(ctx, kafka.Message{
		Key:   []byte(in.DeviceMAC),
		Value: b,
	})
}
