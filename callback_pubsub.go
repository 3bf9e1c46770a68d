package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub/v2"

	"beacon-parser/decoders"
)

type CallbackEvent struct {
	DeviceId  string         `json:"deviceId"`
	Type      string         `json:"type"`
	Timestamp int64          `json:"timestamp"`
	GatewayID string         `json:"gateway_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	BackendID int64          `json:"backend_id,omitempty"`

	Record *decoders.BeaconRecord `json:"-"`
}

func newCallbackEvent(in MQTTMessage, rec *decoders.BeaconRecord, deviceName string) CallbackEvent {
	evt := CallbackEvent{
		DeviceId:  strings.ToUpper(in.DeviceMAC),
		Type:      rec.Type.String(),
		Timestamp: in.Timestamp,
		GatewayID: strings.ToUpper(in.GatewayMAC),
		Data: map[string]any{
			"parsed_json": rec,
			"raw_data":    in.Payload,
		},
		BackendID: in.MessageID,
		Record:    rec,
	}
	if evt.Timestamp == 0 {
		evt.Timestamp = nowMillis()
	}
	if in.RSSI != nil {
		evt.Data["rssi"] = *in.RSSI
	}
	if deviceName != "" {
		evt.Data["device_name"] = deviceName
	}
	return evt
}

type pubsubSink struct {
	client   *pubsub.Client
	pub      *pubsub.Publisher
	topic    string
	ordering bool
}

func newPubSubSink(ctx context.Context, cfg *Config) (*pubsubSink, error) {
	cl, err := pubsub.NewClient(ctx, cfg.GCPProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}

	// topic ID ("beacon-callbacks") or full name
	pub := cl.Publisher(cfg.CallbackTopic)
	pub.PublishSettings.DelayThreshold = 50 * time.Millisecond
	pub.PublishSettings.Timeout = 10 * time.Second
	pub.EnableMessageOrdering = cfg.CallbackOrdering

	pubsubLog.Info("Pub/Sub v2 initialized", "topic", cfg.CallbackTopic, "ordering", cfg.CallbackOrdering)
	return &pubsubSink{client: cl, pub: pub, topic: cfg.CallbackTopic, ordering: cfg.CallbackOrdering}, nil
}

func (s *pubsubSink) name() string { return "pubsub" }

func (s *pubsubSink) Close() {
	s.pub.Stop()
	_ = s.client.Close()
}

func (s *pubsubSink) publish(ctx context.Context, evt CallbackEvent) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal callback event: %w", err)
	}

	msg := &pubsub.Message{
		Data: b,
		Attributes: map[string]string{
			"source":     "beacon-parser",
			"type":       evt.Type,
			"deviceId":   evt.DeviceId,
			"gateway_id": evt.GatewayID,
		},
	}
	if s.ordering {
		// per-device ordering, the subscription must have ordering enabled
		msg.OrderingKey = evt.DeviceId
	}
	id, err := s.pub.Publish(ctx, msg).Get(ctx)
	if err != nil {
		if s.ordering {
			s.pub.ResumePublish(evt.DeviceId)
		}
		return fmt.Errorf("publish failed: %w", err)
	}
	pubsubLog.Debug("publishCallback ok", "topic", s.topic, "id", id, "bytes", len(b))
	return nil
}
