package main

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// influxSink writes one point per decoded record. The measurement is the
// beacon type and the fields are the flattened payload.
type influxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

func newInfluxSink(cfg *Config) *influxSink {
	client := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
	influxLog.Info("influx client ready", "url", cfg.InfluxURL, "org", cfg.InfluxOrg, "bucket", cfg.InfluxBucket)
	return &influxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
	}
}

func (s *influxSink) name() string { return "influx" }

func (s *influxSink) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

func (s *influxSink) publish(ctx context.Context, evt CallbackEvent) error {
	p, err := buildPoint(evt)
	if err != nil {
		return err
	}
	return s.writeAPI.WritePoint(ctx, p)
}

func buildPoint(evt CallbackEvent) (*write.Point, error) {
	if evt.Record == nil {
		return nil, fmt.Errorf("event for %s has no record", evt.DeviceId)
	}
	tags := map[string]string{
		"device":  evt.DeviceId,
		"gateway": evt.GatewayID,
	}

	// round trip through JSON so the fields match what every other sink sees
	b, err := json.Marshal(evt.Record.Payload)
	if err != nil {
		return nil, err
	}
	var payload any
	if err := json.Unmarshal(b, &payload); err != nil {
		return nil, err
	}

	flat := make(map[string]any)
	flatten("", payload, flat)

	fields := make(map[string]any, len(flat)+1)
	for k, v := range flat {
		if fv, ok := normalizeFieldValue(v); ok {
			fields[sanitizeFieldKey(k)] = fv
		}
	}
	fields["rssi"] = float64(evt.Record.RSSI)

	return write.NewPoint(evt.Type, tags, fields, time.UnixMilli(evt.Timestamp)), nil
}

// flatten joins nested keys with "_"; arrays become comma separated strings.
func flatten(prefix string, v any, out map[string]any) {
	key := func(k string) string {
		if prefix == "" {
			return k
		}
		return prefix + "_" + k
	}
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			flatten(key(k), val, out)
		}
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		out[prefix] = strings.Join(parts, ",")
	case nil:
	default:
		out[prefix] = t
	}
}

func normalizeFieldValue(v any) (any, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case bool:
		return x, true
	case string:
		return x, true
	default:
		return nil, false
	}
}

var fieldKeyRe = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

func sanitizeFieldKey(k string) string {
	k = strings.TrimSpace(k)
	k = fieldKeyRe.ReplaceAllString(k, "_")
	k = strings.Trim(k, "_")
	if k == "" {
		return "field"
	}
	return k
}
