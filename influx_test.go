package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacon-parser/decoders"
)

func TestBuildPoint(t *testing.T) {
	rec := &decoders.BeaconRecord{
		ID:   "c1a2b3c4d5e6",
		RSSI: -70,
		Type: decoders.EddystoneTLM,
		Payload: decoders.EddystoneTLMPayload{
			BatteryVoltage: 3000,
			Temperature:    21.5,
			AdvCount:       5,
			SecCount:       10,
		},
	}
	evt := CallbackEvent{
		DeviceId:  "C1A2B3C4D5E6",
		GatewayID: "AABBCCDDEEFF",
		Type:      rec.Type.String(),
		Timestamp: 1700000000000,
		Record:    rec,
	}

	p, err := buildPoint(evt)
	require.NoError(t, err)
	assert.Equal(t, "eddystoneTlm", p.Name())
	assert.Equal(t, time.UnixMilli(1700000000000), p.Time())

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, map[string]string{"device": "C1A2B3C4D5E6", "gateway": "AABBCCDDEEFF"}, tags)

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, map[string]any{
		"batteryVoltage": 3000.0,
		"temperature":    21.5,
		"advCnt":         5.0,
		"secCnt":         10.0,
		"rssi":           -70.0,
	}, fields)
}

func TestBuildPointWithoutRecord(t *testing.T) {
	_, err := buildPoint(CallbackEvent{DeviceId: "x"})
	assert.Error(t, err)
}

func TestFlattenNested(t *testing.T) {
	in := map[string]any{
		"subFrameB": map[string]any{
			"magneticField":  map[string]any{"x": 1.0},
			"batteryVoltage": nil,
			"uptime":         map[string]any{"unitDesc": "hours", "value": 291.0},
		},
		"list": []any{1.0, "a"},
	}
	out := map[string]any{}
	flatten("", in, out)

	assert.Equal(t, map[string]any{
		"subFrameB_magneticField_x": 1.0,
		"subFrameB_uptime_unitDesc": "hours",
		"subFrameB_uptime_value":    291.0,
		"list":                      "1,a",
	}, out)
}

func TestSanitizeFieldKey(t *testing.T) {
	assert.Equal(t, "a_b", sanitizeFieldKey(" a.b "))
	assert.Equal(t, "field", sanitizeFieldKey("--"))
}
