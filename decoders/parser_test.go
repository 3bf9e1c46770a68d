package decoders

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tlmReport() AdvertisementReport {
	tx := -12
	return AdvertisementReport{
		ID:           "c1a2b3c4d5e6",
		Address:      "c1:a2:b3:c4:d5:e6",
		LocalName:    "tlm-1",
		TxPowerLevel: &tx,
		RSSI:         -71,
		ServiceData: []ServiceData{{
			UUID: "feaa",
			Data: []byte{0x20, 0x00, 0x0B, 0xB8, 0x01, 0x90, 0x00, 0x00, 0x00, 0x05, 0x00, 0x00, 0x00, 0x0A},
		}},
	}
}

func TestDecodeMergesCommonFields(t *testing.T) {
	rec, err := Decode(tlmReport())
	require.NoError(t, err)

	assert.Equal(t, "c1a2b3c4d5e6", rec.ID)
	assert.Equal(t, "c1:a2:b3:c4:d5:e6", rec.Address)
	require.NotNil(t, rec.LocalName)
	assert.Equal(t, "tlm-1", *rec.LocalName)
	require.NotNil(t, rec.TxPowerLevel)
	assert.Equal(t, -12, *rec.TxPowerLevel)
	assert.Equal(t, -71, rec.RSSI)
	assert.Equal(t, EddystoneTLM, rec.Type)
	assert.Equal(t, rec.Type, rec.Payload.BeaconType())
	assert.Equal(t, EddystoneTLMPayload{BatteryVoltage: 3000, Temperature: 1.5625, AdvCount: 5, SecCount: 10}, rec.Payload)
}

func TestDecodePayloadMatchesType(t *testing.T) {
	reports := []AdvertisementReport{
		{ManufacturerData: iBeaconFrame()},
		{ManufacturerData: nearableFrame()},
		{ServiceData: []ServiceData{{UUID: "fe9a", Data: subFrameBV1()}}},
		{ServiceData: []ServiceData{{UUID: "feaa", Data: []byte{0x30, 0xF0, 1, 2, 3, 4, 5, 6, 7, 8}}}},
		tlmReport(),
	}
	for _, r := range reports {
		rec, err := Decode(r)
		require.NoError(t, err)
		assert.Equal(t, rec.Type, rec.Payload.BeaconType())
	}
}

func TestDecodeUnrecognized(t *testing.T) {
	rec, err := Decode(AdvertisementReport{
		ManufacturerData: []byte{0x06, 0x00, 0x01, 0x09},
		ServiceData:      []ServiceData{{UUID: "180f", Data: []byte{0x64}}},
	})
	assert.Nil(t, rec)
	assert.True(t, errors.Is(err, ErrUnrecognized))
}

func TestDecodeDetectedButMalformed(t *testing.T) {
	r := AdvertisementReport{ServiceData: []ServiceData{{UUID: "feaa", Data: make([]byte, 17)}}}
	require.Equal(t, EddystoneUID, Detect(r))

	rec, err := Decode(r)
	assert.Nil(t, rec)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestDecodeAbsentNameIsNil(t *testing.T) {
	r := tlmReport()
	r.LocalName = ""
	r.TxPowerLevel = nil
	rec, err := Decode(r)
	require.NoError(t, err)
	assert.Nil(t, rec.LocalName)
	assert.Nil(t, rec.TxPowerLevel)
}

func TestDecodeAs(t *testing.T) {
	r := AdvertisementReport{
		ManufacturerData: nearableFrame(),
		ServiceData:      []ServiceData{{UUID: "feaa", Data: []byte{0x20}}},
	}
	rec, err := DecodeAs(EstimoteNearable, r)
	require.NoError(t, err)
	assert.Equal(t, EstimoteNearable, rec.Type)

	_, err = DecodeAs(EstimoteTelemetry, r)
	assert.True(t, errors.Is(err, ErrMalformed))

	_, err = DecodeAs(Unrecognized, r)
	assert.True(t, errors.Is(err, ErrUnrecognized))
}

func TestDecodeIsDeterministic(t *testing.T) {
	first, err := Decode(tlmReport())
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*BeaconRecord, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = Decode(tlmReport())
		}(i)
	}
	wg.Wait()
	for _, rec := range results {
		assert.Equal(t, first, rec)
	}
}

func TestBeaconRecordJSON(t *testing.T) {
	rec, err := Decode(tlmReport())
	require.NoError(t, err)

	b, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "c1a2b3c4d5e6",
		"address": "c1:a2:b3:c4:d5:e6",
		"localName": "tlm-1",
		"txPowerLevel": -12,
		"rssi": -71,
		"beaconType": "eddystoneTlm",
		"eddystoneTlm": {"batteryVoltage": 3000, "temperature": 1.5625, "advCnt": 5, "secCnt": 10}
	}`, string(b))
}

func TestTelemetryJSON(t *testing.T) {
	rec, err := Decode(AdvertisementReport{
		ID:          "x",
		ServiceData: []ServiceData{{UUID: "fe9a", Data: subFrameBV1()}},
	})
	require.NoError(t, err)

	b, err := json.Marshal(rec)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	tel := out["estimoteTelemetry"].(map[string]any)
	sub := tel["subFrameB"].(map[string]any)
	assert.Equal(t, map[string]any{"unitCode": 2.0, "unitDesc": "hours", "value": 291.0}, sub["uptime"])
	assert.Equal(t, 3000.0, sub["batteryVoltage"])
	assert.Nil(t, out["localName"])
}
