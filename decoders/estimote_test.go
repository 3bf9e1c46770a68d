package decoders

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// subFrameBV1 has magnetic field (1, -1, 0), light 2^3*5*0.72, uptime 291
// hours, temperature -8.5 °C, battery 3000 mV and battery level 0x55.
func subFrameBV1() []byte {
	return []byte{
		0x12,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0x01,
		0x40, 0xC0, 0x00,
		0x35,
		0x23, 0x21, 0xDE, 0xE3, 0x2E,
		0x55,
	}
}

// subFrameAV2 has acceleration (2, -2, 0), moving, firmware error, pins 1 and
// 3 high and pressure 101325 Pa.
func subFrameAV2() []byte {
	return []byte{
		0x22,
		0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA,
		0x00,
		0x7F, 0x81, 0x00,
		0x00, 0x00,
		0xA5,
		0x00, 0xCD, 0x8B, 0x01,
	}
}

func TestEstimoteTelemetrySubFrameB(t *testing.T) {
	p, err := ParseEstimoteTelemetry(subFrameBV1())
	require.NoError(t, err)

	assert.Equal(t, uint8(1), p.ProtocolVersion)
	assert.Equal(t, uint8(1), p.SubFrameType)
	assert.Equal(t, "0102030405060708", p.ShortIdentifier)
	require.Nil(t, p.SubFrameA)
	require.NotNil(t, p.SubFrameB)

	b := p.SubFrameB
	assert.Equal(t, Vector3{X: 1, Y: -1, Z: 0}, b.MagneticField)
	assert.InDelta(t, 28.8, b.Light, 1e-9)
	assert.Equal(t, Uptime{Value: 291, Unit: UptimeHours}, b.Uptime)
	assert.Equal(t, 291*time.Hour, b.Uptime.Duration())
	assert.Equal(t, -8.5, b.Temperature)
	require.NotNil(t, b.BatteryVoltage)
	assert.Equal(t, uint16(3000), *b.BatteryVoltage)
	require.NotNil(t, b.BatteryLevel)
	assert.Equal(t, uint8(0x55), *b.BatteryLevel)
	assert.Nil(t, b.Errors)
}

func TestEstimoteTelemetryUnknownBattery(t *testing.T) {
	data := subFrameBV1()
	data[17] |= 0xFC
	data[18] = 0xFF
	data[19] = 0xFF

	p, err := ParseEstimoteTelemetry(data)
	require.NoError(t, err)
	assert.Nil(t, p.SubFrameB.BatteryVoltage)
	assert.Nil(t, p.SubFrameB.BatteryLevel)
	// the temperature bits sharing byte 17 are untouched
	assert.Equal(t, -8.5, p.SubFrameB.Temperature)
}

func TestEstimoteTelemetrySubFrameBV0ErrorFlags(t *testing.T) {
	data := subFrameBV1()
	data[0] = 0x02
	data[19] = 0x02

	p, err := ParseEstimoteTelemetry(data)
	require.NoError(t, err)
	assert.Nil(t, p.SubFrameB.BatteryLevel)
	assert.Equal(t, &ErrorFlags{Firmware: false, Clock: true}, p.SubFrameB.Errors)
}

func TestEstimoteTelemetrySubFrameAV2(t *testing.T) {
	p, err := ParseEstimoteTelemetry(subFrameAV2())
	require.NoError(t, err)

	assert.Equal(t, uint8(2), p.ProtocolVersion)
	require.NotNil(t, p.SubFrameA)
	a := p.SubFrameA
	assert.Equal(t, Vector3{X: 2, Y: -2, Z: 0}, a.Acceleration)
	assert.True(t, a.Moving)
	assert.Equal(t, GPIO{Pin0: PinLow, Pin1: PinHigh, Pin2: PinLow, Pin3: PinHigh}, a.GPIO)
	assert.Equal(t, &ErrorFlags{Firmware: true, Clock: false}, a.Errors)
	require.NotNil(t, a.Pressure)
	assert.Equal(t, 101325.0, *a.Pressure)
}

func TestEstimoteTelemetrySubFrameAV1(t *testing.T) {
	data := subFrameAV2()[:17]
	data[0] = 0x12
	data[15] = 0x0C // bits 2-3 are not error flags in v1
	data[16] = 0x03

	p, err := ParseEstimoteTelemetry(data)
	require.NoError(t, err)
	a := p.SubFrameA
	assert.False(t, a.Moving)
	assert.Equal(t, &ErrorFlags{Firmware: true, Clock: true}, a.Errors)
	assert.Nil(t, a.Pressure)
}

func TestEstimoteTelemetrySubFrameAV0(t *testing.T) {
	data := subFrameAV2()[:16]
	data[0] = 0x02

	p, err := ParseEstimoteTelemetry(data)
	require.NoError(t, err)
	assert.Nil(t, p.SubFrameA.Errors)
	assert.Nil(t, p.SubFrameA.Pressure)
	assert.True(t, p.SubFrameA.Moving)
}

func TestEstimoteTelemetryRejects(t *testing.T) {
	tests := []struct {
		name string
		data func() []byte
	}{
		{"not a telemetry frame", func() []byte { d := subFrameBV1(); d[0] = 0x11; return d }},
		{"protocol version 3", func() []byte { d := subFrameBV1(); d[0] = 0x32; return d }},
		{"sub-frame type 2", func() []byte { d := subFrameBV1(); d[9] = 0x02; return d }},
		{"sub-frame B short", func() []byte { return subFrameBV1()[:19] }},
		{"sub-frame A v2 short", func() []byte { return subFrameAV2()[:19] }},
		{"sub-frame A v1 short", func() []byte { d := subFrameAV2()[:16]; d[0] = 0x12; return d }},
		{"header only", func() []byte { return subFrameBV1()[:9] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEstimoteTelemetry(tt.data())
			assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
		})
	}
}

func nearableFrame() []byte {
	return []byte{
		0x5D, 0x01, 0x01,
		0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88,
		0x00, 0x00,
		0xE0, 0xFF,
		0x40,
		0x40, 0xC0, 0x00,
	}
}

func TestParseEstimoteNearable(t *testing.T) {
	p, err := ParseEstimoteNearable(nearableFrame())
	require.NoError(t, err)
	assert.Equal(t, EstimoteNearablePayload{
		NearableID:   "1122334455667788",
		Temperature:  -2,
		Moving:       true,
		Acceleration: Vector3{X: 1000, Y: -1000, Z: 0},
	}, p)
}

func TestParseEstimoteNearableRejects(t *testing.T) {
	data := nearableFrame()
	data[2] = 0x02
	_, err := ParseEstimoteNearable(data)
	assert.True(t, errors.Is(err, ErrMalformed))

	_, err = ParseEstimoteNearable(nearableFrame()[:18])
	assert.True(t, errors.Is(err, ErrMalformed))
}
