package decoders

import (
	"math"

	"github.com/pkg/errors"
)

const (
	// EstimoteTelemetryServiceUUID carries Estimote telemetry frames in service data.
	EstimoteTelemetryServiceUUID = "fe9a"
	// EstimoteCompanyID prefixes nearable manufacturer data (little-endian).
	EstimoteCompanyID = 0x015D

	estimoteTelemetryFrame = 0x2
	estimoteMaxProtocol    = 2
	estimoteNearableFrame  = 0x01
)

// Estimote telemetry layout, byte offsets into the service data:
//
//	0     protocol version (high nibble) | frame type 0x2 (low nibble)
//	1-8   short identifier
//	9     sub-frame type (bits 0-1)
//
// Sub-frame A (motion):
//
//	10-12 acceleration x/y/z
//	13-14 motion state durations
//	15    GPIO (bits 4-7) | errors, v2 (bits 2-3) | moving (bits 0-1)
//	16    errors, v1 (bits 0-1)
//	16-19 pressure, v2 (LE, 1/256 Pa)
//
// Sub-frame B (environment):
//
//	10-12 magnetic field x/y/z
//	13    ambient light exponent (bits 4-7) | mantissa (bits 0-3)
//	14-15 uptime value (12 bits) | uptime unit (byte 15 bits 4-5)
//	15-17 temperature (12 bits from byte 15 bit 6)
//	17-18 battery voltage (14 bits from byte 17 bit 2)
//	19    errors, v0 (bits 0-1) | battery level, v1+
const (
	subFrameA = 0
	subFrameB = 1

	subFrameAMinLenV0 = 16
	subFrameAMinLenV1 = 17
	subFrameAMinLenV2 = 20
	subFrameBMinLen   = 20
)

// ParseEstimoteTelemetry decodes an Estimote telemetry frame (protocol versions 0-2).
func ParseEstimoteTelemetry(data []byte) (EstimoteTelemetryPayload, error) {
	if len(data) < 10 {
		return EstimoteTelemetryPayload{}, errors.Wrapf(ErrMalformed, "estimote telemetry: length %d < 10", len(data))
	}
	if data[0]&0x0f != estimoteTelemetryFrame {
		return EstimoteTelemetryPayload{}, errors.Wrapf(ErrMalformed, "estimote telemetry: frame type 0x%x", data[0]&0x0f)
	}
	version := data[0] >> 4
	if version > estimoteMaxProtocol {
		return EstimoteTelemetryPayload{}, errors.Wrapf(ErrMalformed, "estimote telemetry: protocol version %d", version)
	}

	r := &frameReader{b: data}
	res := EstimoteTelemetryPayload{
		ProtocolVersion: version,
		SubFrameType:    data[9] & 0x03,
		ShortIdentifier: r.hex(1, 9),
	}

	switch res.SubFrameType {
	case subFrameA:
		minLen := subFrameAMinLenV0
		switch version {
		case 1:
			minLen = subFrameAMinLenV1
		case 2:
			minLen = subFrameAMinLenV2
		}
		if len(data) < minLen {
			return EstimoteTelemetryPayload{}, errors.Wrapf(ErrMalformed, "estimote telemetry A v%d: length %d < %d", version, len(data), minLen)
		}
		res.SubFrameA = parseSubFrameA(r, version)
	case subFrameB:
		if len(data) < subFrameBMinLen {
			return EstimoteTelemetryPayload{}, errors.Wrapf(ErrMalformed, "estimote telemetry B: length %d < %d", len(data), subFrameBMinLen)
		}
		res.SubFrameB = parseSubFrameB(r, version)
	default:
		return EstimoteTelemetryPayload{}, errors.Wrapf(ErrMalformed, "estimote telemetry: sub-frame type %d", res.SubFrameType)
	}
	if r.err != nil {
		return EstimoteTelemetryPayload{}, errors.Wrap(r.err, "estimote telemetry")
	}
	return res, nil
}

func parseSubFrameA(r *frameReader, version uint8) *TelemetrySubFrameA {
	a := &TelemetrySubFrameA{
		Acceleration: Vector3{
			X: float64(r.i8(10)) * 2 / 127.0,
			Y: float64(r.i8(11)) * 2 / 127.0,
			Z: float64(r.i8(12)) * 2 / 127.0,
		},
		Moving: r.bits(15*8, 2) != 0,
		GPIO: GPIO{
			Pin0: PinLevel(r.bits(15*8+4, 1) == 1),
			Pin1: PinLevel(r.bits(15*8+5, 1) == 1),
			Pin2: PinLevel(r.bits(15*8+6, 1) == 1),
			Pin3: PinLevel(r.bits(15*8+7, 1) == 1),
		},
	}
	switch version {
	case 2:
		a.Errors = &ErrorFlags{
			Firmware: r.bits(15*8+2, 1) == 1,
			Clock:    r.bits(15*8+3, 1) == 1,
		}
		p := float64(r.u32le(16)) / 256.0
		a.Pressure = &p
	case 1:
		// TODO: confirm the v1 error bits against Estimote reference captures; the
		// documented layout puts them in byte 16 rather than next to the GPIO bits.
		a.Errors = &ErrorFlags{
			Firmware: r.bits(16*8, 1) == 1,
			Clock:    r.bits(16*8+1, 1) == 1,
		}
	}
	return a
}

func parseSubFrameB(r *frameReader, version uint8) *TelemetrySubFrameB {
	light := r.u8(13)
	b := &TelemetrySubFrameB{
		MagneticField: Vector3{
			X: float64(r.i8(10)) * 2 / 128.0,
			Y: float64(r.i8(11)) * 2 / 128.0,
			Z: float64(r.i8(12)) * 2 / 128.0,
		},
		Light: math.Pow(2, float64(light>>4)) * float64(light&0x0f) * 0.72,
		Uptime: Uptime{
			Value: uint16(r.bits(14*8, 12)),
			Unit:  UptimeUnit(r.bits(15*8+4, 2)),
		},
		Temperature: float64(SignExtend(r.bits(15*8+6, 12), 12)) / 16.0,
	}
	if mv := r.bits(17*8+2, 14); !AllOnes(mv, 14) {
		v := uint16(mv)
		b.BatteryVoltage = &v
	}
	if version == 0 {
		b.Errors = &ErrorFlags{
			Firmware: r.bits(19*8, 1) == 1,
			Clock:    r.bits(19*8+1, 1) == 1,
		}
	} else if lvl := r.u8(19); lvl != 0xff {
		b.BatteryLevel = &lvl
	}
	return b
}

// ParseEstimoteNearable decodes Estimote nearable manufacturer data.
//
//	0-1   company 0x015D (LE)
//	2     frame type version 0x01
//	3-10  nearable identifier
//	13-14 temperature, low 12 bits of LE16, 1/16 °C
//	15    moving (bit 6)
//	16-18 acceleration x/y/z, 15.625 mg per unit
func ParseEstimoteNearable(mfg []byte) (EstimoteNearablePayload, error) {
	if len(mfg) < 19 {
		return EstimoteNearablePayload{}, errors.Wrapf(ErrMalformed, "estimote nearable: length %d < 19", len(mfg))
	}
	if mfg[2] != estimoteNearableFrame {
		return EstimoteNearablePayload{}, errors.Wrapf(ErrMalformed, "estimote nearable: frame version 0x%02x", mfg[2])
	}
	r := &frameReader{b: mfg}
	res := EstimoteNearablePayload{
		NearableID:  r.hex(3, 11),
		Temperature: float64(SignExtend(r.bits(13*8, 12), 12)) / 16.0,
		Moving:      r.bits(15*8+6, 1) == 1,
		Acceleration: Vector3{
			X: float64(r.i8(16)) * 15.625,
			Y: float64(r.i8(17)) * 15.625,
			Z: float64(r.i8(18)) * 15.625,
		},
	}
	if r.err != nil {
		return EstimoteNearablePayload{}, errors.Wrap(r.err, "estimote nearable")
	}
	return res, nil
}
