package decoders

import (
	"encoding/binary"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// EddystoneServiceUUID is the 16-bit service UUID carrying all Eddystone frames.
const EddystoneServiceUUID = "feaa"

// Eddystone frame types, the high nibble of the first service-data byte.
const (
	eddystoneFrameUID = 0x0
	eddystoneFrameURL = 0x1
	eddystoneFrameTLM = 0x2
	eddystoneFrameEID = 0x3
)

var eddystoneURLSchemes = map[byte]string{
	0x00: "http://www.",
	0x01: "https://www.",
	0x02: "http://",
	0x03: "https://",
}

var eddystoneURLEncodings = map[byte]string{
	0x00: ".com/",
	0x01: ".org/",
	0x02: ".edu/",
	0x03: ".net/",
	0x04: ".info/",
	0x05: ".biz/",
	0x06: ".gov/",
	0x07: ".com",
	0x08: ".org",
	0x09: ".edu",
	0x0a: ".net",
	0x0b: ".info",
	0x0c: ".biz",
	0x0d: ".gov",
}

// ParseEddystoneUID decodes a UID frame: tx power at byte 1, 10-byte namespace,
// 6-byte instance. Frames are 18 bytes, or 20 with the two reserved bytes.
func ParseEddystoneUID(data []byte) (EddystoneUIDPayload, error) {
	if len(data) != 18 && len(data) != 20 {
		return EddystoneUIDPayload{}, errors.Wrapf(ErrMalformed, "eddystone uid: length %d", len(data))
	}
	tx, _ := Int8(data, 1)
	ns, _ := Hex(data, 2, 12, true)
	inst, _ := Hex(data, 12, 18, true)
	return EddystoneUIDPayload{TxPower: tx, Namespace: ns, Instance: inst}, nil
}

// ParseEddystoneURL decodes a URL frame. Byte 2 is the scheme prefix, the rest
// is the compressed URL where bytes 0x00-0x0d expand to common suffixes.
func ParseEddystoneURL(data []byte) (EddystoneURLPayload, error) {
	if len(data) < 4 {
		return EddystoneURLPayload{}, errors.Wrapf(ErrMalformed, "eddystone url: length %d < 4", len(data))
	}
	scheme, ok := eddystoneURLSchemes[data[2]]
	if !ok {
		return EddystoneURLPayload{}, errors.Wrapf(ErrMalformed, "eddystone url: unknown scheme 0x%02x", data[2])
	}
	var sb strings.Builder
	sb.WriteString(scheme)
	for _, c := range data[3:] {
		if exp, ok := eddystoneURLEncodings[c]; ok {
			sb.WriteString(exp)
		} else if c < utf8.RuneSelf {
			sb.WriteByte(c)
		} else {
			sb.WriteRune(utf8.RuneError)
		}
	}
	tx, _ := Int8(data, 1)
	return EddystoneURLPayload{TxPower: tx, URL: sb.String()}, nil
}

// ParseEddystoneTLM decodes a plain (version 0) telemetry frame. Encrypted
// frames (version 1) are reported as malformed.
func ParseEddystoneTLM(data []byte) (EddystoneTLMPayload, error) {
	if len(data) != 14 {
		return EddystoneTLMPayload{}, errors.Wrapf(ErrMalformed, "eddystone tlm: length %d != 14", len(data))
	}
	if data[1] != 0x00 {
		return EddystoneTLMPayload{}, errors.Wrapf(ErrMalformed, "eddystone tlm: version %d", data[1])
	}
	vbatt, _ := Uint16(data, 2, binary.BigEndian)
	temp, _ := Int16(data, 4, binary.BigEndian)
	adv, _ := Uint32(data, 6, binary.BigEndian)
	sec, _ := Uint32(data, 10, binary.BigEndian)
	return EddystoneTLMPayload{
		BatteryVoltage: vbatt,
		Temperature:    float64(temp) / 256,
		AdvCount:       adv,
		SecCount:       sec,
	}, nil
}

func ParseEddystoneEID(data []byte) (EddystoneEIDPayload, error) {
	if len(data) != 10 {
		return EddystoneEIDPayload{}, errors.Wrapf(ErrMalformed, "eddystone eid: length %d != 10", len(data))
	}
	tx, _ := Int8(data, 1)
	eid, _ := Hex(data, 2, 10, false)
	return EddystoneEIDPayload{TxPower: tx, EID: eid}, nil
}
