package decoders

import (
	"bytes"
	"encoding/binary"
	"strings"
)

// bluetoothBaseSuffix is the tail shared by every 16-bit alias of the
// Bluetooth base UUID 0000xxxx-0000-1000-8000-00805f9b34fb.
const bluetoothBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID lowercases a service UUID and strips dashes. A 128-bit UUID
// built on the Bluetooth base UUID is reduced to its 16-bit alias, so
// "0000FEAA-0000-1000-8000-00805F9B34FB" and "FEAA" both become "feaa".
func NormalizeUUID(u string) string {
	u = strings.ToLower(strings.ReplaceAll(u, "-", ""))
	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, bluetoothBaseSuffix) {
		return u[4:8]
	}
	return u
}

// Detect classifies an advertisement without decoding it. Checks run in a
// fixed order and the first match wins:
//
//  1. iBeacon manufacturer-data prefix
//  2. Eddystone service data, by frame-type nibble
//  3. Estimote telemetry service data
//  4. Estimote company code in manufacturer data
func Detect(r AdvertisementReport) BeaconType {
	if len(r.ManufacturerData) >= len(iBeaconPrefix) && bytes.Equal(r.ManufacturerData[:len(iBeaconPrefix)], iBeaconPrefix) {
		return IBeacon
	}
	if data, ok := r.ServiceDataFor(EddystoneServiceUUID); ok && len(data) > 0 {
		switch data[0] >> 4 {
		case eddystoneFrameUID:
			return EddystoneUID
		case eddystoneFrameURL:
			return EddystoneURL
		case eddystoneFrameTLM:
			return EddystoneTLM
		case eddystoneFrameEID:
			return EddystoneEID
		}
	}
	if data, ok := r.ServiceDataFor(EstimoteTelemetryServiceUUID); ok && len(data) > 0 {
		return EstimoteTelemetry
	}
	if company, err := Uint16(r.ManufacturerData, 0, binary.LittleEndian); err == nil && company == EstimoteCompanyID {
		return EstimoteNearable
	}
	return Unrecognized
}
