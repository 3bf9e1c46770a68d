// Package decoders turns BLE advertisement reports into typed beacon records
// for iBeacon, Eddystone and Estimote frames.
//
// Everything here is a pure function of its input: there is no shared state,
// no I/O, and all functions are safe for concurrent use.
package decoders

import (
	"github.com/pkg/errors"
)

// Decode detects the beacon format of r and decodes it. It returns an error
// wrapping ErrUnrecognized when no format matches, or ErrMalformed /
// ErrShortBuffer when the matched format fails to decode. In every error case
// the advertisement should simply be skipped.
func Decode(r AdvertisementReport) (*BeaconRecord, error) {
	t := Detect(r)
	if t == Unrecognized {
		return nil, ErrUnrecognized
	}
	return DecodeAs(t, r)
}

// DecodeAs decodes r with the decoder for t, skipping detection.
func DecodeAs(t BeaconType, r AdvertisementReport) (*BeaconRecord, error) {
	p, err := decodePayload(t, r)
	if err != nil {
		return nil, err
	}
	rec := &BeaconRecord{
		ID:           r.ID,
		Address:      r.Address,
		TxPowerLevel: r.TxPowerLevel,
		RSSI:         r.RSSI,
		Type:         t,
		Payload:      p,
	}
	if r.LocalName != "" {
		name := r.LocalName
		rec.LocalName = &name
	}
	return rec, nil
}

func decodePayload(t BeaconType, r AdvertisementReport) (Payload, error) {
	switch t {
	case IBeacon:
		p, err := ParseIBeacon(r.ManufacturerData)
		if err != nil {
			return nil, err
		}
		return p, nil
	case EddystoneUID:
		return withServiceData(r, EddystoneServiceUUID, ParseEddystoneUID)
	case EddystoneURL:
		return withServiceData(r, EddystoneServiceUUID, ParseEddystoneURL)
	case EddystoneTLM:
		return withServiceData(r, EddystoneServiceUUID, ParseEddystoneTLM)
	case EddystoneEID:
		return withServiceData(r, EddystoneServiceUUID, ParseEddystoneEID)
	case EstimoteTelemetry:
		return withServiceData(r, EstimoteTelemetryServiceUUID, ParseEstimoteTelemetry)
	case EstimoteNearable:
		if r.ManufacturerData == nil {
			return nil, errors.Wrap(ErrMalformed, "estimote nearable: no manufacturer data")
		}
		p, err := ParseEstimoteNearable(r.ManufacturerData)
		if err != nil {
			return nil, err
		}
		return p, nil
	case Unrecognized:
		return nil, ErrUnrecognized
	}
	return nil, errors.Wrapf(ErrUnrecognized, "beacon type %d", int(t))
}

func withServiceData[P Payload](r AdvertisementReport, uuid string, parse func([]byte) (P, error)) (Payload, error) {
	data, ok := r.ServiceDataFor(uuid)
	if !ok || len(data) == 0 {
		return nil, errors.Wrapf(ErrMalformed, "no service data for %s", uuid)
	}
	p, err := parse(data)
	if err != nil {
		return nil, err
	}
	return p, nil
}
