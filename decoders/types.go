package decoders

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrUnrecognized means no beacon format matched the advertisement.
	ErrUnrecognized = errors.New("unrecognized beacon format")
	// ErrMalformed means a format matched but its length, version or marker checks failed.
	ErrMalformed = errors.New("malformed beacon payload")
)

// BeaconType classifies an advertisement. The zero value is Unrecognized.
type BeaconType int

const (
	Unrecognized BeaconType = iota
	IBeacon
	EddystoneUID
	EddystoneURL
	EddystoneTLM
	EddystoneEID
	EstimoteTelemetry
	EstimoteNearable
)

var beaconTypeNames = [...]string{
	Unrecognized:      "",
	IBeacon:           "iBeacon",
	EddystoneUID:      "eddystoneUid",
	EddystoneURL:      "eddystoneUrl",
	EddystoneTLM:      "eddystoneTlm",
	EddystoneEID:      "eddystoneEid",
	EstimoteTelemetry: "estimoteTelemetry",
	EstimoteNearable:  "estimoteNearable",
}

func (t BeaconType) String() string {
	if t < 0 || int(t) >= len(beaconTypeNames) {
		return fmt.Sprintf("BeaconType(%d)", int(t))
	}
	return beaconTypeNames[t]
}

func (t BeaconType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *BeaconType) UnmarshalText(b []byte) error {
	for i, name := range beaconTypeNames {
		if name == string(b) {
			*t = BeaconType(i)
			return nil
		}
	}
	return errors.Errorf("unknown beacon type %q", b)
}

// ServiceData is one (service UUID, data) pair of an advertisement.
type ServiceData struct {
	UUID string
	Data []byte
}

// AdvertisementReport is what a BLE scanner observed for one advertisement event.
type AdvertisementReport struct {
	ID               string
	Address          string
	LocalName        string
	TxPowerLevel     *int
	RSSI             int
	ManufacturerData []byte
	ServiceData      []ServiceData
}

// ServiceDataFor returns the data of the first service-data entry whose UUID
// matches uuid, in any of the accepted spellings (see NormalizeUUID).
func (r AdvertisementReport) ServiceDataFor(uuid string) ([]byte, bool) {
	want := NormalizeUUID(uuid)
	for _, sd := range r.ServiceData {
		if NormalizeUUID(sd.UUID) == want {
			return sd.Data, true
		}
	}
	return nil, false
}

// Payload is the format-specific part of a BeaconRecord. The set of
// implementations is closed to this package.
type Payload interface {
	BeaconType() BeaconType
	isPayload()
}

// BeaconRecord is a decoded advertisement.
type BeaconRecord struct {
	ID           string     `json:"id"`
	Address      string     `json:"address"`
	LocalName    *string    `json:"localName"`
	TxPowerLevel *int       `json:"txPowerLevel"`
	RSSI         int        `json:"rssi"`
	Type         BeaconType `json:"beaconType"`
	Payload      Payload    `json:"-"`
}

// MarshalJSON nests the payload under its beacon type name, e.g.
// {"beaconType":"eddystoneTlm","eddystoneTlm":{...}}.
func (r BeaconRecord) MarshalJSON() ([]byte, error) {
	type plain BeaconRecord
	base, err := json.Marshal(plain(r))
	if err != nil {
		return nil, err
	}
	if r.Payload == nil {
		return base, nil
	}
	p, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, err
	}
	key, _ := json.Marshal(r.Type.String())
	out := make([]byte, 0, len(base)+len(key)+len(p)+2)
	out = append(out, base[:len(base)-1]...)
	out = append(out, ',')
	out = append(out, key...)
	out = append(out, ':')
	out = append(out, p...)
	return append(out, '}'), nil
}

type IBeaconPayload struct {
	UUID    string `json:"uuid"`
	Major   uint16 `json:"major"`
	Minor   uint16 `json:"minor"`
	TxPower int8   `json:"txPower"`
}

type EddystoneUIDPayload struct {
	TxPower   int8   `json:"txPower"`
	Namespace string `json:"namespace"`
	Instance  string `json:"instance"`
}

type EddystoneURLPayload struct {
	TxPower int8   `json:"txPower"`
	URL     string `json:"url"`
}

// EddystoneTLMPayload is an unencrypted (version 0) telemetry frame.
type EddystoneTLMPayload struct {
	BatteryVoltage uint16  `json:"batteryVoltage"` // mV
	Temperature    float64 `json:"temperature"`    // °C
	AdvCount       uint32  `json:"advCnt"`
	SecCount       uint32  `json:"secCnt"`
}

type EddystoneEIDPayload struct {
	TxPower int8   `json:"txPower"`
	EID     string `json:"eid"`
}

type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// PinLevel is the state of an Estimote GPIO pin.
type PinLevel bool

const (
	PinLow  PinLevel = false
	PinHigh PinLevel = true
)

func (p PinLevel) String() string {
	if p {
		return "high"
	}
	return "low"
}

func (p PinLevel) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

type GPIO struct {
	Pin0 PinLevel `json:"pin0"`
	Pin1 PinLevel `json:"pin1"`
	Pin2 PinLevel `json:"pin2"`
	Pin3 PinLevel `json:"pin3"`
}

type ErrorFlags struct {
	Firmware bool `json:"firmware"`
	Clock    bool `json:"clock"`
}

type UptimeUnit uint8

const (
	UptimeSeconds UptimeUnit = iota
	UptimeMinutes
	UptimeHours
	UptimeDays
)

func (u UptimeUnit) String() string {
	switch u {
	case UptimeSeconds:
		return "seconds"
	case UptimeMinutes:
		return "minutes"
	case UptimeHours:
		return "hours"
	case UptimeDays:
		return "days"
	}
	return ""
}

type Uptime struct {
	Value uint16     `json:"value"`
	Unit  UptimeUnit `json:"unitCode"`
}

// Duration converts the uptime to a time.Duration.
func (u Uptime) Duration() time.Duration {
	v := time.Duration(u.Value)
	switch u.Unit {
	case UptimeMinutes:
		return v * time.Minute
	case UptimeHours:
		return v * time.Hour
	case UptimeDays:
		return v * 24 * time.Hour
	}
	return v * time.Second
}

func (u Uptime) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		UnitCode UptimeUnit `json:"unitCode"`
		UnitDesc string     `json:"unitDesc"`
		Value    uint16     `json:"value"`
	}{u.Unit, u.Unit.String(), u.Value})
}

// TelemetrySubFrameA carries motion data. Errors is set for protocol versions
// 1 and 2, Pressure only for version 2.
type TelemetrySubFrameA struct {
	Acceleration Vector3     `json:"acceleration"` // g
	Moving       bool        `json:"moving"`
	GPIO         GPIO        `json:"gpio"`
	Errors       *ErrorFlags `json:"errors,omitempty"`
	Pressure     *float64    `json:"pressure,omitempty"` // Pa
}

// TelemetrySubFrameB carries environment and power data. Errors is set for
// protocol version 0; from version 1 on byte 19 is the battery level instead.
type TelemetrySubFrameB struct {
	MagneticField  Vector3     `json:"magneticField"`
	Light          float64     `json:"light"` // lux
	Uptime         Uptime      `json:"uptime"`
	Temperature    float64     `json:"temperature"`    // °C
	BatteryVoltage *uint16     `json:"batteryVoltage"` // mV, nil when unknown
	Errors         *ErrorFlags `json:"errors,omitempty"`
	BatteryLevel   *uint8      `json:"batteryLevel,omitempty"` // %, nil when unknown
}

type EstimoteTelemetryPayload struct {
	ProtocolVersion uint8               `json:"protocolVersion"`
	SubFrameType    uint8               `json:"subFrameType"`
	ShortIdentifier string              `json:"shortIdentifier"`
	SubFrameA       *TelemetrySubFrameA `json:"subFrameA,omitempty"`
	SubFrameB       *TelemetrySubFrameB `json:"subFrameB,omitempty"`
}

type EstimoteNearablePayload struct {
	NearableID   string  `json:"nearableId"`
	Temperature  float64 `json:"temperature"` // °C
	Moving       bool    `json:"moving"`
	Acceleration Vector3 `json:"acceleration"` // mg
}

func (IBeaconPayload) BeaconType() BeaconType           { return IBeacon }
func (EddystoneUIDPayload) BeaconType() BeaconType      { return EddystoneUID }
func (EddystoneURLPayload) BeaconType() BeaconType      { return EddystoneURL }
func (EddystoneTLMPayload) BeaconType() BeaconType      { return EddystoneTLM }
func (EddystoneEIDPayload) BeaconType() BeaconType      { return EddystoneEID }
func (EstimoteTelemetryPayload) BeaconType() BeaconType { return EstimoteTelemetry }
func (EstimoteNearablePayload) BeaconType() BeaconType  { return EstimoteNearable }

func (IBeaconPayload) isPayload()           {}
func (EddystoneUIDPayload) isPayload()      {}
func (EddystoneURLPayload) isPayload()      {}
func (EddystoneTLMPayload) isPayload()      {}
func (EddystoneEIDPayload) isPayload()      {}
func (EstimoteTelemetryPayload) isPayload() {}
func (EstimoteNearablePayload) isPayload()  {}
