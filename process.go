package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"beacon-parser/decoders"
)

// MQTTMessage is one advertisement as forwarded by a gateway, over HTTP or MQTT.
// Payload and ScanResponse are the raw AD structures in hex.
type MQTTMessage struct {
	MessageID    int64  `json:"message_id"`
	GatewayMAC   string `json:"gateway_mac"`
	GatewayHW    string `json:"gateway_hw"`
	DeviceMAC    string `json:"device_mac"`
	Payload      string `json:"payload"`
	ScanResponse string `json:"scan_response,omitempty"`
	QoS          int    `json:"qos"`
	Timestamp    int64  `json:"timestamp"`
	RSSI         *int   `json:"rssi,omitempty"`
}

type deviceDirectory interface {
	fetchGateway(ctx context.Context, mac string) (name, hwType, clientID string)
	fetchDevice(ctx context.Context, mac string) (name, deviceID, hwType string)
}

type resultStore interface {
	updateParsedJSON(ctx context.Context, backendID int64, v any) error
}

// recordSink receives every successfully decoded record.
type recordSink interface {
	name() string
	publish(ctx context.Context, evt CallbackEvent) error
}

// deadLetterSink receives advertisements that could not be decoded.
type deadLetterSink interface {
	publishDLQ(ctx context.Context, in MQTTMessage, reason error) error
}

// statusError carries the HTTP status a processing failure maps to.
type statusError struct {
	code int
	err  error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func withStatus(code int, format string, a ...any) error {
	return &statusError{code: code, err: fmt.Errorf(format, a...)}
}

func statusOf(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.code
	}
	return http.StatusInternalServerError
}

type processor struct {
	devices            deviceDirectory
	store              resultStore
	sinks              []recordSink
	dlq                deadLetterSink
	previewChars       int
	requireKnownDevice bool
}

// decode turns a gateway message into a beacon record without side effects.
func (p *processor) decode(in MQTTMessage) (*decoders.BeaconRecord, error) {
	adv, err := hex.DecodeString(in.Payload)
	if err != nil {
		return nil, withStatus(http.StatusBadRequest, "payload must be hex: %w", err)
	}
	var rsp []byte
	if in.ScanResponse != "" {
		if rsp, err = hex.DecodeString(in.ScanResponse); err != nil {
			return nil, withStatus(http.StatusBadRequest, "scan_response must be hex: %w", err)
		}
	}
	report, err := decoders.MergeAdvertisingData(adv, rsp)
	if err != nil {
		return nil, withStatus(http.StatusBadRequest, "advertising data: %w", err)
	}
	report.ID = in.DeviceMAC
	report.Address = formatMAC(in.DeviceMAC)
	if in.RSSI != nil {
		report.RSSI = *in.RSSI
	}

	rec, err := decoders.Decode(report)
	if err != nil {
		return nil, withStatus(http.StatusUnprocessableEntity, "decode: %w", err)
	}
	return rec, nil
}

// handle runs the full pipeline for one message: validate, enrich, decode,
// store the parsed JSON and fan the record out to every sink. Sink failures
// are logged and do not fail the message.
func (p *processor) handle(ctx context.Context, trace string, in MQTTMessage) (*decoders.BeaconRecord, error) {
	normalize(&in)
	logger.Info("MSG recv", "trace", trace, "msg_id", in.MessageID, "gw_mac", in.GatewayMAC, "gw_hw", in.GatewayHW,
		"dev_mac", in.DeviceMAC, "qos", in.QoS, "ts", in.Timestamp, "rssi", ptrIntStr(in.RSSI))

	if err := validate(&in); err != nil {
		return nil, withStatus(http.StatusBadRequest, "validation: %w", err)
	}
	logger.Debug("MSG payload", "trace", trace, "len", len(in.Payload), "preview", head(in.Payload, p.previewChars))

	var devName string
	if p.devices != nil {
		gwName, gwHW, gwClient := p.devices.fetchGateway(ctx, in.GatewayMAC)
		if gwName == "" && gwHW == "" {
			logger.Info("MSG gateway not found", "trace", trace, "gw_mac", in.GatewayMAC)
		} else {
			logger.Info("MSG gateway ok", "trace", trace, "name", gwName, "hw", gwHW, "client_id", gwClient)
		}

		var devHW string
		devName, _, devHW = p.devices.fetchDevice(ctx, in.DeviceMAC)
		if devHW == "" && p.requireKnownDevice {
			return nil, withStatus(http.StatusBadRequest, "device not found dev_mac=%s", in.DeviceMAC)
		}
	}

	rec, err := p.decode(in)
	if err != nil {
		if p.dlq != nil && statusOf(err) == http.StatusUnprocessableEntity {
			if dlqErr := p.dlq.publishDLQ(ctx, in, err); dlqErr != nil {
				logger.Warn("MSG dlq publish failed", "trace", trace, "err", dlqErr)
			}
		}
		return nil, err
	}
	logger.Info("MSG decode ok", "trace", trace, "type", rec.Type.String())

	if p.store != nil && in.MessageID > 0 {
		if err := p.store.updateParsedJSON(ctx, in.MessageID, rec); err != nil {
			return nil, withStatus(http.StatusInternalServerError, "db update parsed_json: %w", err)
		}
		logger.Info("MSG db update ok", "trace", trace, "message_id", in.MessageID)
	}

	evt := newCallbackEvent(in, rec, devName)
	for _, s := range p.sinks {
		if err := s.publish(ctx, evt); err != nil {
			logger.Warn("MSG publish failed", "trace", trace, "sink", s.name(), "err", err)
			continue
		}
		logger.Debug("MSG publish ok", "trace", trace, "sink", s.name(), "device", evt.DeviceId)
	}
	return rec, nil
}

func normalize(m *MQTTMessage) {
	strip := strings.NewReplacer(":", "", "-", "", ".", "", " ", "")
	m.DeviceMAC = strings.ToLower(strip.Replace(m.DeviceMAC))
	m.GatewayMAC = strings.ToUpper(strip.Replace(m.GatewayMAC))
	m.Payload = strings.TrimSpace(m.Payload)
	m.ScanResponse = strings.TrimSpace(m.ScanResponse)
}

func validate(m *MQTTMessage) error {
	if m.MessageID <= 0 {
		return fmt.Errorf("message_id must be > 0")
	}
	if m.DeviceMAC == "" {
		return fmt.Errorf("device_mac required")
	}
	if m.Payload == "" {
		return fmt.Errorf("payload empty")
	}
	if m.Timestamp <= 0 {
		return fmt.Errorf("timestamp ms required")
	}
	if !isLikelyHex(m.Payload) {
		return fmt.Errorf("payload is not hex-like")
	}
	if m.ScanResponse != "" && !isLikelyHex(m.ScanResponse) {
		return fmt.Errorf("scan_response is not hex-like")
	}
	return nil
}

func isLikelyHex(s string) bool {
	if len(s) == 0 || (len(s)%2) != 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

// formatMAC renders a 12-digit hex MAC as aa:bb:cc:dd:ee:ff; anything else is
// returned unchanged.
func formatMAC(mac string) string {
	if len(mac) != 12 || !isLikelyHex(mac) {
		return mac
	}
	parts := make([]string, 0, 6)
	for i := 0; i < 12; i += 2 {
		parts = append(parts, strings.ToLower(mac[i:i+2]))
	}
	return strings.Join(parts, ":")
}

func genTraceID() string {
	return uuid.NewString()[:8]
}

func nowMillis() int64 { return time.Now().UnixMilli() }
