package decoders

import (
	"fmt"

	"github.com/pkg/errors"
)

// AD structure types read from raw advertising data.
const (
	adShortName     = 0x08
	adCompleteName  = 0x09
	adTxPower       = 0x0A
	adServiceData16 = 0x16
	adManufacturer  = 0xFF
)

// ParseAdvertisingData walks the length-type-value AD structures of a raw
// advertising (or scan response) payload and fills the fields a beacon decoder
// needs. Identity and RSSI come from the scanner, not the payload, and are left
// for the caller to set.
//
// A zero length byte ends the data (the rest is padding). A structure whose
// length runs past the buffer makes the whole payload malformed.
func ParseAdvertisingData(raw []byte) (AdvertisementReport, error) {
	var r AdvertisementReport
	if err := r.addADStructures(raw); err != nil {
		return AdvertisementReport{}, err
	}
	return r, nil
}

// MergeAdvertisingData parses an advertising payload and its scan response into
// one report. Fields in the scan response only fill in what the advertisement
// left empty, except that service data entries accumulate.
func MergeAdvertisingData(adv, scanRsp []byte) (AdvertisementReport, error) {
	r, err := ParseAdvertisingData(adv)
	if err != nil {
		return AdvertisementReport{}, err
	}
	if len(scanRsp) == 0 {
		return r, nil
	}
	if err := r.addADStructures(scanRsp); err != nil {
		return AdvertisementReport{}, errors.Wrap(err, "scan response")
	}
	return r, nil
}

func (r *AdvertisementReport) addADStructures(raw []byte) error {
	completeName := false
	for i, idx := 0, 0; i < len(raw); idx++ {
		length := int(raw[i]) // includes the type byte
		if length == 0 {
			return nil
		}
		if i+1+length > len(raw) {
			return errors.Wrapf(ErrMalformed, "AD %d length=%d at i=%d total=%d", idx, length, i, len(raw))
		}
		typ, data := raw[i+1], raw[i+2:i+1+length]
		switch typ {
		case adManufacturer:
			if r.ManufacturerData == nil {
				r.ManufacturerData = append([]byte{}, data...)
			}
		case adServiceData16:
			if len(data) < 2 {
				return errors.Wrapf(ErrMalformed, "AD %d service data too short length=%d", idx, length)
			}
			r.ServiceData = append(r.ServiceData, ServiceData{
				// UUID is little-endian on the wire
				UUID: fmt.Sprintf("%02x%02x", data[1], data[0]),
				Data: append([]byte{}, data[2:]...),
			})
		case adCompleteName:
			r.LocalName = string(data)
			completeName = true
		case adShortName:
			if r.LocalName == "" && !completeName {
				r.LocalName = string(data)
			}
		case adTxPower:
			if len(data) >= 1 && r.TxPowerLevel == nil {
				tx := int(int8(data[0]))
				r.TxPowerLevel = &tx
			}
		}
		i += 1 + length
	}
	return nil
}
