package decoders

import (
	"encoding/binary"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// iBeacon manufacturer data: company 0x004C (LE), type 0x02, length 0x15.
var iBeaconPrefix = []byte{0x4C, 0x00, 0x02, 0x15}

const iBeaconLen = 25

// ParseIBeacon decodes Apple iBeacon manufacturer data.
//
//	0-3   4C 00 02 15
//	4-19  proximity UUID
//	20-21 major (BE)
//	22-23 minor (BE)
//	24    measured power at 1 m (signed dBm)
func ParseIBeacon(mfg []byte) (IBeaconPayload, error) {
	if len(mfg) < iBeaconLen {
		return IBeaconPayload{}, errors.Wrapf(ErrMalformed, "ibeacon: length %d < %d", len(mfg), iBeaconLen)
	}
	id, err := uuid.FromBytes(mfg[4:20])
	if err != nil {
		return IBeaconPayload{}, errors.Wrap(ErrMalformed, err.Error())
	}
	major, _ := Uint16(mfg, 20, binary.BigEndian)
	minor, _ := Uint16(mfg, 22, binary.BigEndian)
	tx, _ := Int8(mfg, 24)
	return IBeaconPayload{
		UUID:    strings.ToUpper(id.String()),
		Major:   major,
		Minor:   minor,
		TxPower: tx,
	}, nil
}
