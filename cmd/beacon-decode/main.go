package main

/*
* CLI to decode a single beacon advertisement
 */

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"beacon-parser/decoders"
)

func PrintFatal(msg string, args ...interface{}) {
	os.Stderr.WriteString(color.RedString(msg, args...) + "\n")
	os.Exit(1)
}

func decodeHex(name, s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrapf(err, "--%s must be hex", name)
	}
	return b, nil
}

// reportFromFlags builds the advertisement either from raw AD structures
// (--adv, --scan) or from explicit --mfg and --service values. Explicit values
// are added on top of whatever the raw data carried.
func reportFromFlags(c *cli.Context) (decoders.AdvertisementReport, error) {
	var report decoders.AdvertisementReport

	adv, err := decodeHex("adv", c.String("adv"))
	if err != nil {
		return report, err
	}
	rsp, err := decodeHex("scan", c.String("scan"))
	if err != nil {
		return report, err
	}
	if adv != nil || rsp != nil {
		if report, err = decoders.MergeAdvertisingData(adv, rsp); err != nil {
			return report, err
		}
	}

	mfg, err := decodeHex("mfg", c.String("mfg"))
	if err != nil {
		return report, err
	}
	if mfg != nil {
		report.ManufacturerData = mfg
	}

	for _, sd := range c.StringSlice("service") {
		uuid, data, ok := strings.Cut(sd, "=")
		if !ok {
			return report, errors.Errorf("--service %q must be uuid=hex", sd)
		}
		b, err := decodeHex("service", data)
		if err != nil {
			return report, err
		}
		report.ServiceData = append(report.ServiceData, decoders.ServiceData{UUID: uuid, Data: b})
	}

	report.ID = c.String("id")
	report.Address = c.String("id")
	report.RSSI = c.Int("rssi")
	if name := c.String("name"); name != "" {
		report.LocalName = name
	}
	return report, nil
}

func decodeCommand(c *cli.Context, out io.Writer) error {
	report, err := reportFromFlags(c)
	if err != nil {
		return err
	}

	var rec *decoders.BeaconRecord
	if forced := c.String("type"); forced != "" {
		var t decoders.BeaconType
		if err := t.UnmarshalText([]byte(forced)); err != nil {
			return err
		}
		rec, err = decoders.DecodeAs(t, report)
	} else {
		rec, err = decoders.Decode(report)
	}
	if err != nil {
		return err
	}

	if !c.Bool("quiet") {
		fmt.Fprintln(os.Stderr, color.GreenString("decoded %s", rec.Type))
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}

func newApp(out io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "beacon-decode"
	app.Usage = "Decode an iBeacon, Eddystone or Estimote advertisement"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "adv,a",
			Usage: "Advertising data AD structures in hex",
		},
		cli.StringFlag{
			Name:  "scan,s",
			Usage: "Scan response AD structures in hex",
		},
		cli.StringFlag{
			Name:  "mfg,m",
			Usage: "Manufacturer specific data in hex, company ID included",
		},
		cli.StringSliceFlag{
			Name:  "service",
			Usage: "Service data as uuid=hex, e.g. feaa=20000bb8...",
		},
		cli.StringFlag{
			Name:  "type,t",
			Usage: "Force a decoder (iBeacon, eddystoneUid, eddystoneUrl, eddystoneTlm, eddystoneEid, estimoteTelemetry, estimoteNearable)",
		},
		cli.StringFlag{
			Name:  "id",
			Usage: "Peripheral identifier to put on the record",
		},
		cli.StringFlag{
			Name:  "name",
			Usage: "Local name to put on the record",
		},
		cli.IntFlag{
			Name:  "rssi",
			Usage: "Received signal strength in dBm",
		},
		cli.BoolFlag{
			Name:  "quiet,q",
			Usage: "Only print the JSON record",
		},
	}
	app.Action = func(c *cli.Context) error {
		return decodeCommand(c, out)
	}
	return app
}

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		PrintFatal("%v", err)
	}
}
