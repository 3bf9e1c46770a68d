package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgStore looks up gateways and devices, stores parsed JSON on the backend
// message row and records every sighting.
type pgStore struct {
	pool   *pgxpool.Pool
	dialer *cloudsqlconn.Dialer
}

func connectDB(ctx context.Context, cfg *Config) (*pgStore, error) {
	s := &pgStore{}

	dsn := cfg.DatabaseURL
	if dsn == "" {
		dsn = fmt.Sprintf("user=%s password=%s database=%s sslmode=disable", cfg.DBUser, cfg.DBPassword, cfg.DBName)
	}
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.ParseConfig: %w", err)
	}

	if cfg.InstanceConnectionName != "" {
		var opts []cloudsqlconn.Option
		if cfg.PrivateIP {
			opts = append(opts, cloudsqlconn.WithDefaultDialOptions(cloudsqlconn.WithPrivateIP()))
		}
		d, err := cloudsqlconn.NewDialer(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("cloudsql dialer: %w", err)
		}
		s.dialer = d
		instance := cfg.InstanceConnectionName
		pcfg.ConnConfig.DialFunc = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return d.Dial(ctx, instance)
		}
	}
	pcfg.MinConns = 0
	pcfg.MaxConns = cfg.DBMaxConns
	pcfg.MaxConnIdleTime = 5 * time.Minute

	s.pool, err = pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}
	if err := s.pool.Ping(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	dbLog.Info("connected to database", "cloudsql", cfg.InstanceConnectionName != "", "max_conns", cfg.DBMaxConns)
	return s, nil
}

func (s *pgStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.dialer != nil {
		_ = s.dialer.Close()
	}
}

// macHexToBytea converts a mac in hex (with or without separators) to raw 6 bytes.
func macHexToBytea(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(":", "", "-", "", ".", "", " ", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex mac %q: %w", s, err)
	}
	if len(b) != 6 {
		return nil, fmt.Errorf("mac must be 6 bytes, got %d", len(b))
	}
	return b, nil
}

func (s *pgStore) fetchGateway(ctx context.Context, mac string) (name, hwType, clientID string) {
	bmac, err := macHexToBytea(mac)
	if err != nil {
		dbLog.Debug("fetchGateway", "err", err)
		return
	}
	row := s.pool.QueryRow(ctx,
		`SELECT gateway_name, gateway_hw_type, client_id
			FROM gateways
			WHERE gateway_mac = $1`, bmac)
	_ = row.Scan(&name, &hwType, &clientID)
	return
}

func (s *pgStore) fetchDevice(ctx context.Context, mac string) (name, deviceID, hwType string) {
	bmac, err := macHexToBytea(mac)
	if err != nil {
		dbLog.Debug("fetchDevice", "err", err)
		return
	}
	row := s.pool.QueryRow(ctx,
		`SELECT device_name, device_id, device_hw_type
			FROM devices
			WHERE device_mac = $1`, bmac)
	_ = row.Scan(&name, &deviceID, &hwType)
	return
}

// updateParsedJSON sets parser_json on the existing backend_message row (id == message_id).
func (s *pgStore) updateParsedJSON(ctx context.Context, backendID int64, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ct, err := s.pool.Exec(ctx, `UPDATE backend_message SET parser_json = $2 WHERE id = $1`, backendID, b)
	if err != nil {
		return describePgError(err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("no backend_message row found for id=%d", backendID)
	}
	return nil
}

func (s *pgStore) name() string { return "postgres" }

// publish appends the record to beacon_sightings.
func (s *pgStore) publish(ctx context.Context, evt CallbackEvent) error {
	bmac, err := macHexToBytea(evt.DeviceId)
	if err != nil {
		return err
	}
	rec, err := json.Marshal(evt.Record)
	if err != nil {
		return err
	}
	gw, _ := macHexToBytea(evt.GatewayID) // NULL when the gateway did not send one
	var rssi *int
	if evt.Record != nil {
		rssi = &evt.Record.RSSI
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO beacon_sightings (device_mac, gateway_mac, beacon_type, rssi, record, seen_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
		bmac, gw, evt.Type, rssi, rec, time.UnixMilli(evt.Timestamp).UTC())
	if err != nil {
		return describePgError(err)
	}
	return nil
}

func describePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s (%s) detail=%s: %w", pgErr.Message, pgErr.Code, pgErr.Detail, err)
	}
	return err
}
