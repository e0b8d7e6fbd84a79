package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/anicoll/fritz-collector/internal/pkg/model"
)

const (
	tableRouterStatus = "fritzbox_status"
	tableSmartPlug    = "dect200_data"
	tableSpeedtest    = "speedtest_results"
	tableWeather      = "weather_data"
	tablePriceConfig  = "electricity_price_config"
	tableConsumption  = "tibber_consumption"
	tableProviderPrc  = "tibber_prices"
	tableLive         = "tibber_live"
)

// WriteRouterSnapshot stores the status row and one row per smart plug in a
// single transaction.
func (db *Database) WriteRouterSnapshot(ctx context.Context, snap *model.RouterSnapshot) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return wrap("begin", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO fritzbox_status (online, is_online, external_ip, active_devices, time)
		VALUES ($1, $2, $3, $4, $5)`,
		snap.Status.ConnectionStatus, snap.Status.Online.Bool(), snap.Status.ExternalIP, snap.Status.ActiveDeviceCount, snap.CollectedAt,
	); err != nil {
		return wrap("insert "+tableRouterStatus, err)
	}

	batch := &pgx.Batch{}
	for _, p := range snap.SmartPlugs {
		var hkr model.ThermostatFields
		if p.Thermostat != nil {
			hkr = *p.Thermostat
		}
		batch.Queue(`
		INSERT INTO dect200_data (ain, state, power, temperature, raw_switch_state, product_name, device_name,
			manufacturer, firmware_version, present, multimeter_power, switch_power, hkr_set_temperature,
			hkr_reduce_temperature, hkr_comfort_temperature, hkr_valve_status, interval_cost_eur, time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
			p.DeviceID, p.SwitchState.Int(), p.PowerMilliwatts, p.TemperatureTenthsCelsius, p.RawSwitchState,
			p.ProductName, p.DeviceName, p.Manufacturer, p.FirmwareVersion, p.Present.Int(), p.MultimeterPower,
			p.SwitchPower, hkr.SetTemperature, hkr.ReduceTemperature, hkr.ComfortTemperature, hkr.ValveStatus,
			p.IntervalCost, snap.CollectedAt,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return wrap("insert "+tableSmartPlug, err)
	}
	return wrap("commit", tx.Commit(ctx))
}

func (db *Database) WriteSpeedtest(ctx context.Context, r *model.SpeedtestResult, at time.Time) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO speedtest_results (ping_ms, download_mbps, upload_mbps, server_name, time)
		VALUES ($1, $2, $3, $4, $5)`,
		r.PingMs, r.DownloadMbps, r.UploadMbps, nullString(r.ServerName), at,
	)
	return wrap("insert "+tableSpeedtest, err)
}

func (db *Database) WriteWeather(ctx context.Context, w *model.WeatherReading, at time.Time) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO weather_data (location, temperature_celsius, feels_like_celsius, humidity, pressure,
			weather_condition, weather_description, wind_speed, clouds, time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		w.Location, w.TemperatureCelsius, w.FeelsLikeCelsius, w.HumidityPercent, w.PressureHpa,
		w.Condition, w.Description, w.WindSpeed, w.CloudsPercent, at,
	)
	return wrap("insert "+tableWeather, err)
}

func (db *Database) WriteLive(ctx context.Context, m *model.LiveMeasurement) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO tibber_live (timestamp, power, power_production, min_power, average_power, max_power,
			accumulated_consumption, accumulated_cost, currency, voltage_phase1, voltage_phase2, voltage_phase3,
			current_l1, current_l2, current_l3, time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW())`,
		m.Timestamp, m.Power, m.PowerProduction, m.MinPower, m.AveragePower, m.MaxPower,
		m.AccumulatedConsumption, m.AccumulatedCost, m.Currency, m.VoltagePhase1, m.VoltagePhase2, m.VoltagePhase3,
		m.CurrentL1, m.CurrentL2, m.CurrentL3,
	)
	return wrap("insert "+tableLive, err)
}

// ConsumptionExists reports whether a bucket starting exactly at from is
// stored.
func (db *Database) ConsumptionExists(ctx context.Context, from time.Time) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tibber_consumption WHERE from_time = $1)`, from).Scan(&exists)
	return exists, wrap("query "+tableConsumption, err)
}

func (db *Database) InsertConsumption(ctx context.Context, r *model.ConsumptionRecord) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO tibber_consumption (from_time, to_time, consumption_kwh, consumption_unit, cost, unit_price, unit_price_vat, time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		r.From, r.To, r.ConsumptionKWh, r.ConsumptionUnit, r.Cost, r.UnitPrice, r.UnitPriceVAT,
	)
	return wrap("insert "+tableConsumption, err)
}

func (db *Database) ProviderPriceExists(ctx context.Context, startsAt time.Time) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tibber_prices WHERE starts_at = $1)`, startsAt).Scan(&exists)
	return exists, wrap("query "+tableProviderPrc, err)
}

func (db *Database) InsertProviderPrice(ctx context.Context, p *model.ProviderPrice) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO tibber_prices (starts_at, total, energy, tax, time)
		VALUES ($1, $2, $3, $4, NOW())`,
		p.StartsAt, p.Total, p.Energy, p.Tax,
	)
	return wrap("insert "+tableProviderPrc, err)
}

// CountConsumption returns the number of stored consumption buckets.
func (db *Database) CountConsumption(ctx context.Context) (int64, error) {
	var n int64
	err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tibber_consumption`).Scan(&n)
	return n, wrap("count "+tableConsumption, err)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
