package db

import (
	"database/sql"
	"fmt"
	"time"

	"cala2mqtt/internal/model"
)

// Reading is one historical telemetry sample.
type Reading struct {
	HeaterID    string
	RecordedAt  time.Time
	TopTankTemp *float64
	OutletTemp  *float64
	InletTemp   *float64
	AmbientTemp *float64
	CompSpeed   *float64
	FlowRate    *float64
	EnergyUsed  *float64
	LitersUsed  *float64
	TargetTempF *float64
	Mode        string
	Connected   bool
}

// ReadingFromState flattens a coordinator state into a Reading.
func ReadingFromState(state model.State) Reading {
	return Reading{
		HeaterID:    state.Heater.ID,
		RecordedAt:  state.UpdatedAt,
		TopTankTemp: state.Telemetry.TopTankTemp,
		OutletTemp:  state.Telemetry.OutletTemp,
		InletTemp:   state.Telemetry.InletTemp,
		AmbientTemp: state.Telemetry.AmbientTemp,
		CompSpeed:   state.Telemetry.CompSpeed,
		FlowRate:    state.Telemetry.FlowRate,
		EnergyUsed:  state.Telemetry.EnergyUsed,
		LitersUsed:  state.Telemetry.LitersUsed,
		TargetTempF: state.Telemetry.UserDesiredTemp,
		Mode:        state.Mode().String(),
		Connected:   state.Connected(),
	}
}

// UpsertHeater records a discovered heater, preserving first_seen.
func UpsertHeater(database *sql.DB, h model.Heater, seen time.Time) error {
	ts := seen.Format(time.RFC3339)
	_, err := database.Exec(`INSERT INTO heaters (id, iot_id, name, home_id, home_name, model, firmware_version, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			iot_id = excluded.iot_id,
			name = excluded.name,
			home_id = excluded.home_id,
			home_name = excluded.home_name,
			model = excluded.model,
			firmware_version = excluded.firmware_version,
			last_seen = excluded.last_seen`,
		h.ID, h.IoTID, h.Name, h.HomeID, h.HomeName, h.Model, h.FirmwareVersion, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to upsert heater %s: %w", h.ID, err)
	}
	return nil
}

// GetHeaters retrieves every heater the bridge has ever seen.
func GetHeaters(database *sql.DB) ([]model.Heater, error) {
	rows, err := database.Query(`SELECT id, iot_id, name, home_id, home_name, model, firmware_version FROM heaters ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query heaters: %w", err)
	}
	defer rows.Close()

	var heaters []model.Heater
	for rows.Next() {
		var h model.Heater
		err = rows.Scan(&h.ID, &h.IoTID, &h.Name, &h.HomeID, &h.HomeName, &h.Model, &h.FirmwareVersion)
		if err != nil {
			return nil, fmt.Errorf("failed to scan heater: %w", err)
		}
		heaters = append(heaters, h)
	}
	return heaters, nil
}

// InsertReading appends one telemetry sample.
func InsertReading(database *sql.DB, r Reading) error {
	_, err := database.Exec(`INSERT INTO readings (heater_id, recorded_at, top_tank_temp, outlet_temp, inlet_temp, ambient_temp, comp_speed, flow_rate, energy_used, liters_used, target_temp_f, mode, connected)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.HeaterID, r.RecordedAt.Format(time.RFC3339), r.TopTankTemp, r.OutletTemp, r.InletTemp, r.AmbientTemp,
		r.CompSpeed, r.FlowRate, r.EnergyUsed, r.LitersUsed, r.TargetTempF, r.Mode, r.Connected)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

// RecentReadings returns the newest samples for a heater, most recent first.
func RecentReadings(database *sql.DB, heaterID string, limit int) ([]Reading, error) {
	rows, err := database.Query(`SELECT heater_id, recorded_at, top_tank_temp, outlet_temp, inlet_temp, ambient_temp, comp_speed, flow_rate, energy_used, liters_used, target_temp_f, mode, connected
		FROM readings WHERE heater_id = ? ORDER BY recorded_at DESC LIMIT ?`, heaterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		var r Reading
		var recordedAt string
		var topTank, outlet, inlet, ambient, compSpeed, flowRate, energy, liters, target sql.NullFloat64

		err = rows.Scan(&r.HeaterID, &recordedAt, &topTank, &outlet, &inlet, &ambient, &compSpeed, &flowRate, &energy, &liters, &target, &r.Mode, &r.Connected)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		r.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt)
		r.TopTankTemp = nullableFloat(topTank)
		r.OutletTemp = nullableFloat(outlet)
		r.InletTemp = nullableFloat(inlet)
		r.AmbientTemp = nullableFloat(ambient)
		r.CompSpeed = nullableFloat(compSpeed)
		r.FlowRate = nullableFloat(flowRate)
		r.EnergyUsed = nullableFloat(energy)
		r.LitersUsed = nullableFloat(liters)
		r.TargetTempF = nullableFloat(target)
		readings = append(readings, r)
	}
	return readings, nil
}

// PruneReadings deletes samples older than the retention window and returns
// the number removed.
func PruneReadings(database *sql.DB, olderThan time.Time) (int64, error) {
	res, err := database.Exec(`DELETE FROM readings WHERE recorded_at < ?`, olderThan.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to prune readings: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// UpsertDailyUsage records the since-midnight totals for one local date.
func UpsertDailyUsage(database *sql.DB, heaterID, date string, energyKWh, waterL float64) error {
	_, err := database.Exec(`INSERT INTO daily_usage (heater_id, date, energy_kwh, water_l)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(heater_id, date) DO UPDATE SET
			energy_kwh = excluded.energy_kwh,
			water_l = excluded.water_l`,
		heaterID, date, energyKWh, waterL)
	if err != nil {
		return fmt.Errorf("failed to upsert daily usage: %w", err)
	}
	return nil
}

// GetDailyUsage retrieves recorded daily totals for a heater, newest first.
func GetDailyUsage(database *sql.DB, heaterID string, limit int) ([]model.DailyUsage, []string, error) {
	rows, err := database.Query(`SELECT date, energy_kwh, water_l FROM daily_usage WHERE heater_id = ? ORDER BY date DESC LIMIT ?`, heaterID, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query daily usage: %w", err)
	}
	defer rows.Close()

	var usages []model.DailyUsage
	var dates []string
	for rows.Next() {
		var u model.DailyUsage
		var date string
		if err := rows.Scan(&date, &u.EnergyKWh, &u.WaterL); err != nil {
			return nil, nil, fmt.Errorf("failed to scan daily usage: %w", err)
		}
		usages = append(usages, u)
		dates = append(dates, date)
	}
	return usages, dates, nil
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
