package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cala2mqtt/internal/model"
)

func floatPtr(v float64) *float64 { return &v }

func testHeater() model.Heater {
	return model.Heater{
		ID:              "wh-1",
		IoTID:           "iot-1",
		Name:            "Garage Heater",
		HomeID:          "home-1",
		HomeName:        "Lake House",
		Model:           "C-120",
		FirmwareVersion: "2.4.1",
	}
}

func TestUpsertHeaterPreservesFirstSeen(t *testing.T) {
	database, err := Open(":memory:")
	require.NoError(t, err)
	defer database.Close()

	h := testHeater()
	first := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	require.NoError(t, UpsertHeater(database, h, first))

	h.FirmwareVersion = "2.5.0"
	require.NoError(t, UpsertHeater(database, h, first.Add(time.Hour)))

	heaters, err := GetHeaters(database)
	require.NoError(t, err)
	require.Len(t, heaters, 1)
	assert.Equal(t, "2.5.0", heaters[0].FirmwareVersion)

	var firstSeen, lastSeen string
	require.NoError(t, database.QueryRow(`SELECT first_seen, last_seen FROM heaters WHERE id = ?`, h.ID).Scan(&firstSeen, &lastSeen))
	assert.Equal(t, first.Format(time.RFC3339), firstSeen)
	assert.Equal(t, first.Add(time.Hour).Format(time.RFC3339), lastSeen)
}

func TestInsertAndReadReadings(t *testing.T) {
	database, err := Open(":memory:")
	require.NoError(t, err)
	defer database.Close()

	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	r := Reading{
		HeaterID:    "wh-1",
		RecordedAt:  now,
		TopTankTemp: floatPtr(55),
		TargetTempF: floatPtr(125),
		Mode:        "standard",
		Connected:   true,
	}
	require.NoError(t, InsertReading(database, r))

	got, err := RecentReadings(database, "wh-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, 55.0, *got[0].TopTankTemp)
	assert.Equal(t, 125.0, *got[0].TargetTempF)
	assert.Equal(t, "standard", got[0].Mode)
	assert.True(t, got[0].Connected)

	// Null columns come back as nil pointers.
	assert.Nil(t, got[0].OutletTemp)
	assert.Nil(t, got[0].CompSpeed)
}

func TestRecentReadingsOrderAndLimit(t *testing.T) {
	database, err := Open(":memory:")
	require.NoError(t, err)
	defer database.Close()

	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, InsertReading(database, Reading{
			HeaterID:    "wh-1",
			RecordedAt:  base.Add(time.Duration(i) * time.Minute),
			TopTankTemp: floatPtr(50 + float64(i)),
			Mode:        "standard",
			Connected:   true,
		}))
	}

	got, err := RecentReadings(database, "wh-1", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 54.0, *got[0].TopTankTemp, "newest first")
	assert.Equal(t, 52.0, *got[2].TopTankTemp)
}

func TestPruneReadings(t *testing.T) {
	database, err := Open(":memory:")
	require.NoError(t, err)
	defer database.Close()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		require.NoError(t, InsertReading(database, Reading{
			HeaterID:   "wh-1",
			RecordedAt: base.AddDate(0, 0, i),
			Mode:       "standard",
		}))
	}

	n, err := PruneReadings(database, base.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	got, err := RecentReadings(database, "wh-1", 100)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestDailyUsageUpsert(t *testing.T) {
	database, err := Open(":memory:")
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, UpsertDailyUsage(database, "wh-1", "2026-08-25", 1.5, 80))
	require.NoError(t, UpsertDailyUsage(database, "wh-1", "2026-08-25", 2.5, 120))
	require.NoError(t, UpsertDailyUsage(database, "wh-1", "2026-08-24", 3.0, 200))

	usages, dates, err := GetDailyUsage(database, "wh-1", 10)
	require.NoError(t, err)
	require.Len(t, usages, 2)

	assert.Equal(t, "2026-08-25", dates[0])
	assert.Equal(t, 2.5, usages[0].EnergyKWh, "same-day upsert replaces totals")
	assert.Equal(t, 120.0, usages[0].WaterL)
	assert.Equal(t, "2026-08-24", dates[1])
}

func TestReadingFromState(t *testing.T) {
	boost := true
	connected := false
	state := model.State{
		Heater: testHeater(),
		Telemetry: model.Telemetry{
			TopTankTemp:     floatPtr(55),
			UserDesiredTemp: floatPtr(125),
			BoostStatus:     &boost,
			CloudConnected:  &connected,
		},
		UpdatedAt: time.Now(),
	}

	r := ReadingFromState(state)
	assert.Equal(t, "wh-1", r.HeaterID)
	assert.Equal(t, 55.0, *r.TopTankTemp)
	assert.Equal(t, "boost", r.Mode)
	assert.False(t, r.Connected)
}
