package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cala2mqtt/internal/model"
)

type fakeCloud struct {
	mu sync.Mutex

	heaters []model.Heater
	telem   map[string]model.Telemetry

	statusErr error
	dailyErr  error

	dailyCalls  int
	statusCalls int

	lastCommand string
	lastTemp    float64
	lastHours   int
	lastDays    int
	commandErr  error
}

func (f *fakeCloud) ListHeaters(ctx context.Context) ([]model.Heater, error) {
	return f.heaters, nil
}

func (f *fakeCloud) HeaterStatus(ctx context.Context, iotID string) (model.Telemetry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return model.Telemetry{}, f.statusErr
	}
	return f.telem[iotID], nil
}

func (f *fakeCloud) DailySummary(ctx context.Context, iotID, date string) (float64, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dailyCalls++
	if f.dailyErr != nil {
		return 0, 0, f.dailyErr
	}
	return 1.5, 80, nil
}

func (f *fakeCloud) record(cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCommand = cmd
	return f.commandErr
}

func (f *fakeCloud) SetTemperature(ctx context.Context, id string, tempF float64) error {
	f.lastTemp = tempF
	return f.record("set_temperature")
}

func (f *fakeCloud) SetMode(ctx context.Context, id string, mode model.Mode) error {
	return f.record("set_mode:" + mode.String())
}

func (f *fakeCloud) StartBoost(ctx context.Context, id string, hours int) error {
	f.lastHours = hours
	return f.record("start_boost")
}

func (f *fakeCloud) CancelBoost(ctx context.Context, id string) error {
	return f.record("cancel_boost")
}

func (f *fakeCloud) StartVacation(ctx context.Context, id string, days int) error {
	f.lastDays = days
	return f.record("start_vacation")
}

func (f *fakeCloud) CancelVacation(ctx context.Context, id string) error {
	return f.record("cancel_vacation")
}

func floatPtr(v float64) *float64 { return &v }

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeCloud) {
	t.Helper()
	cloud := &fakeCloud{
		heaters: []model.Heater{{ID: "wh-1", IoTID: "iot-1", Name: "Garage Heater"}},
		telem: map[string]model.Telemetry{
			"iot-1": {
				TopTankTemp:     floatPtr(55),
				UserDesiredTemp: floatPtr(125),
			},
		},
	}
	c := New(cloud, Config{
		PollInterval:    time.Minute,
		DailySummaryTTL: 5 * time.Minute,
		BoostHours:      4,
		VacationDays:    7,
	})
	require.NoError(t, c.discover(context.Background()))
	return c, cloud
}

func TestRefreshMergesState(t *testing.T) {
	c, _ := newTestCoordinator(t)
	c.RefreshAll(context.Background())

	state, ok := c.State("wh-1")
	require.True(t, ok)
	assert.Equal(t, "Garage Heater", state.Heater.Name)
	assert.Equal(t, 55.0, *state.Telemetry.TopTankTemp)
	assert.Equal(t, 1.5, state.Daily.EnergyKWh)
	assert.Equal(t, 80.0, state.Daily.WaterL)
	assert.False(t, state.Stale)
	assert.False(t, state.UpdatedAt.IsZero())
}

func TestFailedPollKeepsLastState(t *testing.T) {
	c, cloud := newTestCoordinator(t)
	c.RefreshAll(context.Background())

	cloud.mu.Lock()
	cloud.statusErr = errors.New("cloud down")
	cloud.mu.Unlock()

	c.RefreshAll(context.Background())

	state, ok := c.State("wh-1")
	require.True(t, ok)
	assert.Equal(t, 55.0, *state.Telemetry.TopTankTemp, "previous values survive a failed poll")
	assert.True(t, state.Stale)
}

func TestDailySummaryCaching(t *testing.T) {
	c, cloud := newTestCoordinator(t)

	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.Local)
	now := base
	c.now = func() time.Time { return now }

	c.RefreshAll(context.Background())
	assert.Equal(t, 1, cloud.dailyCalls)

	// Within TTL: served from cache.
	now = base.Add(2 * time.Minute)
	c.RefreshAll(context.Background())
	assert.Equal(t, 1, cloud.dailyCalls)

	// TTL elapsed: refetched.
	now = base.Add(6 * time.Minute)
	c.RefreshAll(context.Background())
	assert.Equal(t, 2, cloud.dailyCalls)

	// Date rollover forces a refetch even inside the TTL window.
	now = time.Date(2026, 8, 26, 0, 1, 0, 0, time.Local)
	c.RefreshAll(context.Background())
	assert.Equal(t, 3, cloud.dailyCalls)

	state, _ := c.State("wh-1")
	assert.Equal(t, time.Date(2026, 8, 26, 0, 0, 0, 0, time.Local), state.Daily.ResetTime)
}

func TestDailySummaryFailureServesCache(t *testing.T) {
	c, cloud := newTestCoordinator(t)

	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.Local)
	now := base
	c.now = func() time.Time { return now }

	c.RefreshAll(context.Background())

	cloud.mu.Lock()
	cloud.dailyErr = errors.New("summary unavailable")
	cloud.mu.Unlock()

	now = base.Add(10 * time.Minute)
	c.RefreshAll(context.Background())

	state, _ := c.State("wh-1")
	assert.Equal(t, 1.5, state.Daily.EnergyKWh, "cached totals survive a summary failure")
}

func TestDailySummaryNeverFetched(t *testing.T) {
	c, cloud := newTestCoordinator(t)

	cloud.mu.Lock()
	cloud.dailyErr = errors.New("summary unavailable")
	cloud.mu.Unlock()

	c.RefreshAll(context.Background())

	// With no cached totals the usage stays empty, ResetTime included, so
	// recorders can tell "no data yet" from a real zero-usage day.
	state, ok := c.State("wh-1")
	require.True(t, ok)
	assert.Zero(t, state.Daily.EnergyKWh)
	assert.Zero(t, state.Daily.WaterL)
	assert.True(t, state.Daily.ResetTime.IsZero())
}

func TestListenerFanOut(t *testing.T) {
	c, _ := newTestCoordinator(t)

	var mu sync.Mutex
	var got []model.State
	c.AddListener(func(s model.State) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	})

	c.RefreshAll(context.Background())
	c.RefreshAll(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, "wh-1", got[0].Heater.ID)
}

func TestSetTemperatureClampsAndAppliesLocally(t *testing.T) {
	c, cloud := newTestCoordinator(t)
	c.RefreshAll(context.Background())

	require.NoError(t, c.SetTemperature(context.Background(), "wh-1", 200))
	assert.Equal(t, 140.0, cloud.lastTemp, "dispatched value is clamped")

	state, _ := c.State("wh-1")
	assert.Equal(t, 140.0, *state.Telemetry.UserDesiredTemp, "optimistic local update")
}

func TestSetTemperatureUnknownHeater(t *testing.T) {
	c, _ := newTestCoordinator(t)
	c.RefreshAll(context.Background())

	err := c.SetTemperature(context.Background(), "nope", 120)
	assert.Error(t, err)
}

func TestSetModeDispatch(t *testing.T) {
	tests := []struct {
		name     string
		mode     model.Mode
		wantCmd  string
		wantVal  int
		checkVal func(*fakeCloud) int
	}{
		{name: "boost uses default hours", mode: model.ModeBoost, wantCmd: "start_boost", wantVal: 4, checkVal: func(f *fakeCloud) int { return f.lastHours }},
		{name: "vacation uses default days", mode: model.ModeVacation, wantCmd: "start_vacation", wantVal: 7, checkVal: func(f *fakeCloud) int { return f.lastDays }},
		{name: "eco passes through", mode: model.ModeEco, wantCmd: "set_mode:eco"},
		{name: "standard passes through", mode: model.ModeStandard, wantCmd: "set_mode:standard"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, cloud := newTestCoordinator(t)
			c.RefreshAll(context.Background())

			require.NoError(t, c.SetMode(context.Background(), "wh-1", tt.mode))
			assert.Equal(t, tt.wantCmd, cloud.lastCommand)
			if tt.checkVal != nil {
				assert.Equal(t, tt.wantVal, tt.checkVal(cloud))
			}
		})
	}
}

func TestSetModeInvalid(t *testing.T) {
	c, _ := newTestCoordinator(t)
	c.RefreshAll(context.Background())

	err := c.SetMode(context.Background(), "wh-1", model.Mode("turbo"))
	assert.Error(t, err)
}

func TestSetModeUpdatesFlags(t *testing.T) {
	c, _ := newTestCoordinator(t)
	c.RefreshAll(context.Background())

	require.NoError(t, c.SetMode(context.Background(), "wh-1", model.ModeBoost))
	state, _ := c.State("wh-1")
	assert.Equal(t, model.ModeBoost, state.Mode())

	require.NoError(t, c.SetMode(context.Background(), "wh-1", model.ModeVacation))
	state, _ = c.State("wh-1")
	assert.Equal(t, model.ModeVacation, state.Mode())

	require.NoError(t, c.SetMode(context.Background(), "wh-1", model.ModeStandard))
	state, _ = c.State("wh-1")
	assert.Equal(t, model.ModeStandard, state.Mode())
}

func TestSetBoostExplicitDuration(t *testing.T) {
	c, cloud := newTestCoordinator(t)
	c.RefreshAll(context.Background())

	require.NoError(t, c.SetBoost(context.Background(), "wh-1", true, 8))
	assert.Equal(t, "start_boost", cloud.lastCommand)
	assert.Equal(t, 8, cloud.lastHours)

	require.NoError(t, c.SetBoost(context.Background(), "wh-1", false, 0))
	assert.Equal(t, "cancel_boost", cloud.lastCommand)

	state, _ := c.State("wh-1")
	require.NotNil(t, state.Telemetry.BoostStatus)
	assert.False(t, *state.Telemetry.BoostStatus)
}

func TestCommandErrorPropagates(t *testing.T) {
	c, cloud := newTestCoordinator(t)
	c.RefreshAll(context.Background())

	cloud.commandErr = errors.New("rejected")
	err := c.SetTemperature(context.Background(), "wh-1", 120)
	assert.Error(t, err)

	// Local state keeps the previous setpoint on failure.
	state, _ := c.State("wh-1")
	assert.Equal(t, 125.0, *state.Telemetry.UserDesiredTemp)
}

func TestRequestRefreshNonBlocking(t *testing.T) {
	c, _ := newTestCoordinator(t)
	// Repeated calls must never block even with no loop draining.
	for i := 0; i < 5; i++ {
		c.RequestRefresh()
	}
}

func TestStatesSorted(t *testing.T) {
	cloud := &fakeCloud{
		heaters: []model.Heater{
			{ID: "wh-b", IoTID: "iot-b", Name: "Upstairs"},
			{ID: "wh-a", IoTID: "iot-a", Name: "Basement"},
		},
		telem: map[string]model.Telemetry{
			"iot-a": {},
			"iot-b": {},
		},
	}
	c := New(cloud, Config{PollInterval: time.Minute})
	require.NoError(t, c.discover(context.Background()))
	c.RefreshAll(context.Background())

	states := c.States()
	require.Len(t, states, 2)
	assert.Equal(t, "Basement", states[0].Heater.Name)
	assert.Equal(t, "Upstairs", states[1].Heater.Name)
}
