package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"cala2mqtt/internal/metrics"
	"cala2mqtt/internal/model"
)

// CloudAPI is the slice of the vendor client the coordinator drives.
type CloudAPI interface {
	ListHeaters(ctx context.Context) ([]model.Heater, error)
	HeaterStatus(ctx context.Context, iotID string) (model.Telemetry, error)
	DailySummary(ctx context.Context, iotID, date string) (energyKWh, waterL float64, err error)
	SetTemperature(ctx context.Context, heaterID string, tempF float64) error
	SetMode(ctx context.Context, heaterID string, mode model.Mode) error
	StartBoost(ctx context.Context, heaterID string, hours int) error
	CancelBoost(ctx context.Context, heaterID string) error
	StartVacation(ctx context.Context, heaterID string, days int) error
	CancelVacation(ctx context.Context, heaterID string) error
}

// Listener receives every refreshed heater state.
type Listener func(model.State)

type dailyCacheEntry struct {
	usage   model.DailyUsage
	fetched time.Time
	date    string
}

type Config struct {
	PollInterval    time.Duration
	DailySummaryTTL time.Duration
	BoostHours      int
	VacationDays    int
}

// Coordinator owns the poll loop and the last known state per heater. A
// failed poll never clears published state; entities keep the previous
// values and the state is flagged stale.
type Coordinator struct {
	client CloudAPI
	cfg    Config

	now func() time.Time

	mu        sync.RWMutex
	heaters   []model.Heater
	states    map[string]model.State
	daily     map[string]dailyCacheEntry
	listeners []Listener

	refreshCh chan struct{}
}

func New(client CloudAPI, cfg Config) *Coordinator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	if cfg.DailySummaryTTL <= 0 {
		cfg.DailySummaryTTL = 5 * time.Minute
	}
	return &Coordinator{
		client:    client,
		cfg:       cfg,
		now:       time.Now,
		states:    make(map[string]model.State),
		daily:     make(map[string]dailyCacheEntry),
		refreshCh: make(chan struct{}, 1),
	}
}

// AddListener registers a fan-out target. Must be called before Run.
func (c *Coordinator) AddListener(l Listener) {
	c.listeners = append(c.listeners, l)
}

// Run discovers the account's heaters, then polls until the context ends.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		if err := c.discover(ctx); err != nil {
			log.Error().Err(err).Msg("Heater discovery failed, retrying")
			metrics.Count("poll.errors", 1, "stage:discovery")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.PollInterval):
				continue
			}
		}
		break
	}

	c.RefreshAll(ctx)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.RefreshAll(ctx)
		case <-c.refreshCh:
			c.RefreshAll(ctx)
		}
	}
}

func (c *Coordinator) discover(ctx context.Context) error {
	heaters, err := c.client.ListHeaters(ctx)
	if err != nil {
		return err
	}
	if len(heaters) == 0 {
		return fmt.Errorf("account has no water heaters")
	}

	c.mu.Lock()
	c.heaters = heaters
	c.mu.Unlock()

	for _, h := range heaters {
		log.Info().
			Str("heater_id", h.ID).
			Str("name", h.Name).
			Str("model", h.Model).
			Str("home", h.HomeName).
			Msg("Discovered water heater")
	}
	return nil
}

// RefreshAll polls every known heater once. Per-heater failures keep the
// last known state.
func (c *Coordinator) RefreshAll(ctx context.Context) {
	c.mu.RLock()
	heaters := make([]model.Heater, len(c.heaters))
	copy(heaters, c.heaters)
	c.mu.RUnlock()

	start := c.now()
	for _, h := range heaters {
		c.refreshOne(ctx, h)
	}
	metrics.Timing("poll.duration", float64(c.now().Sub(start).Milliseconds()))
}

func (c *Coordinator) refreshOne(ctx context.Context, h model.Heater) {
	telem, err := c.client.HeaterStatus(ctx, h.IoTID)
	if err != nil {
		log.Warn().Err(err).Str("heater_id", h.ID).Msg("Failed to refresh heater status")
		metrics.Count("poll.errors", 1, "stage:status", "heater:"+h.ID)

		c.mu.Lock()
		if prev, ok := c.states[h.ID]; ok {
			prev.Stale = true
			c.states[h.ID] = prev
		}
		c.mu.Unlock()
		return
	}

	daily := c.dailyUsage(ctx, h)

	state := model.State{
		Heater:    h,
		Telemetry: telem,
		Daily:     daily,
		UpdatedAt: c.now(),
	}

	c.mu.Lock()
	c.states[h.ID] = state
	c.mu.Unlock()

	c.emitGauges(h.ID, telem)
	c.notify(state)
}

// dailyUsage returns the cached since-midnight totals, refetching only when
// the TTL elapsed or the local date rolled over. A failed fetch serves the
// cached values.
func (c *Coordinator) dailyUsage(ctx context.Context, h model.Heater) model.DailyUsage {
	now := c.now()
	today := now.Format("2006-01-02")

	c.mu.RLock()
	entry, ok := c.daily[h.ID]
	c.mu.RUnlock()

	fresh := ok && entry.date == today && now.Sub(entry.fetched) < c.cfg.DailySummaryTTL
	if fresh {
		return entry.usage
	}

	energy, water, err := c.client.DailySummary(ctx, h.IoTID, today)
	if err != nil {
		log.Warn().Err(err).Str("heater_id", h.ID).Msg("Failed to fetch daily summary")
		metrics.Count("poll.errors", 1, "stage:daily", "heater:"+h.ID)
		if ok {
			return entry.usage
		}
		// Never fetched: leave ResetTime zero so downstream consumers can
		// tell "no data yet" apart from a real zero-usage day.
		return model.DailyUsage{}
	}

	usage := model.DailyUsage{
		EnergyKWh: energy,
		WaterL:    water,
		ResetTime: midnight(now),
	}

	c.mu.Lock()
	c.daily[h.ID] = dailyCacheEntry{usage: usage, fetched: now, date: today}
	c.mu.Unlock()

	log.Debug().
		Str("heater_id", h.ID).
		Float64("energy_kwh", energy).
		Float64("water_l", water).
		Msg("Fetched daily summary")
	return usage
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (c *Coordinator) emitGauges(heaterID string, t model.Telemetry) {
	tag := "heater:" + heaterID
	if t.TopTankTemp != nil {
		metrics.Gauge("heater.tank_temp", *t.TopTankTemp, tag)
	}
	if t.EnergyUsed != nil {
		metrics.Gauge("heater.energy_used", *t.EnergyUsed, tag)
	}
	if t.LitersUsed != nil {
		metrics.Gauge("heater.liters_used", *t.LitersUsed, tag)
	}
	if t.CompSpeed != nil {
		metrics.Gauge("heater.comp_speed", *t.CompSpeed, tag)
	}
}

func (c *Coordinator) notify(state model.State) {
	for _, l := range c.listeners {
		l(state)
	}
}

// RequestRefresh schedules an immediate poll without blocking.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.refreshCh <- struct{}{}:
	default:
	}
}

// States returns a snapshot of all heater states, ordered by name.
func (c *Coordinator) States() []model.State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	states := make([]model.State, 0, len(c.states))
	for _, s := range c.states {
		states = append(states, s)
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].Heater.Name < states[j].Heater.Name
	})
	return states
}

// State returns the last known state for one heater.
func (c *Coordinator) State(heaterID string) (model.State, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.states[heaterID]
	return s, ok
}

// SetTemperature clamps and dispatches a target temperature command, then
// applies the value locally and schedules a refresh.
func (c *Coordinator) SetTemperature(ctx context.Context, heaterID string, tempF float64) error {
	if _, ok := c.State(heaterID); !ok {
		return fmt.Errorf("unknown heater %q", heaterID)
	}

	clamped := model.ClampTarget(tempF)
	if clamped != tempF {
		log.Info().
			Str("heater_id", heaterID).
			Float64("requested", tempF).
			Float64("clamped", clamped).
			Msg("Clamped target temperature to vendor range")
	}

	if err := c.client.SetTemperature(ctx, heaterID, clamped); err != nil {
		metrics.Count("command.errors", 1, "command:set_temperature")
		return err
	}
	metrics.Count("command.sent", 1, "command:set_temperature")

	c.mu.Lock()
	if s, ok := c.states[heaterID]; ok {
		v := clamped
		s.Telemetry.UserDesiredTemp = &v
		c.states[heaterID] = s
	}
	c.mu.Unlock()

	c.RequestRefresh()
	return nil
}

// SetMode dispatches an operation mode command. Boost and vacation use the
// configured default durations.
func (c *Coordinator) SetMode(ctx context.Context, heaterID string, mode model.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid mode %q", mode)
	}
	if _, ok := c.State(heaterID); !ok {
		return fmt.Errorf("unknown heater %q", heaterID)
	}

	var err error
	switch mode {
	case model.ModeBoost:
		err = c.client.StartBoost(ctx, heaterID, c.cfg.BoostHours)
	case model.ModeVacation:
		err = c.client.StartVacation(ctx, heaterID, c.cfg.VacationDays)
	default:
		err = c.client.SetMode(ctx, heaterID, mode)
	}
	if err != nil {
		metrics.Count("command.errors", 1, "command:set_mode")
		return err
	}
	metrics.Count("command.sent", 1, "command:set_mode", "mode:"+mode.String())

	c.applyModeLocally(heaterID, mode)
	c.RequestRefresh()
	return nil
}

// SetBoost toggles the boost override. Zero hours falls back to the
// configured default.
func (c *Coordinator) SetBoost(ctx context.Context, heaterID string, on bool, hours int) error {
	if _, ok := c.State(heaterID); !ok {
		return fmt.Errorf("unknown heater %q", heaterID)
	}
	if hours <= 0 {
		hours = c.cfg.BoostHours
	}

	var err error
	if on {
		err = c.client.StartBoost(ctx, heaterID, hours)
	} else {
		err = c.client.CancelBoost(ctx, heaterID)
	}
	if err != nil {
		metrics.Count("command.errors", 1, "command:boost")
		return err
	}
	metrics.Count("command.sent", 1, "command:boost")

	c.mu.Lock()
	if s, ok := c.states[heaterID]; ok {
		v := on
		s.Telemetry.BoostStatus = &v
		c.states[heaterID] = s
	}
	c.mu.Unlock()

	c.RequestRefresh()
	return nil
}

// SetVacation toggles vacation mode. Zero days falls back to the configured
// default.
func (c *Coordinator) SetVacation(ctx context.Context, heaterID string, on bool, days int) error {
	if _, ok := c.State(heaterID); !ok {
		return fmt.Errorf("unknown heater %q", heaterID)
	}
	if days <= 0 {
		days = c.cfg.VacationDays
	}

	var err error
	if on {
		err = c.client.StartVacation(ctx, heaterID, days)
	} else {
		err = c.client.CancelVacation(ctx, heaterID)
	}
	if err != nil {
		metrics.Count("command.errors", 1, "command:vacation")
		return err
	}
	metrics.Count("command.sent", 1, "command:vacation")

	c.mu.Lock()
	if s, ok := c.states[heaterID]; ok {
		v := on
		s.Telemetry.VacationMode = &v
		c.states[heaterID] = s
	}
	c.mu.Unlock()

	c.RequestRefresh()
	return nil
}

func (c *Coordinator) applyModeLocally(heaterID string, mode model.Mode) {
	boost := mode == model.ModeBoost
	vacation := mode == model.ModeVacation

	c.mu.Lock()
	if s, ok := c.states[heaterID]; ok {
		s.Telemetry.BoostStatus = &boost
		s.Telemetry.VacationMode = &vacation
		c.states[heaterID] = s
	}
	c.mu.Unlock()
}
