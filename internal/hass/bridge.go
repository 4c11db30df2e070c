package hass

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"cala2mqtt/internal/config"
	"cala2mqtt/internal/metrics"
	"cala2mqtt/internal/model"
)

const commandTimeout = 15 * time.Second

// Commander is the slice of the coordinator the bridge drives for inbound
// MQTT commands.
type Commander interface {
	SetTemperature(ctx context.Context, heaterID string, tempF float64) error
	SetMode(ctx context.Context, heaterID string, mode model.Mode) error
	SetBoost(ctx context.Context, heaterID string, on bool, hours int) error
	SetVacation(ctx context.Context, heaterID string, on bool, days int) error
	RequestRefresh()
}

// publisher is the subset of mqtt.Client the bridge uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// Bridge publishes Home Assistant MQTT discovery configs and retained state
// for every heater, and dispatches command topics back to the coordinator.
type Bridge struct {
	cfg       config.MQTT
	commander Commander

	boostHours   int
	vacationDays int

	client mqtt.Client
	conn   publisher

	mu        sync.Mutex
	announced map[string]bool
	states    map[string]model.State // keyed by heater ID
	nodes     map[string]string      // topic node -> heater ID
	durations map[string]*heaterDurations
}

type heaterDurations struct {
	boostHours   int
	vacationDays int
}

func New(cfg config.MQTT, commander Commander, boostHours, vacationDays int) *Bridge {
	return &Bridge{
		cfg:          cfg,
		commander:    commander,
		boostHours:   boostHours,
		vacationDays: vacationDays,
		announced:    make(map[string]bool),
		states:       make(map[string]model.State),
		nodes:        make(map[string]string),
		durations:    make(map[string]*heaterDurations),
	}
}

// Connect dials the broker and wires up subscriptions. The connection
// carries a last-will so Home Assistant marks everything unavailable if the
// bridge dies.
func (b *Bridge) Connect() error {
	opts := mqtt.NewClientOptions().
		AddBroker(b.cfg.BrokerURL).
		SetClientID(b.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetWill(b.availabilityTopic(), "offline", 1, true).
		SetOnConnectHandler(b.onConnect)

	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password)
	}

	b.client = mqtt.NewClient(opts)
	b.conn = b.client

	token := b.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	log.Info().Str("broker", b.cfg.BrokerURL).Msg("Connected to MQTT broker")
	return nil
}

func (b *Bridge) onConnect(client mqtt.Client) {
	b.publish(b.availabilityTopic(), true, "online")

	commandFilter := b.cfg.BaseTopic + "/+/set/+"
	client.Subscribe(commandFilter, 1, func(_ mqtt.Client, msg mqtt.Message) {
		b.handleCommand(msg.Topic(), msg.Payload())
	})

	// Home Assistant republishes its birth message after a restart; resend
	// discovery so new entities show up without waiting for the next poll.
	client.Subscribe("homeassistant/status", 0, func(_ mqtt.Client, msg mqtt.Message) {
		if string(msg.Payload()) == "online" {
			log.Info().Msg("Home Assistant came online, republishing discovery")
			b.republishAll()
		}
	})
}

// Close marks the bridge offline and disconnects cleanly.
func (b *Bridge) Close() {
	if b.client == nil {
		return
	}
	b.publish(b.availabilityTopic(), true, "offline")
	b.client.Disconnect(250)
}

func (b *Bridge) availabilityTopic() string {
	return b.cfg.BaseTopic + "/availability"
}

func (b *Bridge) stateTopic(node string) string {
	return fmt.Sprintf("%s/%s/state", b.cfg.BaseTopic, node)
}

// HandleState is the coordinator listener. First sight of a heater publishes
// its discovery configs; every update publishes retained state.
func (b *Bridge) HandleState(state model.State) {
	node := sanitizeID(state.Heater.ID)

	b.mu.Lock()
	b.states[state.Heater.ID] = state
	b.nodes[node] = state.Heater.ID
	if _, ok := b.durations[state.Heater.ID]; !ok {
		b.durations[state.Heater.ID] = &heaterDurations{
			boostHours:   b.boostHours,
			vacationDays: b.vacationDays,
		}
	}
	announce := !b.announced[state.Heater.ID]
	b.announced[state.Heater.ID] = true
	dur := *b.durations[state.Heater.ID]
	b.mu.Unlock()

	if announce {
		b.publishDiscovery(state.Heater)
	}
	b.publish(b.stateTopic(node), true, buildStatePayload(state, dur))
}

func (b *Bridge) publishDiscovery(h model.Heater) {
	msgs := discoveryMessages(b.cfg.DiscoveryPrefix, b.cfg.BaseTopic, h)
	for _, m := range msgs {
		b.publish(m.topic, true, m.payload)
	}
	log.Info().
		Str("heater_id", h.ID).
		Int("entities", len(msgs)).
		Msg("Published MQTT discovery")
}

func (b *Bridge) republishAll() {
	b.mu.Lock()
	states := make([]model.State, 0, len(b.states))
	durs := make([]heaterDurations, 0, len(b.states))
	for _, s := range b.states {
		states = append(states, s)
		durs = append(durs, *b.durations[s.Heater.ID])
	}
	b.mu.Unlock()

	b.publish(b.availabilityTopic(), true, "online")
	for i, s := range states {
		b.publishDiscovery(s.Heater)
		b.publish(b.stateTopic(sanitizeID(s.Heater.ID)), true, buildStatePayload(s, durs[i]))
	}
}

func (b *Bridge) publish(topic string, retained bool, payload any) {
	if b.conn == nil {
		return
	}

	body, ok := payload.([]byte)
	if !ok {
		if s, isStr := payload.(string); isStr {
			body = []byte(s)
		} else {
			var err error
			body, err = json.Marshal(payload)
			if err != nil {
				log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal MQTT payload")
				return
			}
		}
	}

	token := b.conn.Publish(topic, 1, retained, body)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
			metrics.Count("mqtt.publish_errors", 1)
		}
	}()
}

// statePayload is the retained per-heater state document every entity
// template reads from.
type statePayload struct {
	model.Telemetry

	Mode                 string    `json:"mode"`
	HAMode               string    `json:"ha_mode"`
	CurrentTempF         *float64  `json:"currentTempF"`
	DailyEnergyUsed      float64   `json:"dailyEnergyUsed"`
	DailyWaterUsed       float64   `json:"dailyWaterUsed"`
	BoostDurationHours   int       `json:"boostDurationHours"`
	VacationDurationDays int       `json:"vacationDurationDays"`
	Connected            bool      `json:"connected"`
	Stale                bool      `json:"stale"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

func buildStatePayload(state model.State, dur heaterDurations) statePayload {
	p := statePayload{
		Telemetry:            state.Telemetry,
		Mode:                 state.Mode().String(),
		HAMode:               state.Mode().HAMode(),
		DailyEnergyUsed:      state.Daily.EnergyKWh,
		DailyWaterUsed:       state.Daily.WaterL,
		BoostDurationHours:   dur.boostHours,
		VacationDurationDays: dur.vacationDays,
		Connected:            state.Connected(),
		Stale:                state.Stale,
		UpdatedAt:            state.UpdatedAt,
	}
	if state.Telemetry.TopTankTemp != nil {
		f := model.CToF(*state.Telemetry.TopTankTemp)
		p.CurrentTempF = &f
	}
	return p
}

// handleCommand dispatches one inbound command topic. Topics look like
// <base>/<node>/set/<field>.
func (b *Bridge) handleCommand(topic string, payload []byte) {
	rest := strings.TrimPrefix(topic, b.cfg.BaseTopic+"/")
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != "set" {
		log.Warn().Str("topic", topic).Msg("Ignoring unrecognized command topic")
		return
	}
	node, field := parts[0], parts[2]

	b.mu.Lock()
	heaterID, ok := b.nodes[node]
	b.mu.Unlock()
	if !ok {
		log.Warn().Str("topic", topic).Msg("Command for unknown heater")
		return
	}

	value := strings.TrimSpace(string(payload))
	log.Info().
		Str("heater_id", heaterID).
		Str("field", field).
		Str("value", value).
		Msg("MQTT command received")
	metrics.Count("mqtt.commands", 1, "field:"+field)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var err error
	switch field {
	case "target_temperature":
		var temp float64
		temp, err = strconv.ParseFloat(value, 64)
		if err == nil {
			err = b.commander.SetTemperature(ctx, heaterID, temp)
		}
	case "mode":
		var mode model.Mode
		mode, err = model.ModeFromHA(value)
		if err == nil {
			err = b.commander.SetMode(ctx, heaterID, mode)
		}
	case "boost":
		err = b.commander.SetBoost(ctx, heaterID, value == "ON", b.duration(heaterID).boostHours)
	case "vacation":
		err = b.commander.SetVacation(ctx, heaterID, value == "ON", b.duration(heaterID).vacationDays)
	case "boost_duration":
		err = b.setBoostDuration(heaterID, value)
	case "vacation_duration":
		err = b.setVacationDuration(heaterID, value)
	case "refresh":
		b.commander.RequestRefresh()
	default:
		log.Warn().Str("field", field).Msg("Unknown command field")
		return
	}

	if err != nil {
		log.Error().Err(err).
			Str("heater_id", heaterID).
			Str("field", field).
			Msg("MQTT command failed")
		metrics.Count("mqtt.command_errors", 1, "field:"+field)
	}
}

func (b *Bridge) duration(heaterID string) heaterDurations {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d, ok := b.durations[heaterID]; ok {
		return *d
	}
	return heaterDurations{boostHours: b.boostHours, vacationDays: b.vacationDays}
}

func (b *Bridge) setBoostDuration(heaterID, value string) error {
	hours, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse boost duration: %w", err)
	}
	if hours < 1 || hours > 24 {
		return fmt.Errorf("boost duration %d out of range", hours)
	}

	b.mu.Lock()
	if d, ok := b.durations[heaterID]; ok {
		d.boostHours = hours
	}
	b.mu.Unlock()

	b.republishState(heaterID)
	return nil
}

func (b *Bridge) setVacationDuration(heaterID, value string) error {
	days, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse vacation duration: %w", err)
	}
	if days < 1 || days > 90 {
		return fmt.Errorf("vacation duration %d out of range", days)
	}

	b.mu.Lock()
	if d, ok := b.durations[heaterID]; ok {
		d.vacationDays = days
	}
	b.mu.Unlock()

	b.republishState(heaterID)
	return nil
}

func (b *Bridge) republishState(heaterID string) {
	b.mu.Lock()
	state, ok := b.states[heaterID]
	var dur heaterDurations
	if d, okd := b.durations[heaterID]; okd {
		dur = *d
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	b.publish(b.stateTopic(sanitizeID(heaterID)), true, buildStatePayload(state, dur))
}
