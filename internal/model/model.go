package model

import (
	"fmt"
	"time"
)

// Mode is the vendor's operation mode enumeration.
type Mode string

const (
	ModeStandard Mode = "standard"
	ModeEco      Mode = "eco"
	ModeVacation Mode = "vacation"
	ModeBoost    Mode = "boost"
)

// Target temperature bounds enforced by the vendor, in Fahrenheit.
const (
	MinTargetTempF = 95.0
	MaxTargetTempF = 140.0
)

func (m Mode) Valid() bool {
	switch m {
	case ModeStandard, ModeEco, ModeVacation, ModeBoost:
		return true
	default:
		return false
	}
}

func (m Mode) String() string {
	return string(m)
}

func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("invalid mode: %q", s)
	}
	return m, nil
}

// HAMode maps a vendor mode onto Home Assistant's water_heater operation
// list. Vacation parks the unit, so it maps to "off".
func (m Mode) HAMode() string {
	switch m {
	case ModeEco:
		return "eco"
	case ModeBoost:
		return "performance"
	case ModeVacation:
		return "off"
	default:
		return "heat_pump"
	}
}

// ModeFromHA is the inverse of HAMode for inbound MQTT commands.
func ModeFromHA(s string) (Mode, error) {
	switch s {
	case "eco":
		return ModeEco, nil
	case "performance":
		return ModeBoost, nil
	case "off":
		return ModeVacation, nil
	case "heat_pump":
		return ModeStandard, nil
	default:
		return "", fmt.Errorf("unsupported operation mode: %q", s)
	}
}

// Heater is the registry record for one water heater, from discovery.
type Heater struct {
	ID              string `json:"id"`
	IoTID           string `json:"iot_id"`
	Name            string `json:"name"`
	HomeID          string `json:"home_id"`
	HomeName        string `json:"home_name"`
	GroupID         string `json:"group_id"`
	Model           string `json:"model"`
	FirmwareVersion string `json:"firmware_version"`
}

// Telemetry holds the real-time payload for one heater. Every field is a
// pointer: the cloud omits or nulls fields the unit does not report, and a
// missing field must surface as unavailable rather than zero.
type Telemetry struct {
	// Tank and water temperatures, Celsius.
	TopTankTemp      *float64 `json:"topTankTemp"`
	UpperTankTemp    *float64 `json:"upperTankTemp"`
	LowerTankTemp    *float64 `json:"lowerTankTemp"`
	TopTankRawTemp   *float64 `json:"topTankRawTemp"`
	UpperTankRawTemp *float64 `json:"upperTankRawTemp"`
	LowerTankRawTemp *float64 `json:"lowerTankRawTemp"`
	OutletTemp       *float64 `json:"outletTemp"`
	InletTemp        *float64 `json:"inletTemp"`
	AmbientTemp      *float64 `json:"ambientTemp"`
	AmbientHumidity  *float64 `json:"ambientHumidity"`
	ShutoffTemp      *float64 `json:"shutoffTemp"`

	// Refrigerant loop diagnostics.
	SuctionPressure  *float64 `json:"suctionPressure"`  // kPa
	DeliveryPressure *float64 `json:"deliveryPressure"` // kPa
	DeliveryTemp     *float64 `json:"deliveryTemp"`
	SuperHeat        *float64 `json:"superHeat"`
	LiquidLineTemp   *float64 `json:"liquidLineTemp"`
	SuctionLineTemp  *float64 `json:"suctionLineTemp"`
	ExvPos           *float64 `json:"exvPos"` // percent open

	// Compressor and fan.
	CompSpeed   *float64 `json:"compSpeed"` // rpm
	CompFreq    *float64 `json:"compFreq"`  // Hz
	CompCurrent *float64 `json:"compCurrent"`
	CompVoltage *float64 `json:"compVoltage"`
	CompFlags   *string  `json:"compFlags"`
	FanPwm      *float64 `json:"fanPwm"`

	// Usage counters.
	EnergyUsed *float64 `json:"energyUsed"` // kWh, lifetime
	LitersUsed *float64 `json:"litersUsed"` // L, lifetime
	HotLiters  *float64 `json:"hotLiters"`  // L of hot water available
	FlowRate   *float64 `json:"flowRate"`   // L/min

	// Setpoints, Fahrenheit.
	UserDesiredTemp *float64 `json:"userDesiredTemp"`
	UserMaxTemp     *float64 `json:"userMaxTemp"`

	// Status flags.
	Status         *string  `json:"status"` // e.g. "CONNECTED"
	CloudConnected *bool    `json:"cloudConnected"`
	BoostStatus    *bool    `json:"boostStatus"`
	VacationMode   *bool    `json:"vacationMode"`
	CompRunning    *bool    `json:"compRunning"`
	FanPwr         *bool    `json:"fanPwr"`
	SafetyLockout  *bool    `json:"safetyLockout"`
	Lockout        *float64 `json:"lockout"`
	Uptime         *float64 `json:"uptime"` // seconds

	// Firmware and network.
	FirmwareVersion    *string `json:"firmwareVersion"`
	EfrFirmwareVersion *string `json:"efrFirmwareVersion"`
	NetworkMode        *string `json:"networkMode"`
}

// DailyUsage is the vendor's pre-computed since-midnight summary.
type DailyUsage struct {
	EnergyKWh float64   `json:"dailyEnergyUsed"`
	WaterL    float64   `json:"dailyWaterUsed"`
	ResetTime time.Time `json:"dailyResetTime"`
}

// State is the merged view of one heater held by the coordinator and
// fanned out to every entity surface.
type State struct {
	Heater    Heater     `json:"heater"`
	Telemetry Telemetry  `json:"telemetry"`
	Daily     DailyUsage `json:"daily"`
	UpdatedAt time.Time  `json:"updated_at"`
	Stale     bool       `json:"stale"`
}

// Mode derives the active operation mode from the status flags, vacation
// winning over boost, matching how the vendor app presents it.
func (s *State) Mode() Mode {
	if s.Telemetry.VacationMode != nil && *s.Telemetry.VacationMode {
		return ModeVacation
	}
	if s.Telemetry.BoostStatus != nil && *s.Telemetry.BoostStatus {
		return ModeBoost
	}
	return ModeStandard
}

// Connected reports whether the unit is reachable from the cloud. An absent
// flag counts as connected so a sparse payload does not mark the entity
// unavailable.
func (s *State) Connected() bool {
	return s.Telemetry.CloudConnected == nil || *s.Telemetry.CloudConnected
}

// ClampTarget bounds a requested target temperature to the vendor's range.
func ClampTarget(tempF float64) float64 {
	if tempF < MinTargetTempF {
		return MinTargetTempF
	}
	if tempF > MaxTargetTempF {
		return MaxTargetTempF
	}
	return tempF
}

// CToF converts Celsius telemetry to Fahrenheit for the water heater
// entity, which reports in the setpoint's unit.
func CToF(c float64) float64 {
	return c*9/5 + 32
}
