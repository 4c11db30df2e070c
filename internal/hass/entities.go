package hass

import (
	"fmt"
	"strings"

	"cala2mqtt/internal/model"
)

// sensorDef describes one telemetry field exposed as an MQTT sensor. Key is
// the field name inside the state JSON payload.
type sensorDef struct {
	key         string
	name        string
	deviceClass string
	unit        string
	stateClass  string
	diagnostic  bool
	disabled    bool
	icon        string
}

var sensorDefs = []sensorDef{
	{key: "topTankTemp", name: "Top Tank Temperature", deviceClass: "temperature", unit: "°C", stateClass: "measurement"},
	{key: "upperTankTemp", name: "Upper Tank Temperature", deviceClass: "temperature", unit: "°C", stateClass: "measurement", diagnostic: true, disabled: true},
	{key: "lowerTankTemp", name: "Lower Tank Temperature", deviceClass: "temperature", unit: "°C", stateClass: "measurement", diagnostic: true, disabled: true},
	{key: "outletTemp", name: "Outlet Temperature", deviceClass: "temperature", unit: "°C", stateClass: "measurement"},
	{key: "inletTemp", name: "Inlet Temperature", deviceClass: "temperature", unit: "°C", stateClass: "measurement"},
	{key: "ambientTemp", name: "Ambient Temperature", deviceClass: "temperature", unit: "°C", stateClass: "measurement"},
	{key: "ambientHumidity", name: "Ambient Humidity", deviceClass: "humidity", unit: "%", stateClass: "measurement"},
	{key: "suctionPressure", name: "Suction Pressure", deviceClass: "pressure", unit: "kPa", stateClass: "measurement", diagnostic: true, disabled: true},
	{key: "deliveryPressure", name: "Delivery Pressure", deviceClass: "pressure", unit: "kPa", stateClass: "measurement", diagnostic: true, disabled: true},
	{key: "deliveryTemp", name: "Delivery Temperature", deviceClass: "temperature", unit: "°C", stateClass: "measurement", diagnostic: true, disabled: true},
	{key: "superHeat", name: "Superheat", deviceClass: "temperature", unit: "°C", stateClass: "measurement", diagnostic: true, disabled: true},
	{key: "exvPos", name: "Expansion Valve Position", unit: "%", stateClass: "measurement", diagnostic: true, disabled: true, icon: "mdi:valve"},
	{key: "compSpeed", name: "Compressor Speed", unit: "rpm", stateClass: "measurement", diagnostic: true, icon: "mdi:fan"},
	{key: "compCurrent", name: "Compressor Current", deviceClass: "current", unit: "A", stateClass: "measurement", diagnostic: true, disabled: true},
	{key: "compVoltage", name: "Compressor Voltage", deviceClass: "voltage", unit: "V", stateClass: "measurement", diagnostic: true, disabled: true},
	{key: "fanPwm", name: "Fan PWM", unit: "%", stateClass: "measurement", diagnostic: true, disabled: true, icon: "mdi:fan"},
	{key: "energyUsed", name: "Lifetime Energy", deviceClass: "energy", unit: "kWh", stateClass: "total_increasing"},
	{key: "litersUsed", name: "Lifetime Water", deviceClass: "water", unit: "L", stateClass: "total_increasing"},
	{key: "hotLiters", name: "Hot Water Available", unit: "L", stateClass: "measurement", icon: "mdi:water-thermometer"},
	{key: "flowRate", name: "Flow Rate", deviceClass: "volume_flow_rate", unit: "L/min", stateClass: "measurement"},
	{key: "dailyEnergyUsed", name: "Energy Today", deviceClass: "energy", unit: "kWh", stateClass: "total"},
	{key: "dailyWaterUsed", name: "Water Today", deviceClass: "water", unit: "L", stateClass: "total"},
	{key: "uptime", name: "Uptime", deviceClass: "duration", unit: "s", stateClass: "measurement", diagnostic: true, disabled: true},
	{key: "userMaxTemp", name: "Maximum Setpoint", deviceClass: "temperature", unit: "°F", diagnostic: true, disabled: true},
}

type binarySensorDef struct {
	key         string
	name        string
	deviceClass string
	template    string
	diagnostic  bool
}

var binarySensorDefs = []binarySensorDef{
	{key: "connected", name: "Connectivity", deviceClass: "connectivity",
		template: "{{ 'ON' if value_json.connected else 'OFF' }}", diagnostic: true},
	{key: "safety_lockout", name: "Safety Lockout", deviceClass: "problem",
		template: "{{ 'ON' if value_json.safetyLockout else 'OFF' }}", diagnostic: true},
	{key: "compressor", name: "Compressor", deviceClass: "running",
		template: "{{ 'ON' if value_json.compRunning else 'OFF' }}", diagnostic: true},
	{key: "fan", name: "Fan", deviceClass: "running",
		template: "{{ 'ON' if value_json.fanPwr else 'OFF' }}", diagnostic: true},
}

// discoveryMessage is one retained config publish.
type discoveryMessage struct {
	topic   string
	payload any
}

// sanitizeID makes a heater ID safe for use inside an MQTT topic.
func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}

func device(h model.Heater) *Device {
	return &Device{
		Identifiers:     []string{"cala_" + h.ID},
		Manufacturer:    "Cala",
		Model:           h.Model,
		Name:            h.Name,
		SoftwareVersion: h.FirmwareVersion,
	}
}

func boolPtr(b bool) *bool { return &b }

// discoveryMessages builds every retained discovery config for one heater.
func discoveryMessages(prefix, base string, h model.Heater) []discoveryMessage {
	node := sanitizeID(h.ID)
	dev := device(h)
	avail := []Availability{{Topic: base + "/availability"}}
	stateTopic := fmt.Sprintf("%s/%s/state", base, node)
	cmdTopic := func(field string) string {
		return fmt.Sprintf("%s/%s/set/%s", base, node, field)
	}
	cfgTopic := func(component, object string) string {
		return fmt.Sprintf("%s/%s/cala_%s/%s/config", prefix, component, node, object)
	}

	var msgs []discoveryMessage

	msgs = append(msgs, discoveryMessage{
		topic: cfgTopic("water_heater", "water_heater"),
		payload: WaterHeater{
			Entity: Entity{
				Availability: avail,
				Device:       dev,
				Name:         h.Name,
				UniqueID:     "cala_" + h.ID + "_water_heater",
			},
			Modes:                      []string{"off", "eco", "heat_pump", "performance"},
			ModeStateTopic:             stateTopic,
			ModeStateTemplate:          "{{ value_json.ha_mode }}",
			ModeCommandTopic:           cmdTopic("mode"),
			TemperatureStateTopic:      stateTopic,
			TemperatureStateTemplate:   "{{ value_json.userDesiredTemp if value_json.userDesiredTemp is not none }}",
			TemperatureCommandTopic:    cmdTopic("target_temperature"),
			CurrentTemperatureTopic:    stateTopic,
			CurrentTemperatureTemplate: "{{ value_json.currentTempF if value_json.currentTempF is not none }}",
			MinTemp:                    model.MinTargetTempF,
			MaxTemp:                    model.MaxTargetTempF,
			TemperatureUnit:            "F",
			Precision:                  1.0,
		},
	})

	for _, def := range sensorDefs {
		s := Sensor{
			Entity: Entity{
				Availability:  avail,
				Device:        dev,
				DeviceClass:   def.deviceClass,
				Icon:          def.icon,
				Name:          def.name,
				StateTopic:    stateTopic,
				UniqueID:      "cala_" + h.ID + "_" + def.key,
				ValueTemplate: fmt.Sprintf("{{ value_json.%s if value_json.%s is not none }}", def.key, def.key),
			},
			StateClass:        def.stateClass,
			UnitOfMeasurement: def.unit,
		}
		if def.diagnostic {
			s.EntityCategory = "diagnostic"
		}
		if def.disabled {
			s.EnabledByDefault = boolPtr(false)
		}
		msgs = append(msgs, discoveryMessage{topic: cfgTopic("sensor", def.key), payload: s})
	}

	for _, def := range binarySensorDefs {
		b := BinarySensor{
			Entity: Entity{
				Availability:  avail,
				Device:        dev,
				DeviceClass:   def.deviceClass,
				Name:          def.name,
				StateTopic:    stateTopic,
				UniqueID:      "cala_" + h.ID + "_" + def.key,
				ValueTemplate: def.template,
			},
		}
		if def.diagnostic {
			b.EntityCategory = "diagnostic"
		}
		msgs = append(msgs, discoveryMessage{topic: cfgTopic("binary_sensor", def.key), payload: b})
	}

	msgs = append(msgs,
		discoveryMessage{
			topic: cfgTopic("switch", "boost"),
			payload: Switch{
				Entity: Entity{
					Availability:  avail,
					Device:        dev,
					Icon:          "mdi:rocket-launch",
					Name:          "Boost",
					StateTopic:    stateTopic,
					UniqueID:      "cala_" + h.ID + "_boost",
					ValueTemplate: "{{ 'ON' if value_json.boostStatus else 'OFF' }}",
				},
				CommandTopic: cmdTopic("boost"),
			},
		},
		discoveryMessage{
			topic: cfgTopic("switch", "vacation"),
			payload: Switch{
				Entity: Entity{
					Availability:  avail,
					Device:        dev,
					Icon:          "mdi:palm-tree",
					Name:          "Vacation Mode",
					StateTopic:    stateTopic,
					UniqueID:      "cala_" + h.ID + "_vacation",
					ValueTemplate: "{{ 'ON' if value_json.vacationMode else 'OFF' }}",
				},
				CommandTopic: cmdTopic("vacation"),
			},
		},
		discoveryMessage{
			topic: cfgTopic("number", "boost_duration"),
			payload: Number{
				Entity: Entity{
					Availability:   avail,
					Device:         dev,
					EntityCategory: "config",
					Icon:           "mdi:timer",
					Name:           "Boost Duration",
					StateTopic:     stateTopic,
					UniqueID:       "cala_" + h.ID + "_boost_duration",
					ValueTemplate:  "{{ value_json.boostDurationHours }}",
				},
				CommandTopic:      cmdTopic("boost_duration"),
				Min:               1,
				Max:               24,
				Step:              1,
				Mode:              "box",
				UnitOfMeasurement: "h",
			},
		},
		discoveryMessage{
			topic: cfgTopic("number", "vacation_duration"),
			payload: Number{
				Entity: Entity{
					Availability:   avail,
					Device:         dev,
					EntityCategory: "config",
					Icon:           "mdi:calendar-range",
					Name:           "Vacation Duration",
					StateTopic:     stateTopic,
					UniqueID:       "cala_" + h.ID + "_vacation_duration",
					ValueTemplate:  "{{ value_json.vacationDurationDays }}",
				},
				CommandTopic:      cmdTopic("vacation_duration"),
				Min:               1,
				Max:               90,
				Step:              1,
				Mode:              "box",
				UnitOfMeasurement: "d",
			},
		},
		discoveryMessage{
			topic: cfgTopic("button", "refresh"),
			payload: Button{
				Entity: Entity{
					Availability:   avail,
					Device:         dev,
					EntityCategory: "diagnostic",
					Icon:           "mdi:refresh",
					Name:           "Refresh",
					UniqueID:       "cala_" + h.ID + "_refresh",
				},
				CommandTopic: cmdTopic("refresh"),
				PayloadPress: "PRESS",
			},
		},
	)

	return msgs
}
