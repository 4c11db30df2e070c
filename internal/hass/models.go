package hass

// MQTT discovery payload models, following Home Assistant's discovery
// schema. Only the fields this bridge publishes are modeled.

// Device groups all of a heater's entities under one device registry entry.
type Device struct {
	Identifiers     []string `json:"identifiers,omitempty"`
	Manufacturer    string   `json:"manufacturer,omitempty"`
	Model           string   `json:"model,omitempty"`
	Name            string   `json:"name,omitempty"`
	SoftwareVersion string   `json:"sw_version,omitempty"`
	SuggestedArea   string   `json:"suggested_area,omitempty"`
}

// Availability points an entity at the bridge's online/offline topic.
type Availability struct {
	Topic               string `json:"topic"`
	PayloadAvailable    string `json:"payload_available,omitempty"`
	PayloadNotAvailable string `json:"payload_not_available,omitempty"`
}

// Entity carries the fields shared by every discovery config.
type Entity struct {
	Availability     []Availability `json:"availability,omitempty"`
	Device           *Device        `json:"device,omitempty"`
	DeviceClass      string         `json:"device_class,omitempty"`
	EnabledByDefault *bool          `json:"enabled_by_default,omitempty"`
	EntityCategory   string         `json:"entity_category,omitempty"`
	Icon             string         `json:"icon,omitempty"`
	Name             string         `json:"name,omitempty"`
	ObjectID         string         `json:"object_id,omitempty"`
	StateTopic       string         `json:"state_topic,omitempty"`
	UniqueID         string         `json:"unique_id,omitempty"`
	ValueTemplate    string         `json:"value_template,omitempty"`
}

type Sensor struct {
	Entity

	StateClass        string `json:"state_class,omitempty"`
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
}

type BinarySensor struct {
	Entity

	PayloadOn  string `json:"payload_on,omitempty"`
	PayloadOff string `json:"payload_off,omitempty"`
}

type Switch struct {
	Entity

	CommandTopic string `json:"command_topic"`
	PayloadOn    string `json:"payload_on,omitempty"`
	PayloadOff   string `json:"payload_off,omitempty"`
	StateOn      string `json:"state_on,omitempty"`
	StateOff     string `json:"state_off,omitempty"`
}

type Number struct {
	Entity

	CommandTopic      string  `json:"command_topic"`
	Min               float64 `json:"min,omitempty"`
	Max               float64 `json:"max,omitempty"`
	Step              float64 `json:"step,omitempty"`
	Mode              string  `json:"mode,omitempty"`
	UnitOfMeasurement string  `json:"unit_of_measurement,omitempty"`
}

type Button struct {
	Entity

	CommandTopic string `json:"command_topic"`
	PayloadPress string `json:"payload_press,omitempty"`
}

type WaterHeater struct {
	Entity

	Modes                      []string `json:"modes,omitempty"`
	ModeStateTopic             string   `json:"mode_state_topic,omitempty"`
	ModeStateTemplate          string   `json:"mode_state_template,omitempty"`
	ModeCommandTopic           string   `json:"mode_command_topic,omitempty"`
	TemperatureStateTopic      string   `json:"temperature_state_topic,omitempty"`
	TemperatureStateTemplate   string   `json:"temperature_state_template,omitempty"`
	TemperatureCommandTopic    string   `json:"temperature_command_topic,omitempty"`
	CurrentTemperatureTopic    string   `json:"current_temperature_topic,omitempty"`
	CurrentTemperatureTemplate string   `json:"current_temperature_template,omitempty"`
	MinTemp                    float64  `json:"min_temp,omitempty"`
	MaxTemp                    float64  `json:"max_temp,omitempty"`
	TemperatureUnit            string   `json:"temperature_unit,omitempty"`
	Precision                  float64  `json:"precision,omitempty"`
}
