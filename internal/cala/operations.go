package cala

import (
	"context"
	"encoding/json"

	"cala2mqtt/internal/model"
)

const queryUserHomes = `
	query GetUserHomes {
		getUserHomes {
			items {
				id
				name
			}
		}
	}
`

const queryHeatersByHome = `
	query ListWaterHeatersByHomeId($homeId: ID!) {
		listWaterHeatersByHomeId(homeId: $homeId) {
			items {
				id
				iot_id
				name
				home_id
				group_id
				model
				firmware_version
			}
		}
	}
`

const queryHeaterStatus = `
	query GetWaterHeaterStatus($id: ID!) {
		getWaterHeater(id: $id) {
			id
			topTankTemp
			upperTankTemp
			lowerTankTemp
			topTankRawTemp
			upperTankRawTemp
			lowerTankRawTemp
			outletTemp
			inletTemp
			ambientTemp
			ambientHumidity
			shutoffTemp
			suctionPressure
			deliveryPressure
			deliveryTemp
			superHeat
			liquidLineTemp
			suctionLineTemp
			exvPos
			compSpeed
			compFreq
			compCurrent
			compVoltage
			compFlags
			fanPwm
			energyUsed
			litersUsed
			hotLiters
			flowRate
			userDesiredTemp
			userMaxTemp
			status
			cloudConnected
			boostStatus
			vacationMode
			compRunning
			fanPwr
			safetyLockout
			lockout
			uptime
			firmwareVersion
			efrFirmwareVersion
			networkMode
		}
	}
`

const queryDailySummary = `
	query GetDailySummary($iotId: ID!, $date: String!) {
		getDailySummary(iot_id: $iotId, date: $date) {
			dailyEnergyUsed
			dailyWaterUsed
		}
	}
`

const mutationSetTemperature = `
	mutation SetWaterHeaterTemp($id: ID!, $temp: Float!) {
		updateWaterHeater(input: {id: $id, userDesiredTemp: $temp}) {
			id
			userDesiredTemp
		}
	}
`

const mutationStartBoost = `
	mutation SetBoostMode($id: ID!, $hours: Int!) {
		updateWaterHeater(input: {id: $id, boostStatus: true, boostDurationHours: $hours}) {
			id
			boostStatus
		}
	}
`

const mutationCancelBoost = `
	mutation CancelBoostMode($id: ID!) {
		updateWaterHeater(input: {id: $id, boostStatus: false}) {
			id
			boostStatus
		}
	}
`

const mutationStartVacation = `
	mutation SetVacationMode($id: ID!, $days: Int!) {
		updateWaterHeater(input: {id: $id, vacationMode: true, vacationDurationDays: $days}) {
			id
			vacationMode
		}
	}
`

const mutationCancelVacation = `
	mutation CancelVacationMode($id: ID!) {
		updateWaterHeater(input: {id: $id, vacationMode: false}) {
			id
			vacationMode
		}
	}
`

const mutationSetEco = `
	mutation SetEcoMode($id: ID!, $eco: Boolean!) {
		updateWaterHeater(input: {id: $id, ecoMode: $eco}) {
			id
			ecoMode
		}
	}
`

const mutationSetStandard = `
	mutation SetStandardMode($id: ID!) {
		updateWaterHeater(input: {id: $id, boostStatus: false, vacationMode: false, ecoMode: false}) {
			id
			boostStatus
			vacationMode
		}
	}
`

type homesEnvelope struct {
	GetUserHomes struct {
		Items []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"items"`
	} `json:"getUserHomes"`
}

type heatersEnvelope struct {
	ListWaterHeatersByHomeID struct {
		Items []struct {
			ID              string `json:"id"`
			IoTID           string `json:"iot_id"`
			Name            string `json:"name"`
			HomeID          string `json:"home_id"`
			GroupID         string `json:"group_id"`
			Model           string `json:"model"`
			FirmwareVersion string `json:"firmware_version"`
		} `json:"items"`
	} `json:"listWaterHeatersByHomeId"`
}

type statusEnvelope struct {
	GetWaterHeater model.Telemetry `json:"getWaterHeater"`
}

type dailyEnvelope struct {
	GetDailySummary struct {
		DailyEnergyUsed float64 `json:"dailyEnergyUsed"`
		DailyWaterUsed  float64 `json:"dailyWaterUsed"`
	} `json:"getDailySummary"`
}

// ListHeaters enumerates the account's homes and the heaters in each.
func (c *Client) ListHeaters(ctx context.Context) ([]model.Heater, error) {
	data, err := c.graphql(ctx, queryUserHomes, nil)
	if err != nil {
		return nil, err
	}
	var homes homesEnvelope
	if err := json.Unmarshal(data, &homes); err != nil {
		return nil, &APIError{Message: "decode homes", Err: err}
	}

	var heaters []model.Heater
	for _, home := range homes.GetUserHomes.Items {
		data, err := c.graphql(ctx, queryHeatersByHome, map[string]any{"homeId": home.ID})
		if err != nil {
			return nil, err
		}
		var env heatersEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, &APIError{Message: "decode heaters", Err: err}
		}
		for _, h := range env.ListWaterHeatersByHomeID.Items {
			heaters = append(heaters, model.Heater{
				ID:              h.ID,
				IoTID:           h.IoTID,
				Name:            h.Name,
				HomeID:          home.ID,
				HomeName:        home.Name,
				GroupID:         h.GroupID,
				Model:           h.Model,
				FirmwareVersion: h.FirmwareVersion,
			})
		}
	}
	return heaters, nil
}

// HeaterStatus fetches the real-time payload for one heater by IoT id.
func (c *Client) HeaterStatus(ctx context.Context, iotID string) (model.Telemetry, error) {
	data, err := c.graphql(ctx, queryHeaterStatus, map[string]any{"id": iotID})
	if err != nil {
		return model.Telemetry{}, err
	}
	var env statusEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return model.Telemetry{}, &APIError{Message: "decode status", Err: err}
	}
	return env.GetWaterHeater, nil
}

// DailySummary fetches the pre-computed usage totals for a local date
// formatted as YYYY-MM-DD.
func (c *Client) DailySummary(ctx context.Context, iotID, date string) (energyKWh, waterL float64, err error) {
	data, err := c.graphql(ctx, queryDailySummary, map[string]any{"iotId": iotID, "date": date})
	if err != nil {
		return 0, 0, err
	}
	var env dailyEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return 0, 0, &APIError{Message: "decode daily summary", Err: err}
	}
	return env.GetDailySummary.DailyEnergyUsed, env.GetDailySummary.DailyWaterUsed, nil
}

// SetTemperature sets the target temperature in Fahrenheit. The caller is
// expected to clamp first; the cloud rejects out-of-range values anyway.
func (c *Client) SetTemperature(ctx context.Context, heaterID string, tempF float64) error {
	_, err := c.graphql(ctx, mutationSetTemperature, map[string]any{"id": heaterID, "temp": tempF})
	return err
}

// SetMode selects among the vendor's fixed mode enumeration with the
// per-mode mutation the app issues.
func (c *Client) SetMode(ctx context.Context, heaterID string, mode model.Mode) error {
	switch mode {
	case model.ModeEco:
		_, err := c.graphql(ctx, mutationSetEco, map[string]any{"id": heaterID, "eco": true})
		return err
	case model.ModeStandard:
		_, err := c.graphql(ctx, mutationSetStandard, map[string]any{"id": heaterID})
		return err
	case model.ModeBoost:
		return c.StartBoost(ctx, heaterID, 0)
	case model.ModeVacation:
		return c.StartVacation(ctx, heaterID, 0)
	default:
		return &APIError{Message: "unknown operation mode " + mode.String()}
	}
}

// StartBoost enables the boost override. Zero hours lets the vendor apply
// its default duration.
func (c *Client) StartBoost(ctx context.Context, heaterID string, hours int) error {
	_, err := c.graphql(ctx, mutationStartBoost, map[string]any{"id": heaterID, "hours": hours})
	return err
}

func (c *Client) CancelBoost(ctx context.Context, heaterID string) error {
	_, err := c.graphql(ctx, mutationCancelBoost, map[string]any{"id": heaterID})
	return err
}

// StartVacation enables vacation mode. Zero days lets the vendor apply its
// default duration.
func (c *Client) StartVacation(ctx context.Context, heaterID string, days int) error {
	_, err := c.graphql(ctx, mutationStartVacation, map[string]any{"id": heaterID, "days": days})
	return err
}

func (c *Client) CancelVacation(ctx context.Context, heaterID string) error {
	_, err := c.graphql(ctx, mutationCancelVacation, map[string]any{"id": heaterID})
	return err
}

// TurnOff parks the heater in vacation mode.
func (c *Client) TurnOff(ctx context.Context, heaterID string) error {
	return c.StartVacation(ctx, heaterID, 0)
}

// TurnOn restores standard operation.
func (c *Client) TurnOn(ctx context.Context, heaterID string) error {
	return c.SetMode(ctx, heaterID, model.ModeStandard)
}
