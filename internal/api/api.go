package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"cala2mqtt/internal/model"
)

// Controller is the slice of the coordinator the API drives.
type Controller interface {
	States() []model.State
	State(heaterID string) (model.State, bool)
	SetTemperature(ctx context.Context, heaterID string, tempF float64) error
	SetMode(ctx context.Context, heaterID string, mode model.Mode) error
	SetBoost(ctx context.Context, heaterID string, on bool, hours int) error
	SetVacation(ctx context.Context, heaterID string, on bool, days int) error
	RequestRefresh()
}

type Server struct {
	controller Controller
	mux        *http.ServeMux
}

type HeaterResponse struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Model           string          `json:"model"`
	HomeName        string          `json:"home_name"`
	Mode            string          `json:"mode"`
	TargetTempF     *float64        `json:"target_temp_f"`
	CurrentTempC    *float64        `json:"current_temp_c"`
	Connected       bool            `json:"connected"`
	BoostActive     bool            `json:"boost_active"`
	VacationActive  bool            `json:"vacation_active"`
	DailyEnergyKWh  float64         `json:"daily_energy_kwh"`
	DailyWaterL     float64         `json:"daily_water_l"`
	Stale           bool            `json:"stale"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Telemetry       model.Telemetry `json:"telemetry"`
	FirmwareVersion string          `json:"firmware_version"`
}

type TemperatureRequest struct {
	Temperature float64 `json:"temperature"`
}

type ModeRequest struct {
	Mode string `json:"mode"`
}

type BoostRequest struct {
	Hours int `json:"hours"`
}

type VacationRequest struct {
	Days int `json:"days"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(controller Controller) *Server {
	s := &Server{
		controller: controller,
		mux:        http.NewServeMux(),
	}

	s.mux.HandleFunc("/api/heaters", s.handleHeaters)
	s.mux.HandleFunc("/api/heaters/", s.handleHeaterOperations)
	s.mux.HandleFunc("/api/refresh", s.handleRefresh)
	return s
}

// Mount registers an extra handler, used to attach the websocket endpoint.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Handler wraps the mux with CORS headers.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		s.mux.ServeHTTP(w, r)
	})
}

func (s *Server) Start(addr string) error {
	log.Info().Str("address", addr).Msg("Starting REST API server")
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleHeaters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	states := s.controller.States()
	response := make([]HeaterResponse, 0, len(states))
	for _, state := range states {
		response = append(response, heaterResponse(state))
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleHeaterOperations(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/heaters/")
	parts := strings.Split(path, "/")

	if len(parts) < 1 || parts[0] == "" {
		s.writeError(w, http.StatusNotFound, "Heater ID required")
		return
	}

	heaterID := parts[0]

	if len(parts) == 1 {
		if r.Method == http.MethodGet {
			s.getHeater(w, r, heaterID)
		} else {
			s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	if len(parts) != 2 {
		s.writeError(w, http.StatusNotFound, "Invalid path")
		return
	}

	operation := parts[1]
	switch {
	case operation == "temperature" && r.Method == http.MethodPut:
		s.setTemperature(w, r, heaterID)
	case operation == "mode" && r.Method == http.MethodPut:
		s.setMode(w, r, heaterID)
	case operation == "boost" && r.Method == http.MethodPost:
		s.startBoost(w, r, heaterID)
	case operation == "boost" && r.Method == http.MethodDelete:
		s.cancelBoost(w, r, heaterID)
	case operation == "vacation" && r.Method == http.MethodPost:
		s.startVacation(w, r, heaterID)
	case operation == "vacation" && r.Method == http.MethodDelete:
		s.cancelVacation(w, r, heaterID)
	case operation == "temperature" || operation == "mode" || operation == "boost" || operation == "vacation":
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	default:
		s.writeError(w, http.StatusNotFound, "Unknown operation")
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.controller.RequestRefresh()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) getHeater(w http.ResponseWriter, r *http.Request, heaterID string) {
	state, ok := s.controller.State(heaterID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "Heater not found")
		return
	}
	s.writeJSON(w, http.StatusOK, heaterResponse(state))
}

func (s *Server) setTemperature(w http.ResponseWriter, r *http.Request, heaterID string) {
	var req TemperatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if req.Temperature < model.MinTargetTempF || req.Temperature > model.MaxTargetTempF {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf(
			"Invalid temperature. Must be between %.0f°F and %.0f°F",
			model.MinTargetTempF, model.MaxTargetTempF))
		return
	}

	if _, ok := s.controller.State(heaterID); !ok {
		s.writeError(w, http.StatusNotFound, "Heater not found")
		return
	}

	if err := s.controller.SetTemperature(r.Context(), heaterID, req.Temperature); err != nil {
		log.Error().Err(err).Str("heater_id", heaterID).Float64("temperature", req.Temperature).Msg("Failed to set temperature")
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	log.Info().Str("heater_id", heaterID).Float64("temperature", req.Temperature).Msg("Target temperature updated via API")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) setMode(w http.ResponseWriter, r *http.Request, heaterID string) {
	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	mode, err := model.ParseMode(req.Mode)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid mode. Valid modes: standard, eco, boost, vacation")
		return
	}

	if _, ok := s.controller.State(heaterID); !ok {
		s.writeError(w, http.StatusNotFound, "Heater not found")
		return
	}

	if err := s.controller.SetMode(r.Context(), heaterID, mode); err != nil {
		log.Error().Err(err).Str("heater_id", heaterID).Str("mode", req.Mode).Msg("Failed to set mode")
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	log.Info().Str("heater_id", heaterID).Str("mode", req.Mode).Msg("Operation mode updated via API")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) startBoost(w http.ResponseWriter, r *http.Request, heaterID string) {
	var req BoostRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
			return
		}
	}
	if req.Hours < 0 || req.Hours > 24 {
		s.writeError(w, http.StatusBadRequest, "Invalid hours. Must be between 1 and 24")
		return
	}

	if _, ok := s.controller.State(heaterID); !ok {
		s.writeError(w, http.StatusNotFound, "Heater not found")
		return
	}

	if err := s.controller.SetBoost(r.Context(), heaterID, true, req.Hours); err != nil {
		log.Error().Err(err).Str("heater_id", heaterID).Msg("Failed to start boost")
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	log.Info().Str("heater_id", heaterID).Int("hours", req.Hours).Msg("Boost started via API")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) cancelBoost(w http.ResponseWriter, r *http.Request, heaterID string) {
	if _, ok := s.controller.State(heaterID); !ok {
		s.writeError(w, http.StatusNotFound, "Heater not found")
		return
	}

	if err := s.controller.SetBoost(r.Context(), heaterID, false, 0); err != nil {
		log.Error().Err(err).Str("heater_id", heaterID).Msg("Failed to cancel boost")
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	log.Info().Str("heater_id", heaterID).Msg("Boost cancelled via API")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) startVacation(w http.ResponseWriter, r *http.Request, heaterID string) {
	var req VacationRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
			return
		}
	}
	if req.Days < 0 || req.Days > 90 {
		s.writeError(w, http.StatusBadRequest, "Invalid days. Must be between 1 and 90")
		return
	}

	if _, ok := s.controller.State(heaterID); !ok {
		s.writeError(w, http.StatusNotFound, "Heater not found")
		return
	}

	if err := s.controller.SetVacation(r.Context(), heaterID, true, req.Days); err != nil {
		log.Error().Err(err).Str("heater_id", heaterID).Msg("Failed to start vacation mode")
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	log.Info().Str("heater_id", heaterID).Int("days", req.Days).Msg("Vacation mode started via API")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) cancelVacation(w http.ResponseWriter, r *http.Request, heaterID string) {
	if _, ok := s.controller.State(heaterID); !ok {
		s.writeError(w, http.StatusNotFound, "Heater not found")
		return
	}

	if err := s.controller.SetVacation(r.Context(), heaterID, false, 0); err != nil {
		log.Error().Err(err).Str("heater_id", heaterID).Msg("Failed to cancel vacation mode")
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	log.Info().Str("heater_id", heaterID).Msg("Vacation mode cancelled via API")
	w.WriteHeader(http.StatusOK)
}

func heaterResponse(state model.State) HeaterResponse {
	return HeaterResponse{
		ID:              state.Heater.ID,
		Name:            state.Heater.Name,
		Model:           state.Heater.Model,
		HomeName:        state.Heater.HomeName,
		Mode:            state.Mode().String(),
		TargetTempF:     state.Telemetry.UserDesiredTemp,
		CurrentTempC:    state.Telemetry.TopTankTemp,
		Connected:       state.Connected(),
		BoostActive:     state.Telemetry.BoostStatus != nil && *state.Telemetry.BoostStatus,
		VacationActive:  state.Telemetry.VacationMode != nil && *state.Telemetry.VacationMode,
		DailyEnergyKWh:  state.Daily.EnergyKWh,
		DailyWaterL:     state.Daily.WaterL,
		Stale:           state.Stale,
		UpdatedAt:       state.UpdatedAt,
		Telemetry:       state.Telemetry,
		FirmwareVersion: state.Heater.FirmwareVersion,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
