package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cala2mqtt/internal/model"
)

type fakeController struct {
	states map[string]model.State

	lastCommand string
	lastTemp    float64
	lastMode    model.Mode
	lastOn      bool
	lastHours   int
	lastDays    int
	refreshed   bool

	err error
}

func (f *fakeController) States() []model.State {
	out := make([]model.State, 0, len(f.states))
	for _, s := range f.states {
		out = append(out, s)
	}
	return out
}

func (f *fakeController) State(id string) (model.State, bool) {
	s, ok := f.states[id]
	return s, ok
}

func (f *fakeController) SetTemperature(ctx context.Context, id string, tempF float64) error {
	f.lastCommand, f.lastTemp = "set_temperature", tempF
	return f.err
}

func (f *fakeController) SetMode(ctx context.Context, id string, mode model.Mode) error {
	f.lastCommand, f.lastMode = "set_mode", mode
	return f.err
}

func (f *fakeController) SetBoost(ctx context.Context, id string, on bool, hours int) error {
	f.lastCommand, f.lastOn, f.lastHours = "boost", on, hours
	return f.err
}

func (f *fakeController) SetVacation(ctx context.Context, id string, on bool, days int) error {
	f.lastCommand, f.lastOn, f.lastDays = "vacation", on, days
	return f.err
}

func (f *fakeController) RequestRefresh() { f.refreshed = true }

func newTestServer() (*Server, *fakeController) {
	top := 55.0
	desired := 125.0
	connected := true
	controller := &fakeController{
		states: map[string]model.State{
			"wh-1": {
				Heater: model.Heater{ID: "wh-1", Name: "Garage Heater", Model: "C-120", HomeName: "Lake House"},
				Telemetry: model.Telemetry{
					TopTankTemp:     &top,
					UserDesiredTemp: &desired,
					CloudConnected:  &connected,
				},
				Daily:     model.DailyUsage{EnergyKWh: 2.5, WaterL: 120},
				UpdatedAt: time.Now(),
			},
		},
	}
	return NewServer(controller), controller
}

func doRequest(s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.ContentLength = int64(buf.Len())
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestGetHeaters(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/api/heaters", nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var got []HeaterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "wh-1", got[0].ID)
	assert.Equal(t, "Garage Heater", got[0].Name)
	assert.Equal(t, "standard", got[0].Mode)
	assert.Equal(t, 125.0, *got[0].TargetTempF)
	assert.True(t, got[0].Connected)
}

func TestGetHeater(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/api/heaters/wh-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var got HeaterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "wh-1", got.ID)
	assert.Equal(t, 2.5, got.DailyEnergyKWh)
}

func TestGetHeaterNotFound(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/api/heaters/nope", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)

	var got ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Heater not found", got.Error)
}

func TestSetTemperature(t *testing.T) {
	s, controller := newTestServer()
	rec := doRequest(s, http.MethodPut, "/api/heaters/wh-1/temperature", TemperatureRequest{Temperature: 130})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "set_temperature", controller.lastCommand)
	assert.Equal(t, 130.0, controller.lastTemp)
}

func TestSetTemperatureOutOfRange(t *testing.T) {
	s, controller := newTestServer()
	rec := doRequest(s, http.MethodPut, "/api/heaters/wh-1/temperature", TemperatureRequest{Temperature: 200})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, controller.lastCommand)
}

func TestSetTemperatureBadJSON(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPut, "/api/heaters/wh-1/temperature", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetMode(t *testing.T) {
	s, controller := newTestServer()
	rec := doRequest(s, http.MethodPut, "/api/heaters/wh-1/mode", ModeRequest{Mode: "eco"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "set_mode", controller.lastCommand)
	assert.Equal(t, model.ModeEco, controller.lastMode)
}

func TestSetModeInvalid(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(s, http.MethodPut, "/api/heaters/wh-1/mode", ModeRequest{Mode: "turbo"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBoostLifecycle(t *testing.T) {
	s, controller := newTestServer()

	rec := doRequest(s, http.MethodPost, "/api/heaters/wh-1/boost", BoostRequest{Hours: 8})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "boost", controller.lastCommand)
	assert.True(t, controller.lastOn)
	assert.Equal(t, 8, controller.lastHours)

	rec = doRequest(s, http.MethodDelete, "/api/heaters/wh-1/boost", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, controller.lastOn)
}

func TestBoostDefaultDuration(t *testing.T) {
	s, controller := newTestServer()

	// Empty body means the configured default duration.
	rec := doRequest(s, http.MethodPost, "/api/heaters/wh-1/boost", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, controller.lastHours)
}

func TestVacationLifecycle(t *testing.T) {
	s, controller := newTestServer()

	rec := doRequest(s, http.MethodPost, "/api/heaters/wh-1/vacation", VacationRequest{Days: 14})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "vacation", controller.lastCommand)
	assert.True(t, controller.lastOn)
	assert.Equal(t, 14, controller.lastDays)

	rec = doRequest(s, http.MethodDelete, "/api/heaters/wh-1/vacation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, controller.lastOn)
}

func TestCommandFailureReturnsBadGateway(t *testing.T) {
	s, controller := newTestServer()
	controller.err = assert.AnError

	rec := doRequest(s, http.MethodPut, "/api/heaters/wh-1/temperature", TemperatureRequest{Temperature: 120})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRefresh(t *testing.T) {
	s, controller := newTestServer()
	rec := doRequest(s, http.MethodPost, "/api/refresh", nil)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, controller.refreshed)
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer()

	rec := doRequest(s, http.MethodDelete, "/api/heaters", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/heaters/wh-1/boost", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(s, http.MethodOptions, "/api/heaters", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
