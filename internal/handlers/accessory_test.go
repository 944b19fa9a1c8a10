package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"blinds_bridge/internal/dispatcher"
	"blinds_bridge/internal/gateway"
	"blinds_bridge/internal/models"
	"blinds_bridge/internal/service"
)

func newAccessoryMock() *mockAccessory {
	return &mockAccessory{snaps: map[string]models.DeviceSnapshot{
		"65537": {
			DeviceID:            "65537",
			Name:                "Bedroom",
			CurrentPosition:     30,
			PreviousPosition:    30,
			TargetPosition:      30,
			BatteryLevel:        10,
			LowBatteryThreshold: 10,
			Observed:            true,
		},
	}}
}

func TestAccessoryHandlers_Reads(t *testing.T) {
	s := &service.Service{Authorization: &mockAuth{parseID: 1}, Accessory: newAccessoryMock()}
	r := newTestRouter(s)

	// Requires auth
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/accessories", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without auth, got %d", w.Code)
	}

	w = doAuthed(r, http.MethodGet, "/api/v1/accessories")
	if w.Code != http.StatusOK {
		t.Fatalf("list status=%d body=%s", w.Code, w.Body.String())
	}
	var list struct {
		Count       int                     `json:"count"`
		Accessories []models.DeviceSnapshot `json:"accessories"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if list.Count != 1 || list.Accessories[0].DeviceID != "65537" {
		t.Fatalf("unexpected list: %+v", list)
	}

	w = doAuthed(r, http.MethodGet, "/api/v1/accessories/65537")
	var snap models.DeviceSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil || w.Code != http.StatusOK {
		t.Fatalf("get status=%d err=%v", w.Code, err)
	}
	if snap.CurrentPosition != 30 || snap.Name != "Bedroom" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if strings.Contains(w.Body.String(), "previous_position") {
		t.Fatalf("estimator bookkeeping leaked into snapshot: %s", w.Body.String())
	}

	for path, want := range map[string]int{
		"/api/v1/accessories/65537/current-position": 30,
		"/api/v1/accessories/65537/target-position":  30,
	} {
		w = doAuthed(r, http.MethodGet, path)
		var v struct {
			Value int `json:"value"`
		}
		_ = json.Unmarshal(w.Body.Bytes(), &v)
		if w.Code != http.StatusOK || v.Value != want {
			t.Fatalf("%s: status=%d value=%d", path, w.Code, v.Value)
		}
	}

	w = doAuthed(r, http.MethodGet, "/api/v1/accessories/65537/battery")
	var bat struct {
		Value int  `json:"value"`
		Low   bool `json:"low"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &bat)
	if bat.Value != 10 || !bat.Low {
		t.Fatalf("battery at threshold should be low: %+v", bat)
	}

	w = doAuthed(r, http.MethodGet, "/api/v1/accessories/nope/current-position")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown device: expected 404, got %d", w.Code)
	}
}

func TestAccessoryHandlers_ListFailure(t *testing.T) {
	acc := newAccessoryMock()
	acc.listErr = errors.New("boom")
	r := newTestRouter(&service.Service{Authorization: &mockAuth{}, Accessory: acc})

	if w := doAuthed(r, http.MethodGet, "/api/v1/accessories"); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func putTarget(r http.Handler, id, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/v1/accessories/%s/target-position", id), bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer valid")
	r.ServeHTTP(w, req)
	return w
}

func TestAccessoryHandlers_SetTargetPosition(t *testing.T) {
	cases := []struct {
		name      string
		body      string
		err       error
		wantCode  int
		wantCalls int
	}{
		{"success", `{"value":70}`, nil, http.StatusOK, 1},
		{"zero is a valid value", `{"value":0}`, nil, http.StatusOK, 1},
		{"missing value", `{}`, nil, http.StatusBadRequest, 0},
		{"not a number", `{"value":"x"}`, nil, http.StatusBadRequest, 0},
		{"out of range", `{"value":150}`, &models.ValidationError{Field: "target_position", Value: 150}, http.StatusBadRequest, 1},
		{"unknown device", `{"value":10}`, fmt.Errorf("lookup: %w", models.ErrDeviceNotFound), http.StatusNotFound, 1},
		{"not connected", `{"value":10}`, &gateway.CommandError{Kind: gateway.NotConnected, DeviceID: "65537"}, http.StatusServiceUnavailable, 1},
		{"rejected", `{"value":10}`, &gateway.CommandError{Kind: gateway.GatewayRejected, DeviceID: "65537"}, http.StatusBadGateway, 1},
		{"timeout", `{"value":10}`, &gateway.CommandError{Kind: gateway.CommandTimeout, DeviceID: "65537"}, http.StatusGatewayTimeout, 1},
		{"superseded", `{"value":10}`, dispatcher.ErrSuperseded, http.StatusConflict, 1},
		{"unexpected", `{"value":10}`, errors.New("boom"), http.StatusInternalServerError, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctl := &mockControl{err: tc.err}
			r := newTestRouter(&service.Service{
				Authorization: &mockAuth{},
				Accessory:     newAccessoryMock(),
				Control:       ctl,
			})
			w := putTarget(r, "65537", tc.body)
			if w.Code != tc.wantCode {
				t.Fatalf("status=%d, want %d, body=%s", w.Code, tc.wantCode, w.Body.String())
			}
			if ctl.calls != tc.wantCalls {
				t.Fatalf("control calls=%d, want %d", ctl.calls, tc.wantCalls)
			}
			if tc.wantCalls == 1 && ctl.lastID != "65537" {
				t.Fatalf("control got id %q", ctl.lastID)
			}
		})
	}
}

func TestAccessoryHandlers_SetTargetReturnsSnapshot(t *testing.T) {
	ctl := &mockControl{}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{}, Accessory: newAccessoryMock(), Control: ctl})

	w := putTarget(r, "65537", `{"value":70}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ctl.lastValue != 70 {
		t.Fatalf("control got value %d", ctl.lastValue)
	}
	var snap models.DeviceSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if snap.DeviceID != "65537" {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	r := newTestRouter(&service.Service{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"ok"`)) {
		t.Fatalf("health: %d %s", w.Code, w.Body.String())
	}
}
