package api

import (
	"net/http"
	"testing"

	"zlot-parking/internal/models"
)

func TestGateAndDeviceRoundTrip(t *testing.T) {
	env := newTestEnv(t, RouterOptions{})

	rec := env.do(t, http.MethodPost, "/gate/open", "", nil)
	expectStatus(t, rec, http.StatusOK)
	opened := decode[models.DeviceMessageResponse](t, rec)
	if opened.Message != "Gate open command sent" || opened.DeviceID != "GATE_001" {
		t.Fatalf("open = %+v", opened)
	}

	rec = env.do(t, http.MethodPost, "/device/poll", "", models.DeviceRequest{DeviceID: "GATE_001"})
	expectStatus(t, rec, http.StatusOK)
	cmd := decode[models.Command](t, rec)
	if cmd.Command != models.CommandOpen || cmd.ID == "" {
		t.Fatalf("polled = %+v, want OPEN", cmd)
	}

	rec = env.do(t, http.MethodPost, "/device/ack", "", models.AckRequest{CommandID: cmd.ID})
	expectStatus(t, rec, http.StatusOK)
	ack := decode[models.AckResponse](t, rec)
	if ack.Message != "Command acknowledged" || ack.CommandID != cmd.ID {
		t.Errorf("ack = %+v", ack)
	}

	rec = env.do(t, http.MethodPost, "/device/poll", "", models.DeviceRequest{DeviceID: "GATE_001"})
	expectStatus(t, rec, http.StatusOK)
	if body := rec.Body.String(); body != "{}\n" {
		t.Errorf("empty poll body = %q, want {}", body)
	}

	rec = env.do(t, http.MethodPost, "/gate/close", "", models.DeviceRequest{DeviceID: "GATE_001"})
	expectStatus(t, rec, http.StatusOK)
	if got := decode[models.DeviceMessageResponse](t, rec).Message; got != "Gate close command sent" {
		t.Errorf("close message = %q", got)
	}
}

func TestGateCommandFailureIsInternal(t *testing.T) {
	env := newTestEnv(t, RouterOptions{})
	env.st.FailCommandInserts = true

	for _, path := range []string{"/gate/open", "/gate/close"} {
		t.Run(path, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, path, "", models.DeviceRequest{DeviceID: "GATE_001"})
			expectError(t, rec, http.StatusInternalServerError, "Command insert failed.")
		})
	}
}

func TestDeviceErrors(t *testing.T) {
	env := newTestEnv(t, RouterOptions{})

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		msg    string
	}{
		{"poll without id", "/device/poll", models.DeviceRequest{}, http.StatusBadRequest, "device_id required"},
		{"poll unknown device", "/device/poll", models.DeviceRequest{DeviceID: "GATE_404"}, http.StatusNotFound, "Device not found"},
		{"ack without id", "/device/ack", models.AckRequest{}, http.StatusBadRequest, "command_id required"},
		{"ack unknown command", "/device/ack", models.AckRequest{CommandID: "missing"}, http.StatusNotFound, "Command not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, "", tt.body)
			expectError(t, rec, tt.status, tt.msg)
		})
	}
}
