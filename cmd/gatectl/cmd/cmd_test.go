package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"zlot-parking/internal/models"

	"github.com/spf13/viper"
)

// resetViper clears viper config between tests for isolation
func resetViper() {
	viper.Reset()
	viper.SetEnvPrefix("GATECTL")
	viper.AutomaticEnv()
}

// fakeBackend serves one queued command until it is acknowledged.
type fakeBackend struct {
	mu       sync.Mutex
	pending  *models.Command
	acked    []string
	gates    []string
	failWith int
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if f.failWith != 0 {
		w.WriteHeader(f.failWith)
		json.NewEncoder(w).Encode(models.ErrorResponse{Error: "Server error"})
		return
	}

	switch r.URL.Path {
	case "/device/poll":
		var req models.DeviceRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.DeviceID != "GATE_001" {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(models.ErrorResponse{Error: "Device not found"})
			return
		}
		if f.pending == nil {
			w.Write([]byte("{}\n"))
			return
		}
		json.NewEncoder(w).Encode(f.pending)
	case "/device/ack":
		var req models.AckRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.acked = append(f.acked, req.CommandID)
		f.pending = nil
		json.NewEncoder(w).Encode(models.AckResponse{Message: "Command acknowledged", CommandID: req.CommandID})
	case "/gate/open", "/gate/close":
		var req models.DeviceRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.gates = append(f.gates, r.URL.Path+":"+req.DeviceID)
		msg := "Gate open command sent"
		if strings.HasSuffix(r.URL.Path, "close") {
			msg = "Gate close command sent"
		}
		json.NewEncoder(w).Encode(models.DeviceMessageResponse{Message: msg, DeviceID: req.DeviceID})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newBackend(t *testing.T, pending *models.Command) (*fakeBackend, string) {
	t.Helper()
	backend := &fakeBackend{pending: pending}
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)
	return backend, server.URL
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), err
}

func TestPollCommand(t *testing.T) {
	resetViper()
	_, url := newBackend(t, &models.Command{ID: "cmd-1", Command: models.CommandOpen})
	viper.Set("url", url)
	viper.Set("device_id", "GATE_001")

	out, err := execute(t, "poll")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "OPEN") || !strings.Contains(out, "cmd-1") {
		t.Errorf("expected command in output, got: %s", out)
	}
}

func TestPollCommand_Empty(t *testing.T) {
	resetViper()
	_, url := newBackend(t, nil)
	viper.Set("url", url)
	viper.Set("device_id", "GATE_001")

	out, err := execute(t, "poll")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No pending command for GATE_001") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestPollCommand_UnknownDevice(t *testing.T) {
	resetViper()
	_, url := newBackend(t, nil)
	viper.Set("url", url)
	viper.Set("device_id", "GATE_404")

	_, err := execute(t, "poll")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "Device not found" {
		t.Errorf("unexpected error: %+v", apiErr)
	}
}

func TestAckCommand(t *testing.T) {
	resetViper()
	backend, url := newBackend(t, nil)
	viper.Set("url", url)

	out, err := execute(t, "ack", "cmd-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Command acknowledged: cmd-9") {
		t.Errorf("unexpected output: %s", out)
	}
	if len(backend.acked) != 1 || backend.acked[0] != "cmd-9" {
		t.Errorf("acked = %v", backend.acked)
	}
}

func TestGateCommands(t *testing.T) {
	resetViper()
	backend, url := newBackend(t, nil)
	viper.Set("url", url)
	viper.Set("device_id", "GATE_002")

	for _, tt := range []struct {
		action string
		want   string
	}{
		{"open", "Gate open command sent (GATE_002)"},
		{"close", "Gate close command sent (GATE_002)"},
	} {
		out, err := execute(t, tt.action)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.action, err)
		}
		if !strings.Contains(out, tt.want) {
			t.Errorf("%s: unexpected output: %s", tt.action, out)
		}
	}
	if len(backend.gates) != 2 {
		t.Errorf("gate calls = %v", backend.gates)
	}
}

func TestAgent_ExecutesAndAcknowledges(t *testing.T) {
	backend, url := newBackend(t, &models.Command{ID: "cmd-1", Command: models.CommandOpen})

	var out bytes.Buffer
	waits := 0
	a := &agent{
		client:     NewGateClient(url),
		deviceID:   "GATE_001",
		interval:   time.Second,
		maxBackoff: maxBackoff,
		out:        &out,
		wait: func(ctx context.Context, d time.Duration) error {
			waits++
			if waits == 2 {
				return context.Canceled
			}
			return nil
		},
	}

	if err := a.run(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("run = %v, want context.Canceled", err)
	}
	if len(backend.acked) != 1 || backend.acked[0] != "cmd-1" {
		t.Errorf("acked = %v, want [cmd-1]", backend.acked)
	}
	if !strings.Contains(out.String(), "OPEN cmd-1") {
		t.Errorf("expected command in output, got: %s", out.String())
	}
}

func TestAgent_BacksOffOnServerErrors(t *testing.T) {
	backend, url := newBackend(t, nil)
	backend.failWith = http.StatusInternalServerError

	var delays []time.Duration
	a := &agent{
		client:     NewGateClient(url),
		deviceID:   "GATE_001",
		interval:   time.Second,
		maxBackoff: 5 * time.Second,
		out:        &bytes.Buffer{},
		wait: func(ctx context.Context, d time.Duration) error {
			delays = append(delays, d)
			if len(delays) == 4 {
				return context.Canceled
			}
			return nil
		},
	}

	a.run(context.Background())
	want := []time.Duration{2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay %d = %s, want %s", i, delays[i], want[i])
		}
	}
}

func TestAgent_StopsOnClientError(t *testing.T) {
	_, url := newBackend(t, nil)

	a := &agent{
		client:   NewGateClient(url),
		deviceID: "GATE_404",
		interval: time.Second,
		out:      &bytes.Buffer{},
		wait: func(context.Context, time.Duration) error {
			t.Fatal("agent should not wait after a client error")
			return nil
		},
	}

	var apiErr *APIError
	if err := a.run(context.Background()); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("run = %v, want 404 APIError", err)
	}
}

func TestNextBackoff(t *testing.T) {
	tests := []struct {
		cur, base, limit, want time.Duration
	}{
		{0, time.Second, 30 * time.Second, 2 * time.Second},
		{2 * time.Second, time.Second, 30 * time.Second, 4 * time.Second},
		{20 * time.Second, time.Second, 30 * time.Second, 30 * time.Second},
		{30 * time.Second, time.Second, 30 * time.Second, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := nextBackoff(tt.cur, tt.base, tt.limit); got != tt.want {
			t.Errorf("nextBackoff(%s, %s, %s) = %s, want %s", tt.cur, tt.base, tt.limit, got, tt.want)
		}
	}
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	want := map[string]bool{"agent": false, "poll": false, "ack [command_id]": false, "open": false, "close": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Use]; ok {
			want[c.Use] = true
		}
	}
	for use, found := range want {
		if !found {
			t.Errorf("expected %q subcommand to be registered", use)
		}
	}
}
