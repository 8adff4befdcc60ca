package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"zlot-parking/internal/auth"
	"zlot-parking/internal/metrics"
	"zlot-parking/internal/models"
	"zlot-parking/internal/owner"
	"zlot-parking/internal/parking"
	"zlot-parking/internal/store/memory"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/guregu/null.v4"
)

const testSecret = "test-secret"

type nopScheduler struct{}

func (nopScheduler) ScheduleSessionClose(context.Context, string, time.Time) error  { return nil }
func (nopScheduler) ScheduleGateClose(context.Context, string, time.Duration) error { return nil }

type fakeMailer struct {
	sent []owner.Email
}

func (f *fakeMailer) Send(_ context.Context, email owner.Email) (string, error) {
	f.sent = append(f.sent, email)
	return "email-1", nil
}

type testEnv struct {
	st     *memory.Store
	device models.Device
	slot   models.ParkingSlot
	mailer *fakeMailer
	reg    *prometheus.Registry
	srv    http.Handler
}

func newTestEnv(t *testing.T, opts RouterOptions) *testEnv {
	t.Helper()

	st := memory.New()
	device := st.AddDevice(models.Device{DeviceID: "GATE_001"})
	slot := st.AddSlot(models.ParkingSlot{
		DeviceID:  "GATE_001",
		DeviceRef: null.StringFrom(device.ID),
		SlotName:  "A1",
		Price:     40,
		IsActive:  true,
	})

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := parking.NewService(st, parking.Options{
		Scheduler: nopScheduler{},
		Metrics:   m,
		Logger:    log,
	})
	mailer := &fakeMailer{}
	h := NewHandler(svc, auth.NewGate(auth.NewVerifier(testSecret), st), owner.NewService(nil, mailer, "team@example.com", log), m, log)

	if opts.Gatherer == nil {
		opts.Gatherer = reg
	}
	return &testEnv{
		st:     st,
		device: device,
		slot:   slot,
		mailer: mailer,
		reg:    reg,
		srv:    NewRouter(h, opts),
	}
}

func signToken(t *testing.T, sub string, extra jwt.MapClaims) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   sub,
		"email": sub + "@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func adminToken(t *testing.T) string {
	return signToken(t, "admin-1", jwt.MapClaims{"app_metadata": map[string]any{"role": "admin"}})
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, msg string) {
	t.Helper()
	expectStatus(t, rec, status)
	if got := decode[models.ErrorResponse](t, rec).Error; got != msg {
		t.Errorf("error = %q, want %q", got, msg)
	}
}
