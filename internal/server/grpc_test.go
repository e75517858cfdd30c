package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"

	"booking-intake/backend/internal/health"
)

// mockServiceRegistrar implements grpc.ServiceRegistrar for testing.
type mockServiceRegistrar struct {
	callCount int
	services  []string
}

func (m *mockServiceRegistrar) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	m.callCount++
	m.services = append(m.services, desc.ServiceName)
}

func TestRegisterServices_HealthRegistered(t *testing.T) {
	mockReg := &mockServiceRegistrar{}
	RegisterServices(mockReg, Deps{Health: health.NewChecker(nil)})

	if mockReg.callCount != 1 {
		t.Errorf("RegisterService called %d times, want 1", mockReg.callCount)
	}
	if len(mockReg.services) != 1 || mockReg.services[0] != "grpc.health.v1.Health" {
		t.Errorf("services = %v", mockReg.services)
	}
}

func TestNewGRPCServer_ServiceInfo(t *testing.T) {
	s := NewGRPCServer(Deps{Health: health.NewChecker(nil)})
	defer s.Stop()
	info := s.GetServiceInfo()
	for _, name := range []string{"grpc.health.v1.Health", "grpc.reflection.v1.ServerReflection"} {
		if _, ok := info[name]; !ok {
			t.Errorf("service %q not registered; have %v", name, info)
		}
	}
}

func TestNewRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "t"}))
	api := chi.NewRouter()
	api.Get("/catalog", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("catalog:" + r.URL.Path))
	})
	h := NewRouter(RouterDeps{
		API:      api,
		Health:   health.NewChecker(nil),
		Gatherer: reg,
	})

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{"/healthz", http.StatusOK, `"status":"ok"`},
		{"/metrics", http.StatusOK, "test_total"},
		{"/v1/catalog", http.StatusOK, "catalog:/v1/catalog"},
		{"/v1/unknown", http.StatusNotFound, ""},
		{"/dev/otp", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil).WithContext(context.Background()))
		if rec.Code != tt.wantCode {
			t.Errorf("%s: code = %d, want %d", tt.path, rec.Code, tt.wantCode)
		}
		if !strings.Contains(rec.Body.String(), tt.wantBody) {
			t.Errorf("%s: body = %q, want %q", tt.path, rec.Body.String(), tt.wantBody)
		}
	}
}

func TestNewRouter_CORSPreflight(t *testing.T) {
	h := NewRouter(RouterDeps{API: http.NotFoundHandler(), AllowedOrigins: []string{"https://clinic.example"}})
	req := httptest.NewRequest(http.MethodOptions, "/v1/forms", nil)
	req.Header.Set("Origin", "https://clinic.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://clinic.example" {
		t.Errorf("Allow-Origin = %q", got)
	}
}
