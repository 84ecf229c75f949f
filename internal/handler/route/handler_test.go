package route

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/emergency-hub/backend/internal/analysis/category"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/facility"
	"github.com/zhouzirui/emergency-hub/backend/internal/service/routing"
)

func setupRouter(t *testing.T) *chi.Mux {
	t.Helper()
	svc, err := routing.NewService(context.Background(), nil, routing.Config{}, category.NewRouter(nil))
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}
	r := chi.NewRouter()
	New(svc).RegisterRoutes(r)
	return r
}

func TestClassifyEndpoint(t *testing.T) {
	r := setupRouter(t)

	cases := []struct {
		message string
		want    []facility.Category
	}{
		{"I need an ambulance", []facility.Category{facility.Medical}},
		{"fire with injuries", []facility.Category{facility.Medical, facility.Fire}},
		{"hello", []facility.Category{facility.General}},
	}
	for _, tc := range cases {
		payload, _ := json.Marshal(map[string]string{"message": tc.message})
		req := httptest.NewRequest(http.MethodPost, "/route", bytes.NewReader(payload))
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)

		if resp.Code != http.StatusOK {
			t.Fatalf("%q: expected 200, got %d", tc.message, resp.Code)
		}
		var result category.Result
		if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
			t.Fatalf("decode err: %v", err)
		}
		if len(result.Categories) != len(tc.want) {
			t.Fatalf("%q: expected %v, got %v", tc.message, tc.want, result.Categories)
		}
		for i := range tc.want {
			if result.Categories[i] != tc.want[i] {
				t.Fatalf("%q: expected %v, got %v", tc.message, tc.want, result.Categories)
			}
		}
	}
}

func TestClassifyRequiresMessage(t *testing.T) {
	r := setupRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/route", bytes.NewReader([]byte(`{"message":""}`)))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestTermsEndpoint(t *testing.T) {
	r := setupRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/route/terms", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !bytes.Contains(resp.Body.Bytes(), []byte("ambulance")) {
		t.Fatalf("expected default terms in body: %s", resp.Body.String())
	}
}
