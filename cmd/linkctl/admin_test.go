package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danmuck/crosslink/internal/bridge"
	"github.com/danmuck/crosslink/internal/config"
	"github.com/danmuck/crosslink/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func TestAdminRoutesReportTopology(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	topo := topology{
		AppURL:  "https://a.example/app",
		Bridges: []string{"https://b.example/bridge", "https://a.example/self"},
		Popups:  []popup{{Name: "popup", URL: "https://b.example/popup"}},
	}
	n, sys, err := boot(ctx, config.Default(), topo)
	if err != nil {
		t.Fatalf("boot: %v", err)
	}
	defer sys.Close()
	if err := provisionBridges(ctx, sys, topo.Bridges); err == nil {
		t.Fatalf("expected self bridge to fail")
	}

	r := newAdminRouter(n, sys)

	var health map[string]any
	get(t, r, "/health", &health)
	if health["status"] != "ok" || health["domain"] != "https://a.example" {
		t.Fatalf("unexpected health: %v", health)
	}

	var contexts struct {
		Contexts []contextView `json:"contexts"`
	}
	get(t, r, "/contexts", &contexts)
	if len(contexts.Contexts) != 1 || contexts.Contexts[0].Name != "popup" || contexts.Contexts[0].Domain != "https://b.example" {
		t.Fatalf("unexpected contexts: %+v", contexts)
	}

	var bridges struct {
		Bridges []bridge.Status `json:"bridges"`
	}
	get(t, r, "/bridges", &bridges)
	if len(bridges.Bridges) != 2 {
		t.Fatalf("expected two bridges, got %+v", bridges)
	}
	states := map[string]bridge.State{}
	for _, st := range bridges.Bridges {
		states[st.Domain] = st.State
	}
	if states["https://b.example"] != bridge.StateReady || states["https://a.example"] != bridge.StateFailed {
		t.Fatalf("unexpected bridge states: %v", states)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected metrics status=%d", w.Code)
	}
}

func get(t *testing.T, r http.Handler, path string, out any) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET %s status=%d body=%s", path, w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
}
