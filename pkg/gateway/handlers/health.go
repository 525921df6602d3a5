package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/realtyvoice/voice-gateway/pkg/gateway/config"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// InfoHandler answers the service root with a short description of the
// gateway and its endpoints.
type InfoHandler struct {
	Config  config.Config
	Version string
}

func (h InfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	type infoResp struct {
		Service       string            `json:"service"`
		Version       string            `json:"version"`
		Model         string            `json:"model"`
		LookupEnabled bool              `json:"lookup_enabled"`
		Endpoints     map[string]string `json:"endpoints"`
	}

	version := h.Version
	if version == "" {
		version = "dev"
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(infoResp{
		Service:       "voice-gateway",
		Version:       version,
		Model:         h.Config.OpenAIModel,
		LookupEnabled: h.Config.LookupEnabled(),
		Endpoints: map[string]string{
			"voice":   "/ws/voice",
			"health":  "/health",
			"metrics": "/metrics",
		},
	})
}
