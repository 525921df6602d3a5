package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/realtyvoice/voice-gateway/pkg/gateway/config"
	"github.com/realtyvoice/voice-gateway/pkg/gateway/live/session"
	"github.com/realtyvoice/voice-gateway/pkg/gateway/tools"
	"github.com/realtyvoice/voice-gateway/pkg/realtime"
)

// UpstreamFactory builds the realtime client for one session. Tests swap in
// a fake upstream here.
type UpstreamFactory func(cfg realtime.Config) session.Upstream

// VoiceHandler handles /ws/voice websocket sessions.
type VoiceHandler struct {
	Config config.Config
	Tools  *tools.Registry
	Logger *slog.Logger

	NewUpstream UpstreamFactory
}

func (h VoiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return h.Config.OriginAllowed(strings.TrimSpace(r.Header.Get("Origin")))
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake failure response.
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if h.Config.MaxClientFrameBytes > 0 {
		conn.SetReadLimit(h.Config.MaxClientFrameBytes)
	}

	sessionID := "s_" + uuid.NewString()
	logger.Info("voice session starting", "session_id", sessionID, "remote_addr", r.RemoteAddr)

	upstream := h.upstreamFor()
	bridge, err := session.New(session.Dependencies{
		Conn:        conn,
		Upstream:    upstream,
		Tools:       h.Tools,
		Logger:      logger,
		SessionID:   sessionID,
		MaxDuration: h.Config.MaxSessionDuration,
	})
	if err != nil {
		logger.Error("session setup failed", "session_id", sessionID, "error", err)
		return
	}

	// Run owns the session from here; its error has already been logged
	// with session context.
	_ = bridge.Run(r.Context())

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		closeDeadline())
}

func (h VoiceHandler) upstreamFor() session.Upstream {
	cfg := realtime.Config{
		BaseURL:          h.Config.OpenAIBaseURL,
		APIKey:           h.Config.OpenAIAPIKey,
		Model:            h.Config.OpenAIModel,
		Voice:            h.Config.OpenAIVoice,
		Instructions:     h.Config.Instructions,
		Tools:            h.Tools.Declarations(),
		HandshakeTimeout: h.Config.HandshakeTimeout,
	}
	if h.NewUpstream != nil {
		return h.NewUpstream(cfg)
	}
	return realtime.NewClient(cfg, h.Logger)
}

func closeDeadline() time.Time {
	return time.Now().Add(2 * time.Second)
}
