package server

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/realtyvoice/voice-gateway/pkg/gateway/config"
	"github.com/realtyvoice/voice-gateway/pkg/gateway/handlers"
	"github.com/realtyvoice/voice-gateway/pkg/gateway/metrics"
	"github.com/realtyvoice/voice-gateway/pkg/gateway/mw"
	"github.com/realtyvoice/voice-gateway/pkg/gateway/tools"
	"github.com/realtyvoice/voice-gateway/pkg/realty"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	tools *tools.Registry
}

func New(cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	var lookup tools.PropertyLookup
	if cfg.LookupEnabled() {
		httpClient := &http.Client{
			Timeout: cfg.LookupTimeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		}
		lookup = realty.NewClient(cfg.RapidAPIKey, cfg.RapidAPIHost, httpClient, logger)
	} else {
		logger.Warn("property lookup disabled, VOICE_GATEWAY_RAPIDAPI_KEY not set")
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
		tools:  tools.NewRegistry(logger, tools.RealtyExecutors(lookup)...),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/", handlers.InfoHandler{Config: s.cfg})
	s.mux.Handle("/health", handlers.HealthHandler{})
	s.mux.Handle("/metrics", metrics.Handler())

	s.mux.Handle("/ws/voice", handlers.VoiceHandler{
		Config: s.cfg,
		Tools:  s.tools,
		Logger: s.logger,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
