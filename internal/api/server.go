// Package api exposes the bridge's status and configuration over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/bbernstein/dmxbridge-go/internal/config"
	"github.com/bbernstein/dmxbridge-go/internal/database/models"
	"github.com/bbernstein/dmxbridge-go/internal/database/repositories"
	"github.com/bbernstein/dmxbridge-go/internal/services/frame"
	"github.com/bbernstein/dmxbridge-go/internal/services/network"
	"github.com/bbernstein/dmxbridge-go/internal/services/pubsub"
	"github.com/bbernstein/dmxbridge-go/internal/services/receiver"
	"github.com/bbernstein/dmxbridge-go/internal/services/scheduler"
	"github.com/bbernstein/dmxbridge-go/internal/services/uartdmx"
)

// Deps collects the services the API reads from and writes to. Receiver,
// Settings and UART may be nil when the corresponding piece is disabled.
type Deps struct {
	Buffer    *frame.Buffer
	Scheduler *scheduler.Scheduler
	Receiver  *receiver.Service
	Settings  *repositories.SettingRepository
	PubSub    *pubsub.PubSub
	UART      *uartdmx.Encoder
	Version   string
}

// Server is the HTTP status/config surface.
type Server struct {
	cfg      *config.Config
	deps     Deps
	router   chi.Router
	upgrader websocket.Upgrader
	start    time.Time
}

// NewServer builds the router.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:   cfg,
		deps:  deps,
		start: time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.CORSOrigin, "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		Debug:            cfg.IsDevelopment(),
	})
	router.Use(corsMiddleware.Handler)

	router.Get("/health", s.handleHealth)
	router.Get("/status", s.handleStatus)
	router.Get("/channels", s.handleChannels)
	router.Post("/config", s.handleUpdateConfig)
	router.Get("/ws", s.handleWebsocket)

	s.router = router
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   s.deps.Version,
		"uptime":    time.Since(s.start).Round(time.Second).String(),
	})
}

type statusResponse struct {
	Universe   int                       `json:"universe"`
	Sequence   byte                      `json:"sequence"`
	Length     int                       `json:"length"`
	Channels   int                       `json:"channels,omitempty"`
	DelayMS    int64                     `json:"delay_ms"`
	Rates      map[string]float64        `json:"frames_per_second"`
	Accepted   uint64                    `json:"packets_accepted"`
	Dropped    uint64                    `json:"packets_dropped"`
	Interfaces []network.InterfaceOption `json:"interfaces"`
	Uptime     string                    `json:"uptime"`
	Version    string                    `json:"version"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Buffer.Snapshot()

	resp := statusResponse{
		Universe: snap.Universe,
		Sequence: snap.Sequence,
		Length:   snap.Length,
		DelayMS:  s.deps.Scheduler.Delay().Milliseconds(),
		Rates:    s.deps.Scheduler.Rates(),
		Uptime:   time.Since(s.start).Round(time.Second).String(),
		Version:  s.deps.Version,
	}
	if s.deps.UART != nil {
		resp.Channels = s.deps.UART.Channels()
	}
	if s.deps.Receiver != nil {
		resp.Accepted = s.deps.Receiver.PacketsAccepted()
		resp.Dropped = s.deps.Receiver.PacketsDropped()
	}
	if options, err := network.ListInterfaceOptions(); err == nil {
		resp.Interfaces = options
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Buffer.Snapshot()

	values := make([]int, frame.UniverseSize)
	for i, v := range snap.Values {
		values[i] = int(v)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"length": snap.Length,
		"values": values,
	})
}

type configUpdate struct {
	Universe *int `json:"universe"`
	Channels *int `json:"channels"`
	DelayMS  *int `json:"delay_ms"`
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var update configUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	if update.Universe != nil && (*update.Universe < 0 || *update.Universe > 0x7fff) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "universe out of range"})
		return
	}
	if update.Channels != nil && (*update.Channels < 1 || *update.Channels > frame.UniverseSize) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "channels out of range"})
		return
	}
	if update.DelayMS != nil && (*update.DelayMS < 0 || *update.DelayMS > 10000) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "delay_ms out of range"})
		return
	}

	ctx := r.Context()
	if update.Universe != nil {
		s.deps.Buffer.SetUniverse(*update.Universe)
		s.persistInt(ctx, models.SettingUniverse, *update.Universe)
	}
	if update.Channels != nil {
		if s.deps.UART != nil {
			s.deps.UART.SetChannels(*update.Channels)
		}
		s.persistInt(ctx, models.SettingChannels, *update.Channels)
	}
	if update.DelayMS != nil {
		s.deps.Scheduler.SetDelay(time.Duration(*update.DelayMS) * time.Millisecond)
		s.persistInt(ctx, models.SettingDelayMS, *update.DelayMS)
	}

	if s.deps.PubSub != nil {
		s.deps.PubSub.Publish(pubsub.TopicConfigUpdated, update)
	}

	resp := map[string]interface{}{
		"universe": s.deps.Buffer.Universe(),
		"delay_ms": s.deps.Scheduler.Delay().Milliseconds(),
	}
	if s.deps.UART != nil {
		resp["channels"] = s.deps.UART.Channels()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) persistInt(ctx context.Context, key string, value int) {
	if s.deps.Settings == nil {
		return
	}
	if _, err := s.deps.Settings.UpsertInt(ctx, key, value); err != nil {
		log.Printf("⚠️ failed to persist %s: %v", key, err)
	}
}

// handleWebsocket streams frame and config events to the client.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if s.deps.PubSub == nil {
		http.Error(w, "live feed disabled", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	frames := s.deps.PubSub.Subscribe(pubsub.TopicFrameReceived, 16)
	defer s.deps.PubSub.Unsubscribe(frames)

	// Drain client messages so close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-frames.Channel:
			if !ok {
				return
			}
			if err := conn.WriteJSON(map[string]interface{}{
				"topic":   string(pubsub.TopicFrameReceived),
				"payload": msg,
			}); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("⚠️ response encode error: %v", err)
	}
}
