package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/isqad/livelook-uplink/internal/config"
)

// Settings changes the running policy. Changes apply on the loop goroutine.
type Settings interface {
	SetIdealMaxBandwidthKbps(ctx context.Context, kbps int) error
	SetHasBandwidthPriority(ctx context.Context, priority bool) error
}

// AppOptions is options of the application
type AppOptions struct {
	Env      config.Environment
	Address  string
	Feed     *Feed
	Settings Settings
}

// settingsRequest is a partial update, absent fields stay as they are.
type settingsRequest struct {
	IdealMaxBandwidthKbps *int  `json:"ideal_max_bandwidth_kbps"`
	BandwidthPriority     *bool `json:"bandwidth_priority"`
}

// App serves the uplink state of a single attendee
type App struct {
	AppOptions
}

func New(options AppOptions) *App {
	if options.Feed == nil {
		options.Feed = NewFeed()
	}

	return &App{options}
}

// Start serves until ctx is done, then waits for open connections to finish.
func (app *App) Start(ctx context.Context) error {
	done := make(chan struct{})

	server := &http.Server{
		Addr:              app.Address,
		Handler:           app.Router(),
		ReadHeaderTimeout: 1 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	server.RegisterOnShutdown(func() {
		if err := app.Feed.Close(); err != nil {
			log.Error().Err(err).Str("service", "api").Msg("can't close observers")
		}
		close(done)
	})

	go func() {
		<-ctx.Done()
		log.Warn().Str("service", "api").Msg("the server is going shutting down")

		// Wait 20 seconds for close http connections
		waitIdleConnCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		server.SetKeepAlivesEnabled(false)
		if err := server.Shutdown(waitIdleConnCtx); err != nil {
			log.Error().Err(err).Str("service", "api").Msg("can't gracefully shutdown the server")
		}
	}()

	log.Info().Str("service", "api").Str("address", app.Address).Msg("listening")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-done
	log.Info().Str("service", "api").Msg("server stopped")

	return nil
}

// Router is function for construct http router
func (app *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/uplink", LatestDecisionHandler(app.Feed))
	r.Get("/uplink/ws", ObserveHandler(app.Feed))
	if app.Settings != nil {
		r.Patch("/uplink", SettingsHandler(app.Settings))
	}

	return r
}

func LatestDecisionHandler(feed *Feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := feed.Latest()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(d); err != nil {
			log.Error().Err(err).Str("service", "api").Msg("can't encode decision")
		}
	}
}

// SettingsHandler accepts a settings change; the resulting decision, if any,
// shows up on the feed.
func SettingsHandler(settings Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := settingsRequest{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.IdealMaxBandwidthKbps == nil && req.BandwidthPriority == nil {
			http.Error(w, "nothing to change", http.StatusBadRequest)
			return
		}
		if req.IdealMaxBandwidthKbps != nil && *req.IdealMaxBandwidthKbps <= 0 {
			http.Error(w, "ideal_max_bandwidth_kbps must be positive", http.StatusBadRequest)
			return
		}

		if req.IdealMaxBandwidthKbps != nil {
			if err := settings.SetIdealMaxBandwidthKbps(r.Context(), *req.IdealMaxBandwidthKbps); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		if req.BandwidthPriority != nil {
			if err := settings.SetHasBandwidthPriority(r.Context(), *req.BandwidthPriority); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}

		log.Info().Str("service", "api").Interface("settings", req).Msg("settings changed")
		w.WriteHeader(http.StatusAccepted)
	}
}

func ObserveHandler(feed *Feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := feed.websocket.HandleRequest(w, r); err != nil {
			log.Error().Err(err).Str("service", "api").Msg("can't handle request")
		}
	}
}

// InitLogger sets up the global zerolog logger for env.
func InitLogger(env config.Environment) {
	cw := zerolog.NewConsoleWriter()
	log.Logger = log.Output(cw)

	level := zerolog.InfoLevel

	if env.IsDevelopment() {
		level = zerolog.DebugLevel
	}

	zerolog.SetGlobalLevel(level)
}
