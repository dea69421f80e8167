// Package api is the HTTP and websocket surface consumed by the market page:
// read snapshots of the book, tape and depth, and limit order entry.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"bricktok/internal/common"
	"bricktok/internal/engine"
	"bricktok/internal/metrics"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

const (
	readTimeout     = 5 * time.Second
	writeTimeout    = 10 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 5 * time.Second
	maxLevels       = 200
)

type Options struct {
	LadderRows     int
	DepthLevels    int
	AllowedOrigins []string
	Registry       *prometheus.Registry
}

// Server handles REST and websocket connections for one engine.
type Server struct {
	engine *engine.Engine
	hub    *Hub
	router *mux.Router
	opts   Options
	ready  atomic.Bool
}

func NewServer(eng *engine.Engine, hub *Hub, opts Options) *Server {
	s := &Server{
		engine: eng,
		hub:    hub,
		router: mux.NewRouter(),
		opts:   opts,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/asset", s.handleGetAsset).Methods(http.MethodGet)
	api.HandleFunc("/book", s.handleGetBook).Methods(http.MethodGet)
	api.HandleFunc("/trades", s.handleGetTrades).Methods(http.MethodGet)
	api.HandleFunc("/depth", s.handleGetDepth).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handleGetStatus).Methods(http.MethodGet)
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods(http.MethodPost)

	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)
	if s.opts.Registry != nil {
		s.router.Handle("/metrics", metrics.Handler(s.opts.Registry))
	}
}

// Handler returns the router wrapped in the CORS policy.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

// SetReady flips the readiness probe.
func (s *Server) SetReady(v bool) { s.ready.Store(v) }

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("address", addr).Msg("api server starting")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("api server stopped")
	return nil
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Asset())
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	rows, err := levelsParam(r, s.opts.LadderRows)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid levels", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, newBookView(s.engine.Snapshot(), rows))
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, newTradeViews(s.engine.Trades()))
}

func (s *Server) handleGetDepth(w http.ResponseWriter, r *http.Request) {
	levels, err := levelsParam(r, s.opts.DepthLevels)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid levels", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.engine.Depth(levels))
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	snapshot := s.engine.Snapshot()
	respondJSON(w, http.StatusOK, StatusResponse{
		Symbol:    s.engine.Asset().Symbol,
		WSClients: s.hub.Clients(),
		WSDrops:   s.hub.Drops(),
		AskLevels: len(snapshot.Asks),
		BidLevels: len(snapshot.Bids),
		TapeSize:  len(snapshot.Trades),
		Time:      snapshot.Timestamp,
	})
}

// handleSubmitOrder pre-checks the order so the caller learns why it would
// be dropped; the engine itself drops invalid orders silently.
func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var body SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	side, err := common.ParseSide(body.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid side", err.Error())
		return
	}

	req := common.OrderRequest{Side: side, Price: body.Price, Quantity: body.Quantity}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid order", err.Error())
		return
	}
	order, ok := s.engine.Submit(req)
	if !ok {
		respondError(w, http.StatusUnprocessableEntity, "invalid order", common.ErrInvalidOrder.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, order)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	initial, err := json.Marshal(Envelope{
		Type: "book",
		Book: ptr(newBookView(s.engine.Snapshot(), s.opts.LadderRows)),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "snapshot failed", err.Error())
		return
	}
	s.hub.ServeWS(w, r, initial)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	http.Error(w, "not ready", http.StatusServiceUnavailable)
}

var errLevelsRange = errors.New("levels must be between 1 and 200")

// levelsParam reads ?levels=N, falling back to def when absent.
func levelsParam(r *http.Request, def int) (int, error) {
	v := r.URL.Query().Get("levels")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 1 || n > maxLevels {
		return 0, errLevelsRange
	}
	return n, nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func respondError(w http.ResponseWriter, status int, err string, message string) {
	respondJSON(w, status, ErrorResponse{Error: err, Message: message})
}
