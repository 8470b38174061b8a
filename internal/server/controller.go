// Package server exposes the current analysis and stored runs over REST.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chrissnell/phenology/internal/log"
	"github.com/chrissnell/phenology/internal/phenology"
	"github.com/chrissnell/phenology/internal/storage"
	"github.com/chrissnell/phenology/pkg/config"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Controller represents the REST server controller
type Controller struct {
	ctx    context.Context
	wg     *sync.WaitGroup
	Server http.Server
	logger *zap.SugaredLogger

	store  storage.Store
	health *storage.HealthManager

	mu       sync.RWMutex
	analysis *phenology.Analysis

	handlers *Handlers
}

// NewController creates a REST controller. store and health may be nil, which disables
// the run history and storage health endpoints.
func NewController(ctx context.Context, wg *sync.WaitGroup, sc config.ServerData, store storage.Store,
	health *storage.HealthManager, logger *zap.SugaredLogger) *Controller {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	ctrl := &Controller{
		ctx:    ctx,
		wg:     wg,
		logger: logger,
		store:  store,
		health: health,
	}

	// If a listen address was not provided, listen on all interfaces
	if sc.ListenAddr == "" {
		logger.Info("server.listen-addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		sc.ListenAddr = "0.0.0.0"
	}
	if sc.Port == 0 {
		logger.Info("server.port not provided; defaulting to 8080")
		sc.Port = 8080
	}

	ctrl.handlers = NewHandlers(ctrl)
	ctrl.Server.Addr = fmt.Sprintf("%v:%v", sc.ListenAddr, sc.Port)
	ctrl.Server.Handler = ctrl.setupRouter()
	ctrl.Server.ReadHeaderTimeout = 10 * time.Second

	return ctrl
}

// SetAnalysis publishes the analysis served by the read endpoints
func (c *Controller) SetAnalysis(a *phenology.Analysis) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.analysis = a
}

// Analysis returns the published analysis, or nil before the first one
func (c *Controller) Analysis() *phenology.Analysis {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.analysis
}

// Handler returns the routed HTTP handler
func (c *Controller) Handler() http.Handler {
	return c.Server.Handler
}

// StartController serves until the controller context is cancelled
func (c *Controller) StartController() error {
	c.logger.Infof("starting REST server on %s", c.Server.Addr)
	c.wg.Add(2)

	go func() {
		defer c.wg.Done()
		if err := c.Server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("REST server error: %v", err)
		}
	}()

	go func() {
		defer c.wg.Done()
		<-c.ctx.Done()
		c.logger.Info("shutting down the REST server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(log.HTTPMiddleware)

	router.HandleFunc("/series", c.handlers.GetSeries).Methods(http.MethodGet)
	router.HandleFunc("/stages", c.handlers.GetStages).Methods(http.MethodGet)
	router.HandleFunc("/parameters", c.handlers.GetParameters).Methods(http.MethodGet)
	router.HandleFunc("/observations", c.handlers.GetObservations).Methods(http.MethodGet)
	router.HandleFunc("/peak", c.handlers.GetPeak).Methods(http.MethodGet)
	router.HandleFunc("/chart.png", c.handlers.GetChartPNG).Methods(http.MethodGet)
	router.HandleFunc("/chart.html", c.handlers.GetChartHTML).Methods(http.MethodGet)
	router.HandleFunc("/health", c.handlers.GetHealth).Methods(http.MethodGet)

	if c.store != nil {
		router.HandleFunc("/fields/{field}/runs", c.handlers.ListRuns).Methods(http.MethodGet)
		router.HandleFunc("/runs/{id}", c.handlers.GetRun).Methods(http.MethodGet)
	}

	return router
}
