package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"nepse-observer/src/interfaces"
	"nepse-observer/src/logger"
	"nepse-observer/src/models"
	"nepse-observer/src/utils"

	"github.com/gin-gonic/gin"
)

// JobController is the scheduler surface the API exposes.
type JobController interface {
	Statuses() []models.MJobStatus
	Status(name string) (models.MJobStatus, error)
	Trigger(name string) (string, error)
}

// -----------------------------------------------------------------------------
// APIServer
// -----------------------------------------------------------------------------

// APIServer serves live reads, job control and the websocket push hub.
type APIServer struct {
	Config *models.MConfig
	Logger *logger.Logger
	Reader interfaces.IMarketReader
	Jobs   JobController
	Clock  utils.Clock

	engine  *gin.Engine
	httpSrv *http.Server

	// WebSocket clients, owned by the hub goroutine
	clients     map[*Client]struct{}
	broadcast   chan *models.MLatestData
	register    chan *Client
	unregister  chan *Client
	subscribe   chan subscription
	quit        chan struct{}
	connections atomic.Int64
	hubOnce     sync.Once
	stopOnce    sync.Once

	// Local cache for new clients
	recent     *utils.RingBuffer[models.MIndexSnapshot]
	latest     models.MLatestData
	prices     map[string]models.MPriceQuote
	stateMutex sync.RWMutex
}

var _ interfaces.IDataExchanger = (*APIServer)(nil)

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewAPIServer(cfg *models.MConfig, reader interfaces.IMarketReader, jobs JobController, log *logger.Logger) *APIServer {
	if !strings.EqualFold(cfg.LogLevel, "DEBUG") {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &APIServer{
		Config:     cfg,
		Logger:     log,
		Reader:     reader,
		Jobs:       jobs,
		Clock:      utils.SystemClock{},
		engine:     gin.New(),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan *models.MLatestData, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		subscribe:  make(chan subscription),
		quit:       make(chan struct{}),
		recent:     utils.NewRingBuffer[models.MIndexSnapshot](utils.DefaultRecentSnapshots),
		prices:     make(map[string]models.MPriceQuote),
	}

	s.engine.Use(gin.Recovery(), s.requestLogger())

	// CORS for local dashboards
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	s.setupRoutes()
	return s
}

func (s *APIServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		s.Logger.Debug("%s %s %d %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(started).Round(time.Microsecond))
	}
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *APIServer) setupRoutes() {
	api := s.engine.Group("/api")
	api.GET("/health", s.getHealth)

	api.GET("/jobs", s.listJobs)
	api.GET("/jobs/:name", s.getJob)
	api.POST("/jobs/:name/run", s.runJob)

	market := api.Group("/market")
	market.GET("/index", s.getIndex)
	market.GET("/status", s.getStatus)
	market.GET("/prices", s.getPrices)
	market.GET("/prices/:symbol", s.getPrice)
	market.GET("/intraday", s.getIntraday)
	market.GET("/history/:symbol", s.getHistory)

	api.GET("/securities/:symbol", s.getSecurity)

	s.engine.GET("/ws", s.handleWebSocket)
}

// Handler exposes the routes, for embedding and tests.
func (s *APIServer) Handler() http.Handler { return s.engine }

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// Start runs the hub and blocks serving HTTP until Stop.
func (s *APIServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	s.startHub()

	s.stateMutex.Lock()
	select {
	case <-s.quit:
		s.stateMutex.Unlock()
		return nil
	default:
	}
	s.httpSrv = &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	srv := s.httpSrv
	s.stateMutex.Unlock()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *APIServer) startHub() {
	s.hubOnce.Do(func() { go s.handleWebsockets() })
}

// -----------------------------------------------------------------------------

// Stop shuts the HTTP server down and disconnects websocket clients.
func (s *APIServer) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.quit)

		s.stateMutex.RLock()
		srv := s.httpSrv
		s.stateMutex.RUnlock()
		if srv == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = srv.Shutdown(ctx)
	})
	return err
}
