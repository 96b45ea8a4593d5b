package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/skeld-project/skeld/internal/config"
	"github.com/skeld-project/skeld/internal/db"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/network"
	"github.com/skeld-project/skeld/internal/server"
	"github.com/skeld-project/skeld/internal/util"
)

// Server is the REST and websocket front of the room server.
type Server struct {
	cfg      *config.Config
	eventBus *events.EventBus
	manager  *server.Manager
	hub      *network.Hub
	store    *db.MatchStore

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server. hub and store may be nil, which
// disables the websocket routes and match history respectively.
func NewServer(cfg *config.Config, eventBus *events.EventBus, manager *server.Manager, hub *network.Hub, store *db.MatchStore) *Server {
	if cfg.GetApplicationData().Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      cfg,
		eventBus: eventBus,
		manager:  manager,
		hub:      hub,
		store:    store,
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on the configured port and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	app := s.cfg.GetApplicationData()
	addr := fmt.Sprintf(":%d", app.API.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	var tlsConfig *tls.Config
	if app.Security.TLSEnabled {
		cfg, err := loadTLS(app.Security)
		if err != nil {
			return err
		}
		tlsConfig = cfg
	}

	lc := network.ListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}

	log.Info().Str("addr", addr).Bool("tls", tlsConfig != nil).Msg("API server starting")

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

// loadTLS loads the configured certificate, generating a self-signed pair
// when the files do not exist yet.
func loadTLS(sec config.SecurityConfig) (*tls.Config, error) {
	certFile, keyFile := sec.TLSCertFile, sec.TLSKeyFile
	if certFile == "" || keyFile == "" {
		return nil, fmt.Errorf("tls enabled but certificate paths are empty")
	}
	if !util.FileExists(certFile) || !util.FileExists(keyFile) {
		if err := util.GenerateSelfSignedCert(certFile, keyFile); err != nil {
			return nil, err
		}
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}, nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	app := s.cfg.GetApplicationData()
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := app.Security.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // must be false when AllowOrigins is "*"
		MaxAge:           12 * time.Hour,
	}))

	router.Use(NewRateLimiter(app.Security.RateLimitRPS).Middleware())

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/info", s.handleGetServerInfo)
		public.GET("/rooms", s.handleListPublicRooms)
	}

	if s.hub != nil {
		router.GET("/ws/play/:code", s.handlePlay)
		if app.Spectator.Enabled {
			router.GET(strings.TrimSuffix(app.Spectator.Path, "/")+"/:code", s.handleSpectate)
		}
	}

	protected := router.Group("/api")
	protected.Use(RequireToken(app.Security.APIToken))

	rooms := protected.Group("/rooms")
	{
		rooms.GET("", s.handleListRooms)
		rooms.POST("", s.handleCreateRoom)
		rooms.GET("/:code", s.handleGetRoom)
		rooms.DELETE("/:code", s.handleDestroyRoom)
		rooms.GET("/:code/players", s.handleGetPlayers)
		rooms.POST("/:code/start", s.handleStartGame)
		rooms.POST("/:code/end", s.handleEndGame)
		rooms.POST("/:code/privacy", s.handleSetPrivacy)
		rooms.PATCH("/:code/settings", s.handlePatchSettings)
		rooms.POST("/:code/preset", s.handleApplyPreset)
		rooms.POST("/:code/kick", s.handleKickPlayer)
		rooms.GET("/:code/replay", s.handleGetReplay)
	}

	protected.GET("/presets", s.handleGetPresets)
	protected.GET("/matches", s.handleListMatches)
	protected.GET("/matches/:id", s.handleGetMatch)
	protected.GET("/stats", s.handleGetStats)
	protected.GET("/alerts", s.handleGetAlerts)
	protected.POST("/alerts/:id/ack", s.handleAckAlert)

	monitor := protected.Group("/monitor")
	{
		monitor.GET("/lag", s.handleGetLag)
		monitor.GET("/system", s.handleGetSystem)
		monitor.GET("/logs", s.handleGetLogEntries)
	}

	configure := protected.Group("/config")
	{
		configure.GET("", s.handleGetConfig)
		configure.PUT("/room/:key", s.handleSetField(s.roomSection()))
		configure.PUT("/app/:key", s.handleSetField(s.appSection()))
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
