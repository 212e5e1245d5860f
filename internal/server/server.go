package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/rs/zerolog"

	"rmashqip/internal/config"
	"rmashqip/internal/middleware"
	"rmashqip/internal/router"
)

type HTTPServer struct {
	engine *gin.Engine
	server *http.Server
	log    zerolog.Logger
	cfg    *config.AppConfig
}

// NewEngine 组装中间件和路由；html 为 nil 时不挂载页面模板
func NewEngine(cfg *config.AppConfig, log zerolog.Logger, html render.HTMLRender, deps router.Deps) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.RedirectTrailingSlash = true
	engine.MaxMultipartMemory = cfg.Cache.MaxMediaBytes + 1<<20

	store := cookie.NewStore([]byte(cfg.Session.Secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.Session.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Environment == "production",
		SameSite: http.SameSiteLaxMode,
	})

	engine.Use(
		middleware.RequestID(log),
		middleware.Logger(log),
		middleware.Recovery(log),
		middleware.CORS(cfg.AllowCORSOrigins),
		gzip.Gzip(gzip.DefaultCompression),
		sessions.Sessions(cfg.Session.CookieName, store),
	)

	if html != nil {
		engine.HTMLRender = html
	}

	router.RegisterRoutes(engine, deps)
	return engine
}

func NewHTTPServer(cfg *config.AppConfig, log zerolog.Logger, engine *gin.Engine) *HTTPServer {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &HTTPServer{
		engine: engine,
		server: srv,
		log:    log,
		cfg:    cfg,
	}
}

func (s *HTTPServer) Start() error {
	s.log.Info().
		Str("addr", s.server.Addr).
		Msg("http server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.server.Shutdown(ctx)
}
