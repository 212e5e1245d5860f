package main

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/multitemplate"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"rmashqip/internal/auth"
	"rmashqip/internal/client"
	"rmashqip/internal/config"
	"rmashqip/internal/db"
	"rmashqip/internal/handlers"
	"rmashqip/internal/jobs"
	"rmashqip/internal/log"
	"rmashqip/internal/middleware"
	"rmashqip/internal/remote"
	"rmashqip/internal/router"
	"rmashqip/internal/server"
	"rmashqip/internal/services"
	"rmashqip/internal/session"
	"rmashqip/internal/storage"
	"rmashqip/internal/utils"
)

func main() {
	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.LogLevel)
	if envErr != nil {
		logger.Debug().Msg("no .env file found, using environment variables")
	}

	ctx := context.Background()

	// 数据库未配置或连接失败时降级运行：只有本地缓存，没有登录
	gdb, err := db.Init(cfg, logger)
	switch {
	case errors.Is(err, db.ErrNotConfigured):
		logger.Warn().Msg("RMA_BACKEND_URL / RMA_BACKEND_KEY not set, running without backend")
	case err != nil:
		logger.Error().Err(err).Msg("database init failed, running without backend")
		gdb = nil
	}

	pool, redisClient := openStoragePool(ctx, cfg, logger)

	mail := services.NewMailService(cfg.Mail, cfg.TemplatesDir, logger.With().Str("component", "mail").Logger())

	var (
		provider   *auth.Provider
		remoteData *remote.Client
		counters   *services.CounterService
	)
	if gdb != nil {
		provider = auth.NewProvider(gdb, auth.Options{
			Secret:     cfg.Backend.Key,
			AccessTTL:  cfg.Session.AccessTTL,
			RefreshTTL: cfg.Session.RefreshTTL,
		}, logger.With().Str("component", "auth").Logger()).
			WithMailer(mail)
		provider.ConfigureOAuth(cfg.OAuth)

		counters = services.NewCounterService(gdb, logger.With().Str("component", "counters").Logger())
		counters.Start()

		remoteData = remote.NewClient(gdb, logger.With().Str("component", "remote").Logger()).
			WithRecounter(counters)

		if cfg.StorageConfigured() {
			objectStore, err := storage.NewObjectStore(cfg.Storage)
			if err != nil {
				logger.Error().Err(err).Msg("failed to init object store, media stays inline")
			} else {
				if err := objectStore.EnsureBuckets(ctx); err != nil {
					logger.Warn().Err(err).Msg("ensure buckets failed")
				}
				remoteData.WithUploader(objectStore)
			}
		}
	}

	// nil 指针不能直接放进接口，否则会被当成已配置
	regOpts := client.Options{
		Storage:     pool,
		LoadTimeout: cfg.Session.LoadTimeout,
		MaxClients:  cfg.Cache.MaxClients,
		Log:         logger.With().Str("component", "session").Logger(),
	}
	deps := router.Deps{
		Remote:          remoteData,
		ContentCache:    utils.NewTTLCache[any](64),
		MaxMediaBytes:   cfg.Cache.MaxMediaBytes,
		SignInPerMinute: cfg.RateLimit.SignInPerMinute,
		SignInBurst:     cfg.RateLimit.SignInBurst,
		Log:             logger,
	}
	if provider != nil {
		regOpts.Auth = provider
		regOpts.Profiles = remoteData
		deps.Auth = provider
		deps.Verifier = provider
	}

	registry, err := client.NewRegistry(regOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create client registry")
	}
	deps.Registry = registry

	engine := server.NewEngine(cfg, logger, loadTemplates(cfg.TemplatesDir), deps)
	httpServer := server.NewHTTPServer(cfg, logger, engine)

	var scheduler *jobs.Scheduler
	if provider != nil {
		scheduler = jobs.NewScheduler(counters, provider, logger.With().Str("component", "jobs").Logger())
		if err := scheduler.Start(); err != nil {
			logger.Error().Err(err).Msg("scheduler start failed")
		}
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, registry, counters, mail, redisClient)
}

// openStoragePool 优先使用 Redis 持久化客户端缓存，不可用时退回进程内存
func openStoragePool(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (storage.Pool, *redis.Client) {
	if cfg.Redis.Addr != "" {
		redisClient, err := storage.NewRedisClient(ctx, cfg.Redis)
		if err == nil {
			logger.Info().Str("addr", cfg.Redis.Addr).Msg("client storage on redis")
			return storage.NewRedisPool(redisClient, cfg.Cache.QuotaBytes, cfg.Session.RefreshTTL), redisClient
		}
		logger.Warn().Err(err).Msg("redis unavailable, client storage in memory")
	}

	pool, err := storage.NewMemoryPool(cfg.Cache.MaxClients, cfg.Cache.QuotaBytes)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create memory storage")
	}
	return pool, nil
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, registry *client.Registry, counters *services.CounterService, mail *services.MailService, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if scheduler != nil {
		cancel := scheduler.Stop()
		cancel()
	}
	registry.Close()
	if counters != nil {
		counters.Stop()
	}
	mail.Wait()
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}

	logger.Info().Msg("server exited cleanly")
}

func loadTemplates(templatesDir string) multitemplate.Renderer {
	r := multitemplate.NewRenderer()

	layouts, err := filepath.Glob(templatesDir + "/layouts/*.html")
	if err != nil {
		panic(err)
	}
	components, err := filepath.Glob(templatesDir + "/components/*.html")
	if err != nil {
		panic(err)
	}

	assemble := func(view string) []string {
		files := make([]string, 0, len(layouts)+len(components)+1)
		files = append(files, layouts...)
		files = append(files, components...)
		files = append(files, view)
		return files
	}

	funcMap := template.FuncMap{
		"dict": func(values ...interface{}) (map[string]interface{}, error) {
			if len(values)%2 != 0 {
				return nil, fmt.Errorf("invalid dict call")
			}
			dict := make(map[string]interface{}, len(values)/2)
			for i := 0; i < len(values); i += 2 {
				key, ok := values[i].(string)
				if !ok {
					return nil, fmt.Errorf("dict keys must be strings")
				}
				dict[key] = values[i+1]
			}
			return dict, nil
		},
		"timeAgo":  utils.TimeAgo,
		"initials": utils.Initials,
		"content":  utils.RenderContent,
		"excerpt":  utils.PlainText,
		"provider": session.ProviderLabel,
		"date": func(t time.Time) string {
			return t.Format("02.01.2006 15:04")
		},
		"score": func(p *int) string {
			if p == nil {
				return "-"
			}
			return fmt.Sprintf("%d", *p)
		},
	}

	for _, view := range []string{"feed.html", "events.html", "matches.html", "members.html", "error.html"} {
		r.AddFromFilesFuncs(view, funcMap, assemble(templatesDir+"/views/"+view)...)
	}
	return r
}

var (
	_ middleware.TokenVerifier = (*auth.Provider)(nil)
	_ handlers.AuthBackend     = (*auth.Provider)(nil)
	_ session.Authenticator    = (*auth.Provider)(nil)
	_ auth.Mailer              = (*services.MailService)(nil)
)
