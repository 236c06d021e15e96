package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studygroup/internal/cache"
	"github.com/studygroup/internal/cache/memory"
	"github.com/studygroup/internal/cloudinary"
	"github.com/studygroup/internal/config"
	"github.com/studygroup/internal/group"
	"github.com/studygroup/internal/handler"
	"github.com/studygroup/internal/logger"
	"github.com/studygroup/internal/middleware"
	"github.com/studygroup/internal/model"
	"github.com/studygroup/internal/notify"
	"github.com/studygroup/internal/presence"
	"github.com/studygroup/internal/push"
	"github.com/studygroup/internal/repository"
	"github.com/studygroup/internal/service"
	"github.com/studygroup/internal/startup"
	"github.com/studygroup/internal/stream"
	"github.com/studygroup/internal/upload"
	"github.com/studygroup/internal/ws"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	flag.Parse()

	logger.Info("starting API service")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "")
	defer pool.Close()

	runMigrations(pool)
	if *migrate && !*dev {
		return
	}

	// После рестарта в БД могут остаться висящие статусы online.
	resetCtx, resetCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if _, err := pool.Exec(resetCtx, "UPDATE users SET status = 'offline'"); err != nil {
		logger.Errorf("reset presence status: %v", err)
	}
	resetCancel()
	logger.Info("database connected, migrations applied")

	userRepo := repository.NewUserRepository(pool)
	msgRepo := repository.NewMessageRepository(pool)
	notifRepo := repository.NewNotificationRepository(pool)
	groupRepo := repository.NewGroupRepository(pool)
	fileRepo := repository.NewFileRepository(pool)

	profileCache := connectProfileCache(cfg)
	defer profileCache.Close()

	userSvc := service.NewUserService(userRepo, profileCache, time.Duration(cfg.Cache.TTLMinutes)*time.Minute)
	pushClient := push.NewClient(cfg.PushServiceURL)
	engine := notify.NewEngine(notifRepo, userSvc, pushClient)
	broker := stream.NewBroker()
	store := stream.NewStore(msgRepo, userSvc, broker, engine)

	// Tracker создаётся до hub'а, поэтому рассылка статусов идёт через замыкание.
	var hub *ws.Hub
	tracker := presence.NewTracker(userRepo, profileCache, func(userID string, status model.PresenceStatus) {
		if hub != nil {
			hub.BroadcastPresence(userID, status)
		}
	})
	hub = ws.NewHub(store, tracker, groupRepo, cfg.MaxWSConnections, cfg.WSSendBufferSize)
	engine.SetLive(hub)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	groupSvc := group.NewService(groupRepo, engine)
	cloud := cloudinary.New(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, cfg.Cloudinary.UploadPreset)
	uploader := upload.NewUploader(
		upload.NewSelector(cfg.FileServiceURL, cfg.ProbeTimeout),
		upload.NewProxyClient(cfg.FileServiceURL),
		cloud,
		cfg.Cloudinary.Folder,
	)

	msgH := handler.NewMessageHandler(store, msgRepo)
	notifH := handler.NewNotificationHandler(notifRepo)
	groupH := handler.NewGroupHandler(groupSvc)
	userH := handler.NewUserHandler(userSvc, tracker)
	uploadH := handler.NewUploadHandler(uploader, fileRepo, groupSvc, cfg.MaxUploadSize)
	pushH := handler.NewPushHandler(pushClient)
	wsH := handler.NewWSHandler(hub, cfg.CORSAllowedOrigins, cfg.WSSendBufferSize)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket — иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.SecureHeaders)
	r.Use(middleware.RateLimitAPI)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Session-Id", "X-Timestamp", "X-Signature"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthServiceValidate(cfg.AuthServiceURL, nil))
		r.Get("/api/users/me", userH.Me)
		r.Put("/api/users/me", userH.UpdateProfile)
		r.Put("/api/users/me/settings", userH.UpdateSettings)
		r.Post("/api/users/me/presence", userH.Presence)
		r.Get("/api/users", userH.List)
		r.Get("/api/users/{userId}", userH.Get)
		r.Post("/api/messages", msgH.SendMessage)
		r.Post("/api/messages/{messageId}/seen", msgH.MarkSeen)
		r.Get("/api/conversations", msgH.GetConversations)
		r.Get("/api/conversations/{peerId}/messages", msgH.GetConversationMessages)
		r.Post("/api/conversations/{peerId}/seen", msgH.MarkConversationSeen)
		r.Get("/api/notifications", notifH.List)
		r.Get("/api/notifications/unread-count", notifH.UnreadCount)
		r.Post("/api/notifications/{id}/read", notifH.MarkRead)
		r.Post("/api/notifications/read-all", notifH.MarkAllRead)
		r.Post("/api/groups", groupH.Create)
		r.Get("/api/groups", groupH.ListMine)
		r.Get("/api/groups/{groupId}", groupH.Get)
		r.Put("/api/groups/{groupId}", groupH.Update)
		r.Post("/api/groups/{groupId}/join", groupH.Join)
		r.Post("/api/groups/{groupId}/leave", groupH.Leave)
		r.Post("/api/groups/{groupId}/meetings", groupH.NotifyMeeting)
		r.Post("/api/uploads", uploadH.Upload)
		r.Post("/api/push/subscribe", pushH.Subscribe)
		r.Delete("/api/push/subscribe", pushH.Unsubscribe)
		r.Get("/ws", wsH.ServeWS)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

// connectProfileCache подключает Redis-кеш профилей; при недоступности Redis
// деградирует до in-memory кеша внутри процесса.
func connectProfileCache(cfg *config.Config) cache.ProfileCache {
	if cfg.Redis.URL != "" {
		c, err := startup.ConnectRedisWithRetry(cfg.Redis.URL, 15*time.Second, "")
		if err == nil {
			logger.Info("profile cache: redis")
			return c
		}
		logger.Errorf("redis unavailable, falling back to in-memory profile cache: %v", err)
	}
	return memory.New()
}

func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	files := []string{
		"migrations/001_init.sql",
	}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			logger.Errorf("read migration %s: %v", f, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", f, err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied")
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "studygroup"
		password = "studygroup_secret"
		database = "studygroup"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	epg := embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
		Username(user).
		Password(password).
		Database(database).
		Port(port).
		DataPath(dataDir).
		StartTimeout(45 * time.Second))
	if err := epg.Start(); err != nil {
		return nil, fmt.Errorf("start embedded postgres: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf("postgres://%s:%s@localhost:%d/%s?sslmode=disable", user, password, port, database)
	logger.Infof("embedded postgres started on port %d", port)
	return epg, nil
}
