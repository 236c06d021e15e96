// Микросервис файлов: приём загрузок, выгрузка в Cloudinary (signed),
// метаданные в Postgres. Его GET /api/status — probe для выбора пути загрузки.
package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studygroup/internal/cloudinary"
	"github.com/studygroup/internal/config"
	"github.com/studygroup/internal/fileserver"
	"github.com/studygroup/internal/logger"
	"github.com/studygroup/internal/repository"
	"github.com/studygroup/internal/startup"
)

func main() {
	logger.SetPrefix("files")
	if os.Getenv("CONFIG_PATH") == "" {
		os.Setenv("CONFIG_PATH", "config/files.yaml")
	}
	logger.Info("starting files service")
	cfg := config.Load()
	if cfg.Cloudinary.CloudName == "" || cfg.Cloudinary.APIKey == "" || cfg.Cloudinary.APISecret == "" {
		logger.Errorf("cloudinary credentials required (CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY, CLOUDINARY_API_SECRET)")
		os.Exit(1)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "")
	defer pool.Close()
	logger.Info("database connected")

	fileRepo := repository.NewFileRepository(pool)
	cloud := cloudinary.New(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, cfg.Cloudinary.UploadPreset)
	svc := fileserver.New(fileRepo, cloud, cfg.Cloudinary.Folder, cfg.MaxUploadSize)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Get("/api/status", svc.Status)
	r.Post("/api/cloudinary/upload", svc.Upload)
	r.Get("/api/files/{groupId}", func(w http.ResponseWriter, r *http.Request) {
		svc.ListByGroup(w, r, chi.URLParam(r, "groupId"))
	})
	r.Delete("/api/files/{fileId}", func(w http.ResponseWriter, r *http.Request) {
		svc.Delete(w, r, chi.URLParam(r, "fileId"))
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Infof("files server listening on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("files server: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")
	srv.Close()
	logger.Info("files server stopped")
}
